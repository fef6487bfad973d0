package ua

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opcfoundry/opcua-runtime/errors"
)

func TestScalarNarrowing(t *testing.T) {
	v := NewVariant(int32(42))

	got, err := ScalarOf[int32](v)
	require.NoError(t, err)
	assert.Equal(t, int32(42), got)

	_, err = ScalarOf[string](v)
	require.Error(t, err)
	var uaErr *errors.Error
	require.ErrorAs(t, err, &uaErr)
	assert.Equal(t, errors.KindTypeMismatch, uaErr.Kind)
	assert.Equal(t, "String", uaErr.Expected)
	assert.Equal(t, "Int32", uaErr.Actual)
}

func TestScalarNarrowingNeverPanics(t *testing.T) {
	cases := []Variant{
		{},
		NewVariant(true),
		NewVariant("text"),
		NewArrayVariant([]int32{1, 2, 3}),
		NewNullArrayVariant[float64](),
	}
	for _, v := range cases {
		_, err := ScalarOf[Guid](v)
		assert.Error(t, err, "variant %s", v)
	}
}

func TestScalarTypeTags(t *testing.T) {
	tests := []struct {
		v    Variant
		id   TypeID
		name string
	}{
		{NewVariant(true), TypeBoolean, "Boolean"},
		{NewVariant(int8(-1)), TypeSByte, "SByte"},
		{NewVariant(uint8(7)), TypeByte, "Byte"},
		{NewVariant(int16(-2)), TypeInt16, "Int16"},
		{NewVariant(uint16(3)), TypeUInt16, "UInt16"},
		{NewVariant(int32(-4)), TypeInt32, "Int32"},
		{NewVariant(uint32(5)), TypeUInt32, "UInt32"},
		{NewVariant(int64(-6)), TypeInt64, "Int64"},
		{NewVariant(uint64(7)), TypeUInt64, "UInt64"},
		{NewVariant(float32(1.5)), TypeFloat, "Float"},
		{NewVariant(2.5), TypeDouble, "Double"},
		{NewVariant("hello"), TypeString, "String"},
		{NewVariant(DateTimeNow()), TypeDateTime, "DateTime"},
		{NewVariant(NewGuid()), TypeGuid, "Guid"},
		{NewVariant(ByteString{1, 2}), TypeByteString, "ByteString"},
		{NewVariant(NS0(2258)), TypeNodeID, "NodeId"},
		{NewVariant(StatusGood), TypeStatusCode, "StatusCode"},
		{NewVariant(NewQualifiedName(1, "Temp")), TypeQualifiedName, "QualifiedName"},
		{NewVariant(NewLocalizedText("en", "Temp")), TypeLocalizedText, "LocalizedText"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.id, tt.v.Type(), tt.name)
		assert.Equal(t, tt.name, tt.v.TypeName())
	}
}

func TestArrayStates(t *testing.T) {
	null := NewNullArrayVariant[int32]()
	empty := NewArrayVariant([]int32{})
	valid := NewArrayVariant([]int32{1, 2, 3})

	state, ok := null.ArrayState()
	require.True(t, ok)
	assert.Equal(t, ArrayInvalid, state)

	state, ok = empty.ArrayState()
	require.True(t, ok)
	assert.Equal(t, ArrayEmpty, state)

	state, ok = valid.ArrayState()
	require.True(t, ok)
	assert.Equal(t, ArrayValid, state)
	assert.Equal(t, 3, valid.Len())

	// nil slice means null array, not empty
	fromNil := NewArrayVariant[int32](nil)
	state, _ = fromNil.ArrayState()
	assert.Equal(t, ArrayInvalid, state)

	// the three states never compare equal to one another
	assert.False(t, null.Equal(empty))
	assert.False(t, empty.Equal(valid))
	assert.False(t, null.Equal(valid))

	// scalars are not arrays
	_, ok = NewVariant(int32(1)).ArrayState()
	assert.False(t, ok)
}

func TestArrayNarrowing(t *testing.T) {
	v := NewArrayVariant([]float64{1.0, 2.0})

	got, err := ArrayOf[float64](v)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.0, 2.0}, got)

	_, err = ArrayOf[int32](v)
	var uaErr *errors.Error
	require.ErrorAs(t, err, &uaErr)
	assert.Equal(t, errors.KindTypeMismatch, uaErr.Kind)
	assert.Equal(t, "Int32", uaErr.Expected)
	assert.Equal(t, "Double", uaErr.Actual)
}

func TestNullArrayNarrowingFails(t *testing.T) {
	v := NewNullArrayVariant[int32]()

	_, err := ArrayOf[int32](v)
	var uaErr *errors.Error
	require.ErrorAs(t, err, &uaErr)
	assert.Equal(t, errors.KindNullArray, uaErr.Kind)
}

func TestEmptyArrayCoercion(t *testing.T) {
	// an empty array of extension objects coerces into any element type
	empty := NewArrayVariant([]ExtensionObject{})

	args, err := ArrayOf[Argument](empty)
	require.NoError(t, err)
	require.NotNil(t, args)
	assert.Len(t, args, 0)

	ints, err := ArrayOf[int32](empty)
	require.NoError(t, err)
	assert.Len(t, ints, 0)
}

func TestExtensionObjectArrayCoercion(t *testing.T) {
	arg := Argument{Name: "x", DataType: NS0(uint32(TypeDouble)), ValueRank: -1}
	wrapped := ExtensionObject{
		TypeID:  NS0(uint32(TypeArgument)),
		Decoded: arg,
	}
	v := NewArrayVariant([]ExtensionObject{wrapped, wrapped})

	// every element's decoded payload matches the requested type
	args, err := ArrayOf[Argument](v)
	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Equal(t, "x", args[0].Name)

	// opaque elements do not coerce
	opaque := ExtensionObject{TypeID: NS0(9999), Body: ByteString{0xde, 0xad}}
	mixed := NewArrayVariant([]ExtensionObject{wrapped, opaque})
	_, err = ArrayOf[Argument](mixed)
	var uaErr *errors.Error
	require.ErrorAs(t, err, &uaErr)
	assert.Equal(t, errors.KindTypeMismatch, uaErr.Kind)
}

func TestCloneIsDeep(t *testing.T) {
	bs := ByteString{1, 2, 3}
	v := NewVariant(bs)

	// the constructor already copies: mutating the source must not leak in
	bs[0] = 99
	got, err := ScalarOf[ByteString](v)
	require.NoError(t, err)
	assert.Equal(t, ByteString{1, 2, 3}, got)

	// and mutating a narrowed result must not corrupt the variant
	got[1] = 98
	again, err := ScalarOf[ByteString](v)
	require.NoError(t, err)
	assert.Equal(t, ByteString{1, 2, 3}, again)

	clone := v.Clone()
	assert.True(t, v.Equal(clone))
}

func TestStructureFieldAccess(t *testing.T) {
	s := Structure{
		TypeID: NewNumericNodeID(2, 100),
		Fields: []Field{
			{Name: "temperature", Value: NewVariant(21.5)},
			{Name: "unit", Value: NewVariant("celsius")},
		},
	}

	v, ok := s.FieldByName("temperature")
	require.True(t, ok)
	temp, err := ScalarOf[float64](v)
	require.NoError(t, err)
	assert.Equal(t, 21.5, temp)

	_, ok = s.FieldByName("missing")
	assert.False(t, ok)

	clone := s.Clone()
	assert.True(t, structureEqual(s, clone))
}

func TestVariantString(t *testing.T) {
	assert.Equal(t, "Variant(empty)", Variant{}.String())
	assert.Equal(t, "Int32:5", NewVariant(int32(5)).String())
	assert.Equal(t, "Int32[null]", NewNullArrayVariant[int32]().String())
	assert.Equal(t, "Int32[0]{}", NewArrayVariant([]int32{}).String())
	assert.Contains(t, NewArrayVariant([]int32{1, 2}).String(), "Int32[2]")
}
