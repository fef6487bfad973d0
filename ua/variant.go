package ua

import (
	"fmt"
	"strings"

	"github.com/opcfoundry/opcua-runtime/errors"
)

// TypeID is the numeric data type tag of a Variant payload, using the
// protocol's namespace-zero identifiers.
type TypeID uint32

const (
	TypeNull            TypeID = 0
	TypeBoolean         TypeID = 1
	TypeSByte           TypeID = 2
	TypeByte            TypeID = 3
	TypeInt16           TypeID = 4
	TypeUInt16          TypeID = 5
	TypeInt32           TypeID = 6
	TypeUInt32          TypeID = 7
	TypeInt64           TypeID = 8
	TypeUInt64          TypeID = 9
	TypeFloat           TypeID = 10
	TypeDouble          TypeID = 11
	TypeString          TypeID = 12
	TypeDateTime        TypeID = 13
	TypeGuid            TypeID = 14
	TypeByteString      TypeID = 15
	TypeNodeID          TypeID = 17
	TypeExpandedNodeID  TypeID = 18
	TypeStatusCode      TypeID = 19
	TypeQualifiedName   TypeID = 20
	TypeLocalizedText   TypeID = 21
	TypeExtensionObject TypeID = 22
	TypeArgument        TypeID = 296
)

// ScalarTypes enumerates the Go types a Variant scalar may hold. The
// union is closed: anything else is representable only as an
// ExtensionObject.
type ScalarTypes interface {
	bool | int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 |
		float32 | float64 | string | DateTime | Guid | ByteString |
		NodeID | ExpandedNodeID | StatusCode | QualifiedName | LocalizedText |
		ExtensionObject | Structure | Argument
}

// ArrayState distinguishes the protocol's three array states.
type ArrayState uint8

const (
	// ArrayInvalid is the null/undefined array (null data pointer).
	ArrayInvalid ArrayState = iota
	// ArrayEmpty is a present array of length zero (sentinel pointer).
	ArrayEmpty
	// ArrayValid is an array with one or more elements.
	ArrayValid
)

func (s ArrayState) String() string {
	switch s {
	case ArrayInvalid:
		return "invalid"
	case ArrayEmpty:
		return "empty"
	case ArrayValid:
		return "valid"
	}
	return "unknown"
}

type variantForm uint8

const (
	formEmpty variantForm = iota
	formScalar
	formArrayNull
	formArrayEmpty
	formArray
)

// Variant is the closed tagged union over the protocol's value model:
// empty, a single scalar, or a homogeneous array with three
// distinguishable states. The zero Variant is empty.
type Variant struct {
	typeID TypeID
	form   variantForm
	scalar any
	elems  []any
}

// NewVariant builds a scalar Variant.
func NewVariant[T ScalarTypes](v T) Variant {
	return Variant{
		typeID: typeIDOf(v),
		form:   formScalar,
		scalar: cloneScalar(v),
	}
}

// NewArrayVariant builds an array Variant. A nil slice produces the
// invalid (null) array state; a non-nil empty slice produces the empty
// state.
func NewArrayVariant[T ScalarTypes](vs []T) Variant {
	var zero T
	v := Variant{typeID: typeIDOf(zero)}
	switch {
	case vs == nil:
		v.form = formArrayNull
	case len(vs) == 0:
		v.form = formArrayEmpty
	default:
		v.form = formArray
		v.elems = make([]any, len(vs))
		for i, e := range vs {
			v.elems[i] = cloneScalar(e)
		}
	}
	return v
}

// NewNullArrayVariant builds the invalid (null) array state explicitly.
func NewNullArrayVariant[T ScalarTypes]() Variant {
	var zero T
	return Variant{typeID: typeIDOf(zero), form: formArrayNull}
}

// Type returns the data type tag, TypeNull for the empty Variant.
func (v Variant) Type() TypeID {
	if v.form == formEmpty {
		return TypeNull
	}
	return v.typeID
}

// TypeName returns the symbolic tag name used in error messages.
func (v Variant) TypeName() string {
	if v.form == formEmpty {
		return "Null"
	}
	if v.form == formScalar {
		return scalarName(v.scalar)
	}
	if len(v.elems) > 0 {
		return scalarName(v.elems[0]) + "[]"
	}
	return typeIDName(v.typeID) + "[]"
}

// IsEmpty reports whether no value is set.
func (v Variant) IsEmpty() bool { return v.form == formEmpty }

// IsScalar reports whether the Variant holds a single value.
func (v Variant) IsScalar() bool { return v.form == formScalar }

// IsArray reports whether the Variant holds an array in any of its three
// states.
func (v Variant) IsArray() bool {
	return v.form == formArrayNull || v.form == formArrayEmpty || v.form == formArray
}

// ArrayState returns the array state; ok is false for non-arrays.
func (v Variant) ArrayState() (ArrayState, bool) {
	switch v.form {
	case formArrayNull:
		return ArrayInvalid, true
	case formArrayEmpty:
		return ArrayEmpty, true
	case formArray:
		return ArrayValid, true
	default:
		return 0, false
	}
}

// Len returns the element count of a valid array, zero otherwise.
func (v Variant) Len() int { return len(v.elems) }

// Scalar returns the untyped scalar payload.
func (v Variant) Scalar() (any, bool) {
	if v.form != formScalar {
		return nil, false
	}
	return v.scalar, true
}

// Element returns element i of a valid array as a scalar Variant.
func (v Variant) Element(i int) (Variant, error) {
	if v.form != formArray {
		return Variant{}, errors.InvalidData(errors.PhaseDecode, nil,
			fmt.Sprintf("element access on %s variant", v.TypeName()))
	}
	if i < 0 || i >= len(v.elems) {
		return Variant{}, errors.InvalidData(errors.PhaseDecode, nil,
			fmt.Sprintf("index %d out of bounds (length %d)", i, len(v.elems)))
	}
	return Variant{typeID: v.typeID, form: formScalar, scalar: cloneScalar(v.elems[i])}, nil
}

// ScalarOf narrows a Variant to the requested scalar type. It fails with
// a type-mismatch error naming both tags when the dynamic tag differs,
// and never panics.
func ScalarOf[T ScalarTypes](v Variant) (T, error) {
	var zero T
	if v.form != formScalar {
		return zero, errors.TypeMismatch(errors.PhaseDecode, nil, scalarName(zero), v.TypeName())
	}
	got, ok := v.scalar.(T)
	if !ok {
		return zero, errors.TypeMismatch(errors.PhaseDecode, nil, scalarName(zero), scalarName(v.scalar))
	}
	return cloneScalar(got).(T), nil
}

// ArrayOf narrows a Variant to an array of the requested element type.
//
// The three array states remain observable: the invalid (null) array
// fails with a null_array error, the empty array returns a non-nil empty
// slice, and a valid array returns its elements.
//
// Empty arrays coerce to any requested element type unconditionally;
// this avoids spurious type-mismatch errors on absence of data. A
// non-empty array of extension objects coerces into the requested
// structure type only when every element carries a decoded payload of
// that type.
func ArrayOf[T ScalarTypes](v Variant) ([]T, error) {
	var zero T
	want := scalarName(zero)

	state, ok := v.ArrayState()
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseDecode, nil, want+"[]", v.TypeName())
	}

	switch state {
	case ArrayInvalid:
		return nil, errors.New(errors.PhaseDecode, errors.KindNullArray).
			Expected(want + "[]").
			Detail("array is null (undefined)").
			Build()
	case ArrayEmpty:
		return []T{}, nil
	}

	out := make([]T, 0, len(v.elems))
	for i, e := range v.elems {
		if got, ok := e.(T); ok {
			out = append(out, cloneScalar(got).(T))
			continue
		}
		eo, ok := e.(ExtensionObject)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseDecode,
				[]string{fmt.Sprintf("[%d]", i)}, want, scalarName(e))
		}
		dec, ok := eo.Decoded.(T)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseDecode,
				[]string{fmt.Sprintf("[%d]", i)}, want,
				fmt.Sprintf("ExtensionObject(%s)", eo.TypeID))
		}
		out = append(out, cloneScalar(dec).(T))
	}
	return out, nil
}

// Clone returns a deep copy. The copy owns all heap memory referenced by
// its payloads; there is no implicit aliasing between a Variant and its
// clone.
func (v Variant) Clone() Variant {
	out := Variant{typeID: v.typeID, form: v.form}
	if v.scalar != nil {
		out.scalar = cloneScalar(v.scalar)
	}
	if v.elems != nil {
		out.elems = make([]any, len(v.elems))
		for i, e := range v.elems {
			out.elems[i] = cloneScalar(e)
		}
	}
	return out
}

// Equal reports deep equality, including identical array states.
func (v Variant) Equal(o Variant) bool {
	if v.form != o.form || v.Type() != o.Type() {
		return false
	}
	switch v.form {
	case formScalar:
		return scalarEqual(v.scalar, o.scalar)
	case formArray:
		if len(v.elems) != len(o.elems) {
			return false
		}
		for i := range v.elems {
			if !scalarEqual(v.elems[i], o.elems[i]) {
				return false
			}
		}
	}
	return true
}

func (v Variant) String() string {
	switch v.form {
	case formEmpty:
		return "Variant(empty)"
	case formScalar:
		return fmt.Sprintf("%s:%v", v.TypeName(), v.scalar)
	case formArrayNull:
		return fmt.Sprintf("%s[null]", typeIDName(v.typeID))
	case formArrayEmpty:
		return fmt.Sprintf("%s[0]{}", typeIDName(v.typeID))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{", typeIDName(v.typeID), len(v.elems))
	for i, e := range v.elems {
		if i > 0 {
			b.WriteString(", ")
		}
		if i == 8 {
			b.WriteString("...")
			break
		}
		fmt.Fprintf(&b, "%v", e)
	}
	b.WriteByte('}')
	return b.String()
}

func typeIDOf(v any) TypeID {
	switch v.(type) {
	case bool:
		return TypeBoolean
	case int8:
		return TypeSByte
	case uint8:
		return TypeByte
	case int16:
		return TypeInt16
	case uint16:
		return TypeUInt16
	case int32:
		return TypeInt32
	case uint32:
		return TypeUInt32
	case int64:
		return TypeInt64
	case uint64:
		return TypeUInt64
	case float32:
		return TypeFloat
	case float64:
		return TypeDouble
	case string:
		return TypeString
	case DateTime:
		return TypeDateTime
	case Guid:
		return TypeGuid
	case ByteString:
		return TypeByteString
	case NodeID:
		return TypeNodeID
	case ExpandedNodeID:
		return TypeExpandedNodeID
	case StatusCode:
		return TypeStatusCode
	case QualifiedName:
		return TypeQualifiedName
	case LocalizedText:
		return TypeLocalizedText
	case ExtensionObject, Structure:
		return TypeExtensionObject
	case Argument:
		return TypeArgument
	}
	return TypeNull
}

func scalarName(v any) string {
	switch v.(type) {
	case bool:
		return "Boolean"
	case int8:
		return "SByte"
	case uint8:
		return "Byte"
	case int16:
		return "Int16"
	case uint16:
		return "UInt16"
	case int32:
		return "Int32"
	case uint32:
		return "UInt32"
	case int64:
		return "Int64"
	case uint64:
		return "UInt64"
	case float32:
		return "Float"
	case float64:
		return "Double"
	case string:
		return "String"
	case DateTime:
		return "DateTime"
	case Guid:
		return "Guid"
	case ByteString:
		return "ByteString"
	case NodeID:
		return "NodeId"
	case ExpandedNodeID:
		return "ExpandedNodeId"
	case StatusCode:
		return "StatusCode"
	case QualifiedName:
		return "QualifiedName"
	case LocalizedText:
		return "LocalizedText"
	case ExtensionObject:
		return "ExtensionObject"
	case Structure:
		return "Structure"
	case Argument:
		return "Argument"
	}
	return fmt.Sprintf("%T", v)
}

func typeIDName(id TypeID) string {
	switch id {
	case TypeNull:
		return "Null"
	case TypeBoolean:
		return "Boolean"
	case TypeSByte:
		return "SByte"
	case TypeByte:
		return "Byte"
	case TypeInt16:
		return "Int16"
	case TypeUInt16:
		return "UInt16"
	case TypeInt32:
		return "Int32"
	case TypeUInt32:
		return "UInt32"
	case TypeInt64:
		return "Int64"
	case TypeUInt64:
		return "UInt64"
	case TypeFloat:
		return "Float"
	case TypeDouble:
		return "Double"
	case TypeString:
		return "String"
	case TypeDateTime:
		return "DateTime"
	case TypeGuid:
		return "Guid"
	case TypeByteString:
		return "ByteString"
	case TypeNodeID:
		return "NodeId"
	case TypeExpandedNodeID:
		return "ExpandedNodeId"
	case TypeStatusCode:
		return "StatusCode"
	case TypeQualifiedName:
		return "QualifiedName"
	case TypeLocalizedText:
		return "LocalizedText"
	case TypeExtensionObject:
		return "ExtensionObject"
	case TypeArgument:
		return "Argument"
	}
	return fmt.Sprintf("TypeId(%d)", uint32(id))
}

func cloneScalar(v any) any {
	switch s := v.(type) {
	case ByteString:
		return s.Clone()
	case NodeID:
		return s.Clone()
	case ExpandedNodeID:
		return s.Clone()
	case ExtensionObject:
		return s.Clone()
	case Structure:
		return s.Clone()
	case Argument:
		return s.Clone()
	default:
		// Remaining scalar types are plain values without heap payloads.
		return v
	}
}

func scalarEqual(a, b any) bool {
	switch av := a.(type) {
	case ByteString:
		bv, ok := b.(ByteString)
		return ok && av.Equal(bv)
	case NodeID:
		bv, ok := b.(NodeID)
		return ok && av.Equal(bv)
	case ExpandedNodeID:
		bv, ok := b.(ExpandedNodeID)
		return ok && av.Equal(bv)
	case ExtensionObject:
		bv, ok := b.(ExtensionObject)
		if !ok || !av.TypeID.Equal(bv.TypeID) || !av.Body.Equal(bv.Body) {
			return false
		}
		return extensionDecodedEqual(av.Decoded, bv.Decoded)
	case Structure:
		bv, ok := b.(Structure)
		return ok && structureEqual(av, bv)
	case Argument:
		bv, ok := b.(Argument)
		return ok && av.Name == bv.Name && av.DataType.Equal(bv.DataType) &&
			av.ValueRank == bv.ValueRank && av.Description == bv.Description
	default:
		return a == b
	}
}

func structureEqual(a, b Structure) bool {
	if !a.TypeID.Equal(b.TypeID) || len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		if a.Fields[i].Name != b.Fields[i].Name || !a.Fields[i].Value.Equal(b.Fields[i].Value) {
			return false
		}
	}
	return true
}

func extensionDecodedEqual(a, b any) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return scalarEqual(a, b)
}
