package ua

import (
	"fmt"

	"github.com/opcfoundry/opcua-runtime/engine"
	"github.com/opcfoundry/opcua-runtime/errors"
)

// This file is the only place that translates between the engine's raw
// value representation and the value model. Decoding copies every byte
// payload out of the raw form: raw memory is valid only until the engine
// callback that delivered it returns.

// EncodeVariant converts a Variant into the engine's raw representation.
// It is the exact inverse of DecodeVariant for all representable values.
func EncodeVariant(v Variant) engine.Raw {
	switch v.form {
	case formEmpty:
		return engine.Raw{Form: engine.FormEmpty}
	case formScalar:
		return engine.Raw{
			TypeID: uint32(v.typeID),
			Form:   engine.FormScalar,
			Scalar: encodeScalar(v.scalar),
		}
	case formArrayNull:
		return engine.Raw{TypeID: uint32(v.typeID), Form: engine.FormArrayNull}
	case formArrayEmpty:
		return engine.Raw{TypeID: uint32(v.typeID), Form: engine.FormArrayEmpty}
	default:
		elems := make([]any, len(v.elems))
		for i, e := range v.elems {
			elems[i] = encodeScalar(e)
		}
		return engine.Raw{
			TypeID:   uint32(v.typeID),
			Form:     engine.FormArray,
			Elements: elems,
		}
	}
}

// DecodeVariant converts the engine's raw representation into an owned
// Variant. It never panics on malformed input; failures carry the
// offending type tag.
func DecodeVariant(raw engine.Raw) (Variant, error) {
	switch raw.Form {
	case engine.FormEmpty:
		return Variant{}, nil
	case engine.FormScalar:
		s, err := decodeScalar(TypeID(raw.TypeID), raw.Scalar, nil)
		if err != nil {
			return Variant{}, err
		}
		return Variant{typeID: TypeID(raw.TypeID), form: formScalar, scalar: s}, nil
	case engine.FormArrayNull:
		return Variant{typeID: TypeID(raw.TypeID), form: formArrayNull}, nil
	case engine.FormArrayEmpty:
		return Variant{typeID: TypeID(raw.TypeID), form: formArrayEmpty}, nil
	case engine.FormArray:
		if len(raw.Elements) == 0 {
			return Variant{}, errors.InvalidData(errors.PhaseDecode, nil,
				"array form with no elements")
		}
		elems := make([]any, len(raw.Elements))
		for i, e := range raw.Elements {
			s, err := decodeScalar(TypeID(raw.TypeID), e, []string{fmt.Sprintf("[%d]", i)})
			if err != nil {
				return Variant{}, err
			}
			elems[i] = s
		}
		return Variant{typeID: TypeID(raw.TypeID), form: formArray, elems: elems}, nil
	}
	return Variant{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
		Actual(raw.Form.String()).
		Detail("unknown variant form").
		Build()
}

func encodeScalar(s any) any {
	switch v := s.(type) {
	case bool, int8, uint8, int16, uint16, int32, uint32, int64, uint64, float32, float64:
		return v
	case string:
		return engine.RawString{Data: []byte(v)}
	case DateTime:
		return int64(v)
	case Guid:
		return v.Bytes()
	case ByteString:
		if v.IsNull() {
			return engine.RawString{Null: true}
		}
		data := make([]byte, len(v))
		copy(data, v)
		return engine.RawString{Data: data}
	case NodeID:
		return EncodeNodeID(v)
	case ExpandedNodeID:
		return EncodeExpandedNodeID(v)
	case StatusCode:
		return uint32(v)
	case QualifiedName:
		return engine.RawQualifiedName{Namespace: v.Namespace, Name: v.Name}
	case LocalizedText:
		return engine.RawLocalizedText{Locale: v.Locale, Text: v.Text}
	case ExtensionObject:
		return encodeExtensionObject(v)
	case Structure:
		return encodeStructure(v)
	case Argument:
		return EncodeArgument(v)
	}
	// Unreachable for values built through the public constructors.
	return s
}

func decodeScalar(id TypeID, payload any, path []string) (any, error) {
	bad := func(want string) error {
		return errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path(path...).
			Expected(want).
			Actual(fmt.Sprintf("%T", payload)).
			Detail("payload does not match type tag %s", typeIDName(id)).
			Build()
	}

	switch id {
	case TypeBoolean:
		if v, ok := payload.(bool); ok {
			return v, nil
		}
		return nil, bad("Boolean")
	case TypeSByte:
		if v, ok := payload.(int8); ok {
			return v, nil
		}
		return nil, bad("SByte")
	case TypeByte:
		if v, ok := payload.(uint8); ok {
			return v, nil
		}
		return nil, bad("Byte")
	case TypeInt16:
		if v, ok := payload.(int16); ok {
			return v, nil
		}
		return nil, bad("Int16")
	case TypeUInt16:
		if v, ok := payload.(uint16); ok {
			return v, nil
		}
		return nil, bad("UInt16")
	case TypeInt32:
		if v, ok := payload.(int32); ok {
			return v, nil
		}
		return nil, bad("Int32")
	case TypeUInt32:
		if v, ok := payload.(uint32); ok {
			return v, nil
		}
		return nil, bad("UInt32")
	case TypeInt64:
		if v, ok := payload.(int64); ok {
			return v, nil
		}
		return nil, bad("Int64")
	case TypeUInt64:
		if v, ok := payload.(uint64); ok {
			return v, nil
		}
		return nil, bad("UInt64")
	case TypeFloat:
		if v, ok := payload.(float32); ok {
			return v, nil
		}
		return nil, bad("Float")
	case TypeDouble:
		if v, ok := payload.(float64); ok {
			return v, nil
		}
		return nil, bad("Double")
	case TypeString:
		if v, ok := payload.(engine.RawString); ok {
			return string(v.Data), nil
		}
		return nil, bad("String")
	case TypeDateTime:
		if v, ok := payload.(int64); ok {
			return DateTime(v), nil
		}
		return nil, bad("DateTime")
	case TypeGuid:
		if v, ok := payload.([16]byte); ok {
			g, err := GuidFromBytes(v[:])
			if err != nil {
				return nil, err
			}
			return g, nil
		}
		return nil, bad("Guid")
	case TypeByteString:
		if v, ok := payload.(engine.RawString); ok {
			if v.Null {
				return ByteString(nil), nil
			}
			data := make(ByteString, len(v.Data))
			copy(data, v.Data)
			return data, nil
		}
		return nil, bad("ByteString")
	case TypeNodeID:
		if v, ok := payload.(engine.RawNodeID); ok {
			return DecodeNodeID(v)
		}
		return nil, bad("NodeId")
	case TypeExpandedNodeID:
		if v, ok := payload.(engine.RawExpandedNodeID); ok {
			return DecodeExpandedNodeID(v)
		}
		return nil, bad("ExpandedNodeId")
	case TypeStatusCode:
		if v, ok := payload.(uint32); ok {
			return StatusCode(v), nil
		}
		return nil, bad("StatusCode")
	case TypeQualifiedName:
		if v, ok := payload.(engine.RawQualifiedName); ok {
			return QualifiedName{Namespace: v.Namespace, Name: v.Name}, nil
		}
		return nil, bad("QualifiedName")
	case TypeLocalizedText:
		if v, ok := payload.(engine.RawLocalizedText); ok {
			return LocalizedText{Locale: v.Locale, Text: v.Text}, nil
		}
		return nil, bad("LocalizedText")
	case TypeExtensionObject:
		switch v := payload.(type) {
		case engine.RawExtensionObject:
			return decodeExtensionObject(v, path)
		case engine.RawStructure:
			return decodeStructure(v, path)
		}
		return nil, bad("ExtensionObject")
	case TypeArgument:
		if v, ok := payload.(engine.RawArgument); ok {
			return DecodeArgument(v)
		}
		return nil, bad("Argument")
	}

	return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
		Path(path...).
		Actual(fmt.Sprintf("TypeId(%d)", uint32(id))).
		Detail("unsupported type tag").
		Build()
}

// EncodeNodeID converts a NodeID to the raw layout.
func EncodeNodeID(n NodeID) engine.RawNodeID {
	out := engine.RawNodeID{Namespace: n.ns, IDType: uint8(n.kind)}
	switch n.kind {
	case nodeIDNumeric:
		out.Numeric = n.num
	case nodeIDString:
		out.Text = n.str
	case nodeIDGuid:
		b := n.guid.Bytes()
		out.Bytes = b[:]
	case nodeIDOpaque:
		out.Bytes = append([]byte(nil), n.opaque...)
	}
	return out
}

// DecodeNodeID converts the raw layout to an owned NodeID.
func DecodeNodeID(raw engine.RawNodeID) (NodeID, error) {
	switch nodeIDKind(raw.IDType) {
	case nodeIDNumeric:
		return NewNumericNodeID(raw.Namespace, raw.Numeric), nil
	case nodeIDString:
		return NewStringNodeID(raw.Namespace, raw.Text), nil
	case nodeIDGuid:
		g, err := GuidFromBytes(raw.Bytes)
		if err != nil {
			return NodeID{}, err
		}
		return NewGuidNodeID(raw.Namespace, g), nil
	case nodeIDOpaque:
		return NewOpaqueNodeID(raw.Namespace, ByteString(raw.Bytes)), nil
	}
	return NodeID{}, errors.InvalidData(errors.PhaseDecode, nil,
		fmt.Sprintf("node id type %d", raw.IDType))
}

// EncodeExpandedNodeID converts an ExpandedNodeID to the raw layout.
func EncodeExpandedNodeID(e ExpandedNodeID) engine.RawExpandedNodeID {
	return engine.RawExpandedNodeID{
		NodeID:       EncodeNodeID(e.NodeID),
		NamespaceURI: e.NamespaceURI,
		ServerIndex:  e.ServerIndex,
	}
}

// DecodeExpandedNodeID converts the raw layout to an owned ExpandedNodeID.
func DecodeExpandedNodeID(raw engine.RawExpandedNodeID) (ExpandedNodeID, error) {
	id, err := DecodeNodeID(raw.NodeID)
	if err != nil {
		return ExpandedNodeID{}, err
	}
	return ExpandedNodeID{
		NodeID:       id,
		NamespaceURI: raw.NamespaceURI,
		ServerIndex:  raw.ServerIndex,
	}, nil
}

func encodeExtensionObject(e ExtensionObject) engine.RawExtensionObject {
	out := engine.RawExtensionObject{TypeID: EncodeNodeID(e.TypeID)}
	if !e.Body.IsNull() {
		out.Body = make([]byte, len(e.Body))
		copy(out.Body, e.Body)
	}
	switch d := e.Decoded.(type) {
	case Structure:
		out.Decoded = encodeStructure(d)
	case Argument:
		out.Decoded = EncodeArgument(d)
	}
	return out
}

func decodeExtensionObject(raw engine.RawExtensionObject, path []string) (ExtensionObject, error) {
	typeID, err := DecodeNodeID(raw.TypeID)
	if err != nil {
		return ExtensionObject{}, err
	}
	out := ExtensionObject{TypeID: typeID}
	if raw.Body != nil {
		out.Body = make(ByteString, len(raw.Body))
		copy(out.Body, raw.Body)
	}
	switch d := raw.Decoded.(type) {
	case nil:
	case engine.RawStructure:
		s, err := decodeStructure(d, append(path, "decoded"))
		if err != nil {
			return ExtensionObject{}, err
		}
		out.Decoded = s
	case engine.RawArgument:
		a, err := DecodeArgument(d)
		if err != nil {
			return ExtensionObject{}, err
		}
		out.Decoded = a
	default:
		return ExtensionObject{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path(append(path, "decoded")...).
			Actual(fmt.Sprintf("%T", raw.Decoded)).
			Detail("unknown decoded extension payload").
			Build()
	}
	return out, nil
}

func encodeStructure(s Structure) engine.RawStructure {
	out := engine.RawStructure{TypeID: EncodeNodeID(s.TypeID)}
	if s.Fields != nil {
		out.Fields = make([]engine.RawField, len(s.Fields))
		for i, f := range s.Fields {
			out.Fields[i] = engine.RawField{Name: f.Name, Value: EncodeVariant(f.Value)}
		}
	}
	return out
}

func decodeStructure(raw engine.RawStructure, path []string) (Structure, error) {
	typeID, err := DecodeNodeID(raw.TypeID)
	if err != nil {
		return Structure{}, err
	}
	out := Structure{TypeID: typeID}
	if raw.Fields != nil {
		out.Fields = make([]Field, len(raw.Fields))
		for i, f := range raw.Fields {
			v, err := DecodeVariant(f.Value)
			if err != nil {
				return Structure{}, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err,
					fmt.Sprintf("structure field %q", f.Name))
			}
			out.Fields[i] = Field{Name: f.Name, Value: v}
		}
	}
	return out, nil
}

// EncodeArgument converts an Argument to the raw layout.
func EncodeArgument(a Argument) engine.RawArgument {
	return engine.RawArgument{
		Name:      a.Name,
		DataType:  EncodeNodeID(a.DataType),
		ValueRank: a.ValueRank,
		Description: engine.RawLocalizedText{
			Locale: a.Description.Locale,
			Text:   a.Description.Text,
		},
	}
}

// DecodeArgument converts the raw layout to an owned Argument.
func DecodeArgument(raw engine.RawArgument) (Argument, error) {
	dt, err := DecodeNodeID(raw.DataType)
	if err != nil {
		return Argument{}, err
	}
	return Argument{
		Name:        raw.Name,
		DataType:    dt,
		ValueRank:   raw.ValueRank,
		Description: LocalizedText{Locale: raw.Description.Locale, Text: raw.Description.Text},
	}, nil
}

// EncodeDataValue converts a DataValue to the raw layout.
func EncodeDataValue(d DataValue) engine.RawDataValue {
	out := engine.RawDataValue{
		Status:             uint32(d.Status),
		SourceTimestamp:    int64(d.SourceTimestamp),
		ServerTimestamp:    int64(d.ServerTimestamp),
		HasValue:           d.HasValue,
		HasStatus:          d.HasStatus,
		HasSourceTimestamp: d.HasSourceTimestamp,
		HasServerTimestamp: d.HasServerTimestamp,
	}
	if d.HasValue {
		out.Value = EncodeVariant(d.Value)
	}
	return out
}

// DecodeDataValue converts the raw layout to an owned DataValue.
func DecodeDataValue(raw engine.RawDataValue) (DataValue, error) {
	out := DataValue{
		Status:             StatusCode(raw.Status),
		SourceTimestamp:    DateTime(raw.SourceTimestamp),
		ServerTimestamp:    DateTime(raw.ServerTimestamp),
		HasValue:           raw.HasValue,
		HasStatus:          raw.HasStatus,
		HasSourceTimestamp: raw.HasSourceTimestamp,
		HasServerTimestamp: raw.HasServerTimestamp,
	}
	if raw.HasValue {
		v, err := DecodeVariant(raw.Value)
		if err != nil {
			return DataValue{}, err
		}
		out.Value = v
	}
	return out, nil
}

// DecodeReferenceDescription converts one raw browse entry.
func DecodeReferenceDescription(raw engine.RawReferenceDescription) (ReferenceDescription, error) {
	nodeID, err := DecodeExpandedNodeID(raw.NodeID)
	if err != nil {
		return ReferenceDescription{}, err
	}
	refType, err := DecodeNodeID(raw.ReferenceTypeID)
	if err != nil {
		return ReferenceDescription{}, err
	}
	typeDef, err := DecodeExpandedNodeID(raw.TypeDefinition)
	if err != nil {
		return ReferenceDescription{}, err
	}
	return ReferenceDescription{
		NodeID:          nodeID,
		ReferenceTypeID: refType,
		IsForward:       raw.IsForward,
		BrowseName:      QualifiedName{Namespace: raw.BrowseName.Namespace, Name: raw.BrowseName.Name},
		DisplayName:     LocalizedText{Locale: raw.DisplayName.Locale, Text: raw.DisplayName.Text},
		NodeClass:       NodeClass(raw.NodeClass),
		TypeDefinition:  typeDef,
	}, nil
}
