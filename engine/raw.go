package engine

// Raw is the engine's value representation as handed to and received from
// its encode/decode primitives. It mirrors the foreign variant layout: a
// numeric data type id plus either a single scalar payload or an array.
//
// Arrays distinguish three states, matching the foreign memory layout where
// a null data pointer means "invalid/undefined" and a sentinel pointer
// means "empty": FormArrayNull, FormArrayEmpty and FormArray. Decoders must
// never collapse these states into one another.
//
// The payloads referenced by a Raw are owned by the engine only until the
// callback that delivered them returns. Consumers copy what they keep; the
// ua package's decoder does exactly that.
type Raw struct {
	TypeID   uint32
	Form     Form
	Scalar   any   // payload when Form == FormScalar
	Elements []any // payloads when Form == FormArray, len >= 1
}

// Form discriminates the shape of a Raw value.
type Form uint8

const (
	FormEmpty      Form = iota // no value set
	FormScalar                 // single scalar payload
	FormArrayNull              // array with null data pointer (invalid)
	FormArrayEmpty             // array with sentinel pointer (length zero)
	FormArray                  // array with one or more elements
)

func (f Form) String() string {
	switch f {
	case FormEmpty:
		return "empty"
	case FormScalar:
		return "scalar"
	case FormArrayNull:
		return "array-null"
	case FormArrayEmpty:
		return "array-empty"
	case FormArray:
		return "array"
	}
	return "unknown"
}

// StatusGood is the all-clear protocol status code.
const StatusGood uint32 = 0x00000000

// Scalar payload types. Numeric and boolean payloads use the plain Go
// types (bool, int8 ... float64, string for UTF-8 strings, int64 ticks for
// timestamps, [16]byte for GUIDs). Composite payloads use the structs
// below.

// RawString carries a string or byte-string payload. A nil Data with Null
// set represents the invalid (unset) state, distinct from a present,
// zero-length value.
type RawString struct {
	Data []byte
	Null bool
}

// RawNodeID is the foreign node identifier layout.
type RawNodeID struct {
	Namespace uint16
	IDType    uint8 // 0 numeric, 1 string, 2 GUID, 3 opaque
	Numeric   uint32
	Text      string
	Bytes     []byte // GUID (16 bytes) or opaque identifier
}

// RawExpandedNodeID extends RawNodeID with server scope.
type RawExpandedNodeID struct {
	NodeID       RawNodeID
	NamespaceURI string
	ServerIndex  uint32
}

// RawQualifiedName is a namespace-qualified browse name.
type RawQualifiedName struct {
	Namespace uint16
	Name      string
}

// RawLocalizedText is a locale-tagged display string.
type RawLocalizedText struct {
	Locale string
	Text   string
}

// RawExtensionObject carries a structure whose concrete type may be
// unknown to the decoder: encoding type id plus opaque encoded body.
// When the engine recognized the layout it also attaches the decoded
// payload (a RawStructure or RawArgument) alongside the body.
type RawExtensionObject struct {
	TypeID  RawNodeID
	Body    []byte
	Decoded any
}

// RawField is one named member of a decoded structure.
type RawField struct {
	Name  string
	Value Raw
}

// RawStructure is a decoded structure: data type id plus ordered fields.
type RawStructure struct {
	TypeID RawNodeID
	Fields []RawField
}

// RawArgument describes one method argument.
type RawArgument struct {
	Name        string
	DataType    RawNodeID
	ValueRank   int32
	Description RawLocalizedText
}

// RawDataValue is a value with status and timestamps. The Has flags mirror
// the foreign bit fields indicating which members are set.
type RawDataValue struct {
	Value              Raw
	Status             uint32
	SourceTimestamp    int64 // 100ns ticks since 1601-01-01, when set
	ServerTimestamp    int64
	HasValue           bool
	HasStatus          bool
	HasSourceTimestamp bool
	HasServerTimestamp bool
}

// RawReferenceDescription is one browse result entry.
type RawReferenceDescription struct {
	NodeID          RawExpandedNodeID
	ReferenceTypeID RawNodeID
	IsForward       bool
	BrowseName      RawQualifiedName
	DisplayName     RawLocalizedText
	NodeClass       uint32
	TypeDefinition  RawExpandedNodeID
}
