package ua

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opcfoundry/opcua-runtime/errors"
)

// Guid is the protocol's globally-unique identifier scalar.
type Guid struct {
	uuid.UUID
}

// NewGuid returns a freshly generated random Guid.
func NewGuid() Guid {
	return Guid{UUID: uuid.New()}
}

// ParseGuid parses the canonical textual form.
func ParseGuid(s string) (Guid, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return Guid{}, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "parse guid")
	}
	return Guid{UUID: id}, nil
}

// GuidFromBytes builds a Guid from its 16-byte wire form.
func GuidFromBytes(b []byte) (Guid, error) {
	id, err := uuid.FromBytes(b)
	if err != nil {
		return Guid{}, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "guid from bytes")
	}
	return Guid{UUID: id}, nil
}

// Bytes returns the 16-byte wire form.
func (g Guid) Bytes() [16]byte { return [16]byte(g.UUID) }

// ByteString is a fixed-size binary string. A nil ByteString is the
// protocol's invalid (unset) state; a non-nil, zero-length one is empty.
type ByteString []byte

// IsNull reports the invalid/unset state.
func (b ByteString) IsNull() bool { return b == nil }

// Clone returns an owned deep copy.
func (b ByteString) Clone() ByteString {
	if b == nil {
		return nil
	}
	out := make(ByteString, len(b))
	copy(out, b)
	return out
}

func (b ByteString) Equal(o ByteString) bool {
	if (b == nil) != (o == nil) {
		return false
	}
	return bytes.Equal(b, o)
}

// DateTime is the protocol timestamp: 100-nanosecond ticks since
// 1601-01-01T00:00:00Z.
type DateTime int64

// Offset in 100ns ticks between 1601-01-01 and the Unix epoch.
const dateTimeUnixEpoch = 116444736000000000

// DateTimeFromTime converts a time.Time.
func DateTimeFromTime(t time.Time) DateTime {
	if t.IsZero() {
		return 0
	}
	return DateTime(t.UnixNano()/100 + dateTimeUnixEpoch)
}

// DateTimeNow returns the current instant.
func DateTimeNow() DateTime { return DateTimeFromTime(time.Now()) }

// Time converts to time.Time. The zero DateTime converts to the zero
// time.Time.
func (d DateTime) Time() time.Time {
	if d == 0 {
		return time.Time{}
	}
	return time.Unix(0, (int64(d)-dateTimeUnixEpoch)*100).UTC()
}

func (d DateTime) String() string {
	if d == 0 {
		return "DateTime(unset)"
	}
	return d.Time().Format(time.RFC3339Nano)
}

// nodeIDKind discriminates the identifier representation inside a NodeID.
type nodeIDKind uint8

const (
	nodeIDNumeric nodeIDKind = iota
	nodeIDString
	nodeIDGuid
	nodeIDOpaque
)

// NodeID addresses an entity in a server's information model.
type NodeID struct {
	ns     uint16
	kind   nodeIDKind
	num    uint32
	str    string
	guid   Guid
	opaque ByteString
}

// NewNumericNodeID builds a numeric node id in the given namespace.
func NewNumericNodeID(ns uint16, id uint32) NodeID {
	return NodeID{ns: ns, kind: nodeIDNumeric, num: id}
}

// NS0 builds a numeric node id in namespace zero.
func NS0(id uint32) NodeID { return NewNumericNodeID(0, id) }

// NewStringNodeID builds a string node id.
func NewStringNodeID(ns uint16, id string) NodeID {
	return NodeID{ns: ns, kind: nodeIDString, str: id}
}

// NewGuidNodeID builds a GUID node id.
func NewGuidNodeID(ns uint16, id Guid) NodeID {
	return NodeID{ns: ns, kind: nodeIDGuid, guid: id}
}

// NewOpaqueNodeID builds an opaque (byte string) node id.
func NewOpaqueNodeID(ns uint16, id ByteString) NodeID {
	return NodeID{ns: ns, kind: nodeIDOpaque, opaque: id.Clone()}
}

// ParseNodeID parses the standard textual form, e.g. "ns=2;s=Demo.Temp"
// or "i=2258".
func ParseNodeID(s string) (NodeID, error) {
	rest := s
	var ns uint64
	if strings.HasPrefix(rest, "ns=") {
		semi := strings.IndexByte(rest, ';')
		if semi < 0 {
			return NodeID{}, errors.InvalidData(errors.PhaseDecode, nil, fmt.Sprintf("node id %q: missing identifier after namespace", s))
		}
		var err error
		ns, err = strconv.ParseUint(rest[3:semi], 10, 16)
		if err != nil {
			return NodeID{}, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, fmt.Sprintf("node id %q: namespace", s))
		}
		rest = rest[semi+1:]
	}

	switch {
	case strings.HasPrefix(rest, "i="):
		id, err := strconv.ParseUint(rest[2:], 10, 32)
		if err != nil {
			return NodeID{}, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, fmt.Sprintf("node id %q: numeric identifier", s))
		}
		return NewNumericNodeID(uint16(ns), uint32(id)), nil
	case strings.HasPrefix(rest, "s="):
		return NewStringNodeID(uint16(ns), rest[2:]), nil
	case strings.HasPrefix(rest, "g="):
		g, err := ParseGuid(rest[2:])
		if err != nil {
			return NodeID{}, err
		}
		return NewGuidNodeID(uint16(ns), g), nil
	default:
		return NodeID{}, errors.InvalidData(errors.PhaseDecode, nil, fmt.Sprintf("node id %q: unknown identifier form", s))
	}
}

// Namespace returns the namespace index.
func (n NodeID) Namespace() uint16 { return n.ns }

// IsNull reports the null node id (numeric 0 in namespace 0).
func (n NodeID) IsNull() bool {
	return n.kind == nodeIDNumeric && n.ns == 0 && n.num == 0
}

// Numeric returns the numeric identifier and whether the id is numeric.
func (n NodeID) Numeric() (uint32, bool) {
	return n.num, n.kind == nodeIDNumeric
}

func (n NodeID) Equal(o NodeID) bool {
	if n.ns != o.ns || n.kind != o.kind {
		return false
	}
	switch n.kind {
	case nodeIDNumeric:
		return n.num == o.num
	case nodeIDString:
		return n.str == o.str
	case nodeIDGuid:
		return n.guid == o.guid
	case nodeIDOpaque:
		return n.opaque.Equal(o.opaque)
	}
	return false
}

// Clone returns an owned deep copy.
func (n NodeID) Clone() NodeID {
	out := n
	out.opaque = n.opaque.Clone()
	return out
}

func (n NodeID) String() string {
	var b strings.Builder
	if n.ns != 0 {
		fmt.Fprintf(&b, "ns=%d;", n.ns)
	}
	switch n.kind {
	case nodeIDNumeric:
		fmt.Fprintf(&b, "i=%d", n.num)
	case nodeIDString:
		fmt.Fprintf(&b, "s=%s", n.str)
	case nodeIDGuid:
		fmt.Fprintf(&b, "g=%s", n.guid)
	case nodeIDOpaque:
		fmt.Fprintf(&b, "b=%x", []byte(n.opaque))
	}
	return b.String()
}

// ExpandedNodeID extends NodeID with an optional namespace URI and server
// index for cross-server references.
type ExpandedNodeID struct {
	NodeID       NodeID
	NamespaceURI string
	ServerIndex  uint32
}

func (e ExpandedNodeID) Equal(o ExpandedNodeID) bool {
	return e.NodeID.Equal(o.NodeID) && e.NamespaceURI == o.NamespaceURI && e.ServerIndex == o.ServerIndex
}

// Clone returns an owned deep copy.
func (e ExpandedNodeID) Clone() ExpandedNodeID {
	out := e
	out.NodeID = e.NodeID.Clone()
	return out
}

func (e ExpandedNodeID) String() string {
	if e.NamespaceURI == "" && e.ServerIndex == 0 {
		return e.NodeID.String()
	}
	return fmt.Sprintf("svr=%d;nsu=%s;%s", e.ServerIndex, e.NamespaceURI, e.NodeID)
}

// QualifiedName is a namespace-qualified browse name.
type QualifiedName struct {
	Namespace uint16
	Name      string
}

// NewQualifiedName builds a qualified name.
func NewQualifiedName(ns uint16, name string) QualifiedName {
	return QualifiedName{Namespace: ns, Name: name}
}

func (q QualifiedName) String() string {
	if q.Namespace == 0 {
		return q.Name
	}
	return fmt.Sprintf("%d:%s", q.Namespace, q.Name)
}

// LocalizedText is a locale-tagged human-readable string.
type LocalizedText struct {
	Locale string
	Text   string
}

// NewLocalizedText builds a localized text with the given locale.
func NewLocalizedText(locale, text string) LocalizedText {
	return LocalizedText{Locale: locale, Text: text}
}

func (l LocalizedText) String() string { return l.Text }

// ExtensionObject carries a structured value whose concrete type may be
// unknown to the decoder. TypeID names the encoding; Body is the opaque
// encoded payload. When the engine recognized the layout, Decoded holds
// the decoded Structure or Argument and Body may be empty.
type ExtensionObject struct {
	TypeID  NodeID
	Body    ByteString
	Decoded any
}

// Clone returns an owned deep copy.
func (e ExtensionObject) Clone() ExtensionObject {
	out := ExtensionObject{
		TypeID: e.TypeID.Clone(),
		Body:   e.Body.Clone(),
	}
	switch d := e.Decoded.(type) {
	case Structure:
		out.Decoded = d.Clone()
	case Argument:
		out.Decoded = d.Clone()
	default:
		out.Decoded = e.Decoded
	}
	return out
}

// Field is one ordered, named member of a Structure.
type Field struct {
	Name  string
	Value Variant
}

// Structure is a decoded structured record: the data type id plus its
// members in declaration order.
type Structure struct {
	TypeID NodeID
	Fields []Field
}

// FieldByName returns the named field's value.
func (s Structure) FieldByName(name string) (Variant, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Variant{}, false
}

// Clone returns an owned deep copy.
func (s Structure) Clone() Structure {
	out := Structure{TypeID: s.TypeID.Clone()}
	if s.Fields != nil {
		out.Fields = make([]Field, len(s.Fields))
		for i, f := range s.Fields {
			out.Fields[i] = Field{Name: f.Name, Value: f.Value.Clone()}
		}
	}
	return out
}

// Argument describes one input or output argument of a method node.
type Argument struct {
	Name        string
	DataType    NodeID
	ValueRank   int32
	Description LocalizedText
}

// Clone returns an owned deep copy.
func (a Argument) Clone() Argument {
	out := a
	out.DataType = a.DataType.Clone()
	return out
}

// NodeClass identifies what kind of entity a node is.
type NodeClass uint32

const (
	NodeClassObject        NodeClass = 1
	NodeClassVariable      NodeClass = 2
	NodeClassMethod        NodeClass = 4
	NodeClassObjectType    NodeClass = 8
	NodeClassVariableType  NodeClass = 16
	NodeClassReferenceType NodeClass = 32
	NodeClassDataType      NodeClass = 64
	NodeClassView          NodeClass = 128
)

func (c NodeClass) String() string {
	switch c {
	case NodeClassObject:
		return "Object"
	case NodeClassVariable:
		return "Variable"
	case NodeClassMethod:
		return "Method"
	case NodeClassObjectType:
		return "ObjectType"
	case NodeClassVariableType:
		return "VariableType"
	case NodeClassReferenceType:
		return "ReferenceType"
	case NodeClassDataType:
		return "DataType"
	case NodeClassView:
		return "View"
	}
	return fmt.Sprintf("NodeClass(%d)", uint32(c))
}

// ReferenceDescription is one entry of a browse result.
type ReferenceDescription struct {
	NodeID          ExpandedNodeID
	ReferenceTypeID NodeID
	IsForward       bool
	BrowseName      QualifiedName
	DisplayName     LocalizedText
	NodeClass       NodeClass
	TypeDefinition  ExpandedNodeID
}

// Well-known namespace-zero node ids used throughout the binding.
var (
	NodeIDRootFolder    = NS0(84)
	NodeIDObjectsFolder = NS0(85)
	NodeIDTypesFolder   = NS0(86)
	NodeIDViewsFolder   = NS0(87)
	NodeIDServer        = NS0(2253)
	NodeIDServerStatus  = NS0(2256)
	NodeIDCurrentTime   = NS0(2258)

	NodeIDOrganizes     = NS0(35)
	NodeIDHasComponent  = NS0(47)
	NodeIDHasProperty   = NS0(46)
	NodeIDFolderType    = NS0(61)
	NodeIDBaseValueType = NS0(24)
)
