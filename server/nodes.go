package server

import (
	"time"

	"github.com/opcfoundry/opcua-runtime/engine"
	"github.com/opcfoundry/opcua-runtime/errors"
	"github.com/opcfoundry/opcua-runtime/ua"
)

// ObjectAttributes describes an object node.
type ObjectAttributes struct {
	DisplayName   ua.LocalizedText
	Description   ua.LocalizedText
	EventNotifier uint8
}

// VariableAttributes describes a variable node.
type VariableAttributes struct {
	DisplayName             ua.LocalizedText
	Description             ua.LocalizedText
	Value                   ua.Variant
	DataType                ua.NodeID
	ValueRank               int32
	AccessLevel             uint8
	MinimumSamplingInterval time.Duration
}

// MethodAttributes describes a method node.
type MethodAttributes struct {
	DisplayName     ua.LocalizedText
	Description     ua.LocalizedText
	Executable      bool
	InputArguments  []ua.Argument
	OutputArguments []ua.Argument
}

// NodeSpec places a new node in the address space.
type NodeSpec struct {
	NodeID          ua.NodeID
	ParentID        ua.NodeID
	ReferenceTypeID ua.NodeID
	BrowseName      ua.QualifiedName
	TypeDefinition  ua.NodeID
}

// Session identifies the client a server-side callback runs for.
type Session struct {
	ID     ua.NodeID
	UserID string
}

func decodeSession(raw engine.SessionInfo) Session {
	id, err := ua.DecodeNodeID(raw.SessionID)
	if err != nil {
		id = ua.NodeID{}
	}
	return Session{ID: id, UserID: raw.ClientUserID}
}

// DataSource backs a variable node with callbacks instead of a stored
// value. Both run on the server's loop goroutine and must not block or
// call back into the server.
type DataSource struct {
	Read  func(session Session, node ua.NodeID) (ua.DataValue, ua.StatusCode)
	Write func(session Session, node ua.NodeID, value ua.DataValue) ua.StatusCode
}

// MethodCallback handles invocation of a method node. Same execution
// constraints as DataSource.
type MethodCallback func(session Session, object ua.NodeID, input []ua.Variant) ([]ua.Variant, ua.StatusCode)

// AddObjectNode adds an object node under spec.ParentID.
func (s *Server) AddObjectNode(spec NodeSpec, attrs ObjectAttributes) error {
	def := s.nodeDefinition(spec, engine.NodeClassObject, engine.RawObjectAttributes{
		DisplayName:   engine.RawLocalizedText{Locale: attrs.DisplayName.Locale, Text: attrs.DisplayName.Text},
		Description:   engine.RawLocalizedText{Locale: attrs.Description.Locale, Text: attrs.Description.Text},
		EventNotifier: attrs.EventNotifier,
	})
	return s.execChecked(errors.PhaseServer, func() uint32 { return s.eng.AddNode(def) })
}

// AddVariableNode adds a variable node holding a stored value.
func (s *Server) AddVariableNode(spec NodeSpec, attrs VariableAttributes) error {
	def := s.nodeDefinition(spec, engine.NodeClassVariable, engine.RawVariableAttributes{
		DisplayName:             engine.RawLocalizedText{Locale: attrs.DisplayName.Locale, Text: attrs.DisplayName.Text},
		Description:             engine.RawLocalizedText{Locale: attrs.Description.Locale, Text: attrs.Description.Text},
		Value:                   ua.EncodeVariant(attrs.Value),
		DataType:                ua.EncodeNodeID(attrs.DataType),
		ValueRank:               attrs.ValueRank,
		AccessLevel:             attrs.AccessLevel,
		MinimumSamplingInterval: float64(attrs.MinimumSamplingInterval) / float64(time.Millisecond),
	})
	return s.execChecked(errors.PhaseServer, func() uint32 { return s.eng.AddNode(def) })
}

// AddDataSourceVariableNode adds a variable node whose value lives
// behind ds callbacks.
func (s *Server) AddDataSourceVariableNode(spec NodeSpec, attrs VariableAttributes, ds DataSource) error {
	if err := s.AddVariableNode(spec, attrs); err != nil {
		return err
	}
	raw := engine.DataSourceFuncs{}
	if ds.Read != nil {
		read := ds.Read
		raw.Read = func(session engine.SessionInfo, nodeID engine.RawNodeID) (engine.RawDataValue, uint32) {
			node, err := ua.DecodeNodeID(nodeID)
			if err != nil {
				return engine.RawDataValue{}, uint32(ua.StatusBadNodeIDInvalid)
			}
			dv, status := read(decodeSession(session), node)
			return ua.EncodeDataValue(dv), uint32(status)
		}
	}
	if ds.Write != nil {
		write := ds.Write
		raw.Write = func(session engine.SessionInfo, nodeID engine.RawNodeID, value engine.RawDataValue) uint32 {
			node, err := ua.DecodeNodeID(nodeID)
			if err != nil {
				return uint32(ua.StatusBadNodeIDInvalid)
			}
			dv, err := ua.DecodeDataValue(value)
			if err != nil {
				return uint32(ua.StatusBadTypeMismatch)
			}
			return uint32(write(decodeSession(session), node, dv))
		}
	}
	id := ua.EncodeNodeID(spec.NodeID)
	return s.execChecked(errors.PhaseServer, func() uint32 {
		return s.eng.RegisterDataSource(id, raw)
	})
}

// AddMethodNode adds a method node and binds its callback.
func (s *Server) AddMethodNode(spec NodeSpec, attrs MethodAttributes, cb MethodCallback) error {
	rawIn := make([]engine.RawArgument, len(attrs.InputArguments))
	for i, a := range attrs.InputArguments {
		rawIn[i] = ua.EncodeArgument(a)
	}
	rawOut := make([]engine.RawArgument, len(attrs.OutputArguments))
	for i, a := range attrs.OutputArguments {
		rawOut[i] = ua.EncodeArgument(a)
	}
	def := s.nodeDefinition(spec, engine.NodeClassMethod, engine.RawMethodAttributes{
		DisplayName:     engine.RawLocalizedText{Locale: attrs.DisplayName.Locale, Text: attrs.DisplayName.Text},
		Description:     engine.RawLocalizedText{Locale: attrs.Description.Locale, Text: attrs.Description.Text},
		Executable:      attrs.Executable,
		InputArguments:  rawIn,
		OutputArguments: rawOut,
	})
	if err := s.execChecked(errors.PhaseServer, func() uint32 { return s.eng.AddNode(def) }); err != nil {
		return err
	}
	if cb == nil {
		return nil
	}

	fn := func(session engine.SessionInfo, objectID engine.RawNodeID, input []engine.Raw) ([]engine.Raw, uint32) {
		object, err := ua.DecodeNodeID(objectID)
		if err != nil {
			return nil, uint32(ua.StatusBadNodeIDInvalid)
		}
		in := make([]ua.Variant, len(input))
		for i, raw := range input {
			v, err := ua.DecodeVariant(raw)
			if err != nil {
				return nil, uint32(ua.StatusBadInvalidArgument)
			}
			in[i] = v
		}
		out, status := cb(decodeSession(session), object, in)
		if status.IsBad() {
			return nil, uint32(status)
		}
		rawOut := make([]engine.Raw, len(out))
		for i, v := range out {
			rawOut[i] = ua.EncodeVariant(v)
		}
		return rawOut, uint32(status)
	}
	id := ua.EncodeNodeID(spec.NodeID)
	return s.execChecked(errors.PhaseServer, func() uint32 {
		return s.eng.RegisterMethod(id, fn)
	})
}

// DeleteNode removes a node and its references.
func (s *Server) DeleteNode(id ua.NodeID) error {
	raw := ua.EncodeNodeID(id)
	return s.execChecked(errors.PhaseServer, func() uint32 { return s.eng.DeleteNode(raw) })
}

// AddReference links source to target.
func (s *Server) AddReference(source, referenceType, target ua.NodeID, forward bool) error {
	src := ua.EncodeNodeID(source)
	ref := ua.EncodeNodeID(referenceType)
	tgt := engine.RawExpandedNodeID{NodeID: ua.EncodeNodeID(target)}
	return s.execChecked(errors.PhaseServer, func() uint32 {
		return s.eng.AddReference(src, ref, tgt, forward)
	})
}

// DeleteReference removes a link.
func (s *Server) DeleteReference(source, referenceType, target ua.NodeID, forward bool) error {
	src := ua.EncodeNodeID(source)
	ref := ua.EncodeNodeID(referenceType)
	tgt := engine.RawExpandedNodeID{NodeID: ua.EncodeNodeID(target)}
	return s.execChecked(errors.PhaseServer, func() uint32 {
		return s.eng.DeleteReference(src, ref, tgt, forward)
	})
}

// WriteValue updates a variable's value in-process, triggering
// monitored-item sampling like a remote write.
func (s *Server) WriteValue(id ua.NodeID, value ua.Variant) error {
	raw := ua.EncodeNodeID(id)
	dv := ua.EncodeDataValue(ua.NewDataValue(value))
	return s.execChecked(errors.PhaseServer, func() uint32 {
		return s.eng.WriteValue(raw, dv)
	})
}

// ReadValue returns a variable's current value.
func (s *Server) ReadValue(id ua.NodeID) (ua.DataValue, error) {
	raw := ua.EncodeNodeID(id)
	var rawValue engine.RawDataValue
	err := s.execChecked(errors.PhaseServer, func() uint32 {
		var status uint32
		rawValue, status = s.eng.ReadValue(raw)
		return status
	})
	if err != nil {
		return ua.DataValue{}, err
	}
	return ua.DecodeDataValue(rawValue)
}

func (s *Server) nodeDefinition(spec NodeSpec, class uint32, attrs any) engine.NodeDefinition {
	return engine.NodeDefinition{
		NodeClass:       class,
		RequestedID:     ua.EncodeNodeID(spec.NodeID),
		ParentID:        ua.EncodeNodeID(spec.ParentID),
		ReferenceTypeID: ua.EncodeNodeID(spec.ReferenceTypeID),
		BrowseName:      engine.RawQualifiedName{Namespace: spec.BrowseName.Namespace, Name: spec.BrowseName.Name},
		TypeDefinition:  ua.EncodeNodeID(spec.TypeDefinition),
		Attributes:      attrs,
	}
}
