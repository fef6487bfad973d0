package enginetest

import (
	"fmt"
	"sync"
	"time"

	"github.com/opcfoundry/opcua-runtime/engine"
	"github.com/opcfoundry/opcua-runtime/ua"
)

func keyOf(id engine.RawNodeID) string {
	switch id.IDType {
	case 1:
		return fmt.Sprintf("ns=%d;s=%s", id.Namespace, id.Text)
	case 2:
		return fmt.Sprintf("ns=%d;g=%x", id.Namespace, id.Bytes)
	case 3:
		return fmt.Sprintf("ns=%d;b=%x", id.Namespace, id.Bytes)
	default:
		return fmt.Sprintf("ns=%d;i=%d", id.Namespace, id.Numeric)
	}
}

type node struct {
	id             engine.RawNodeID
	class          uint32
	browseName     engine.RawQualifiedName
	displayName    engine.RawLocalizedText
	description    engine.RawLocalizedText
	typeDefinition engine.RawNodeID

	// variable attributes
	value       engine.RawDataValue
	dataType    engine.RawNodeID
	accessLevel uint8

	// method attributes
	executable bool
	method     engine.MethodFunc

	dataSource *engine.DataSourceFuncs

	refs []engine.RawReferenceDescription
}

// WriteObserver is notified after every value write, including writes
// through data sources. Observers run under the space lock and must not
// call back into the space.
type WriteObserver func(id engine.RawNodeID, value engine.RawDataValue)

// Space is the in-memory address space shared by the test engines. All
// methods are safe for concurrent use.
type Space struct {
	mu        sync.Mutex
	nodes     map[string]*node
	observers []WriteObserver
}

// NewSpace creates an address space pre-populated with the standard
// root, objects and server entries plus a live CurrentTime variable.
func NewSpace() *Space {
	s := &Space{nodes: make(map[string]*node)}

	root := engine.RawNodeID{Numeric: 84}
	objects := engine.RawNodeID{Numeric: 85}
	server := engine.RawNodeID{Numeric: 2253}
	currentTime := engine.RawNodeID{Numeric: 2258}
	organizes := engine.RawNodeID{Numeric: 35}
	hasComponent := engine.RawNodeID{Numeric: 47}

	s.addNode(&node{
		id: root, class: engine.NodeClassObject,
		browseName:  engine.RawQualifiedName{Name: "Root"},
		displayName: engine.RawLocalizedText{Text: "Root"},
	})
	s.addNode(&node{
		id: objects, class: engine.NodeClassObject,
		browseName:  engine.RawQualifiedName{Name: "Objects"},
		displayName: engine.RawLocalizedText{Text: "Objects"},
	})
	s.addNode(&node{
		id: server, class: engine.NodeClassObject,
		browseName:  engine.RawQualifiedName{Name: "Server"},
		displayName: engine.RawLocalizedText{Text: "Server"},
	})
	s.addNode(&node{
		id: currentTime, class: engine.NodeClassVariable,
		browseName:  engine.RawQualifiedName{Name: "CurrentTime"},
		displayName: engine.RawLocalizedText{Text: "CurrentTime"},
		dataType:    engine.RawNodeID{Numeric: uint32(ua.TypeDateTime)},
		accessLevel: 1,
		dataSource: &engine.DataSourceFuncs{
			Read: func(engine.SessionInfo, engine.RawNodeID) (engine.RawDataValue, uint32) {
				ticks := int64(ua.DateTimeFromTime(time.Now()))
				return engine.RawDataValue{
					Value: engine.Raw{
						TypeID: uint32(ua.TypeDateTime),
						Form:   engine.FormScalar,
						Scalar: ticks,
					},
					HasValue:           true,
					Status:             engine.StatusGood,
					HasStatus:          true,
					SourceTimestamp:    ticks,
					HasSourceTimestamp: true,
				}, engine.StatusGood
			},
		},
	})

	s.link(root, organizes, objects)
	s.link(objects, organizes, server)
	s.link(server, hasComponent, currentTime)
	return s
}

// Observe registers a write observer.
func (s *Space) Observe(fn WriteObserver) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

func (s *Space) addNode(n *node) {
	s.nodes[keyOf(n.id)] = n
}

func (s *Space) link(source, refType, target engine.RawNodeID) {
	src := s.nodes[keyOf(source)]
	tgt := s.nodes[keyOf(target)]
	src.refs = append(src.refs, engine.RawReferenceDescription{
		NodeID:          engine.RawExpandedNodeID{NodeID: target},
		ReferenceTypeID: refType,
		IsForward:       true,
		BrowseName:      tgt.browseName,
		DisplayName:     tgt.displayName,
		NodeClass:       tgt.class,
		TypeDefinition:  engine.RawExpandedNodeID{NodeID: tgt.typeDefinition},
	})
}

// AddNode inserts a node per its definition and wires the parent
// reference. Duplicate ids and missing parents are rejected.
func (s *Space) AddNode(def engine.NodeDefinition) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(def.RequestedID)
	if _, exists := s.nodes[k]; exists {
		return uint32(ua.StatusBadNodeIDExists)
	}
	parent, ok := s.nodes[keyOf(def.ParentID)]
	if !ok {
		return uint32(ua.StatusBadSourceNodeIDInvalid)
	}

	n := &node{
		id:             def.RequestedID,
		class:          def.NodeClass,
		browseName:     def.BrowseName,
		typeDefinition: def.TypeDefinition,
	}
	switch attrs := def.Attributes.(type) {
	case engine.RawObjectAttributes:
		n.displayName = attrs.DisplayName
		n.description = attrs.Description
	case engine.RawVariableAttributes:
		n.displayName = attrs.DisplayName
		n.description = attrs.Description
		n.dataType = attrs.DataType
		n.accessLevel = attrs.AccessLevel
		n.value = engine.RawDataValue{
			Value:     attrs.Value,
			HasValue:  attrs.Value.Form != engine.FormEmpty,
			Status:    engine.StatusGood,
			HasStatus: true,
		}
	case engine.RawMethodAttributes:
		n.displayName = attrs.DisplayName
		n.description = attrs.Description
		n.executable = attrs.Executable
	default:
		return uint32(ua.StatusBadInvalidArgument)
	}

	s.nodes[k] = n
	parent.refs = append(parent.refs, engine.RawReferenceDescription{
		NodeID:          engine.RawExpandedNodeID{NodeID: def.RequestedID},
		ReferenceTypeID: def.ReferenceTypeID,
		IsForward:       true,
		BrowseName:      n.browseName,
		DisplayName:     n.displayName,
		NodeClass:       n.class,
		TypeDefinition:  engine.RawExpandedNodeID{NodeID: n.typeDefinition},
	})
	return engine.StatusGood
}

// DeleteNode removes a node and every reference to it.
func (s *Space) DeleteNode(id engine.RawNodeID) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(id)
	if _, ok := s.nodes[k]; !ok {
		return uint32(ua.StatusBadNodeIDUnknown)
	}
	delete(s.nodes, k)
	for _, n := range s.nodes {
		kept := n.refs[:0]
		for _, r := range n.refs {
			if keyOf(r.NodeID.NodeID) != k {
				kept = append(kept, r)
			}
		}
		n.refs = kept
	}
	return engine.StatusGood
}

// AddReference links source to target.
func (s *Space) AddReference(source, refType engine.RawNodeID, target engine.RawExpandedNodeID, forward bool) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.nodes[keyOf(source)]
	if !ok {
		return uint32(ua.StatusBadSourceNodeIDInvalid)
	}
	tgt, ok := s.nodes[keyOf(target.NodeID)]
	if !ok {
		return uint32(ua.StatusBadTargetNodeIDInvalid)
	}
	src.refs = append(src.refs, engine.RawReferenceDescription{
		NodeID:          target,
		ReferenceTypeID: refType,
		IsForward:       forward,
		BrowseName:      tgt.browseName,
		DisplayName:     tgt.displayName,
		NodeClass:       tgt.class,
		TypeDefinition:  engine.RawExpandedNodeID{NodeID: tgt.typeDefinition},
	})
	return engine.StatusGood
}

// DeleteReference removes the matching link.
func (s *Space) DeleteReference(source, refType engine.RawNodeID, target engine.RawExpandedNodeID, forward bool) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.nodes[keyOf(source)]
	if !ok {
		return uint32(ua.StatusBadSourceNodeIDInvalid)
	}
	for i, r := range src.refs {
		if keyOf(r.NodeID.NodeID) == keyOf(target.NodeID) &&
			keyOf(r.ReferenceTypeID) == keyOf(refType) &&
			r.IsForward == forward {
			src.refs = append(src.refs[:i], src.refs[i+1:]...)
			return engine.StatusGood
		}
	}
	return uint32(ua.StatusBadNoMatch)
}

// WriteValue stores a variable's value and notifies write observers.
func (s *Space) WriteValue(id engine.RawNodeID, value engine.RawDataValue) uint32 {
	s.mu.Lock()
	n, ok := s.nodes[keyOf(id)]
	if !ok {
		s.mu.Unlock()
		return uint32(ua.StatusBadNodeIDUnknown)
	}
	if n.class != engine.NodeClassVariable {
		s.mu.Unlock()
		return uint32(ua.StatusBadNotWritable)
	}
	if n.dataSource != nil {
		ds := n.dataSource
		s.mu.Unlock()
		if ds.Write == nil {
			return uint32(ua.StatusBadNotWritable)
		}
		if status := ds.Write(engine.SessionInfo{}, id, value); engine.IsBad(status) {
			return status
		}
		s.notifyWrite(id, value)
		return engine.StatusGood
	}
	n.value = value
	observers := append([]WriteObserver(nil), s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(id, value)
	}
	return engine.StatusGood
}

func (s *Space) notifyWrite(id engine.RawNodeID, value engine.RawDataValue) {
	s.mu.Lock()
	observers := append([]WriteObserver(nil), s.observers...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(id, value)
	}
}

// ReadValue returns a variable's current value.
func (s *Space) ReadValue(id engine.RawNodeID) (engine.RawDataValue, uint32) {
	s.mu.Lock()
	n, ok := s.nodes[keyOf(id)]
	if !ok {
		s.mu.Unlock()
		return engine.RawDataValue{}, uint32(ua.StatusBadNodeIDUnknown)
	}
	if n.dataSource != nil && n.dataSource.Read != nil {
		ds := n.dataSource
		s.mu.Unlock()
		return ds.Read(engine.SessionInfo{}, id)
	}
	v := n.value
	s.mu.Unlock()
	return v, engine.StatusGood
}

// ReadAttribute reads one attribute of one node.
func (s *Space) ReadAttribute(rv engine.ReadValueID) engine.RawDataValue {
	if rv.AttributeID == engine.AttributeValue {
		v, status := s.ReadValue(rv.NodeID)
		if engine.IsBad(status) {
			return engine.RawDataValue{Status: status, HasStatus: true}
		}
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[keyOf(rv.NodeID)]
	if !ok {
		return engine.RawDataValue{Status: uint32(ua.StatusBadNodeIDUnknown), HasStatus: true}
	}

	var raw engine.Raw
	switch rv.AttributeID {
	case engine.AttributeNodeID:
		raw = engine.Raw{TypeID: uint32(ua.TypeNodeID), Form: engine.FormScalar, Scalar: n.id}
	case engine.AttributeNodeClass:
		raw = engine.Raw{TypeID: uint32(ua.TypeInt32), Form: engine.FormScalar, Scalar: int32(n.class)}
	case engine.AttributeBrowseName:
		raw = engine.Raw{TypeID: uint32(ua.TypeQualifiedName), Form: engine.FormScalar, Scalar: n.browseName}
	case engine.AttributeDisplayName:
		raw = engine.Raw{TypeID: uint32(ua.TypeLocalizedText), Form: engine.FormScalar, Scalar: n.displayName}
	case engine.AttributeDescription:
		raw = engine.Raw{TypeID: uint32(ua.TypeLocalizedText), Form: engine.FormScalar, Scalar: n.description}
	case engine.AttributeDataType:
		raw = engine.Raw{TypeID: uint32(ua.TypeNodeID), Form: engine.FormScalar, Scalar: n.dataType}
	case engine.AttributeAccessLevel:
		raw = engine.Raw{TypeID: uint32(ua.TypeByte), Form: engine.FormScalar, Scalar: n.accessLevel}
	case engine.AttributeExecutable:
		raw = engine.Raw{TypeID: uint32(ua.TypeBoolean), Form: engine.FormScalar, Scalar: n.executable}
	default:
		return engine.RawDataValue{Status: uint32(ua.StatusBadAttributeIDInvalid), HasStatus: true}
	}
	return engine.RawDataValue{
		Value:     raw,
		HasValue:  true,
		Status:    engine.StatusGood,
		HasStatus: true,
	}
}

// Browse returns the references of one node matching the description.
func (s *Space) Browse(desc engine.BrowseDescription) ([]engine.RawReferenceDescription, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[keyOf(desc.NodeID)]
	if !ok {
		return nil, uint32(ua.StatusBadNodeIDUnknown)
	}

	wantRef := keyOf(desc.ReferenceTypeID)
	all := wantRef == keyOf(engine.RawNodeID{})
	out := make([]engine.RawReferenceDescription, 0, len(n.refs))
	for _, r := range n.refs {
		if desc.Direction == engine.BrowseDirectionForward && !r.IsForward {
			continue
		}
		if desc.Direction == engine.BrowseDirectionInverse && r.IsForward {
			continue
		}
		if !all && keyOf(r.ReferenceTypeID) != wantRef {
			continue
		}
		if desc.NodeClassMask != 0 && desc.NodeClassMask&r.NodeClass == 0 {
			continue
		}
		out = append(out, r)
	}
	return out, engine.StatusGood
}

// Translate resolves one browse path to target node ids.
func (s *Space) Translate(path engine.BrowsePath) engine.BrowsePathResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.nodes[keyOf(path.StartingNode)]
	if !ok {
		return engine.BrowsePathResult{StatusCode: uint32(ua.StatusBadNodeIDUnknown)}
	}
	for _, el := range path.Elements {
		var next *node
		for _, r := range current.refs {
			if r.IsForward == el.IsInverse {
				continue
			}
			if r.BrowseName.Namespace == el.TargetName.Namespace &&
				r.BrowseName.Name == el.TargetName.Name {
				next = s.nodes[keyOf(r.NodeID.NodeID)]
				break
			}
		}
		if next == nil {
			return engine.BrowsePathResult{StatusCode: uint32(ua.StatusBadNoMatch)}
		}
		current = next
	}
	return engine.BrowsePathResult{
		StatusCode: engine.StatusGood,
		Targets: []engine.BrowsePathTarget{{
			TargetID:           engine.RawExpandedNodeID{NodeID: current.id},
			RemainingPathIndex: 0xFFFFFFFF,
		}},
	}
}

// Call invokes a method node's handler.
func (s *Space) Call(req engine.CallMethodRequest) engine.CallMethodResult {
	s.mu.Lock()
	m, ok := s.nodes[keyOf(req.MethodID)]
	if !ok || m.class != engine.NodeClassMethod {
		s.mu.Unlock()
		return engine.CallMethodResult{StatusCode: uint32(ua.StatusBadMethodInvalid)}
	}
	fn := m.method
	s.mu.Unlock()

	if fn == nil {
		return engine.CallMethodResult{StatusCode: uint32(ua.StatusBadNotSupported)}
	}
	out, status := fn(engine.SessionInfo{}, req.ObjectID, req.InputArguments)
	return engine.CallMethodResult{StatusCode: status, OutputArguments: out}
}

// RegisterDataSource backs a variable node with callbacks.
func (s *Space) RegisterDataSource(id engine.RawNodeID, ds engine.DataSourceFuncs) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[keyOf(id)]
	if !ok {
		return uint32(ua.StatusBadNodeIDUnknown)
	}
	if n.class != engine.NodeClassVariable {
		return uint32(ua.StatusBadNodeIDInvalid)
	}
	n.dataSource = &ds
	return engine.StatusGood
}

// RegisterMethod attaches a handler to a method node.
func (s *Space) RegisterMethod(id engine.RawNodeID, fn engine.MethodFunc) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[keyOf(id)]
	if !ok {
		return uint32(ua.StatusBadNodeIDUnknown)
	}
	if n.class != engine.NodeClassMethod {
		return uint32(ua.StatusBadMethodInvalid)
	}
	n.method = fn
	return engine.StatusGood
}

// Has reports whether a node exists.
func (s *Space) Has(id engine.RawNodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nodes[keyOf(id)]
	return ok
}
