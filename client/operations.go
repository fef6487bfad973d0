package client

import (
	"context"

	"github.com/opcfoundry/opcua-runtime/engine"
	"github.com/opcfoundry/opcua-runtime/errors"
	"github.com/opcfoundry/opcua-runtime/ua"
)

// Attribute ids accepted by ReadAttribute and WriteAttribute.
const (
	AttributeNodeID      = engine.AttributeNodeID
	AttributeNodeClass   = engine.AttributeNodeClass
	AttributeBrowseName  = engine.AttributeBrowseName
	AttributeDisplayName = engine.AttributeDisplayName
	AttributeDescription = engine.AttributeDescription
	AttributeValue       = engine.AttributeValue
	AttributeDataType    = engine.AttributeDataType
	AttributeAccessLevel = engine.AttributeAccessLevel
	AttributeExecutable  = engine.AttributeExecutable
)

// ReadSpec names one attribute of one node for a batched read.
type ReadSpec struct {
	NodeID      ua.NodeID
	AttributeID uint32
}

// WriteSpec names one attribute of one node and the value to write.
type WriteSpec struct {
	NodeID      ua.NodeID
	AttributeID uint32
	Value       ua.DataValue
}

// ReadAttribute reads one attribute. The returned DataValue carries the
// per-node status; a Bad status there is not an error return, matching
// the service's partial-failure semantics.
func (c *Client) ReadAttribute(ctx context.Context, node ua.NodeID, attributeID uint32) (ua.DataValue, error) {
	results, err := c.ReadMany(ctx, []ReadSpec{{NodeID: node, AttributeID: attributeID}})
	if err != nil {
		return ua.DataValue{}, err
	}
	return results[0], nil
}

// ReadValue reads a variable's value attribute, failing on a Bad
// per-node status.
func (c *Client) ReadValue(ctx context.Context, node ua.NodeID) (ua.Variant, error) {
	dv, err := c.ReadAttribute(ctx, node, AttributeValue)
	if err != nil {
		return ua.Variant{}, err
	}
	if dv.HasStatus && dv.Status.IsBad() {
		return ua.Variant{}, errors.BadStatus(errors.PhaseRequest, uint32(dv.Status), dv.Status.Name())
	}
	return dv.Value, nil
}

// ReadMany reads a batch of attributes in one service call. The result
// slice parallels specs.
func (c *Client) ReadMany(ctx context.Context, specs []ReadSpec) ([]ua.DataValue, error) {
	if len(specs) == 0 {
		return nil, errors.InvalidData(errors.PhaseRequest, nil, "nothing to read")
	}
	req := engine.ReadRequest{NodesToRead: make([]engine.ReadValueID, len(specs))}
	for i, s := range specs {
		req.NodesToRead[i] = engine.ReadValueID{
			NodeID:      ua.EncodeNodeID(s.NodeID),
			AttributeID: s.AttributeID,
		}
	}

	resp, err := c.roundTrip(ctx, errors.PhaseRequest, req)
	if err != nil {
		return nil, err
	}
	rr, ok := resp.(engine.ReadResponse)
	if !ok {
		return nil, errors.Internal(errors.PhaseRequest, "read completed with mismatched response type")
	}
	if len(rr.Results) != len(specs) {
		return nil, errors.Internal(errors.PhaseRequest, "read result count does not match request")
	}

	out := make([]ua.DataValue, len(rr.Results))
	for i, raw := range rr.Results {
		dv, err := ua.DecodeDataValue(raw)
		if err != nil {
			return nil, err
		}
		out[i] = dv
	}
	return out, nil
}

// WriteValue writes a variable's value attribute.
func (c *Client) WriteValue(ctx context.Context, node ua.NodeID, value ua.Variant) error {
	return c.WriteAttribute(ctx, node, AttributeValue, ua.NewDataValue(value))
}

// WriteAttribute writes one attribute, failing on a Bad per-node status.
func (c *Client) WriteAttribute(ctx context.Context, node ua.NodeID, attributeID uint32, value ua.DataValue) error {
	results, err := c.WriteMany(ctx, []WriteSpec{{NodeID: node, AttributeID: attributeID, Value: value}})
	if err != nil {
		return err
	}
	if results[0].IsBad() {
		return errors.BadStatus(errors.PhaseRequest, uint32(results[0]), results[0].Name())
	}
	return nil
}

// WriteMany writes a batch of attributes in one service call and
// returns the per-node status codes.
func (c *Client) WriteMany(ctx context.Context, specs []WriteSpec) ([]ua.StatusCode, error) {
	if len(specs) == 0 {
		return nil, errors.InvalidData(errors.PhaseRequest, nil, "nothing to write")
	}
	req := engine.WriteRequest{NodesToWrite: make([]engine.WriteValue, len(specs))}
	for i, s := range specs {
		req.NodesToWrite[i] = engine.WriteValue{
			NodeID:      ua.EncodeNodeID(s.NodeID),
			AttributeID: s.AttributeID,
			Value:       ua.EncodeDataValue(s.Value),
		}
	}

	resp, err := c.roundTrip(ctx, errors.PhaseRequest, req)
	if err != nil {
		return nil, err
	}
	wr, ok := resp.(engine.WriteResponse)
	if !ok {
		return nil, errors.Internal(errors.PhaseRequest, "write completed with mismatched response type")
	}
	if len(wr.Results) != len(specs) {
		return nil, errors.Internal(errors.PhaseRequest, "write result count does not match request")
	}

	out := make([]ua.StatusCode, len(wr.Results))
	for i, code := range wr.Results {
		out[i] = ua.StatusCode(code)
	}
	return out, nil
}

// Call invokes a method node with ordered input arguments and returns
// the ordered output arguments.
func (c *Client) Call(ctx context.Context, object, method ua.NodeID, input []ua.Variant) ([]ua.Variant, error) {
	in := make([]engine.Raw, len(input))
	for i, v := range input {
		in[i] = ua.EncodeVariant(v)
	}
	req := engine.CallRequest{MethodsToCall: []engine.CallMethodRequest{{
		ObjectID:       ua.EncodeNodeID(object),
		MethodID:       ua.EncodeNodeID(method),
		InputArguments: in,
	}}}

	resp, err := c.roundTrip(ctx, errors.PhaseRequest, req)
	if err != nil {
		return nil, err
	}
	cr, ok := resp.(engine.CallResponse)
	if !ok {
		return nil, errors.Internal(errors.PhaseRequest, "call completed with mismatched response type")
	}
	if len(cr.Results) != 1 {
		return nil, errors.Internal(errors.PhaseRequest, "call result count does not match request")
	}
	result := cr.Results[0]
	if engine.IsBad(result.StatusCode) {
		return nil, errors.BadStatus(errors.PhaseRequest, result.StatusCode,
			ua.StatusCode(result.StatusCode).Name())
	}

	out := make([]ua.Variant, len(result.OutputArguments))
	for i, raw := range result.OutputArguments {
		v, err := ua.DecodeVariant(raw)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// TranslateBrowsePath resolves a sequence of browse names starting at
// start to the target node id.
func (c *Client) TranslateBrowsePath(ctx context.Context, start ua.NodeID, path ...ua.QualifiedName) (ua.NodeID, error) {
	if len(path) == 0 {
		return ua.NodeID{}, errors.InvalidData(errors.PhaseRequest, nil, "empty browse path")
	}
	elements := make([]engine.RelativePathElement, len(path))
	for i, name := range path {
		elements[i] = engine.RelativePathElement{
			IncludeSubtypes: true,
			TargetName:      engine.RawQualifiedName{Namespace: name.Namespace, Name: name.Name},
		}
	}
	req := engine.TranslateBrowsePathsRequest{BrowsePaths: []engine.BrowsePath{{
		StartingNode: ua.EncodeNodeID(start),
		Elements:     elements,
	}}}

	resp, err := c.roundTrip(ctx, errors.PhaseRequest, req)
	if err != nil {
		return ua.NodeID{}, err
	}
	tr, ok := resp.(engine.TranslateBrowsePathsResponse)
	if !ok {
		return ua.NodeID{}, errors.Internal(errors.PhaseRequest, "translate completed with mismatched response type")
	}
	if len(tr.Results) != 1 {
		return ua.NodeID{}, errors.Internal(errors.PhaseRequest, "translate result count does not match request")
	}
	result := tr.Results[0]
	if engine.IsBad(result.StatusCode) {
		return ua.NodeID{}, errors.BadStatus(errors.PhaseRequest, result.StatusCode,
			ua.StatusCode(result.StatusCode).Name())
	}
	if len(result.Targets) == 0 {
		return ua.NodeID{}, errors.NotFound(errors.PhaseRequest, "browse path target", path[len(path)-1].Name)
	}
	exp, err := ua.DecodeExpandedNodeID(result.Targets[0].TargetID)
	if err != nil {
		return ua.NodeID{}, err
	}
	return exp.NodeID, nil
}
