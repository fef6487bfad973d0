package client

import (
	"context"
	"sync/atomic"

	"github.com/opcfoundry/opcua-runtime/engine"
	"github.com/opcfoundry/opcua-runtime/errors"
	"github.com/opcfoundry/opcua-runtime/ua"
)

// BrowseOptions refine a browse call. The zero value browses forward
// references of every type and class without a page limit.
type BrowseOptions struct {
	Direction       uint8
	ReferenceTypeID ua.NodeID // zero id matches every reference type
	IncludeSubtypes bool
	NodeClassMask   uint32
	// MaxReferences asks the server to page results; zero defers to the
	// server's own limit.
	MaxReferences uint32
}

// ContinuationPoint resumes a paged browse. A point not exhausted by
// BrowseNext calls must be released with Release so the server can free
// it.
type ContinuationPoint struct {
	token    []byte
	client   *Client
	consumed atomic.Bool
}

// Release tells the server to free the point without returning more
// references. Safe to call on an already-consumed point.
func (cp *ContinuationPoint) Release(ctx context.Context) error {
	if cp == nil || !cp.consumed.CompareAndSwap(false, true) {
		return nil
	}
	req := engine.BrowseNextRequest{
		ReleaseContinuationPoints: true,
		ContinuationPoints:        [][]byte{cp.token},
	}
	_, err := cp.client.roundTrip(ctx, errors.PhaseRequest, req)
	return err
}

// Browse returns the references of node matching opts. A non-nil
// continuation point means the server truncated the result; exchange it
// with BrowseNext or free it with Release.
func (c *Client) Browse(ctx context.Context, node ua.NodeID, opts BrowseOptions) ([]ua.ReferenceDescription, *ContinuationPoint, error) {
	req := engine.BrowseRequest{
		RequestedMaxReferencesPerNode: opts.MaxReferences,
		NodesToBrowse: []engine.BrowseDescription{{
			NodeID:          ua.EncodeNodeID(node),
			Direction:       opts.Direction,
			ReferenceTypeID: ua.EncodeNodeID(opts.ReferenceTypeID),
			IncludeSubtypes: opts.IncludeSubtypes,
			NodeClassMask:   opts.NodeClassMask,
		}},
	}

	resp, err := c.roundTrip(ctx, errors.PhaseRequest, req)
	if err != nil {
		return nil, nil, err
	}
	br, ok := resp.(engine.BrowseResponse)
	if !ok {
		return nil, nil, errors.Internal(errors.PhaseRequest, "browse completed with mismatched response type")
	}
	if len(br.Results) != 1 {
		return nil, nil, errors.Internal(errors.PhaseRequest, "browse result count does not match request")
	}
	return c.decodeBrowseResult(br.Results[0])
}

// BrowseNext exchanges a continuation point for the next page. The
// input point is consumed; a nil returned point means the browse is
// complete.
func (c *Client) BrowseNext(ctx context.Context, cp *ContinuationPoint) ([]ua.ReferenceDescription, *ContinuationPoint, error) {
	if cp == nil || !cp.consumed.CompareAndSwap(false, true) {
		return nil, nil, errors.InvalidData(errors.PhaseRequest, nil, "continuation point already consumed")
	}
	req := engine.BrowseNextRequest{ContinuationPoints: [][]byte{cp.token}}

	resp, err := c.roundTrip(ctx, errors.PhaseRequest, req)
	if err != nil {
		return nil, nil, err
	}
	bn, ok := resp.(engine.BrowseNextResponse)
	if !ok {
		return nil, nil, errors.Internal(errors.PhaseRequest, "browse next completed with mismatched response type")
	}
	if len(bn.Results) != 1 {
		return nil, nil, errors.Internal(errors.PhaseRequest, "browse next result count does not match request")
	}
	return c.decodeBrowseResult(bn.Results[0])
}

// BrowseAll follows continuation points until the result is complete
// and returns every reference.
func (c *Client) BrowseAll(ctx context.Context, node ua.NodeID, opts BrowseOptions) ([]ua.ReferenceDescription, error) {
	refs, cp, err := c.Browse(ctx, node, opts)
	if err != nil {
		return nil, err
	}
	for cp != nil {
		var page []ua.ReferenceDescription
		page, cp, err = c.BrowseNext(ctx, cp)
		if err != nil {
			return nil, err
		}
		refs = append(refs, page...)
	}
	return refs, nil
}

func (c *Client) decodeBrowseResult(result engine.BrowseResult) ([]ua.ReferenceDescription, *ContinuationPoint, error) {
	if engine.IsBad(result.StatusCode) {
		return nil, nil, errors.BadStatus(errors.PhaseRequest, result.StatusCode,
			ua.StatusCode(result.StatusCode).Name())
	}
	refs := make([]ua.ReferenceDescription, len(result.References))
	for i, raw := range result.References {
		ref, err := ua.DecodeReferenceDescription(raw)
		if err != nil {
			return nil, nil, err
		}
		refs[i] = ref
	}
	var cp *ContinuationPoint
	if len(result.ContinuationPoint) > 0 {
		token := make([]byte, len(result.ContinuationPoint))
		copy(token, result.ContinuationPoint)
		cp = &ContinuationPoint{token: token, client: c}
	}
	return refs, cp, nil
}
