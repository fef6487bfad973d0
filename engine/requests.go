package engine

// Request is an encoded service request ready for dispatch. The concrete
// types below mirror the foreign request layouts; the engine owns the wire
// encoding.
type Request interface {
	isRequest()
}

// Response is the decoded counterpart delivered to a CompletionFunc.
// ServiceResult is the status of the service call as a whole; per-node
// outcomes live in the result lists.
type Response interface {
	ServiceResult() uint32
}

// Attribute ids used in read/write/monitor requests.
const (
	AttributeNodeID      uint32 = 1
	AttributeNodeClass   uint32 = 2
	AttributeBrowseName  uint32 = 3
	AttributeDisplayName uint32 = 4
	AttributeDescription uint32 = 5
	AttributeValue       uint32 = 13
	AttributeDataType    uint32 = 14
	AttributeAccessLevel uint32 = 17
	AttributeExecutable  uint32 = 21
)

// ReadValueID names one attribute of one node to read.
type ReadValueID struct {
	NodeID      RawNodeID
	AttributeID uint32
}

type ReadRequest struct {
	NodesToRead []ReadValueID
}

func (ReadRequest) isRequest() {}

type ReadResponse struct {
	Service uint32
	Results []RawDataValue
}

func (r ReadResponse) ServiceResult() uint32 { return r.Service }

// WriteValue names one attribute of one node and the value to write.
type WriteValue struct {
	NodeID      RawNodeID
	AttributeID uint32
	Value       RawDataValue
}

type WriteRequest struct {
	NodesToWrite []WriteValue
}

func (WriteRequest) isRequest() {}

type WriteResponse struct {
	Service uint32
	Results []uint32
}

func (r WriteResponse) ServiceResult() uint32 { return r.Service }

type CallMethodRequest struct {
	ObjectID       RawNodeID
	MethodID       RawNodeID
	InputArguments []Raw
}

type CallRequest struct {
	MethodsToCall []CallMethodRequest
}

func (CallRequest) isRequest() {}

type CallMethodResult struct {
	StatusCode      uint32
	OutputArguments []Raw
}

type CallResponse struct {
	Service uint32
	Results []CallMethodResult
}

func (r CallResponse) ServiceResult() uint32 { return r.Service }

// BrowseDirection values for browse descriptions.
const (
	BrowseDirectionForward uint8 = 0
	BrowseDirectionInverse uint8 = 1
	BrowseDirectionBoth    uint8 = 2
)

type BrowseDescription struct {
	NodeID          RawNodeID
	Direction       uint8
	ReferenceTypeID RawNodeID
	IncludeSubtypes bool
	NodeClassMask   uint32
	ResultMask      uint32
}

type BrowseRequest struct {
	RequestedMaxReferencesPerNode uint32
	NodesToBrowse                 []BrowseDescription
}

func (BrowseRequest) isRequest() {}

// BrowseResult holds one node's references plus the continuation point
// when the server truncated the result set. An empty ContinuationPoint
// means the result is complete.
type BrowseResult struct {
	StatusCode        uint32
	ContinuationPoint []byte
	References        []RawReferenceDescription
}

type BrowseResponse struct {
	Service uint32
	Results []BrowseResult
}

func (r BrowseResponse) ServiceResult() uint32 { return r.Service }

type BrowseNextRequest struct {
	ReleaseContinuationPoints bool
	ContinuationPoints        [][]byte
}

func (BrowseNextRequest) isRequest() {}

type BrowseNextResponse struct {
	Service uint32
	Results []BrowseResult
}

func (r BrowseNextResponse) ServiceResult() uint32 { return r.Service }

type RelativePathElement struct {
	ReferenceTypeID RawNodeID
	IsInverse       bool
	IncludeSubtypes bool
	TargetName      RawQualifiedName
}

type BrowsePath struct {
	StartingNode RawNodeID
	Elements     []RelativePathElement
}

type TranslateBrowsePathsRequest struct {
	BrowsePaths []BrowsePath
}

func (TranslateBrowsePathsRequest) isRequest() {}

type BrowsePathTarget struct {
	TargetID           RawExpandedNodeID
	RemainingPathIndex uint32
}

type BrowsePathResult struct {
	StatusCode uint32
	Targets    []BrowsePathTarget
}

type TranslateBrowsePathsResponse struct {
	Service uint32
	Results []BrowsePathResult
}

func (r TranslateBrowsePathsResponse) ServiceResult() uint32 { return r.Service }

type CreateSubscriptionRequest struct {
	RequestedPublishingIntervalMs float64
	RequestedLifetimeCount        uint32
	RequestedMaxKeepAliveCount    uint32
	MaxNotificationsPerPublish    uint32
	PublishingEnabled             bool
	Priority                      uint8
}

func (CreateSubscriptionRequest) isRequest() {}

type CreateSubscriptionResponse struct {
	Service                     uint32
	SubscriptionID              uint32
	RevisedPublishingIntervalMs float64
	RevisedLifetimeCount        uint32
	RevisedMaxKeepAliveCount    uint32
}

func (r CreateSubscriptionResponse) ServiceResult() uint32 { return r.Service }

type DeleteSubscriptionsRequest struct {
	SubscriptionIDs []uint32
}

func (DeleteSubscriptionsRequest) isRequest() {}

type DeleteSubscriptionsResponse struct {
	Service uint32
	Results []uint32
}

func (r DeleteSubscriptionsResponse) ServiceResult() uint32 { return r.Service }

// MonitoringMode values.
const (
	MonitoringModeDisabled  uint8 = 0
	MonitoringModeSampling  uint8 = 1
	MonitoringModeReporting uint8 = 2
)

type MonitoredItemCreateRequest struct {
	NodeID             RawNodeID
	AttributeID        uint32
	MonitoringMode     uint8
	SamplingIntervalMs float64
	QueueSize          uint32
	DiscardOldest      bool
}

type CreateMonitoredItemsRequest struct {
	SubscriptionID uint32
	ItemsToCreate  []MonitoredItemCreateRequest
}

func (CreateMonitoredItemsRequest) isRequest() {}

type MonitoredItemCreateResult struct {
	StatusCode                uint32
	MonitoredItemID           uint32
	RevisedSamplingIntervalMs float64
	RevisedQueueSize          uint32
}

type CreateMonitoredItemsResponse struct {
	Service uint32
	Results []MonitoredItemCreateResult
}

func (r CreateMonitoredItemsResponse) ServiceResult() uint32 { return r.Service }

type DeleteMonitoredItemsRequest struct {
	SubscriptionID   uint32
	MonitoredItemIDs []uint32
}

func (DeleteMonitoredItemsRequest) isRequest() {}

type DeleteMonitoredItemsResponse struct {
	Service uint32
	Results []uint32
}

func (r DeleteMonitoredItemsResponse) ServiceResult() uint32 { return r.Service }
