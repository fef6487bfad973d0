package engine

// Severity bits of a protocol status code. The top two bits of the code
// classify the outcome; everything with the high bit set is an operation
// failure.
const (
	severityMask  uint32 = 0xC0000000
	severityBad   uint32 = 0x80000000
	severityUncrt uint32 = 0x40000000
)

// IsGood reports whether code indicates success.
func IsGood(code uint32) bool { return code&severityMask == 0 }

// IsUncertain reports whether code indicates a usable but degraded result.
func IsUncertain(code uint32) bool { return code&severityMask == severityUncrt }

// IsBad reports whether code indicates failure.
func IsBad(code uint32) bool { return code&severityBad != 0 }

// CompletionFunc receives the response for an asynchronous request. It is
// invoked from within Iterate, on the single goroutine driving the engine,
// and must return promptly.
type CompletionFunc func(requestID uint32, resp Response)

// Notification is one server-push message for a monitored item: either a
// data change (Value set) or an event (EventFields set).
type Notification struct {
	SubscriptionID  uint32
	MonitoredItemID uint32
	Value           RawDataValue
	EventFields     []Raw
}

// NotificationFunc receives subscription notifications. Same execution
// context and constraints as CompletionFunc.
type NotificationFunc func(n Notification)

// SecurityMode selects message security for a session.
type SecurityMode uint8

const (
	SecurityModeNone SecurityMode = iota + 1
	SecurityModeSign
	SecurityModeSignAndEncrypt
)

// IdentityTokenKind discriminates the identity token presented at session
// activation.
type IdentityTokenKind uint8

const (
	IdentityAnonymous IdentityTokenKind = iota
	IdentityUserName
	IdentityIssuedToken
)

// IdentityToken is the caller's identity for session activation.
type IdentityToken struct {
	Kind      IdentityTokenKind
	UserName  string
	Password  string
	TokenData []byte // opaque issued token, e.g. a JWT
}

// ConnectConfig carries everything the engine needs to establish a secure
// channel and activate a session. Certificate and key are opaque DER
// buffers; the key password, if any, is supplied on demand through the
// callback so the caller controls the secret's provenance.
type ConnectConfig struct {
	EndpointURL        string
	SecurityMode       SecurityMode
	SecurityPolicyURI  string
	Identity           IdentityToken
	Certificate        []byte
	PrivateKey         []byte
	PrivateKeyPassword func() ([]byte, error)
}

// ClientEngine is the client-side protocol stack. Iterate and everything
// reachable from its callbacks is single-threaded: only the driver's
// goroutine may call Iterate, SendRequest and Disconnect.
type ClientEngine interface {
	// Connect establishes the secure channel and session synchronously.
	Connect(cfg ConnectConfig) uint32

	// Iterate processes one batch of pending network and timer work and
	// dispatches completion and notification callbacks before returning.
	// A zero timeout never blocks.
	Iterate(timeoutMs uint32) uint32

	// SendRequest hands an encoded request to the engine and returns the
	// engine-assigned request id used to correlate the completion.
	SendRequest(req Request, cb CompletionFunc) (requestID uint32, status uint32)

	// OnNotification registers the single subscription notification sink.
	OnNotification(fn NotificationFunc)

	// Disconnect closes the session and secure channel gracefully.
	Disconnect() uint32

	// Handle exposes the engine instance pointer for ownership tracking.
	// ReleaseHandle frees it and must be called exactly once, after the
	// final Iterate has returned.
	Handle() uintptr
	ReleaseHandle()
}

// SessionInfo identifies the session on whose behalf a server-side
// callback runs.
type SessionInfo struct {
	SessionID    RawNodeID
	ClientUserID string
}

// DataSourceFuncs back a variable node with callbacks instead of a stored
// value. Both run on the server's driver goroutine and must not block.
type DataSourceFuncs struct {
	Read  func(session SessionInfo, nodeID RawNodeID) (RawDataValue, uint32)
	Write func(session SessionInfo, nodeID RawNodeID, value RawDataValue) uint32
}

// MethodFunc handles invocation of a method node.
type MethodFunc func(session SessionInfo, objectID RawNodeID, input []Raw) (output []Raw, status uint32)

// AccessControlFuncs is consulted once per incoming session activation and
// once per guarded operation.
type AccessControlFuncs struct {
	ActivateSession func(session SessionInfo, token IdentityToken) uint32
	CloseSession    func(session SessionInfo)
	AllowRead       func(session SessionInfo, nodeID RawNodeID) bool
	AllowWrite      func(session SessionInfo, nodeID RawNodeID) bool
	AllowCall       func(session SessionInfo, methodID RawNodeID) bool
	AllowAddNode    func(session SessionInfo, parentID RawNodeID) bool
	AllowDeleteNode func(session SessionInfo, nodeID RawNodeID) bool
}

// ServerStatistics is a point-in-time snapshot of engine counters. Safe to
// request concurrently with the running server.
type ServerStatistics struct {
	CurrentSessions         uint32
	CumulatedSessions       uint32
	RejectedSessions        uint32
	SessionTimeouts         uint32
	CurrentSecureChannels   uint32
	CumulatedSecureChannels uint32
}

// NodeClass values used in node definitions and browse results.
const (
	NodeClassObject   uint32 = 1
	NodeClassVariable uint32 = 2
	NodeClassMethod   uint32 = 4
)

// RawObjectAttributes is the attribute set for object nodes.
type RawObjectAttributes struct {
	DisplayName   RawLocalizedText
	Description   RawLocalizedText
	EventNotifier uint8
}

// RawVariableAttributes is the attribute set for variable nodes.
type RawVariableAttributes struct {
	DisplayName             RawLocalizedText
	Description             RawLocalizedText
	Value                   Raw
	DataType                RawNodeID
	ValueRank               int32
	AccessLevel             uint8
	MinimumSamplingInterval float64
}

// RawMethodAttributes is the attribute set for method nodes.
type RawMethodAttributes struct {
	DisplayName     RawLocalizedText
	Description     RawLocalizedText
	Executable      bool
	InputArguments  []RawArgument
	OutputArguments []RawArgument
}

// NodeDefinition describes a node to add to the server address space.
// Attributes holds the Raw*Attributes struct matching NodeClass.
type NodeDefinition struct {
	NodeClass       uint32
	RequestedID     RawNodeID
	ParentID        RawNodeID
	ReferenceTypeID RawNodeID
	BrowseName      RawQualifiedName
	TypeDefinition  RawNodeID
	Attributes      any
}

// ServerEngine is the server-side protocol stack. The same single-writer
// rule applies: only the driver's goroutine may call Iterate or mutate the
// address space.
type ServerEngine interface {
	Startup() uint32
	Iterate(timeoutMs uint32) uint32
	Shutdown() uint32

	AddNode(def NodeDefinition) uint32
	DeleteNode(id RawNodeID) uint32
	AddReference(source RawNodeID, referenceType RawNodeID, target RawExpandedNodeID, forward bool) uint32
	DeleteReference(source RawNodeID, referenceType RawNodeID, target RawExpandedNodeID, forward bool) uint32

	// WriteValue updates a variable node's value attribute in-process,
	// triggering monitored-item sampling exactly as a remote write would.
	WriteValue(id RawNodeID, value RawDataValue) uint32
	ReadValue(id RawNodeID) (RawDataValue, uint32)

	RegisterDataSource(id RawNodeID, ds DataSourceFuncs) uint32
	RegisterMethod(id RawNodeID, fn MethodFunc) uint32
	SetAccessControl(ac AccessControlFuncs)

	Statistics() ServerStatistics

	Handle() uintptr
	ReleaseHandle()
}
