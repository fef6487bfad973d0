package ua

import "fmt"

// StatusCode is a protocol-defined operation outcome. The top two bits
// carry the severity; the remainder identifies the condition.
type StatusCode uint32

// Severity classifies a status code.
type Severity uint8

const (
	SeverityGood Severity = iota
	SeverityUncertain
	SeverityBad
)

func (s Severity) String() string {
	switch s {
	case SeverityGood:
		return "Good"
	case SeverityUncertain:
		return "Uncertain"
	case SeverityBad:
		return "Bad"
	}
	return "Invalid"
}

// Status codes used by the binding itself. The engine may report any code
// from the protocol's full set; unknown codes still classify correctly by
// severity.
const (
	StatusGood StatusCode = 0x00000000

	StatusUncertainInitialValue StatusCode = 0x40920000

	StatusBadInternalError             StatusCode = 0x80020000
	StatusBadTimeout                   StatusCode = 0x800A0000
	StatusBadServiceUnsupported        StatusCode = 0x800B0000
	StatusBadShutdown                  StatusCode = 0x800C0000
	StatusBadServerNotConnected        StatusCode = 0x800D0000
	StatusBadNothingToDo               StatusCode = 0x800F0000
	StatusBadSecurityChecksFailed      StatusCode = 0x80130000
	StatusBadCertificateInvalid        StatusCode = 0x80120000
	StatusBadIdentityTokenInvalid      StatusCode = 0x80200000
	StatusBadIdentityTokenRejected     StatusCode = 0x80210000
	StatusBadSubscriptionIDInvalid     StatusCode = 0x80280000
	StatusBadSessionIDInvalid          StatusCode = 0x80250000
	StatusBadNodeIDInvalid             StatusCode = 0x80330000
	StatusBadNodeIDUnknown             StatusCode = 0x80340000
	StatusBadAttributeIDInvalid        StatusCode = 0x80350000
	StatusBadIndexRangeInvalid         StatusCode = 0x80360000
	StatusBadNotReadable               StatusCode = 0x803A0000
	StatusBadNotWritable               StatusCode = 0x803B0000
	StatusBadOutOfRange                StatusCode = 0x803C0000
	StatusBadNotSupported              StatusCode = 0x803D0000
	StatusBadNodeIDExists              StatusCode = 0x805E0000
	StatusBadMonitoredItemIDInvalid    StatusCode = 0x80420000
	StatusBadContinuationPointInvalid  StatusCode = 0x804A0000
	StatusBadNoContinuationPoints      StatusCode = 0x804B0000
	StatusBadUserAccessDenied          StatusCode = 0x801F0000
	StatusBadTypeMismatch              StatusCode = 0x80740000
	StatusBadMethodInvalid             StatusCode = 0x80750000
	StatusBadArgumentsMissing          StatusCode = 0x80760000
	StatusBadTooManyArguments          StatusCode = 0x80E50000
	StatusBadInvalidArgument           StatusCode = 0x80AB0000
	StatusBadConnectionClosed          StatusCode = 0x80AE0000
	StatusBadDisconnect                StatusCode = 0x80AD0000
	StatusBadCommunicationError        StatusCode = 0x80050000
	StatusBadConnectionRejected        StatusCode = 0x80AC0000
	StatusBadServerHalted              StatusCode = 0x800E0000
	StatusBadReferenceTypeIDInvalid    StatusCode = 0x804C0000
	StatusBadSourceNodeIDInvalid       StatusCode = 0x80640000
	StatusBadTargetNodeIDInvalid       StatusCode = 0x80650000
	StatusBadBoundNotFound             StatusCode = 0x80D70000
	StatusBadResourceUnavailable       StatusCode = 0x80040000
	StatusBadUnexpectedError           StatusCode = 0x80010000
	StatusBadSecureChannelClosed       StatusCode = 0x86C80000
	StatusBadSessionClosed             StatusCode = 0x80260000
	StatusBadRequestCancelledByClient  StatusCode = 0x802C0000
	StatusBadRequestCancelledByRequest StatusCode = 0x805C0000
	StatusBadNoMatch                   StatusCode = 0x806F0000
)

var statusNames = map[StatusCode]string{
	StatusGood:                         "Good",
	StatusUncertainInitialValue:        "UncertainInitialValue",
	StatusBadInternalError:             "BadInternalError",
	StatusBadTimeout:                   "BadTimeout",
	StatusBadServiceUnsupported:        "BadServiceUnsupported",
	StatusBadShutdown:                  "BadShutdown",
	StatusBadServerNotConnected:        "BadServerNotConnected",
	StatusBadNothingToDo:               "BadNothingToDo",
	StatusBadSecurityChecksFailed:      "BadSecurityChecksFailed",
	StatusBadCertificateInvalid:        "BadCertificateInvalid",
	StatusBadIdentityTokenInvalid:      "BadIdentityTokenInvalid",
	StatusBadIdentityTokenRejected:     "BadIdentityTokenRejected",
	StatusBadSubscriptionIDInvalid:     "BadSubscriptionIdInvalid",
	StatusBadSessionIDInvalid:          "BadSessionIdInvalid",
	StatusBadNodeIDInvalid:             "BadNodeIdInvalid",
	StatusBadNodeIDUnknown:             "BadNodeIdUnknown",
	StatusBadAttributeIDInvalid:        "BadAttributeIdInvalid",
	StatusBadIndexRangeInvalid:         "BadIndexRangeInvalid",
	StatusBadNotReadable:               "BadNotReadable",
	StatusBadNotWritable:               "BadNotWritable",
	StatusBadOutOfRange:                "BadOutOfRange",
	StatusBadNotSupported:              "BadNotSupported",
	StatusBadNodeIDExists:              "BadNodeIdExists",
	StatusBadMonitoredItemIDInvalid:    "BadMonitoredItemIdInvalid",
	StatusBadContinuationPointInvalid:  "BadContinuationPointInvalid",
	StatusBadNoContinuationPoints:      "BadNoContinuationPoints",
	StatusBadUserAccessDenied:          "BadUserAccessDenied",
	StatusBadTypeMismatch:              "BadTypeMismatch",
	StatusBadMethodInvalid:             "BadMethodInvalid",
	StatusBadArgumentsMissing:          "BadArgumentsMissing",
	StatusBadTooManyArguments:          "BadTooManyArguments",
	StatusBadInvalidArgument:           "BadInvalidArgument",
	StatusBadConnectionClosed:          "BadConnectionClosed",
	StatusBadDisconnect:                "BadDisconnect",
	StatusBadCommunicationError:        "BadCommunicationError",
	StatusBadConnectionRejected:        "BadConnectionRejected",
	StatusBadServerHalted:              "BadServerHalted",
	StatusBadReferenceTypeIDInvalid:    "BadReferenceTypeIdInvalid",
	StatusBadSourceNodeIDInvalid:       "BadSourceNodeIdInvalid",
	StatusBadTargetNodeIDInvalid:       "BadTargetNodeIdInvalid",
	StatusBadBoundNotFound:             "BadBoundNotFound",
	StatusBadResourceUnavailable:       "BadResourceUnavailable",
	StatusBadUnexpectedError:           "BadUnexpectedError",
	StatusBadSecureChannelClosed:       "BadSecureChannelClosed",
	StatusBadSessionClosed:             "BadSessionClosed",
	StatusBadRequestCancelledByClient:  "BadRequestCancelledByClient",
	StatusBadRequestCancelledByRequest: "BadRequestCancelledByRequest",
	StatusBadNoMatch:                   "BadNoMatch",
}

// Severity returns the code's severity class.
func (c StatusCode) Severity() Severity {
	switch c >> 30 {
	case 0:
		return SeverityGood
	case 1:
		return SeverityUncertain
	default:
		return SeverityBad
	}
}

// IsGood reports whether the code indicates success.
func (c StatusCode) IsGood() bool { return c.Severity() == SeverityGood }

// IsUncertain reports whether the result is usable but degraded.
func (c StatusCode) IsUncertain() bool { return c.Severity() == SeverityUncertain }

// IsBad reports whether the code indicates failure.
func (c StatusCode) IsBad() bool { return c.Severity() == SeverityBad }

// Name returns the symbolic name, or a hex rendering for codes outside
// the binding's own set.
func (c StatusCode) Name() string {
	if name, ok := statusNames[c]; ok {
		return name
	}
	return fmt.Sprintf("%s(0x%08X)", c.Severity(), uint32(c))
}

func (c StatusCode) String() string { return c.Name() }
