package protocol

import "fmt"

// CloseCode is a WebSocket close status code (RFC 6455 section 7.4).
type CloseCode int

const (
	CloseNormalClosure           CloseCode = 1000
	CloseGoingAway               CloseCode = 1001
	CloseProtocolError           CloseCode = 1002
	CloseUnsupportedData         CloseCode = 1003
	CloseNoStatusReceived        CloseCode = 1005
	CloseAbnormalClosure         CloseCode = 1006
	CloseInvalidFramePayloadData CloseCode = 1007
	ClosePolicyViolation         CloseCode = 1008
	CloseMessageTooBig           CloseCode = 1009
	CloseInternalServerErr       CloseCode = 1011
)

// String returns the string representation of the close code.
func (c CloseCode) String() string {
	switch c {
	case CloseNormalClosure:
		return "NormalClosure"
	case CloseGoingAway:
		return "GoingAway"
	case CloseProtocolError:
		return "ProtocolError"
	case CloseUnsupportedData:
		return "UnsupportedData"
	case CloseNoStatusReceived:
		return "NoStatusReceived"
	case CloseAbnormalClosure:
		return "AbnormalClosure"
	case CloseInvalidFramePayloadData:
		return "InvalidFramePayloadData"
	case ClosePolicyViolation:
		return "PolicyViolation"
	case CloseMessageTooBig:
		return "MessageTooBig"
	case CloseInternalServerErr:
		return "InternalServerErr"
	default:
		return fmt.Sprintf("CloseCode(%d)", int(c))
	}
}

// CloseInfo is the best available explanation for a disconnect.
// Transports fill it from the peer's close frame when one was received,
// from the close frame they sent otherwise, and fall back to
// CloseAbnormalClosure when the connection simply dropped.
type CloseInfo struct {
	Code   CloseCode
	Reason string
}

// AbnormalClosure is the CloseInfo for a connection lost without a close frame.
func AbnormalClosure() CloseInfo {
	return CloseInfo{Code: CloseAbnormalClosure}
}
