package eventbus

import "time"

// EventKind classifies a protocol event.
type EventKind string

const (
	// KindSessionOpened fires when a charge point session reaches Open.
	KindSessionOpened EventKind = "session_opened"
	// KindSessionClosed fires when the transport closes.
	KindSessionClosed EventKind = "session_closed"
	// KindCallHandled fires after a call was answered.
	KindCallHandled EventKind = "call_handled"
)

// ProtocolEvent is what sessions publish on the bus.
type ProtocolEvent struct {
	Kind          EventKind `json:"kind"`
	ChargePointID string    `json:"charge_point_id"`
	Action        string    `json:"action,omitempty"`
	Time          time.Time `json:"time"`
}

// Bus is the gateway-wide protocol event bus.
type Bus = TypedBus[ProtocolEvent]

// New creates the protocol event bus.
func New() *Bus { return NewTyped[ProtocolEvent]() }
