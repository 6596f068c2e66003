package ocpp

import "fmt"

// Action is one of the supported OCPP 1.6 operations. The set is closed:
// anything else fails to decode.
type Action string

const (
	ActionBootNotification Action = "BootNotification"
	ActionHeartbeat        Action = "Heartbeat"
	ActionAuthorize        Action = "Authorize"
	ActionStartTransaction Action = "StartTransaction"
	ActionStopTransaction  Action = "StopTransaction"
)

// Actions lists every supported action.
func Actions() []Action {
	return []Action{
		ActionBootNotification,
		ActionHeartbeat,
		ActionAuthorize,
		ActionStartTransaction,
		ActionStopTransaction,
	}
}

// ParseAction validates an action name from the wire.
func ParseAction(name string) (Action, error) {
	switch Action(name) {
	case ActionBootNotification, ActionHeartbeat, ActionAuthorize,
		ActionStartTransaction, ActionStopTransaction:
		return Action(name), nil
	}
	return "", fmt.Errorf("unsupported action %q", name)
}

func (a Action) String() string { return string(a) }
