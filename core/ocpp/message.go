// Package ocpp implements the OCPP 1.6J JSON wire framing shared by the
// central system server and the charge point simulator.
package ocpp

import (
	"encoding/json"
	"fmt"
)

// SubProtocol is the websocket subprotocol negotiated for OCPP 1.6 JSON.
const SubProtocol = "ocpp1.6"

// Wire message type codes.
const (
	CallType       = 2
	CallResultType = 3
	CallErrorType  = 4
)

// Call is an inbound or outbound request frame: [2, id, action, payload].
type Call struct {
	ID      string
	Action  Action
	Payload json.RawMessage
}

// CallResult is a response frame correlated to a Call: [3, id, payload].
type CallResult struct {
	ID      string
	Payload json.RawMessage
}

// Frame is a decoded wire message of either kind.
type Frame struct {
	Type   int
	Call   *Call
	Result *CallResult
}

// DecodeFrame parses a raw websocket message into a Call or CallResult.
// Unknown actions and malformed arrays are decode errors, never silently
// ignored.
func DecodeFrame(data []byte) (*Frame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if len(parts) < 3 {
		return nil, fmt.Errorf("decode frame: expected at least 3 elements, got %d", len(parts))
	}
	var msgType int
	if err := json.Unmarshal(parts[0], &msgType); err != nil {
		return nil, fmt.Errorf("decode frame: message type: %w", err)
	}
	var id string
	if err := json.Unmarshal(parts[1], &id); err != nil {
		return nil, fmt.Errorf("decode frame: message id: %w", err)
	}
	switch msgType {
	case CallType:
		if len(parts) != 4 {
			return nil, fmt.Errorf("decode call: expected 4 elements, got %d", len(parts))
		}
		var name string
		if err := json.Unmarshal(parts[2], &name); err != nil {
			return nil, fmt.Errorf("decode call: action: %w", err)
		}
		action, err := ParseAction(name)
		if err != nil {
			return nil, err
		}
		return &Frame{Type: CallType, Call: &Call{ID: id, Action: action, Payload: parts[3]}}, nil
	case CallResultType:
		if len(parts) != 3 {
			return nil, fmt.Errorf("decode call result: expected 3 elements, got %d", len(parts))
		}
		return &Frame{Type: CallResultType, Result: &CallResult{ID: id, Payload: parts[2]}}, nil
	default:
		return nil, fmt.Errorf("decode frame: unsupported message type %d", msgType)
	}
}

// EncodeCall marshals a request frame.
func EncodeCall(id string, action Action, payload any) ([]byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	return json.Marshal([]any{CallType, id, string(action), payload})
}

// EncodeCallResult marshals a response frame for the given call id.
func EncodeCallResult(id string, payload any) ([]byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	return json.Marshal([]any{CallResultType, id, payload})
}

// PayloadMap decodes a raw payload into a generic map. An empty or null
// payload yields an empty map.
func PayloadMap(raw json.RawMessage) (map[string]any, error) {
	m := map[string]any{}
	if len(raw) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return m, nil
}
