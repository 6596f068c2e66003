package csms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kilianp07/cpflow/core/metrics"
	"github.com/kilianp07/cpflow/core/ocpp"
	"github.com/kilianp07/cpflow/core/runlog"
	"github.com/kilianp07/cpflow/internal/eventbus"
)

// session is the per-connection state machine. Calls on one session are
// processed strictly in arrival order: one frame in, exactly one CallResult
// out, then the next frame is read.
type session struct {
	cpID   string
	conn   *websocket.Conn
	server *Server
}

func newSession(cpID string, conn *websocket.Conn, server *Server) *session {
	return &session{cpID: cpID, conn: conn, server: server}
}

// run executes the read loop until the transport closes. Handler errors are
// logged and the session continues; only transport failure ends the loop.
func (s *session) run() {
	srv := s.server
	ctx := context.Background()
	srv.logs.Record(ctx, runlog.SourceCentralSystem, fmt.Sprintf("connection established with %s", s.cpID))
	srv.publish(eventbus.ProtocolEvent{Kind: eventbus.KindSessionOpened, ChargePointID: s.cpID, Time: time.Now()})
	_ = srv.sink.RecordSession(metrics.SessionEvent{ChargePointID: s.cpID, Connected: true, Time: time.Now()})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			break
		}
		srv.logs.Record(ctx, runlog.SourceCentralSystem, "recv: "+string(data))
		if err := s.handleFrame(ctx, data); err != nil {
			srv.log.Errorf("error handling message from %s: %v", s.cpID, err)
		}
	}

	srv.logs.Record(ctx, runlog.SourceCentralSystem, fmt.Sprintf("connection closed with %s", s.cpID))
	srv.publish(eventbus.ProtocolEvent{Kind: eventbus.KindSessionClosed, ChargePointID: s.cpID, Time: time.Now()})
	_ = srv.sink.RecordSession(metrics.SessionEvent{ChargePointID: s.cpID, Connected: false, Time: time.Now()})
}

func (s *session) close() {
	_ = s.conn.Close()
}

// handleFrame decodes one call, dispatches the workflow asynchronously and
// replies immediately. The reply content never depends on the workflow run.
func (s *session) handleFrame(ctx context.Context, data []byte) error {
	started := time.Now()
	frame, err := ocpp.DecodeFrame(data)
	if err != nil {
		return err
	}
	if frame.Type != ocpp.CallType {
		return fmt.Errorf("unexpected message type %d from %s", frame.Type, s.cpID)
	}
	call := frame.Call

	reply, err := s.handleCall(call)
	if err != nil {
		return err
	}
	out, err := ocpp.EncodeCallResult(call.ID, reply)
	if err != nil {
		return err
	}
	s.server.logs.Record(ctx, runlog.SourceCentralSystem, "send: "+string(out))
	if err := s.conn.WriteMessage(websocket.TextMessage, out); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	s.server.publish(eventbus.ProtocolEvent{
		Kind: eventbus.KindCallHandled, ChargePointID: s.cpID,
		Action: call.Action.String(), Time: time.Now(),
	})
	_ = s.server.sink.RecordCall(metrics.CallEvent{
		ChargePointID: s.cpID, Action: call.Action.String(),
		Duration: time.Since(started), Time: time.Now(),
	})
	return nil
}

// handleCall produces the protocol-mandated reply for the five supported
// actions. Authorization is an always-accept stub.
func (s *session) handleCall(call *ocpp.Call) (any, error) {
	payload, err := ocpp.PayloadMap(call.Payload)
	if err != nil {
		return nil, err
	}

	switch call.Action {
	case ocpp.ActionBootNotification:
		var req ocpp.BootNotificationRequest
		if err := json.Unmarshal(call.Payload, &req); err != nil {
			return nil, fmt.Errorf("decode %s: %w", call.Action, err)
		}
		s.dispatchWorkflow(call.Action, payload)
		return ocpp.BootNotificationConfirmation{
			CurrentTime: isoNow(),
			Interval:    s.server.cfg.HeartbeatIntervalSeconds,
			Status:      ocpp.RegistrationAccepted,
		}, nil

	case ocpp.ActionHeartbeat:
		s.dispatchWorkflow(call.Action, payload)
		return ocpp.HeartbeatConfirmation{CurrentTime: isoNow()}, nil

	case ocpp.ActionAuthorize:
		var req ocpp.AuthorizeRequest
		if err := json.Unmarshal(call.Payload, &req); err != nil {
			return nil, fmt.Errorf("decode %s: %w", call.Action, err)
		}
		s.dispatchWorkflow(call.Action, payload)
		return ocpp.AuthorizeConfirmation{
			IdTagInfo: ocpp.IdTagInfo{Status: ocpp.AuthorizationAccepted},
		}, nil

	case ocpp.ActionStartTransaction:
		var req ocpp.StartTransactionRequest
		if err := json.Unmarshal(call.Payload, &req); err != nil {
			return nil, fmt.Errorf("decode %s: %w", call.Action, err)
		}
		s.dispatchWorkflow(call.Action, payload)
		return ocpp.StartTransactionConfirmation{
			IdTagInfo:     ocpp.IdTagInfo{Status: ocpp.AuthorizationAccepted},
			TransactionID: s.server.NextTransactionID(),
		}, nil

	case ocpp.ActionStopTransaction:
		var req ocpp.StopTransactionRequest
		if err := json.Unmarshal(call.Payload, &req); err != nil {
			return nil, fmt.Errorf("decode %s: %w", call.Action, err)
		}
		s.dispatchWorkflow(call.Action, payload)
		return ocpp.StopTransactionConfirmation{
			IdTagInfo: ocpp.IdTagInfo{Status: ocpp.AuthorizationAccepted},
		}, nil
	}
	return nil, fmt.Errorf("no handler for action %s", call.Action)
}

// dispatchWorkflow runs the workflow on its own goroutine so the session can
// answer the call without waiting on pipeline execution.
func (s *session) dispatchWorkflow(action ocpp.Action, payload map[string]any) {
	event := action.String()
	execCtx := map[string]any{"cp_id": s.cpID, "event": event}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.server.log.Errorf("workflow execution for event %s failed: %v", event, r)
			}
		}()
		s.server.engine.RunForEvent(context.Background(), event, payload, execCtx)
	}()
}

func isoNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}
