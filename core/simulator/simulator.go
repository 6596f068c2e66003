// Package simulator drives the OCPP 1.6J client role for testing a central
// system. One charge point identity is bound at a time; every lifecycle
// operation is safe to call from synchronous callers and bounded by the call
// timeout.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kilianp07/cpflow/core/logger"
	"github.com/kilianp07/cpflow/core/ocpp"
	"github.com/kilianp07/cpflow/core/runlog"
)

// Caller-misuse failures reported to external callers.
var (
	ErrNotConnected  = errors.New("not connected to charge point")
	ErrNoTransaction = errors.New("no active transaction")
)

// Config holds the simulator settings.
type Config struct {
	// URL is the central system websocket base, e.g. "ws://localhost:9000".
	// The charge point id is appended as the final path segment.
	URL string `json:"url"`
	// Model and Vendor fill the BootNotification request.
	Model  string `json:"charge_point_model"`
	Vendor string `json:"charge_point_vendor"`
	// CallTimeoutSeconds bounds one call round trip.
	CallTimeoutSeconds int `json:"call_timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = "ws://localhost:9000"
	}
	if c.Model == "" {
		c.Model = "Simulator"
	}
	if c.Vendor == "" {
		c.Vendor = "Pipelet"
	}
	if c.CallTimeoutSeconds <= 0 {
		c.CallTimeoutSeconds = 10
	}
}

// State is the snapshot returned to external callers.
type State struct {
	Connected     bool       `json:"connected"`
	ChargePointID string     `json:"charge_point_id,omitempty"`
	Interval      int        `json:"interval"`
	TransactionID *int       `json:"transaction_id,omitempty"`
	LastEvent     *time.Time `json:"last_event,omitempty"`
}

// Simulator manages one simulated charge point connection.
type Simulator struct {
	cfg  Config
	logs runlog.Sink
	log  logger.Logger

	// opMu serializes lifecycle operations so callers observe a consistent
	// single-connection state machine.
	opMu sync.Mutex

	conn       *websocket.Conn
	cpID       string
	interval   int
	txID       *int
	readerDone chan struct{}
	hbCancel   context.CancelFunc
	hbDone     chan struct{}

	lastEventID string
	lastEventAt time.Time

	writeMu   sync.Mutex
	pendingMu sync.Mutex
	pending   map[string]chan ocpp.CallResult
}

// New creates a Simulator. logs may be nil.
func New(cfg Config, logs runlog.Sink, log logger.Logger) *Simulator {
	cfg.SetDefaults()
	if logs == nil {
		logs = runlog.NopSink{}
	}
	return &Simulator{
		cfg:     cfg,
		logs:    logs,
		log:     log,
		pending: make(map[string]chan ocpp.CallResult),
	}
}

// Connect binds the simulator to the given charge point id: any previous
// connection to another id is torn down first, a transport is opened and a
// BootNotification sent. Connecting again to the already-bound id only
// resends BootNotification.
func (s *Simulator) Connect(id string) (State, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.touch(id)

	if s.conn != nil && s.cpID == id {
		if err := s.sendBoot(s.conn); err != nil {
			return s.stateLocked(id), err
		}
		return s.stateLocked(id), nil
	}
	if s.conn != nil {
		s.disconnectLocked()
	}

	url := strings.TrimRight(s.cfg.URL, "/") + "/" + id
	dialer := websocket.Dialer{
		Subprotocols:     []string{ocpp.SubProtocol},
		HandshakeTimeout: s.callTimeout(),
	}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return s.stateLocked(id), fmt.Errorf("connect %s: %w", id, err)
	}
	s.conn = conn
	s.cpID = id
	s.readerDone = make(chan struct{})
	go s.readLoop(conn, s.readerDone)

	if err := s.sendBoot(conn); err != nil {
		s.disconnectLocked()
		return s.stateLocked(id), err
	}
	return s.stateLocked(id), nil
}

// Disconnect cancels the heartbeat and receive loops, closes the transport
// and clears connection state. Close failures are logged, not raised.
func (s *Simulator) Disconnect() (State, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.cpID != "" {
		s.touch(s.cpID)
	}
	s.disconnectLocked()
	return s.stateLocked(s.lastEventID), nil
}

// StartHeartbeat begins a recurring Heartbeat call every server-provided
// interval. Transient send failures are logged and the loop continues; only
// StopHeartbeat or Disconnect end it.
func (s *Simulator) StartHeartbeat(id string) (State, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.touch(id)
	if err := s.requireConnected(id); err != nil {
		return s.stateLocked(id), err
	}
	if s.hbCancel != nil {
		return s.stateLocked(id), nil
	}
	interval := time.Duration(s.interval) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.hbCancel = cancel
	s.hbDone = done
	go s.heartbeatLoop(ctx, s.conn, interval, done)
	return s.stateLocked(id), nil
}

// StopHeartbeat cancels the heartbeat loop and awaits its termination.
func (s *Simulator) StopHeartbeat(id string) (State, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.touch(id)
	if err := s.requireConnected(id); err != nil {
		return s.stateLocked(id), err
	}
	s.stopHeartbeatLocked()
	return s.stateLocked(id), nil
}

// Authorize presents the tag to the central system.
func (s *Simulator) Authorize(id, idTag string) (State, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.touch(id)
	if err := s.requireConnected(id); err != nil {
		return s.stateLocked(id), err
	}
	if _, err := s.call(s.conn, ocpp.ActionAuthorize, ocpp.AuthorizeRequest{IdTag: idTag}); err != nil {
		return s.stateLocked(id), err
	}
	return s.stateLocked(id), nil
}

// StartTransaction starts a transaction and records the server-minted id.
func (s *Simulator) StartTransaction(id, idTag string) (State, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.touch(id)
	if err := s.requireConnected(id); err != nil {
		return s.stateLocked(id), err
	}
	req := ocpp.StartTransactionRequest{
		ConnectorID: 1,
		IdTag:       idTag,
		MeterStart:  0,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	res, err := s.call(s.conn, ocpp.ActionStartTransaction, req)
	if err != nil {
		return s.stateLocked(id), err
	}
	var conf ocpp.StartTransactionConfirmation
	if err := json.Unmarshal(res.Payload, &conf); err != nil {
		return s.stateLocked(id), fmt.Errorf("decode StartTransaction reply: %w", err)
	}
	tx := conf.TransactionID
	s.txID = &tx
	return s.stateLocked(id), nil
}

// StopTransaction stops the active transaction and clears the stored id.
// Calling it without an active transaction is a caller error.
func (s *Simulator) StopTransaction(id string) (State, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.touch(id)
	if err := s.requireConnected(id); err != nil {
		return s.stateLocked(id), err
	}
	if s.txID == nil {
		return s.stateLocked(id), ErrNoTransaction
	}
	req := ocpp.StopTransactionRequest{
		MeterStop:     10,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		TransactionID: *s.txID,
	}
	if _, err := s.call(s.conn, ocpp.ActionStopTransaction, req); err != nil {
		return s.stateLocked(id), err
	}
	s.txID = nil
	return s.stateLocked(id), nil
}

// Status reports whether the simulator is connected to id and the timestamp
// of the most recent lifecycle event, nil when id was never the most recently
// active device.
func (s *Simulator) Status(id string) State {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stateLocked(id)
}

func (s *Simulator) stateLocked(id string) State {
	st := State{
		Connected:     s.conn != nil && s.cpID == id,
		ChargePointID: s.cpID,
		Interval:      s.interval,
	}
	if s.txID != nil {
		tx := *s.txID
		st.TransactionID = &tx
	}
	if s.lastEventID == id && !s.lastEventAt.IsZero() {
		last := s.lastEventAt
		st.LastEvent = &last
	}
	return st
}

func (s *Simulator) requireConnected(id string) error {
	if s.conn == nil || s.cpID != id {
		return fmt.Errorf("%w: %s", ErrNotConnected, id)
	}
	return nil
}

func (s *Simulator) touch(id string) {
	s.lastEventID = id
	s.lastEventAt = time.Now().UTC()
}

func (s *Simulator) callTimeout() time.Duration {
	return time.Duration(s.cfg.CallTimeoutSeconds) * time.Second
}

func (s *Simulator) sendBoot(conn *websocket.Conn) error {
	res, err := s.call(conn, ocpp.ActionBootNotification, ocpp.BootNotificationRequest{
		ChargePointModel:  s.cfg.Model,
		ChargePointVendor: s.cfg.Vendor,
	})
	if err != nil {
		return err
	}
	var conf ocpp.BootNotificationConfirmation
	if err := json.Unmarshal(res.Payload, &conf); err != nil {
		return fmt.Errorf("decode BootNotification reply: %w", err)
	}
	if conf.Interval > 0 {
		s.interval = conf.Interval
	} else {
		s.interval = 10
	}
	return nil
}

// call performs one call round trip on the given transport, correlating the
// reply by message id.
func (s *Simulator) call(conn *websocket.Conn, action ocpp.Action, payload any) (*ocpp.CallResult, error) {
	msgID := uuid.NewString()
	ch := make(chan ocpp.CallResult, 1)
	s.pendingMu.Lock()
	s.pending[msgID] = ch
	readerDone := s.readerDone
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, msgID)
		s.pendingMu.Unlock()
	}()

	data, err := ocpp.EncodeCall(msgID, action, payload)
	if err != nil {
		return nil, err
	}
	s.logs.Record(context.Background(), runlog.SourceChargePoint, "send: "+string(data))
	s.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", action, err)
	}

	select {
	case res := <-ch:
		return &res, nil
	case <-readerDone:
		return nil, fmt.Errorf("send %s: transport closed", action)
	case <-time.After(s.callTimeout()):
		return nil, fmt.Errorf("send %s: no reply within %s", action, s.callTimeout())
	}
}

// readLoop mirrors inbound frames and routes call results to their waiters.
func (s *Simulator) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.logs.Record(context.Background(), runlog.SourceChargePoint, "recv: "+string(data))
		frame, err := ocpp.DecodeFrame(data)
		if err != nil {
			s.log.Errorf("error handling message for %s: %v", s.cfg.URL, err)
			continue
		}
		if frame.Type != ocpp.CallResultType {
			continue
		}
		s.pendingMu.Lock()
		ch, ok := s.pending[frame.Result.ID]
		s.pendingMu.Unlock()
		if ok {
			ch <- *frame.Result
		}
	}
}

// heartbeatLoop sends Heartbeat every interval until cancelled. Send failures
// are logged without stopping the loop.
func (s *Simulator) heartbeatLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.call(conn, ocpp.ActionHeartbeat, nil); err != nil {
				s.log.Errorf("heartbeat failed: %v", err)
				s.logs.Record(context.Background(), runlog.SourceChargePoint,
					fmt.Sprintf("heartbeat failed: %v", err))
			}
		}
	}
}

// stopHeartbeatLocked cancels the loop and awaits its termination so no task
// outlives the connection.
func (s *Simulator) stopHeartbeatLocked() {
	if s.hbCancel == nil {
		return
	}
	s.hbCancel()
	<-s.hbDone
	s.hbCancel = nil
	s.hbDone = nil
}

// disconnectLocked tears the connection down: heartbeat first, then the
// transport, then the receive loop.
func (s *Simulator) disconnectLocked() {
	s.stopHeartbeatLocked()
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.log.Errorf("close connection: %v", err)
		}
		if s.readerDone != nil {
			select {
			case <-s.readerDone:
			case <-time.After(s.callTimeout()):
				s.log.Errorf("receive loop did not stop in time")
			}
		}
	}
	s.conn = nil
	s.cpID = ""
	s.interval = 0
	s.txID = nil
	s.readerDone = nil
}
