// Package csms hosts the OCPP central system: a websocket server that owns
// one session per connected charge point and feeds protocol events into the
// workflow engine.
package csms

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kilianp07/cpflow/core/logger"
	"github.com/kilianp07/cpflow/core/metrics"
	"github.com/kilianp07/cpflow/core/ocpp"
	"github.com/kilianp07/cpflow/core/runlog"
	"github.com/kilianp07/cpflow/core/workflow"
	"github.com/kilianp07/cpflow/internal/eventbus"
)

// CloseInvalidIdentity is sent when the connection path does not carry a
// well-formed charge point id.
const CloseInvalidIdentity = 4000

// Config holds the server settings.
type Config struct {
	// ListenAddr is the websocket listen address, e.g. ":9000".
	ListenAddr string `json:"listen_addr"`
	// IdentityPrefix is the mandatory prefix of the charge point id in the
	// connection path.
	IdentityPrefix string `json:"identity_prefix"`
	// HeartbeatIntervalSeconds is advertised in BootNotification replies.
	HeartbeatIntervalSeconds int `json:"heartbeat_interval_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":9000"
	}
	if c.IdentityPrefix == "" {
		c.IdentityPrefix = "CP_"
	}
	if c.HeartbeatIntervalSeconds <= 0 {
		c.HeartbeatIntervalSeconds = 10
	}
}

// Server accepts charge point connections and assigns sessions.
type Server struct {
	cfg    Config
	engine *workflow.Engine
	logs   runlog.Sink
	log    logger.Logger
	sink   metrics.Sink
	bus    *eventbus.Bus

	upgrader websocket.Upgrader
	httpSrv  *http.Server
	listener net.Listener

	txIDs     atomic.Int64
	startOnce sync.Once
	startErr  error
	sessions  sync.Map
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics attaches a metrics sink.
func WithMetrics(sink metrics.Sink) Option {
	return func(s *Server) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithBus attaches the protocol event bus.
func WithBus(bus *eventbus.Bus) Option {
	return func(s *Server) { s.bus = bus }
}

// NewServer creates a Server. The engine must not be nil; logs may be nil.
func NewServer(cfg Config, engine *workflow.Engine, logs runlog.Sink, log logger.Logger, opts ...Option) *Server {
	cfg.SetDefaults()
	s := &Server{
		cfg:    cfg,
		engine: engine,
		logs:   logs,
		log:    log,
		sink:   metrics.NopSink{},
	}
	if s.logs == nil {
		s.logs = runlog.NopSink{}
	}
	s.upgrader = websocket.Upgrader{
		Subprotocols:    []string{ocpp.SubProtocol},
		CheckOrigin:     func(*http.Request) bool { return true },
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listen address and serves connections. It is idempotent:
// subsequent calls return the outcome of the first.
func (s *Server) Start() error {
	s.startOnce.Do(func() {
		ln, err := net.Listen("tcp", s.cfg.ListenAddr)
		if err != nil {
			s.startErr = fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
			return
		}
		s.listener = ln
		s.httpSrv = &http.Server{Handler: s}
		go func() {
			if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
				s.log.Errorf("serve: %v", err)
			}
		}()
		s.log.Infof("central system listening on %s", ln.Addr())
	})
	return s.startErr
}

// Addr returns the bound listen address, empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops the listener and drops all live sessions.
func (s *Server) Close() error {
	s.sessions.Range(func(_, v any) bool {
		v.(*session).close()
		return true
	})
	if s.httpSrv != nil {
		return s.httpSrv.Close()
	}
	return nil
}

// NextTransactionID mints a fresh protocol-wide transaction id.
func (s *Server) NextTransactionID() int {
	return int(s.txIDs.Add(1))
}

// ServeHTTP upgrades the connection and runs the session loop. An invalid
// identity is rejected with a protocol-level close code and never becomes a
// session.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	cpID, ok := s.extractIdentity(r.URL.Path)
	if !ok {
		msg := websocket.FormatCloseMessage(CloseInvalidIdentity, "Invalid charge point id")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	sess := newSession(cpID, conn, s)
	s.sessions.Store(cpID, sess)
	defer s.sessions.Delete(cpID)
	sess.run()
}

// extractIdentity parses the charge point id from the final path segment.
func (s *Server) extractIdentity(path string) (string, bool) {
	candidate := strings.Trim(path, "/")
	if idx := strings.LastIndex(candidate, "/"); idx >= 0 {
		candidate = candidate[idx+1:]
	}
	if candidate == "" || !strings.HasPrefix(candidate, s.cfg.IdentityPrefix) {
		return "", false
	}
	return candidate, true
}

func (s *Server) publish(ev eventbus.ProtocolEvent) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}
