// Package app assembles the gateway from its configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/cpflow/config"
	"github.com/kilianp07/cpflow/core/csms"
	"github.com/kilianp07/cpflow/core/pipelet"
	corerunlog "github.com/kilianp07/cpflow/core/runlog"
	"github.com/kilianp07/cpflow/core/workflow"
	"github.com/kilianp07/cpflow/infra/logger"
	"github.com/kilianp07/cpflow/infra/metrics"
	"github.com/kilianp07/cpflow/infra/mqtt"
	"github.com/kilianp07/cpflow/infra/runlog"
	"github.com/kilianp07/cpflow/infra/workflowstore"
	"github.com/kilianp07/cpflow/internal/eventbus"
)

// Service orchestrates the protocol server, the workflow engine and their
// supporting stores.
type Service struct {
	Server    *csms.Server
	Engine    *workflow.Engine
	Workflows *workflowstore.SQLiteStore

	bus         *eventbus.Bus
	bridge      *mqtt.Bridge
	logStore    corerunlog.Store
	log         logger.Logger
	promEnabled bool
	promPort    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	var sink corerunlog.Sink
	var logStore corerunlog.Store
	switch cfg.Runlog.Backend {
	case "jsonl":
		store, err := runlog.NewJSONLStore(cfg.Runlog.Path)
		if err != nil {
			return nil, fmt.Errorf("runlog store: %w", err)
		}
		logStore = store
		sink = corerunlog.NewRecorder(store, logg)
	case "sqlite":
		store, err := runlog.NewSQLiteStore(cfg.Runlog.Path)
		if err != nil {
			return nil, fmt.Errorf("runlog store: %w", err)
		}
		logStore = store
		sink = corerunlog.NewRecorder(store, logg)
	default:
		sink = corerunlog.NewMemorySink()
	}

	workflows, err := workflowstore.NewSQLiteStore(cfg.Workflows.Path)
	if err != nil {
		return nil, fmt.Errorf("workflow store: %w", err)
	}

	metricSink, err := metrics.NewSink(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metric sink: %w", err)
	}

	runner := pipelet.NewSubprocessRunner(cfg.Pipelet.Interpreter)
	engine := workflow.NewEngine(workflows, runner, sink, logger.New("workflow"),
		workflow.WithNodeTimeout(time.Duration(cfg.Pipelet.NodeTimeoutMS)*time.Millisecond),
		workflow.WithMetrics(metricSink))

	bus := eventbus.New()
	server := csms.NewServer(cfg.Server, engine, sink, logger.New("csms"),
		csms.WithMetrics(metricSink), csms.WithBus(bus))

	svc := &Service{
		Server:      server,
		Engine:      engine,
		Workflows:   workflows,
		bus:         bus,
		logStore:    logStore,
		log:         logg,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promPort:    cfg.Metrics.PrometheusPort,
	}

	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewPahoPublisher(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		svc.bridge = mqtt.NewBridge(pub, bus, cfg.MQTT.TopicPrefix)
	}

	return svc, nil
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Server.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	s.log.Infof("listening on %s", s.Server.Addr())
	if s.bridge != nil {
		s.bridge.Start()
	}
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	<-ctx.Done()
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	err := s.Server.Close()
	if s.bridge != nil {
		s.bridge.Close()
	}
	s.bus.Close()
	if cerr := s.Workflows.Close(); err == nil {
		err = cerr
	}
	if s.logStore != nil {
		if cerr := s.logStore.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
