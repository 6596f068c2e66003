// Package metrics implements the core metric sinks on Prometheus and
// InfluxDB.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coremetrics "github.com/kilianp07/cpflow/core/metrics"
)

// PromSink records gateway events in Prometheus metrics.
type PromSink struct {
	calls     *prometheus.CounterVec
	workflows *prometheus.CounterVec
	pipelets  *prometheus.CounterVec
	pipeletD  *prometheus.HistogramVec
	sessions  prometheus.Gauge
}

// NewPromSink registers the gateway metrics on the default registerer.
func NewPromSink(cfg coremetrics.Config) (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global one.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ocpp_calls_total",
		Help: "Total number of handled OCPP calls",
	}, []string{"cp_id", "action"})
	workflows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_runs_total",
		Help: "Total number of workflow dispatches",
	}, []string{"event", "workflow", "aborted"})
	pipelets := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipelet_executions_total",
		Help: "Total number of pipelet node executions",
	}, []string{"event", "error_type"})
	pipeletD := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipelet_duration_seconds",
		Help:    "Pipelet execution duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"error_type"})
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "charge_point_sessions",
		Help: "Number of currently connected charge points",
	})

	if err := reg.Register(calls); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			calls = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(workflows); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			workflows = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(pipelets); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			pipelets = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(pipeletD); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			pipeletD = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(sessions); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			sessions = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromSink{calls: calls, workflows: workflows, pipelets: pipelets, pipeletD: pipeletD, sessions: sessions}, nil
}

func (s *PromSink) RecordCall(ev coremetrics.CallEvent) error {
	s.calls.WithLabelValues(ev.ChargePointID, ev.Action).Inc()
	return nil
}

func (s *PromSink) RecordWorkflow(ev coremetrics.WorkflowEvent) error {
	s.workflows.WithLabelValues(ev.Event, ev.Workflow, strconv.FormatBool(ev.Aborted)).Inc()
	return nil
}

func (s *PromSink) RecordPipelet(ev coremetrics.PipeletEvent) error {
	s.pipelets.WithLabelValues(ev.Event, ev.ErrorType).Inc()
	s.pipeletD.WithLabelValues(ev.ErrorType).Observe(ev.Duration.Seconds())
	return nil
}

func (s *PromSink) RecordSession(ev coremetrics.SessionEvent) error {
	if ev.Connected {
		s.sessions.Inc()
	} else {
		s.sessions.Dec()
	}
	return nil
}

// StartPromServer serves /metrics until the context is cancelled.
func StartPromServer(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
