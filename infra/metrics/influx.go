package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/cpflow/core/metrics"
	"github.com/kilianp07/cpflow/infra/logger"
)

// InfluxSink writes gateway events to an InfluxDB instance using the official
// client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and falls back to a
// NopSink when the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordCall(ev coremetrics.CallEvent) error {
	p := influxdb2.NewPoint("ocpp_call",
		map[string]string{"cp_id": ev.ChargePointID, "action": ev.Action},
		map[string]any{"duration_ms": float64(ev.Duration.Milliseconds())},
		ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordWorkflow(ev coremetrics.WorkflowEvent) error {
	p := influxdb2.NewPoint("workflow_run",
		map[string]string{"event": ev.Event, "workflow": ev.Workflow},
		map[string]any{"nodes": ev.Nodes, "aborted": ev.Aborted},
		ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordPipelet(ev coremetrics.PipeletEvent) error {
	p := influxdb2.NewPoint("pipelet_execution",
		map[string]string{"event": ev.Event, "node": ev.Node, "error_type": ev.ErrorType},
		map[string]any{"duration_ms": float64(ev.Duration.Milliseconds())},
		ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordSession(ev coremetrics.SessionEvent) error {
	connected := 0
	if ev.Connected {
		connected = 1
	}
	p := influxdb2.NewPoint("charge_point_session",
		map[string]string{"cp_id": ev.ChargePointID},
		map[string]any{"connected": connected},
		ev.Time)
	return s.write(p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }
