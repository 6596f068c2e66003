package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/cpflow/core/metrics"
)

func TestPromSinkRecordsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordCall(coremetrics.CallEvent{ChargePointID: "CP_1", Action: "Heartbeat", Duration: time.Millisecond}))
	require.NoError(t, sink.RecordWorkflow(coremetrics.WorkflowEvent{Event: "Heartbeat", Workflow: "wf", Nodes: 2}))
	require.NoError(t, sink.RecordPipelet(coremetrics.PipeletEvent{Event: "Heartbeat", Node: "1", Duration: time.Millisecond}))
	require.NoError(t, sink.RecordSession(coremetrics.SessionEvent{ChargePointID: "CP_1", Connected: true}))
	require.NoError(t, sink.RecordSession(coremetrics.SessionEvent{ChargePointID: "CP_1", Connected: false}))

	ps := sink.(*PromSink)
	assert.Equal(t, float64(1), testutil.ToFloat64(ps.calls.WithLabelValues("CP_1", "Heartbeat")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ps.workflows.WithLabelValues("Heartbeat", "wf", "false")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ps.pipelets.WithLabelValues("Heartbeat", "")))
	assert.Equal(t, float64(0), testutil.ToFloat64(ps.sessions))
}

func TestPromSinkDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	require.NoError(t, err)
	_, err = NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	assert.NoError(t, err, "re-registration reuses existing collectors")
}

func TestNewSinkDefaultsToNop(t *testing.T) {
	sink, err := NewSink(coremetrics.Config{})
	require.NoError(t, err)
	_, ok := sink.(coremetrics.NopSink)
	assert.True(t, ok)
}

func TestMultiSinkFansOut(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	require.NoError(t, err)
	multi := NewMultiSink(a, coremetrics.NopSink{})
	require.NoError(t, multi.RecordCall(coremetrics.CallEvent{ChargePointID: "CP_2", Action: "Authorize"}))
	assert.Equal(t, float64(1), testutil.ToFloat64(a.(*PromSink).calls.WithLabelValues("CP_2", "Authorize")))
}
