package simulator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/cpflow/core/csms"
	"github.com/kilianp07/cpflow/core/pipelet"
	"github.com/kilianp07/cpflow/core/runlog"
	"github.com/kilianp07/cpflow/core/workflow"
	"github.com/kilianp07/cpflow/infra/logger"
)

type passRunner struct{}

func (passRunner) Run(_ context.Context, _ string, message, _ map[string]any, _ time.Duration) (any, string, *pipelet.Error) {
	return message, "", nil
}

func startCentralSystem(t *testing.T, heartbeatSeconds int) (*csms.Server, *runlog.MemorySink) {
	t.Helper()
	sink := runlog.NewMemorySink()
	engine := workflow.NewEngine(workflow.NewMemoryStore(), passRunner{}, sink, logger.NopLogger{})
	srv := csms.NewServer(csms.Config{
		ListenAddr:               "127.0.0.1:0",
		HeartbeatIntervalSeconds: heartbeatSeconds,
	}, engine, sink, logger.NopLogger{})
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Close() })
	return srv, sink
}

func newSimulator(t *testing.T, srv *csms.Server) (*Simulator, *runlog.MemorySink) {
	t.Helper()
	sink := runlog.NewMemorySink()
	sim := New(Config{URL: "ws://" + srv.Addr()}, sink, logger.NopLogger{})
	t.Cleanup(func() { _, _ = sim.Disconnect() })
	return sim, sink
}

func TestConnectAndStatus(t *testing.T) {
	srv, _ := startCentralSystem(t, 10)
	sim, _ := newSimulator(t, srv)

	st, err := sim.Connect("CP_1")
	require.NoError(t, err)
	assert.True(t, st.Connected)
	assert.Equal(t, 10, st.Interval, "interval comes from the BootNotification reply")
	require.NotNil(t, st.LastEvent)

	other := sim.Status("CP_2")
	assert.False(t, other.Connected)
	assert.Nil(t, other.LastEvent, "CP_2 was never the most recently active device")
}

func TestConnectSwitchesIdentity(t *testing.T) {
	srv, _ := startCentralSystem(t, 10)
	sim, _ := newSimulator(t, srv)

	_, err := sim.Connect("CP_1")
	require.NoError(t, err)
	_, err = sim.Connect("CP_2")
	require.NoError(t, err)

	assert.False(t, sim.Status("CP_1").Connected, "switching identities disconnects the previous one")
	assert.True(t, sim.Status("CP_2").Connected)
}

func TestReconnectSameIdentity(t *testing.T) {
	srv, sink := startCentralSystem(t, 10)
	sim, _ := newSimulator(t, srv)

	_, err := sim.Connect("CP_1")
	require.NoError(t, err)
	_, err = sim.Connect("CP_1")
	require.NoError(t, err)
	assert.True(t, sim.Status("CP_1").Connected)

	// The server saw exactly one connection: reconnecting to the same id
	// only resends BootNotification.
	var established int
	for _, e := range sink.BySource(runlog.SourceCentralSystem) {
		if strings.Contains(e.Message, "connection established with CP_1") {
			established++
		}
	}
	assert.Equal(t, 1, established)
}

func TestTransactionLifecycle(t *testing.T) {
	srv, _ := startCentralSystem(t, 10)
	sim, _ := newSimulator(t, srv)

	_, err := sim.Connect("CP_1")
	require.NoError(t, err)

	st, err := sim.StartTransaction("CP_1", "TAG-1")
	require.NoError(t, err)
	require.NotNil(t, st.TransactionID)
	assert.Greater(t, *st.TransactionID, 0)

	st, err = sim.StopTransaction("CP_1")
	require.NoError(t, err)
	assert.Nil(t, st.TransactionID, "stop clears the stored transaction id")
	assert.True(t, sim.Status("CP_1").Connected)

	_, err = sim.StopTransaction("CP_1")
	assert.ErrorIs(t, err, ErrNoTransaction, "a second stop must fail explicitly")
}

func TestOperationsRequireConnection(t *testing.T) {
	srv, _ := startCentralSystem(t, 10)
	sim, _ := newSimulator(t, srv)

	_, err := sim.Authorize("CP_1", "TAG")
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = sim.StartTransaction("CP_1", "TAG")
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = sim.StartHeartbeat("CP_1")
	assert.ErrorIs(t, err, ErrNotConnected)

	// Connected to CP_1 does not satisfy operations aimed at CP_2.
	_, err = sim.Connect("CP_1")
	require.NoError(t, err)
	_, err = sim.Authorize("CP_2", "TAG")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestAuthorize(t *testing.T) {
	srv, _ := startCentralSystem(t, 10)
	sim, _ := newSimulator(t, srv)

	_, err := sim.Connect("CP_1")
	require.NoError(t, err)
	_, err = sim.Authorize("CP_1", "ANY-TAG")
	assert.NoError(t, err, "the central system accepts any tag")
}

func TestHeartbeatLoop(t *testing.T) {
	srv, _ := startCentralSystem(t, 1)
	sim, sink := newSimulator(t, srv)

	_, err := sim.Connect("CP_1")
	require.NoError(t, err)
	st, err := sim.StartHeartbeat("CP_1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Interval)

	deadline := time.Now().Add(5 * time.Second)
	var seen bool
	for time.Now().Before(deadline) && !seen {
		for _, e := range sink.BySource(runlog.SourceChargePoint) {
			if strings.HasPrefix(e.Message, "send: ") && strings.Contains(e.Message, "Heartbeat") {
				seen = true
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	assert.True(t, seen, "heartbeat frames sent on the interval")

	_, err = sim.StopHeartbeat("CP_1")
	assert.NoError(t, err)
}

func TestDisconnectClearsState(t *testing.T) {
	srv, _ := startCentralSystem(t, 10)
	sim, _ := newSimulator(t, srv)

	_, err := sim.Connect("CP_1")
	require.NoError(t, err)
	_, err = sim.StartHeartbeat("CP_1")
	require.NoError(t, err)

	_, err = sim.Disconnect()
	require.NoError(t, err)
	assert.False(t, sim.Status("CP_1").Connected)

	// Disconnecting while already disconnected is tolerated.
	_, err = sim.Disconnect()
	assert.NoError(t, err)
}

func TestFramesMirroredWithChargePointSource(t *testing.T) {
	srv, _ := startCentralSystem(t, 10)
	sim, sink := newSimulator(t, srv)

	_, err := sim.Connect("CP_1")
	require.NoError(t, err)

	entries := sink.BySource(runlog.SourceChargePoint)
	var sawSend, sawRecv bool
	for _, e := range entries {
		if strings.HasPrefix(e.Message, "send: ") {
			sawSend = true
		}
		if strings.HasPrefix(e.Message, "recv: ") {
			sawRecv = true
		}
	}
	assert.True(t, sawSend)
	assert.True(t, sawRecv)
}
