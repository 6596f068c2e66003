package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/cpflow/internal/eventbus"
)

func TestBridgeForwardsEvents(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	pub := NewMockPublisher()
	bridge := NewBridge(pub, bus, "cpflow")
	bridge.Start()

	bus.Publish(eventbus.ProtocolEvent{
		Kind:          eventbus.KindSessionOpened,
		ChargePointID: "CP_1",
		Time:          time.Now(),
	})
	bus.Publish(eventbus.ProtocolEvent{
		Kind:          eventbus.KindCallHandled,
		ChargePointID: "CP_1",
		Action:        "Heartbeat",
		Time:          time.Now(),
	})

	require.Eventually(t, func() bool {
		return len(pub.Messages("cpflow/CP_1/call_handled")) == 1
	}, time.Second, 10*time.Millisecond)

	opened := pub.Messages("cpflow/CP_1/session_opened")
	require.Len(t, opened, 1)
	var ev eventbus.ProtocolEvent
	require.NoError(t, json.Unmarshal(opened[0], &ev))
	assert.Equal(t, eventbus.KindSessionOpened, ev.Kind)
	assert.Equal(t, "CP_1", ev.ChargePointID)

	var handled eventbus.ProtocolEvent
	require.NoError(t, json.Unmarshal(pub.Messages("cpflow/CP_1/call_handled")[0], &handled))
	assert.Equal(t, "Heartbeat", handled.Action)

	bridge.Close()
	assert.True(t, pub.Closed())
}

func TestBridgeCloseIdempotent(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	bridge := NewBridge(NewMockPublisher(), bus, "")
	bridge.Start()
	bridge.Close()
	bridge.Close()
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, "cpflow-gateway", cfg.ClientID)
	assert.Equal(t, "cpflow", cfg.TopicPrefix)
}

func TestLoadTLSConfigRequiresPaths(t *testing.T) {
	_, err := Config{UseTLS: true}.LoadTLSConfig()
	assert.Error(t, err)
}
