package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kilianp07/cpflow/infra/logger"
	"github.com/kilianp07/cpflow/internal/eventbus"
)

// Bridge forwards protocol events from the in-process bus to an MQTT broker.
// Topics follow <prefix>/<cp_id>/<kind>.
type Bridge struct {
	pub    Publisher
	bus    *eventbus.Bus
	prefix string
	log    logger.Logger

	sub  <-chan eventbus.ProtocolEvent
	done chan struct{}
	once sync.Once
}

// NewBridge wires the publisher to the event bus.
func NewBridge(pub Publisher, bus *eventbus.Bus, prefix string) *Bridge {
	if prefix == "" {
		prefix = "cpflow"
	}
	return &Bridge{
		pub:    pub,
		bus:    bus,
		prefix: prefix,
		log:    logger.New("mqtt_bridge"),
		done:   make(chan struct{}),
	}
}

// Start subscribes to the bus and forwards events until Close is called or
// the bus shuts down.
func (b *Bridge) Start() {
	b.sub = b.bus.Subscribe()
	go func() {
		defer close(b.done)
		for ev := range b.sub {
			b.forward(ev)
		}
	}()
}

func (b *Bridge) forward(ev eventbus.ProtocolEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.log.Errorf("encode event: %v", err)
		return
	}
	topic := fmt.Sprintf("%s/%s/%s", b.prefix, ev.ChargePointID, ev.Kind)
	if err := b.pub.Publish(topic, payload); err != nil {
		b.log.Errorf("publish %s: %v", topic, err)
	}
}

// Close stops forwarding and disconnects the publisher.
func (b *Bridge) Close() {
	b.once.Do(func() {
		if b.sub != nil {
			b.bus.Unsubscribe(b.sub)
			<-b.done
		}
		b.pub.Close()
	})
}
