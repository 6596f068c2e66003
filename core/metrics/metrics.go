// Package metrics defines the observability events emitted by the gateway
// and the sink interfaces implemented under infra/metrics.
package metrics

import "time"

// CallEvent records one handled protocol call.
type CallEvent struct {
	ChargePointID string
	Action        string
	Duration      time.Duration
	Time          time.Time
}

// WorkflowEvent records one workflow dispatch.
type WorkflowEvent struct {
	Event    string
	Workflow string
	Nodes    int
	Aborted  bool
	Time     time.Time
}

// PipeletEvent records one pipelet node execution. ErrorType is empty on
// success.
type PipeletEvent struct {
	Event     string
	Node      string
	ErrorType string
	Duration  time.Duration
	Time      time.Time
}

// SessionEvent records a session opening or closing.
type SessionEvent struct {
	ChargePointID string
	Connected     bool
	Time          time.Time
}

// Sink records gateway events for observability purposes.
type Sink interface {
	RecordCall(ev CallEvent) error
	RecordWorkflow(ev WorkflowEvent) error
	RecordPipelet(ev PipeletEvent) error
	RecordSession(ev SessionEvent) error
}

// NopSink ignores all events.
type NopSink struct{}

func (NopSink) RecordCall(CallEvent) error         { return nil }
func (NopSink) RecordWorkflow(WorkflowEvent) error { return nil }
func (NopSink) RecordPipelet(PipeletEvent) error   { return nil }
func (NopSink) RecordSession(SessionEvent) error   { return nil }
