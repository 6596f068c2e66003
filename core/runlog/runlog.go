// Package runlog defines the append-only run log fed by the protocol server,
// the simulator and the workflow engine.
package runlog

import (
	"context"
	"time"

	"github.com/kilianp07/cpflow/core/logger"
)

// Source classifies who produced a log entry.
type Source string

const (
	// SourceChargePoint tags entries produced by the simulator side.
	SourceChargePoint Source = "cp"
	// SourceCentralSystem tags entries produced by the server side.
	SourceCentralSystem Source = "cs"
	// SourcePipelet tags per-node workflow execution entries.
	SourcePipelet Source = "pipelet"
)

// Record is one persisted run log entry.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`
	Message   string    `json:"message"`
}

// Query filters records on retrieval.
type Query struct {
	Start  time.Time
	End    time.Time
	Source Source
	Limit  int
}

// Store persists records and supports querying. Retrieval serves the
// administrative surface; the gateway core only appends.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// Sink is the best-effort append half used by the core. Implementations must
// never let a write failure reach the caller.
type Sink interface {
	Record(ctx context.Context, src Source, message string)
}

// Recorder adapts a Store into a Sink. Store errors are logged and dropped so
// log persistence can never disturb protocol or workflow handling.
type Recorder struct {
	store Store
	log   logger.Logger
}

// NewRecorder wraps the store. A nil logger disables failure reporting.
func NewRecorder(store Store, log logger.Logger) *Recorder {
	return &Recorder{store: store, log: log}
}

// Record appends one entry. Empty messages are skipped.
func (r *Recorder) Record(ctx context.Context, src Source, message string) {
	if message == "" || r.store == nil {
		return
	}
	rec := Record{Timestamp: time.Now().UTC(), Source: src, Message: message}
	if err := r.store.Append(ctx, rec); err != nil && r.log != nil {
		r.log.Errorf("append run log: %v", err)
	}
}

// NopSink discards every entry.
type NopSink struct{}

func (NopSink) Record(context.Context, Source, string) {}
