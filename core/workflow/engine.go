// Package workflow resolves the graph bound to a protocol event, orders its
// pipelet nodes and runs them through the pipelet runtime. Nothing here is
// fatal: parse errors, cycles, missing code and per-node failures degrade to
// pass-through of the unmodified message.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kilianp07/cpflow/core/logger"
	"github.com/kilianp07/cpflow/core/metrics"
	"github.com/kilianp07/cpflow/core/pipelet"
	"github.com/kilianp07/cpflow/core/runlog"
)

// Engine executes the workflow bound to an event.
type Engine struct {
	store       Store
	runner      pipelet.Runner
	logs        runlog.Sink
	log         logger.Logger
	sink        metrics.Sink
	nodeTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithNodeTimeout overrides the default per-node timeout.
func WithNodeTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.nodeTimeout = d
		}
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(sink metrics.Sink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// NewEngine creates an Engine. A nil log sink disables run logging; a nil
// logger silences engine diagnostics.
func NewEngine(store Store, runner pipelet.Runner, logs runlog.Sink, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		runner:      runner,
		logs:        logs,
		log:         log,
		sink:        metrics.NopSink{},
		nodeTimeout: pipelet.DefaultTimeout,
	}
	if e.logs == nil {
		e.logs = runlog.NopSink{}
	}
	if e.log == nil {
		e.log = nopLogger{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunForEvent executes the workflow bound to event and returns the final
// message. When no workflow is bound, or the graph is unusable, the input
// message comes back unchanged.
func (e *Engine) RunForEvent(ctx context.Context, event string, message, execCtx map[string]any) map[string]any {
	def, err := e.store.LookupByEvent(ctx, event)
	if err != nil {
		e.log.Errorf("workflow lookup for event %s: %v", event, err)
		return message
	}
	if def == nil {
		return message
	}

	nodes, err := parseGraph(def.Graph)
	if err != nil {
		e.logs.Record(ctx, runlog.SourceCentralSystem,
			fmt.Sprintf("workflow %d has invalid graph definition; skipping execution", def.ID))
		return message
	}
	if len(nodes) == 0 {
		e.logs.Record(ctx, runlog.SourceCentralSystem,
			fmt.Sprintf("workflow %s executed for event %s with 0 nodes", def.Name, event))
		return message
	}

	order, err := topoOrder(nodes)
	if err != nil {
		e.logs.Record(ctx, runlog.SourceCentralSystem,
			fmt.Sprintf("workflow %s execution aborted: %v", def.Name, err))
		_ = e.sink.RecordWorkflow(metrics.WorkflowEvent{
			Event: event, Workflow: def.Name, Nodes: len(nodes), Aborted: true, Time: time.Now(),
		})
		return message
	}

	current := copyMap(message)
	execCtx = copyMap(execCtx)

	for _, id := range order {
		node := nodes[id]
		var (
			result any
			debug  string
			perr   *pipelet.Error
		)
		started := time.Now()
		if !node.HasCode {
			perr = &pipelet.Error{Type: pipelet.ErrTypeConfiguration, Message: "Pipelet code missing"}
		} else {
			result, debug, perr = e.runner.Run(ctx, node.Code, current, execCtx, e.nodeTimeout)
		}
		e.recordNode(ctx, event, def, node, debug, perr)
		_ = e.sink.RecordPipelet(metrics.PipeletEvent{
			Event: event, Node: node.ID, ErrorType: errType(perr),
			Duration: time.Since(started), Time: time.Now(),
		})
		// Only a structured replacement advances the chain's message.
		if replacement, ok := result.(map[string]any); ok {
			current = replacement
		}
	}

	e.logs.Record(ctx, runlog.SourceCentralSystem,
		fmt.Sprintf("workflow %s executed for event %s", def.Name, event))
	_ = e.sink.RecordWorkflow(metrics.WorkflowEvent{
		Event: event, Workflow: def.Name, Nodes: len(order), Time: time.Now(),
	})
	return current
}

// recordNode appends the structured per-node log entry.
func (e *Engine) recordNode(ctx context.Context, event string, def *Definition, node *Node, debug string, perr *pipelet.Error) {
	var pipeletName any
	if node.Pipelet != "" {
		pipeletName = node.Pipelet
	}
	var errPayload any
	if perr != nil {
		errPayload = perr
	}
	entry := map[string]any{
		"event":       event,
		"workflow_id": def.ID,
		"workflow":    def.Name,
		"node":        node.ID,
		"pipelet":     pipeletName,
		"debug":       debug,
		"error":       errPayload,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		e.log.Errorf("marshal node log entry: %v", err)
		return
	}
	e.logs.Record(ctx, runlog.SourcePipelet, string(data))
}

func errType(perr *pipelet.Error) string {
	if perr == nil {
		return ""
	}
	return perr.Type
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}
