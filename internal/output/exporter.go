package output

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/strace-summary/internal/attributes"
	"github.com/mrzor/strace-summary/internal/pidtree"
	"github.com/mrzor/strace-summary/internal/registry"
	"github.com/mrzor/strace-summary/internal/report"
	"github.com/mrzor/strace-summary/internal/timesync"
)

// Exporter turns the process forest into OpenTelemetry spans.
type Exporter struct {
	tracer       trace.Tracer
	ids          *IDGenerator
	clock        *timesync.Converter
	evaluator    *attributes.Evaluator
	traceIDs     *attributes.TraceIDEvaluator
	parentIDs    *attributes.ParentIDEvaluator
	syscallSpans bool
	logger       zerolog.Logger
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithCustomAttributes attaches the evaluator's attributes to every span.
func WithCustomAttributes(e *attributes.Evaluator) ExporterOption {
	return func(x *Exporter) { x.evaluator = e }
}

// WithTraceID picks the trace ID of each root process from an expression.
func WithTraceID(e *attributes.TraceIDEvaluator) ExporterOption {
	return func(x *Exporter) { x.traceIDs = e }
}

// WithParentID parents each root process on an external span.
func WithParentID(e *attributes.ParentIDEvaluator) ExporterOption {
	return func(x *Exporter) { x.parentIDs = e }
}

// WithSyscallSpans adds a child span per file open.
func WithSyscallSpans(enabled bool) ExporterOption {
	return func(x *Exporter) { x.syscallSpans = enabled }
}

// WithExporterLogger sets the logger for evaluation warnings.
func WithExporterLogger(logger zerolog.Logger) ExporterOption {
	return func(x *Exporter) { x.logger = logger }
}

// NewExporter creates an exporter. ids must be the ID generator of the
// tracer's provider for trace ID expressions to take effect; it may be nil.
func NewExporter(tracer trace.Tracer, ids *IDGenerator, clock *timesync.Converter, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		tracer: tracer,
		ids:    ids,
		clock:  clock,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export emits one process.exec span per selected thread group, parented on
// the span of the nearest exported ancestor. It returns the number of
// process spans emitted.
func (e *Exporter) Export(ctx context.Context, reg *registry.Registry, forest *pidtree.Forest, sel report.Selection) (int, error) {
	selected := make(map[int]bool, len(sel.PIDs))
	for _, pid := range sel.PIDs {
		selected[pid] = true
	}

	spanCtx := make(map[int]trace.SpanContext, len(forest.Nodes)) // node index -> span
	exported := 0
	var walkErr error

	forest.Walk(func(idx int, n *pidtree.Node) {
		if walkErr != nil || !nodeSelected(n, selected) {
			return
		}
		if err := ctx.Err(); err != nil {
			walkErr = err
			return
		}

		parent := n.Parent
		for parent != -1 {
			if _, ok := spanCtx[parent]; ok {
				break
			}
			parent = forest.Nodes[parent].Parent
		}

		var parentCtx context.Context
		var warnings []attribute.KeyValue
		if parent == -1 {
			var err error
			parentCtx, warnings, err = e.rootContext(ctx, reg.Get(n.PID))
			if err != nil {
				walkErr = err
				return
			}
		} else {
			parentCtx = trace.ContextWithSpanContext(ctx, spanCtx[parent])
		}

		spanCtx[idx] = e.exportNode(parentCtx, reg, n, warnings)
		exported++
	})
	if walkErr != nil {
		return exported, fmt.Errorf("export aborted: %w", walkErr)
	}
	return exported, nil
}

func nodeSelected(n *pidtree.Node, selected map[int]bool) bool {
	if selected[n.PID] {
		return true
	}
	for _, t := range n.Threads {
		if selected[t] {
			return true
		}
	}
	return false
}

// rootContext prepares the context of a root span: its trace ID from the
// trace-id expression and its remote parent from the parent-id expression.
func (e *Exporter) rootContext(ctx context.Context, leader *registry.Process) (context.Context, []attribute.KeyValue, error) {
	traceID := RandomTraceID()
	var warnings []attribute.KeyValue

	if e.traceIDs != nil {
		id, w, err := e.traceIDs.EvaluateAndValidate(leader)
		if err != nil {
			return nil, nil, err
		}
		if id.IsValid() {
			traceID = id
		}
		warnings = append(warnings, w...)
	}
	e.logger.Debug().Int("pid", leader.PID).Stringer("trace_id", traceID).Msg("exporting process tree")

	if e.parentIDs != nil {
		parentID, w, err := e.parentIDs.EvaluateAndValidate(leader)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, w...)
		if parentID.IsValid() {
			remote := trace.NewSpanContext(trace.SpanContextConfig{
				TraceID:    traceID,
				SpanID:     parentID,
				TraceFlags: trace.FlagsSampled,
				Remote:     true,
			})
			return trace.ContextWithRemoteSpanContext(ctx, remote), warnings, nil
		}
	}

	if e.ids != nil {
		e.ids.SetNextTraceID(traceID)
	}
	// Drop any span carried by the caller so this span starts a new trace.
	return trace.ContextWithSpanContext(ctx, trace.SpanContext{}), warnings, nil
}

// exportNode emits the span of one thread group and returns its context.
func (e *Exporter) exportNode(ctx context.Context, reg *registry.Registry, n *pidtree.Node, warnings []attribute.KeyValue) trace.SpanContext {
	leader := reg.Get(n.PID)

	end := leader.End
	var syscalls int
	var active, wait time.Duration
	for _, pid := range append([]int{n.PID}, n.Threads...) {
		p := reg.Get(pid)
		if p == nil {
			continue
		}
		s := report.Summarize(p)
		syscalls += s.Syscalls
		active += s.ActiveTime
		wait += s.WaitTime
		end = max(end, p.End)
	}

	_, span := e.tracer.Start(ctx, "process.exec",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(e.clock.WallClock(n.Start)),
	)

	attrs := []attribute.KeyValue{
		attribute.Int("process.pid", leader.PID),
		attribute.Int("process.parent_pid", leader.ParentPID),
		attribute.String("process.command", leader.Program),
		attribute.StringSlice("process.command_args", leader.Args()),
		attribute.Int("strace.syscalls", syscalls),
		attribute.Int64("strace.active_us", active.Microseconds()),
		attribute.Int64("strace.wait_us", wait.Microseconds()),
		attribute.IntSlice("strace.threads", n.Threads),
	}
	if leader.Exit != nil {
		if leader.Exit.Killed() {
			attrs = append(attrs, attribute.String("process.killed_by", leader.Exit.Signal))
		} else {
			attrs = append(attrs, attribute.Int("process.exit_code", leader.Exit.Code))
		}
	}
	span.SetAttributes(attrs...)

	if e.evaluator != nil {
		if custom := e.evaluator.EvaluateCustomAttributes(leader); len(custom) > 0 {
			span.SetAttributes(custom...)
		}
	}
	if len(warnings) > 0 {
		span.SetAttributes(warnings...)
	}

	switch {
	case leader.Exit == nil:
	case leader.Exit.Success():
		span.SetStatus(codes.Ok, "")
	default:
		span.SetStatus(codes.Error, leader.Exit.String())
	}

	sc := span.SpanContext()
	if e.syscallSpans {
		e.exportOpens(trace.ContextWithSpan(ctx, span), reg, n)
	}

	span.End(trace.WithTimestamp(e.clock.WallClock(end)))
	return sc
}

// exportOpens emits one child span per file open of the group.
func (e *Exporter) exportOpens(ctx context.Context, reg *registry.Registry, n *pidtree.Node) {
	for _, pid := range append([]int{n.PID}, n.Threads...) {
		p := reg.Get(pid)
		if p == nil {
			continue
		}
		for _, f := range p.FileOpens {
			start := f.Time
			_, span := e.tracer.Start(ctx, f.Syscall,
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithTimestamp(e.clock.WallClock(start)),
			)
			span.SetAttributes(
				attribute.Int("process.pid", pid),
				attribute.String("file.path", f.Path),
				attribute.Int64("strace.duration_us", f.Duration.Microseconds()),
			)
			if f.Errno != "" {
				span.SetAttributes(attribute.String("strace.errno", f.Errno))
				span.SetStatus(codes.Error, f.Errno)
			}
			span.End(trace.WithTimestamp(e.clock.WallClock(start.Add(f.Duration))))
		}
	}
}
