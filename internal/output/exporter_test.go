package output

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/strace-summary/internal/attributes"
	"github.com/mrzor/strace-summary/internal/config"
	"github.com/mrzor/strace-summary/internal/pidtree"
	"github.com/mrzor/strace-summary/internal/registry"
	"github.com/mrzor/strace-summary/internal/report"
	"github.com/mrzor/strace-summary/internal/timesync"
)

const fixedTraceID = "0123456789abcdef0123456789abcdef"

var anchor = time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)

// exportRegistry holds sh (1) running a threaded child (2, thread 3) that
// spawns a failing grandchild (4).
func exportRegistry() *registry.Registry {
	reg := registry.New()
	reg.Touch(1, 0)
	reg.AddExec(1, registry.Exec{Time: 0, Program: "/bin/sh", Args: []string{"sh", "-c", "build"}})
	reg.AddChild(1, 2, 10, false)
	reg.AddChild(2, 3, 20, true)
	reg.AddChild(2, 4, 30, false)
	reg.AddExec(4, registry.Exec{Time: 30, Program: "/usr/bin/cc", Args: []string{"cc", "main.c"}})
	reg.AddSyscall(4, "openat", 5*time.Microsecond, true, "")
	reg.AddFileOpen(4, registry.FileOpen{Time: 40, Duration: 5 * time.Microsecond, Syscall: "openat", Path: "/src/main.c"})
	reg.SetExit(4, registry.ExitStatus{Time: 60, Code: 1})
	reg.Touch(3, 70)
	reg.SetExit(1, registry.ExitStatus{Time: 100})
	reg.Freeze()
	return reg
}

type harness struct {
	recorder *tracetest.SpanRecorder
	exporter *Exporter
}

func newHarness(t *testing.T, opts ...ExporterOption) *harness {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	ids := NewIDGenerator()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr), sdktrace.WithIDGenerator(ids))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return &harness{
		recorder: sr,
		exporter: NewExporter(tp.Tracer("test"), ids, timesync.NewConverter(anchor), opts...),
	}
}

func attr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

// processSpans indexes process.exec spans by PID.
func processSpans(t *testing.T, sr *tracetest.SpanRecorder) map[int]sdktrace.ReadOnlySpan {
	t.Helper()
	out := make(map[int]sdktrace.ReadOnlySpan)
	for _, s := range sr.Ended() {
		if s.Name() != "process.exec" {
			continue
		}
		pid, ok := attr(s, "process.pid")
		require.True(t, ok)
		out[int(pid.AsInt64())] = s
	}
	return out
}

func TestExporter_Hierarchy(t *testing.T) {
	traceIDs, err := attributes.NewTraceIDEvaluator(`"` + fixedTraceID + `"`)
	require.NoError(t, err)
	custom, err := attributes.NewEvaluator([]config.CustomAttribute{{Name: "tool", Expression: `args[0]`}}, zerolog.Nop())
	require.NoError(t, err)

	h := newHarness(t, WithTraceID(traceIDs), WithCustomAttributes(custom), WithSyscallSpans(true))
	reg := exportRegistry()

	n, err := h.exporter.Export(context.Background(), reg, pidtree.Build(reg), report.Select(reg, report.SelectOptions{}))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	spans := processSpans(t, h.recorder)
	require.Len(t, spans, 3)
	root, child, grandchild := spans[1], spans[2], spans[4]

	want, err := trace.TraceIDFromHex(fixedTraceID)
	require.NoError(t, err)
	for pid, s := range spans {
		assert.Equal(t, want, s.SpanContext().TraceID(), "pid %d", pid)
	}

	assert.False(t, root.Parent().IsValid())
	assert.Equal(t, root.SpanContext().SpanID(), child.Parent().SpanID())
	assert.Equal(t, child.SpanContext().SpanID(), grandchild.Parent().SpanID())

	assert.True(t, root.StartTime().Equal(anchor))
	assert.True(t, root.EndTime().Equal(anchor.Add(100*time.Microsecond)))
	assert.True(t, child.EndTime().Equal(anchor.Add(70*time.Microsecond)), "thread activity extends the group")

	threads, ok := attr(child, "strace.threads")
	require.True(t, ok)
	assert.Equal(t, []int64{3}, threads.AsInt64Slice())

	tool, ok := attr(root, "tool")
	require.True(t, ok)
	assert.Equal(t, "sh", tool.AsString())

	assert.Equal(t, codes.Ok, root.Status().Code)
	assert.Equal(t, codes.Unset, child.Status().Code)
	assert.Equal(t, codes.Error, grandchild.Status().Code)
	assert.Equal(t, "exited with 1", grandchild.Status().Description)
	code, ok := attr(grandchild, "process.exit_code")
	require.True(t, ok)
	assert.Equal(t, int64(1), code.AsInt64())

	var opens []sdktrace.ReadOnlySpan
	for _, s := range h.recorder.Ended() {
		if s.Name() == "openat" {
			opens = append(opens, s)
		}
	}
	require.Len(t, opens, 1)
	assert.Equal(t, grandchild.SpanContext().SpanID(), opens[0].Parent().SpanID())
	assert.True(t, opens[0].EndTime().Sub(opens[0].StartTime()) == 5*time.Microsecond)
	path, _ := attr(opens[0], "file.path")
	assert.Equal(t, "/src/main.c", path.AsString())
}

func TestExporter_SelectionReparents(t *testing.T) {
	h := newHarness(t)
	reg := exportRegistry()

	sel := report.Select(reg, report.SelectOptions{PIDs: []int{1, 4}})
	n, err := h.exporter.Export(context.Background(), reg, pidtree.Build(reg), sel)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	spans := processSpans(t, h.recorder)
	require.Len(t, spans, 2)
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[4].Parent().SpanID())
	assert.Equal(t, spans[1].SpanContext().TraceID(), spans[4].SpanContext().TraceID())
}

func TestExporter_RemoteParent(t *testing.T) {
	traceIDs, err := attributes.NewTraceIDEvaluator(`"` + fixedTraceID + `"`)
	require.NoError(t, err)
	parentIDs, err := attributes.NewParentIDEvaluator(`"00f067aa0ba902b7"`)
	require.NoError(t, err)

	h := newHarness(t, WithTraceID(traceIDs), WithParentID(parentIDs))
	reg := exportRegistry()

	_, err = h.exporter.Export(context.Background(), reg, pidtree.Build(reg), report.Select(reg, report.SelectOptions{PIDs: []int{1}}))
	require.NoError(t, err)

	spans := processSpans(t, h.recorder)
	require.Len(t, spans, 1)
	root := spans[1]
	assert.Equal(t, "00f067aa0ba902b7", root.Parent().SpanID().String())
	assert.True(t, root.Parent().IsRemote())
	assert.Equal(t, fixedTraceID, root.SpanContext().TraceID().String())
}

func TestExporter_InvalidTraceIDIsHashedAndFlagged(t *testing.T) {
	traceIDs, err := attributes.NewTraceIDEvaluator(`program`)
	require.NoError(t, err)

	h := newHarness(t, WithTraceID(traceIDs))
	reg := exportRegistry()

	_, err = h.exporter.Export(context.Background(), reg, pidtree.Build(reg), report.Select(reg, report.SelectOptions{PIDs: []int{1}}))
	require.NoError(t, err)

	root := processSpans(t, h.recorder)[1]
	require.NotNil(t, root)
	result, ok := attr(root, "_trace_id_expr_result")
	require.True(t, ok)
	assert.Equal(t, "/bin/sh", result.AsString())
	assert.True(t, root.SpanContext().TraceID().IsValid())
}

func TestExporter_KilledProcess(t *testing.T) {
	reg := registry.New()
	reg.Touch(9, 0)
	reg.SetExit(9, registry.ExitStatus{Time: 10, Signal: "SIGKILL"})
	reg.Freeze()

	h := newHarness(t)
	_, err := h.exporter.Export(context.Background(), reg, pidtree.Build(reg), report.Select(reg, report.SelectOptions{}))
	require.NoError(t, err)

	span := processSpans(t, h.recorder)[9]
	require.NotNil(t, span)
	assert.Equal(t, codes.Error, span.Status().Code)
	sig, ok := attr(span, "process.killed_by")
	require.True(t, ok)
	assert.Equal(t, "SIGKILL", sig.AsString())
	_, ok = attr(span, "process.exit_code")
	assert.False(t, ok)
}

func TestExporter_Cancelled(t *testing.T) {
	h := newHarness(t)
	reg := exportRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.exporter.Export(ctx, reg, pidtree.Build(reg), report.Select(reg, report.SelectOptions{}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIDGenerator(t *testing.T) {
	ids := NewIDGenerator()
	want, err := trace.TraceIDFromHex(fixedTraceID)
	require.NoError(t, err)

	ids.SetNextTraceID(want)
	got, sid := ids.NewIDs(context.Background())
	assert.Equal(t, want, got)
	assert.True(t, sid.IsValid())

	// The pending ID is used once.
	next, _ := ids.NewIDs(context.Background())
	assert.NotEqual(t, want, next)
	assert.True(t, next.IsValid())
}
