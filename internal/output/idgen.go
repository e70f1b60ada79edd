package output

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// IDGenerator issues random span IDs and lets the exporter choose the trace
// ID of the next root span. It satisfies sdktrace.IDGenerator.
type IDGenerator struct {
	mu   sync.Mutex
	next trace.TraceID
}

// NewIDGenerator returns a generator with no pending trace ID.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// SetNextTraceID makes id the trace ID of the next root span. A zero id
// selects a random one.
func (g *IDGenerator) SetNextTraceID(id trace.TraceID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next = id
}

// NewIDs returns the pending trace ID, or a random one, with a new span ID.
func (g *IDGenerator) NewIDs(_ context.Context) (trace.TraceID, trace.SpanID) {
	g.mu.Lock()
	tid := g.next
	g.next = trace.TraceID{}
	g.mu.Unlock()

	if !tid.IsValid() {
		tid = RandomTraceID()
	}
	return tid, randomSpanID()
}

// NewSpanID returns a random span ID.
func (g *IDGenerator) NewSpanID(_ context.Context, _ trace.TraceID) trace.SpanID {
	return randomSpanID()
}

// RandomTraceID returns a random, valid trace ID.
func RandomTraceID() trace.TraceID {
	return trace.TraceID(uuid.New())
}

func randomSpanID() trace.SpanID {
	for {
		u := uuid.New()
		var sid trace.SpanID
		copy(sid[:], u[:8])
		if sid.IsValid() {
			return sid
		}
	}
}
