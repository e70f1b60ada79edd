package attributes

import (
	"crypto/sha256"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/strace-summary/internal/registry"
)

// idExpression is a compiled expression whose result names a trace or span
// ID. A nil program means no expression was given.
type idExpression struct {
	program *vm.Program
	flag    string
}

func compileID(flag, source string) (idExpression, error) {
	x := idExpression{flag: flag}
	if source == "" {
		return x, nil
	}
	program, err := expr.Compile(source, expr.Env(exprEnv()))
	if err != nil {
		return x, fmt.Errorf("failed to compile %s expression: %w", flag, err)
	}
	x.program = program
	return x, nil
}

// eval returns the string form of the result. ok is false without an
// expression.
func (x idExpression) eval(p *registry.Process) (result string, ok bool, err error) {
	if x.program == nil {
		return "", false, nil
	}
	if p == nil {
		return "", false, fmt.Errorf("%s: no process to evaluate against", x.flag)
	}
	out, err := expr.Run(x.program, Env(p))
	if err != nil {
		return "", false, fmt.Errorf("failed to evaluate %s expression: %w", x.flag, err)
	}
	return fmt.Sprint(out), true, nil
}

// TraceIDEvaluator picks the trace ID of an exported process tree.
type TraceIDEvaluator struct {
	idExpression
}

// NewTraceIDEvaluator compiles exprStr. An empty exprStr leaves the choice
// to the caller, usually a random ID.
func NewTraceIDEvaluator(exprStr string) (*TraceIDEvaluator, error) {
	x, err := compileID("trace-id", exprStr)
	if err != nil {
		return nil, err
	}
	return &TraceIDEvaluator{x}, nil
}

// EvaluateAndValidate evaluates the expression against the root process of a
// tree. A result of 32 hex digits is used as is; anything else is hashed with
// SHA-256 and reported through the returned span attributes. The zero
// TraceID is returned when no expression is configured.
func (e *TraceIDEvaluator) EvaluateAndValidate(p *registry.Process) (trace.TraceID, []attribute.KeyValue, error) {
	result, ok, err := e.eval(p)
	if err != nil || !ok {
		return trace.TraceID{}, nil, err
	}

	if len(result) == 32 {
		if id, err := trace.TraceIDFromHex(result); err == nil {
			return id, nil, nil
		}
	}

	sum := sha256.Sum256([]byte(result))
	var id trace.TraceID
	copy(id[:], sum[:len(id)])

	return id, []attribute.KeyValue{
		attribute.String("_trace_id_expr_result", result),
		attribute.String("_trace_id_invalid_warning",
			fmt.Sprintf("Expression result %q is not a valid 32-char hex trace ID, used SHA-256 hash instead", result)),
	}, nil
}

// ParentIDEvaluator names an existing span that root processes attach to.
type ParentIDEvaluator struct {
	idExpression
}

// NewParentIDEvaluator compiles exprStr. An empty exprStr means root spans
// have no parent.
func NewParentIDEvaluator(exprStr string) (*ParentIDEvaluator, error) {
	x, err := compileID("parent-id", exprStr)
	if err != nil {
		return nil, err
	}
	return &ParentIDEvaluator{x}, nil
}

// EvaluateAndValidate returns the parent span ID for a root process. Results
// other than 16 hex digits yield the zero SpanID plus warning attributes.
func (e *ParentIDEvaluator) EvaluateAndValidate(p *registry.Process) (trace.SpanID, []attribute.KeyValue, error) {
	result, ok, err := e.eval(p)
	if err != nil || !ok {
		return trace.SpanID{}, nil, err
	}

	if len(result) == 16 {
		if id, err := trace.SpanIDFromHex(result); err == nil {
			return id, nil, nil
		}
	}

	return trace.SpanID{}, []attribute.KeyValue{
		attribute.String("_parent_id_expr_result", result),
		attribute.String("_parent_id_invalid_warning",
			fmt.Sprintf("Expression result %q is not a valid 16-char hex span ID, using null parent ID instead", result)),
	}, nil
}
