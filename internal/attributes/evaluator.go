package attributes

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mrzor/strace-summary/internal/config"
	"github.com/mrzor/strace-summary/internal/registry"
)

// Evaluator handles compilation and evaluation of custom attribute expressions.
type Evaluator struct {
	customAttrs   []config.CustomAttribute
	compiledExprs []*vm.Program
	logger        zerolog.Logger
}

// NewEvaluator creates a new attribute evaluator.
// It pre-compiles all custom attribute expressions for efficiency.
func NewEvaluator(customAttrs []config.CustomAttribute, logger zerolog.Logger) (*Evaluator, error) {
	compiledExprs := make([]*vm.Program, len(customAttrs))
	for i, attr := range customAttrs {
		program, err := expr.Compile(attr.Expression, expr.Env(exprEnv()))
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression for attribute %q: %w", attr.Name, err)
		}
		compiledExprs[i] = program
	}

	return &Evaluator{
		customAttrs:   customAttrs,
		compiledExprs: compiledExprs,
		logger:        logger,
	}, nil
}

// EvaluateCustomAttributes evaluates custom attribute expressions for a process.
// A failing expression is logged and skipped.
func (e *Evaluator) EvaluateCustomAttributes(p *registry.Process) []attribute.KeyValue {
	if len(e.customAttrs) == 0 || p == nil {
		return nil
	}

	env := Env(p)
	var attrs []attribute.KeyValue
	for i, customAttr := range e.customAttrs {
		output, err := expr.Run(e.compiledExprs[i], env)
		if err != nil {
			e.logger.Warn().
				Err(err).
				Str("attribute", customAttr.Name).
				Int("pid", p.PID).
				Msg("failed to evaluate attribute expression")
			continue
		}
		attrs = append(attrs, toAttributes(customAttr.Name, output)...)
	}

	return attrs
}

// toAttributes converts an expression result. Maps expand into one
// attribute per key with dot notation, in key order.
func toAttributes(name string, output interface{}) []attribute.KeyValue {
	outputValue := reflect.ValueOf(output)
	if outputValue.Kind() != reflect.Map {
		return []attribute.KeyValue{toAttribute(name, output)}
	}

	keys := outputValue.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
	})
	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, key := range keys {
		attrName := name + "." + sanitizeAttributeName(fmt.Sprint(key.Interface()))
		attrs = append(attrs, toAttribute(attrName, outputValue.MapIndex(key).Interface()))
	}
	return attrs
}

// toAttribute keeps scalar types and formats anything else with %v.
func toAttribute(name string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case bool:
		return attribute.Bool(name, v)
	case int:
		return attribute.Int(name, v)
	case int64:
		return attribute.Int64(name, v)
	case float64:
		return attribute.Float64(name, v)
	case string:
		return attribute.String(name, v)
	case []string:
		return attribute.StringSlice(name, v)
	default:
		return attribute.String(name, fmt.Sprint(value))
	}
}

// sanitizeAttributeName replaces non-alphanumeric characters with underscores.
// This ensures attribute names are safe for OpenTelemetry.
func sanitizeAttributeName(name string) string {
	result := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result[i] = c
		} else {
			result[i] = '_'
		}
	}
	return string(result)
}
