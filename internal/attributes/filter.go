package attributes

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"

	"github.com/mrzor/strace-summary/internal/registry"
)

// Filter selects processes with a boolean expression.
type Filter struct {
	program *vm.Program
	rawExpr string
}

// NewFilter compiles a filter expression. It must evaluate to a bool.
func NewFilter(exprStr string) (*Filter, error) {
	program, err := expr.Compile(exprStr, expr.Env(exprEnv()), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter expression: %w", err)
	}
	return &Filter{program: program, rawExpr: exprStr}, nil
}

// Match evaluates the filter against p.
func (f *Filter) Match(p *registry.Process) (bool, error) {
	if p == nil {
		return false, nil
	}
	output, err := expr.Run(f.program, Env(p))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter %q for pid %d: %w", f.rawExpr, p.PID, err)
	}
	matched, _ := output.(bool)
	return matched, nil
}

// Predicate adapts Match for report selection. Evaluation errors are logged
// and exclude the process.
func (f *Filter) Predicate(logger zerolog.Logger) func(*registry.Process) bool {
	return func(p *registry.Process) bool {
		ok, err := f.Match(p)
		if err != nil {
			logger.Warn().Err(err).Msg("filter evaluation failed")
			return false
		}
		return ok
	}
}
