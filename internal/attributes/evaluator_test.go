package attributes

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mrzor/strace-summary/internal/config"
	"github.com/mrzor/strace-summary/internal/registry"
)

// sampleProcess returns pid 42, a make run that read two files and exited 2.
func sampleProcess(t *testing.T) *registry.Process {
	t.Helper()
	reg := registry.New()
	reg.Touch(42, 1_000)
	reg.AddChild(1, 42, 1_000, false)
	reg.AddChild(42, 43, 1_500, false)
	reg.AddExec(42, registry.Exec{Time: 1_000, Program: "/usr/bin/make", Args: []string{"make", "-j4", "all"}})
	reg.AddSyscall(42, "read", 300*time.Microsecond, true, "")
	reg.AddSyscall(42, "read", 100*time.Microsecond, true, "EAGAIN")
	reg.AddSyscall(42, "wait4", 2*time.Millisecond, true, "")
	reg.AddFileOpen(42, registry.FileOpen{Time: 1_100, Path: "/src/Makefile"})
	reg.AddFileOpen(42, registry.FileOpen{Time: 1_200, Path: "/src/main.c"})
	reg.SetExit(42, registry.ExitStatus{Time: 5_000, Code: 2})
	return reg.Get(42)
}

func TestEvaluator_Simple(t *testing.T) {
	attrs := []config.CustomAttribute{
		{Name: "build.target", Expression: `args[2]`},
		{Name: "build.jobs", Expression: `args[1] == "-j4" ? 4 : 1`},
		{Name: "slow", Expression: `total_us > 1000`},
	}

	evaluator, err := NewEvaluator(attrs, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	result := evaluator.EvaluateCustomAttributes(sampleProcess(t))
	if len(result) != 3 {
		t.Fatalf("Expected 3 attributes, got %d", len(result))
	}

	if result[0].Key != "build.target" || result[0].Value.AsString() != "all" {
		t.Errorf("result[0] = %v, want build.target=all", result[0])
	}
	if result[1].Value.Type() != attribute.INT64 || result[1].Value.AsInt64() != 4 {
		t.Errorf("result[1] = %v, want build.jobs=4", result[1])
	}
	if !result[2].Value.AsBool() {
		t.Errorf("result[2] = %v, want slow=true", result[2])
	}
}

func TestEvaluator_MapExpansion(t *testing.T) {
	attrs := []config.CustomAttribute{
		{Name: "calls", Expression: `calls`},
	}

	evaluator, err := NewEvaluator(attrs, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	result := evaluator.EvaluateCustomAttributes(sampleProcess(t))

	// Should expand to calls.read and calls.wait4, in key order
	if len(result) != 2 {
		t.Fatalf("Expected 2 attributes (map expansion), got %d", len(result))
	}
	if result[0].Key != "calls.read" || result[0].Value.AsInt64() != 2 {
		t.Errorf("result[0] = %v, want calls.read=2", result[0])
	}
	if result[1].Key != "calls.wait4" || result[1].Value.AsInt64() != 1 {
		t.Errorf("result[1] = %v, want calls.wait4=1", result[1])
	}
}

func TestSanitizeAttributeName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"simple", "simple"},
		{"with-dash", "with_dash"},
		{"with.dot", "with_dot"},
		{"with space", "with_space"},
		{"special!@#$%", "special_____"},
		{"mixed-123.test", "mixed_123_test"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeAttributeName(tt.input)
			if got != tt.want {
				t.Errorf("sanitizeAttributeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEvaluator_InvalidExpression(t *testing.T) {
	attrs := []config.CustomAttribute{
		{Name: "good", Expression: `program`},
		{Name: "bad", Expression: `invalid_function()`},
	}

	if _, err := NewEvaluator(attrs, zerolog.Nop()); err == nil {
		t.Error("Expected error for invalid expression")
	}
}

func TestEvaluator_RuntimeErrorSkipsAttribute(t *testing.T) {
	attrs := []config.CustomAttribute{
		{Name: "first", Expression: `args[0]`},
		{Name: "out_of_range", Expression: `args[10]`},
	}

	evaluator, err := NewEvaluator(attrs, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	result := evaluator.EvaluateCustomAttributes(sampleProcess(t))
	if len(result) != 1 {
		t.Fatalf("Expected 1 attribute, got %d", len(result))
	}
	if result[0].Value.AsString() != "make" {
		t.Errorf("result[0].Value = %q, want make", result[0].Value.AsString())
	}
}

func TestEvaluator_NilProcess(t *testing.T) {
	attrs := []config.CustomAttribute{
		{Name: "test", Expression: `program`},
	}

	evaluator, err := NewEvaluator(attrs, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	if result := evaluator.EvaluateCustomAttributes(nil); result != nil {
		t.Error("Expected nil result for nil process")
	}
}
