package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/mrzor/strace-summary/internal/report"
)

// Report names.
const (
	ReportSummary     = "summary"
	ReportListPids    = "list-pids"
	ReportPid         = "pid"
	ReportExec        = "exec"
	ReportFiles       = "files"
	ReportDirectories = "directories"
	ReportIO          = "io"
	ReportQuantize    = "quantize"
	ReportTree        = "tree"
	ReportExport      = "export"
	ReportDump        = "dump"
	ReportAll         = "all" // summary, tree, directories and io together
)

// Output formats of the text reports.
const (
	FormatText = "text"
	FormatJSON = "json"
)

var (
	// ErrMissingSyscall is returned when quantize is requested without a
	// syscall name.
	ErrMissingSyscall = errors.New("quantize requires a syscall name")

	// ErrMissingPID is returned when the pid report is requested without
	// any PID.
	ErrMissingPID = errors.New("pid report requires at least one --pid")
)

// EnvConfig holds defaults read from the environment. Command-line flags
// override them.
type EnvConfig struct {
	Count     int    `env:"STRACE_SUMMARY_COUNT" envDefault:"25"`
	Workers   int    `env:"STRACE_SUMMARY_WORKERS" envDefault:"0"`
	BatchSize int    `env:"STRACE_SUMMARY_BATCH_SIZE" envDefault:"4096"`
	LogLevel  string `env:"STRACE_SUMMARY_LOG_LEVEL" envDefault:"warn"`
}

// ParseEnv reads EnvConfig from the environment.
func ParseEnv() (*EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment config: %w", err)
	}
	return &cfg, nil
}

// CustomAttribute is a span attribute computed from an expression.
type CustomAttribute struct {
	Name       string
	Expression string
}

// ParseCustomAttribute parses "name=expression".
func ParseCustomAttribute(s string) (CustomAttribute, error) {
	name, expression, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.TrimSpace(expression) == "" {
		return CustomAttribute{}, fmt.Errorf("invalid attribute %q, expected name=expression", s)
	}
	return CustomAttribute{Name: name, Expression: expression}, nil
}

// Options is the resolved configuration of one run.
type Options struct {
	Input  string // trace file, "-" for stdin
	Report string

	Count   int
	PIDs    []int
	Related bool
	Threads bool
	Sort    string
	Filter  string
	Syscall string // quantize target

	Workers   int
	BatchSize int
	LogLevel  string
	Format    string
	NoResolve bool

	// export
	Date             string // anchor date of -tt timestamps, YYYY-MM-DD
	TraceID          string // expression
	ParentID         string // expression naming an existing span to parent root spans on
	CustomAttributes []CustomAttribute
	SyscallSpans     bool

	// dump
	DBPath string
}

// SortKeys returns the sort keys accepted by a report, default first, or
// nil when the report cannot be sorted.
func SortKeys(reportName string) []report.SortKey {
	switch reportName {
	case ReportSummary, ReportListPids, ReportAll:
		return report.SummarySortKeys
	case ReportFiles, ReportIO:
		return report.EventSortKeys
	case ReportDirectories:
		return report.DirectorySortKeys
	default:
		return nil
	}
}

// SortKey returns the validated sort key of the configured report.
func (o *Options) SortKey() (report.SortKey, error) {
	keys := SortKeys(o.Report)
	if keys == nil {
		if o.Sort != "" {
			return "", fmt.Errorf("%s report cannot be sorted", o.Report)
		}
		return "", nil
	}
	return report.ParseSortKey(o.Sort, keys)
}

// Validate checks option combinations.
func (o *Options) Validate() error {
	if o.Input == "" {
		return errors.New("no input file given")
	}
	if o.Count <= 0 {
		return fmt.Errorf("count must be positive, got %d", o.Count)
	}
	if o.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", o.Workers)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(o.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", o.LogLevel, err)
	}
	if !slices.Contains([]string{"", FormatText, FormatJSON}, o.Format) {
		return fmt.Errorf("invalid format %q, expected %s or %s", o.Format, FormatText, FormatJSON)
	}
	if _, err := o.SortKey(); err != nil {
		return err
	}
	switch o.Report {
	case ReportQuantize:
		if strings.TrimSpace(o.Syscall) == "" {
			return ErrMissingSyscall
		}
	case ReportPid:
		if len(o.PIDs) == 0 {
			return ErrMissingPID
		}
	case ReportDump:
		if o.DBPath == "" {
			return errors.New("dump requires --db")
		}
	}
	for _, pid := range o.PIDs {
		if pid <= 0 {
			return fmt.Errorf("invalid pid %d", pid)
		}
	}
	return nil
}
