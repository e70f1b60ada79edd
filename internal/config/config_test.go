package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/strace-summary/internal/report"
)

func validOptions(reportName string) Options {
	return Options{
		Input:    "trace.log",
		Report:   reportName,
		Count:    25,
		LogLevel: "warn",
		Format:   FormatText,
	}
}

func TestParseEnv_Defaults(t *testing.T) {
	cfg, err := ParseEnv()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Count)
	assert.Equal(t, 0, cfg.Workers)
	assert.Equal(t, 4096, cfg.BatchSize)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestParseEnv_Overrides(t *testing.T) {
	t.Setenv("STRACE_SUMMARY_COUNT", "5")
	t.Setenv("STRACE_SUMMARY_WORKERS", "3")
	t.Setenv("STRACE_SUMMARY_LOG_LEVEL", "debug")

	cfg, err := ParseEnv()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Count)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParseEnv_Invalid(t *testing.T) {
	t.Setenv("STRACE_SUMMARY_COUNT", "many")

	_, err := ParseEnv()
	assert.Error(t, err)
}

func TestValidate_QuantizeRequiresSyscall(t *testing.T) {
	opts := validOptions(ReportQuantize)
	assert.ErrorIs(t, opts.Validate(), ErrMissingSyscall)

	opts.Syscall = "read"
	assert.NoError(t, opts.Validate())
}

func TestValidate_PidRequiresPID(t *testing.T) {
	opts := validOptions(ReportPid)
	assert.ErrorIs(t, opts.Validate(), ErrMissingPID)

	opts.PIDs = []int{42}
	assert.NoError(t, opts.Validate())

	opts.PIDs = []int{-1}
	assert.Error(t, opts.Validate())
}

func TestValidate_SortKeys(t *testing.T) {
	tests := []struct {
		report  string
		sort    string
		want    report.SortKey
		wantErr bool
	}{
		{ReportSummary, "", report.SortActiveTime, false},
		{ReportSummary, "user_time", report.SortUserTime, false},
		{ReportSummary, "duration", "", true},
		{ReportFiles, "", report.SortDuration, false},
		{ReportIO, "time", report.SortTime, false},
		{ReportDirectories, "count", report.SortCount, false},
		{ReportDirectories, "children", "", true},
		{ReportTree, "", "", false},
		{ReportTree, "pid", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.report+"/"+tt.sort, func(t *testing.T) {
			opts := validOptions(tt.report)
			opts.Sort = tt.sort

			key, err := opts.SortKey()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Error(t, opts.Validate())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, key)
		})
	}
}

func TestValidate_Misc(t *testing.T) {
	opts := validOptions(ReportSummary)
	opts.Input = ""
	assert.Error(t, opts.Validate())

	opts = validOptions(ReportSummary)
	opts.LogLevel = "loud"
	assert.Error(t, opts.Validate())

	opts = validOptions(ReportSummary)
	opts.Format = "xml"
	assert.Error(t, opts.Validate())

	opts = validOptions(ReportDump)
	assert.Error(t, opts.Validate())
	opts.DBPath = "out.db"
	assert.NoError(t, opts.Validate())
}

func TestParseCustomAttribute(t *testing.T) {
	attr, err := ParseCustomAttribute(`build.target=args[1] ?? "none"`)
	require.NoError(t, err)
	assert.Equal(t, "build.target", attr.Name)
	assert.Equal(t, `args[1] ?? "none"`, attr.Expression)

	for _, bad := range []string{"noequals", "=expr", "name="} {
		_, err := ParseCustomAttribute(bad)
		assert.Error(t, err, bad)
	}
}

func TestOTELConfig(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318/")
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "env=prod, team = infra ,broken")

	cfg, err := ParseOTELConfig()
	require.NoError(t, err)
	assert.Equal(t, "strace-summary", cfg.ServiceName)
	assert.Equal(t, "collector:4318", cfg.GetEndpoint())

	attrs := cfg.ParseResourceAttributes()
	require.Len(t, attrs, 2)
	assert.Equal(t, "team", string(attrs[1].Key))
	assert.Equal(t, "infra", attrs[1].Value.AsString())

	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "traces:4318")
	cfg, err = ParseOTELConfig()
	require.NoError(t, err)
	assert.Equal(t, "traces:4318", cfg.GetEndpoint())
}
