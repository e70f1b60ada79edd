package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mrzor/strace-summary/internal/config"
)

// reportCommand describes one subcommand.
type reportCommand struct {
	name  string
	use   string // defaults to "<name> FILE"
	short string
	args  cobra.PositionalArgs
	flags func(fs *pflag.FlagSet, opts *config.Options, attrs *[]string)
}

var reportCommands = []reportCommand{
	{name: config.ReportSummary, short: "Top processes by time spent", args: cobra.ExactArgs(1)},
	{name: config.ReportListPids, short: "Detailed view of the top processes", args: cobra.ExactArgs(1)},
	{name: config.ReportPid, short: "Detailed view of the processes given with --pid", args: cobra.ExactArgs(1)},
	{name: config.ReportExec, short: "Programs executed, in time order", args: cobra.ExactArgs(1)},
	{name: config.ReportFiles, short: "File opens", args: cobra.ExactArgs(1)},
	{name: config.ReportDirectories, short: "File opens rolled up per directory", args: cobra.ExactArgs(1)},
	{name: config.ReportIO, short: "Reads, writes and socket transfers", args: cobra.ExactArgs(1)},
	{name: config.ReportQuantize, use: "quantize FILE SYSCALL", short: "Log2 histogram of one syscall's durations", args: cobra.RangeArgs(1, 2)},
	{name: config.ReportTree, short: "Process tree", args: cobra.ExactArgs(1)},
	{name: config.ReportExport, short: "Export processes as OpenTelemetry spans", args: cobra.ExactArgs(1), flags: exportFlags},
	{name: config.ReportDump, short: "Write the parsed trace to a SQLite database", args: cobra.ExactArgs(1), flags: dumpFlags},
	{name: config.ReportAll, short: "Summary, tree, directories and io in one pass", args: cobra.ExactArgs(1)},
}

func newRootCmd(envCfg *config.EnvConfig) *cobra.Command {
	opts := &config.Options{}

	root := &cobra.Command{
		Use:   "strace-summary",
		Short: "Summarize strace logs",
		Long: `Summarize logs produced by strace -f -T -tt (or -ttt), optionally with -yyy.

Each subcommand reads FILE ("-" for stdin) and prints one report.`,
		Version:       versionInfo(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	commonFlags(root.PersistentFlags(), opts, envCfg)

	for _, rc := range reportCommands {
		root.AddCommand(newReportCmd(rc, opts))
	}
	return root
}

func newReportCmd(rc reportCommand, opts *config.Options) *cobra.Command {
	var attrs []string
	use := rc.use
	if use == "" {
		use = rc.name + " FILE"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: rc.short,
		Args:  rc.args,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Report = rc.name
			opts.Input = args[0]
			if len(args) > 1 {
				opts.Syscall = args[1]
			}
			opts.CustomAttributes = opts.CustomAttributes[:0]
			for _, a := range attrs {
				ca, err := config.ParseCustomAttribute(a)
				if err != nil {
					return err
				}
				opts.CustomAttributes = append(opts.CustomAttributes, ca)
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			return execute(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	if rc.flags != nil {
		rc.flags(cmd.Flags(), opts, &attrs)
	}
	return cmd
}

func commonFlags(fs *pflag.FlagSet, opts *config.Options, envCfg *config.EnvConfig) {
	fs.IntVarP(&opts.Count, "count", "c", envCfg.Count, "number of rows to show")
	fs.IntSliceVarP(&opts.PIDs, "pid", "p", nil, "restrict to these PIDs (repeatable)")
	fs.BoolVarP(&opts.Related, "related", "r", false, "add parents and children of the selected PIDs, repeated until nothing is added (under -f this is the whole process tree)")
	fs.BoolVarP(&opts.Threads, "threads", "t", false, "add thread siblings of the selected PIDs")
	fs.StringVarP(&opts.Sort, "sort", "s", "", "sort key (depends on the report)")
	fs.StringVar(&opts.Filter, "filter", "", "select processes matching an expression, e.g. 'program endsWith \"cc1\"'")
	fs.IntVar(&opts.Workers, "workers", envCfg.Workers, "parser goroutines (0: one per CPU)")
	fs.IntVar(&opts.BatchSize, "batch-size", envCfg.BatchSize, "lines parsed per batch")
	fs.StringVar(&opts.LogLevel, "log-level", envCfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&opts.Format, "format", config.FormatText, fmt.Sprintf("output format (%s, %s)", config.FormatText, config.FormatJSON))
	fs.BoolVar(&opts.NoResolve, "no-resolve", false, "do not resolve socket peers to host names")
}

func exportFlags(fs *pflag.FlagSet, opts *config.Options, attrs *[]string) {
	fs.StringVar(&opts.Date, "date", "", "date of -tt timestamps, YYYY-MM-DD (default: input modification date)")
	fs.StringVar(&opts.TraceID, "trace-id", "", "trace ID expression evaluated on each root process")
	fs.StringVar(&opts.ParentID, "parent-id", "", "span ID expression parenting each root process")
	fs.StringArrayVarP(attrs, "attribute", "a", nil, "custom span attribute name=expression (repeatable)")
	fs.BoolVar(&opts.SyscallSpans, "syscall-spans", false, "emit a child span per file open")
}

func dumpFlags(fs *pflag.FlagSet, opts *config.Options, _ *[]string) {
	fs.StringVar(&opts.DBPath, "db", "", "SQLite database to write")
}
