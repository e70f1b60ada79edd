package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mrzor/strace-summary/internal/attributes"
	"github.com/mrzor/strace-summary/internal/config"
	"github.com/mrzor/strace-summary/internal/eventprocessor"
	"github.com/mrzor/strace-summary/internal/eventstream"
	"github.com/mrzor/strace-summary/internal/output"
	"github.com/mrzor/strace-summary/internal/pidtree"
	"github.com/mrzor/strace-summary/internal/pseudo_reverse_dns"
	"github.com/mrzor/strace-summary/internal/registry"
	"github.com/mrzor/strace-summary/internal/report"
	"github.com/mrzor/strace-summary/internal/store"
	"github.com/mrzor/strace-summary/internal/threads"
	"github.com/mrzor/strace-summary/internal/timesync"
)

// noDataMessage is printed instead of an empty report.
const noDataMessage = "No data found"

// analysis is the frozen result of ingesting one trace.
type analysis struct {
	reg      *registry.Registry
	resolver *pseudo_reverse_dns.Resolver // nil with --no-resolve
	stats    eventstream.Stats
}

// peers returns the resolver as a report.PeerResolver, nil when disabled.
func (a *analysis) peers() report.PeerResolver {
	if a.resolver == nil {
		return nil
	}
	return a.resolver
}

// execute ingests the input and produces the configured report on out.
func execute(ctx context.Context, opts *config.Options, out io.Writer) error {
	logger, err := setupLogger(opts.LogLevel)
	if err != nil {
		return err
	}

	a, err := ingest(ctx, opts, logger)
	if err != nil {
		return err
	}

	sel, err := selection(a.reg, opts, logger)
	if err != nil {
		return err
	}

	r, err := output.New(opts.Format, out)
	if err != nil {
		return err
	}
	if err := r.Warnings(sel.Warnings()); err != nil {
		return err
	}

	switch opts.Report {
	case config.ReportExport:
		return runExport(ctx, opts, a, sel, r, logger)
	case config.ReportDump:
		return runDump(ctx, opts, a, sel, r, logger)
	case config.ReportAll:
		return runAll(ctx, opts, a, sel, r)
	}

	err = runReport(opts, a, sel, r)
	if errors.Is(err, report.ErrNoData) {
		return r.Warnings([]string{noDataMessage})
	}
	return err
}

// ingest reads the whole trace into a frozen registry.
func ingest(ctx context.Context, opts *config.Options, logger zerolog.Logger) (*analysis, error) {
	in, closeInput, err := setupInput(opts.Input)
	if err != nil {
		return nil, err
	}
	defer closeInput()

	a := &analysis{reg: registry.New()}
	if !opts.NoResolve {
		a.resolver = pseudo_reverse_dns.New()
	}

	processor := eventprocessor.NewProcessor(a.reg, a.resolver, logger)
	stream := eventstream.New(processor,
		eventstream.WithWorkers(opts.Workers),
		eventstream.WithBatchSize(opts.BatchSize),
		eventstream.WithLogger(logger),
	)

	a.stats, err = stream.Run(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", opts.Input, err)
	}

	rs := processor.Finish()
	logger.Debug().
		Int("records", rs.Records).
		Int("merged", rs.Merged).
		Int("stale", rs.Stale).
		Int("orphaned", rs.Orphaned).
		Int("dangling", rs.Dangling).
		Msg("reconciliation done")

	groups := threads.Relate(a.reg, logger)
	a.reg.Freeze()

	logger.Info().
		Int("processes", a.reg.Len()).
		Int("thread_groups", len(groups)).
		Msg("trace analyzed")
	return a, nil
}

// selection resolves --pid, --filter, --related and --threads.
func selection(reg *registry.Registry, opts *config.Options, logger zerolog.Logger) (report.Selection, error) {
	so := report.SelectOptions{
		PIDs:    opts.PIDs,
		Related: opts.Related,
		Threads: opts.Threads,
	}
	if opts.Filter != "" {
		f, err := attributes.NewFilter(opts.Filter)
		if err != nil {
			return report.Selection{}, err
		}
		so.Filter = f.Predicate(logger)
	}
	return report.Select(reg, so), nil
}

// runReport runs one text report query and renders it.
func runReport(opts *config.Options, a *analysis, sel report.Selection, r output.Renderer) error {
	key, err := opts.SortKey()
	if err != nil {
		return err
	}

	switch opts.Report {
	case config.ReportSummary:
		rep, err := report.Summary(a.reg, sel, key, opts.Count)
		if err != nil {
			return err
		}
		return r.Summary(rep)

	case config.ReportListPids:
		details, err := report.ListPids(a.reg, sel, key, opts.Count)
		if err != nil {
			return err
		}
		return r.Details(fmt.Sprintf("Details of top %d PIDs by %s", len(details), key), details)

	case config.ReportPid:
		details, err := report.Details(a.reg, sel)
		if err != nil {
			return err
		}
		return r.Details("", details)

	case config.ReportExec:
		rows, err := report.Execs(a.reg, sel)
		if err != nil {
			return err
		}
		return r.Execs(rows)

	case config.ReportFiles:
		rows, err := report.Files(a.reg, sel, key, opts.Count)
		if err != nil {
			return err
		}
		return r.Files(rows)

	case config.ReportDirectories:
		rep, err := report.Directories(a.reg, sel, key, opts.Count)
		if err != nil {
			return err
		}
		return r.Directories(rep)

	case config.ReportIO:
		rows, err := report.IO(a.reg, sel, key, opts.Count, a.peers())
		if err != nil {
			return err
		}
		return r.IO(rows)

	case config.ReportQuantize:
		h, err := report.Quantize(a.reg, sel, opts.Syscall)
		if err != nil {
			return err
		}
		return r.Histogram(h)

	case config.ReportTree:
		rep, err := report.Tree(a.reg, pidtree.Build(a.reg), sel)
		if err != nil {
			return err
		}
		return r.Tree(rep)
	}
	return fmt.Errorf("unknown report %q", opts.Report)
}

// runAll queries the summary, tree, directories and io reports concurrently
// and renders them in that order. Empty reports are skipped.
func runAll(ctx context.Context, opts *config.Options, a *analysis, sel report.Selection, r output.Renderer) error {
	key, err := opts.SortKey()
	if err != nil {
		return err
	}

	var (
		summary *report.SummaryReport
		tree    *report.TreeReport
		dirs    *report.DirectoryReport
		ioRows  []report.IORow
	)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = report.Summary(a.reg, sel, key, opts.Count)
		return ignoreNoData(err)
	})
	g.Go(func() error {
		var err error
		tree, err = report.Tree(a.reg, pidtree.Build(a.reg), sel)
		return ignoreNoData(err)
	})
	g.Go(func() error {
		var err error
		dirs, err = report.Directories(a.reg, sel, report.DirectorySortKeys[0], opts.Count)
		return ignoreNoData(err)
	})
	g.Go(func() error {
		var err error
		ioRows, err = report.IO(a.reg, sel, report.EventSortKeys[0], opts.Count, a.peers())
		return ignoreNoData(err)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if summary == nil {
		return r.Warnings([]string{noDataMessage})
	}
	if err := r.Summary(summary); err != nil {
		return err
	}
	if tree != nil {
		if err := r.Tree(tree); err != nil {
			return err
		}
	}
	if dirs != nil {
		if err := r.Directories(dirs); err != nil {
			return err
		}
	}
	if ioRows != nil {
		return r.IO(ioRows)
	}
	return nil
}

func ignoreNoData(err error) error {
	if errors.Is(err, report.ErrNoData) {
		return nil
	}
	return err
}

// runExport sends the selected processes as spans to the OTLP collector.
func runExport(ctx context.Context, opts *config.Options, a *analysis, sel report.Selection, r output.Renderer, logger zerolog.Logger) error {
	anchor, err := timesync.AnchorDate(opts.Date, opts.Input)
	if err != nil {
		return err
	}

	exporterOpts := []output.ExporterOption{
		output.WithSyscallSpans(opts.SyscallSpans),
		output.WithExporterLogger(logger),
	}
	if len(opts.CustomAttributes) > 0 {
		evaluator, err := attributes.NewEvaluator(opts.CustomAttributes, logger)
		if err != nil {
			return err
		}
		exporterOpts = append(exporterOpts, output.WithCustomAttributes(evaluator))
	}
	if opts.TraceID != "" {
		traceIDs, err := attributes.NewTraceIDEvaluator(opts.TraceID)
		if err != nil {
			return err
		}
		exporterOpts = append(exporterOpts, output.WithTraceID(traceIDs))
	}
	if opts.ParentID != "" {
		parentIDs, err := attributes.NewParentIDEvaluator(opts.ParentID)
		if err != nil {
			return err
		}
		exporterOpts = append(exporterOpts, output.WithParentID(parentIDs))
	}

	ids := output.NewIDGenerator()
	tracer, cleanup, err := setupOTEL(ctx, ids, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	exporter := output.NewExporter(tracer, ids, timesync.NewConverter(anchor), exporterOpts...)
	n, err := exporter.Export(ctx, a.reg, pidtree.Build(a.reg), sel)
	if err != nil {
		return err
	}

	logger.Info().Int("spans", n).Time("anchor", anchor).Msg("export done")
	return r.Warnings([]string{fmt.Sprintf("Exported %d process spans", n)})
}

// runDump writes the selected processes to the SQLite database.
func runDump(ctx context.Context, opts *config.Options, a *analysis, sel report.Selection, r output.Renderer, logger zerolog.Logger) error {
	st, cleanup, err := setupStore(ctx, opts.DBPath, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	runID, err := st.Dump(ctx, a.reg, sel, store.Run{
		Input:         opts.Input,
		Lines:         a.stats.Lines,
		Events:        a.stats.Events,
		ParseFailures: a.stats.ParseFailures,
	})
	if err != nil {
		return err
	}
	return r.Warnings([]string{fmt.Sprintf("Run %s written to %s", runID, opts.DBPath)})
}
