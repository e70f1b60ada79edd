// strace-summary analyzes logs of `strace -f -tt -T` and reports where the
// traced processes spent their time.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/strace-summary/internal/config"
	"github.com/mrzor/strace-summary/internal/otel"
	"github.com/mrzor/strace-summary/internal/output"
	"github.com/mrzor/strace-summary/internal/store"
)

// Version information injected by GoReleaser at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envCfg, err := config.ParseEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd(envCfg).ExecuteContext(ctx)
}

func versionInfo() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

// setupLogger builds the console logger on stderr.
func setupLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(lvl).
		With().Timestamp().
		Logger(), nil
}

// setupInput opens the trace file, "-" meaning stdin.
func setupInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open trace: %w", err)
	}
	cleanup := func() {
		f.Close() //nolint:errcheck
	}
	return f, cleanup, nil
}

// setupOTEL initializes the OTEL provider with ids as its ID generator and
// returns a tracer and cleanup function.
func setupOTEL(ctx context.Context, ids *output.IDGenerator, logger zerolog.Logger) (trace.Tracer, func(), error) {
	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return nil, nil, err
	}

	tp, err := otel.InitProvider(ctx, otelCfg, logger, sdktrace.WithIDGenerator(ids))
	if err != nil {
		return nil, nil, fmt.Errorf("ABORT: failed to initialize OTEL provider: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(shutdownCtx, tp); err != nil {
			logger.Error().Err(err).Msg("error shutting down OTEL provider")
		}
	}

	return tp.Tracer("strace-summary", trace.WithInstrumentationVersion(version)), cleanup, nil
}

// setupStore opens the dump database.
func setupStore(ctx context.Context, path string, logger zerolog.Logger) (*store.Store, func(), error) {
	st, err := store.Open(ctx, path, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := st.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing database")
		}
	}
	return st, cleanup, nil
}
