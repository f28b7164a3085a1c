package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MeKo-Tech/labelocr/internal/capture"
	"github.com/MeKo-Tech/labelocr/internal/config"
	"github.com/MeKo-Tech/labelocr/internal/engine"
	"github.com/MeKo-Tech/labelocr/internal/engine/tesseract"
	"github.com/MeKo-Tech/labelocr/internal/export"
	"github.com/MeKo-Tech/labelocr/internal/export/sinks"
	"github.com/MeKo-Tech/labelocr/internal/metrics"
	"github.com/spf13/cobra"
)

// engineFactory builds the recognition contexts; replaced in tests.
var engineFactory = func(cfg *config.Config) engine.Factory {
	return tesseract.Factory(cfg.TesseractOptions())
}

// app holds the long-lived components shared by every capture command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	pool     *engine.Pool
	exporter *export.Exporter
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := slog.Default()
	m := metrics.New()

	pool, err := engine.NewPool(cfg.OCR.Languages, engineFactory(cfg),
		engine.WithLogger(logger),
		engine.WithMetrics(m),
		engine.WithTimeout(cfg.OCR.RecognizeTimeout))
	if err != nil {
		return nil, err
	}
	if cfg.OCR.EagerLoad {
		if err := pool.Warm(ctx); err != nil {
			_ = pool.Close()
			return nil, err
		}
	}

	sinkList, err := sinks.Open(ctx, cfg.SinkConfig(), logger)
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("open sinks: %w", err)
	}

	exp, err := export.New(cfg.ExportOptions(), export.WithSinks(sinkList...), export.WithLogger(logger))
	if err != nil {
		_ = pool.Close()
		for _, s := range sinkList {
			_ = s.Close()
		}
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, metrics: m, pool: pool, exporter: exp}, nil
}

// run drives src until it ends and prints a line per cycle to out.
func (a *app) run(ctx context.Context, out io.Writer, src capture.Source, hooks ...func(capture.Cycle)) error {
	loop, err := capture.NewLoop(src, a.pool, a.exporter, a.cfg.LoopSettings(),
		capture.WithLoopLogger(a.logger),
		capture.WithLoopMetrics(a.metrics),
		capture.WithResultHook(func(c capture.Cycle) {
			printCycle(out, c)
			for _, h := range hooks {
				h(c)
			}
		}))
	if err != nil {
		return err
	}

	stats, err := loop.Run(ctx)
	_, _ = fmt.Fprintf(out, "Processed %d frame(s): %d exported, %d recognition failure(s), %d export failure(s)\n",
		stats.Frames, stats.Exported, stats.Failed, stats.ExportFailed)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases engine contexts and sinks and writes the metrics file.
func (a *app) Close() error {
	return errors.Join(
		a.exporter.Close(),
		a.pool.Close(),
		a.metrics.WriteTextfile(a.cfg.Metrics.Textfile),
	)
}

// runCapture loads the configuration, builds the app, opens the source and
// runs the loop until the source ends or the process is interrupted.
func runCapture(cmd *cobra.Command, open func(ctx context.Context, cfg *config.Config) (capture.Source, error),
	hooks ...func(capture.Cycle),
) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.logger.Warn("Shutdown incomplete", "error", cerr)
		}
	}()

	src, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	return a.run(ctx, cmd.OutOrStdout(), src, hooks...)
}

func printCycle(out io.Writer, c capture.Cycle) {
	if c.Err != nil && c.Result.ID == "" {
		_, _ = fmt.Fprintf(out, "[%04d] recognition failed: %v\n", c.Sequence, c.Err)
		return
	}

	name := c.Artifacts.BaseName
	if name == "" {
		name = export.BaseName(c.Result)
	}
	_, _ = fmt.Fprintf(out, "[%04d] %s: %d line(s) in %v\n", c.Sequence, name, len(c.Result.Lines), c.Duration.Round(time.Millisecond))
	for i, l := range c.Result.Lines {
		_, _ = fmt.Fprintf(out, "  %d. %s (%.2f)\n", i+1, l.Text, l.Confidence)
	}
	_, _ = fmt.Fprintf(out, "  mean confidence %.2f, sharpness %.1f, %s: %s\n",
		c.Result.MeanConfidence(), c.Result.Sharpness, c.Verdict, c.Verdict.Advice())
	if c.Err != nil {
		_, _ = fmt.Fprintf(out, "  export failed: %v\n", c.Err)
		return
	}
	paths := []string{c.Artifacts.RecordPath, c.Artifacts.ImagePath, c.Artifacts.OriginPath}
	kept := paths[:0]
	for _, p := range paths {
		if p != "" {
			kept = append(kept, p)
		}
	}
	_, _ = fmt.Fprintf(out, "  saved: %s\n", strings.Join(kept, ", "))
}
