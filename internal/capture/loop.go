package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/labelocr/internal/common"
	"github.com/MeKo-Tech/labelocr/internal/consolidate"
	"github.com/MeKo-Tech/labelocr/internal/export"
	"github.com/MeKo-Tech/labelocr/internal/metrics"
	"github.com/MeKo-Tech/labelocr/internal/ocr"
	"github.com/MeKo-Tech/labelocr/internal/ocrerr"
	"github.com/google/uuid"
)

// Recognizer turns a frame into raw detections for one language.
// *engine.Pool implements it.
type Recognizer interface {
	Recognize(ctx context.Context, frame ocr.Frame, lang string) ([]ocr.RawDetection, error)
}

// Exporter persists a result. *export.Exporter implements it.
type Exporter interface {
	Export(ctx context.Context, frame ocr.Frame, result ocr.RecognitionResult) (export.Artifacts, error)
}

// State is the loop's position in its lifecycle.
type State int32

// Loop states.
const (
	StateIdle State = iota
	StateProcessing
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Settings are the per-run processing parameters.
type Settings struct {
	Languages   []string
	Threshold   float64
	Params      consolidate.Params
	LanguageIoU float64
	Width       int
	Height      int
	Quality     QualityThresholds
}

// Stats counts cycle outcomes.
type Stats struct {
	Frames       int
	Exported     int
	Failed       int
	ExportFailed int
}

// Cycle describes one processed frame. Err is nil when the result was
// exported.
type Cycle struct {
	Sequence  int64
	Frame     ocr.Frame
	Result    ocr.RecognitionResult
	Artifacts export.Artifacts
	Verdict   Verdict
	Duration  time.Duration
	Err       error
}

// Loop waits for a trigger, processes the captured frame and returns to
// waiting. It is single threaded: one trigger yields exactly one full pass.
type Loop struct {
	src      Source
	rec      Recognizer
	exp      Exporter
	settings Settings

	logger  *slog.Logger
	metrics *metrics.Metrics
	hook    func(Cycle)
	newID   func() string

	state atomic.Int32
	seq   int64
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopLogger sets the logger.
func WithLoopLogger(l *slog.Logger) LoopOption {
	return func(lp *Loop) { lp.logger = l }
}

// WithLoopMetrics records cycle outcomes.
func WithLoopMetrics(m *metrics.Metrics) LoopOption {
	return func(lp *Loop) { lp.metrics = m }
}

// WithResultHook is called after every processed frame, failed or not.
func WithResultHook(fn func(Cycle)) LoopOption {
	return func(lp *Loop) { lp.hook = fn }
}

// NewLoop wires a source, a recognizer and an exporter.
func NewLoop(src Source, rec Recognizer, exp Exporter, settings Settings, opts ...LoopOption) (*Loop, error) {
	if src == nil || rec == nil || exp == nil {
		return nil, ocrerr.Errorf(ocrerr.ConfigInvalid, "capture loop", "source, recognizer and exporter are required")
	}
	if len(settings.Languages) == 0 {
		return nil, ocrerr.Errorf(ocrerr.ConfigInvalid, "capture loop", "no languages configured")
	}
	settings.Languages = append([]string(nil), settings.Languages...)

	l := &Loop{
		src:      src,
		rec:      rec,
		exp:      exp,
		settings: settings,
		logger:   slog.Default(),
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// State returns the current state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}

// Run processes frames until the source ends, the context is cancelled or a
// frame cannot be acquired. Recognition and export failures are logged and
// the loop keeps going. End of stream returns a nil error.
func (l *Loop) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	defer l.setState(StateTerminal)

	for {
		l.setState(StateIdle)
		frame, err := l.src.Next(ctx)
		if err != nil {
			return stats, l.acquisitionError(ctx, err)
		}

		stats.Frames++
		l.setState(StateProcessing)
		cycle := l.process(ctx, frame)

		switch {
		case cycle.Err == nil:
			stats.Exported++
			l.metrics.RecordCycle(metrics.StatusExported)
		case errors.Is(cycle.Err, ocrerr.ErrExportFailed):
			stats.ExportFailed++
			l.metrics.RecordCycle(metrics.StatusExportFailed)
			l.metrics.RecordExportFailure()
			l.logger.Warn("Export failed", append(ocrerr.LogAttrs(cycle.Err), "sequence", cycle.Sequence)...)
		default:
			stats.Failed++
			l.metrics.RecordCycle(metrics.StatusRecognitionFailed)
			l.logger.Warn("Recognition failed", append(ocrerr.LogAttrs(cycle.Err), "sequence", cycle.Sequence)...)
		}

		if l.hook != nil {
			l.hook(cycle)
		}
	}
}

func (l *Loop) acquisitionError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrEndOfStream):
		l.logger.Info("Frame source ended")
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case ocrerr.CodeOf(err) == ocrerr.FrameAcquisitionFailed:
		return err
	default:
		return ocrerr.New(ocrerr.FrameAcquisitionFailed, "next frame", err)
	}
}

// process runs one full pass over a frame. It never returns early without
// filling in Cycle.Err, and nothing is exported unless recognition succeeded
// for every language.
func (l *Loop) process(ctx context.Context, frame ocr.Frame) Cycle {
	l.seq++
	timer := common.NewNamedTimer("cycle")
	cycle := Cycle{Sequence: l.seq}

	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = time.Now()
	}
	var sharpness float64
	if frame.Image != nil {
		frame.Image = Normalize(frame.Image, l.settings.Width, l.settings.Height)
		sharpness = Sharpness(frame.Image)
	}
	cycle.Frame = frame
	timer.Mark("normalize")

	byLang := make(map[string][]ocr.TextLine, len(l.settings.Languages))
	for _, lang := range l.settings.Languages {
		raw, err := l.rec.Recognize(ctx, frame, lang)
		if err != nil {
			cycle.Err = err
			cycle.Duration = timer.Stop()
			return cycle
		}
		byLang[lang] = consolidate.Consolidate(raw, l.settings.Threshold, l.settings.Params)
		l.logger.Debug("Language recognized", "language", lang, "detections", len(raw), "lines", len(byLang[lang]))
	}
	lines := consolidate.MergeLanguages(byLang, l.settings.Languages, l.settings.LanguageIoU)
	timer.Mark("recognize")

	w, h := frame.Size()
	cycle.Result = ocr.RecognitionResult{
		ID:         l.newID(),
		Sequence:   l.seq,
		CapturedAt: frame.CapturedAt,
		Width:      w,
		Height:     h,
		Languages:  append([]string(nil), l.settings.Languages...),
		Sharpness:  sharpness,
		Lines:      lines,
	}
	cycle.Verdict = Assess(cycle.Result, l.settings.Quality)
	l.metrics.RecordResult(len(lines), sharpness)

	art, err := l.exp.Export(ctx, frame, cycle.Result)
	cycle.Artifacts = art
	timer.Mark("export")
	cycle.Duration = timer.Stop()
	if err != nil {
		if !errors.Is(err, ocrerr.ErrExportFailed) {
			err = ocrerr.New(ocrerr.ExportFailed, "export", err)
		}
		cycle.Err = err
		return cycle
	}

	l.logger.Info("Cycle complete",
		"sequence", l.seq,
		"id", cycle.Result.ID,
		"lines", len(lines),
		"mean_confidence", cycle.Result.MeanConfidence(),
		"sharpness", sharpness,
		"verdict", string(cycle.Verdict),
		"timing", timer)
	return cycle
}
