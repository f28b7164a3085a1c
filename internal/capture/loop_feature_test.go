package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/MeKo-Tech/labelocr/internal/engine"
	"github.com/MeKo-Tech/labelocr/internal/ocr"
	"github.com/MeKo-Tech/labelocr/internal/ocrerr"
	"github.com/cucumber/godog"
)

// tableRecognizer replays the detections configured for its language.
type tableRecognizer struct {
	dets []engine.Detection
	err  error
}

func (r *tableRecognizer) Recognize(context.Context, image.Image) ([]engine.Detection, error) {
	return r.dets, r.err
}

func (r *tableRecognizer) Close() error { return nil }

// loopWorld is the per-scenario state.
type loopWorld struct {
	languages []string
	poolLangs []string
	settings  Settings
	reported  map[string][]engine.Detection
	failing   map[string]bool
	source    *scriptedSource
	exporter  *recordingExporter
	cycles    []Cycle
	runErr    error
	buildsMu  sync.Mutex
	builds    map[string]int
}

func newLoopWorld() *loopWorld {
	return &loopWorld{
		settings: testSettings("en"),
		reported: map[string][]engine.Detection{},
		failing:  map[string]bool{},
		source:   &scriptedSource{},
		exporter: &recordingExporter{},
		builds:   map[string]int{},
	}
}

func splitLangs(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (w *loopWorld) theConfiguredLanguagesAre(list string) error {
	w.languages = splitLangs(list)
	return nil
}

func (w *loopWorld) theEnginePoolSupports(list string) error {
	w.poolLangs = splitLangs(list)
	return nil
}

func (w *loopWorld) theConfidenceThresholdIs(v float64) error {
	w.settings.Threshold = v
	return nil
}

func (w *loopWorld) theMaximumHorizontalGapIs(v float64) error {
	w.settings.Params.MaxHorizontalGap = v
	return nil
}

// tableValues flattens a step table into rows of cell values.
func tableValues(table *godog.Table) [][]string {
	rows := make([][]string, 0, len(table.Rows))
	for _, r := range table.Rows {
		vals := make([]string, len(r.Cells))
		for i, c := range r.Cells {
			vals[i] = c.Value
		}
		rows = append(rows, vals)
	}
	return rows
}

func (w *loopWorld) theEngineReportsFor(lang string, table *godog.Table) error {
	rows := tableValues(table)
	if len(rows) < 2 {
		return errors.New("table needs a header and at least one row")
	}
	col := map[string]int{}
	for i, name := range rows[0] {
		col[name] = i
	}
	for _, name := range []string{"text", "x0", "y0", "x1", "y1", "confidence"} {
		if _, ok := col[name]; !ok {
			return fmt.Errorf("missing column %q", name)
		}
	}
	for _, row := range rows[1:] {
		vals := make([]float64, 0, 5)
		for _, name := range []string{"x0", "y0", "x1", "y1", "confidence"} {
			v, err := strconv.ParseFloat(row[col[name]], 64)
			if err != nil {
				return err
			}
			vals = append(vals, v)
		}
		w.reported[lang] = append(w.reported[lang], engine.Detection{
			Box:        ocr.RectQuad(vals[0], vals[1], vals[2], vals[3]),
			Text:       row[col["text"]],
			Confidence: vals[4],
		})
	}
	return nil
}

func (w *loopWorld) theEngineFailsFor(lang string) error {
	w.failing[lang] = true
	return nil
}

func (w *loopWorld) theSourceDeliversFrames(n int) error {
	for range n {
		w.source.frames = append(w.source.frames, whiteFrame(200, 100))
	}
	return nil
}

func (w *loopWorld) theSourceFailsOnTheNextRead() error {
	w.source.err = errors.New("device read returned no frame")
	return nil
}

func (w *loopWorld) theLoopRuns() error {
	langs := w.languages
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	poolLangs := w.poolLangs
	if len(poolLangs) == 0 {
		poolLangs = langs
	}

	factory := func(lang string) (engine.Recognizer, error) {
		w.buildsMu.Lock()
		w.builds[lang]++
		w.buildsMu.Unlock()
		rec := &tableRecognizer{dets: w.reported[lang]}
		if w.failing[lang] {
			rec.err = errors.New("engine crashed")
		}
		return rec, nil
	}
	pool, err := engine.NewPool(poolLangs, factory)
	if err != nil {
		return err
	}
	defer func() { _ = pool.Close() }()

	w.settings.Languages = langs
	loop, err := NewLoop(w.source, pool, w.exporter, w.settings,
		WithResultHook(func(c Cycle) { w.cycles = append(w.cycles, c) }))
	if err != nil {
		return err
	}
	_, w.runErr = loop.Run(context.Background())
	return nil
}

func (w *loopWorld) theLoopEndsNormally() error {
	if w.runErr != nil {
		return fmt.Errorf("expected a normal end, got %w", w.runErr)
	}
	return nil
}

func (w *loopWorld) theLoopEndsWithErrorCode(code string) error {
	if w.runErr == nil {
		return errors.New("expected the loop to fail")
	}
	if got := ocrerr.CodeOf(w.runErr); string(got) != code {
		return fmt.Errorf("expected code %s, got %s (%v)", code, got, w.runErr)
	}
	return nil
}

func (w *loopWorld) resultsAreExported(n int) error {
	if got := w.exporter.count(); got != n {
		return fmt.Errorf("expected %d exported results, got %d", n, got)
	}
	return nil
}

func (w *loopWorld) noResultIsExported() error {
	return w.resultsAreExported(0)
}

func (w *loopWorld) theExportedLinesAre(table *godog.Table) error {
	if w.exporter.count() == 0 {
		return errors.New("nothing exported")
	}
	lines := w.exporter.results[len(w.exporter.results)-1].Lines
	want := tableValues(table)[1:]
	if len(lines) != len(want) {
		return fmt.Errorf("expected %d lines, got %d: %v", len(want), len(lines), lines)
	}
	for i, row := range want {
		text := row[0]
		conf, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return err
		}
		if lines[i].Text != text {
			return fmt.Errorf("line %d: expected %q, got %q", i, text, lines[i].Text)
		}
		if math.Abs(lines[i].Confidence-conf) > 1e-9 {
			return fmt.Errorf("line %d: expected confidence %v, got %v", i, conf, lines[i].Confidence)
		}
	}
	return nil
}

func (w *loopWorld) theExportedResultHasNoLines() error {
	if w.exporter.count() == 0 {
		return errors.New("nothing exported")
	}
	if n := len(w.exporter.results[0].Lines); n != 0 {
		return fmt.Errorf("expected no lines, got %d", n)
	}
	return nil
}

func (w *loopWorld) noRecognitionContextWasBuiltFor(lang string) error {
	if n := w.builds[lang]; n != 0 {
		return fmt.Errorf("context for %s built %d times", lang, n)
	}
	return nil
}

func (w *loopWorld) theRecognitionContextForWasBuiltOnce(lang string) error {
	if n := w.builds[lang]; n != 1 {
		return fmt.Errorf("context for %s built %d times, want 1", lang, n)
	}
	return nil
}

func (w *loopWorld) cyclesFailedWithErrorCode(n int, code string) error {
	failed := 0
	for _, c := range w.cycles {
		if c.Err == nil {
			continue
		}
		if got := ocrerr.CodeOf(c.Err); string(got) != code {
			return fmt.Errorf("cycle %d failed with %s, want %s", c.Sequence, got, code)
		}
		failed++
	}
	if failed != n {
		return fmt.Errorf("expected %d failed cycles, got %d", n, failed)
	}
	return nil
}

func initializeLoopScenario(sc *godog.ScenarioContext) {
	var w *loopWorld
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		w = newLoopWorld()
		return ctx, nil
	})

	sc.Step(`^the configured languages are "([^"]*)"$`, func(s string) error { return w.theConfiguredLanguagesAre(s) })
	sc.Step(`^the engine pool supports "([^"]*)"$`, func(s string) error { return w.theEnginePoolSupports(s) })
	sc.Step(`^the confidence threshold is ([0-9.]+)$`, func(v float64) error { return w.theConfidenceThresholdIs(v) })
	sc.Step(`^the maximum horizontal gap is ([0-9.]+)$`, func(v float64) error { return w.theMaximumHorizontalGapIs(v) })
	sc.Step(`^the engine reports for "([^"]*)":$`, func(l string, t *godog.Table) error { return w.theEngineReportsFor(l, t) })
	sc.Step(`^the engine fails for "([^"]*)"$`, func(l string) error { return w.theEngineFailsFor(l) })
	sc.Step(`^the source delivers (\d+) frames?$`, func(n int) error { return w.theSourceDeliversFrames(n) })
	sc.Step(`^the source fails on the next read$`, func() error { return w.theSourceFailsOnTheNextRead() })
	sc.Step(`^the loop runs$`, func() error { return w.theLoopRuns() })
	sc.Step(`^the loop ends normally$`, func() error { return w.theLoopEndsNormally() })
	sc.Step(`^the loop ends with error code "([^"]*)"$`, func(c string) error { return w.theLoopEndsWithErrorCode(c) })
	sc.Step(`^(\d+) results? (?:is|are) exported$`, func(n int) error { return w.resultsAreExported(n) })
	sc.Step(`^no result is exported$`, func() error { return w.noResultIsExported() })
	sc.Step(`^the exported lines are:$`, func(t *godog.Table) error { return w.theExportedLinesAre(t) })
	sc.Step(`^the exported result has no lines$`, func() error { return w.theExportedResultHasNoLines() })
	sc.Step(`^no recognition context was built for "([^"]*)"$`, func(l string) error { return w.noRecognitionContextWasBuiltFor(l) })
	sc.Step(`^the recognition context for "([^"]*)" was built once$`, func(l string) error { return w.theRecognitionContextForWasBuiltOnce(l) })
	sc.Step(`^(\d+) cycles? failed with error code "([^"]*)"$`, func(n int, c string) error { return w.cyclesFailedWithErrorCode(n, c) })
}

func TestFeatures(t *testing.T) {
	entries, err := os.ReadDir("features")
	if err != nil {
		t.Fatalf("failed to read features directory: %v", err)
	}

	format := os.Getenv("GODOG_FORMAT")
	if format == "" {
		format = "pretty"
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".feature") {
			continue
		}
		featurePath := filepath.Join("features", e.Name())
		t.Run(e.Name(), func(t *testing.T) {
			suite := godog.TestSuite{
				ScenarioInitializer: initializeLoopScenario,
				Options: &godog.Options{
					Format:   format,
					Paths:    []string{featurePath},
					Strict:   true,
					TestingT: t,
				},
			}
			if suite.Run() != 0 {
				t.Fatalf("non-zero status returned for %s", featurePath)
			}
		})
	}
}
