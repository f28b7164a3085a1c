// Package engine keeps one long-lived recognition context per configured
// language and routes frames to them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/labelocr/internal/common"
	"github.com/MeKo-Tech/labelocr/internal/metrics"
	"github.com/MeKo-Tech/labelocr/internal/ocr"
	"github.com/MeKo-Tech/labelocr/internal/ocrerr"
	"golang.org/x/text/unicode/norm"
)

// Detection is one unit reported by a recognition context.
type Detection struct {
	Box        ocr.Quad
	Text       string
	Confidence float64
}

// Recognizer is a recognition context bound to a single language. It is not
// required to be safe for concurrent use.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) ([]Detection, error)
	Close() error
}

// Factory constructs the context for a language.
type Factory func(lang string) (Recognizer, error)

type slot struct {
	mu  sync.Mutex
	rec Recognizer
}

// Pool owns the per-language recognition contexts.
type Pool struct {
	factory Factory
	order   []string
	slots   map[string]*slot

	logger  *slog.Logger
	metrics *metrics.Metrics
	onLoad  func(lang string)
	timeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// WithMetrics records load counts and recognition durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// WithLoadHook is called after each successful context construction.
func WithLoadHook(fn func(lang string)) Option {
	return func(p *Pool) { p.onLoad = fn }
}

// WithTimeout bounds every Recognize call. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(p *Pool) { p.timeout = d }
}

// NewPool creates a pool for the given ordered languages. No context is
// constructed until it is first needed or Warm is called.
func NewPool(languages []string, factory Factory, opts ...Option) (*Pool, error) {
	if factory == nil {
		return nil, ocrerr.Errorf(ocrerr.ConfigInvalid, "engine pool", "factory is nil")
	}
	if len(languages) == 0 {
		return nil, ocrerr.Errorf(ocrerr.ConfigInvalid, "engine pool", "no languages configured")
	}

	p := &Pool{
		factory: factory,
		slots:   make(map[string]*slot, len(languages)),
		logger:  slog.Default(),
		closed:  make(chan struct{}),
	}
	for _, lang := range languages {
		if strings.TrimSpace(lang) == "" {
			return nil, ocrerr.Errorf(ocrerr.ConfigInvalid, "engine pool", "empty language code")
		}
		if _, dup := p.slots[lang]; dup {
			return nil, ocrerr.Errorf(ocrerr.ConfigInvalid, "engine pool", "duplicate language %q", lang)
		}
		p.slots[lang] = &slot{}
		p.order = append(p.order, lang)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Languages returns the configured languages in order.
func (p *Pool) Languages() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Loaded reports whether the context for lang has been constructed.
func (p *Pool) Loaded(lang string) bool {
	s, ok := p.slots[lang]
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec != nil
}

// Warm constructs every context up front, in configured order.
func (p *Pool) Warm(ctx context.Context) error {
	var errs []error
	for _, lang := range p.order {
		if err := ctx.Err(); err != nil {
			return err
		}
		s := p.slots[lang]
		s.mu.Lock()
		_, err := p.ensure(s, lang)
		s.mu.Unlock()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recognize runs the context for lang over the frame. Calls for the same
// language are serialized; different languages may run concurrently.
func (p *Pool) Recognize(ctx context.Context, frame ocr.Frame, lang string) ([]ocr.RawDetection, error) {
	s, ok := p.slots[lang]
	if !ok {
		return nil, ocrerr.Errorf(ocrerr.UnsupportedLanguage, "recognize", "language %q is not configured", lang).
			WithLanguage(lang)
	}
	if frame.Image == nil {
		return nil, p.failure("recognize", lang, frame, errors.New("frame has no image"))
	}

	select {
	case <-p.closed:
		return nil, p.failure("recognize", lang, frame, errors.New("pool is closed"))
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, p.failure("recognize", lang, frame, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := p.ensure(s, lang)
	if err != nil {
		return nil, err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	timer := common.NewNamedTimer("recognize:" + lang)
	dets, err := rec.Recognize(ctx, frame.Image)
	elapsed := timer.Stop()
	p.metrics.RecordRecognition(lang, elapsed)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, p.failure("recognize", lang, frame, err)
	}

	p.logger.Debug("Recognition finished",
		"language", lang,
		"frame", frame.Index,
		"detections", len(dets),
		"duration", elapsed)

	return toRaw(dets, lang), nil
}

// ensure returns the slot's context, constructing it if necessary. The
// caller holds s.mu.
func (p *Pool) ensure(s *slot, lang string) (Recognizer, error) {
	if s.rec != nil {
		return s.rec, nil
	}
	select {
	case <-p.closed:
		return nil, ocrerr.Errorf(ocrerr.RecognitionFailed, "load", "pool is closed").WithLanguage(lang)
	default:
	}

	p.logger.Info("Loading recognition context", "language", lang)
	timer := common.NewTimer()
	rec, err := p.factory(lang)
	if err != nil {
		return nil, ocrerr.New(ocrerr.RecognitionFailed, "load", err).WithLanguage(lang)
	}
	if rec == nil {
		return nil, ocrerr.Errorf(ocrerr.RecognitionFailed, "load", "factory returned no context").WithLanguage(lang)
	}
	s.rec = rec

	p.logger.Info("Recognition context ready", "language", lang, "duration", timer.Stop())
	p.metrics.RecordEngineLoad(lang)
	if p.onLoad != nil {
		p.onLoad(lang)
	}
	return rec, nil
}

func (p *Pool) failure(op, lang string, frame ocr.Frame, err error) *ocrerr.Error {
	w, h := frame.Size()
	return ocrerr.New(ocrerr.RecognitionFailed, op, err).
		WithLanguage(lang).
		WithDetail("frame", frame.Index).
		WithDetail("frame_size", fmt.Sprintf("%dx%d", w, h))
}

// Close releases every constructed context. Further calls fail.
func (p *Pool) Close() error {
	var errs []error
	p.closeOnce.Do(func() {
		close(p.closed)
		for _, lang := range p.order {
			s := p.slots[lang]
			s.mu.Lock()
			if s.rec != nil {
				if err := s.rec.Close(); err != nil {
					errs = append(errs, fmt.Errorf("close %s: %w", lang, err))
				}
				s.rec = nil
			}
			s.mu.Unlock()
		}
	})
	return errors.Join(errs...)
}

func toRaw(dets []Detection, lang string) []ocr.RawDetection {
	out := make([]ocr.RawDetection, 0, len(dets))
	for _, d := range dets {
		out = append(out, ocr.RawDetection{
			Box:        d.Box,
			Text:       strings.TrimSpace(norm.NFC.String(d.Text)),
			Confidence: clampConfidence(d.Confidence),
			Language:   lang,
		})
	}
	return out
}

func clampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c):
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
