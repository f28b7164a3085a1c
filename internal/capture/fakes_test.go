package capture

import (
	"context"
	"image"
	"image/color"
	"sync"

	"github.com/MeKo-Tech/labelocr/internal/export"
	"github.com/MeKo-Tech/labelocr/internal/ocr"
	"github.com/MeKo-Tech/labelocr/internal/testutil"
)

// scriptedSource returns the queued frames, then the queued error, then
// ErrEndOfStream.
type scriptedSource struct {
	frames []ocr.Frame
	err    error
	closed bool
}

func (s *scriptedSource) Next(ctx context.Context) (ocr.Frame, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Frame{}, err
	}
	if len(s.frames) > 0 {
		f := s.frames[0]
		s.frames = s.frames[1:]
		return f, nil
	}
	if s.err != nil {
		return ocr.Frame{}, s.err
	}
	return ocr.Frame{}, ErrEndOfStream
}

func (s *scriptedSource) Close() error {
	s.closed = true
	return nil
}

func whiteFrame(w, h int) ocr.Frame {
	return ocr.Frame{Image: testutil.CreateTestImage(w, h, color.White)}
}

// stubRecognizer answers per language; a language with an error entry fails.
type stubRecognizer struct {
	mu    sync.Mutex
	dets  map[string][]ocr.RawDetection
	errs  map[string]error
	calls []string
}

func (r *stubRecognizer) Recognize(_ context.Context, _ ocr.Frame, lang string) ([]ocr.RawDetection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, lang)
	if err := r.errs[lang]; err != nil {
		return nil, err
	}
	out := make([]ocr.RawDetection, 0, len(r.dets[lang]))
	for _, d := range r.dets[lang] {
		d.Language = lang
		out = append(out, d)
	}
	return out, nil
}

type recordingExporter struct {
	mu      sync.Mutex
	results []ocr.RecognitionResult
	sizes   []image.Point
	err     error
}

func (e *recordingExporter) Export(_ context.Context, frame ocr.Frame, result ocr.RecognitionResult) (export.Artifacts, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return export.Artifacts{}, e.err
	}
	w, h := frame.Size()
	e.results = append(e.results, result)
	e.sizes = append(e.sizes, image.Pt(w, h))
	return export.Artifacts{BaseName: export.BaseName(result)}, nil
}

func (e *recordingExporter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.results)
}

func det(text string, x0, y0, x1, y1, conf float64) ocr.RawDetection {
	return ocr.RawDetection{Box: ocr.RectQuad(x0, y0, x1, y1), Text: text, Confidence: conf}
}
