// Package export persists recognition results: one uniquely named record per
// cycle, the annotated frame, optionally the untouched frame, and optional
// downstream sinks.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/labelocr/internal/ocr"
	"github.com/MeKo-Tech/labelocr/internal/ocrerr"
	"github.com/disintegration/imaging"
)

// Image formats.
const (
	ImagePNG  = "png"
	ImageJPEG = "jpg"
)

// maxNameAttempts bounds the suffix search for a free base name.
const maxNameAttempts = 1000

// Options configures an Exporter.
type Options struct {
	ImagesDir    string
	OriginDir    string
	RecordsDir   string
	RecordFormat string
	ImageFormat  string
	Annotate     bool
	LabelColor   string
}

// Sink receives each record after its files have been written.
type Sink interface {
	Name() string
	Publish(ctx context.Context, rec Record) error
	Close() error
}

// Artifacts lists the files written for one result.
type Artifacts struct {
	BaseName   string
	RecordPath string
	ImagePath  string
	OriginPath string
}

// Exporter writes results to disk and forwards them to sinks.
type Exporter struct {
	opts   Options
	style  Style
	sinks  []Sink
	logger *slog.Logger

	// write creates path exclusively; replaced in tests.
	write func(path string, data []byte) error
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithSinks adds downstream sinks.
func WithSinks(sinks ...Sink) ExporterOption {
	return func(e *Exporter) { e.sinks = append(e.sinks, sinks...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ExporterOption {
	return func(e *Exporter) { e.logger = l }
}

// New creates an Exporter.
func New(opts Options, options ...ExporterOption) (*Exporter, error) {
	if opts.RecordsDir == "" {
		return nil, ocrerr.Errorf(ocrerr.ConfigInvalid, "exporter", "records directory is not set")
	}
	if opts.Annotate && opts.ImagesDir == "" {
		return nil, ocrerr.Errorf(ocrerr.ConfigInvalid, "exporter", "images directory is not set")
	}
	if opts.RecordFormat == "" {
		opts.RecordFormat = FormatJSON
	}
	if opts.ImageFormat == "" {
		opts.ImageFormat = ImagePNG
	}

	style := DefaultStyle()
	if opts.LabelColor != "" {
		c, err := ParseColor(opts.LabelColor)
		if err != nil {
			return nil, ocrerr.New(ocrerr.ConfigInvalid, "exporter", err)
		}
		style.LabelColor = c
	}

	e := &Exporter{opts: opts, style: style, logger: slog.Default(), write: writeExclusive}
	for _, o := range options {
		o(e)
	}
	return e, nil
}

// BaseName is the file stem for a result before collision suffixes.
func BaseName(r ocr.RecognitionResult) string {
	return fmt.Sprintf("capture_%s_%04d", r.CapturedAt.Format("20060102_150405"), r.Sequence)
}

// Export persists the result. Existing files are never overwritten: if the
// base name is taken a numeric suffix is added. Each write is attempted at
// most twice; a second failure is returned as ExportFailed. When a file write
// fails, the files already written for this result are removed so no partial
// capture is left behind. Sink failures leave the files in place.
func (e *Exporter) Export(ctx context.Context, frame ocr.Frame, result ocr.RecognitionResult) (Artifacts, error) {
	if err := ctx.Err(); err != nil {
		return Artifacts{}, ocrerr.New(ocrerr.ExportFailed, "export", err)
	}
	if err := e.ensureDirs(); err != nil {
		return Artifacts{}, err
	}

	rec := NewRecord(result)
	data, err := rec.Marshal(e.opts.RecordFormat)
	if err != nil {
		return Artifacts{}, ocrerr.New(ocrerr.ExportFailed, "encode record", err)
	}

	art, err := e.writeRecord(BaseName(result), data)
	if err != nil {
		return art, err
	}

	if e.opts.Annotate && frame.Image != nil {
		annotated := Annotate(frame.Image, result, e.style)
		path := filepath.Join(e.opts.ImagesDir, art.BaseName+e.imageExt())
		if err := e.writeImage(path, annotated); err != nil {
			e.discard(art)
			return Artifacts{}, err
		}
		art.ImagePath = path
	}

	if e.opts.OriginDir != "" && frame.Image != nil {
		path := filepath.Join(e.opts.OriginDir, art.BaseName+e.imageExt())
		if err := e.writeImage(path, frame.Image); err != nil {
			e.discard(art)
			return Artifacts{}, err
		}
		art.OriginPath = path
	}

	for _, s := range e.sinks {
		err := retryOnce(func() error { return s.Publish(ctx, rec) })
		if err != nil {
			return art, ocrerr.New(ocrerr.ExportFailed, "publish", err).WithDetail("sink", s.Name())
		}
	}

	e.logger.Info("Result exported",
		"record", art.RecordPath,
		"image", art.ImagePath,
		"lines", len(result.Lines))
	return art, nil
}

// discard removes the files recorded in art.
func (e *Exporter) discard(art Artifacts) {
	for _, path := range []string{art.RecordPath, art.ImagePath, art.OriginPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			e.logger.Warn("Failed to remove partial export", "path", path, "error", err)
		}
	}
}

// Close closes every sink.
func (e *Exporter) Close() error {
	var errs []error
	for _, s := range e.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (e *Exporter) ensureDirs() error {
	for _, dir := range []string{e.opts.RecordsDir, e.imagesDir(), e.opts.OriginDir} {
		if dir == "" {
			continue
		}
		err := retryOnce(func() error { return os.MkdirAll(dir, 0o755) })
		if err != nil {
			return ocrerr.New(ocrerr.ExportFailed, "create directory", err).WithPath(dir)
		}
	}
	return nil
}

func (e *Exporter) imagesDir() string {
	if e.opts.Annotate {
		return e.opts.ImagesDir
	}
	return ""
}

// writeRecord reserves the first free base name, checking the image targets
// too so every artifact of one cycle shares the same stem.
func (e *Exporter) writeRecord(base string, data []byte) (Artifacts, error) {
	ext := recordExt(e.opts.RecordFormat)
	for n := 0; n < maxNameAttempts; n++ {
		stem := base
		if n > 0 {
			stem = fmt.Sprintf("%s-%d", base, n)
		}
		if e.imageTaken(stem) {
			continue
		}
		path := filepath.Join(e.opts.RecordsDir, stem+ext)
		err := retryOnce(func() error { return e.write(path, data) })
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return Artifacts{}, ocrerr.New(ocrerr.ExportFailed, "write record", err).WithPath(path)
		}
		return Artifacts{BaseName: stem, RecordPath: path}, nil
	}
	return Artifacts{}, ocrerr.Errorf(ocrerr.ExportFailed, "write record", "no free file name for %s", base).
		WithPath(e.opts.RecordsDir)
}

func (e *Exporter) imageTaken(stem string) bool {
	for _, dir := range []string{e.imagesDir(), e.opts.OriginDir} {
		if dir == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, stem+e.imageExt())); err == nil {
			return true
		}
	}
	return false
}

func (e *Exporter) writeImage(path string, img image.Image) error {
	var buf bytes.Buffer
	if err := encodeImage(&buf, img, e.opts.ImageFormat); err != nil {
		return ocrerr.New(ocrerr.ExportFailed, "encode image", err).WithPath(path)
	}
	if err := retryOnce(func() error { return e.write(path, buf.Bytes()) }); err != nil {
		return ocrerr.New(ocrerr.ExportFailed, "write image", err).WithPath(path)
	}
	return nil
}

func (e *Exporter) imageExt() string {
	if e.opts.ImageFormat == ImageJPEG {
		return ".jpg"
	}
	return ".png"
}

func encodeImage(buf *bytes.Buffer, img image.Image, format string) error {
	if format == ImageJPEG {
		return imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(92))
	}
	return imaging.Encode(buf, img, imaging.PNG)
}

// retryOnce runs fn a second time if it fails, unless the failure says the
// target already exists.
func retryOnce(fn func() error) error {
	err := fn()
	if err == nil || errors.Is(err, fs.ErrExist) {
		return err
	}
	return fn()
}

// writeExclusive creates path, failing with fs.ErrExist if it is already
// there. A partially written file is removed.
func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // G304: output path built from configured directory
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}
