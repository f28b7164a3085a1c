// Package capture runs the capture/trigger loop: it takes frames from a
// source, recognizes them in every configured language, consolidates the
// detections and exports the result.
package capture

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/labelocr/internal/ocr"
	"github.com/MeKo-Tech/labelocr/internal/ocrerr"
	"github.com/MeKo-Tech/labelocr/internal/utils"
)

// ErrEndOfStream is returned by Source.Next when no more frames will come,
// either because the input is exhausted or because the user asked to quit.
var ErrEndOfStream = errors.New("end of stream")

// Source delivers frames. Next blocks until the user or the remote end
// triggers a capture and returns the captured frame.
type Source interface {
	Next(ctx context.Context) (ocr.Frame, error)
	Close() error
}

// FileSource yields one frame per image file, and one frame per selected
// page for PDF files.
type FileSource struct {
	paths []string
	pages string
	now   func() time.Time

	queue []ocr.Frame
	next  int
	index int64
}

// FileOption configures a FileSource.
type FileOption func(*FileSource)

// WithPages restricts PDF extraction to a page range such as "1-3" or
// "1,4". All pages are used when unset.
func WithPages(pages string) FileOption {
	return func(s *FileSource) { s.pages = pages }
}

// NewFileSource checks that every path has a supported extension.
func NewFileSource(paths []string, opts ...FileOption) (*FileSource, error) {
	if len(paths) == 0 {
		return nil, ocrerr.Errorf(ocrerr.ConfigInvalid, "file source", "no input files")
	}
	for _, p := range paths {
		if !utils.IsSupportedImage(p) && !isPDF(p) {
			return nil, ocrerr.Errorf(ocrerr.ConfigInvalid, "file source", "unsupported input %s", filepath.Ext(p)).
				WithPath(p)
		}
	}
	s := &FileSource{paths: paths, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if _, err := parsePageRange(s.pages); err != nil {
		return nil, ocrerr.New(ocrerr.ConfigInvalid, "file source", err)
	}
	return s, nil
}

// Next returns the next frame or ErrEndOfStream after the last file. A file
// that cannot be read is a FrameAcquisitionFailed error.
func (s *FileSource) Next(ctx context.Context) (ocr.Frame, error) {
	for len(s.queue) == 0 {
		if err := ctx.Err(); err != nil {
			return ocr.Frame{}, err
		}
		if s.next >= len(s.paths) {
			return ocr.Frame{}, ErrEndOfStream
		}
		path := s.paths[s.next]
		s.next++
		frames, err := s.load(path)
		if err != nil {
			return ocr.Frame{}, ocrerr.New(ocrerr.FrameAcquisitionFailed, "read file", err).WithPath(path)
		}
		s.queue = frames
	}

	f := s.queue[0]
	s.queue = s.queue[1:]
	s.index++
	f.Index = s.index
	f.CapturedAt = s.now()
	return f, nil
}

// Close releases nothing; files are read one at a time.
func (s *FileSource) Close() error { return nil }

func (s *FileSource) load(path string) ([]ocr.Frame, error) {
	if isPDF(path) {
		pages, err := extractPageImages(path, s.pages)
		if err != nil {
			return nil, err
		}
		frames := make([]ocr.Frame, len(pages))
		for i, p := range pages {
			frames[i] = ocr.Frame{Image: p.image, Source: fmt.Sprintf("pdf:%s#page=%d", path, p.page)}
		}
		return frames, nil
	}

	img, _, err := utils.LoadImage(path)
	if err != nil {
		return nil, err
	}
	return []ocr.Frame{{Image: img, Source: "file:" + path}}, nil
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
