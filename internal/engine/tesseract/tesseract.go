// Package tesseract provides recognition contexts backed by the Tesseract
// engine through gosseract.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/MeKo-Tech/labelocr/internal/engine"
	"github.com/MeKo-Tech/labelocr/internal/models"
	"github.com/MeKo-Tech/labelocr/internal/ocr"
	"github.com/otiai10/gosseract/v2"
)

// Iterator levels accepted in Options.Level.
const (
	LevelWord     = "word"
	LevelTextline = "textline"
)

// Options configures every context created by Factory.
type Options struct {
	TessdataDir string
	PageSegMode int
	Level       string
	Variables   map[string]string
}

// DefaultOptions returns fully automatic segmentation at word level.
func DefaultOptions() Options {
	return Options{
		PageSegMode: int(gosseract.PSM_AUTO),
		Level:       LevelWord,
	}
}

// Context is one gosseract client configured for a single language.
type Context struct {
	client *gosseract.Client
	lang   string
	level  gosseract.PageIteratorLevel
}

// New creates a context for a configured language code.
func New(lang string, opts Options) (*Context, error) {
	code := models.EngineCode(lang)
	dir := models.GetTessdataDir(opts.TessdataDir)
	if err := models.ValidateLanguageData(dir, code); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	if dir != "" {
		if err := client.SetTessdataPrefix(dir); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(code); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("set language %s: %w", code, err)
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(opts.PageSegMode)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("set page segmentation mode: %w", err)
	}
	for k, v := range opts.Variables {
		if err := client.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set variable %s: %w", k, err)
		}
	}

	return &Context{client: client, lang: lang, level: iteratorLevel(opts.Level)}, nil
}

// Factory adapts New to the engine pool.
func Factory(opts Options) engine.Factory {
	return func(lang string) (engine.Recognizer, error) {
		return New(lang, opts)
	}
}

// Recognize runs the engine over img and returns its word or line boxes.
func (c *Context) Recognize(ctx context.Context, img image.Image) ([]engine.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	if err := c.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}

	boxes, err := c.client.GetBoundingBoxes(c.level)
	if err != nil {
		return nil, fmt.Errorf("get bounding boxes: %w", err)
	}
	return toDetections(boxes), nil
}

// Close releases the underlying client.
func (c *Context) Close() error {
	return c.client.Close()
}

// Version reports the linked Tesseract version.
func Version() string {
	c := gosseract.NewClient()
	defer func() { _ = c.Close() }()
	return c.Version()
}

func toDetections(boxes []gosseract.BoundingBox) []engine.Detection {
	out := make([]engine.Detection, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		out = append(out, engine.Detection{
			Box:        ocr.QuadFromRectangle(b.Box),
			Text:       text,
			Confidence: b.Confidence / 100.0,
		})
	}
	return out
}

func iteratorLevel(level string) gosseract.PageIteratorLevel {
	if strings.EqualFold(level, LevelTextline) {
		return gosseract.RIL_TEXTLINE
	}
	return gosseract.RIL_WORD
}
