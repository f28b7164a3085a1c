// Package camera provides the live camera frame source. Frames are shown in
// a preview window with the current sharpness score; SPACE captures and q
// quits.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/labelocr/internal/capture"
	"github.com/MeKo-Tech/labelocr/internal/ocr"
	"github.com/MeKo-Tech/labelocr/internal/ocrerr"
	"gocv.io/x/gocv"
)

// Options configures the camera.
type Options struct {
	Index       int
	AutoDetect  bool
	ScanMax     int
	Width       int
	Height      int
	Preview     bool
	WindowTitle string

	// DefinitionThreshold colors the sharpness overlay green at or above it.
	DefinitionThreshold float64

	// Triggers replaces the window keys when Preview is off: TriggerCapture
	// captures the current frame and TriggerQuit ends the stream.
	Triggers <-chan Trigger
}

// Trigger is an operator action.
type Trigger int

// Operator actions.
const (
	TriggerNone Trigger = iota
	TriggerCapture
	TriggerQuit
)

const (
	keySpace = 32
	keyQuit  = 'q'
)

var (
	overlayOK   = color.RGBA{G: 255, A: 255}
	overlayLow  = color.RGBA{R: 255, A: 255}
	errNotFound = errors.New("no camera found")
)

// Source reads frames from a camera device.
type Source struct {
	opts    Options
	device  int
	capture *gocv.VideoCapture
	window  *gocv.Window
	mat     gocv.Mat
	logger  *slog.Logger
	index   int64
}

// Open opens the configured device, or the first working device in
// 0..ScanMax when AutoDetect is set.
func Open(opts Options, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !opts.Preview && opts.Triggers == nil {
		return nil, ocrerr.Errorf(ocrerr.ConfigInvalid, "open camera", "headless mode needs a trigger channel")
	}

	device := opts.Index
	var vc *gocv.VideoCapture
	var err error
	if opts.AutoDetect {
		device, vc, err = detect(opts.ScanMax, logger)
	} else {
		vc, err = openDevice(device)
	}
	if err != nil {
		return nil, ocrerr.New(ocrerr.FrameAcquisitionFailed, "open camera", err).WithDetail("device", device)
	}

	if opts.Width > 0 && opts.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	}

	s := &Source{opts: opts, device: device, capture: vc, mat: gocv.NewMat(), logger: logger}
	if opts.Preview {
		s.window = gocv.NewWindow(opts.WindowTitle)
	}
	logger.Info("Camera opened", "device", device, "preview", opts.Preview)
	return s, nil
}

// Device returns the opened device index.
func (s *Source) Device() int { return s.device }

// Next shows frames until the operator captures one or quits. A failed read
// is FrameAcquisitionFailed.
func (s *Source) Next(ctx context.Context) (ocr.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return ocr.Frame{}, err
		}
		if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
			return ocr.Frame{}, ocrerr.Errorf(ocrerr.FrameAcquisitionFailed, "read camera", "empty frame").
				WithDetail("device", s.device)
		}

		switch s.poll() {
		case TriggerQuit:
			return ocr.Frame{}, capture.ErrEndOfStream
		case TriggerCapture:
			return s.frame()
		}
	}
}

// poll shows the frame and returns the operator action, if any.
func (s *Source) poll() Trigger {
	if s.window == nil {
		select {
		case t, ok := <-s.opts.Triggers:
			if !ok {
				return TriggerQuit
			}
			return t
		default:
			time.Sleep(10 * time.Millisecond)
			return TriggerNone
		}
	}

	display := s.mat.Clone()
	defer func() { _ = display.Close() }()
	score := liveSharpness(s.mat)
	col := overlayLow
	if score >= s.opts.DefinitionThreshold {
		col = overlayOK
	}
	gocv.PutText(&display, fmt.Sprintf("Definition: %.1f (th=%.0f)", score, s.opts.DefinitionThreshold),
		image.Pt(10, 30), gocv.FontHersheySimplex, 0.8, col, 2)
	gocv.PutText(&display, "SPACE: capture  q: quit",
		image.Pt(10, 60), gocv.FontHersheySimplex, 0.6, col, 1)
	s.window.IMShow(display)
	return keyTrigger(s.window.WaitKey(1))
}

func (s *Source) frame() (ocr.Frame, error) {
	img, err := s.mat.ToImage()
	if err != nil {
		return ocr.Frame{}, ocrerr.New(ocrerr.FrameAcquisitionFailed, "convert frame", err).WithDetail("device", s.device)
	}
	s.index++
	return ocr.Frame{
		Image:      img,
		CapturedAt: time.Now(),
		Source:     fmt.Sprintf("camera:%d", s.device),
		Index:      s.index,
	}, nil
}

// Close releases the window and the device.
func (s *Source) Close() error {
	var errs []error
	if s.window != nil {
		errs = append(errs, s.window.Close())
	}
	errs = append(errs, s.mat.Close(), s.capture.Close())
	return errors.Join(errs...)
}

func keyTrigger(key int) Trigger {
	switch key & 0xff {
	case keySpace:
		return TriggerCapture
	case keyQuit, 'Q':
		return TriggerQuit
	default:
		return TriggerNone
	}
}

// liveSharpness is the Laplacian variance computed by OpenCV, cheap enough
// to refresh on every preview frame.
func liveSharpness(src gocv.Mat) float64 {
	gray := gocv.NewMat()
	lap := gocv.NewMat()
	mean := gocv.NewMat()
	std := gocv.NewMat()
	defer func() {
		_ = gray.Close()
		_ = lap.Close()
		_ = mean.Close()
		_ = std.Close()
	}()

	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)
	gocv.MeanStdDev(lap, &mean, &std)
	sd := std.GetDoubleAt(0, 0)
	return sd * sd
}

func openDevice(id int) (*gocv.VideoCapture, error) {
	vc, err := gocv.VideoCaptureDevice(id)
	if err != nil {
		return nil, err
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("camera %d is not opened", id)
	}
	return vc, nil
}

// detect returns the first device in 0..scanMax that opens and yields a
// frame.
func detect(scanMax int, logger *slog.Logger) (int, *gocv.VideoCapture, error) {
	probe := gocv.NewMat()
	defer func() { _ = probe.Close() }()

	for id := 0; id <= scanMax; id++ {
		vc, err := openDevice(id)
		if err != nil {
			logger.Debug("Camera probe failed", "device", id, "error", err)
			continue
		}
		if vc.Read(&probe) && !probe.Empty() {
			return id, vc, nil
		}
		_ = vc.Close()
	}
	return -1, nil, fmt.Errorf("%w in devices 0..%d", errNotFound, scanMax)
}
