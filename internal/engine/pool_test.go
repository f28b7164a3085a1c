package engine

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/labelocr/internal/metrics"
	"github.com/MeKo-Tech/labelocr/internal/ocr"
	"github.com/MeKo-Tech/labelocr/internal/ocrerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecognizer struct {
	dets   []Detection
	err    error
	delay  time.Duration
	active *int32
	peak   *int32
	closed atomic.Bool
}

func (f *fakeRecognizer) Recognize(ctx context.Context, _ image.Image) ([]Detection, error) {
	if f.active != nil {
		n := atomic.AddInt32(f.active, 1)
		defer atomic.AddInt32(f.active, -1)
		for {
			p := atomic.LoadInt32(f.peak)
			if n <= p || atomic.CompareAndSwapInt32(f.peak, p, n) {
				break
			}
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.dets, f.err
}

func (f *fakeRecognizer) Close() error {
	f.closed.Store(true)
	return nil
}

type countingFactory struct {
	mu    sync.Mutex
	calls map[string]int
	make  func(lang string) (Recognizer, error)
}

func (c *countingFactory) build(lang string) (Recognizer, error) {
	c.mu.Lock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[lang]++
	c.mu.Unlock()
	return c.make(lang)
}

func (c *countingFactory) count(lang string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[lang]
}

func testFrame() ocr.Frame {
	return ocr.Frame{Image: image.NewRGBA(image.Rect(0, 0, 64, 32)), Index: 1}
}

func TestPool_UnsupportedLanguageBuildsNothing(t *testing.T) {
	f := &countingFactory{make: func(string) (Recognizer, error) { return &fakeRecognizer{}, nil }}
	pool, err := NewPool([]string{"en"}, f.build)
	require.NoError(t, err)

	_, err = pool.Recognize(context.Background(), testFrame(), "xx")
	require.Error(t, err)
	assert.ErrorIs(t, err, ocrerr.ErrUnsupportedLanguage)
	assert.Zero(t, f.count("xx"))
	assert.Zero(t, f.count("en"))
	assert.False(t, pool.Loaded("xx"))
}

func TestPool_LazyConstructionAtMostOnce(t *testing.T) {
	f := &countingFactory{make: func(string) (Recognizer, error) {
		return &fakeRecognizer{dets: []Detection{{Box: ocr.RectQuad(0, 0, 10, 10), Text: "A", Confidence: 0.9}}}, nil
	}}
	var hooked []string
	m := metrics.New()
	pool, err := NewPool([]string{"en", "de"}, f.build,
		WithMetrics(m),
		WithLoadHook(func(lang string) { hooked = append(hooked, lang) }))
	require.NoError(t, err)
	assert.False(t, pool.Loaded("en"))

	for range 3 {
		dets, err := pool.Recognize(context.Background(), testFrame(), "en")
		require.NoError(t, err)
		require.Len(t, dets, 1)
		assert.Equal(t, "en", dets[0].Language)
	}

	assert.Equal(t, 1, f.count("en"))
	assert.Zero(t, f.count("de"))
	assert.True(t, pool.Loaded("en"))
	assert.False(t, pool.Loaded("de"))
	assert.Equal(t, []string{"en"}, hooked)
}

func TestPool_ConcurrentFirstUseBuildsOnce(t *testing.T) {
	f := &countingFactory{make: func(string) (Recognizer, error) {
		time.Sleep(10 * time.Millisecond)
		return &fakeRecognizer{}, nil
	}}
	pool, err := NewPool([]string{"en"}, f.build)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = pool.Recognize(context.Background(), testFrame(), "en")
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, f.count("en"))
}

func TestPool_ExclusiveAccessPerLanguage(t *testing.T) {
	var active, peak int32
	rec := &fakeRecognizer{delay: 5 * time.Millisecond, active: &active, peak: &peak}
	pool, err := NewPool([]string{"en"}, func(string) (Recognizer, error) { return rec, nil })
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Recognize(context.Background(), testFrame(), "en")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestPool_EngineErrorWrapped(t *testing.T) {
	cause := errors.New("model exploded")
	pool, err := NewPool([]string{"en"}, func(string) (Recognizer, error) {
		return &fakeRecognizer{err: cause}, nil
	})
	require.NoError(t, err)

	_, err = pool.Recognize(context.Background(), testFrame(), "en")
	require.Error(t, err)
	assert.ErrorIs(t, err, ocrerr.ErrRecognitionFailed)
	assert.ErrorIs(t, err, cause)

	var coded *ocrerr.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, "en", coded.Language)
	assert.Equal(t, "64x32", coded.Details["frame_size"])
}

func TestPool_FailedLoadRetriedOnNextCall(t *testing.T) {
	attempts := 0
	pool, err := NewPool([]string{"en"}, func(string) (Recognizer, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("tessdata missing")
		}
		return &fakeRecognizer{}, nil
	})
	require.NoError(t, err)

	_, err = pool.Recognize(context.Background(), testFrame(), "en")
	assert.ErrorIs(t, err, ocrerr.ErrRecognitionFailed)
	assert.False(t, pool.Loaded("en"))

	_, err = pool.Recognize(context.Background(), testFrame(), "en")
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestPool_TimeoutBecomesRecognitionFailure(t *testing.T) {
	pool, err := NewPool([]string{"en"}, func(string) (Recognizer, error) {
		return &fakeRecognizer{delay: time.Second}, nil
	}, WithTimeout(10*time.Millisecond))
	require.NoError(t, err)

	_, err = pool.Recognize(context.Background(), testFrame(), "en")
	assert.ErrorIs(t, err, ocrerr.ErrRecognitionFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_NormalizesDetections(t *testing.T) {
	pool, err := NewPool([]string{"de"}, func(string) (Recognizer, error) {
		return &fakeRecognizer{dets: []Detection{
			{Text: " Grüne ", Confidence: 1.7},
			{Text: "x", Confidence: -0.2},
		}}, nil
	})
	require.NoError(t, err)

	dets, err := pool.Recognize(context.Background(), testFrame(), "de")
	require.NoError(t, err)
	require.Len(t, dets, 2)
	assert.Equal(t, "Grüne", dets[0].Text)
	assert.InDelta(t, 1.0, dets[0].Confidence, 0)
	assert.InDelta(t, 0.0, dets[1].Confidence, 0)
}

func TestPool_WarmAndClose(t *testing.T) {
	recs := map[string]*fakeRecognizer{}
	pool, err := NewPool([]string{"en", "ko"}, func(lang string) (Recognizer, error) {
		r := &fakeRecognizer{}
		recs[lang] = r
		return r, nil
	})
	require.NoError(t, err)

	require.NoError(t, pool.Warm(context.Background()))
	assert.True(t, pool.Loaded("en"))
	assert.True(t, pool.Loaded("ko"))

	require.NoError(t, pool.Close())
	assert.True(t, recs["en"].closed.Load())
	assert.True(t, recs["ko"].closed.Load())
	assert.NoError(t, pool.Close())

	_, err = pool.Recognize(context.Background(), testFrame(), "en")
	assert.ErrorIs(t, err, ocrerr.ErrRecognitionFailed)
}

func TestNewPool_Validation(t *testing.T) {
	factory := func(string) (Recognizer, error) { return &fakeRecognizer{}, nil }

	_, err := NewPool(nil, factory)
	assert.ErrorIs(t, err, ocrerr.ErrConfigInvalid)

	_, err = NewPool([]string{"en", "en"}, factory)
	assert.ErrorIs(t, err, ocrerr.ErrConfigInvalid)

	_, err = NewPool([]string{"en"}, nil)
	assert.ErrorIs(t, err, ocrerr.ErrConfigInvalid)

	pool, err := NewPool([]string{"ko", "en"}, factory)
	require.NoError(t, err)
	assert.Equal(t, []string{"ko", "en"}, pool.Languages())
}
