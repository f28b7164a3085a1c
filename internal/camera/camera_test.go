package camera

import (
	"testing"

	"github.com/MeKo-Tech/labelocr/internal/ocrerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestKeyTrigger(t *testing.T) {
	assert.Equal(t, TriggerCapture, keyTrigger(32))
	assert.Equal(t, TriggerQuit, keyTrigger('q'))
	assert.Equal(t, TriggerQuit, keyTrigger('Q'))
	assert.Equal(t, TriggerQuit, keyTrigger(0x100|'q'))
	assert.Equal(t, TriggerNone, keyTrigger(-1))
	assert.Equal(t, TriggerNone, keyTrigger('x'))
}

func TestOpen_HeadlessNeedsTriggers(t *testing.T) {
	_, err := Open(Options{Preview: false}, nil)
	require.ErrorIs(t, err, ocrerr.ErrConfigInvalid)
}

func TestLiveSharpness(t *testing.T) {
	flat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 64, 64, gocv.MatTypeCV8UC3)
	defer func() { _ = flat.Close() }()
	assert.InDelta(t, 0, liveSharpness(flat), 1e-9)

	edges := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 64, 64, gocv.MatTypeCV8UC3)
	defer func() { _ = edges.Close() }()
	for y := range 64 {
		for x := 0; x < 64; x += 2 {
			edges.SetUCharAt(y, x*3, 255)
			edges.SetUCharAt(y, x*3+1, 255)
			edges.SetUCharAt(y, x*3+2, 255)
		}
	}
	assert.Greater(t, liveSharpness(edges), 0.0)
}
