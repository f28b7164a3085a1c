// Package common provides the stage timer shared by the recognition
// pipeline.
package common

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Stage is the duration of one named step.
type Stage struct {
	Name     string
	Duration time.Duration
}

// Timer measures a whole operation and, optionally, the steps inside it.
type Timer struct {
	start    time.Time
	last     time.Time
	name     string
	duration time.Duration
	stages   []Stage
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return NewNamedTimer("")
}

// NewNamedTimer creates a new timer with the given name.
func NewNamedTimer(name string) *Timer {
	now := time.Now()
	return &Timer{name: name, start: now, last: now}
}

// Mark closes the current step under the given name and starts the next.
func (t *Timer) Mark(stage string) time.Duration {
	now := time.Now()
	d := now.Sub(t.last)
	t.last = now
	t.stages = append(t.stages, Stage{Name: stage, Duration: d})
	return d
}

// Stop stops the timer and returns the elapsed duration.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// Duration returns the recorded duration (only valid after Stop()).
func (t *Timer) Duration() time.Duration {
	return t.duration
}

// Name returns the timer name (empty string if unnamed).
func (t *Timer) Name() string {
	return t.name
}

// Stages returns the marked steps in order.
func (t *Timer) Stages() []Stage {
	return append([]Stage(nil), t.stages...)
}

// String renders "name: total (stage=d, ...)".
func (t *Timer) String() string {
	var b strings.Builder
	if t.name != "" {
		b.WriteString(t.name)
		b.WriteString(": ")
	}
	b.WriteString(t.duration.String())
	if len(t.stages) > 0 {
		parts := make([]string, len(t.stages))
		for i, s := range t.stages {
			parts[i] = fmt.Sprintf("%s=%v", s.Name, s.Duration)
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	return b.String()
}

// LogValue logs the total and per-stage durations in milliseconds.
func (t *Timer) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(t.stages)+1)
	attrs = append(attrs, slog.Float64("total_ms", ms(t.duration)))
	for _, s := range t.stages {
		attrs = append(attrs, slog.Float64(s.Name+"_ms", ms(s.Duration)))
	}
	return slog.GroupValue(attrs...)
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
