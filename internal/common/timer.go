// Package common provides timing and concurrency helpers shared by the OCR stages.
package common

import (
	"fmt"
	"strings"
	"time"
)

// Timer measures wall-clock time of a stage, optionally split into named laps.
type Timer struct {
	name  string
	start time.Time
	last  time.Time
	total time.Duration
	laps  []Lap
}

// Lap is one named slice of a Timer.
type Lap struct {
	Name     string
	Duration time.Duration
}

// NewTimer starts an unnamed timer.
func NewTimer() *Timer { return NewNamedTimer("") }

// NewNamedTimer starts a timer labelled name.
func NewNamedTimer(name string) *Timer {
	now := time.Now()
	return &Timer{name: name, start: now, last: now}
}

// Lap records the time since the previous lap (or the start) under name and
// returns it.
func (t *Timer) Lap(name string) time.Duration {
	now := time.Now()
	d := now.Sub(t.last)
	t.last = now
	t.laps = append(t.laps, Lap{Name: name, Duration: d})
	return d
}

// Stop freezes the total elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	t.total = time.Since(t.start)
	return t.total
}

// Duration returns the total recorded by Stop.
func (t *Timer) Duration() time.Duration { return t.total }

// Laps returns the recorded laps in order.
func (t *Timer) Laps() []Lap { return t.laps }

// Name returns the timer label.
func (t *Timer) Name() string { return t.name }

func (t *Timer) String() string {
	var b strings.Builder
	if t.name != "" {
		b.WriteString(t.name)
		b.WriteString(": ")
	}
	b.WriteString(FormatMillis(t.total))
	for _, l := range t.laps {
		fmt.Fprintf(&b, " %s=%s", l.Name, FormatMillis(l.Duration))
	}
	return b.String()
}

// Millis converts d to fractional milliseconds.
func Millis(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// FormatMillis renders d as milliseconds with three decimals, e.g. "12.500ms".
func FormatMillis(d time.Duration) string { return fmt.Sprintf("%.3fms", Millis(d)) }
