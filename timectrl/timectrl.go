// Package timectrl drives the render tick loop. The engine never calls
// time.Now itself on the tick path; it is handed the frame time, which keeps
// cadence logic testable and lets the sim binary run faster than real time.
package timectrl

import (
	"sync"
	"time"
)

// Clock is the time source handed to tick consumers, so tests can substitute
// a fake instead of the running frame clock.
type Clock interface {
	// Now returns the current frame time.
	Now() time.Time
}

// Mode describes how the FrameClock advances.
type Mode int

const (
	// RealTime advances with wall-clock time, one tick per interval.
	RealTime Mode = iota
	// Accelerated advances as fast as the listeners can run, stepping the
	// frame time by the tick interval each iteration. Used by the offline
	// sim binary and tests.
	Accelerated
)

// FrameClock invokes registered listeners once per tick and tracks the
// current frame time. It implements Clock.
type FrameClock struct {
	mu        sync.RWMutex
	start     time.Time
	tick      time.Duration
	mode      Mode
	current   time.Time
	listeners []func(time.Time)
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewFrameClock constructs a clock starting at start with the given tick
// interval and mode.
func NewFrameClock(start time.Time, tick time.Duration, mode Mode) *FrameClock {
	return &FrameClock{
		start:   start,
		tick:    tick,
		mode:    mode,
		current: start,
		stop:    make(chan struct{}),
	}
}

// Now returns the current frame time. Implements Clock.
func (fc *FrameClock) Now() time.Time {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return fc.current
}

// AddListener registers a callback invoked on every tick. Listeners must be
// registered before Run starts.
func (fc *FrameClock) AddListener(fn func(time.Time)) {
	fc.listeners = append(fc.listeners, fn)
}

// Stop ends the run loop after the current tick completes.
func (fc *FrameClock) Stop() {
	fc.stopOnce.Do(func() { close(fc.stop) })
}

// Run drives ticks for the given duration (zero means until Stop) in its own
// goroutine and returns a channel closed when the loop exits.
func (fc *FrameClock) Run(duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		var ticker *time.Ticker
		if fc.mode == RealTime {
			ticker = time.NewTicker(fc.tick)
			defer ticker.Stop()
		}

		frame := fc.start
		elapsed := time.Duration(0)
		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			if ticker != nil {
				select {
				case <-ticker.C:
				case <-fc.stop:
					return
				}
			} else {
				select {
				case <-fc.stop:
					return
				default:
				}
			}

			frame = frame.Add(fc.tick)
			elapsed += fc.tick

			fc.mu.Lock()
			fc.current = frame
			fc.mu.Unlock()

			for _, fn := range fc.listeners {
				fn(frame)
			}
		}
	}()
	return done
}
