package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/astralforge/starhold/internal/bus"
)

// Speed bounds for the real-time loop. Zero pauses.
const (
	MinSpeed = 0.1
	MaxSpeed = 1000
)

// Runner drives a world in real time. All world access from other
// goroutines must go through Do so ticks and reads never interleave.
type Runner struct {
	mu    sync.Mutex
	world *World

	speed   float64
	running bool

	// OnFlush receives each tick's flushed event batch. Called outside
	// the world lock; set before Run.
	OnFlush func([]bus.Event)
}

// NewRunner wraps a world for real-time stepping.
func NewRunner(w *World) *Runner {
	return &Runner{world: w, speed: 1, running: true}
}

// Do runs fn with exclusive access to the world.
func (r *Runner) Do(fn func(*World) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.world)
}

// Swap replaces the world, used after a snapshot load.
func (r *Runner) Swap(w *World) {
	r.mu.Lock()
	r.world = w
	r.mu.Unlock()
}

// Speed returns the current time multiplier.
func (r *Runner) Speed() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.speed
}

// SetSpeed clamps and applies a time multiplier. Zero pauses the loop
// without losing the previous bound checks.
func (r *Runner) SetSpeed(speed float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case speed <= 0:
		r.speed = 0
	case speed < MinSpeed:
		r.speed = MinSpeed
	case speed > MaxSpeed:
		r.speed = MaxSpeed
	default:
		r.speed = speed
	}
	return r.speed
}

// Running reports whether the loop is stepping.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running && r.speed > 0
}

// Run steps the world at the configured frame rate until the context is
// cancelled. Wall-clock dt is scaled by the speed multiplier.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	frame := time.Duration(float64(time.Second) * r.world.Cfg.FrameIntervalS)
	r.mu.Unlock()
	if frame <= 0 {
		frame = 50 * time.Millisecond
	}

	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.running = false
			r.mu.Unlock()
			slog.Info("run loop stopped", "reason", ctx.Err())
			return ctx.Err()
		case now := <-ticker.C:
			elapsed := now.Sub(last).Seconds()
			last = now

			r.mu.Lock()
			dt := elapsed * r.speed
			if dt <= 0 {
				r.mu.Unlock()
				continue
			}
			// Clamp runaway frames after a stall so one tick never jumps
			// further than a second of sim time.
			if dt > 1 {
				dt = 1
			}
			flushed, err := r.world.Advance(dt)
			r.mu.Unlock()
			if err != nil {
				slog.Error("tick failed", "error", err)
				return err
			}
			if r.OnFlush != nil && len(flushed) > 0 {
				r.OnFlush(flushed)
			}
		}
	}
}
