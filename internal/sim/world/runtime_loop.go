package world

import (
	"context"
	"time"
)

// Run drives Step from a ticker until ctx is done or Stop is called.
// Commands submitted through Exec are applied at the next tick boundary.
func (w *World) Run(ctx context.Context) error {
	defer close(w.done)

	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []command
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case c := <-w.cmds:
			pending = append(pending, c)
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			w.step(dt, pending)
			pending = pending[:0]
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// Exec runs fn on the world goroutine at the next tick boundary and waits for
// it to finish. Commands still queued when the loop exits never run.
func (w *World) Exec(ctx context.Context, fn func(w *World)) error {
	c := command{fn: fn, done: make(chan struct{})}
	select {
	case w.cmds <- c:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrStopped
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrStopped
	}
}
