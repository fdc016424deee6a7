package hal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Enabled bool
	// Hz is the frame rate at which the runner advances time and steps the
	// app.
	Hz int
	// Frames stops the runner after that many frames; zero runs until ctx is
	// done or the app reports it is finished.
	Frames uint64
}

// ErrFinished is returned by a step function to end the runner cleanly.
var ErrFinished = errors.New("hal: finished")

// RunHeadless runs the kernel without opening a window.
func RunHeadless(ctx context.Context, h *Host, step func() error, cfg HeadlessConfig) error {
	if cfg.Hz <= 0 {
		cfg.Hz = 60
	}

	d := time.Second / time.Duration(cfg.Hz)
	if d <= 0 {
		return fmt.Errorf("invalid headless hz: %d", cfg.Hz)
	}
	t := time.NewTicker(d)
	defer t.Stop()

	var frame uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			h.t.step(now)
			if step != nil {
				if err := step(); err != nil {
					if err == ErrFinished {
						return nil
					}
					return err
				}
			}
			frame++
			if cfg.Frames > 0 && frame >= cfg.Frames {
				return nil
			}
		}
	}
}
