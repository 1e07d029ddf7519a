// Package playback drives an audio playback engine with a load, play, poll
// and unload cycle.
package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/config"
)

var (
	ErrNotLoaded = errors.New("no audio loaded")
	ErrPlayback  = errors.New("audio playback failed")
)

// Player is a poll-based playback engine.
type Player interface {
	Load(path string) error
	Play() error
	Busy() bool
	// Unload releases the loaded file and reports how playback ended.
	Unload() error
}

func NewFromConfig(cfg config.PlayerConfig) (Player, error) {
	switch cfg.Mode {
	case "mock", "":
		return NewMockPlayer(0), nil
	case "exec":
		return NewExecPlayer(cfg.Command)
	default:
		return nil, fmt.Errorf("unsupported player mode %q", cfg.Mode)
	}
}

// PollInterval converts a millisecond setting, defaulting to 100ms.
func PollInterval(ms int) time.Duration {
	if ms <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}

// PlayFile loads path, starts playback and blocks until the engine goes idle
// or ctx ends. The file is always unloaded before returning.
func PlayFile(ctx context.Context, p Player, path string, poll time.Duration) (err error) {
	if err := p.Load(path); err != nil {
		return fmt.Errorf("%w: load %s: %v", ErrPlayback, path, err)
	}
	defer func() {
		if uerr := p.Unload(); uerr != nil && err == nil {
			err = fmt.Errorf("%w: %v", ErrPlayback, uerr)
		}
	}()
	if err := p.Play(); err != nil {
		return fmt.Errorf("%w: %v", ErrPlayback, err)
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for p.Busy() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
