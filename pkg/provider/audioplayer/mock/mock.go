// Package mock provides an in-memory mock implementation of
// [audioplayer.Player] for use in unit tests and for running the service on
// headless hosts without an audio device.
//
// The mock records every played path and allows the test to configure the
// returned error and a simulated playback duration via exported fields. It is
// safe for concurrent use.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/haneul-dev/cribwatch/pkg/provider/audioplayer"
)

// Compile-time interface assertion.
var _ audioplayer.Player = (*Player)(nil)

// Player is a mock implementation of [audioplayer.Player].
type Player struct {
	mu sync.Mutex

	// PlayError is returned by [Player.Play] after the simulated delay.
	PlayError error

	// PlayDelay simulates playback duration. Zero means Play returns
	// immediately.
	PlayDelay time.Duration

	// PlayFunc, when non-nil, is invoked instead of the default behaviour.
	PlayFunc func(ctx context.Context, path string) error

	// played accumulates the paths passed to Play, in call order.
	played []string
}

// Play records path, waits for PlayDelay (respecting ctx), and returns
// PlayError.
func (p *Player) Play(ctx context.Context, path string) error {
	p.mu.Lock()
	p.played = append(p.played, path)
	fn := p.PlayFunc
	delay := p.PlayDelay
	playErr := p.PlayError
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, path)
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return playErr
}

// Played returns a copy of all paths passed to Play, in call order.
func (p *Player) Played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.played))
	copy(out, p.played)
	return out
}

// Close is a no-op.
func (p *Player) Close() error { return nil }
