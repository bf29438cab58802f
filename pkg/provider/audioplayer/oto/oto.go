// Package oto provides an audio player backed by the oto playback library
// and the go-mp3 decoder. It implements the audioplayer.Player interface.
package oto

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	otolib "github.com/ebitengine/oto/v3"
	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/haneul-dev/cribwatch/pkg/provider/audioplayer"
)

// pollInterval is how often Play checks whether the backend finished the clip.
const pollInterval = 100 * time.Millisecond

// Player implements audioplayer.Player using an oto playback context.
//
// oto permits a single context per process with a fixed sample rate, so the
// context is created lazily from the first clip's sample rate and reused for
// all subsequent clips. Alert clips all come from the same synthesis backend
// and share one rate in practice.
type Player struct {
	mu     sync.Mutex
	otoCtx *otolib.Context
	rate   int
	closed bool
}

// Compile-time assertion that Player satisfies the audioplayer.Player interface.
var _ audioplayer.Player = (*Player)(nil)

// New creates a Player. The audio device is not opened until the first Play.
func New() *Player {
	return &Player{}
}

// Play decodes the MP3 file at path and plays it to completion. It blocks
// until the backend reports playback finished or ctx is cancelled;
// cancellation stops playback immediately and returns ctx.Err().
func (p *Player) Play(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("audioplayer: open %q: %w", path, err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return fmt.Errorf("audioplayer: decode %q: %w", path, err)
	}

	otoCtx, err := p.context(dec.SampleRate())
	if err != nil {
		return err
	}

	player := otoCtx.NewPlayer(dec)
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// context returns the process-wide oto context, creating it on first use
// with the given sample rate. go-mp3 always emits 16-bit stereo PCM.
func (p *Player) context(sampleRate int) (*otolib.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("audioplayer: player is closed")
	}
	if p.otoCtx != nil {
		return p.otoCtx, nil
	}

	otoCtx, ready, err := otolib.NewContext(&otolib.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       otolib.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("audioplayer: open audio device: %w", err)
	}
	<-ready

	p.otoCtx = otoCtx
	p.rate = sampleRate
	return otoCtx, nil
}

// Close marks the player closed. The oto context itself cannot be torn down
// (the library keeps the device open for the life of the process), so Close
// only prevents further playback.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
