// Package audioplayer defines the Player interface for local audio playback
// backends.
//
// The playback queue hands a Player one synthesized alert file at a time and
// relies on Play blocking until the clip finishes, so alerts never overlap.
package audioplayer

import "context"

// Player plays encoded audio files through the host's audio device.
//
// Implementations must be safe for concurrent use, though the playback queue
// only ever issues one Play at a time.
type Player interface {
	// Play loads and plays the audio file at path, blocking until the backend
	// reports playback finished or ctx is cancelled. Cancellation stops
	// playback and returns ctx.Err().
	Play(ctx context.Context, path string) error

	// Close releases the audio device. Safe to call multiple times.
	Close() error
}
