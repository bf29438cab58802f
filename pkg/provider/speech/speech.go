// Package speech defines the Provider interface for Text-to-Speech backends.
//
// A speech provider converts an alert message into encoded audio bytes.
// Unlike a streaming conversational TTS, alert synthesis is one-shot: the
// full message is known up front and the caller needs the complete clip
// before playback starts. Implementations must be safe for concurrent use.
package speech

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into a complete encoded audio clip (MP3) and
	// returns the raw bytes. The call blocks until synthesis finishes or ctx
	// is cancelled.
	Synthesize(ctx context.Context, text string) ([]byte, error)

	// Close releases the underlying client. Safe to call multiple times.
	Close() error
}
