// Package alert turns risk-assessment messages into spoken audio and plays
// them one at a time.
//
// The [Synthesizer] writes each synthesized clip to a uniquely named
// temporary file; the [Queue] owns that file from Enqueue until it is played
// and deleted. The queue is the one place in the service with real
// background concurrency: a single worker goroutine, started on demand,
// drains the pending alerts in FIFO order and exits when the queue empties.
package alert

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/haneul-dev/cribwatch/internal/observe"
	"github.com/haneul-dev/cribwatch/pkg/provider/speech"
)

// ErrSynthesis is returned (wrapped) when the speech backend fails. The
// alert is dropped without retry; a failed alert must not block the request.
var ErrSynthesis = errors.New("alert: speech synthesis failed")

// Alert is a handle to one synthesized audio clip awaiting playback.
//
// Lifecycle: created by [Synthesizer.Synthesize] → enqueued → played →
// removed. The queue exclusively owns the alert from Enqueue to removal; no
// other component may read or delete the file during that window.
type Alert struct {
	// Path is the location of the temporary MP3 file.
	Path string

	// Message is the spoken text, kept for logging and the event feed.
	Message string

	// CreatedAt records when the clip was synthesized.
	CreatedAt time.Time
}

// Remove deletes the alert's underlying file. It is idempotent: removing an
// already-removed file is not an error.
func (a *Alert) Remove() error {
	err := os.Remove(a.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("alert: remove %q: %w", a.Path, err)
	}
	return nil
}

// Synthesizer converts alert messages into playable audio files.
type Synthesizer struct {
	provider speech.Provider
	dir      string
	metrics  *observe.Metrics
}

// NewSynthesizer creates a Synthesizer that writes clips into dir. An empty
// dir means the OS temp dir. metrics may be nil in tests.
func NewSynthesizer(provider speech.Provider, dir string, metrics *observe.Metrics) *Synthesizer {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Synthesizer{provider: provider, dir: dir, metrics: metrics}
}

// Synthesize converts text to speech and writes the clip to a uniquely
// named temporary file. Backend failures wrap [ErrSynthesis].
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*Alert, error) {
	start := time.Now()
	audio, err := s.provider.Synthesize(ctx, text)
	if s.metrics != nil {
		s.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("cribwatch-alert-%s.mp3", uuid.NewString()))
	if err := os.WriteFile(path, audio, 0o600); err != nil {
		return nil, fmt.Errorf("%w: write clip: %v", ErrSynthesis, err)
	}

	return &Alert{Path: path, Message: text, CreatedAt: time.Now()}, nil
}
