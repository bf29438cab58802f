package alert

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/haneul-dev/cribwatch/internal/observe"
	"github.com/haneul-dev/cribwatch/pkg/provider/audioplayer"
)

// ErrQueueClosed is returned by Enqueue after Close has been called.
var ErrQueueClosed = errors.New("alert: queue is closed")

// Queue serializes playback of pending alerts so concurrent alerts never
// overlap.
//
// The queue is either idle (no worker, nothing pending) or playing (exactly
// one worker goroutine draining the FIFO). Enqueue never blocks: when the
// queue is idle it starts the worker with the new alert as its first job;
// otherwise it appends to the pending list. The idle→playing transition and
// the worker start happen under one mutex, so two concurrent Enqueue calls
// can never both start a worker.
//
// Each alert's file is removed after its playback attempt, success or
// failure, so a corrupt clip neither leaks disk space nor stalls the queue.
type Queue struct {
	player  audioplayer.Player
	metrics *observe.Metrics

	mu           sync.Mutex
	pending      []*Alert
	workerActive bool
	closed       bool

	// baseCtx bounds playback for all workers; cancelled by Close.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	// wg tracks the worker goroutine so Close can wait for the drain.
	wg sync.WaitGroup
}

// NewQueue creates a Queue playing through player. metrics may be nil in
// tests.
func NewQueue(player audioplayer.Player, metrics *observe.Metrics) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		player:     player,
		metrics:    metrics,
		baseCtx:    ctx,
		cancelBase: cancel,
	}
}

// Enqueue hands an alert to the queue and returns immediately. The queue
// owns the alert (and its file) from this point on. Returns [ErrQueueClosed]
// after Close, in which case the caller retains ownership.
func (q *Queue) Enqueue(alert *Alert) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}

	if q.metrics != nil {
		q.metrics.QueueDepth.Add(q.baseCtx, 1)
	}

	if q.workerActive {
		q.pending = append(q.pending, alert)
		q.mu.Unlock()
		return nil
	}

	// Idle → playing: claim the worker slot before releasing the lock so a
	// racing Enqueue sees workerActive and appends instead of starting a
	// second worker.
	q.workerActive = true
	q.wg.Add(1)
	q.mu.Unlock()

	go q.drain(alert)
	return nil
}

// drain is the worker loop. It plays first, then repeatedly pops the head
// of the pending list until the queue is empty, clearing the worker flag
// under the same lock that observes emptiness.
func (q *Queue) drain(first *Alert) {
	defer q.wg.Done()

	current := first
	for {
		q.playAndRemove(current)

		q.mu.Lock()
		if len(q.pending) == 0 {
			q.workerActive = false
			q.mu.Unlock()
			return
		}
		current = q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
	}
}

// playAndRemove plays one alert and unconditionally removes its file.
// Playback errors are logged and counted; they never stop the worker.
func (q *Queue) playAndRemove(a *Alert) {
	defer func() {
		if err := a.Remove(); err != nil {
			observe.Logger(q.baseCtx).Warn("failed to remove alert clip", "path", a.Path, "err", err)
		}
		if q.metrics != nil {
			q.metrics.QueueDepth.Add(q.baseCtx, -1)
		}
	}()

	start := time.Now()
	err := q.player.Play(q.baseCtx, a.Path)
	if q.metrics != nil {
		q.metrics.PlaybackDuration.Record(q.baseCtx, time.Since(start).Seconds())
	}
	if err != nil {
		observe.Logger(q.baseCtx).Error("alert playback failed",
			"path", a.Path,
			"message", a.Message,
			"err", err,
		)
		if q.metrics != nil {
			q.metrics.AlertsDropped.Add(q.baseCtx, 1, metric.WithAttributes(observe.Attr("reason", "playback")))
		}
		return
	}

	if q.metrics != nil {
		q.metrics.AlertsPlayed.Add(q.baseCtx, 1)
	}
}

// Close stops accepting new alerts and waits for the worker to drain or for
// ctx to expire. When ctx expires first, in-flight playback is cancelled and
// any clips still pending are removed from disk.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Cut playback short and collect whatever the worker left behind.
		q.cancelBase()
		<-done
	}

	q.cancelBase()

	q.mu.Lock()
	leftover := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, a := range leftover {
		_ = a.Remove()
		if q.metrics != nil {
			q.metrics.QueueDepth.Add(context.Background(), -1)
			q.metrics.AlertsDropped.Add(context.Background(), 1, metric.WithAttributes(observe.Attr("reason", "shutdown")))
		}
	}
	return nil
}
