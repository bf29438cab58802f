package alert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/haneul-dev/cribwatch/internal/observe"
	"github.com/haneul-dev/cribwatch/pkg/provider/audioplayer/mock"
)

// newAlertFile creates a real temp file so removal can be observed.
func newAlertFile(t *testing.T, name string) *Alert {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("mp3"), 0o600); err != nil {
		t.Fatalf("write temp alert: %v", err)
	}
	return &Alert{Path: path, Message: name, CreatedAt: time.Now()}
}

// waitIdle polls until the queue's worker has exited.
func waitIdle(t *testing.T, q *Queue) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		q.mu.Lock()
		idle := !q.workerActive && len(q.pending) == 0
		q.mu.Unlock()
		if idle {
			return
		}
		select {
		case <-deadline:
			t.Fatal("queue did not drain in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestEnqueue_PlaysInFIFOOrder(t *testing.T) {
	player := &mock.Player{PlayDelay: 2 * time.Millisecond}
	q := NewQueue(player, nil)

	var want []string
	for i := range 8 {
		a := newAlertFile(t, fmt.Sprintf("alert-%d.mp3", i))
		want = append(want, a.Path)
		if err := q.Enqueue(a); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	waitIdle(t, q)

	got := player.Played()
	if len(got) != len(want) {
		t.Fatalf("played %d alerts, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("playback[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEnqueue_RemovesFileAfterPlayback(t *testing.T) {
	player := &mock.Player{}
	q := NewQueue(player, nil)

	a := newAlertFile(t, "alert.mp3")
	if err := q.Enqueue(a); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitIdle(t, q)

	if _, err := os.Stat(a.Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("alert file still exists after playback: %v", err)
	}
}

func TestEnqueue_PlaybackFailureStillCleansUpAndContinues(t *testing.T) {
	player := &mock.Player{}
	var calls int
	var mu sync.Mutex
	player.PlayFunc = func(_ context.Context, _ string) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return errors.New("decoder blew up")
		}
		return nil
	}
	q := NewQueue(player, nil)

	bad := newAlertFile(t, "bad.mp3")
	good := newAlertFile(t, "good.mp3")
	if err := q.Enqueue(bad); err != nil {
		t.Fatalf("Enqueue(bad): %v", err)
	}
	if err := q.Enqueue(good); err != nil {
		t.Fatalf("Enqueue(good): %v", err)
	}
	waitIdle(t, q)

	// The failed alert's file is still removed.
	if _, err := os.Stat(bad.Path); !errors.Is(err, os.ErrNotExist) {
		t.Error("failed alert's file was not removed")
	}
	// The worker survived and played the next alert.
	if got := player.Played(); len(got) != 2 {
		t.Errorf("played %d alerts, want 2 (worker must survive a playback error)", len(got))
	}
}

func TestEnqueue_ConcurrentFromIdleStartsOneWorker(t *testing.T) {
	const k = 32

	var mu sync.Mutex
	active := 0
	maxActive := 0
	player := &mock.Player{}
	player.PlayFunc = func(_ context.Context, _ string) error {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return nil
	}
	q := NewQueue(player, nil)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range k {
		a := newAlertFile(t, fmt.Sprintf("alert-%d.mp3", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if err := q.Enqueue(a); err != nil {
				t.Errorf("Enqueue: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()
	waitIdle(t, q)

	if maxActive != 1 {
		t.Errorf("max concurrent playbacks = %d, want 1", maxActive)
	}
	if got := len(player.Played()); got != k {
		t.Errorf("played %d alerts, want %d (each exactly once)", got, k)
	}
}

func TestAlertRemove_Idempotent(t *testing.T) {
	a := newAlertFile(t, "alert.mp3")
	if err := a.Remove(); err != nil {
		t.Fatalf("first Remove: %v", err)
	}
	if err := a.Remove(); err != nil {
		t.Errorf("second Remove: %v, want nil", err)
	}
}

func TestClose_RejectsNewAlertsAndDrains(t *testing.T) {
	player := &mock.Player{PlayDelay: time.Millisecond}
	q := NewQueue(player, nil)

	a := newAlertFile(t, "alert.mp3")
	if err := q.Enqueue(a); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	late := newAlertFile(t, "late.mp3")
	if err := q.Enqueue(late); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue after Close = %v, want ErrQueueClosed", err)
	}
	if got := len(player.Played()); got != 1 {
		t.Errorf("played %d alerts before close, want 1", got)
	}
}

func TestClose_RemovesPendingClipsOnTimeout(t *testing.T) {
	player := &mock.Player{}
	block := make(chan struct{})
	player.PlayFunc = func(ctx context.Context, _ string) error {
		select {
		case <-block:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	q := NewQueue(player, nil)

	first := newAlertFile(t, "first.mp3")
	second := newAlertFile(t, "second.mp3")
	if err := q.Enqueue(first); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(second); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	close(block)

	for _, a := range []*Alert{first, second} {
		if _, err := os.Stat(a.Path); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("clip %q not removed after Close", a.Path)
		}
	}
}

func TestClose_TimeoutDrainsQueueDepthGauge(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	player := &mock.Player{}
	block := make(chan struct{})
	player.PlayFunc = func(ctx context.Context, _ string) error {
		select {
		case <-block:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	q := NewQueue(player, metrics)

	for _, name := range []string{"first.mp3", "second.mp3", "third.mp3"} {
		if err := q.Enqueue(newAlertFile(t, name)); err != nil {
			t.Fatalf("Enqueue %s: %v", name, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	close(block)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	depth, found := int64(0), false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "cribwatch.queue.depth" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatal("queue depth metric is not an int64 sum")
			}
			for _, dp := range sum.DataPoints {
				depth += dp.Value
				found = true
			}
		}
	}
	if !found {
		t.Fatal("queue depth metric not recorded")
	}
	if depth != 0 {
		t.Errorf("queue depth after Close = %d, want 0", depth)
	}
}
