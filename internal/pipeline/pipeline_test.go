package pipeline

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haneul-dev/cribwatch/internal/alert"
	"github.com/haneul-dev/cribwatch/internal/analysis"
	"github.com/haneul-dev/cribwatch/internal/history"
	"github.com/haneul-dev/cribwatch/pkg/provider/audioplayer/mock"
	"github.com/haneul-dev/cribwatch/pkg/provider/objectstore"
	"github.com/haneul-dev/cribwatch/pkg/provider/vision"
)

const alarmReply = `{
	"alarm_needed": true,
	"severity": "high",
	"situation": "아이가 침대에서 떨어지려고 합니다",
	"recommended_action": "즉시 아이에게 가서 확인하세요",
	"recommended_shout_message": "위험해요! 아이를 확인하세요!"
}`

const calmReply = `{"alarm_needed": false, "severity": "low", "situation": "아이가 자고 있습니다", "recommended_action": ""}`

type fakeStore struct {
	mu          sync.Mutex
	resolveErr  error
	uploadErr   error
	region      string
	mismatch    bool
	stagedPaths []string
	remotePaths []string
}

func (f *fakeStore) ResolveBucket(_ context.Context, name string) (objectstore.Bucket, error) {
	if f.resolveErr != nil {
		return objectstore.Bucket{}, f.resolveErr
	}
	region := f.region
	if region == "" {
		region = "asia-northeast3"
	}
	return objectstore.Bucket{
		Name:           objectstore.NormalizeBucketName(name),
		Region:         region,
		RegionMismatch: f.mismatch,
	}, nil
}

func (f *fakeStore) Upload(_ context.Context, bucket objectstore.Bucket, localPath, remotePath, _ string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.mu.Lock()
	f.stagedPaths = append(f.stagedPaths, localPath)
	f.remotePaths = append(f.remotePaths, remotePath)
	f.mu.Unlock()
	return objectstore.Locator(bucket.Name, remotePath), nil
}

func (f *fakeStore) Close() error { return nil }

type fakeVision struct {
	reply string
	err   error
}

func (f *fakeVision) Generate(_ context.Context, _ string, _ vision.MediaRef) (string, error) {
	return f.reply, f.err
}

func (f *fakeVision) Close() error { return nil }

type fakeSpeech struct {
	err error
}

func (f *fakeSpeech) Synthesize(_ context.Context, _ string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("mp3-bytes"), nil
}

func (f *fakeSpeech) Close() error { return nil }

type captureNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureNotifier) Publish(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *captureNotifier) stages() []Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Stage, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Stage
	}
	return out
}

func newTestPipeline(t *testing.T, store *fakeStore, reply string, speechErr error) (*Pipeline, *mock.Player, *captureNotifier, history.Store) {
	t.Helper()
	player := &mock.Player{}
	queue := alert.NewQueue(player, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		queue.Close(ctx)
	})

	notifier := &captureNotifier{}
	hist := history.NewMemStore()
	p := New(Deps{
		Store:       store,
		Bucket:      "nursery-clips",
		Analyzer:    analysis.NewAnalyzer(&fakeVision{reply: reply}, nil),
		Synthesizer: alert.NewSynthesizer(&fakeSpeech{err: speechErr}, t.TempDir(), nil),
		Queue:       queue,
		History:     hist,
		Notifier:    notifier,
	})
	return p, player, notifier, hist
}

func waitForPlayback(t *testing.T, player *mock.Player, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(player.Played()) >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("played %d clips, want %d", len(player.Played()), want)
}

func TestProcess_AlarmQueuesAlert(t *testing.T) {
	store := &fakeStore{}
	p, player, notifier, hist := newTestPipeline(t, store, alarmReply, nil)

	out, err := p.Process(context.Background(), "crib.mp4", strings.NewReader("video-bytes"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !out.AlertQueued {
		t.Error("AlertQueued = false, want true")
	}
	if out.Locator == "" || !strings.HasPrefix(out.Locator, "gs://nursery-clips/temp_videos/") {
		t.Errorf("Locator = %q, want gs://nursery-clips/temp_videos/ prefix", out.Locator)
	}
	if !out.Result.AlarmNeeded {
		t.Error("Result.AlarmNeeded = false, want true")
	}

	waitForPlayback(t, player, 1)

	entries, err := hist.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	if entries[0].Severity != "high" {
		t.Errorf("recorded severity = %q, want %q", entries[0].Severity, "high")
	}

	stages := notifier.stages()
	want := []Stage{StageReceived, StageUploading, StageUploaded, StageAnalyzing, StageAnalyzed, StageSynthesizing, StageQueued, StageDone}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stages[%d] = %q, want %q", i, stages[i], want[i])
		}
	}
}

func TestProcess_NoAlarmSkipsSynthesis(t *testing.T) {
	store := &fakeStore{}
	p, player, notifier, _ := newTestPipeline(t, store, calmReply, nil)

	out, err := p.Process(context.Background(), "crib.mp4", strings.NewReader("video-bytes"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.AlertQueued {
		t.Error("AlertQueued = true, want false")
	}
	if got := len(player.Played()); got != 0 {
		t.Errorf("played %d clips, want 0", got)
	}
	for _, s := range notifier.stages() {
		if s == StageSynthesizing || s == StageQueued {
			t.Errorf("unexpected stage %q for a calm video", s)
		}
	}
}

func TestProcess_UnsupportedMedia(t *testing.T) {
	store := &fakeStore{}
	p, _, _, _ := newTestPipeline(t, store, alarmReply, nil)

	_, err := p.Process(context.Background(), "notes.txt", strings.NewReader("text"))
	if !errors.Is(err, ErrUnsupportedMedia) {
		t.Fatalf("Process error = %v, want ErrUnsupportedMedia", err)
	}
	if len(store.remotePaths) != 0 {
		t.Error("nothing should be uploaded for an unsupported file")
	}
}

func TestProcess_UploadFailureAborts(t *testing.T) {
	store := &fakeStore{uploadErr: objectstore.ErrUpload}
	p, player, notifier, hist := newTestPipeline(t, store, alarmReply, nil)

	_, err := p.Process(context.Background(), "crib.mp4", strings.NewReader("video-bytes"))
	if !errors.Is(err, objectstore.ErrUpload) {
		t.Fatalf("Process error = %v, want ErrUpload", err)
	}
	if got := len(player.Played()); got != 0 {
		t.Errorf("played %d clips, want 0", got)
	}
	entries, _ := hist.Recent(context.Background(), 10)
	if len(entries) != 0 {
		t.Errorf("history entries = %d, want 0", len(entries))
	}
	stages := notifier.stages()
	if stages[len(stages)-1] != StageFailed {
		t.Errorf("last stage = %q, want %q", stages[len(stages)-1], StageFailed)
	}
}

func TestProcess_BucketNotFound(t *testing.T) {
	store := &fakeStore{resolveErr: objectstore.ErrBucketNotFound}
	p, _, _, _ := newTestPipeline(t, store, alarmReply, nil)

	_, err := p.Process(context.Background(), "crib.mp4", strings.NewReader("video-bytes"))
	if !errors.Is(err, objectstore.ErrBucketNotFound) {
		t.Fatalf("Process error = %v, want ErrBucketNotFound", err)
	}
}

func TestProcess_UnparsableReplyStillAnswers(t *testing.T) {
	store := &fakeStore{}
	p, player, notifier, _ := newTestPipeline(t, store, "the model rambled without json", nil)

	out, err := p.Process(context.Background(), "crib.mp4", strings.NewReader("video-bytes"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Result != nil {
		t.Errorf("Result = %+v, want nil for an unparsable reply", out.Result)
	}
	if out.Note != "analysis unavailable" {
		t.Errorf("Note = %q, want %q", out.Note, "analysis unavailable")
	}
	if out.AlertQueued {
		t.Error("AlertQueued = true, want false")
	}
	if got := len(player.Played()); got != 0 {
		t.Errorf("played %d clips, want 0", got)
	}
	stages := notifier.stages()
	if stages[len(stages)-1] != StageDone {
		t.Errorf("last stage = %q, want %q", stages[len(stages)-1], StageDone)
	}
}

func TestProcess_SynthesisFailureDropsAlertOnly(t *testing.T) {
	store := &fakeStore{}
	p, player, _, hist := newTestPipeline(t, store, alarmReply, errors.New("tts down"))

	out, err := p.Process(context.Background(), "crib.mp4", strings.NewReader("video-bytes"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.AlertQueued {
		t.Error("AlertQueued = true, want false after a synthesis failure")
	}
	if out.Note != "alert dropped: synthesis" {
		t.Errorf("Note = %q, want %q", out.Note, "alert dropped: synthesis")
	}
	if out.Result == nil || !out.Result.AlarmNeeded {
		t.Error("analysis result must survive a dropped alert")
	}
	if got := len(player.Played()); got != 0 {
		t.Errorf("played %d clips, want 0", got)
	}

	// The analysis itself succeeded, so the run is still in history.
	entries, _ := hist.Recent(context.Background(), 10)
	if len(entries) != 1 {
		t.Errorf("history entries = %d, want 1", len(entries))
	}
}

func TestProcess_ClosedQueueDropsAlertOnly(t *testing.T) {
	store := &fakeStore{}
	queue := alert.NewQueue(&mock.Player{}, nil)
	if err := queue.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	p := New(Deps{
		Store:       store,
		Bucket:      "nursery-clips",
		Analyzer:    analysis.NewAnalyzer(&fakeVision{reply: alarmReply}, nil),
		Synthesizer: alert.NewSynthesizer(&fakeSpeech{}, t.TempDir(), nil),
		Queue:       queue,
		History:     history.NewMemStore(),
	})

	out, err := p.Process(context.Background(), "crib.mp4", strings.NewReader("video-bytes"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.AlertQueued {
		t.Error("AlertQueued = true, want false on a closed queue")
	}
	if out.Note != "alert dropped: queue_closed" {
		t.Errorf("Note = %q, want %q", out.Note, "alert dropped: queue_closed")
	}
}

func TestProcess_RegionMismatchCarriesWarning(t *testing.T) {
	store := &fakeStore{region: "us-central1", mismatch: true}
	p, _, _, _ := newTestPipeline(t, store, calmReply, nil)

	out, err := p.Process(context.Background(), "crib.mp4", strings.NewReader("video-bytes"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(out.RegionWarning, "us-central1") {
		t.Errorf("RegionWarning = %q, want the bucket region named", out.RegionWarning)
	}
}

func TestProcess_RemovesStagedFile(t *testing.T) {
	store := &fakeStore{}
	p, _, _, _ := newTestPipeline(t, store, calmReply, nil)

	if _, err := p.Process(context.Background(), "crib.mp4", strings.NewReader("video-bytes")); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(store.stagedPaths) != 1 {
		t.Fatalf("staged paths = %d, want 1", len(store.stagedPaths))
	}
	if _, err := os.Stat(store.stagedPaths[0]); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("staged file still exists: stat err = %v", err)
	}
}

func TestProcess_NoSpeechProviderStillSucceeds(t *testing.T) {
	store := &fakeStore{}
	notifier := &captureNotifier{}
	p := New(Deps{
		Store:    store,
		Bucket:   "nursery-clips",
		Analyzer: analysis.NewAnalyzer(&fakeVision{reply: alarmReply}, nil),
		History:  history.NewMemStore(),
		Notifier: notifier,
	})

	out, err := p.Process(context.Background(), "crib.mp4", strings.NewReader("video-bytes"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.AlertQueued {
		t.Error("AlertQueued = true, want false without a speech provider")
	}
	stages := notifier.stages()
	if stages[len(stages)-1] != StageDone {
		t.Errorf("last stage = %q, want %q", stages[len(stages)-1], StageDone)
	}
}
