// Package pipeline runs the upload → analysis → alert flow for one video.
//
// A run stages the uploaded file in a private temp directory, copies it to
// object storage, asks the vision provider for a risk assessment, and, when
// the assessment calls for an alarm, synthesizes a spoken alert and hands it
// to the playback queue. Every run is recorded in the history store and
// narrated through a [Notifier] so connected clients can follow progress.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/haneul-dev/cribwatch/internal/alert"
	"github.com/haneul-dev/cribwatch/internal/analysis"
	"github.com/haneul-dev/cribwatch/internal/history"
	"github.com/haneul-dev/cribwatch/internal/mimetype"
	"github.com/haneul-dev/cribwatch/internal/observe"
	"github.com/haneul-dev/cribwatch/pkg/provider/objectstore"
)

// ErrUnsupportedMedia is returned by Process for filenames whose extension
// is not a recognized video type.
var ErrUnsupportedMedia = errors.New("pipeline: unsupported media type")

// DefaultPrefix is the object key prefix used when none is configured.
const DefaultPrefix = "temp_videos"

// Deps bundles the collaborators a [Pipeline] needs. Store, Analyzer, and
// History are required. Synthesizer and Queue may both be nil, in which case
// alarms are recorded but never voiced.
type Deps struct {
	Store       objectstore.Store
	Bucket      string
	Prefix      string
	Analyzer    *analysis.Analyzer
	Synthesizer *alert.Synthesizer
	Queue       *alert.Queue
	History     history.Store
	Notifier    Notifier
	Metrics     *observe.Metrics
}

// Outcome summarizes one completed pipeline run.
type Outcome struct {
	RunID       string           `json:"run_id"`
	Filename    string           `json:"filename"`
	Locator     string           `json:"locator"`
	Result      *analysis.Result `json:"result"`
	AlertQueued bool             `json:"alert_queued"`

	// Note carries a caveat about the run, such as the analysis being
	// unavailable or a dropped alert. Empty on a clean run.
	Note string `json:"note,omitempty"`

	// RegionWarning is set when the storage bucket lives outside the
	// expected region. Advisory only; the video was still uploaded.
	RegionWarning string `json:"region_warning,omitempty"`
}

// Pipeline executes video analysis runs. Safe for concurrent use; runs are
// independent except for the shared playback queue.
type Pipeline struct {
	store    objectstore.Store
	bucket   string
	prefix   string
	analyzer *analysis.Analyzer
	synth    *alert.Synthesizer
	queue    *alert.Queue
	history  history.Store
	notifier Notifier
	metrics  *observe.Metrics
}

// New creates a Pipeline from deps, filling in defaults for Prefix,
// Notifier, and Metrics.
func New(d Deps) *Pipeline {
	if d.Prefix == "" {
		d.Prefix = DefaultPrefix
	}
	if d.Notifier == nil {
		d.Notifier = NopNotifier{}
	}
	if d.Metrics == nil {
		d.Metrics = observe.DefaultMetrics()
	}
	return &Pipeline{
		store:    d.Store,
		bucket:   d.Bucket,
		prefix:   d.Prefix,
		analyzer: d.Analyzer,
		synth:    d.Synthesizer,
		queue:    d.Queue,
		history:  d.History,
		notifier: d.Notifier,
		metrics:  d.Metrics,
	}
}

// Process runs the full flow for one uploaded video. filename is the
// client-supplied name (used for type detection and history); src streams the
// video bytes. The staged local copy is always removed before Process
// returns, whether the run succeeds or not.
func (p *Pipeline) Process(ctx context.Context, filename string, src io.Reader) (*Outcome, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.process")
	defer span.End()

	runID := uuid.NewString()
	log := observe.Logger(ctx).With("run_id", runID, "filename", filename)
	p.notify(runID, StageReceived, filename)

	if !mimetype.IsSupported(filename) {
		p.finish(ctx, "rejected")
		p.notify(runID, StageFailed, "unsupported media type")
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMedia, filename)
	}
	contentType := mimetype.Detect(filename)

	tmpDir, err := os.MkdirTemp("", "cribwatch-")
	if err != nil {
		return nil, p.fail(ctx, runID, fmt.Errorf("pipeline: stage dir: %w", err))
	}
	defer os.RemoveAll(tmpDir)

	localPath := filepath.Join(tmpDir, "temp_video_"+runID+filepath.Ext(filename))
	if err := stageFile(localPath, src); err != nil {
		return nil, p.fail(ctx, runID, err)
	}

	// Upload.
	p.notify(runID, StageUploading, "")
	bucket, err := p.store.ResolveBucket(ctx, p.bucket)
	if err != nil {
		return nil, p.fail(ctx, runID, err)
	}
	remotePath := p.prefix + "/" + filepath.Base(localPath)
	uploadStart := time.Now()
	locator, err := p.store.Upload(ctx, bucket, localPath, remotePath, contentType)
	if err != nil {
		return nil, p.fail(ctx, runID, err)
	}
	p.metrics.UploadDuration.Record(ctx, time.Since(uploadStart).Seconds())
	p.notify(runID, StageUploaded, locator)
	log.Info("video uploaded", "locator", locator, "region", bucket.Region)

	out := &Outcome{
		RunID:    runID,
		Filename: filename,
		Locator:  locator,
	}
	if bucket.RegionMismatch {
		out.RegionWarning = fmt.Sprintf("bucket %q is in region %q, outside the expected region", bucket.Name, bucket.Region)
	}

	// Analyze. An unusable model reply still answers the upload; only the
	// alert stage is skipped.
	p.notify(runID, StageAnalyzing, "")
	res, err := p.analyzer.Analyze(ctx, locator, contentType)
	if err != nil {
		if errors.Is(err, analysis.ErrUnparsable) {
			out.Note = "analysis unavailable"
			log.Warn("model reply unparsable, skipping alert stage", "err", err)
			p.finish(ctx, "unparsable")
			p.notify(runID, StageDone, out.Note)
			return out, nil
		}
		return nil, p.fail(ctx, runID, err)
	}
	out.Result = res
	p.notify(runID, StageAnalyzed, string(res.Severity))

	p.record(ctx, runID, filename, locator, res)

	msg := res.ShoutMessage()
	if !res.AlarmNeeded || msg == "" {
		p.finish(ctx, "no_alarm")
		p.notify(runID, StageDone, "no alarm needed")
		return out, nil
	}

	if p.synth == nil || p.queue == nil {
		log.Warn("alarm needed but no speech provider configured", "severity", res.Severity)
		p.finish(ctx, "ok")
		p.notify(runID, StageDone, "alert skipped: no speech provider")
		return out, nil
	}

	// Voice the alert. A failure here is reported but never fails the run;
	// the analysis already succeeded and the caller gets its result.
	p.notify(runID, StageSynthesizing, "")
	a, err := p.synth.Synthesize(ctx, msg)
	if err != nil {
		return p.dropAlert(ctx, runID, out, "synthesis", err), nil
	}
	if err := p.queue.Enqueue(a); err != nil {
		a.Remove()
		return p.dropAlert(ctx, runID, out, "queue_closed", err), nil
	}
	out.AlertQueued = true
	p.notify(runID, StageQueued, msg)

	p.finish(ctx, "ok")
	p.notify(runID, StageDone, "")
	log.Info("alert queued", "severity", res.Severity)
	return out, nil
}

// stageFile writes src to path with restrictive permissions.
func stageFile(path string, src io.Reader) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("pipeline: stage file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return fmt.Errorf("pipeline: stage file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("pipeline: stage file: %w", err)
	}
	return nil
}

// record writes the run to the history store. History failures are logged
// but never abort a run.
func (p *Pipeline) record(ctx context.Context, runID, filename, locator string, res *analysis.Result) {
	entry := history.Entry{
		ID:                runID,
		Filename:          filename,
		Locator:           locator,
		AlarmNeeded:       res.AlarmNeeded,
		Severity:          string(res.Severity),
		Situation:         res.Situation,
		RecommendedAction: res.RecommendedAction,
		CreatedAt:         time.Now().UTC(),
	}
	if err := p.history.Record(ctx, entry); err != nil {
		observe.Logger(ctx).Warn("failed to record history entry", "run_id", runID, "err", err)
	}
}

func (p *Pipeline) notify(runID string, stage Stage, message string) {
	p.notifier.Publish(Event{
		RunID:   runID,
		Stage:   stage,
		Message: message,
		Time:    time.Now().UTC(),
	})
}

// dropAlert reports a failed alert stage on an otherwise successful run.
// The run still counts as "ok"; the drop is surfaced through the outcome
// note, the event feed, and the AlertsDropped counter.
func (p *Pipeline) dropAlert(ctx context.Context, runID string, out *Outcome, reason string, err error) *Outcome {
	out.Note = "alert dropped: " + reason
	p.metrics.AlertsDropped.Add(ctx, 1, metric.WithAttributes(observe.Attr("reason", reason)))
	observe.Logger(ctx).Error("alert dropped", "run_id", runID, "reason", reason, "err", err)
	p.finish(ctx, "ok")
	p.notify(runID, StageDone, out.Note)
	return out
}

// finish counts a completed run under the given outcome attribute.
func (p *Pipeline) finish(ctx context.Context, outcome string) {
	p.metrics.PipelineRuns.Add(ctx, 1, metric.WithAttributes(observe.Attr("outcome", outcome)))
}

// fail counts the run as errored, publishes the failure event, and passes
// the error through.
func (p *Pipeline) fail(ctx context.Context, runID string, err error) error {
	p.finish(ctx, "error")
	p.notify(runID, StageFailed, err.Error())
	observe.Logger(ctx).Error("pipeline run failed", "run_id", runID, "err", err)
	return err
}
