package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/subtitler/pipeline/config"
	"github.com/subtitler/pipeline/errors"
	"github.com/subtitler/pipeline/fetcher"
	"github.com/subtitler/pipeline/log"
	"github.com/subtitler/pipeline/media"
	"github.com/subtitler/pipeline/pipeline"
	"github.com/subtitler/pipeline/progress"
)

// job is one unit of dispatchable work, queued onto either the CPU pool
// or the I/O pool depending on its task's Kind.
type job struct {
	record *Record
	run    func(ctx context.Context, record *Record)
}

// Registry is the Task Registry (§4.7): a concurrency-safe map of task
// records guarded by a read-write lock, with per-record locking for
// mutation, matching §5's "Shared-resource policy". It owns the two
// worker pools named in §5 and the Pipeline Coordinator they drive.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record

	cpuQueue chan job
	ioQueue  chan job

	coordinator *pipeline.Coordinator
	fetcher     fetcher.Fetcher
	toolkit     *media.Toolkit
	ledger      *progress.Ledger

	workDir string

	wg     sync.WaitGroup
	stopCh chan struct{}
}

func NewRegistry(coordinator *pipeline.Coordinator, fetch fetcher.Fetcher, toolkit *media.Toolkit, ledger *progress.Ledger, workDir string) *Registry {
	r := &Registry{
		records:     make(map[string]*Record),
		cpuQueue:    make(chan job, 256),
		ioQueue:     make(chan job, 256),
		coordinator: coordinator,
		fetcher:     fetch,
		toolkit:     toolkit,
		ledger:      ledger,
		workDir:     workDir,
		stopCh:      make(chan struct{}),
	}
	for i := 0; i < config.TaskWorkerPoolSize; i++ {
		r.wg.Add(1)
		go r.worker(r.cpuQueue)
	}
	for i := 0; i < config.IOWorkerPoolSize; i++ {
		r.wg.Add(1)
		go r.worker(r.ioQueue)
	}
	return r
}

func (r *Registry) worker(queue chan job) {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopCh:
			return
		case j := <-queue:
			r.runJob(j)
		}
	}
}

func (r *Registry) runJob(j job) {
	ctx, cancel := context.WithCancel(context.Background())
	j.record.mu.Lock()
	j.record.cancel = cancel
	j.record.mu.Unlock()
	defer cancel()

	j.record.transition(StateRunning)
	j.run(ctx, j.record)
}

func (r *Registry) newTaskID() string {
	return uuid.NewString()
}

func (r *Registry) register(rec *Record) {
	r.mu.Lock()
	r.records[rec.TaskID] = rec
	r.mu.Unlock()
}

func (r *Registry) taskWorkDir(taskID string) (string, error) {
	dir := filepath.Join(r.workDir, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Newf(errors.Internal, err, "failed creating task work dir")
	}
	return dir, nil
}

// SubmitUpload enqueues an already-uploaded file for processing (§6).
func (r *Registry) SubmitUpload(localPath string, choices pipeline.Choices) (string, error) {
	return r.submitPipelineTask(KindUpload, "", localPath, choices)
}

// SubmitFetch enqueues a remote URL for full processing (§6).
func (r *Registry) SubmitFetch(url string, choices pipeline.Choices) (string, error) {
	return r.submitPipelineTask(KindFetch, url, "", choices)
}

func (r *Registry) submitPipelineTask(kind Kind, url, uploadedPath string, choices pipeline.Choices) (string, error) {
	if err := pipeline.ValidateChoices(choices); err != nil {
		return "", err
	}

	taskID := r.newTaskID()
	dir, err := r.taskWorkDir(taskID)
	if err != nil {
		return "", err
	}

	rec := &Record{
		TaskID:    taskID,
		Kind:      kind,
		State:     StatePending,
		Choices:   choices,
		SourceURL: url,
		WorkDir:   dir,
		CreatedAt: time.Now(),
	}
	r.register(rec)
	log.AddContext(taskID, "kind", string(kind))

	r.cpuQueue <- job{record: rec, run: func(ctx context.Context, rec *Record) {
		in := pipeline.Input{
			TaskID:       taskID,
			SourceURL:    url,
			UploadedPath: uploadedPath,
			Quality:      fetcher.BestQuality,
			WorkDir:      dir,
			Choices:      choices,
		}
		out, err := r.coordinator.Run(ctx, in)
		r.finish(rec, func() {
			rec.Result = &out
			rec.Metadata = out.Metadata
		}, err)
	}}
	return taskID, nil
}

// SubmitFetchOnly enqueues a metadata-probe-and-download-only task onto
// the I/O pool (§6), per SPEC_FULL's decision that fetch_only always
// probes first so Metadata is populated even without processing.
func (r *Registry) SubmitFetchOnly(url string, quality fetcher.Quality) (string, error) {
	taskID := r.newTaskID()
	dir, err := r.taskWorkDir(taskID)
	if err != nil {
		return "", err
	}
	rec := &Record{
		TaskID:    taskID,
		Kind:      KindFetchOnly,
		State:     StatePending,
		SourceURL: url,
		WorkDir:   dir,
		CreatedAt: time.Now(),
	}
	r.register(rec)
	log.AddContext(taskID, "kind", string(KindFetchOnly))

	r.ioQueue <- job{record: rec, run: func(ctx context.Context, rec *Record) {
		path, meta, err := r.fetcher.Fetch(ctx, url, quality, dir)
		r.finish(rec, func() {
			rec.Metadata = &meta
			rec.MediaResult = path
		}, err)
	}}
	return taskID, nil
}

// SubmitMediaOp enqueues a standalone Media Toolkit operation (§6).
func (r *Registry) SubmitMediaOp(params MediaOpParams) (string, error) {
	taskID := r.newTaskID()
	dir, err := r.taskWorkDir(taskID)
	if err != nil {
		return "", err
	}
	rec := &Record{
		TaskID:    taskID,
		Kind:      KindMediaOp,
		State:     StatePending,
		MediaOp:   params,
		WorkDir:   dir,
		CreatedAt: time.Now(),
	}
	r.register(rec)
	log.AddContext(taskID, "kind", string(KindMediaOp), "op", string(params.Op))

	r.cpuQueue <- job{record: rec, run: func(ctx context.Context, rec *Record) {
		path, err := r.runMediaOp(ctx, taskID, dir, params)
		r.finish(rec, func() { rec.MediaResult = path }, err)
	}}
	return taskID, nil
}

func (r *Registry) runMediaOp(ctx context.Context, taskID, dir string, params MediaOpParams) (string, error) {
	switch params.Op {
	case OpCut:
		return r.toolkit.Cut(ctx, taskID, params.InputPath, dir, params.StartMs, params.EndMs)
	case OpMerge:
		return r.toolkit.Merge(ctx, taskID, params.InputPaths, dir)
	case OpEmbed:
		video := params.InputPath
		if params.SRTPath != "" {
			burned, err := r.toolkit.BurnSubtitles(ctx, taskID, video, params.SRTPath, dir)
			if err != nil {
				return "", err
			}
			video = burned
		}
		if params.Watermark != nil {
			return r.toolkit.OverlayWatermark(ctx, taskID, video, *params.Watermark, dir)
		}
		return video, nil
	default:
		return "", errors.New(errors.InvalidInput, fmt.Sprintf("unknown media op %q", params.Op), nil)
	}
}

// finish transitions a record to its terminal state, applying apply()
// only on success, and records the classified TaskError on failure.
// Cancellation removes the task's artifact directory immediately (§8:
// "Cancellation mid-transcription -> artifacts are removed") rather than
// leaving cleanup to the TTL sweeper.
func (r *Registry) finish(rec *Record, apply func(), err error) {
	if err != nil {
		if errors.IsCancelled(err) {
			rec.transition(StateCancelled)
			if rerr := os.RemoveAll(rec.WorkDir); rerr != nil {
				log.LogError(rec.TaskID, "failed removing cancelled task work dir", rerr)
			}
		} else {
			rec.mu.Lock()
			rec.Error = errors.ToTaskError(err)
			rec.mu.Unlock()
			rec.transition(StateFailed)
		}
		return
	}
	rec.mu.Lock()
	apply()
	rec.mu.Unlock()
	rec.transition(StateSucceeded)
}

// Get returns a task's snapshot. Unknown ids get soft-miss semantics
// (§6): a synthetic PENDING snapshot echoing the id, not an error. The
// Progress Ledger's weighted overall percent, per-step state, and bounded
// log tail are merged in here since Record itself has no ledger access.
func (r *Registry) Get(taskID string) Snapshot {
	r.mu.RLock()
	rec, ok := r.records[taskID]
	r.mu.RUnlock()
	if !ok {
		return Snapshot{TaskID: taskID, State: StatePending}
	}
	snap := rec.snapshot()
	ledgerSnap := r.ledger.Snapshot(taskID)
	snap.OverallPercent = ledgerSnap.OverallPercent
	snap.Steps = ledgerSnap.Steps
	snap.LogsTail = ledgerSnap.Logs
	return snap
}

// Cancel requests cooperative cancellation of a running task (§5).
// Idempotent: cancelling an already-terminal or unknown task is a no-op.
func (r *Registry) Cancel(taskID string) {
	r.mu.RLock()
	rec, ok := r.records[taskID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	rec.mu.Lock()
	cancel := rec.cancel
	rec.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Sweep removes terminal tasks whose TTL has elapsed, deleting their
// work directories (§8: "The TTL sweeper removes entire task directories
// after terminal + TTL").
func (r *Registry) Sweep(now time.Time, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rec := range r.records {
		snap := rec.snapshot()
		if !snap.State.Terminal() {
			continue
		}
		if now.Sub(snap.FinishedAt) < ttl {
			continue
		}
		if err := os.RemoveAll(rec.WorkDir); err != nil {
			log.LogError(id, "failed removing swept task work dir", err)
		}
		r.ledger.End(id)
		delete(r.records, id)
	}
}

// Stop signals worker goroutines to exit and waits for in-flight jobs'
// goroutines to finish accepting no more work. In-flight pipeline runs
// are left to their own context cancellation.
func (r *Registry) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}
