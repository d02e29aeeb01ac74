// Package tasks implements the Task Registry (§4.7): task records, their
// state machine, two bounded worker pools driving the Pipeline
// Coordinator and direct Media Toolkit operations, and a TTL sweeper that
// reclaims terminal tasks' artifact directories. Grounded on the
// teacher's generic Cache[T] for the concurrency-safe map, extended with
// per-record locking and a state machine the cache itself never had.
package tasks

import (
	"sync"
	"time"

	"github.com/subtitler/pipeline/errors"
	"github.com/subtitler/pipeline/fetcher"
	"github.com/subtitler/pipeline/media"
	"github.com/subtitler/pipeline/pipeline"
	"github.com/subtitler/pipeline/progress"
)

// Kind is the closed set of task submission entry points (§6).
type Kind string

const (
	KindUpload    Kind = "upload"
	KindFetch     Kind = "fetch"
	KindFetchOnly Kind = "fetch_only"
	KindMediaOp   Kind = "media_op"
)

// State is the task state machine (§4.1): pending -> running ->
// {succeeded|failed|cancelled}, no back-edges.
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// MediaOp names the media_op submission's operation (§6).
type MediaOp string

const (
	OpCut   MediaOp = "cut"
	OpMerge MediaOp = "merge"
	OpEmbed MediaOp = "embed"
)

// MediaOpParams bundles the params needed by any of the three media_op
// kinds; unused fields for a given Op are ignored.
type MediaOpParams struct {
	Op          MediaOp
	InputPath   string
	InputPaths  []string // merge
	StartMs     int64    // cut
	EndMs       int64    // cut
	SRTPath     string   // embed (burn)
	Watermark   *media.WatermarkSpec
}

// Record is a task's full state snapshot (the TaskRecord named in §6/§8).
type Record struct {
	mu sync.Mutex

	TaskID      string
	Kind        Kind
	State       State
	Choices     pipeline.Choices
	MediaOp     MediaOpParams
	SourceURL   string
	WorkDir     string
	CreatedAt   time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	Metadata    *fetcher.MediaMetadata
	Result      *pipeline.Result
	MediaResult string // output path for media_op tasks
	Error       *errors.TaskError

	cancel func()
}

// Snapshot is a concurrency-safe copy of a Record's externally visible
// fields, matching get_status's contract (§6): state, steps,
// overall_percent, and logs_tail, plus the result/error fields once
// terminal. OverallPercent/Steps/LogsTail are populated by Registry.Get
// from the Progress Ledger, not by Record.snapshot, since a bare Record
// has no access to it.
type Snapshot struct {
	TaskID     string
	Kind       Kind
	State      State
	Choices    pipeline.Choices
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Metadata   *fetcher.MediaMetadata
	Result     *pipeline.Result
	Error      *errors.TaskError

	OverallPercent float64
	Steps          []progress.StepSnapshot
	LogsTail       []progress.LogLine
}

func (r *Record) snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		TaskID:     r.TaskID,
		Kind:       r.Kind,
		State:      r.State,
		Choices:    r.Choices,
		CreatedAt:  r.CreatedAt,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Metadata:   r.Metadata,
		Result:     r.Result,
		Error:      r.Error,
	}
}

// transition enforces the no-back-edges invariant; callers only ever move
// a record forward through the state machine.
func (r *Record) transition(next State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State.Terminal() {
		return
	}
	r.State = next
	if next == StateRunning {
		r.StartedAt = time.Now()
	}
	if next.Terminal() {
		r.FinishedAt = time.Now()
	}
}
