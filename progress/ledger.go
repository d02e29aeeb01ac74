// Package progress implements the Progress Ledger (§4.6): per-task
// weighted step progress plus a bounded ring-buffer log, built on the same
// clock-driven ticking idiom the teacher's ProgressReporter uses, adapted
// from a single scaled value to the specification's multi-step weighted
// model.
package progress

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/subtitler/pipeline/config"
)

// Clock is package-level so tests can substitute a mock clock, matching
// the teacher's var Clock = clock.New() idiom.
var Clock = clock.New()

// StepWeight declares one pipeline step's share of overall progress and
// whether it reports a determinate fraction or must be estimated from
// elapsed time (§4.1's "a step may declare itself indeterminate").
type StepWeight struct {
	Name        string
	Weight      float64
	Determinate bool
}

// DefaultStepWeights are the weights named in §4.1, before normalization
// for any steps the task disables (e.g. no BURN/WATERMARK).
var DefaultStepWeights = []StepWeight{
	{Name: "FETCH", Weight: 0.15, Determinate: true},
	{Name: "EXTRACT_AUDIO", Weight: 0.10, Determinate: true},
	{Name: "TRANSCRIBE", Weight: 0.40, Determinate: false},
	{Name: "TRANSLATE", Weight: 0.15, Determinate: true},
	{Name: "ASSEMBLE", Weight: 0.10, Determinate: true},
	{Name: "BURN", Weight: 0.05, Determinate: true},
	{Name: "WATERMARK", Weight: 0.05, Determinate: true},
}

// Normalize rescales weights to sum to 1 after a task has filtered out the
// steps it does not run.
func Normalize(steps []StepWeight) []StepWeight {
	var total float64
	for _, s := range steps {
		total += s.Weight
	}
	if total == 0 {
		return steps
	}
	out := make([]StepWeight, len(steps))
	for i, s := range steps {
		s.Weight = s.Weight / total
		out[i] = s
	}
	return out
}

// LogLine is one ring-buffer entry.
type LogLine struct {
	Time    time.Time
	Message string
	Fields  map[string]interface{}
}

type stepState struct {
	weight      float64
	determinate bool
	fraction    float64 // 0..1, only meaningful if determinate or completed
	startedAt   time.Time
	completed   bool
	failed      bool
}

// taskLedger is the per-task state a Ledger tracks.
type taskLedger struct {
	mu    sync.Mutex
	steps map[string]*stepState
	order []string
	logs  []LogLine
}

// Ledger is the Progress Ledger: a concurrency-safe registry of per-task
// step progress and bounded logs.
type Ledger struct {
	mu    sync.Mutex
	tasks map[string]*taskLedger
}

func NewLedger() *Ledger {
	return &Ledger{tasks: make(map[string]*taskLedger)}
}

// Begin registers a task with its (already-normalized) step weights.
func (l *Ledger) Begin(taskID string, steps []StepWeight) {
	tl := &taskLedger{steps: make(map[string]*stepState, len(steps))}
	for _, s := range steps {
		tl.order = append(tl.order, s.Name)
		tl.steps[s.Name] = &stepState{weight: s.Weight, determinate: s.Determinate}
	}
	l.mu.Lock()
	l.tasks[taskID] = tl
	l.mu.Unlock()
}

// End removes a task's ledger state, called once its record is swept.
func (l *Ledger) End(taskID string) {
	l.mu.Lock()
	delete(l.tasks, taskID)
	l.mu.Unlock()
}

func (l *Ledger) get(taskID string) *taskLedger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks[taskID]
}

// StartStep marks a step as started, so indeterminate pseudo-progress can
// be measured from this instant.
func (l *Ledger) StartStep(taskID, step string) {
	tl := l.get(taskID)
	if tl == nil {
		return
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if s, ok := tl.steps[step]; ok {
		s.startedAt = Clock.Now()
	}
}

// Update reports a determinate step's fractional completion in [0, 1].
// Regression (a fraction lower than the last reported value) is ignored
// to preserve the monotonic-progress invariant.
func (l *Ledger) Update(taskID, step string, fraction float64) {
	tl := l.get(taskID)
	if tl == nil {
		return
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	s, ok := tl.steps[step]
	if !ok {
		return
	}
	fraction = math.Max(0, math.Min(1, fraction))
	if fraction > s.fraction {
		s.fraction = fraction
	}
}

// CompleteStep marks a step 100% done, including indeterminate steps
// whose pseudo-progress is capped below 1 until this is called.
func (l *Ledger) CompleteStep(taskID, step string) {
	tl := l.get(taskID)
	if tl == nil {
		return
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if s, ok := tl.steps[step]; ok {
		s.completed = true
		s.fraction = 1
	}
}

// FailStep marks a step as errored (§3/§4.6's "error" step status), for a
// stage that returned an error instead of completing. A failed step's
// fraction is left as last reported rather than forced to 0 or 1.
func (l *Ledger) FailStep(taskID, step string) {
	tl := l.get(taskID)
	if tl == nil {
		return
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if s, ok := tl.steps[step]; ok {
		s.failed = true
	}
}

// Log appends a bounded log line for taskID, evicting the oldest entry
// once config.LogRingSize is exceeded.
func (l *Ledger) Log(taskID, message string, fields map[string]interface{}) {
	tl := l.get(taskID)
	if tl == nil {
		return
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.logs = append(tl.logs, LogLine{Time: Clock.Now(), Message: message, Fields: fields})
	limit := config.LogRingSize
	if limit > 0 && len(tl.logs) > limit {
		tl.logs = tl.logs[len(tl.logs)-limit:]
	}
}

// StepSnapshot is one step's progress as of Snapshot.
type StepSnapshot struct {
	Name     string
	Fraction float64
	Complete bool
	Failed   bool
}

// Snapshot is the point-in-time read of a task's progress.
type Snapshot struct {
	OverallPercent float64
	Steps          []StepSnapshot
	Logs           []LogLine
}

// indeterminatePseudoCeiling caps the pseudo-progress curve for
// indeterminate steps: fraction approaches 0.95 asymptotically, never
// reporting completion on its own (§4.1).
const indeterminatePseudoCeiling = 0.95

func pseudoProgress(elapsed time.Duration) float64 {
	// Saturating curve: halves the remaining gap to the ceiling every 30s.
	halflife := 30 * time.Second
	steps := elapsed.Seconds() / halflife.Seconds()
	return indeterminatePseudoCeiling * (1 - math.Pow(0.5, steps))
}

// Snapshot computes the weighted overall percent and per-step state.
func (l *Ledger) Snapshot(taskID string) Snapshot {
	tl := l.get(taskID)
	if tl == nil {
		return Snapshot{}
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()

	var overall float64
	steps := make([]StepSnapshot, 0, len(tl.order))
	now := Clock.Now()
	for _, name := range tl.order {
		s := tl.steps[name]
		fraction := s.fraction
		if !s.completed && !s.determinate && !s.startedAt.IsZero() {
			fraction = math.Max(fraction, pseudoProgress(now.Sub(s.startedAt)))
		}
		overall += s.weight * fraction
		steps = append(steps, StepSnapshot{Name: name, Fraction: fraction, Complete: s.completed, Failed: s.failed})
	}
	overall = math.Round(overall*1000) / 1000

	logs := make([]LogLine, len(tl.logs))
	copy(logs, tl.logs)
	return Snapshot{OverallPercent: overall, Steps: steps, Logs: logs}
}

// FormatLog renders a log line the way callers typically want it printed,
// a convenience used by CLI output.
func FormatLog(line LogLine) string {
	if len(line.Fields) == 0 {
		return fmt.Sprintf("%s %s", line.Time.Format(time.RFC3339), line.Message)
	}
	return fmt.Sprintf("%s %s %v", line.Time.Format(time.RFC3339), line.Message, line.Fields)
}
