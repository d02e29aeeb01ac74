// Package config holds the closed set of runtime options the pipeline
// recognizes (§6 of the specification), populated from CLI flags / env
// vars in cmd/subtitler and otherwise left at sane defaults for tests and
// library callers.
package config

import "time"

var Version string

// TranslationParallelism is the worker pool size for translation batches (P).
var TranslationParallelism = 4

// MaxConcurrentProviderRequests bounds outbound provider calls across all
// tasks in the process (P_api). TranslationParallelism is clamped to this
// value by the pipeline coordinator.
var MaxConcurrentProviderRequests = 4

// TranscriptionParallelism bounds concurrent transcription engine
// invocations (P_trans), kept low to avoid GPU/model contention.
var TranscriptionParallelism = 1

// BatchSize is the default number of segments per translation batch (B).
var BatchSize = 20

// MaxTranslationRetries is the number of extra LLM-backend calls issued to
// recover missing indices before a batch is declared incomplete (R).
var MaxTranslationRetries = 2

// TaskTTL is how long a terminal task record (and its artifacts) survives
// before the sweeper removes it.
var TaskTTL = 1 * time.Hour

// TaskSweepInterval is how often the registry sweeper looks for expired tasks.
var TaskSweepInterval = 1 * time.Minute

// MaxCutSeconds bounds the duration of a single cut operation.
var MaxCutSeconds int64 = 14400

// SummaryPromptMaxChars bounds the user-supplied prompt passed to the
// summary hook.
var SummaryPromptMaxChars = 1500

// LogRingSize is the maximum number of log lines kept per task (L).
var LogRingSize = 500

// Stage timeout ceilings (§5).
var (
	FetchTimeout             = 15 * time.Minute
	TranscriptionFloor       = 60 * time.Minute
	TranscriptionMultiplier  = 2.0
	TranslationBatchTimeout  = 90 * time.Second
	TranscodeTimeoutMultiple = 3.0
	CancelGracePeriod        = 2 * time.Second
)

// TaskWorkerPoolSize is the number of workers (W) executing CPU-bound task
// drivers (fetch_and_process, cut, merge, embed).
var TaskWorkerPoolSize = 4

// IOWorkerPoolSize is the pool size for I/O-bound task kinds (fetch_only).
var IOWorkerPoolSize = 8

// WorkDir is the root directory under which per-task artifact directories
// (<workdir>/<task_id>/...) are created.
var WorkDir = "./data"

// TranscodeWatchdogTimeout bounds any single Media Toolkit subprocess
// invocation before it is killed as TRANSCODE_TIMEOUT.
var TranscodeWatchdogTimeout = 30 * time.Minute

// DownloadTokenMaxTTL bounds how long a Download Guard token may be issued
// for (§4.8); callers requesting a longer ttl are clamped to this value.
var DownloadTokenMaxTTL = 24 * time.Hour
