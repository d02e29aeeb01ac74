// Package pipeline implements the Pipeline Coordinator (§4.1): the
// pipelined, fault-tolerant job runtime that drives a task's stage graph
// (FETCH → EXTRACT_AUDIO → TRANSCRIBE → TRANSLATE* → ASSEMBLE_SRT →
// optional BURN/WATERMARK), overlapping transcription and translation
// through a bounded channel, bounding concurrency on both external
// providers and local transcoding, and reporting weighted progress
// throughout. It is grounded on the teacher's Coordinator/JobInfo
// "recovered handler" idiom, generalized from a single ffmpeg-vs-external
// pipeline fork to the new stage graph.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/subtitler/pipeline/config"
	"github.com/subtitler/pipeline/errors"
	"github.com/subtitler/pipeline/fetcher"
	"github.com/subtitler/pipeline/log"
	"github.com/subtitler/pipeline/media"
	"github.com/subtitler/pipeline/progress"
	"github.com/subtitler/pipeline/subtitle"
	"github.com/subtitler/pipeline/translate"
	"github.com/subtitler/pipeline/transcribe"
)

// Choices is the closed set of per-task options named in §3.
type Choices struct {
	SourceLang          string // BCP47, or "auto"
	TargetLang          string
	CreateBurnedVideo   bool
	TranscriptionModel  string // tiny|base|small|medium|large
	TranslatorBackend   string // simple|llm
	Watermark           *media.WatermarkSpec
	TranscriptionOnly   bool
}

// Input is everything the coordinator needs to run one task.
type Input struct {
	TaskID       string
	SourceURL    string // set for fetch_and_process/fetch_only
	UploadedPath string // set when the caller already has a local file
	Quality      fetcher.Quality
	WorkDir      string // <workdir>/<task_id>
	Choices      Choices
}

// Result is the artifact set produced by a successful run (§8's
// persisted state layout).
type Result struct {
	DetectedLanguage  string
	Metadata          *fetcher.MediaMetadata
	OriginalSRTPath   string
	TranslatedSRTPath string
	FinalVideoPath    string
}

// TranscriberFactory builds a transcription Backend for a given model
// choice; kept abstract so tests can inject transcribe.MockBackend.
type TranscriberFactory func(model string) transcribe.Backend

// TranslatorFactory builds a Translator Backend for a given backend
// choice ("simple" or "llm"), dispatched once per task per §9's
// polymorphism redesign.
type TranslatorFactory func(kind string) translate.Backend

// Coordinator is the Pipeline Coordinator. A single instance is shared
// across all tasks in the process so its semaphores enforce the
// process-wide concurrency bounds named in §4.1.
type Coordinator struct {
	Fetcher     fetcher.Fetcher
	Toolkit     *media.Toolkit
	Transcriber TranscriberFactory
	Translator  TranslatorFactory
	Ledger      *progress.Ledger

	// apiSem bounds outbound provider calls across all tasks (P_api).
	apiSem *semaphore.Weighted
	// transSem bounds concurrent transcription engine invocations (P_trans).
	transSem *semaphore.Weighted

	translationParallelism int
}

func NewCoordinator(fetch fetcher.Fetcher, toolkit *media.Toolkit, transcriber TranscriberFactory, translator TranslatorFactory, ledger *progress.Ledger) *Coordinator {
	p := min(config.TranslationParallelism, config.MaxConcurrentProviderRequests)
	if p < 1 {
		p = 1
	}
	return &Coordinator{
		Fetcher:                 fetch,
		Toolkit:                 toolkit,
		Transcriber:             transcriber,
		Translator:              translator,
		Ledger:                  ledger,
		apiSem:                  semaphore.NewWeighted(int64(config.MaxConcurrentProviderRequests)),
		transSem:                semaphore.NewWeighted(int64(config.TranscriptionParallelism)),
		translationParallelism:  p,
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// stepPlan returns the normalized step weights this run will execute,
// filtering out BURN/WATERMARK when disabled (§4.1).
func (c *Coordinator) stepPlan(choices Choices) []progress.StepWeight {
	var steps []progress.StepWeight
	for _, s := range progress.DefaultStepWeights {
		switch s.Name {
		case "TRANSLATE", "ASSEMBLE":
			if choices.TranscriptionOnly {
				continue
			}
		case "BURN":
			if choices.TranscriptionOnly || !choices.CreateBurnedVideo {
				continue
			}
		case "WATERMARK":
			if choices.TranscriptionOnly || !choices.CreateBurnedVideo || choices.Watermark == nil {
				continue
			}
		}
		steps = append(steps, s)
	}
	return progress.Normalize(steps)
}

// Run drives the full stage graph for one task. It is safe to call from a
// task worker goroutine; panics inside any stage are recovered and turned
// into an Internal TypedError rather than crashing the worker pool.
func (c *Coordinator) Run(ctx context.Context, in Input) (out Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.LogNoTaskID("panic in pipeline run, recovering", "task_id", in.TaskID, "trace", string(debug.Stack()))
			err = errors.Newf(errors.Internal, fmt.Errorf("panic: %v", r), "pipeline run panicked")
		}
	}()

	c.Ledger.Begin(in.TaskID, c.stepPlan(in.Choices))

	sourcePath, meta, err := c.runFetch(ctx, in)
	if err != nil {
		return out, err
	}
	out.Metadata = meta

	audioPath, err := c.runExtractAudio(ctx, in, sourcePath)
	if err != nil {
		return out, err
	}

	if in.Choices.TranscriptionOnly {
		segments, lang, err := c.runTranscribe(ctx, in, audioPath)
		if err != nil {
			return out, err
		}
		out.DetectedLanguage = lang

		originalPath := filepath.Join(in.WorkDir, "original.srt")
		if err := writeSRT(originalPath, segments); err != nil {
			c.Ledger.FailStep(in.TaskID, "TRANSCRIBE")
			return out, errors.Newf(errors.Internal, err, "failed writing original.srt")
		}
		out.OriginalSRTPath = originalPath
		c.Ledger.CompleteStep(in.TaskID, "TRANSCRIBE")
		return out, nil
	}

	segments, translated, lang, err := c.runTranscribeAndTranslate(ctx, in, audioPath)
	if err != nil {
		return out, err
	}
	out.DetectedLanguage = lang

	originalPath := filepath.Join(in.WorkDir, "original.srt")
	if err := writeSRT(originalPath, segments); err != nil {
		c.Ledger.FailStep(in.TaskID, "ASSEMBLE")
		return out, errors.Newf(errors.Internal, err, "failed writing original.srt")
	}
	out.OriginalSRTPath = originalPath

	translatedPath := filepath.Join(in.WorkDir, "translated.srt")
	if err := writeSRT(translatedPath, translated); err != nil {
		c.Ledger.FailStep(in.TaskID, "ASSEMBLE")
		return out, errors.Newf(errors.Internal, err, "failed writing translated.srt")
	}
	out.TranslatedSRTPath = translatedPath
	c.Ledger.CompleteStep(in.TaskID, "ASSEMBLE")

	if !in.Choices.CreateBurnedVideo {
		return out, nil
	}

	videoPath, err := c.runBurnAndWatermark(ctx, in, sourcePath, translatedPath)
	if err != nil {
		return out, err
	}
	out.FinalVideoPath = videoPath

	return out, nil
}

func writeSRT(path string, segments []subtitle.Segment) error {
	return os.WriteFile(path, []byte(subtitle.Emit(segments)), 0o644)
}

// runFetch resolves the task's source into a local file path (§4.4),
// either by downloading a URL or using an already-uploaded path.
func (c *Coordinator) runFetch(ctx context.Context, in Input) (string, *fetcher.MediaMetadata, error) {
	c.Ledger.StartStep(in.TaskID, "FETCH")
	if in.UploadedPath != "" {
		c.Ledger.CompleteStep(in.TaskID, "FETCH")
		return in.UploadedPath, nil, nil
	}
	if err := ctx.Err(); err != nil {
		return "", nil, cancelledOrTimeout(err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, config.FetchTimeout)
	defer cancel()

	path, meta, err := c.Fetcher.Fetch(fetchCtx, in.SourceURL, in.Quality, in.WorkDir)
	if err != nil {
		c.Ledger.FailStep(in.TaskID, "FETCH")
		if fetchCtx.Err() != nil && ctx.Err() == nil {
			return "", nil, errors.New(errors.StageTimeout, "fetch stage exceeded its time limit", err)
		}
		return "", nil, err
	}
	c.Ledger.CompleteStep(in.TaskID, "FETCH")
	return path, &meta, nil
}

func (c *Coordinator) runExtractAudio(ctx context.Context, in Input, sourcePath string) (string, error) {
	c.Ledger.StartStep(in.TaskID, "EXTRACT_AUDIO")
	if err := ctx.Err(); err != nil {
		return "", cancelledOrTimeout(err)
	}
	audioPath, err := c.Toolkit.ExtractAudio(ctx, in.TaskID, sourcePath, in.WorkDir)
	if err != nil {
		c.Ledger.FailStep(in.TaskID, "EXTRACT_AUDIO")
		return "", err
	}
	c.Ledger.CompleteStep(in.TaskID, "EXTRACT_AUDIO")
	return audioPath, nil
}

// runTranscribe gates the transcription backend behind P_trans and
// tracks its lazily-emitted segments into the weighted progress ledger
// using audio duration as the determinate denominator when known.
func (c *Coordinator) runTranscribe(ctx context.Context, in Input, audioPath string) ([]subtitle.Segment, string, error) {
	c.Ledger.StartStep(in.TaskID, "TRANSCRIBE")

	if err := c.transSem.Acquire(ctx, 1); err != nil {
		return nil, "", errors.New(errors.Cancelled, "cancelled waiting for transcription slot", err)
	}
	defer c.transSem.Release(1)

	duration, probeErr := c.Toolkit.ProbeDuration(ctx, audioPath)
	timeout := config.TranscriptionFloor
	if probeErr == nil {
		scaled := time.Duration(float64(duration) * config.TranscriptionMultiplier)
		if scaled > timeout {
			timeout = scaled
		}
	}
	transcribeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	backend := c.Transcriber(in.Choices.TranscriptionModel)

	var mu sync.Mutex
	var segments []subtitle.Segment
	emit := transcribe.EmitterFunc(func(ctx context.Context, seg subtitle.Segment) error {
		mu.Lock()
		segments = append(segments, seg)
		n := len(segments)
		mu.Unlock()
		if duration > 0 {
			c.Ledger.Update(in.TaskID, "TRANSCRIBE", float64(seg.EndMs)/float64(duration.Milliseconds()))
		} else {
			_ = n
		}
		return ctx.Err()
	})

	res, err := backend.Transcribe(transcribeCtx, audioPath, sourceLang(in.Choices.SourceLang), emit)
	if err != nil {
		c.Ledger.FailStep(in.TaskID, "TRANSCRIBE")
		if transcribeCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, "", errors.New(errors.StageTimeout, "transcription exceeded its time limit", err)
		}
		return nil, "", err
	}
	if err := subtitle.ValidateOrdering(segments); err != nil {
		c.Ledger.FailStep(in.TaskID, "TRANSCRIBE")
		return nil, "", errors.Newf(errors.Internal, err, "transcription produced invalid segment ordering")
	}
	c.Ledger.CompleteStep(in.TaskID, "TRANSCRIBE")
	return segments, res.Language, nil
}

func sourceLang(choice string) string {
	if choice == "auto" {
		return ""
	}
	return choice
}

func cancelledOrTimeout(err error) error {
	if err == context.Canceled {
		return errors.New(errors.Cancelled, "task cancelled", err)
	}
	return errors.New(errors.StageTimeout, "stage exceeded its time limit", err)
}
