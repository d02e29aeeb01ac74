// Command subtitler is the process entrypoint: it wires the Media
// Fetcher, Media Toolkit, Transcription Engine, Translator, Progress
// Ledger, Pipeline Coordinator, Task Registry, Download Guard, and
// Summary Hook together from flags/env vars, then submits whatever work
// was requested on the command line and waits for it to reach a terminal
// state. There is no HTTP API surface: task submission is a library
// contract (§6), not a wire protocol, so this binary is a direct CLI
// driver rather than a server, grounded on the teacher's flag-parsing
// style in main.go trimmed to this domain's closed config set (§6).
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v3"

	"github.com/subtitler/pipeline/config"
	"github.com/subtitler/pipeline/download"
	"github.com/subtitler/pipeline/fetcher"
	"github.com/subtitler/pipeline/log"
	"github.com/subtitler/pipeline/media"
	"github.com/subtitler/pipeline/pipeline"
	"github.com/subtitler/pipeline/progress"
	"github.com/subtitler/pipeline/summary"
	"github.com/subtitler/pipeline/tasks"
	"github.com/subtitler/pipeline/translate"
	"github.com/subtitler/pipeline/transcribe"
)

type cli struct {
	WorkDir    string
	YtDlpPath  string
	FFmpegPath string
	OpenAIKey  string

	SourceURL    string
	UploadPath   string
	SourceLang   string
	TargetLang   string
	Transcriber  string
	Translator   string
	BurnVideo    bool
	FetchOnly    bool
	Quality      string
	SummaryLang  string
	WantSummary  bool
	PollInterval time.Duration
}

func main() {
	fs := flag.NewFlagSet("subtitler", flag.ExitOnError)
	c := cli{}

	fs.StringVar(&c.WorkDir, "workdir", "./data", "root directory for per-task artifact directories")
	fs.StringVar(&c.YtDlpPath, "yt-dlp-path", "yt-dlp", "path to the yt-dlp-compatible downloader binary")
	fs.StringVar(&c.FFmpegPath, "ffmpeg-path", "ffmpeg", "path to the ffmpeg binary")
	fs.StringVar(&c.OpenAIKey, "openai-api-key", "", "API key for the OpenAI-compatible transcription/translation/summary backends")

	fs.StringVar(&c.SourceURL, "url", "", "remote media URL to fetch and process")
	fs.StringVar(&c.UploadPath, "upload", "", "path to an already-downloaded local media file to process")
	fs.StringVar(&c.SourceLang, "source-lang", "auto", "source language (BCP-47), or \"auto\" to detect")
	fs.StringVar(&c.TargetLang, "target-lang", "", "target language (BCP-47); empty skips translation")
	fs.StringVar(&c.Transcriber, "transcription-model", "base", "transcription model size: tiny|base|small|medium|large")
	fs.StringVar(&c.Translator, "translator-backend", "llm", "translator backend: simple|llm")
	fs.BoolVar(&c.BurnVideo, "burn", false, "produce a final video with subtitles burned in")
	fs.BoolVar(&c.FetchOnly, "fetch-only", false, "only probe and download -url, skip the subtitling pipeline")
	fs.StringVar(&c.Quality, "quality", string(fetcher.BestQuality), "download quality passed to the fetcher")
	fs.BoolVar(&c.WantSummary, "summarize", false, "run the Summary Hook after a successful task and print its markdown")
	fs.StringVar(&c.SummaryLang, "summary-lang", "en", "language the Summary Hook writes its markdown in")
	fs.DurationVar(&c.PollInterval, "poll-interval", 500*time.Millisecond, "how often to poll task status while waiting")

	fs.IntVar(&config.TranslationParallelism, "translation-parallelism", config.TranslationParallelism, "worker pool size for translation batches")
	fs.IntVar(&config.MaxConcurrentProviderRequests, "max-concurrent-provider-requests", config.MaxConcurrentProviderRequests, "global provider-call permits")
	fs.IntVar(&config.TranscriptionParallelism, "transcription-parallelism", config.TranscriptionParallelism, "concurrent transcription engine invocations")
	fs.IntVar(&config.BatchSize, "batch-size", config.BatchSize, "segments per translation batch")
	fs.IntVar(&config.MaxTranslationRetries, "max-translation-retries", config.MaxTranslationRetries, "extra calls issued to recover missing indices")
	fs.Int64Var(&config.MaxCutSeconds, "max-cut-seconds", config.MaxCutSeconds, "upper bound on a single cut operation's duration")
	fs.IntVar(&config.SummaryPromptMaxChars, "summary-prompt-max-chars", config.SummaryPromptMaxChars, "character cap on the Summary Hook's custom prompt")
	fs.DurationVar(&config.TaskTTL, "task-ttl", config.TaskTTL, "how long a terminal task's artifacts survive before sweeping")

	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("SUBTITLER")); err != nil {
		log.LogNoTaskID("failed parsing flags", "error", err)
		os.Exit(1)
	}

	if c.SourceURL == "" && c.UploadPath == "" {
		fmt.Fprintln(os.Stderr, "one of -url or -upload is required")
		os.Exit(2)
	}

	config.WorkDir = c.WorkDir

	fetch := &fetcher.YtDlpFetcher{BinPath: c.YtDlpPath, Timeout: config.FetchTimeout}
	toolkit := media.NewToolkit(config.TranscodeWatchdogTimeout)
	toolkit.FFmpegPath = c.FFmpegPath
	ledger := progress.NewLedger()

	transcriberFactory := func(model string) transcribe.Backend {
		return transcribe.NewOpenAIBackend(c.OpenAIKey)
	}
	translatorFactory := func(kind string) translate.Backend {
		if kind == "simple" {
			return &translate.SimpleBackend{Provider: translate.NewOpenAISimpleProvider(c.OpenAIKey)}
		}
		return translate.NewLLMBackend(translate.NewOpenAILLMProvider(c.OpenAIKey), config.MaxTranslationRetries)
	}

	coordinator := pipeline.NewCoordinator(fetch, toolkit, transcriberFactory, translatorFactory, ledger)
	registry := tasks.NewRegistry(coordinator, fetch, toolkit, ledger, c.WorkDir)

	stop := make(chan struct{})
	go registry.RunSweeper(stop)
	defer close(stop)
	defer registry.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	taskID, err := submit(registry, c)
	if err != nil {
		log.LogError("", "failed submitting task", err)
		os.Exit(1)
	}

	snap := waitTerminal(ctx, registry, taskID, c.PollInterval)
	printResult(snap)

	if snap.State != tasks.StateSucceeded {
		os.Exit(1)
	}

	if c.WantSummary && snap.Result != nil && snap.Result.TranslatedSRTPath != "" {
		hook := summary.NewHook(summary.NewOpenAIProvider(c.OpenAIKey))
		md, err := hook.Summarize(ctx, taskID, snap.Result.TranslatedSRTPath, c.SummaryLang, "")
		if err != nil {
			log.LogError(taskID, "summary hook failed", err)
			os.Exit(1)
		}
		fmt.Println(md)
	}

	if snap.Result != nil {
		guard := newDownloadGuard()
		for name, path := range artifactPaths(snap) {
			token, err := guard.Issue(taskID, name, config.DownloadTokenMaxTTL)
			if err != nil {
				log.LogError(taskID, "failed issuing download token", err)
				continue
			}
			fmt.Printf("%s: %s (token=%s)\n", name, path, token)
		}
	}
}

func submit(registry *tasks.Registry, c cli) (string, error) {
	if c.FetchOnly {
		return registry.SubmitFetchOnly(c.SourceURL, fetcher.Quality(c.Quality))
	}

	choices := pipeline.Choices{
		SourceLang:         c.SourceLang,
		TargetLang:         c.TargetLang,
		CreateBurnedVideo:  c.BurnVideo,
		TranscriptionModel: c.Transcriber,
		TranslatorBackend:  c.Translator,
		TranscriptionOnly:  c.TargetLang == "",
	}
	if c.UploadPath != "" {
		return registry.SubmitUpload(c.UploadPath, choices)
	}
	return registry.SubmitFetch(c.SourceURL, choices)
}

func waitTerminal(ctx context.Context, registry *tasks.Registry, taskID string, interval time.Duration) tasks.Snapshot {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		snap := registry.Get(taskID)
		if snap.State.Terminal() {
			return snap
		}
		select {
		case <-ctx.Done():
			registry.Cancel(taskID)
			return registry.Get(taskID)
		case <-ticker.C:
		}
	}
}

func printResult(snap tasks.Snapshot) {
	log.LogNoTaskID("task finished", "task_id", snap.TaskID, "state", string(snap.State), "overall_percent", snap.OverallPercent)
	for _, s := range snap.Steps {
		log.LogNoTaskID("step status", "task_id", snap.TaskID, "step", s.Name, "fraction", s.Fraction, "complete", s.Complete, "failed", s.Failed)
	}
	for _, line := range snap.LogsTail {
		fmt.Println(progress.FormatLog(line))
	}
	if snap.Error != nil {
		log.LogNoTaskID("task error", "kind", string(snap.Error.Kind), "message", snap.Error.UserFacingMessage)
	}
}

func artifactPaths(snap tasks.Snapshot) map[string]string {
	out := map[string]string{}
	if snap.Result == nil {
		return out
	}
	if snap.Result.OriginalSRTPath != "" {
		out["original.srt"] = snap.Result.OriginalSRTPath
	}
	if snap.Result.TranslatedSRTPath != "" {
		out["translated.srt"] = snap.Result.TranslatedSRTPath
	}
	if snap.Result.FinalVideoPath != "" {
		out["final.mp4"] = snap.Result.FinalVideoPath
	}
	return out
}

func newDownloadGuard() *download.Guard {
	if key := os.Getenv("SUBTITLER_DOWNLOAD_KEY"); key != "" {
		return download.NewGuard([]byte(key))
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		log.LogNoTaskID("failed generating a random download signing key", "error", err)
	}
	return download.NewGuard(key)
}
