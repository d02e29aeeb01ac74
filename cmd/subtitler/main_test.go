package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/subtitler/pipeline/errors"
	"github.com/subtitler/pipeline/fetcher"
	"github.com/subtitler/pipeline/pipeline"
	"github.com/subtitler/pipeline/tasks"
)

func TestArtifactPathsOmitsEmptyFields(t *testing.T) {
	snap := tasks.Snapshot{
		Result: &pipeline.Result{
			OriginalSRTPath:   "/data/t/original.srt",
			TranslatedSRTPath: "/data/t/translated.srt",
		},
	}
	paths := artifactPaths(snap)
	assert.Equal(t, "/data/t/original.srt", paths["original.srt"])
	assert.Equal(t, "/data/t/translated.srt", paths["translated.srt"])
	_, hasVideo := paths["final.mp4"]
	assert.False(t, hasVideo)
}

func TestArtifactPathsHandlesNilResult(t *testing.T) {
	paths := artifactPaths(tasks.Snapshot{})
	assert.Empty(t, paths)
}

func TestChoicesTranscriptionOnlyWhenNoTargetLang(t *testing.T) {
	c := cli{SourceLang: "en", TargetLang: "", Transcriber: "base", Translator: "llm"}
	choices := pipeline.Choices{
		SourceLang:         c.SourceLang,
		TargetLang:         c.TargetLang,
		TranscriptionModel: c.Transcriber,
		TranslatorBackend:  c.Translator,
		TranscriptionOnly:  c.TargetLang == "",
	}
	assert.True(t, choices.TranscriptionOnly)
}

func TestPrintResultDoesNotPanicOnTerminalStates(t *testing.T) {
	assert.NotPanics(t, func() {
		printResult(tasks.Snapshot{TaskID: "t1", State: tasks.StateSucceeded})
		printResult(tasks.Snapshot{TaskID: "t2", State: tasks.StateFailed, Error: &errors.TaskError{Kind: errors.Internal, UserFacingMessage: "boom"}})
	})
}

func TestBestQualityRoundTripsThroughCLIString(t *testing.T) {
	c := cli{Quality: string(fetcher.BestQuality)}
	assert.Equal(t, fetcher.BestQuality, fetcher.Quality(c.Quality))
}
