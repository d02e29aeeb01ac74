package transcribe

import (
	"context"
	"time"

	"github.com/subtitler/pipeline/subtitle"
)

// MockBackend emits a fixed slice of segments, used by pipeline tests that
// need deterministic transcription without shelling out to a real model.
// EmitDelay, if set, is slept between each emitted segment to simulate a
// real model's cadence for overlap tests.
type MockBackend struct {
	Segments  []subtitle.Segment
	Language  string
	FailErr   error
	EmitDelay time.Duration
}

func (b *MockBackend) Transcribe(ctx context.Context, audioPath string, sourceLanguage string, emit Emitter) (Result, error) {
	for i, seg := range b.Segments {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if i > 0 && b.EmitDelay > 0 {
			time.Sleep(b.EmitDelay)
		}
		if err := emit.Emit(ctx, seg); err != nil {
			return Result{}, err
		}
	}
	if b.FailErr != nil {
		return Result{}, b.FailErr
	}
	lang := b.Language
	if lang == "" {
		lang = sourceLanguage
	}
	return Result{Language: lang}, nil
}
