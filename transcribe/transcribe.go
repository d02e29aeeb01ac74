// Package transcribe implements the Transcription Engine (§4.2): it turns
// an extracted audio track into a lazily-produced stream of timestamped
// subtitle.Segment values plus the detected source language, so the
// Pipeline Coordinator can start dispatching translation batches before
// the whole audio file has been transcribed.
package transcribe

import (
	"context"

	"github.com/subtitler/pipeline/subtitle"
)

// Result is the terminal outcome of a transcription run: the detected (or
// forced) source language. It carries no segments; those reach the caller
// only through the Emitter.
type Result struct {
	Language string
}

// Emitter is handed to a Backend so it can push segments to the
// coordinator as soon as each is ready, instead of returning one slice at
// the end, per §4.2's lazy-emission requirement. Emit must be called with
// segments in increasing Index order; the receiver relies on that order to
// start batching for translation without waiting for end-of-stream.
type Emitter interface {
	Emit(ctx context.Context, seg subtitle.Segment) error
}

// EmitterFunc adapts a plain function to Emitter.
type EmitterFunc func(ctx context.Context, seg subtitle.Segment) error

func (f EmitterFunc) Emit(ctx context.Context, seg subtitle.Segment) error { return f(ctx, seg) }

// Backend is the Transcription Engine contract (§4.2). SourceLanguage is
// a BCP-47 tag, or "" to request auto-detection.
type Backend interface {
	Transcribe(ctx context.Context, audioPath string, sourceLanguage string, emit Emitter) (Result, error)
}
