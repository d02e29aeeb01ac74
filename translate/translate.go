// Package translate implements the Translator (§4.3): a capability set
// dispatched once at task creation, over two backends — a "simple"
// per-string backend and a batched LLM backend with sentinel-token
// truncation detection and bounded retry. Segment ordering and count are
// preserved by both.
package translate

import (
	"context"

	"github.com/subtitler/pipeline/subtitle"
)

// Backend is the capability set named in §9's "Translator polymorphism"
// redesign: translate_batch and translate_one, dispatched once per task
// rather than by runtime string lookup.
type Backend interface {
	// TranslateBatch translates an ordered batch of texts from source to
	// target, returning translations in the same order and count, or a
	// *errors.TypedError of kind TranslationIncomplete carrying the
	// missing indices if recovery is exhausted.
	TranslateBatch(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error)

	// TranslateOne translates a single string; used by backends that have
	// no meaningful batch API.
	TranslateOne(ctx context.Context, text string, sourceLang, targetLang string) (string, error)
}

// BatchStats carries the per-batch retry bookkeeping the Pipeline
// Coordinator logs alongside each completed batch (§4.3's observable
// side effect).
type BatchStats struct {
	RetryCount int
}

// StatefulBatchTranslator is an optional capability: backends that track
// retries internally (the LLM backend's sentinel recovery) can report them
// via TranslateBatchStats instead of plain TranslateBatch. Backends that
// have no retry concept of their own (Identity, Simple) don't implement
// it, and callers fall back to TranslateBatch with RetryCount 0.
type StatefulBatchTranslator interface {
	TranslateBatchStats(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, BatchStats, error)
}

// IdentityBackend returns inputs unchanged, used when source_lang ==
// target_lang (§4.3: "TR returns inputs unchanged in O(n)").
type IdentityBackend struct{}

func (IdentityBackend) TranslateBatch(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	out := make([]string, len(texts))
	copy(out, texts)
	return out, nil
}

func (IdentityBackend) TranslateOne(ctx context.Context, text string, sourceLang, targetLang string) (string, error) {
	return text, nil
}

// TranslateSegments translates every segment's Text field with a single
// backend.TranslateBatch call, preserving Index/StartMs/EndMs.
func TranslateSegments(ctx context.Context, backend Backend, segments []subtitle.Segment, sourceLang, targetLang string) ([]subtitle.Segment, error) {
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	translated, err := backend.TranslateBatch(ctx, texts, sourceLang, targetLang)
	if err != nil {
		return nil, err
	}
	out := make([]subtitle.Segment, len(segments))
	for i, s := range segments {
		out[i] = subtitle.Segment{Index: s.Index, StartMs: s.StartMs, EndMs: s.EndMs, Text: translated[i]}
	}
	return out, nil
}
