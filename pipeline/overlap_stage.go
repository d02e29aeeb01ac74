package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/subtitler/pipeline/config"
	"github.com/subtitler/pipeline/errors"
	"github.com/subtitler/pipeline/subtitle"
	"github.com/subtitler/pipeline/translate"
	"github.com/subtitler/pipeline/transcribe"
)

// segmentBatch is one unit handed from the transcription producer to the
// translation consumer over the overlap channel.
type segmentBatch struct {
	id       int
	segments []subtitle.Segment
}

// runTranscribeAndTranslate implements §9's "Pipeline overlap" design
// note: a bounded channel of segmentBatch connects the transcription
// backend (producer) to the translation worker pool (consumer), so batch 0
// starts translating while the transcription backend is still emitting
// segments for batch 1 and beyond. TRANSLATION_PARALLELISM=1 still
// overlaps correctly because the channel alone decouples producer and
// consumer — the single translation worker simply drains it one batch at
// a time instead of waiting for transcription to finish first.
func (c *Coordinator) runTranscribeAndTranslate(ctx context.Context, in Input, audioPath string) (original []subtitle.Segment, translated []subtitle.Segment, lang string, err error) {
	c.Ledger.StartStep(in.TaskID, "TRANSCRIBE")
	c.Ledger.StartStep(in.TaskID, "TRANSLATE")

	sameLanguage := in.Choices.TargetLang == "" || in.Choices.TargetLang == in.Choices.SourceLang
	var backend translate.Backend
	if sameLanguage {
		backend = translate.IdentityBackend{}
	} else {
		backend = c.Translator(in.Choices.TranslatorBackend)
	}

	batchCh := make(chan segmentBatch, c.translationParallelism)
	results := make(map[int][]subtitle.Segment)
	var resultsMu sync.Mutex
	var dispatched, completed int64
	var dispatchedTotal int

	var fullSegments []subtitle.Segment
	var detectedLang string

	g, gctx := errgroup.WithContext(ctx)

	// Producer: runs the transcription backend, grouping emitted segments
	// into config.BatchSize batches and pushing each onto batchCh as soon
	// as it fills, rather than waiting for transcription to finish.
	g.Go(func() error {
		defer close(batchCh)

		if err := c.transSem.Acquire(gctx, 1); err != nil {
			return errors.New(errors.Cancelled, "cancelled waiting for a transcription slot", err)
		}
		defer c.transSem.Release(1)

		duration, probeErr := c.Toolkit.ProbeDuration(gctx, audioPath)
		timeout := config.TranscriptionFloor
		if probeErr == nil {
			scaled := time.Duration(float64(duration) * config.TranscriptionMultiplier)
			if scaled > timeout {
				timeout = scaled
			}
		}
		transcribeCtx, cancel := context.WithTimeout(gctx, timeout)
		defer cancel()

		tBackend := c.Transcriber(in.Choices.TranscriptionModel)

		var mu sync.Mutex
		var currentBatch []subtitle.Segment
		batchID := 0

		flush := func() {
			if len(currentBatch) == 0 {
				return
			}
			batch := make([]subtitle.Segment, len(currentBatch))
			copy(batch, currentBatch)
			currentBatch = currentBatch[:0]
			atomic.AddInt64(&dispatched, 1)
			batchCh <- segmentBatch{id: batchID, segments: batch}
			batchID++
		}

		emit := transcribe.EmitterFunc(func(ctx context.Context, seg subtitle.Segment) error {
			mu.Lock()
			fullSegments = append(fullSegments, seg)
			currentBatch = append(currentBatch, seg)
			shouldFlush := len(currentBatch) >= config.BatchSize
			if duration > 0 {
				c.Ledger.Update(in.TaskID, "TRANSCRIBE", float64(seg.EndMs)/float64(duration.Milliseconds()))
			}
			if shouldFlush {
				flush()
			}
			mu.Unlock()
			return ctx.Err()
		})

		res, terr := tBackend.Transcribe(transcribeCtx, audioPath, sourceLang(in.Choices.SourceLang), emit)
		if terr != nil {
			c.Ledger.FailStep(in.TaskID, "TRANSCRIBE")
			if transcribeCtx.Err() == context.DeadlineExceeded && gctx.Err() == nil {
				return errors.New(errors.StageTimeout, "transcription exceeded its time limit", terr)
			}
			return terr
		}

		mu.Lock()
		flush()
		dispatchedTotal = batchID
		mu.Unlock()

		if err := subtitle.ValidateOrdering(fullSegments); err != nil {
			c.Ledger.FailStep(in.TaskID, "TRANSCRIBE")
			return errors.Newf(errors.Internal, err, "transcription produced invalid segment ordering")
		}
		detectedLang = res.Language
		c.Ledger.CompleteStep(in.TaskID, "TRANSCRIBE")
		return nil
	})

	// Consumer: drains batchCh, translating each batch on a worker pool
	// bounded by translationParallelism and the process-wide apiSem.
	statefulBackend, _ := backend.(translate.StatefulBatchTranslator)
	var inflight int64

	g.Go(func() error {
		tg, tgctx := errgroup.WithContext(gctx)
		tg.SetLimit(c.translationParallelism)

		for batch := range batchCh {
			batch := batch
			tg.Go(func() error {
				if err := c.apiSem.Acquire(tgctx, 1); err != nil {
					return errors.New(errors.Cancelled, "cancelled waiting for a provider slot", err)
				}
				defer c.apiSem.Release(1)

				batchCtx, cancel := context.WithTimeout(tgctx, config.TranslationBatchTimeout)
				defer cancel()

				texts := make([]string, len(batch.segments))
				for j, s := range batch.segments {
					texts[j] = s.Text
				}

				atomic.AddInt64(&inflight, 1)
				defer atomic.AddInt64(&inflight, -1)

				start := time.Now()
				var out []string
				var stats translate.BatchStats
				var err error
				if statefulBackend != nil {
					out, stats, err = statefulBackend.TranslateBatchStats(batchCtx, texts, in.Choices.SourceLang, in.Choices.TargetLang)
				} else {
					out, err = backend.TranslateBatch(batchCtx, texts, in.Choices.SourceLang, in.Choices.TargetLang)
				}
				durationMs := time.Since(start).Milliseconds()
				if err != nil {
					c.Ledger.FailStep(in.TaskID, "TRANSLATE")
					if batchCtx.Err() == context.DeadlineExceeded && tgctx.Err() == nil {
						return errors.Newf(errors.StageTimeout, err, "translation batch %d exceeded its time limit", batch.id)
					}
					return err
				}

				translatedSegs := make([]subtitle.Segment, len(batch.segments))
				for j, s := range batch.segments {
					translatedSegs[j] = subtitle.Segment{Index: s.Index, StartMs: s.StartMs, EndMs: s.EndMs, Text: out[j]}
				}

				resultsMu.Lock()
				results[batch.id] = translatedSegs
				resultsMu.Unlock()

				done := atomic.AddInt64(&completed, 1)
				total := atomic.LoadInt64(&dispatched)
				if total > 0 {
					c.Ledger.Update(in.TaskID, "TRANSLATE", float64(done)/float64(total))
				}
				c.Ledger.Log(in.TaskID, "translation batch complete", map[string]interface{}{
					"batch_id":    batch.id,
					"inflight":    atomic.LoadInt64(&inflight),
					"duration_ms": durationMs,
					"retry_count": stats.RetryCount,
				})
				return nil
			})
		}
		return tg.Wait()
	})

	if err := g.Wait(); err != nil {
		return nil, nil, "", err
	}

	out := make([]subtitle.Segment, 0, len(fullSegments))
	for i := 0; i < dispatchedTotal; i++ {
		out = append(out, results[i]...)
	}
	c.Ledger.CompleteStep(in.TaskID, "TRANSLATE")

	return fullSegments, out, detectedLang, nil
}
