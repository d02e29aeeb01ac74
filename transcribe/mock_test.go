package transcribe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subtitler/pipeline/subtitle"
)

func TestMockBackendEmitsInOrder(t *testing.T) {
	segs := []subtitle.Segment{
		{Index: 0, StartMs: 0, EndMs: 1000, Text: "one"},
		{Index: 1, StartMs: 1000, EndMs: 2000, Text: "two"},
	}
	b := &MockBackend{Segments: segs, Language: "en"}

	var got []subtitle.Segment
	res, err := b.Transcribe(context.Background(), "audio.wav", "", EmitterFunc(func(ctx context.Context, seg subtitle.Segment) error {
		got = append(got, seg)
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, "en", res.Language)
	assert.Equal(t, segs, got)
}

func TestMockBackendStopsOnEmitError(t *testing.T) {
	segs := []subtitle.Segment{
		{Index: 0, StartMs: 0, EndMs: 1000, Text: "one"},
		{Index: 1, StartMs: 1000, EndMs: 2000, Text: "two"},
	}
	b := &MockBackend{Segments: segs}

	sentinel := errors.New("sink closed")
	count := 0
	_, err := b.Transcribe(context.Background(), "audio.wav", "en", EmitterFunc(func(ctx context.Context, seg subtitle.Segment) error {
		count++
		return sentinel
	}))
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, count)
}

func TestMockBackendRespectsContextCancellation(t *testing.T) {
	segs := []subtitle.Segment{
		{Index: 0, StartMs: 0, EndMs: 1000, Text: "one"},
		{Index: 1, StartMs: 1000, EndMs: 2000, Text: "two"},
	}
	b := &MockBackend{Segments: segs}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Transcribe(ctx, "audio.wav", "en", EmitterFunc(func(ctx context.Context, seg subtitle.Segment) error {
		return nil
	}))
	assert.Error(t, err)
}
