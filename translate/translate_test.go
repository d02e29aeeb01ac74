package translate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subtitler/pipeline/subtitle"
)

func TestTranslateSegmentsPreservesTiming(t *testing.T) {
	segs := []subtitle.Segment{
		{Index: 0, StartMs: 0, EndMs: 1000, Text: "hello"},
		{Index: 1, StartMs: 1000, EndMs: 2000, Text: "world"},
	}
	out, err := TranslateSegments(context.Background(), IdentityBackend{}, segs, "en", "en")
	require.NoError(t, err)
	assert.Equal(t, segs, out)
}
