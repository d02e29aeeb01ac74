package translate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subtitler/pipeline/errors"
)

// scriptedProvider replays a scripted response per call index, used to
// exercise the sentinel retry protocol deterministically.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []func(prompt string) string
	calls     int
}

func (p *scriptedProvider) Complete(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls >= len(p.responses) {
		return "", fmt.Errorf("no more scripted responses")
	}
	resp := p.responses[p.calls](prompt)
	p.calls++
	return resp, nil
}

func withSentinel(body string) string {
	return body + "\n" + sentinel + "\n"
}

func TestTranslateBatchSucceedsFirstTry(t *testing.T) {
	provider := &scriptedProvider{responses: []func(string) string{
		func(prompt string) string {
			return withSentinel("0: hola\n1: mundo")
		},
	}}
	backend := NewLLMBackend(provider, 2)
	out, err := backend.TranslateBatch(context.Background(), []string{"hello", "world"}, "en", "es")
	require.NoError(t, err)
	assert.Equal(t, []string{"hola", "mundo"}, out)
	assert.Equal(t, 1, provider.calls)
}

func TestTranslateBatchRecoversMissingIndicesOnRetry(t *testing.T) {
	provider := &scriptedProvider{responses: []func(string) string{
		func(prompt string) string {
			return withSentinel("0: zero\n1: one\n2: two\n3: three\n4: four\n5: five\n6: six\n7: seven\n8: eight\n9: nine")
		},
		func(prompt string) string {
			require.True(t, strings.Contains(prompt, "10:"))
			var sb strings.Builder
			for i := 10; i < 20; i++ {
				fmt.Fprintf(&sb, "%d: t%d\n", i, i)
			}
			return withSentinel(sb.String())
		},
	}}
	backend := NewLLMBackend(provider, 2)

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = fmt.Sprintf("s%d", i)
	}
	out, err := backend.TranslateBatch(context.Background(), texts, "en", "es")
	require.NoError(t, err)
	require.Len(t, out, 20)
	assert.Equal(t, "zero", out[0])
	assert.Equal(t, "t19", out[19])
	assert.Equal(t, 2, provider.calls)
}

func TestTranslateBatchFailsAfterRetriesExhausted(t *testing.T) {
	always := func(prompt string) string {
		return withSentinel("0: a\n1: b\n2: c\n3: d\n4: e\n5: f\n6: g\n8: i\n9: j")
	}
	provider := &scriptedProvider{responses: []func(string) string{always, always, always}}
	backend := NewLLMBackend(provider, 2)

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("s%d", i)
	}
	_, err := backend.TranslateBatch(context.Background(), texts, "en", "es")
	require.Error(t, err)
	te, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.TranslationIncomplete, te.Kind)
	assert.Equal(t, []int{7}, te.Missing)
	assert.Equal(t, 3, provider.calls)
}

func TestTranslateBatchTreatsMissingSentinelAsTruncation(t *testing.T) {
	provider := &scriptedProvider{responses: []func(string) string{
		func(prompt string) string { return "0: a\n1: b" },
		func(prompt string) string { return withSentinel("0: a\n1: b") },
	}}
	backend := NewLLMBackend(provider, 2)
	out, err := backend.TranslateBatch(context.Background(), []string{"x", "y"}, "en", "es")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out)
	assert.Equal(t, 2, provider.calls)
}

func TestTranslateBatchStatsReportsRetryCount(t *testing.T) {
	provider := &scriptedProvider{responses: []func(string) string{
		func(prompt string) string { return "0: a\n1: b" },
		func(prompt string) string { return withSentinel("0: a\n1: b") },
	}}
	backend := NewLLMBackend(provider, 2)
	out, stats, err := backend.TranslateBatchStats(context.Background(), []string{"x", "y"}, "en", "es")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out)
	assert.Equal(t, 1, stats.RetryCount)
}

func TestIdentityBackendReturnsUnchanged(t *testing.T) {
	var b IdentityBackend
	out, err := b.TranslateBatch(context.Background(), []string{"a", "b"}, "en", "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out)
}
