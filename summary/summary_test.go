package summary

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subtitler/pipeline/config"
	"github.com/subtitler/pipeline/errors"
)

const sampleSRT = `1
00:00:00,000 --> 00:00:02,000
Hello world

2
00:00:02,000 --> 00:00:04,000
Goodbye world

`

type stubProvider struct {
	response string
	err      error
	lastCall string
}

func (p *stubProvider) Complete(ctx context.Context, prompt string) (string, error) {
	p.lastCall = prompt
	if p.err != nil {
		return "", p.err
	}
	return p.response, nil
}

func writeSRT(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "translated.srt")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestSummarizeReturnsProviderMarkdown(t *testing.T) {
	path := writeSRT(t, sampleSRT)
	provider := &stubProvider{response: "# Summary\n\n- hello\n- goodbye"}
	hook := NewHook(provider)

	md, err := hook.Summarize(context.Background(), "task-1", path, "en", "")
	require.NoError(t, err)
	assert.Equal(t, "# Summary\n\n- hello\n- goodbye", md)
	assert.Contains(t, provider.lastCall, "Hello world")
	assert.Contains(t, provider.lastCall, "Goodbye world")
}

func TestSummarizeUsesCustomPrompt(t *testing.T) {
	path := writeSRT(t, sampleSRT)
	provider := &stubProvider{response: "ok"}
	hook := NewHook(provider)

	_, err := hook.Summarize(context.Background(), "task-1", path, "en", "List the key topics only.")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(provider.lastCall, "List the key topics only."))
}

func TestSummarizeRejectsOversizeCustomPrompt(t *testing.T) {
	origMax := config.SummaryPromptMaxChars
	config.SummaryPromptMaxChars = 20
	t.Cleanup(func() { config.SummaryPromptMaxChars = origMax })

	path := writeSRT(t, sampleSRT)
	provider := &stubProvider{response: "ok"}
	hook := NewHook(provider)

	_, err := hook.Summarize(context.Background(), "task-1", path, "en", "this custom prompt is far longer than twenty characters")
	require.Error(t, err)
	typed, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.PromptTooLong, typed.Kind)
}

func TestSummarizeAllowsLongTranscriptUnderCharCap(t *testing.T) {
	origMax := config.SummaryPromptMaxChars
	config.SummaryPromptMaxChars = 20
	t.Cleanup(func() { config.SummaryPromptMaxChars = origMax })

	var longSRT strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&longSRT, "%d\n00:00:0%d,000 --> 00:00:0%d,500\nline %d\n\n", i+1, i%9, i%9, i)
	}
	path := writeSRT(t, longSRT.String())
	provider := &stubProvider{response: "ok"}
	hook := NewHook(provider)

	_, err := hook.Summarize(context.Background(), "task-1", path, "en", "")
	require.NoError(t, err)
	assert.Greater(t, len(provider.lastCall), config.SummaryPromptMaxChars)
}

func TestSummarizeWrapsProviderFailure(t *testing.T) {
	path := writeSRT(t, sampleSRT)
	provider := &stubProvider{err: assert.AnError}
	hook := NewHook(provider)

	_, err := hook.Summarize(context.Background(), "task-1", path, "en", "")
	require.Error(t, err)
	typed, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.BackendUnavailable, typed.Kind)
}

func TestSummarizeFailsOnMissingFile(t *testing.T) {
	provider := &stubProvider{response: "ok"}
	hook := NewHook(provider)

	_, err := hook.Summarize(context.Background(), "task-1", filepath.Join(t.TempDir(), "missing.srt"), "en", "")
	require.Error(t, err)
}
