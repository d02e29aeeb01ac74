package translate

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subtitler/pipeline/errors"
)

type fakeSimpleProvider struct {
	failTimes int32
	calls     int32
}

func (p *fakeSimpleProvider) TranslateOne(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	n := atomic.AddInt32(&p.calls, 1)
	if n <= p.failTimes {
		return "", errors.New(errors.Network, "transient failure", nil)
	}
	return "translated:" + text, nil
}

func TestSimpleBackendRetriesTransientErrors(t *testing.T) {
	provider := &fakeSimpleProvider{failTimes: 2}
	backend := &SimpleBackend{Provider: provider}
	out, err := backend.TranslateOne(context.Background(), "hello", "en", "es")
	require.NoError(t, err)
	assert.Equal(t, "translated:hello", out)
	assert.Equal(t, int32(3), provider.calls)
}

func TestSimpleBackendStopsOnPermanentError(t *testing.T) {
	provider := &fakeSimpleProvider{}
	backend := &SimpleBackend{Provider: &permanentFailProvider{}}
	_, err := backend.TranslateOne(context.Background(), "hello", "en", "es")
	require.Error(t, err)
	te, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.InvalidInput, te.Kind)
	_ = provider
}

type permanentFailProvider struct{}

func (permanentFailProvider) TranslateOne(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	return "", errors.New(errors.InvalidInput, "bad input", nil)
}

func TestSimpleBackendTranslateBatchPreservesOrder(t *testing.T) {
	provider := &fakeSimpleProvider{}
	backend := &SimpleBackend{Provider: provider}
	out, err := backend.TranslateBatch(context.Background(), []string{"a", "b", "c"}, "en", "es")
	require.NoError(t, err)
	assert.Equal(t, []string{"translated:a", "translated:b", "translated:c"}, out)
}
