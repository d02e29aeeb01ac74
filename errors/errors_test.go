package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	te := New(Network, "fetch failed", cause)
	require.ErrorIs(t, te, cause)
}

func TestAsAndKindOf(t *testing.T) {
	te := New(BotChallenge, "refused", nil)
	var err error = te
	got, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, BotChallenge, got.Kind)
	assert.Equal(t, BotChallenge, KindOf(err))
	assert.Equal(t, Internal, KindOf(fmt.Errorf("plain")))
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, IsCancelled(New(Cancelled, "stopped", nil)))
	assert.False(t, IsCancelled(New(Network, "stopped", nil)))
}

func TestToTaskErrorNeverLeaksDetail(t *testing.T) {
	te := New(TranslationIncomplete, "batch 3 missing indices", fmt.Errorf("provider said no")).WithMissing([]int{7, 8})
	task := ToTaskError(te)
	assert.Equal(t, TranslationIncomplete, task.Kind)
	assert.Equal(t, []int{7, 8}, task.Missing)
	assert.NotEqual(t, task.UserFacingMessage, task.Detail)
	assert.Contains(t, task.Detail, "provider said no")
}

func TestToTaskErrorWrapsOpaqueError(t *testing.T) {
	task := ToTaskError(fmt.Errorf("unexpected panic recovered"))
	assert.Equal(t, Internal, task.Kind)
	assert.False(t, task.Recoverable)
}

func TestIsRetriable(t *testing.T) {
	assert.True(t, IsRetriable(New(Network, "timeout", nil)))
	assert.True(t, IsRetriable(New(BackendTimeout, "timeout", nil)))
	assert.False(t, IsRetriable(New(InvalidInput, "bad", nil)))
	assert.False(t, IsRetriable(fmt.Errorf("plain")))
	assert.False(t, IsRetriable(nil))
}
