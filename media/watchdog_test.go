package media

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subtitler/pipeline/errors"
)

func TestRunWithWatchdogSucceeds(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 0")
	err := runWithWatchdog(context.Background(), "task1", cmd, time.Second)
	require.NoError(t, err)
}

func TestRunWithWatchdogPropagatesFailure(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 1")
	err := runWithWatchdog(context.Background(), "task1", cmd, time.Second)
	require.Error(t, err)
	te, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.TranscodeFailed, te.Kind)
}

func TestRunWithWatchdogTimesOut(t *testing.T) {
	cmd := exec.Command("sh", "-c", "sleep 5")
	err := runWithWatchdog(context.Background(), "task1", cmd, 50*time.Millisecond)
	require.Error(t, err)
	te, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.TranscodeTimeout, te.Kind)
}
