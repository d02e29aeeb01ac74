package progress

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subtitler/pipeline/config"
)

func TestNormalizeRescalesToOne(t *testing.T) {
	steps := Normalize([]StepWeight{
		{Name: "A", Weight: 0.15},
		{Name: "B", Weight: 0.40},
	})
	var total float64
	for _, s := range steps {
		total += s.Weight
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestLedgerWeightedOverallPercent(t *testing.T) {
	l := NewLedger()
	l.Begin("task1", []StepWeight{
		{Name: "A", Weight: 0.5, Determinate: true},
		{Name: "B", Weight: 0.5, Determinate: true},
	})
	l.Update("task1", "A", 1.0)
	l.Update("task1", "B", 0.5)

	snap := l.Snapshot("task1")
	assert.InDelta(t, 0.75, snap.OverallPercent, 1e-6)
}

func TestLedgerIgnoresRegression(t *testing.T) {
	l := NewLedger()
	l.Begin("task1", []StepWeight{{Name: "A", Weight: 1, Determinate: true}})
	l.Update("task1", "A", 0.8)
	l.Update("task1", "A", 0.3)
	snap := l.Snapshot("task1")
	assert.InDelta(t, 0.8, snap.OverallPercent, 1e-6)
}

func TestLedgerIndeterminateStepPseudoProgress(t *testing.T) {
	mock := clock.NewMock()
	realClock := Clock
	Clock = mock
	defer func() { Clock = realClock }()

	l := NewLedger()
	l.Begin("task1", []StepWeight{{Name: "TRANSCRIBE", Weight: 1, Determinate: false}})
	l.StartStep("task1", "TRANSCRIBE")

	mock.Add(30 * time.Second)
	snap := l.Snapshot("task1")
	assert.InDelta(t, 0.475, snap.OverallPercent, 0.01)
	assert.Less(t, snap.OverallPercent, indeterminatePseudoCeiling)

	mock.Add(10 * time.Hour)
	snap = l.Snapshot("task1")
	assert.Less(t, snap.OverallPercent, indeterminatePseudoCeiling+0.001)
}

func TestLedgerCompleteStepForcesFull(t *testing.T) {
	l := NewLedger()
	l.Begin("task1", []StepWeight{
		{Name: "TRANSCRIBE", Weight: 1, Determinate: false},
	})
	l.StartStep("task1", "TRANSCRIBE")
	l.CompleteStep("task1", "TRANSCRIBE")
	snap := l.Snapshot("task1")
	assert.Equal(t, 1.0, snap.OverallPercent)
	require.Len(t, snap.Steps, 1)
	assert.True(t, snap.Steps[0].Complete)
}

func TestLedgerLogRingBufferBounded(t *testing.T) {
	origSize := config.LogRingSize
	config.LogRingSize = 5
	t.Cleanup(func() { config.LogRingSize = origSize })

	l := NewLedger()
	l.Begin("task1", []StepWeight{{Name: "A", Weight: 1, Determinate: true}})
	for i := 0; i < 10; i++ {
		l.Log("task1", "line", nil)
	}
	snap := l.Snapshot("task1")
	assert.Len(t, snap.Logs, 5)
}

func TestLedgerFailStepMarksStepFailed(t *testing.T) {
	l := NewLedger()
	l.Begin("task1", []StepWeight{
		{Name: "FETCH", Weight: 0.5, Determinate: true},
		{Name: "EXTRACT_AUDIO", Weight: 0.5, Determinate: true},
	})
	l.Update("task1", "FETCH", 0.4)
	l.FailStep("task1", "FETCH")

	snap := l.Snapshot("task1")
	require.Len(t, snap.Steps, 2)
	assert.True(t, snap.Steps[0].Failed)
	assert.False(t, snap.Steps[0].Complete)
	assert.InDelta(t, 0.4, snap.Steps[0].Fraction, 1e-9)
	assert.False(t, snap.Steps[1].Failed)
}

func TestLedgerEndRemovesTask(t *testing.T) {
	l := NewLedger()
	l.Begin("task1", []StepWeight{{Name: "A", Weight: 1, Determinate: true}})
	l.End("task1")
	snap := l.Snapshot("task1")
	assert.Equal(t, Snapshot{}, snap)
}
