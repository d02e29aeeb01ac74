package tasks

import (
	"github.com/benbjohnson/clock"

	"github.com/subtitler/pipeline/config"
)

// Clock is package-level so tests can substitute a mock clock, matching
// the ledger's and the teacher's ProgressReporter clock idiom.
var Clock = clock.New()

// RunSweeper ticks every config.TaskSweepInterval, removing terminal
// tasks past config.TaskTTL, until stop is closed.
func (r *Registry) RunSweeper(stop <-chan struct{}) {
	ticker := Clock.Ticker(config.TaskSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.Sweep(Clock.Now(), config.TaskTTL)
		}
	}
}
