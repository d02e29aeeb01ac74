package media

import (
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"

	subtitlererrors "github.com/subtitler/pipeline/errors"
	"github.com/subtitler/pipeline/log"
)

// runWithWatchdog starts cmd in its own process group and enforces
// timeout. On timeout (or context cancellation) it signals the whole
// group — not just the immediate child — since ffmpeg/ffprobe commonly
// fork helper processes that would otherwise be orphaned (§9 "Source kills
// only the immediate child, leaking transcoder descendants").
func runWithWatchdog(ctx context.Context, taskID string, cmd *exec.Cmd, timeout time.Duration) error {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := cmd.Start(); err != nil {
		return subtitlererrors.Newf(subtitlererrors.TranscodeFailed, err, "failed to start %s", cmd.Path)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		return subtitlererrors.Newf(subtitlererrors.TranscodeFailed, err, "%s exited with error", cmd.Path)
	case <-ctx.Done():
		killGroup(taskID, cmd)
		<-done // reap
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return subtitlererrors.Newf(subtitlererrors.TranscodeTimeout, ctx.Err(), "%s exceeded %s", cmd.Path, timeout)
		}
		return subtitlererrors.Newf(subtitlererrors.Cancelled, ctx.Err(), "%s cancelled", cmd.Path)
	}
}

// killGroup sends SIGTERM to the process group, then SIGKILL if it hasn't
// exited within the grace period.
func killGroup(taskID string, cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		log.LogError(taskID, "failed to SIGTERM process group", err, "pid", pid)
	}
	time.AfterFunc(2*time.Second, func() {
		if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			log.LogError(taskID, "failed to SIGKILL process group", err, "pid", pid)
		}
	})
}
