// Package media implements the Media Toolkit (§4.5): thin, synchronous
// wrappers around an external transcoder (ffmpeg) invoked as a
// subprocess. Every operation is a pure function over (inputs,
// parameters) -> output path, wrapped in a watchdog, with a primary "fast"
// invocation and, where applicable, a "safe" re-encode fallback.
package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/subtitler/pipeline/errors"
	"github.com/subtitler/pipeline/log"
)

// WatermarkPosition is the closed set of corner placements (§3).
type WatermarkPosition string

const (
	PositionTopLeft     WatermarkPosition = "tl"
	PositionTopRight    WatermarkPosition = "tr"
	PositionBottomLeft  WatermarkPosition = "bl"
	PositionBottomRight WatermarkPosition = "br"
)

// WatermarkSize is the closed set of logo sizes (§3).
type WatermarkSize string

const (
	SizeSmall  WatermarkSize = "small"
	SizeMedium WatermarkSize = "medium"
	SizeLarge  WatermarkSize = "large"
)

// WatermarkSpec describes a logo overlay (§3).
type WatermarkSpec struct {
	LogoPath string
	Position WatermarkPosition
	Size     WatermarkSize
	Opacity  int // 0..100
}

// Toolkit wraps the ffmpeg binary. FFmpegPath defaults to "ffmpeg" on
// PATH; tests substitute a stub script.
type Toolkit struct {
	FFmpegPath string
	Timeout    time.Duration
	Probe      Prober
}

func NewToolkit(timeout time.Duration) *Toolkit {
	return &Toolkit{
		FFmpegPath: "ffmpeg",
		Timeout:    timeout,
		Probe:      FFProbe{},
	}
}

func (t *Toolkit) ffmpegPath() string {
	if t.FFmpegPath != "" {
		return t.FFmpegPath
	}
	return "ffmpeg"
}

func (t *Toolkit) timeout() time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	return 30 * time.Minute
}

func (t *Toolkit) run(ctx context.Context, taskID string, args []string) error {
	cmd := exec.CommandContext(ctx, t.ffmpegPath(), args...)
	log.Log(taskID, "running ffmpeg", "args", args)
	return runWithWatchdog(ctx, taskID, cmd, t.timeout())
}

// runFastThenSafe tries fastArgs first; on transcode failure (not
// cancellation, not timeout) it retries once with safeArgs, matching
// §4.1's "transcoder invocations with a secondary 'safer' argument set as
// fallback" retried-failure policy.
func (t *Toolkit) runFastThenSafe(ctx context.Context, taskID string, fastArgs, safeArgs []string) error {
	err := t.run(ctx, taskID, fastArgs)
	if err == nil {
		return nil
	}
	kind := errors.KindOf(err)
	if kind == errors.Cancelled || kind == errors.TranscodeTimeout {
		return err
	}
	log.LogError(taskID, "fast ffmpeg invocation failed, retrying with safe args", err, "safe_args", safeArgs)
	return t.run(ctx, taskID, safeArgs)
}

func outputPath(workDir, name string) string {
	return filepath.Join(workDir, name)
}

// Cut extracts [startMs, endMs) from input into workDir, returning the
// output path. Fast path uses stream copy; safe fallback re-encodes
// (copy-concat/copy-seek can produce corrupt output on some containers).
func (t *Toolkit) Cut(ctx context.Context, taskID, input, workDir string, startMs, endMs int64) (string, error) {
	if err := ValidateCutRange(startMs, endMs); err != nil {
		return "", err
	}
	out := outputPath(workDir, "cut.mp4")
	start := FormatTimestamp(startMs)
	duration := FormatTimestamp(endMs - startMs)

	fastArgs := []string{"-y", "-ss", start, "-i", input, "-t", duration, "-c", "copy", out}
	safeArgs := []string{"-y", "-ss", start, "-i", input, "-t", duration, "-c:v", "libx264", "-c:a", "aac", out}

	if err := t.runFastThenSafe(ctx, taskID, fastArgs, safeArgs); err != nil {
		return "", err
	}
	return out, nil
}

// Merge concatenates paths (in order) into a single output file. Fast path
// uses the concat demuxer (requires matching codecs); safe fallback
// re-encodes through the concat filter.
func (t *Toolkit) Merge(ctx context.Context, taskID string, paths []string, workDir string) (string, error) {
	if len(paths) == 0 {
		return "", errors.New(errors.InvalidInput, "merge requires at least one input", nil)
	}
	listFile := filepath.Join(workDir, "concat_list.txt")
	var list string
	for _, p := range paths {
		list += fmt.Sprintf("file '%s'\n", p)
	}
	if err := os.WriteFile(listFile, []byte(list), 0o644); err != nil {
		return "", errors.Newf(errors.TranscodeFailed, err, "failed to write concat list")
	}
	out := outputPath(workDir, "merged.mp4")

	fastArgs := []string{"-y", "-f", "concat", "-safe", "0", "-i", listFile, "-c", "copy", out}
	safeArgs := []string{"-y", "-f", "concat", "-safe", "0", "-i", listFile, "-c:v", "libx264", "-c:a", "aac", out}

	if err := t.runFastThenSafe(ctx, taskID, fastArgs, safeArgs); err != nil {
		return "", err
	}
	return out, nil
}

// BurnSubtitles hard-codes srtPath into video's frames.
func (t *Toolkit) BurnSubtitles(ctx context.Context, taskID, video, srtPath, workDir string) (string, error) {
	out := outputPath(workDir, "burned.mp4")
	// ffmpeg's subtitles filter takes a filter-graph argument; escape
	// characters that the filtergraph parser treats specially.
	escaped := escapeFilterPath(srtPath)
	args := []string{"-y", "-i", video, "-vf", fmt.Sprintf("subtitles=%s", escaped), "-c:a", "copy", out}
	if err := t.run(ctx, taskID, args); err != nil {
		return "", err
	}
	return out, nil
}

func escapeFilterPath(p string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`:`, `\:`,
		`'`, `\'`,
		`[`, `\[`,
		`]`, `\]`,
	)
	return replacer.Replace(p)
}

// OverlayWatermark burns a logo image onto video at the given corner,
// size, and opacity.
func (t *Toolkit) OverlayWatermark(ctx context.Context, taskID, video string, spec WatermarkSpec, workDir string) (string, error) {
	out := outputPath(workDir, "watermarked.mp4")
	scale := watermarkScale(spec.Size)
	overlay := watermarkOverlayExpr(spec.Position)
	alpha := float64(spec.Opacity) / 100

	filter := fmt.Sprintf(
		"[1:v]scale=%s,format=rgba,colorchannelmixer=aa=%.2f[wm];[0:v][wm]overlay=%s",
		scale, alpha, overlay,
	)
	args := []string{"-y", "-i", video, "-i", spec.LogoPath, "-filter_complex", filter, "-c:a", "copy", out}
	if err := t.run(ctx, taskID, args); err != nil {
		return "", err
	}
	return out, nil
}

func watermarkScale(size WatermarkSize) string {
	switch size {
	case SizeSmall:
		return "iw*0.08:-1"
	case SizeLarge:
		return "iw*0.20:-1"
	default:
		return "iw*0.14:-1"
	}
}

func watermarkOverlayExpr(pos WatermarkPosition) string {
	const margin = 16
	switch pos {
	case PositionTopLeft:
		return fmt.Sprintf("%d:%d", margin, margin)
	case PositionTopRight:
		return fmt.Sprintf("W-w-%d:%d", margin, margin)
	case PositionBottomLeft:
		return fmt.Sprintf("%d:H-h-%d", margin, margin)
	default: // bottom-right
		return fmt.Sprintf("W-w-%d:H-h-%d", margin, margin)
	}
}

// ExtractAudio demuxes the audio track of video to a 16kHz mono WAV file,
// the format transcription backends expect.
func (t *Toolkit) ExtractAudio(ctx context.Context, taskID, video, workDir string) (string, error) {
	out := outputPath(workDir, "audio.wav")
	args := []string{"-y", "-i", video, "-vn", "-ac", "1", "-ar", "16000", "-f", "wav", out}
	if err := t.run(ctx, taskID, args); err != nil {
		return "", err
	}
	return out, nil
}
