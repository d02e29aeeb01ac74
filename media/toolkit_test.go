package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeStubFFmpeg writes a shell script standing in for ffmpeg: it writes
// an empty file at its last argument and exits 0, or exits 1 if
// failOnFirstCall is true and this is the first invocation (used to
// exercise the fast-then-safe fallback path).
func writeStubFFmpeg(t *testing.T, dir string, failOnFirstCall bool) string {
	t.Helper()
	script := filepath.Join(dir, "ffmpeg-stub.sh")
	counterFile := filepath.Join(dir, "calls")
	body := `#!/bin/sh
eval out="\${$#}"
calls=0
if [ -f "` + counterFile + `" ]; then calls=$(cat "` + counterFile + `"); fi
calls=$((calls + 1))
echo "$calls" > "` + counterFile + `"
if [ "$calls" = "1" ] && [ "` + boolStr(failOnFirstCall) + `" = "true" ]; then
  exit 1
fi
touch "$out"
exit 0
`
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))
	return script
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func TestCutSucceedsOnFastPath(t *testing.T) {
	dir := t.TempDir()
	tk := &Toolkit{FFmpegPath: writeStubFFmpeg(t, dir, false), Timeout: 5 * time.Second}
	out, err := tk.Cut(context.Background(), "task1", "in.mp4", dir, 1000, 2000)
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func TestCutFallsBackToSafeArgsOnFastFailure(t *testing.T) {
	dir := t.TempDir()
	tk := &Toolkit{FFmpegPath: writeStubFFmpeg(t, dir, true), Timeout: 5 * time.Second}
	out, err := tk.Cut(context.Background(), "task1", "in.mp4", dir, 1000, 2000)
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func TestCutRejectsInvalidRange(t *testing.T) {
	dir := t.TempDir()
	tk := &Toolkit{FFmpegPath: writeStubFFmpeg(t, dir, false), Timeout: 5 * time.Second}
	_, err := tk.Cut(context.Background(), "task1", "in.mp4", dir, 2000, 1000)
	assert.Error(t, err)
}

func TestExtractAudio(t *testing.T) {
	dir := t.TempDir()
	tk := &Toolkit{FFmpegPath: writeStubFFmpeg(t, dir, false), Timeout: 5 * time.Second}
	out, err := tk.ExtractAudio(context.Background(), "task1", "in.mp4", dir)
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func TestMergeWritesConcatList(t *testing.T) {
	dir := t.TempDir()
	tk := &Toolkit{FFmpegPath: writeStubFFmpeg(t, dir, false), Timeout: 5 * time.Second}
	out, err := tk.Merge(context.Background(), "task1", []string{"a.mp4", "b.mp4"}, dir)
	require.NoError(t, err)
	assert.FileExists(t, out)
	list, err := os.ReadFile(filepath.Join(dir, "concat_list.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(list), "file 'a.mp4'")
	assert.Contains(t, string(list), "file 'b.mp4'")
}

func TestMergeRequiresInputs(t *testing.T) {
	dir := t.TempDir()
	tk := &Toolkit{FFmpegPath: writeStubFFmpeg(t, dir, false), Timeout: 5 * time.Second}
	_, err := tk.Merge(context.Background(), "task1", nil, dir)
	assert.Error(t, err)
}

func TestOverlayWatermarkPositions(t *testing.T) {
	for _, pos := range []WatermarkPosition{PositionTopLeft, PositionTopRight, PositionBottomLeft, PositionBottomRight} {
		assert.NotEmpty(t, watermarkOverlayExpr(pos))
	}
}
