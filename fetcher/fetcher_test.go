package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subtitler/pipeline/errors"
)

// writeStubYtDlp writes a shell script standing in for yt-dlp: it
// recognizes --dump-json (emits a fixed JSON payload) versus a download
// invocation (touches the output path and prints it via --print).
func writeStubYtDlp(t *testing.T, dir string, stderrMsg string, exitCode int) string {
	t.Helper()
	script := filepath.Join(dir, "yt-dlp-stub.sh")
	body := `#!/bin/sh
if [ -n "` + stderrMsg + `" ]; then
  echo "` + stderrMsg + `" >&2
  exit ` + itoa(exitCode) + `
fi
for arg in "$@"; do
  if [ "$arg" = "--dump-json" ]; then
    echo '{"title":"demo","duration":12.5,"width":1280,"height":720,"fps":30,"filesize":1000,"uploader":"alice","thumbnail":"http://x/thumb.jpg","webpage_url":"http://x/v"}'
    exit 0
  fi
done
out="` + filepath.Join(dir, "source.mp4") + `"
touch "$out"
echo "$out"
exit 0
`
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))
	return script
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	return "1"
}

func TestProbeParsesMetadata(t *testing.T) {
	dir := t.TempDir()
	f := &YtDlpFetcher{BinPath: writeStubYtDlp(t, dir, "", 0), Timeout: 5 * time.Second}
	meta, err := f.Probe(context.Background(), "http://example.com/v")
	require.NoError(t, err)
	assert.Equal(t, "demo", meta.Title)
	assert.Equal(t, int64(12500), meta.DurationMs)
	assert.Equal(t, 1280, meta.Width)
}

func TestFetchReturnsPathAndMetadata(t *testing.T) {
	dir := t.TempDir()
	f := &YtDlpFetcher{BinPath: writeStubYtDlp(t, dir, "", 0), Timeout: 5 * time.Second}
	path, meta, err := f.Fetch(context.Background(), "http://example.com/v", BestQuality, dir)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, "demo", meta.Title)
}

func TestProbeClassifiesBotChallenge(t *testing.T) {
	dir := t.TempDir()
	f := &YtDlpFetcher{BinPath: writeStubYtDlp(t, dir, "Sign in to confirm you're not a bot", 1), Timeout: 5 * time.Second}
	_, err := f.Probe(context.Background(), "http://example.com/v")
	require.Error(t, err)
	te, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.BotChallenge, te.Kind)
}

func TestProbeClassifiesGeoBlock(t *testing.T) {
	dir := t.TempDir()
	f := &YtDlpFetcher{BinPath: writeStubYtDlp(t, dir, "The uploader has not made this video available in your country (geo block)", 1), Timeout: 5 * time.Second}
	_, err := f.Probe(context.Background(), "http://example.com/v")
	require.Error(t, err)
	te, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.GeoBlock, te.Kind)
}

func TestProbeClassifiesNotFound(t *testing.T) {
	dir := t.TempDir()
	f := &YtDlpFetcher{BinPath: writeStubYtDlp(t, dir, "ERROR: Video unavailable", 1), Timeout: 5 * time.Second}
	_, err := f.Probe(context.Background(), "http://example.com/v")
	require.Error(t, err)
	te, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.NotFound, te.Kind)
}

func TestProbeClassifiesUnsupportedURL(t *testing.T) {
	dir := t.TempDir()
	f := &YtDlpFetcher{BinPath: writeStubYtDlp(t, dir, "Unsupported URL: ftp://x", 1), Timeout: 5 * time.Second}
	_, err := f.Probe(context.Background(), "ftp://x")
	require.Error(t, err)
	te, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.UnsupportedURL, te.Kind)
}

func TestProbeClassifiesNetworkError(t *testing.T) {
	dir := t.TempDir()
	f := &YtDlpFetcher{BinPath: writeStubYtDlp(t, dir, "unable to download webpage: timed out", 1), Timeout: 5 * time.Second}
	_, err := f.Probe(context.Background(), "http://example.com/v")
	require.Error(t, err)
	te, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.Network, te.Kind)
}
