// Package fetcher implements the Media Fetcher (§4.4): given a remote URL,
// it probes metadata and downloads a playable container at a requested
// quality, using an external yt-dlp-compatible helper invoked as a
// subprocess, the way the teacher shells out to ffmpeg/ffprobe/mist
// binaries rather than reimplementing extraction logic in-process.
package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/subtitler/pipeline/errors"
	"github.com/subtitler/pipeline/log"
)

// MediaMetadata mirrors §3's MediaMetadata record.
type MediaMetadata struct {
	Title        string
	DurationMs   int64
	Width        int
	Height       int
	FPS          float64
	FileSizeB    int64
	ViewCount    *int64
	Uploader     string
	ThumbnailURL string
	SourceURL    string
}

// Quality is an opaque quality selector passed through to the downloader
// helper (e.g. "best", "720p"); the specification treats vendor format
// selection as out of scope beyond accepting a string.
type Quality string

const BestQuality Quality = "best"

// Fetcher is the Media Fetcher contract (§4.4).
type Fetcher interface {
	Probe(ctx context.Context, url string) (MediaMetadata, error)
	Fetch(ctx context.Context, url string, quality Quality, destDir string) (path string, meta MediaMetadata, err error)
}

// YtDlpFetcher shells out to a yt-dlp-compatible binary. BinPath defaults
// to "yt-dlp" on PATH. Raw ".m3u8" URLs bypass the binary entirely and are
// probed directly via HTTPClient (see hls.go).
type YtDlpFetcher struct {
	BinPath    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func New() *YtDlpFetcher {
	return &YtDlpFetcher{BinPath: "yt-dlp", Timeout: 15 * time.Minute, HTTPClient: http.DefaultClient}
}

func (f *YtDlpFetcher) httpClient() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return http.DefaultClient
}

func (f *YtDlpFetcher) bin() string {
	if f.BinPath != "" {
		return f.BinPath
	}
	return "yt-dlp"
}

func (f *YtDlpFetcher) timeout() time.Duration {
	if f.Timeout > 0 {
		return f.Timeout
	}
	return 15 * time.Minute
}

// ytDlpProbeResult is the subset of yt-dlp's -J/--dump-json output we use.
type ytDlpProbeResult struct {
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
	FileSize   int64   `json:"filesize"`
	ViewCount  *int64  `json:"view_count"`
	Uploader   string  `json:"uploader"`
	Thumbnail  string  `json:"thumbnail"`
	WebpageURL string  `json:"webpage_url"`
}

// Probe resolves metadata for url without downloading (§4.4).
func (f *YtDlpFetcher) Probe(ctx context.Context, url string) (MediaMetadata, error) {
	if isHLSManifestURL(url) {
		return probeHLSManifest(ctx, f.httpClient(), url)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, f.bin(), "--dump-json", "--no-warnings", "--no-playlist", url)
	out, err := cmd.Output()
	if err != nil {
		return MediaMetadata{}, classifyFetchError(err, stderrOf(err))
	}

	var res ytDlpProbeResult
	if err := json.Unmarshal(out, &res); err != nil {
		return MediaMetadata{}, errors.Newf(errors.Internal, err, "failed parsing probe output for %s", log.RedactURL(url))
	}
	return MediaMetadata{
		Title:        res.Title,
		DurationMs:   int64(res.Duration * 1000),
		Width:        res.Width,
		Height:       res.Height,
		FPS:          res.FPS,
		FileSizeB:    res.FileSize,
		ViewCount:    res.ViewCount,
		Uploader:     res.Uploader,
		ThumbnailURL: res.Thumbnail,
		SourceURL:    url,
	}, nil
}

// Fetch downloads url at quality into destDir (§4.4). Per §9's Open
// Question decision, metadata is always probed first so MediaMetadata is
// populated on every path, including fetch_only.
func (f *YtDlpFetcher) Fetch(ctx context.Context, url string, quality Quality, destDir string) (string, MediaMetadata, error) {
	meta, err := f.Probe(ctx, url)
	if err != nil {
		return "", MediaMetadata{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout())
	defer cancel()

	outTemplate := filepath.Join(destDir, "source.%(ext)s")
	args := []string{"--no-warnings", "--no-playlist", "-o", outTemplate}
	if quality != "" && quality != BestQuality {
		args = append(args, "-f", string(quality))
	}
	args = append(args, "--print", "after_move:filepath", url)

	cmd := exec.CommandContext(ctx, f.bin(), args...)
	out, err := cmd.Output()
	if err != nil {
		return "", MediaMetadata{}, classifyFetchError(err, stderrOf(err))
	}

	path := strings.TrimSpace(lastLine(string(out)))
	if path == "" {
		return "", MediaMetadata{}, errors.New(errors.Network, "downloader did not report an output path", nil)
	}
	return path, meta, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return lines[len(lines)-1]
}

func stderrOf(err error) string {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return string(exitErr.Stderr)
	}
	return ""
}

// classifyFetchError maps the downloader's exit into the typed errors
// named in §4.4, by matching well-known yt-dlp diagnostic phrases against
// stderr.
func classifyFetchError(err error, stderr string) *errors.TypedError {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "sign in to confirm") ||
		strings.Contains(lower, "not a bot") ||
		strings.Contains(lower, "confirm you're not a robot"):
		return errors.New(errors.BotChallenge, "source refused automated access", err)
	case strings.Contains(lower, "not available in your country") ||
		strings.Contains(lower, "geo") && strings.Contains(lower, "block"):
		return errors.New(errors.GeoBlock, "source is geo-restricted", err)
	case strings.Contains(lower, "video unavailable") ||
		strings.Contains(lower, "404") ||
		strings.Contains(lower, "not found"):
		return errors.New(errors.NotFound, "source media could not be found", err)
	case strings.Contains(lower, "unsupported url"):
		return errors.New(errors.UnsupportedURL, "URL is not supported", err)
	case strings.Contains(lower, "unable to download") ||
		strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "connection"):
		return errors.New(errors.Network, "network error while fetching media", err)
	default:
		return errors.New(errors.Network, "media fetch failed", err)
	}
}
