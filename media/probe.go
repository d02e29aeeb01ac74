package media

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	ffprobe "gopkg.in/vansante/go-ffprobe.v2"

	"github.com/subtitler/pipeline/errors"
)

// Prober probes a local media file for its duration, the one piece of
// metadata the coordinator needs from the Media Toolkit side (full
// MediaMetadata for remote sources comes from the Media Fetcher).
type Prober interface {
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}

// FFProbe is the default Prober, backed by ffprobe via go-ffprobe.v2,
// grounded on the same retry-with-backoff idiom the teacher uses for its
// own probing (one attempt plus up to 3 retries, bounded exponential
// backoff).
type FFProbe struct{}

func (FFProbe) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	var data *ffprobe.ProbeData
	operation := func() error {
		probeCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
		var err error
		data, err = ffprobe.ProbeURL(probeCtx, path)
		return err
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 500 * time.Millisecond
	backOff.MaxInterval = 2 * time.Second
	backOff.MaxElapsedTime = 0
	if err := backoff.Retry(operation, backoff.WithMaxRetries(backOff, 3)); err != nil {
		return 0, errors.Newf(errors.AudioDecodeFailed, err, "failed probing %s", path)
	}
	if data.Format == nil {
		return 0, errors.New(errors.AudioDecodeFailed, "probe returned no format information", nil)
	}
	return time.Duration(data.Format.DurationSeconds * float64(time.Second)), nil
}

// ProbeDuration runs the configured Prober, defaulting to FFProbe.
func (t *Toolkit) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	p := t.Probe
	if p == nil {
		p = FFProbe{}
	}
	return p.ProbeDuration(ctx, path)
}
