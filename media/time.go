package media

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/subtitler/pipeline/config"
	"github.com/subtitler/pipeline/errors"
)

// ParseTimeString accepts the string forms named in §4.5: HH:MM:SS,
// MM:SS, or SS (all may have a fractional-second suffix, e.g. "12.5").
// It returns milliseconds since zero.
func ParseTimeString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New(errors.InvalidInput, "empty time string", nil)
	}
	fields := strings.Split(s, ":")
	if len(fields) > 3 {
		return 0, errors.Newf(errors.InvalidInput, nil, "unrecognized time string %q", s)
	}

	var parts []float64
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || v < 0 {
			return 0, errors.Newf(errors.InvalidInput, err, "unrecognized time component %q in %q", f, s)
		}
		parts = append(parts, v)
	}

	var hours, minutes, seconds float64
	switch len(parts) {
	case 1:
		seconds = parts[0]
	case 2:
		minutes, seconds = parts[0], parts[1]
	case 3:
		hours, minutes, seconds = parts[0], parts[1], parts[2]
	}
	// "59:61" is rejected (§8): minutes/seconds fields must be < 60 once
	// we know they're not the most-significant field.
	if len(parts) >= 2 && seconds >= 60 {
		return 0, errors.Newf(errors.InvalidInput, nil, "seconds field out of range in %q", s)
	}
	if len(parts) == 3 && minutes >= 60 {
		return 0, errors.Newf(errors.InvalidInput, nil, "minutes field out of range in %q", s)
	}

	totalMs := int64((hours*3600+minutes*60+seconds)*1000 + 0.5)
	return totalMs, nil
}

// ValidateCutRange enforces end > start and the MAX_CUT_SECONDS ceiling
// (§4.5/§8).
func ValidateCutRange(startMs, endMs int64) error {
	if endMs <= startMs {
		return errors.New(errors.InvalidInput, "end must be after start", nil)
	}
	durationSecs := float64(endMs-startMs) / 1000
	if durationSecs > float64(config.MaxCutSeconds) {
		return errors.Newf(errors.InvalidInput, nil, "cut duration %.1fs exceeds MAX_CUT_SECONDS (%d)", durationSecs, config.MaxCutSeconds)
	}
	return nil
}

// FormatTimestamp renders milliseconds as ffmpeg's expected HH:MM:SS.mmm
// argument form.
func FormatTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	ms %= 3600000
	m := ms / 60000
	ms %= 60000
	s := ms / 1000
	msRem := ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, msRem)
}
