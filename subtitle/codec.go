package subtitle

import (
	"fmt"
	"strconv"
	"strings"
)

const bom = "﻿"

// timeFormat is the canonical SubRip timestamp: HH:MM:SS,mmm
const timeFormat = "%02d:%02d:%02d,%03d"

// Parse reads an SRT document, tolerating CRLF/LF line endings, a leading
// BOM, and blank-line variants between cues (§4.5). It does not enforce
// ordering — callers that need the monotonic-cue invariant should run
// ValidateOrdering on the result.
func Parse(data string) ([]Segment, error) {
	data = strings.TrimPrefix(data, bom)
	data = strings.ReplaceAll(data, "\r\n", "\n")
	data = strings.ReplaceAll(data, "\r", "\n")

	blocks := splitBlocks(data)
	segments := make([]Segment, 0, len(blocks))
	for _, block := range blocks {
		lines := strings.Split(block, "\n")
		lines = trimTrailingBlank(lines)
		if len(lines) == 0 {
			continue
		}

		idx := 0
		lineIdx := 0
		// An explicit numeric index line is optional; only consume it if
		// present and the next line looks like a timing line.
		if n, err := strconv.Atoi(strings.TrimSpace(lines[0])); err == nil && len(lines) > 1 && strings.Contains(lines[1], "-->") {
			idx = n - 1 // SRT indices are 1-based
			lineIdx = 1
		}
		if lineIdx >= len(lines) {
			return nil, fmt.Errorf("subtitle: cue missing timing line")
		}
		start, end, err := parseTimingLine(lines[lineIdx])
		if err != nil {
			return nil, err
		}
		text := strings.Join(lines[lineIdx+1:], "\n")
		segments = append(segments, Segment{
			Index:   idx,
			StartMs: start,
			EndMs:   end,
			Text:    strings.TrimRight(text, "\n"),
		})
	}

	// Re-number densely from 0 in parse order; this matches the "index is
	// dense from 0" invariant (§3) even if the source file used
	// inconsistent numbering.
	for i := range segments {
		segments[i].Index = i
	}
	return segments, nil
}

func splitBlocks(data string) []string {
	raw := strings.Split(strings.TrimSpace(data), "\n\n")
	blocks := make([]string, 0, len(raw))
	for _, b := range raw {
		b = strings.TrimSpace(b)
		if b != "" {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

func trimTrailingBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func parseTimingLine(line string) (startMs, endMs int64, err error) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("subtitle: malformed timing line %q", line)
	}
	start, err := parseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	// The end field may carry trailing cue settings (e.g. "X1:... Y1:...");
	// only the first token is the timestamp.
	endField := strings.Fields(strings.TrimSpace(parts[1]))
	if len(endField) == 0 {
		return 0, 0, fmt.Errorf("subtitle: malformed timing line %q", line)
	}
	end, err := parseTimestamp(endField[0])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseTimestamp(s string) (int64, error) {
	s = strings.ReplaceAll(s, ".", ",")
	hms, msPart, ok := cutLast(s, ",")
	var ms int64
	if ok {
		v, err := strconv.ParseInt(msPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("subtitle: bad millisecond field %q: %w", s, err)
		}
		ms = v
	}
	fields := strings.Split(hms, ":")
	if len(fields) != 3 {
		return 0, fmt.Errorf("subtitle: bad timestamp %q", s)
	}
	h, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("subtitle: bad hour field %q: %w", s, err)
	}
	m, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("subtitle: bad minute field %q: %w", s, err)
	}
	sec, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("subtitle: bad second field %q: %w", s, err)
	}
	return h*3600000 + m*60000 + sec*1000 + ms, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

// Emit produces the canonical SRT form: blank-line separated cues,
// HH:MM:SS,mmm --> HH:MM:SS,mmm, UTF-8 without BOM (§4.5/§6). Parse(Emit(s))
// is idempotent for any normalized segment list (§8).
func Emit(segments []Segment) string {
	var sb strings.Builder
	for i, s := range segments {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%d\n", s.Index+1)
		fmt.Fprintf(&sb, "%s --> %s\n", formatTimestamp(s.StartMs), formatTimestamp(s.EndMs))
		sb.WriteString(s.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	ms %= 3600000
	m := ms / 60000
	ms %= 60000
	s := ms / 1000
	ms %= 1000
	return fmt.Sprintf(timeFormat, h, m, s, ms)
}
