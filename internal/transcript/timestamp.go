package transcript

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// TimestampToSeconds parses "[MM:SS]", "[HH:MM:SS]", "MM:SS" or a bare number.
// Unparseable input yields 0.
func TimestampToSeconds(ts string) float64 {
	ts = strings.TrimSpace(strings.Trim(ts, "[]"))
	if ts == "" {
		return 0
	}
	parts := strings.Split(ts, ":")
	if len(parts) > 3 {
		return 0
	}
	total := 0.0
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return 0
		}
		total = total*60 + v
	}
	return total
}

// SecondsToTimestamp renders seconds as "[MM:SS]", or "[HH:MM:SS]" past an hour.
func SecondsToTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(math.RoundToEven(seconds))
	h, rem := total/3600, total%3600
	m, s := rem/60, rem%60
	if h > 0 {
		return fmt.Sprintf("[%02d:%02d:%02d]", h, m, s)
	}
	return fmt.Sprintf("[%02d:%02d]", m, s)
}

// MarkContinuations sets IsContinuation on every turn whose speaker matches
// the previous turn's (case-insensitive).
func MarkContinuations(turns []Turn) {
	prev := ""
	for i := range turns {
		spk := strings.ToUpper(strings.TrimSpace(turns[i].Speaker))
		turns[i].IsContinuation = i > 0 && spk == prev
		prev = spk
	}
}

var (
	speakerLetterRe  = regexp.MustCompile(`^[A-Z]$`)
	speakerNumericRe = regexp.MustCompile(`^[0-9]+$`)
)

// NormalizeSpeakerLabel maps diarization labels onto "SPEAKER X" form.
func NormalizeSpeakerLabel(raw, fallback string) string {
	fb := strings.ToUpper(strings.TrimSpace(fallback))
	if fb == "" {
		fb = "SPEAKER A"
	}
	c := strings.ToUpper(strings.TrimSpace(strings.TrimRight(strings.TrimSpace(raw), ":")))
	switch {
	case c == "", c == "UNKNOWN":
		return fb
	case strings.HasPrefix(c, "SPEAKER"):
		if suffix := strings.TrimSpace(c[len("SPEAKER"):]); suffix != "" {
			return "SPEAKER " + suffix
		}
		return "SPEAKER"
	case speakerLetterRe.MatchString(c), speakerNumericRe.MatchString(c):
		return "SPEAKER " + c
	}
	return c
}
