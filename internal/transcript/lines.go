package transcript

import (
	"sort"
	"strconv"
	"strings"
)

// LineWord is a word timing attached to an edited line, in seconds.
type LineWord struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// EditedLine is a line as sent back by an editor or parsed from an import.
type EditedLine struct {
	ID             string     `json:"id"`
	Speaker        string     `json:"speaker"`
	Text           string     `json:"text"`
	Start          float64    `json:"start"`
	End            float64    `json:"end"`
	Page           int        `json:"page,omitempty"`
	Line           int        `json:"line,omitempty"`
	PGLN           int        `json:"pgln,omitempty"`
	IsContinuation bool       `json:"is_continuation"`
	TimestampError bool       `json:"timestamp_error"`
	Words          []LineWord `json:"words,omitempty"`
}

// NormalizeTurns trims text, fixes inverted word timings and re-derives
// continuation flags. The input slice is not modified.
func NormalizeTurns(in []Turn) []Turn {
	out := make([]Turn, 0, len(in))
	for _, t := range in {
		t.Speaker = strings.TrimSpace(t.Speaker)
		if t.Speaker == "" {
			t.Speaker = "SPEAKER"
		}
		t.Text = strings.TrimSpace(t.Text)
		if len(t.Words) > 0 {
			words := make([]Word, len(t.Words))
			copy(words, t.Words)
			for i := range words {
				words[i].Normalize()
			}
			t.Words = words
		}
		out = append(out, t)
	}
	MarkContinuations(out)
	return out
}

// NormalizeLines clamps line timing into [0, duration], upper-cases speakers
// and sorts by start time unless any line carries a timestamp error. It
// returns the effective duration, extended to the latest line end.
func NormalizeLines(lines []EditedLine, duration float64) ([]EditedLine, float64) {
	out := make([]EditedLine, len(lines))
	maxEnd := duration
	anyErr := false

	for i, l := range lines {
		if l.End < l.Start {
			l.End = l.Start
		}
		if duration > 0 {
			l.Start = clamp(l.Start, 0, duration)
			l.End = clamp(l.End, 0, duration)
		} else {
			l.Start = max(l.Start, 0)
			l.End = max(l.End, l.Start)
		}
		l.Speaker = strings.ToUpper(strings.TrimSpace(l.Speaker))
		if l.Speaker == "" {
			l.Speaker = "SPEAKER"
		}
		l.Text = strings.TrimSpace(l.Text)
		if l.ID == "" {
			l.ID = strconv.Itoa(i)
		}
		anyErr = anyErr || l.TimestampError
		maxEnd = max(maxEnd, l.End)
		out[i] = l
	}

	if !anyErr {
		sort.SliceStable(out, func(a, b int) bool { return out[a].Start < out[b].Start })
	}
	return out, maxEnd
}

// TurnsFromLines regroups consecutive lines by speaker into turns. Lines
// without word timing get evenly spread synthetic word timings.
func TurnsFromLines(lines []EditedLine) []Turn {
	var turns []Turn
	var cur *Turn
	var parts []string
	var curStart float64

	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = strings.TrimSpace(strings.Join(parts, " "))
		cur.Timestamp = SecondsToTimestamp(curStart)
		turns = append(turns, *cur)
		cur, parts = nil, nil
	}

	for _, l := range lines {
		speaker := strings.ToUpper(strings.TrimSpace(l.Speaker))
		if speaker == "" {
			speaker = "SPEAKER"
		}
		if cur == nil || cur.Speaker != speaker {
			flush()
			cur = &Turn{Speaker: speaker}
			curStart = l.Start
		}
		text := strings.TrimSpace(l.Text)
		if text != "" {
			parts = append(parts, text)
		}

		if len(l.Words) > 0 {
			for _, lw := range l.Words {
				wt := strings.TrimSpace(lw.Text)
				if wt == "" {
					continue
				}
				w := NewWord(wt, lw.Start*1000, lw.End*1000)
				w.Speaker = speaker
				cur.Words = append(cur.Words, w)
			}
			continue
		}

		tokens := strings.Fields(text)
		if len(tokens) == 0 {
			continue
		}
		dur := max(l.End-l.Start, 0.01)
		count := float64(len(tokens))
		for i, tok := range tokens {
			ws := l.Start + dur*float64(i)/count
			we := l.End
			if i < len(tokens)-1 {
				we = l.Start + dur*float64(i+1)/count
			}
			w := NewWord(tok, ws*1000, we*1000)
			w.Speaker = speaker
			cur.Words = append(cur.Words, w)
		}
	}
	flush()

	MarkContinuations(turns)
	return turns
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
