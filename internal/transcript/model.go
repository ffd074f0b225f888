package transcript

import (
	"errors"
	"fmt"
)

// Layout constants for fixed-width legal transcript lines.
const (
	SpeakerPrefixSpaces  = 10
	ContinuationSpaces   = 0
	SpeakerColon         = ":   "
	MaxLineWidth         = 64
	MaxContinuationWidth = 64

	DefaultLinesPerPage    = 25
	DefaultMinLineDuration = 1.25 // seconds

	FirstPGLN = 101
)

var (
	ErrNoUsableTurns       = errors.New("no usable turns")
	ErrInvalidLinesPerPage = errors.New("lines per page must be between 1 and 99")
)

// Word is a timestamped word from a transcription provider or aligner.
// Start and End are milliseconds; nil means the provider gave no timing.
type Word struct {
	Text       string   `json:"text"`
	Start      *float64 `json:"start"`
	End        *float64 `json:"end"`
	Confidence *float64 `json:"confidence,omitempty"`
	Speaker    string   `json:"speaker,omitempty"`
}

// NewWord builds a word with both boundaries present, correcting end < start.
func NewWord(text string, startMs, endMs float64) Word {
	w := Word{Text: text}
	w.SetTiming(startMs, endMs)
	return w
}

// SetTiming stores start/end in ms, clamping start to >= 0 and end to >= start.
func (w *Word) SetTiming(startMs, endMs float64) {
	if startMs < 0 {
		startMs = 0
	}
	if endMs < startMs {
		endMs = startMs
	}
	w.Start = &startMs
	w.End = &endMs
}

// HasTiming reports whether both boundaries are present and non-negative.
func (w Word) HasTiming() bool {
	return w.Start != nil && w.End != nil && *w.Start >= 0 && *w.End >= 0
}

// Normalize fixes providers that emit end < start.
func (w *Word) Normalize() {
	if w.Start != nil && w.End != nil && *w.End < *w.Start {
		end := *w.Start
		w.End = &end
	}
}

// Turn is one contiguous speaker utterance.
type Turn struct {
	Speaker        string `json:"speaker"`
	Text           string `json:"text"`
	Timestamp      string `json:"timestamp,omitempty"`
	Words          []Word `json:"words,omitempty"`
	IsContinuation bool   `json:"is_continuation"`
}

// Address is a page/line position in the paginated transcript.
type Address struct {
	page int
	line int
}

// NewAddress validates page >= 1 and 1 <= line <= 99 so that PGLN stays unambiguous.
func NewAddress(page, line int) (Address, error) {
	if page < 1 {
		return Address{}, fmt.Errorf("invalid page %d", page)
	}
	if line < 1 || line > 99 {
		return Address{}, fmt.Errorf("invalid line %d", line)
	}
	return Address{page: page, line: line}, nil
}

// FirstAddress is page 1, line 1.
func FirstAddress() Address { return Address{page: 1, line: 1} }

func (a Address) Page() int { return a.page }
func (a Address) Line() int { return a.line }

// PGLN returns page*100 + line.
func (a Address) PGLN() int { return a.page*100 + a.line }

// Next returns the following address, rolling to a new page after linesPerPage.
func (a Address) Next(linesPerPage int) Address {
	if a.line+1 > linesPerPage {
		return Address{page: a.page + 1, line: 1}
	}
	return Address{page: a.page, line: a.line + 1}
}

// LineEntry is one wrapped, addressed and timed transcript line.
type LineEntry struct {
	ID               string  `json:"id"`
	TurnIndex        int     `json:"turn_index"`
	LineIndex        int     `json:"line_index"`
	Speaker          string  `json:"speaker"`
	Text             string  `json:"text"`
	RenderedText     string  `json:"rendered_text"`
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Page             int     `json:"page"`
	Line             int     `json:"line"`
	PGLN             int     `json:"pgln"`
	IsContinuation   bool    `json:"is_continuation"`
	TotalLinesInTurn int     `json:"total_lines_in_turn"`
	TimestampError   bool    `json:"timestamp_error"`
}

func (e *LineEntry) setAddress(a Address) {
	e.Page = a.Page()
	e.Line = a.Line()
	e.PGLN = a.PGLN()
}
