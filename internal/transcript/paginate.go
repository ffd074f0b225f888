package transcript

import (
	"fmt"
	"strings"
)

// Options controls pagination.
type Options struct {
	LinesPerPage       int
	MinLineDuration    float64 // seconds; <= 0 disables redistribution
	EnforceMinDuration bool
}

// DefaultOptions returns 25 lines per page with a 1.25s duration floor.
func DefaultOptions() Options {
	return Options{
		LinesPerPage:       DefaultLinesPerPage,
		MinLineDuration:    DefaultMinLineDuration,
		EnforceMinDuration: true,
	}
}

// Pagination is the output of Paginate.
type Pagination struct {
	Lines    []LineEntry `json:"lines"`
	LastPGLN int         `json:"last_pgln"`
}

type span struct{ start, end float64 }

// Paginate wraps every turn into transcript lines, assigns page/line
// addresses and per-line timing, then optionally widens short lines.
func Paginate(turns []Turn, audioDuration float64, opts Options) (*Pagination, error) {
	if len(turns) == 0 {
		return nil, ErrNoUsableTurns
	}
	if opts.LinesPerPage <= 0 || opts.LinesPerPage > 99 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLinesPerPage, opts.LinesPerPage)
	}

	out := &Pagination{LastPGLN: FirstPGLN}
	addr := FirstAddress()
	first := true

	for ti, turn := range turns {
		start, stop := turnBounds(turns, ti, audioDuration)
		speaker := strings.ToUpper(turn.Speaker)
		wt := wrapTurn(turn.Speaker, turn.Text, turn.IsContinuation)
		timings, errs := timeLines(wt.lines, turn.Words, start, stop)

		for li := range wt.lines {
			if !first {
				addr = addr.Next(opts.LinesPerPage)
			}
			first = false

			e := LineEntry{
				ID:               fmt.Sprintf("%d-%d", ti, li),
				TurnIndex:        ti,
				LineIndex:        li,
				Speaker:          speaker,
				Text:             wt.lines[li],
				RenderedText:     wt.rendered[li],
				Start:            timings[li].start,
				End:              timings[li].end,
				IsContinuation:   li > 0 || turn.IsContinuation,
				TotalLinesInTurn: len(wt.lines),
				TimestampError:   errs[li],
			}
			e.setAddress(addr)
			out.Lines = append(out.Lines, e)
			out.LastPGLN = e.PGLN
		}
	}

	if len(out.Lines) == 0 {
		return nil, ErrNoUsableTurns
	}

	if opts.EnforceMinDuration && opts.MinLineDuration > 0 {
		EnforceMinDuration(out.Lines, audioDuration, opts.MinLineDuration)
	}
	return out, nil
}

// turnBounds returns a turn's [start, stop] in seconds. Word timing wins;
// otherwise the turn's timestamp up to the next turn's (or the audio end).
func turnBounds(turns []Turn, i int, audioDuration float64) (float64, float64) {
	t := turns[i]
	start := TimestampToSeconds(t.Timestamp)
	stop := -1.0

	minStart, maxEnd := -1.0, -1.0
	for _, w := range t.Words {
		if w.Start != nil && *w.Start >= 0 && (minStart < 0 || *w.Start < minStart) {
			minStart = *w.Start
		}
		if w.End != nil && *w.End >= 0 && *w.End > maxEnd {
			maxEnd = *w.End
		}
	}
	if minStart >= 0 && maxEnd >= 0 {
		start = minStart / 1000
		stop = maxEnd / 1000
	}

	if stop < 0 {
		if i+1 < len(turns) {
			stop = TimestampToSeconds(turns[i+1].Timestamp)
		} else {
			stop = audioDuration
		}
	}
	if stop < start {
		stop = start
	}
	return start, stop
}

// timeLines assigns a span to every line using word matches. Unmatched lines
// are flagged and interpolated between their timed neighbours, or the turn
// bounds when there are none.
func timeLines(lines []string, words []Word, start, stop float64) ([]span, []bool) {
	n := len(lines)
	timed := make([]*span, n)
	errs := make([]bool, n)

	if len(words) == 0 {
		for i := range errs {
			errs[i] = true
		}
	} else {
		offset := 0
		for i, text := range lines {
			m := MatchLine(text, words, offset)
			if !m.OK() {
				errs[i] = true
				continue
			}
			s := span{start: m.Start, end: m.Stop}
			if s.end < s.start {
				s.end = s.start
			}
			timed[i] = &s
			errs[i] = m.BoundaryMissing
			offset += m.Consumed
		}
	}

	out := make([]span, 0, n)
	prevEnd := start
	for i := 0; i < n; {
		if timed[i] != nil {
			out = append(out, *timed[i])
			prevEnd = timed[i].end
			i++
			continue
		}
		j := i
		for j < n && timed[j] == nil {
			j++
		}
		nextStart := stop
		if j < n {
			nextStart = timed[j].start
		}
		block := interpolate(prevEnd, nextStart, j-i)
		out = append(out, block...)
		prevEnd = block[len(block)-1].end
		i = j
	}
	return out, errs
}

// interpolate splits [from, to] into count equal spans.
func interpolate(from, to float64, count int) []span {
	if to < from {
		to = from
	}
	step := (to - from) / float64(count)
	out := make([]span, count)
	for i := range out {
		out[i] = span{start: from + step*float64(i), end: from + step*float64(i+1)}
	}
	out[count-1].end = to
	return out
}
