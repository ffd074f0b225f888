package transcript

import (
	"strings"
	"unicode"
)

// NormalizeToken lower-cases a token, unifies curly apostrophes and strips
// every non-word character.
func NormalizeToken(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("’", "'", "‘", "'").Replace(s)
	s = strings.Map(func(r rune) rune {
		if isWordRune(r) {
			return r
		}
		return -1
	}, s)
	return strings.Trim(s, "_")
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// LineMatch is the timing recovered for one wrapped line.
type LineMatch struct {
	Start           float64 // seconds
	Stop            float64 // seconds
	Consumed        int     // matched words; 0 means the line could not be matched
	Cursor          int     // index of the first word not scanned
	BoundaryMissing bool
}

// OK reports whether at least one word matched.
func (m LineMatch) OK() bool { return m.Consumed > 0 }

// MatchLine finds the words of lineText in words, starting at offset and only
// ever moving forward. A line token matches a word when their normalized forms
// are equal or one contains the other, which absorbs ASR word splits/merges.
func MatchLine(lineText string, words []Word, offset int) LineMatch {
	fail := LineMatch{Cursor: offset, BoundaryMissing: true}
	if len(words) == 0 || strings.TrimSpace(lineText) == "" {
		return fail
	}
	if offset < 0 {
		offset = 0
	}

	var tokens []string
	for _, raw := range strings.Fields(lineText) {
		if n := NormalizeToken(raw); n != "" {
			tokens = append(tokens, n)
		}
	}
	if len(tokens) == 0 {
		return fail
	}

	first, last := -1, -1
	matched := 0
	cursor := offset
	ti := 0
	for cursor < len(words) && ti < len(tokens) {
		tok := tokens[ti]
		cand := NormalizeToken(words[cursor].Text)
		if cand == tok || (cand != "" && (strings.Contains(cand, tok) || strings.Contains(tok, cand))) {
			if first < 0 {
				first = cursor
			}
			last = cursor
			matched++
			ti++
		}
		cursor++
	}

	if matched == 0 {
		fail.Cursor = cursor
		return fail
	}

	fw, lw := words[first], words[last]
	m := LineMatch{
		Consumed:        matched,
		Cursor:          cursor,
		BoundaryMissing: fw.Start == nil || lw.End == nil,
	}
	if fw.Start != nil {
		m.Start = *fw.Start / 1000
	}
	if lw.End != nil {
		m.Stop = *lw.End / 1000
	}
	return m
}
