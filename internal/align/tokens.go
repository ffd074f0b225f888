// Package align re-times a transcript against its audio with a forced
// alignment service and rebuilds speaker turns from the aligned words.
package align

import (
	"strings"
	"unicode"

	"github.com/snarg/depo-engine/internal/transcript"
)

var quoteReplacer = strings.NewReplacer(
	"’", "'", "‘", "'",
	"“", `"`, "”", `"`,
)

func isSplitRune(r rune) bool {
	switch r {
	case '-', '–', '—', '/', '\\':
		return true
	}
	return false
}

// NormalizeToken turns one whitespace-delimited token into the plain
// lower-case parts the aligner expects. Dashes and slashes split a token;
// "well-known" yields ["well", "known"]. Tokens with no word characters yield
// nothing.
func NormalizeToken(token string) []string {
	if token == "" {
		return nil
	}
	s := quoteReplacer.Replace(token)
	s = strings.Map(func(r rune) rune {
		if isSplitRune(r) {
			return ' '
		}
		return r
	}, s)

	var parts []string
	for _, part := range strings.Fields(s) {
		cleaned := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_' {
				return unicode.ToLower(r)
			}
			return -1
		}, part)
		cleaned = strings.Trim(cleaned, "_")
		if cleaned != "" {
			parts = append(parts, cleaned)
		}
	}
	return parts
}

// Flatten produces the aligner's plain-text token stream and, indexed
// identically, the speaker each token came from.
func Flatten(turns []transcript.Turn) (tokens, speakerPerWord []string) {
	for _, t := range turns {
		for _, field := range strings.Fields(t.Text) {
			for _, part := range NormalizeToken(field) {
				tokens = append(tokens, part)
				speakerPerWord = append(speakerPerWord, t.Speaker)
			}
		}
	}
	return tokens, speakerPerWord
}
