package transcript

import (
	"strings"
	"unicode/utf8"
)

// Wrap splits text into lines of at most maxWidth characters on word
// boundaries. A word longer than maxWidth gets a line of its own.
func Wrap(text string, maxWidth int) []string {
	if text == "" {
		return []string{""}
	}
	if maxWidth <= 0 {
		return []string{text}
	}

	var lines []string
	var cur []string
	curLen := 0

	for _, word := range strings.Fields(text) {
		need := utf8.RuneCountInString(word)
		if len(cur) > 0 {
			need++ // joining space
		}
		if curLen+need <= maxWidth {
			cur = append(cur, word)
			curLen += need
			continue
		}
		if len(cur) > 0 {
			lines = append(lines, strings.Join(cur, " "))
		}
		cur = []string{word}
		curLen = utf8.RuneCountInString(word)
	}
	if len(cur) > 0 {
		lines = append(lines, strings.Join(cur, " "))
	}

	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

// SpeakerPrefix renders the label that opens a new speaker block.
func SpeakerPrefix(speaker string) string {
	return strings.Repeat(" ", SpeakerPrefixSpaces) + strings.ToUpper(speaker) + SpeakerColon
}

// wrappedTurn is a turn's text laid out into transcript lines.
type wrappedTurn struct {
	lines    []string
	rendered []string
}

// wrapTurn lays out a turn. The first line of a new-speaker turn shares its
// width with the speaker prefix; everything else wraps at the continuation
// width.
func wrapTurn(speaker, text string, continuation bool) wrappedTurn {
	text = strings.TrimSpace(text)
	contPad := strings.Repeat(" ", ContinuationSpaces)
	contWidth := MaxContinuationWidth - ContinuationSpaces

	prefix := contPad
	firstWidth := contWidth
	if !continuation {
		prefix = SpeakerPrefix(speaker)
		firstWidth = MaxLineWidth - utf8.RuneCountInString(prefix)
	}

	first := Wrap(text, firstWidth)
	lines := []string{first[0]}
	if rest := strings.Join(first[1:], " "); rest != "" {
		lines = append(lines, Wrap(rest, contWidth)...)
	}

	rendered := make([]string, len(lines))
	rendered[0] = prefix + lines[0]
	for i := 1; i < len(lines); i++ {
		rendered[i] = contPad + lines[i]
	}
	return wrappedTurn{lines: lines, rendered: rendered}
}
