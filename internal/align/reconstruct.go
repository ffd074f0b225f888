package align

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/snarg/depo-engine/internal/transcript"
)

var msPerSecond = decimal.NewFromInt(1000)

// Reconstruct rebuilds speaker turns from aligned elements. The i-th text
// element takes speakerPerWord[i]; when the aligner returns more words than
// were submitted, the last known speaker is reused. Word values come from the
// aligner, so its corrections carry into the new turns.
func Reconstruct(elements []Element, speakerPerWord []string) []transcript.Turn {
	var (
		turns   []transcript.Turn
		cur     *transcript.Turn
		texts   []string
		idx     int
		lastEnd float64
	)

	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = strings.Join(texts, " ")
		turns = append(turns, *cur)
		cur = nil
		texts = nil
	}

	for _, el := range elements {
		if el.Type != "text" {
			continue
		}
		value := strings.TrimSpace(el.Value)
		if value == "" {
			continue
		}

		speaker := speakerAt(speakerPerWord, idx)
		idx++

		start := lastEnd
		if el.Ts != nil {
			start = toMillis(*el.Ts)
		}
		end := start
		if el.EndTs != nil {
			end = toMillis(*el.EndTs)
		}

		w := transcript.NewWord(value, start, end)
		w.Confidence = el.Confidence
		w.Speaker = speaker
		lastEnd = *w.End

		if cur == nil || cur.Speaker != speaker {
			flush()
			cur = &transcript.Turn{
				Speaker:   speaker,
				Timestamp: transcript.SecondsToTimestamp(*w.Start / 1000),
			}
		}
		cur.Words = append(cur.Words, w)
		texts = append(texts, value)
	}
	flush()

	transcript.MarkContinuations(turns)
	return turns
}

func speakerAt(speakerPerWord []string, i int) string {
	if len(speakerPerWord) == 0 {
		return ""
	}
	if i >= len(speakerPerWord) {
		return speakerPerWord[len(speakerPerWord)-1]
	}
	return speakerPerWord[i]
}

func toMillis(sec decimal.Decimal) float64 {
	return sec.Mul(msPerSecond).InexactFloat64()
}
