// Package oncue reads and writes the OnCue deposition XML format.
//
// The writer emits the whole document on a single line with a fixed attribute
// order; downstream OnCue importers compare against that exact shape.
package oncue

import (
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/snarg/depo-engine/internal/transcript"
)

const (
	videoID = "1"

	nsXSD = "http://www.w3.org/2001/XMLSchema"
	nsXSI = "http://www.w3.org/2001/XMLSchema-instance"
)

// Title carries the case metadata that travels with a transcript.
type Title struct {
	CaseName     string `json:"CASE_NAME"`
	CaseNumber   string `json:"CASE_NUMBER"`
	Firm         string `json:"FIRM_OR_ORGANIZATION_NAME"`
	Date         string `json:"DATE"`
	Time         string `json:"TIME"`
	Location     string `json:"LOCATION"`
	FileName     string `json:"FILE_NAME"`
	FileDuration string `json:"FILE_DURATION"`
	MediaID      string `json:"MEDIA_ID,omitempty"`
}

// ResolvedMediaID is MEDIA_ID, or the file name without its extension.
func (t Title) ResolvedMediaID() string {
	if t.MediaID != "" {
		return t.MediaID
	}
	name := t.FileName
	if name == "" {
		name = "deposition"
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func (t Title) resolvedFileName() string {
	if t.FileName == "" {
		return "audio.mp3"
	}
	return t.FileName
}

// Marshal renders line entries as a single-line OnCue document.
func Marshal(lines []transcript.LineEntry, title Title, audioDuration float64, linesPerPage int) []byte {
	var b strings.Builder

	b.WriteString(`<onCue`)
	attr(&b, "xmlns:xsd", nsXSD)
	attr(&b, "xmlns:xsi", nsXSI)
	b.WriteString(`><deposition`)
	attr(&b, "mediaId", title.ResolvedMediaID())
	attr(&b, "linesPerPage", strconv.Itoa(linesPerPage))
	if title.Date != "" {
		attr(&b, "date", title.Date)
	}

	lastPGLN := transcript.FirstPGLN
	if len(lines) > 0 {
		lastPGLN = lines[len(lines)-1].PGLN
	}

	b.WriteString(`><depoVideo`)
	attr(&b, "ID", videoID)
	attr(&b, "filename", title.resolvedFileName())
	attr(&b, "startTime", "0")
	attr(&b, "stopTime", strconv.Itoa(int(math.RoundToEven(audioDuration))))
	attr(&b, "firstPGLN", strconv.Itoa(transcript.FirstPGLN))
	attr(&b, "lastPGLN", strconv.Itoa(lastPGLN))
	attr(&b, "startTuned", "no")
	attr(&b, "stopTuned", "no")
	b.WriteString(`>`)

	for _, l := range lines {
		b.WriteString(`<depoLine`)
		attr(&b, "prefix", "")
		attr(&b, "text", l.RenderedText)
		attr(&b, "page", strconv.Itoa(l.Page))
		attr(&b, "line", strconv.Itoa(l.Line))
		attr(&b, "pgLN", strconv.Itoa(l.PGLN))
		attr(&b, "videoID", videoID)
		attr(&b, "videoStart", seconds(l.Start))
		attr(&b, "videoStop", seconds(max(l.End, l.Start)))
		attr(&b, "isEdited", "no")
		attr(&b, "isSynched", "yes")
		attr(&b, "isRedacted", "no")
		b.WriteString(` />`)
	}

	b.WriteString(`</depoVideo></deposition></onCue>`)
	return []byte(b.String())
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"\r", "&#13;",
	"\n", "&#10;",
	"\t", "&#09;",
)

func attr(b *strings.Builder, name, value string) {
	b.WriteByte(' ')
	b.WriteString(name)
	b.WriteString(`="`)
	attrEscaper.WriteString(b, value)
	b.WriteByte('"')
}
