package oncue

import (
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/snarg/depo-engine/internal/transcript"
)

type document struct {
	XMLName    xml.Name   `xml:"onCue"`
	Deposition deposition `xml:"deposition"`
}

type deposition struct {
	Attrs []xml.Attr `xml:",any,attr"`
	Video depoVideo  `xml:"depoVideo"`
}

type depoVideo struct {
	Attrs []xml.Attr `xml:",any,attr"`
	Lines []depoLine `xml:"depoLine"`
}

type depoLine struct {
	Text       string `xml:"text,attr"`
	Page       string `xml:"page,attr"`
	Line       string `xml:"line,attr"`
	PGLN       string `xml:"pgLN,attr"`
	VideoStart string `xml:"videoStart,attr"`
	VideoStop  string `xml:"videoStop,attr"`
}

// Imported is a parsed OnCue document.
type Imported struct {
	Lines         []transcript.EditedLine `json:"lines"`
	Title         Title                   `json:"title_data"`
	AudioDuration float64                 `json:"audio_duration"`
}

// Parse reads an OnCue document back into editable lines. Speaker labels are
// recovered from the "NAME:   text" rendering; lines without a label continue
// the previous speaker.
func Parse(data []byte) (*Imported, error) {
	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid OnCue XML: %w", err)
	}

	dep := doc.Deposition
	title := Title{
		CaseName:   firstAttr(dep.Attrs, "caseName", "case", "case_name", "caption"),
		CaseNumber: firstAttr(dep.Attrs, "caseNumber", "caseNo", "case_number"),
		Firm:       firstAttr(dep.Attrs, "firm", "firmName", "organization", "organizationName", "firmOrOrganization"),
		Date:       firstAttr(dep.Attrs, "date"),
		Time:       firstAttr(dep.Attrs, "time"),
		Location:   firstAttr(dep.Attrs, "location", "place"),
		MediaID:    firstAttr(dep.Attrs, "mediaId", "mediaID"),
	}
	title.FileName = firstAttr(dep.Video.Attrs, "filename")
	if title.FileName == "" {
		title.FileName = firstAttr(dep.Attrs, "filename", "fileName", "file_name")
	}
	if title.FileName == "" {
		title.FileName = "imported.xml"
	}

	out := &Imported{}
	current := ""
	for i, dl := range dep.Video.Lines {
		start := parseFloat(dl.VideoStart, 0)
		stop := parseFloat(dl.VideoStop, start)

		trimmed := strings.TrimLeft(dl.Text, " \t")
		speaker := current
		text := trimmed
		cont := true
		switch {
		case trimmed == "":
			text = ""
		case strings.Contains(trimmed, transcript.SpeakerColon):
			name, rest, _ := strings.Cut(trimmed, transcript.SpeakerColon)
			if strings.TrimSpace(name) != "" {
				speaker = strings.ToUpper(strings.TrimSpace(name))
				text = strings.TrimSpace(rest)
				cont = false
			}
		case current == "":
			speaker = "SPEAKER"
			text = strings.TrimSpace(trimmed)
			cont = false
		}
		if speaker == "" {
			speaker = "SPEAKER"
		}
		current = speaker
		out.AudioDuration = max(out.AudioDuration, stop)

		id := dl.PGLN
		if id == "" {
			id = strconv.Itoa(i)
		}
		out.Lines = append(out.Lines, transcript.EditedLine{
			ID:             id,
			Speaker:        speaker,
			Text:           text,
			Start:          start,
			End:            stop,
			Page:           parseInt(dl.Page),
			Line:           parseInt(dl.Line),
			PGLN:           parseInt(dl.PGLN),
			IsContinuation: cont,
		})
	}

	title.FileDuration = formatDuration(out.AudioDuration)
	out.Title = title
	return out, nil
}

func firstAttr(attrs []xml.Attr, keys ...string) string {
	for _, k := range keys {
		for _, a := range attrs {
			if a.Name.Local == k && strings.TrimSpace(a.Value) != "" {
				return strings.TrimSpace(a.Value)
			}
		}
	}
	return ""
}

func parseFloat(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseInt(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func formatDuration(sec float64) string {
	total := int(math.Round(max(sec, 0)))
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}
