package oncue

import (
	"encoding/hex"

	"github.com/snarg/depo-engine/internal/transcript"
	"lukechampine.com/blake3"
)

// Document is the turns-plus-metadata input accepted by the HTTP export
// endpoint, the hot folder and the CLI.
type Document struct {
	Turns              []transcript.Turn `json:"turns"`
	AudioDuration      float64           `json:"audio_duration"`
	LinesPerPage       int               `json:"lines_per_page,omitempty"`
	EnforceMinDuration *bool             `json:"enforce_min_duration,omitempty"`
	Title              Title             `json:"title_data"`
}

// Options overlays the document's layout choices on base.
func (d *Document) Options(base transcript.Options) transcript.Options {
	opts := base
	if d.LinesPerPage != 0 {
		opts.LinesPerPage = d.LinesPerPage
	}
	if d.EnforceMinDuration != nil {
		opts.EnforceMinDuration = *d.EnforceMinDuration
	}
	return opts
}

// Rendered is a document run through the full pipeline.
type Rendered struct {
	Turns       []transcript.Turn
	Options     transcript.Options
	Pagination  *transcript.Pagination
	ContentHash string
	XML         []byte
}

// Render normalizes, paginates and serializes a document.
func Render(d *Document, base transcript.Options) (*Rendered, error) {
	turns := transcript.NormalizeTurns(d.Turns)
	opts := d.Options(base)

	p, err := transcript.Paginate(turns, d.AudioDuration, opts)
	if err != nil {
		return nil, err
	}
	hash, err := transcript.ContentHash(turns, d.AudioDuration, opts)
	if err != nil {
		return nil, err
	}
	return &Rendered{
		Turns:       turns,
		Options:     opts,
		Pagination:  p,
		ContentHash: hash,
		XML:         Marshal(p.Lines, d.Title, d.AudioDuration, opts.LinesPerPage),
	}, nil
}

// TimestampErrors counts lines whose timing was interpolated.
func (r *Rendered) TimestampErrors() int {
	n := 0
	for _, l := range r.Pagination.Lines {
		if l.TimestampError {
			n++
		}
	}
	return n
}

// ETag identifies the exact export bytes. Unlike ContentHash it changes
// with the title data.
func (r *Rendered) ETag() string {
	sum := blake3.Sum256(r.XML)
	return hex.EncodeToString(sum[:16])
}
