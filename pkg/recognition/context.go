// Package recognition identifies faces against a reference corpus and
// annotates images with the results.
//
// A Context holds the corpus and the eigenface model fitted on it. It is
// built once and shared read-only by every caller.
package recognition

import (
	"fmt"
	"image"

	"github.com/MrCodeEU/facepca/pkg/corpus"
	"github.com/MrCodeEU/facepca/pkg/eigenface"
	"github.com/MrCodeEU/facepca/pkg/logging"
)

// Context is a corpus together with the model fitted on all of its faces.
type Context struct {
	corpus *corpus.Corpus
	model  *eigenface.Model
}

// Result identifies the training face closest to a query.
type Result struct {
	Index    int     `json:"index"`
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
}

// NewContext fits a rank-k model on every face of c.
func NewContext(c *corpus.Corpus, rank int) (*Context, error) {
	model, err := eigenface.Fit(c.Matrix(), rank)
	if err != nil {
		return nil, fmt.Errorf("failed to fit corpus model: %w", err)
	}

	logging.Component("recognition").WithFields(logging.Fields{
		"faces": c.Len(),
		"rank":  rank,
	}).Info("Recognition context ready")

	return &Context{corpus: c, model: model}, nil
}

// Corpus returns the reference corpus.
func (ctx *Context) Corpus() *corpus.Corpus { return ctx.corpus }

// Model returns the model fitted on the whole corpus.
func (ctx *Context) Model() *eigenface.Model { return ctx.model }

// Recognize converts face to grayscale, resizes it to the corpus dimensions
// and returns the nearest training face.
func (ctx *Context) Recognize(face image.Image) (Result, error) {
	gray := corpus.Normalize(face, ctx.corpus.Width(), ctx.corpus.Height())

	match, err := ctx.model.Match(corpus.Flatten(gray))
	if err != nil {
		return Result{}, err
	}

	return Result{
		Index:    match.Index,
		Label:    ctx.corpus.Label(match.Index),
		Distance: match.Distance,
	}, nil
}
