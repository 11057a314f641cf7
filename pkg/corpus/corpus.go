// Package corpus loads the labeled reference faces used to fit and evaluate
// eigenface models.
//
// A corpus directory holds one subdirectory per person; the subdirectory name
// is the label and every image inside it is one reference face:
//
//	root/<label>/<image-file>
//
// All faces are stored as grayscale images of identical size, so they can be
// flattened and stacked into a single pixels × images matrix. The order of
// faces, labels and matrix columns is the same everywhere.
package corpus

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"sort"

	"golang.org/x/crypto/blake2b"
	"gonum.org/v1/gonum/mat"
)

// ErrEmptyCorpus is returned when no reference face is found.
var ErrEmptyCorpus = errors.New("corpus contains no faces")

// ErrShapeMismatch is returned when faces do not share the same pixel dimensions.
var ErrShapeMismatch = errors.New("face dimensions differ")

// Face is one labeled reference image.
type Face struct {
	Image *image.Gray
	Label string
	Path  string
}

// Corpus is an immutable, ordered collection of labeled faces.
type Corpus struct {
	faces       []Face
	width       int
	height      int
	fingerprint string
}

// New builds a corpus from faces, keeping their order.
// Every face must have the dimensions of the first one.
func New(faces []Face) (*Corpus, error) {
	if len(faces) == 0 {
		return nil, ErrEmptyCorpus
	}

	first := faces[0].Image.Bounds()
	width, height := first.Dx(), first.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrShapeMismatch, describe(faces[0], 0))
	}

	for i, f := range faces[1:] {
		b := f.Image.Bounds()
		if b.Dx() != width || b.Dy() != height {
			return nil, fmt.Errorf("%w: %s is %dx%d, expected %dx%d",
				ErrShapeMismatch, describe(f, i+1), b.Dx(), b.Dy(), width, height)
		}
	}

	c := &Corpus{
		faces:  append([]Face(nil), faces...),
		width:  width,
		height: height,
	}
	c.fingerprint = c.computeFingerprint()
	return c, nil
}

func describe(f Face, index int) string {
	if f.Path != "" {
		return f.Path
	}
	return fmt.Sprintf("face %d (%s)", index, f.Label)
}

// Len returns the number of faces.
func (c *Corpus) Len() int { return len(c.faces) }

// Width returns the face width in pixels.
func (c *Corpus) Width() int { return c.width }

// Height returns the face height in pixels.
func (c *Corpus) Height() int { return c.height }

// Pixels returns the length of a flattened face.
func (c *Corpus) Pixels() int { return c.width * c.height }

// Face returns the i-th face.
func (c *Corpus) Face(i int) Face { return c.faces[i] }

// Label returns the label of the i-th face.
func (c *Corpus) Label(i int) string { return c.faces[i].Label }

// Labels returns the label of every face, in corpus order.
func (c *Corpus) Labels() []string {
	labels := make([]string, len(c.faces))
	for i, f := range c.faces {
		labels[i] = f.Label
	}
	return labels
}

// Distinct returns the sorted set of labels with their face counts.
func (c *Corpus) Distinct() ([]string, map[string]int) {
	counts := make(map[string]int)
	for _, f := range c.faces {
		counts[f.Label]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, counts
}

// Fingerprint returns a hex digest of the corpus content (dimensions, labels
// and pixels, in order). Two corpora with the same fingerprint produce the
// same models and the same held-out accuracy.
func (c *Corpus) Fingerprint() string { return c.fingerprint }

// Matrix returns a new pixels × images matrix; column j is face j flattened
// row by row.
func (c *Corpus) Matrix() *mat.Dense {
	p, n := c.Pixels(), len(c.faces)
	data := make([]float64, p*n)
	for j, f := range c.faces {
		for i, v := range Flatten(f.Image) {
			data[i*n+j] = v
		}
	}
	return mat.NewDense(p, n, data)
}

// Subset returns a corpus made of the faces at the given indices, in that order.
func (c *Corpus) Subset(indices []int) (*Corpus, error) {
	faces := make([]Face, len(indices))
	for k, i := range indices {
		if i < 0 || i >= len(c.faces) {
			return nil, fmt.Errorf("subset index %d out of range [0,%d)", i, len(c.faces))
		}
		faces[k] = c.faces[i]
	}
	return New(faces)
}

func (c *Corpus) computeFingerprint() string {
	h, _ := blake2b.New256(nil)

	var header [12]byte
	binary.LittleEndian.PutUint32(header[0:], uint32(c.width))
	binary.LittleEndian.PutUint32(header[4:], uint32(c.height))
	binary.LittleEndian.PutUint32(header[8:], uint32(len(c.faces)))
	h.Write(header[:])

	var size [4]byte
	for _, f := range c.faces {
		binary.LittleEndian.PutUint32(size[:], uint32(len(f.Label)))
		h.Write(size[:])
		h.Write([]byte(f.Label))

		b := f.Image.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			start := f.Image.PixOffset(b.Min.X, y)
			h.Write(f.Image.Pix[start : start+b.Dx()])
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}
