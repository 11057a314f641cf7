package detect

import (
	"errors"
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/MrCodeEU/facepca/pkg/logging"
)

// ErrEmptyCascade is returned when the cascade data is empty.
var ErrEmptyCascade = errors.New("empty cascade")

func init() {
	register("pigo", func(opts Options) (Detector, error) {
		d, err := LoadPigoDetector(opts.CascadeFile, opts)
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}

// PigoDetector detects faces with a pigo cascade classifier.
type PigoDetector struct {
	classifier *pigo.Pigo
	opts       Options
}

// NewPigoDetector unpacks a cascade (e.g. pigo's "facefinder") into a detector.
func NewPigoDetector(cascade []byte, opts Options) (*PigoDetector, error) {
	if len(cascade) == 0 {
		return nil, ErrEmptyCascade
	}
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade: %w", err)
	}
	return &PigoDetector{classifier: classifier, opts: opts}, nil
}

// LoadPigoDetector reads a cascade file and unpacks it.
func LoadPigoDetector(path string, opts Options) (*PigoDetector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade file %s: %w", path, err)
	}
	d, err := NewPigoDetector(data, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.Component("detect").Debugf("Loaded pigo cascade from %s", path)
	return d, nil
}

// Detect runs the cascade over img and returns the clustered detections
// whose quality reaches MinQuality.
func (d *PigoDetector) Detect(img *image.Gray) ([]Region, error) {
	b := img.Bounds()
	cols, rows := b.Dx(), b.Dy()
	if cols == 0 || rows == 0 {
		return nil, nil
	}

	params := pigo.CascadeParams{
		MinSize:     d.opts.MinSize,
		MaxSize:     d.opts.MaxSize,
		ShiftFactor: d.opts.ShiftFactor,
		ScaleFactor: d.opts.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: packed(img),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, d.opts.IoUThreshold)

	regions := fromDetections(dets, b, d.opts.MinQuality)
	logging.Component("detect").Debugf("pigo: %d raw clusters, %d faces", len(dets), len(regions))
	return regions, nil
}

// packed returns the pixels of img row by row without stride padding.
func packed(img *image.Gray) []uint8 {
	b := img.Bounds()
	if img.Stride == b.Dx() && b.Min == (image.Point{}) {
		return img.Pix[:b.Dx()*b.Dy()]
	}
	out := make([]uint8, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		start := img.PixOffset(b.Min.X, y)
		out = append(out, img.Pix[start:start+b.Dx()]...)
	}
	return out
}

// fromDetections converts pigo detections (centre and side length relative
// to the packed pixels) into regions in the coordinates of bounds.
func fromDetections(dets []pigo.Detection, bounds image.Rectangle, minQuality float64) []Region {
	regions := make([]Region, 0, len(dets))
	for _, det := range dets {
		if float64(det.Q) < minQuality {
			continue
		}
		r := Region{
			X:      bounds.Min.X + det.Col - det.Scale/2,
			Y:      bounds.Min.Y + det.Row - det.Scale/2,
			Width:  det.Scale,
			Height: det.Scale,
			Score:  float64(det.Q),
		}
		if r, ok := clip(r, bounds); ok {
			regions = append(regions, r)
		}
	}
	return regions
}
