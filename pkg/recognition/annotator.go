package recognition

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/MrCodeEU/facepca/pkg/annotate"
	"github.com/MrCodeEU/facepca/pkg/corpus"
	"github.com/MrCodeEU/facepca/pkg/detect"
	"github.com/MrCodeEU/facepca/pkg/logging"
)

// AccuracySource reports the held-out accuracy of a corpus.
// evaluation.Cache and evaluation.Evaluator both satisfy it.
type AccuracySource interface {
	Accuracy(c *corpus.Corpus) (float64, error)
}

// Detection is one recognized face of an input image.
type Detection struct {
	Region   detect.Region `json:"region"`
	Result   Result        `json:"result"`
	Accuracy float64       `json:"accuracy"`
}

// Label returns the text drawn above the face, e.g. "alice 87.50%".
func (d Detection) Label() string {
	return fmt.Sprintf("%s %.2f%%", d.Result.Label, d.Accuracy*100)
}

// Annotator detects, recognizes and labels faces.
type Annotator struct {
	ctx      *Context
	detector detect.Detector
	accuracy AccuracySource
	style    annotate.Style
}

// NewAnnotator wires a context to a detector and an accuracy source.
func NewAnnotator(ctx *Context, detector detect.Detector, accuracy AccuracySource, style annotate.Style) *Annotator {
	return &Annotator{
		ctx:      ctx,
		detector: detector,
		accuracy: accuracy,
		style:    style,
	}
}

// Context returns the recognition context.
func (a *Annotator) Context() *Context { return a.ctx }

// Detect finds and recognizes every face of img without drawing. Regions are
// in the coordinates of img. Accuracy is looked up once per call, and only if
// a face was found.
func (a *Annotator) Detect(img image.Image) ([]Detection, error) {
	gray := corpus.Grayscale(img)

	regions, err := a.detector.Detect(gray)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}
	if len(regions) == 0 {
		return nil, nil
	}

	accuracy, err := a.accuracy.Accuracy(a.ctx.corpus)
	if err != nil {
		return nil, fmt.Errorf("failed to compute accuracy: %w", err)
	}

	offset := img.Bounds().Min
	detections := make([]Detection, 0, len(regions))
	for _, r := range regions {
		face := imaging.Crop(gray, r.Rect())
		result, err := a.ctx.Recognize(face)
		if err != nil {
			return nil, fmt.Errorf("failed to recognize region %v: %w", r.Rect(), err)
		}

		r.X += offset.X
		r.Y += offset.Y
		detections = append(detections, Detection{Region: r, Result: result, Accuracy: accuracy})
	}

	logging.Component("recognition").Debugf("Recognized %d face(s)", len(detections))
	return detections, nil
}

// Annotate returns img with a box and a label drawn for every face. img is
// never modified: without faces it is returned as is, otherwise the drawing
// happens on a copy.
func (a *Annotator) Annotate(img image.Image) (image.Image, []Detection, error) {
	detections, err := a.Detect(img)
	if err != nil {
		return nil, nil, err
	}
	if len(detections) == 0 {
		return img, nil, nil
	}

	annotations := make([]annotate.Annotation, len(detections))
	for i, d := range detections {
		annotations[i] = annotate.Annotation{Rect: d.Region.Rect(), Label: d.Label()}
	}
	return a.style.Draw(img, annotations), detections, nil
}
