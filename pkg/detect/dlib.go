//go:build dlib

package detect

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/Kagami/go-face"

	"github.com/MrCodeEU/facepca/pkg/logging"
)

// ErrModelNotLoaded is returned when the dlib models are not loaded.
var ErrModelNotLoaded = errors.New("dlib models not loaded")

func init() {
	register("dlib", func(opts Options) (Detector, error) {
		d := NewDlibDetector()
		if err := d.LoadModels(opts.ModelPath); err != nil {
			return nil, err
		}
		return d, nil
	})
}

// FaceEngine is the part of go-face's Recognizer the detector uses.
type FaceEngine interface {
	Recognize(imgData []byte) ([]face.Face, error)
	Close()
}

// DlibDetector detects faces with dlib through go-face.
type DlibDetector struct {
	engine    FaceEngine
	factory   func(modelPath string) (FaceEngine, error)
	modelPath string
	loaded    bool
	mu        sync.RWMutex
}

// NewDlibDetector creates a detector; LoadModels must be called before Detect.
func NewDlibDetector() *DlibDetector {
	return &DlibDetector{
		factory: func(modelPath string) (FaceEngine, error) {
			return face.NewRecognizer(modelPath)
		},
	}
}

// LoadModels loads the dlib models from modelPath. The directory must contain
// shape_predictor_5_face_landmarks.dat and
// dlib_face_recognition_resnet_model_v1.dat.
func (d *DlibDetector) LoadModels(modelPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loaded {
		return nil
	}

	logging.Component("detect").Infof("Loading dlib models from %s", modelPath)

	engine, err := d.factory(modelPath)
	if err != nil {
		return fmt.Errorf("failed to load dlib models from %s: %w", modelPath, err)
	}

	d.engine = engine
	d.modelPath = modelPath
	d.loaded = true
	return nil
}

// IsLoaded reports whether the models are loaded.
func (d *DlibDetector) IsLoaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

// Close releases the dlib resources.
func (d *DlibDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.engine != nil {
		d.engine.Close()
		d.engine = nil
	}
	d.loaded = false
	return nil
}

// Detect returns the face rectangles dlib finds in img.
func (d *DlibDetector) Detect(img *image.Gray) ([]Region, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.loaded {
		return nil, ErrModelNotLoaded
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	faces, err := d.engine.Recognize(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("dlib detection failed: %w", err)
	}

	// go-face sees the image from the origin; shift back into img's bounds.
	b := img.Bounds()
	regions := make([]Region, 0, len(faces))
	for _, f := range faces {
		r := Region{
			X:      b.Min.X + f.Rectangle.Min.X,
			Y:      b.Min.Y + f.Rectangle.Min.Y,
			Width:  f.Rectangle.Dx(),
			Height: f.Rectangle.Dy(),
			Score:  1.0, // go-face reports no confidence
		}
		if r, ok := clip(r, b); ok {
			regions = append(regions, r)
		}
	}

	logging.Component("detect").Debugf("dlib: %d faces", len(regions))
	return regions, nil
}
