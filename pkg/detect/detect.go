// Package detect finds face regions in grayscale images.
//
// The default backend is a pigo cascade classifier, which is pure Go and
// needs only a cascade file. A dlib backend (go-face) is available when
// building with the "dlib" tag.
package detect

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"
)

// ErrUnknownBackend is returned by New for a backend that is not compiled in.
var ErrUnknownBackend = errors.New("unknown detector backend")

// Region is an axis-aligned face rectangle in image coordinates.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
	// Score is the backend's confidence; its scale depends on the backend.
	Score float64 `json:"score"`
}

// Rect returns the region as an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Detector returns the face regions of a grayscale image. An image without
// faces yields an empty slice and no error.
type Detector interface {
	Detect(img *image.Gray) ([]Region, error)
}

// Func adapts a function to the Detector interface.
type Func func(img *image.Gray) ([]Region, error)

// Detect calls f(img).
func (f Func) Detect(img *image.Gray) ([]Region, error) { return f(img) }

// Options configures a detector backend.
type Options struct {
	Backend     string
	CascadeFile string
	ModelPath   string

	MinSize      int
	MaxSize      int
	ShiftFactor  float64
	ScaleFactor  float64
	IoUThreshold float64
	MinQuality   float64
}

// DefaultOptions returns the pigo settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Backend:      "pigo",
		MinSize:      20,
		MaxSize:      1000,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinQuality:   5.0,
	}
}

type factory func(Options) (Detector, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]factory{}
)

func register(name string, f factory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = f
}

// Backends returns the names of the compiled-in backends.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the detector named by opts.Backend.
func New(opts Options) (Detector, error) {
	backendsMu.RLock()
	f, ok := backends[opts.Backend]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, opts.Backend, Backends())
	}
	return f(opts)
}

// clip intersects r with bounds and drops it if nothing remains.
func clip(r Region, bounds image.Rectangle) (Region, bool) {
	rect := r.Rect().Intersect(bounds)
	if rect.Empty() {
		return Region{}, false
	}
	r.X, r.Y = rect.Min.X, rect.Min.Y
	r.Width, r.Height = rect.Dx(), rect.Dy()
	return r, true
}
