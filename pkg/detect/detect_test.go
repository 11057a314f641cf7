package detect

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	pigo "github.com/esimov/pigo/core"
)

func TestRegion_Rect(t *testing.T) {
	r := Region{X: 3, Y: 4, Width: 10, Height: 20}
	if got, want := r.Rect(), image.Rect(3, 4, 13, 24); got != want {
		t.Errorf("Rect() = %v, want %v", got, want)
	}
}

func TestFunc(t *testing.T) {
	want := []Region{{X: 1, Y: 2, Width: 3, Height: 4}}
	var d Detector = Func(func(img *image.Gray) ([]Region, error) {
		return want, nil
	})

	got, err := d.Detect(image.NewGray(image.Rect(0, 0, 1, 1)))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Detect() = %v, want %v", got, want)
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(Options{Backend: "opencv"})
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestNew_PigoMissingCascade(t *testing.T) {
	opts := DefaultOptions()
	opts.CascadeFile = filepath.Join(t.TempDir(), "facefinder")

	d, err := New(opts)
	if err == nil {
		t.Fatal("expected error for missing cascade file")
	}
	if d != nil {
		t.Errorf("expected nil detector, got %T", d)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestNewPigoDetector_EmptyCascade(t *testing.T) {
	_, err := NewPigoDetector(nil, DefaultOptions())
	if !errors.Is(err, ErrEmptyCascade) {
		t.Errorf("expected ErrEmptyCascade, got %v", err)
	}
}

func TestBackends(t *testing.T) {
	found := false
	for _, name := range Backends() {
		if name == "pigo" {
			found = true
		}
	}
	if !found {
		t.Errorf("pigo backend not registered: %v", Backends())
	}
}

func TestFromDetections(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 80)
	dets := []pigo.Detection{
		{Row: 40, Col: 50, Scale: 20, Q: 9.5},
		{Row: 10, Col: 10, Scale: 30, Q: 7},   // clipped at the top-left corner
		{Row: 40, Col: 50, Scale: 20, Q: 2},   // below quality threshold
		{Row: 500, Col: 500, Scale: 10, Q: 8}, // outside the frame
	}

	got := fromDetections(dets, bounds, 5)
	want := []Region{
		{X: 40, Y: 30, Width: 20, Height: 20, Score: 9.5},
		{X: 0, Y: 0, Width: 25, Height: 25, Score: 7},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("fromDetections() = %+v, want %+v", got, want)
	}
}

func TestFromDetections_OffsetBounds(t *testing.T) {
	bounds := image.Rect(100, 200, 200, 300)
	got := fromDetections([]pigo.Detection{{Row: 50, Col: 50, Scale: 10, Q: 6}}, bounds, 5)

	want := []Region{{X: 145, Y: 245, Width: 10, Height: 10, Score: 6}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("fromDetections() = %+v, want %+v", got, want)
	}
}

func TestPacked(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 3))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}

	if got := packed(img); !reflect.DeepEqual(got, img.Pix) {
		t.Errorf("packed(full) = %v", got)
	}

	sub := img.SubImage(image.Rect(1, 1, 3, 3)).(*image.Gray)
	if got, want := packed(sub), []uint8{5, 6, 9, 10}; !reflect.DeepEqual(got, want) {
		t.Errorf("packed(sub) = %v, want %v", got, want)
	}
}

// TestPigoDetector_Cascade runs the real classifier when a cascade file is
// provided, e.g. FACEPCA_TEST_CASCADE=~/.local/share/facepca/cascade/facefinder.
func TestPigoDetector_Cascade(t *testing.T) {
	path := os.Getenv("FACEPCA_TEST_CASCADE")
	if path == "" {
		t.Skip("FACEPCA_TEST_CASCADE not set")
	}

	d, err := LoadPigoDetector(path, DefaultOptions())
	if err != nil {
		t.Fatalf("LoadPigoDetector failed: %v", err)
	}

	// A flat image has no faces.
	img := image.NewGray(image.Rect(0, 0, 160, 120))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	regions, err := d.Detect(img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(regions) != 0 {
		t.Errorf("expected no faces in a flat image, got %v", regions)
	}
}

func TestClip(t *testing.T) {
	bounds := image.Rect(0, 0, 10, 10)

	tests := []struct {
		name string
		in   Region
		want Region
		ok   bool
	}{
		{"inside", Region{X: 1, Y: 1, Width: 3, Height: 3}, Region{X: 1, Y: 1, Width: 3, Height: 3}, true},
		{"overlapping", Region{X: 8, Y: -2, Width: 5, Height: 5}, Region{X: 8, Y: 0, Width: 2, Height: 3}, true},
		{"outside", Region{X: 20, Y: 20, Width: 5, Height: 5}, Region{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := clip(tt.in, bounds)
			if ok != tt.ok || got != tt.want {
				t.Errorf("clip() = %+v, %v; want %+v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}
