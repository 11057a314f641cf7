// Package corpustest builds synthetic face corpora for tests.
package corpustest

import (
	"fmt"
	"image"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrCodeEU/facepca/pkg/corpus"
)

// Pattern returns a deterministic pseudo-random grayscale image for seed.
func Pattern(seed int64, width, height int) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

// Jitter returns a copy of base with every pixel shifted by at most amount,
// deterministically for seed.
func Jitter(base *image.Gray, seed int64, amount int) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	out := image.NewGray(base.Bounds())
	for i, v := range base.Pix {
		d := rng.Intn(2*amount+1) - amount
		p := int(v) + d
		if p < 0 {
			p = 0
		}
		if p > 255 {
			p = 255
		}
		out.Pix[i] = uint8(p)
	}
	return out
}

// Spec describes one synthetic person.
type Spec struct {
	Label string
	Count int
	// Identical makes every face of the label pixel-identical.
	Identical bool
}

// Faces generates faces for specs in order. Labels get distinct base
// patterns; faces within a label are jittered copies of the base unless
// Identical is set.
func Faces(specs []Spec, width, height int) []corpus.Face {
	var faces []corpus.Face
	for li, s := range specs {
		base := Pattern(int64(1000+li*7919), width, height)
		for i := 0; i < s.Count; i++ {
			img := base
			if !s.Identical {
				img = Jitter(base, int64(li*100+i+1), 12)
			}
			faces = append(faces, corpus.Face{Image: img, Label: s.Label})
		}
	}
	return faces
}

// New builds an in-memory corpus from specs and fails the test on error.
func New(t testing.TB, specs []Spec, width, height int) *corpus.Corpus {
	t.Helper()
	c, err := corpus.New(Faces(specs, width, height))
	if err != nil {
		t.Fatalf("failed to build corpus: %v", err)
	}
	return c
}

// WriteDir writes faces as PNG files under root/<label>/<nnn>.png and returns root.
func WriteDir(t testing.TB, root string, faces []corpus.Face) string {
	t.Helper()
	counts := make(map[string]int)
	for _, f := range faces {
		dir := filepath.Join(root, f.Label)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
		counts[f.Label]++
		WritePNG(t, filepath.Join(dir, fmt.Sprintf("%03d.png", counts[f.Label])), f.Image)
	}
	return root
}

// WritePNG encodes img to path.
func WritePNG(t testing.TB, path string, img image.Image) {
	t.Helper()
	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer out.Close()
	if err := png.Encode(out, img); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}
