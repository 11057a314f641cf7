package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/MrCodeEU/facepca/pkg/logging"
)

// Entry is one image file found by Scan.
type Entry struct {
	Label string
	Path  string
}

// Option configures Load.
type Option func(*loadOptions)

type loadOptions struct {
	width, height int
	progress      func(Entry)
}

// WithSize requires every face to be width × height pixels.
func WithSize(width, height int) Option {
	return func(o *loadOptions) {
		o.width, o.height = width, height
	}
}

// WithProgress registers a callback invoked after each face is decoded.
func WithProgress(fn func(Entry)) Option {
	return func(o *loadOptions) {
		o.progress = fn
	}
}

// Scan lists the image files of a corpus directory in load order:
// label directories by name, then files by name. Hidden entries, loose files
// at the root, nested directories and files without an image extension are
// skipped.
func Scan(root string) ([]Entry, error) {
	log := logging.Component("corpus")

	dirs, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus directory %s: %w", root, err)
	}

	var entries []Entry
	for _, dir := range dirs {
		if !dir.IsDir() || hidden(dir.Name()) {
			continue
		}

		labelDir := filepath.Join(root, dir.Name())
		files, err := os.ReadDir(labelDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read label directory %s: %w", labelDir, err)
		}

		for _, file := range files {
			if file.IsDir() || hidden(file.Name()) {
				continue
			}
			if !IsImageFile(file.Name()) {
				log.Debugf("Skipping non-image file %s", filepath.Join(labelDir, file.Name()))
				continue
			}
			entries = append(entries, Entry{
				Label: dir.Name(),
				Path:  filepath.Join(labelDir, file.Name()),
			})
		}
	}

	return entries, nil
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// Load reads a corpus directory into memory.
func Load(root string, opts ...Option) (*Corpus, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	entries, err := Scan(root)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCorpus, root)
	}

	faces := make([]Face, 0, len(entries))
	for _, e := range entries {
		img, err := imaging.Open(e.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load face %s: %w", e.Path, err)
		}

		gray := Grayscale(img)
		if o.width > 0 {
			b := gray.Bounds()
			if b.Dx() != o.width || b.Dy() != o.height {
				return nil, fmt.Errorf("%w: %s is %dx%d, expected %dx%d",
					ErrShapeMismatch, e.Path, b.Dx(), b.Dy(), o.width, o.height)
			}
		}

		faces = append(faces, Face{Image: gray, Label: e.Label, Path: e.Path})
		if o.progress != nil {
			o.progress(e)
		}
	}

	c, err := New(faces)
	if err != nil {
		return nil, err
	}

	labels, _ := c.Distinct()
	logging.Component("corpus").WithFields(logging.Fields{
		"root":   root,
		"faces":  c.Len(),
		"labels": len(labels),
		"size":   fmt.Sprintf("%dx%d", c.Width(), c.Height()),
	}).Info("Corpus loaded")

	return c, nil
}
