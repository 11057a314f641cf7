package camera

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/MrCodeEU/facepca/pkg/corpus"
)

// DirectorySource replays the image files of a directory in name order.
type DirectorySource struct {
	dir    string
	files  []string
	mirror bool

	mu     sync.Mutex
	next   int
	isOpen bool
}

// OpenDirectory lists the images of dir. Subdirectories and non-image files
// are ignored.
func OpenDirectory(dir string, mirrored bool) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !corpus.IsImageFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	return &DirectorySource{dir: dir, files: files, mirror: mirrored, isOpen: true}, nil
}

// Len returns the number of frames in the directory.
func (s *DirectorySource) Len() int { return len(s.files) }

// ReadFrame decodes the next image.
func (s *DirectorySource) ReadFrame() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isOpen {
		return nil, ErrCameraNotOpen
	}
	if s.next >= len(s.files) {
		return nil, io.EOF
	}

	path := s.files[s.next]
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoFrame, path, err)
	}
	if s.mirror {
		img = mirror(img)
	}

	frame := &Frame{Image: img, Index: s.next, Source: path, Timestamp: time.Now()}
	s.next++
	return frame, nil
}

// Close stops the source; further reads fail with ErrCameraNotOpen.
func (s *DirectorySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isOpen = false
	return nil
}
