// Package camera provides the frames of the live recognition loop.
// Frames come either from a V4L2 webcam read through ffmpeg or from a
// directory of still images replayed in name order.
package camera

import (
	"errors"
	"image"
	"time"

	"github.com/disintegration/imaging"
)

// Frame is a single captured image.
type Frame struct {
	Image     image.Image
	Index     int
	Source    string // device path or file path
	Timestamp time.Time
}

// Source yields frames in order. ReadFrame returns io.EOF once a finite
// source is exhausted.
type Source interface {
	ReadFrame() (*Frame, error)
	Close() error
}

// ErrCameraNotFound is returned when the camera device is not found.
var ErrCameraNotFound = errors.New("camera device not found")

// ErrCameraNotOpen is returned when reading from a closed source.
var ErrCameraNotOpen = errors.New("camera not open")

// ErrNoFrame is returned when no frame could be captured.
var ErrNoFrame = errors.New("failed to capture frame")

// mirror flips img horizontally, like a webcam preview.
func mirror(img image.Image) image.Image {
	return imaging.FlipH(img)
}
