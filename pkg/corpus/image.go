package corpus

import (
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// IsImageFile reports whether the file name has a decodable image extension.
func IsImageFile(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// Grayscale returns a copy of img converted to 8-bit luma with its origin at (0,0).
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// Normalize converts img to grayscale and resizes it to width × height.
func Normalize(img image.Image, width, height int) *image.Gray {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return Grayscale(img)
	}
	return Grayscale(imaging.Resize(Grayscale(img), width, height, imaging.Linear))
}

// Flatten returns the intensities of img concatenated row by row.
func Flatten(img *image.Gray) []float64 {
	b := img.Bounds()
	out := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			out = append(out, float64(row[x]))
		}
	}
	return out
}
