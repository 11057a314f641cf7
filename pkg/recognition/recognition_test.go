package recognition

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrCodeEU/facepca/pkg/annotate"
	"github.com/MrCodeEU/facepca/pkg/corpus"
	"github.com/MrCodeEU/facepca/pkg/corpus/corpustest"
	"github.com/MrCodeEU/facepca/pkg/detect"
	"github.com/MrCodeEU/facepca/pkg/eigenface"
)

const faceSize = 8

type countingAccuracy struct {
	value float64
	err   error
	calls int
}

func (c *countingAccuracy) Accuracy(*corpus.Corpus) (float64, error) {
	c.calls++
	return c.value, c.err
}

func testContext(t *testing.T) *Context {
	t.Helper()
	c := corpustest.New(t, []corpustest.Spec{
		{Label: "alice", Count: 2, Identical: true},
		{Label: "bob", Count: 2, Identical: true},
		{Label: "carol", Count: 2, Identical: true},
	}, faceSize, faceSize)

	ctx, err := NewContext(c, 2)
	require.NoError(t, err)
	return ctx
}

// scene pastes faces onto a flat 60x40 RGBA background at the given points.
func scene(faces map[image.Point]*image.Gray) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 60, 40))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 40, G: 40, B: 40, A: 255}), image.Point{}, draw.Src)
	for at, f := range faces {
		draw.Draw(img, f.Bounds().Add(at), f, image.Point{}, draw.Src)
	}
	return img
}

func regionsAt(points ...image.Point) detect.Detector {
	return detect.Func(func(*image.Gray) ([]detect.Region, error) {
		regions := make([]detect.Region, len(points))
		for i, p := range points {
			regions[i] = detect.Region{X: p.X, Y: p.Y, Width: faceSize, Height: faceSize, Score: 1}
		}
		return regions, nil
	})
}

func TestNewContext_RankOutOfRange(t *testing.T) {
	c := corpustest.New(t, []corpustest.Spec{{Label: "alone", Count: 1}}, 4, 4)
	_, err := NewContext(c, 1)
	assert.ErrorIs(t, err, eigenface.ErrRankOutOfRange)
}

func TestRecognize_TrainingFace(t *testing.T) {
	ctx := testContext(t)

	for j := 0; j < ctx.Corpus().Len(); j++ {
		res, err := ctx.Recognize(ctx.Corpus().Face(j).Image)
		require.NoError(t, err)
		assert.Equal(t, ctx.Corpus().Label(j), res.Label)
		// Identical faces resolve to the first of their label.
		assert.Equal(t, j-j%2, res.Index)
		assert.Zero(t, res.Distance)
	}
}

func TestRecognize_ResizesAndConvertsInput(t *testing.T) {
	ctx := testContext(t)
	bob := ctx.Corpus().Face(2).Image

	big := imaging.Resize(bob, faceSize*3, faceSize*3, imaging.NearestNeighbor)
	res, err := ctx.Recognize(big)
	require.NoError(t, err)
	assert.Equal(t, "bob", res.Label)
}

func TestAnnotate_NoFacesReturnsInputUnchanged(t *testing.T) {
	ctx := testContext(t)
	acc := &countingAccuracy{value: 0.5}
	a := NewAnnotator(ctx, regionsAt(), acc, annotate.DefaultStyle())

	img := scene(nil)
	before := append([]uint8(nil), img.Pix...)

	out, detections, err := a.Annotate(img)
	require.NoError(t, err)
	assert.Empty(t, detections)
	assert.Same(t, img, out.(*image.RGBA))
	assert.Equal(t, before, img.Pix)
	assert.Zero(t, acc.calls, "accuracy must not be computed without faces")
}

func TestAnnotate_LabelsEveryFace(t *testing.T) {
	ctx := testContext(t)
	acc := &countingAccuracy{value: 0.875}
	alice, carol := ctx.Corpus().Face(0).Image, ctx.Corpus().Face(4).Image

	img := scene(map[image.Point]*image.Gray{
		{X: 5, Y: 20}:  alice,
		{X: 40, Y: 25}: carol,
	})
	before := append([]uint8(nil), img.Pix...)

	a := NewAnnotator(ctx, regionsAt(image.Pt(5, 20), image.Pt(40, 25)), acc, annotate.DefaultStyle())
	out, detections, err := a.Annotate(img)
	require.NoError(t, err)

	require.Len(t, detections, 2)
	assert.Equal(t, "alice", detections[0].Result.Label)
	assert.Equal(t, "carol", detections[1].Result.Label)
	assert.Equal(t, "alice 87.50%", detections[0].Label())
	assert.Equal(t, 1, acc.calls, "accuracy is computed once per image")

	assert.Equal(t, before, img.Pix, "input must not be modified")
	rgba, ok := out.(*image.RGBA)
	require.True(t, ok)
	assert.Equal(t, annotate.Red, rgba.RGBAAt(5, 20))
	assert.Equal(t, annotate.Red, rgba.RGBAAt(40, 25))
}

func TestDetect_OffsetInputBounds(t *testing.T) {
	ctx := testContext(t)
	bob := ctx.Corpus().Face(2).Image

	full := scene(map[image.Point]*image.Gray{{X: 30, Y: 20}: bob})
	sub := full.SubImage(image.Rect(20, 10, 60, 40))

	// The detector sees the image from the origin.
	a := NewAnnotator(ctx, regionsAt(image.Pt(10, 10)), &countingAccuracy{value: 1}, annotate.DefaultStyle())
	detections, err := a.Detect(sub)
	require.NoError(t, err)

	require.Len(t, detections, 1)
	assert.Equal(t, "bob", detections[0].Result.Label)
	assert.Equal(t, image.Rect(30, 20, 38, 28), detections[0].Region.Rect())
}

func TestAnnotate_DetectorError(t *testing.T) {
	ctx := testContext(t)
	failing := detect.Func(func(*image.Gray) ([]detect.Region, error) {
		return nil, errors.New("cascade exploded")
	})

	_, _, err := NewAnnotator(ctx, failing, &countingAccuracy{}, annotate.DefaultStyle()).Annotate(scene(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cascade exploded")
}

func TestAnnotate_AccuracyError(t *testing.T) {
	ctx := testContext(t)
	acc := &countingAccuracy{err: errors.New("no split")}

	_, _, err := NewAnnotator(ctx, regionsAt(image.Pt(0, 0)), acc, annotate.DefaultStyle()).Annotate(scene(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no split")
}
