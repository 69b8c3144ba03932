package thumbnail

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/print-preflight/internal/rasterlimit/rasterlimittest"
)

func writeFixture(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	require.NoError(t, imaging.Save(img, path))
}

func TestGenerate_PreservesAspectRatio(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "wide.png")
	target := filepath.Join(dir, "thumb.jpg")
	writeFixture(t, src, 800, 400)

	placeholder, err := NewGenerator().Generate(context.Background(), Request{
		Source: src, Target: target, MaxDimension: 200,
	})
	require.NoError(t, err)
	assert.False(t, placeholder)

	img, err := imaging.Open(target)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())
}

func TestGenerate_SmallSourceIsNotUpscaled(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "small.png")
	target := filepath.Join(dir, "thumb.png")
	writeFixture(t, src, 50, 80)

	_, err := NewGenerator().Generate(context.Background(), Request{
		Source: src, Target: target, MaxDimension: 200,
	})
	require.NoError(t, err)

	img, err := imaging.Open(target)
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 80, img.Bounds().Dy())
}

func TestGenerate_FallsBackToPlaceholder(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "artwork.svg")
	target := filepath.Join(dir, "thumb.jpg")
	require.NoError(t, os.WriteFile(src, []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`), 0644))

	placeholder, err := NewGenerator().Generate(context.Background(), Request{
		Source: src, Target: target, MaxDimension: 120,
	})
	require.NoError(t, err)
	assert.True(t, placeholder)

	img, err := imaging.Open(target)
	require.NoError(t, err)
	assert.Equal(t, 120, img.Bounds().Dx())
	assert.Equal(t, 120, img.Bounds().Dy())
}

func TestGenerate_MissingSourceStillProducesPlaceholder(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "thumb.png")

	placeholder, err := NewGenerator().Generate(context.Background(), Request{
		Source: filepath.Join(dir, "gone.psd"), Target: target,
	})
	require.NoError(t, err)
	assert.True(t, placeholder)

	img, err := imaging.Open(target)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxDimension, img.Bounds().Dx())
}

func TestGenerate_BothStrategiesFail(t *testing.T) {
	dir := t.TempDir()
	// the target directory does not exist, so nothing can be written
	target := filepath.Join(dir, "missing", "thumb.jpg")

	_, err := NewGenerator().Generate(context.Background(), Request{
		Source: filepath.Join(dir, "gone.png"), Target: target, MaxDimension: 64,
	})
	assert.ErrorIs(t, err, ErrThumbnailFailed)
}

func TestPlaceholder(t *testing.T) {
	img := Placeholder(100, "PDF")
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())

	// corner keeps the tile color, the label darkens the middle band
	assert.Equal(t, tileColor, img.NRGBAAt(0, 0))

	var labelled bool
	for x := 0; x < 100 && !labelled; x++ {
		for y := 30; y < 70; y++ {
			if img.NRGBAAt(x, y) == labelColor {
				labelled = true
				break
			}
		}
	}
	assert.True(t, labelled)
}

func TestLabelFor(t *testing.T) {
	assert.Equal(t, "PSD", LabelFor("/uploads/poster.psd"))
	assert.Equal(t, "FILE", LabelFor("/uploads/noext"))
}

func TestGenerate_OversizedHeaderGetsPlaceholder(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "huge.png")
	target := filepath.Join(dir, "thumb.jpg")
	require.NoError(t, os.WriteFile(src, rasterlimittest.HeaderOnlyPNG(40000, 40000), 0644))

	placeholder, err := NewGenerator().Generate(context.Background(), Request{
		Source: src, Target: target, MaxDimension: 200,
	})
	require.NoError(t, err)
	assert.True(t, placeholder)
	assert.FileExists(t, target)
}
