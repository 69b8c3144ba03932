package thumbnail

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	tileColor  = color.NRGBA{R: 0xE4, G: 0xE7, B: 0xEB, A: 0xFF}
	labelColor = color.NRGBA{R: 0x4B, G: 0x55, B: 0x63, A: 0xFF}
)

// maxLabelChars keeps the label inside the tile
const maxLabelChars = 8

// Placeholder renders a flat square tile with label centered on it
func Placeholder(size int, label string) *image.NRGBA {
	tile := imaging.New(size, size, tileColor)
	if label == "" {
		return tile
	}
	if len(label) > maxLabelChars {
		label = label[:maxLabelChars]
	}

	text := renderLabel(label)
	// scale the 7x13 glyphs up to roughly half the tile width
	scale := max(1, size/2/text.Bounds().Dx())
	text = imaging.Resize(text, text.Bounds().Dx()*scale, text.Bounds().Dy()*scale, imaging.NearestNeighbor)

	return imaging.OverlayCenter(tile, text, 1.0)
}

func renderLabel(label string) *image.NRGBA {
	face := basicfont.Face7x13
	width := font.MeasureString(face, label).Ceil()
	height := face.Metrics().Height.Ceil()

	img := image.NewNRGBA(image.Rect(0, 0, max(width, 1), height))
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: face.Metrics().Ascent},
	}
	d.DrawString(label)
	return img
}

// writePlaceholder writes the tile for req at req.Target
func writePlaceholder(req Request) error {
	return save(Placeholder(req.MaxDimension, req.Label), req.Target)
}
