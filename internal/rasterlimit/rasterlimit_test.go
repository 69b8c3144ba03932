package rasterlimit

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/print-preflight/internal/rasterlimit/rasterlimittest"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		w, h     int
		tooLarge bool
		wantErr  bool
	}{
		{name: "small", w: 100, h: 100},
		{name: "at dimension limit", w: MaxDimension, h: 1},
		{name: "at pixel limit", w: 8192, h: 8192},
		{name: "wide", w: MaxDimension + 1, h: 1, tooLarge: true, wantErr: true},
		{name: "too many pixels", w: 10000, h: 10000, tooLarge: true, wantErr: true},
		{name: "zero", w: 0, h: 10, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.w, tt.h)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.tooLarge, errors.Is(err, ErrTooLarge))
		})
	}
}

func TestOpen_RejectsOversizedHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "huge.png")
	require.NoError(t, os.WriteFile(path, rasterlimittest.HeaderOnlyPNG(40000, 40000), 0o644))

	cfg, err := Check(path)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, 40000, cfg.Width)

	img, err := Open(path)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Nil(t, img)
}

func TestOpen_DecodesWithinLimits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewNRGBA(image.Rect(0, 0, 12, 7))))
	require.NoError(t, f.Close())

	img, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 12, img.Bounds().Dx())
	assert.Equal(t, 7, img.Bounds().Dy())
}
