package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/print-preflight/internal/convert"
	"github.com/tendant/print-preflight/internal/engine"
	"github.com/tendant/print-preflight/internal/metadata"
	"github.com/tendant/print-preflight/internal/policy"
	"github.com/tendant/print-preflight/internal/thumbnail"
	"github.com/tendant/print-preflight/internal/toolexec"
	"github.com/tendant/print-preflight/internal/toolexec/toolexectest"
	"github.com/tendant/print-preflight/pkg/preflight"
)

func fakeTools(ctx context.Context, cmd toolexec.Command) ([]byte, error) {
	args := cmd.String()
	switch {
	case cmd.Name == "identify" && strings.Contains(args, "photo.jpg"):
		return []byte("1200|800|200|200|PixelsPerInch|sRGB|srgba|JPEG\n"), nil
	case cmd.Name == "identify":
		return []byte("40|40|300|300|PixelsPerInch|sRGB|srgba|PNG\n"), nil
	}
	return nil, errors.New(cmd.Name + ": cannot render")
}

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	runner := toolexectest.New(fakeTools)
	return engine.New(
		metadata.NewExtractor(runner, metadata.DefaultTools(), 0),
		convert.NewOrchestrator(runner, convert.DefaultTools(), nil),
		thumbnail.NewGenerator(),
		engine.Options{WorkDir: filepath.Join(t.TempDir(), "runs")},
	)
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 6), G: uint8(y * 6), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func decodeLines(t *testing.T, out *bytes.Buffer) []fileResult {
	t.Helper()
	var results []fileResult
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		var r fileResult
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		results = append(results, r)
	}
	return results
}

func TestRun_CleanFileWithThumbnail(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "art.png")
	writePNG(t, src)
	thumbs := filepath.Join(dir, "thumbs")

	var out bytes.Buffer
	code := run(context.Background(), testEngine(t), policy.NewResolver(policy.DefaultTable()),
		options{Tier: "free", ThumbDir: thumbs, Jobs: 2}, []string{src}, &out)
	assert.Equal(t, exitOK, code)

	results := decodeLines(t, &out)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Result)
	assert.Equal(t, preflight.StatusOK, results[0].Result.Overall)
	assert.Empty(t, results[0].Result.ThumbnailPath)
	assert.Equal(t, filepath.Join(thumbs, "art.thumb.jpg"), results[0].Thumbnail)
	assert.FileExists(t, results[0].Thumbnail)
}

func TestRun_ExitCodeIsWorstFile(t *testing.T) {
	dir := t.TempDir()
	clean := filepath.Join(dir, "art.png")
	writePNG(t, clean)
	photo := filepath.Join(dir, "photo.jpg")
	require.NoError(t, os.WriteFile(photo, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}, 0644))
	broken := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(broken, []byte("%PDF-1.4\ngarbage"), 0644))
	resolver := policy.NewResolver(policy.DefaultTable())

	var out bytes.Buffer
	code := run(context.Background(), testEngine(t), resolver, options{Tier: "free"}, []string{clean, photo}, &out)
	assert.Equal(t, exitWarning, code)

	out.Reset()
	code = run(context.Background(), testEngine(t), resolver, options{Tier: "pro", Jobs: 1},
		[]string{clean, broken, photo, filepath.Join(dir, "missing.png")}, &out)
	assert.Equal(t, exitFailed, code)

	results := decodeLines(t, &out)
	require.Len(t, results, 4)
	assert.Equal(t, clean, results[0].File)
	assert.Equal(t, broken, results[1].File)
	assert.Contains(t, results[1].Error, "cannot render")
	assert.Nil(t, results[1].Result)
	assert.Equal(t, preflight.StatusWarning, results[2].Result.Overall)
	assert.NotEmpty(t, results[3].Error)
}

func TestRun_RejectedFormatFails(t *testing.T) {
	src := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("not artwork at all"), 0644))

	var out bytes.Buffer
	code := run(context.Background(), testEngine(t), policy.NewResolver(policy.DefaultTable()),
		options{Tier: "free", MIME: "image/png"}, []string{src}, &out)
	assert.Equal(t, exitFailed, code)

	results := decodeLines(t, &out)
	require.Len(t, results, 1)
	assert.Equal(t, preflight.StatusError, results[0].Result.Overall)
}

func TestThumbName(t *testing.T) {
	assert.Equal(t, "flyer.thumb.jpg", thumbName("/tmp/in/flyer.pdf"))
	assert.Equal(t, "noext.thumb.jpg", thumbName("noext"))
}

func TestRun_DashNamedFileIsPassedAsPath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writePNG(t, filepath.Join(dir, "-density.png"))

	runner := toolexectest.New(fakeTools)
	eng := engine.New(
		metadata.NewExtractor(runner, metadata.DefaultTools(), 0),
		convert.NewOrchestrator(runner, convert.DefaultTools(), nil),
		thumbnail.NewGenerator(),
		engine.Options{WorkDir: filepath.Join(dir, "runs")},
	)

	var out bytes.Buffer
	code := run(context.Background(), eng, policy.NewResolver(policy.DefaultTable()),
		options{Tier: "free"}, []string{"-density.png"}, &out)
	assert.Equal(t, exitOK, code)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	last := calls[0].Args[len(calls[0].Args)-1]
	assert.Equal(t, "png:"+toolexec.PathArg("-density.png")+"[0]", last)
	for _, a := range calls[0].Args {
		assert.False(t, strings.HasPrefix(a, "-density"), a)
	}
}
