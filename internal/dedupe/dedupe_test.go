package dedupe

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_StableAndContentAddressed(t *testing.T) {
	a, err := Key(strings.NewReader("same bytes"))
	require.NoError(t, err)
	b, err := Key(strings.NewReader("same bytes"))
	require.NoError(t, err)
	c, err := Key(strings.NewReader("other bytes"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestHasher_MatchesOneShot(t *testing.T) {
	data := bytes.Repeat([]byte("preflight"), 1000)

	h := NewHasher()
	var copied bytes.Buffer
	_, err := io.Copy(io.MultiWriter(&copied, h), bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, data, copied.Bytes())
	assert.Equal(t, xxhash.Sum64(data), h.d.Sum64())
}
