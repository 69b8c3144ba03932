package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPContentReader(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/contents/c1/download", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	})
	mux.HandleFunc("/api/v1/contents/c1/details", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"file_name": "art.png", "file_size": 7, "mime_type": "image/png",
		})
	})
	mux.HandleFunc("/api/v1/contents/c1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cr := NewHTTPContentReader(srv.URL)
	ctx := context.Background()

	rc, err := cr.GetReaderByContentID(ctx, "c1")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "payload", string(data))

	ok, err := cr.Exists(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cr.Exists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	meta, err := cr.GetMetadata(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "image/png", meta.ContentType)
	assert.Equal(t, int64(7), meta.Size)
}

func TestHTTPDerivedWriter(t *testing.T) {
	var (
		gotVariant string
		gotFile    []byte
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/contents/c1/derived", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			assert.Equal(t, "preflight_thumbnail", r.URL.Query().Get("derivation_type"))
			json.NewEncoder(w).Encode([]map[string]string{
				{"derivation_type": "preflight_thumbnail", "variant": "preflight_thumbnail_v1"},
			})
			return
		}
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotVariant = r.FormValue("variant")
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		gotFile, _ = io.ReadAll(f)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "d1"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dw := NewHTTPDerivedWriter(srv.URL)
	ctx := context.Background()

	has, err := dw.HasDerived(ctx, "c1", "preflight_thumbnail", 1)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = dw.HasDerived(ctx, "c1", "preflight_thumbnail", 2)
	require.NoError(t, err)
	assert.False(t, has)

	binary := "\x89PNG\x00\xff"
	id, err := dw.PutDerived(ctx, "c1", "preflight_raster", 3, strings.NewReader(binary),
		map[string]string{"file_name": "raster.png"})
	require.NoError(t, err)
	assert.Equal(t, "d1", id)
	assert.Equal(t, "preflight_raster_v3", gotVariant)
	assert.Equal(t, []byte(binary), gotFile)
}
