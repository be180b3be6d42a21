package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-migrate/internal/domain"
)

func TestPrefetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("img:" + r.URL.Path))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFetcher(Options{Dir: dir, Workers: 2}, nil)
	refs := []domain.MediaRef{
		{OldID: 1, URL: srv.URL + "/cover.png", Role: "thumbnail"},
		{OldID: 2, URL: srv.URL + "/missing.png", Role: "gallery"},
		{OldID: 3, URL: "", Role: "gallery"},
	}

	got := f.Prefetch(context.Background(), refs)
	require.Len(t, got, 3)

	ok := got[1]
	require.NoError(t, ok.Err)
	assert.Equal(t, "image/png", ok.ContentType)
	b, err := os.ReadFile(ok.Path)
	require.NoError(t, err)
	assert.Equal(t, "img:/cover.png", string(b))

	assert.Error(t, got[2].Err)
	assert.Error(t, got[3].Err)
	assert.Equal(t, int64(3), got[3].Ref.OldID)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "7-cover.png", FileName(domain.MediaRef{OldID: 7, URL: "https://cdn.example/a/cover.png?x=1"}))
	assert.Equal(t, "8-file", FileName(domain.MediaRef{OldID: 8, URL: "https://cdn.example/"}))
}
