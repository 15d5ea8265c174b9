package gcs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "archive", Prefix: "/raw/"})
	require.NoError(t, err)
	return store
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, Config{Bucket: "b"})
	assert.Error(t, err)
}

func TestPutObjectUploadsWithPrefix(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/archive/o")
		assert.Equal(t, "raw/jobsge/101/abc.html", r.URL.Query().Get("name"))
		assert.Equal(t, "0", r.URL.Query().Get("ifGenerationMatch"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "<html>101</html>")
		_, _ = io.WriteString(w, `{"name":"raw/jobsge/101/abc.html","bucket":"archive"}`)
	})
	store := newTestStore(t, handler)

	uri, err := store.PutObject(context.Background(), "jobsge/101/abc.html", "text/html", strings.NewReader("<html>101</html>"))
	require.NoError(t, err)
	assert.Equal(t, "gs://archive/raw/jobsge/101/abc.html", uri)
}

func TestPutObjectExistingIsSuccess(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPreconditionFailed)
		_, _ = io.WriteString(w, `{"error":{"code":412,"message":"conditionNotMet"}}`)
	})
	store := newTestStore(t, handler)

	uri, err := store.PutObject(context.Background(), "hrge/5001/def.html", "text/html", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "gs://archive/raw/hrge/5001/def.html", uri)
}

func TestPutObjectServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	store := newTestStore(t, handler)

	_, err := store.PutObject(context.Background(), "hrge/5001/def.html", "text/html", strings.NewReader("x"))
	assert.Error(t, err)
}
