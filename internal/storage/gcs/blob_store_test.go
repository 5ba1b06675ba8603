package gcs

import (
	"bytes"
	"context"
	"fmt"
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

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "test-bucket"})
	require.NoError(t, err)
	return store
}

func TestPutObjectUploadsParquet(t *testing.T) {
	t.Parallel()

	objectName := "extracted/2024/07/03/a.parquet"
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/b/test-bucket/o")
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))
		assert.Equal(t, "0", r.URL.Query().Get("ifGenerationMatch"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "PAR1 payload")
		assert.Contains(t, string(body), "application/vnd.apache.parquet")
		assert.Contains(t, string(body), objectName)
		assert.Contains(t, string(body), `"writer":"ccpipe"`)

		fmt.Fprintln(w, `{"name": "`+objectName+`", "bucket": "test-bucket"}`)
	})

	store := newTestStore(t, handler)
	uri, err := store.PutObject(context.Background(), objectName, "application/vnd.apache.parquet", bytes.NewReader([]byte("PAR1 payload")))
	require.NoError(t, err)
	require.Equal(t, "gs://test-bucket/"+objectName, uri)
}

func TestPutObjectDefaultsContentType(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "application/octet-stream")
		assert.Contains(t, string(body), `"name":"k.bin"`)
		fmt.Fprintln(w, `{"name": "k.bin", "bucket": "test-bucket"}`)
	})

	store := newTestStore(t, handler)
	uri, err := store.PutObject(context.Background(), "/k.bin", "", bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	require.Equal(t, "gs://test-bucket/k.bin", uri)
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	_, err := store.PutObject(context.Background(), "k", "", bytes.NewReader([]byte("x")))
	require.Error(t, err)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.NotFoundHandler())
	_, err := store.PutObject(context.Background(), " ", "", bytes.NewReader(nil))
	require.Error(t, err)
}

func TestVerify(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/b/test-bucket") {
			fmt.Fprintln(w, `{"name": "test-bucket"}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	require.NoError(t, store.Verify(context.Background()))

	missing := newTestStore(t, http.NotFoundHandler())
	require.Error(t, missing.Verify(context.Background()))
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close() //nolint:errcheck
	_, err = New(client, Config{})
	require.Error(t, err)
}
