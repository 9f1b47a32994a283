package gcs_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/toolhub-crawler/internal/storage/gcs"
)

type upload struct {
	name string
	body string
}

func newFakeGCS(t *testing.T) (*storage.Client, func() []upload) {
	t.Helper()
	var (
		mu      sync.Mutex
		uploads []upload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/b/toolhub-archive/o") {
			http.NotFound(w, r)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		name := r.URL.Query().Get("name")
		mu.Lock()
		uploads = append(uploads, upload{name: name, body: string(body)})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name":%q,"bucket":"toolhub-archive"}`, name)
	}))
	t.Cleanup(srv.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(srv.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, func() []upload {
		mu.Lock()
		defer mu.Unlock()
		return append([]upload(nil), uploads...)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()
	_, err := gcs.New(nil, gcs.Config{Bucket: "b"})
	require.Error(t, err)

	client, _ := newFakeGCS(t)
	_, err = gcs.New(client, gcs.Config{})
	require.EqualError(t, err, "storage.bucket is required")
}

func TestPutObjectUploadsWithPrefix(t *testing.T) {
	t.Parallel()
	client, uploads := newFakeGCS(t)
	store, err := gcs.New(client, gcs.Config{Bucket: "toolhub-archive", Prefix: "/prod/"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "toolinfo/run-1/abc.json", "application/json",
		strings.NewReader(`[{"name":"a"}]`))
	require.NoError(t, err)
	require.Equal(t, "gs://toolhub-archive/prod/toolinfo/run-1/abc.json", uri)

	got := uploads()
	require.Len(t, got, 1)
	require.Equal(t, "prod/toolinfo/run-1/abc.json", got[0].name)
	require.Contains(t, got[0].body, `[{"name":"a"}]`)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()
	client, uploads := newFakeGCS(t)
	store, err := gcs.New(client, gcs.Config{Bucket: "toolhub-archive"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), " ", "", strings.NewReader("x"))
	require.Error(t, err)
	require.Empty(t, uploads())
}
