package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/artcache/internal/config"
	"github.com/phrazzld/artcache/internal/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newOrigin serves objects under /bucket/* and counts requests.
func newOrigin(t *testing.T, objects map[string][]byte) *httptest.Server {
	t.Helper()

	r := chi.NewRouter()
	r.Get("/bucket/*", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "*")
		data, ok := objects[name]
		if !ok {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	})
	r.Get("/stream", func(w http.ResponseWriter, req *http.Request) {
		// Flushing forces a chunked body without Content-Length.
		for i := 0; i < 4; i++ {
			_, _ = w.Write([]byte(strings.Repeat("x", 10)))
			w.(http.Flusher).Flush()
		}
	})
	r.Get("/slow", func(w http.ResponseWriter, req *http.Request) {
		select {
		case <-req.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newFetcher(t *testing.T, baseURL string, maxBytes int64) *fetch.Fetcher {
	t.Helper()
	f, err := fetch.New(config.FetchConfig{
		BaseURL:  baseURL,
		Timeout:  time.Second,
		MaxBytes: maxBytes,
	}, nil, nil)
	require.NoError(t, err)
	return f
}

func TestFetchObjectName(t *testing.T) {
	srv := newOrigin(t, map[string][]byte{"cats/tabby.png": []byte("png-bytes")})
	f := newFetcher(t, srv.URL+"/bucket", 1<<20)

	data, err := f.Fetch(context.Background(), "cats/tabby.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestFetchAbsoluteURLBypassesBase(t *testing.T) {
	srv := newOrigin(t, map[string][]byte{"a.png": []byte("a")})
	f := newFetcher(t, "https://unused.example.com/", 1<<20)

	data, err := f.Fetch(context.Background(), srv.URL+"/bucket/a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)
}

func TestFetchNotFoundIsStatusError(t *testing.T) {
	srv := newOrigin(t, nil)
	f := newFetcher(t, srv.URL+"/bucket/", 1<<20)

	_, err := f.Fetch(context.Background(), "missing.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, fetch.ErrFetchFailed)

	var statusErr *fetch.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestFetchTooLarge(t *testing.T) {
	srv := newOrigin(t, map[string][]byte{"big.png": make([]byte, 100)})

	f := newFetcher(t, srv.URL+"/bucket", 50)
	_, err := f.Fetch(context.Background(), "big.png")
	assert.ErrorIs(t, err, fetch.ErrTooLarge)

	_, err = f.Fetch(context.Background(), srv.URL+"/stream")
	assert.ErrorIs(t, err, fetch.ErrTooLarge)

	f = newFetcher(t, srv.URL+"/bucket", 100)
	data, err := f.Fetch(context.Background(), "big.png")
	require.NoError(t, err)
	assert.Len(t, data, 100)
}

func TestFetchHonoursContext(t *testing.T) {
	srv := newOrigin(t, nil)
	f := newFetcher(t, srv.URL, 1<<20)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, srv.URL+"/slow")
	assert.ErrorIs(t, err, fetch.ErrFetchFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolve(t *testing.T) {
	f := newFetcher(t, "https://cdn.example.com/assets", 1)

	tests := []struct {
		locator string
		want    string
		wantErr bool
	}{
		{locator: "cats/a.png", want: "https://cdn.example.com/assets/cats/a.png"},
		{locator: "/cats/a.png", want: "https://cdn.example.com/assets/cats/a.png"},
		{locator: "http://other.example.com/x.png", want: "http://other.example.com/x.png"},
		{locator: "ftp://other.example.com/x.png", wantErr: true},
		{locator: "  ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.locator, func(t *testing.T) {
			got, err := f.Resolve(tt.locator)
			if tt.wantErr {
				assert.ErrorIs(t, err, fetch.ErrInvalidLocator)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	noBase := newFetcher(t, "", 1)
	_, err := noBase.Resolve("cats/a.png")
	assert.ErrorIs(t, err, fetch.ErrInvalidLocator)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := fetch.New(config.FetchConfig{BaseURL: "ftp://x", Timeout: time.Second, MaxBytes: 1}, nil, nil)
	assert.ErrorIs(t, err, fetch.ErrInvalidLocator)
}
