package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/kleinnic74/pinphotos/failure"
)

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.jpg":
			w.Write([]byte{0xff, 0xd8, 0xff, 0xe0})
		case "/empty.jpg":
			w.WriteHeader(http.StatusOK)
		case "/moved.jpg":
			http.Redirect(w, r, "/ok.jpg", http.StatusFound)
		case "/big.jpg":
			w.Write(make([]byte, 64))
		case "/broken.jpg":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(server.Client(), 32)

	data, err := fetcher.Fetch(context.Background(), server.URL+"/ok.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff, 0xe0}, data)

	data, err = fetcher.Fetch(context.Background(), server.URL+"/moved.jpg")
	require.NoError(t, err)
	assert.Len(t, data, 4)

	data, err = fetcher.Fetch(context.Background(), server.URL+"/empty.jpg")
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = fetcher.Fetch(context.Background(), server.URL+"/big.jpg")
	assert.Equal(t, failure.Parse, failure.KindOf(err))

	_, err = fetcher.Fetch(context.Background(), server.URL+"/broken.jpg")
	assert.Equal(t, failure.TransientNetwork, failure.KindOf(err))
	assert.True(t, failure.Retryable(err))

	_, err = fetcher.Fetch(context.Background(), server.URL+"/missing.jpg")
	assert.Equal(t, failure.PermanentRequest, failure.KindOf(err))

	_, err = fetcher.Fetch(context.Background(), "")
	assert.Equal(t, failure.Invalid, failure.KindOf(err))
}

func TestFetchCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer server.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHTTPFetcher(server.Client(), 0).Fetch(ctx, server.URL+"/x.jpg")
	assert.Equal(t, failure.Cancelled, failure.KindOf(err))
}
