package flickr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"bitbucket.org/kleinnic74/pinphotos/failure"
)

type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(roundTripFunc RoundTripperFunc) *http.Client {
	return &http.Client{
		Transport: roundTripFunc,
	}
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

// fakeFlickr answers the page discovery with pages and any page request
// with the given photos
type fakeFlickr struct {
	pages  string
	photos string
	// pagePages overrides pages in answers to page requests
	pagePages string

	lock     sync.Mutex
	requests []*http.Request
}

func (f *fakeFlickr) roundTrip(r *http.Request) (*http.Response, error) {
	f.lock.Lock()
	f.requests = append(f.requests, r)
	f.lock.Unlock()
	page := r.URL.Query().Get("page")
	if page == "" {
		return jsonResponse(http.StatusOK, fmt.Sprintf(`{"stat":"ok","photos":{"page":1,"pages":%s,"perpage":21,"total":"4711","photo":[]}}`, f.pages)), nil
	}
	pages := f.pages
	if f.pagePages != "" {
		pages = f.pagePages
	}
	return jsonResponse(http.StatusOK, fmt.Sprintf(`{"stat":"ok","photos":{"page":%s,"pages":%s,"perpage":21,"total":"4711","photo":[%s]}}`, page, pages, f.photos)), nil
}

func newFakeClient(f *fakeFlickr, opts ...Option) *Client {
	opts = append([]Option{
		WithHTTPClient(newTestClient(f.roundTrip)),
		WithLimiter(rate.NewLimiter(rate.Inf, 1)),
	}, opts...)
	return NewClient("secret", opts...)
}

func TestSearchTwoPhases(t *testing.T) {
	f := &fakeFlickr{
		pages: `"500"`,
		photos: `{"id":"1","title":"Golden Gate","url_m":"https://live.staticflickr.com/1.jpg","width_m":500,"height_m":"375"},
			{"id":2,"title":"No medium size"},
			{"id":"3","title":"Bay","url_m":"https://live.staticflickr.com/3.jpg"},
			{"id":"4","title":"Golden Gate again","url_m":"https://live.staticflickr.com/1.jpg"}`,
	}
	client := newFakeClient(f, WithRand(func(n int) int { return n - 1 }))

	result, err := client.Search(context.Background(), 37.7749, -122.4194, 21)
	require.NoError(t, err)

	require.Len(t, f.requests, 2)
	discovery := f.requests[0].URL.Query()
	assert.Equal(t, "flickr.photos.search", discovery.Get("method"))
	assert.Equal(t, "secret", discovery.Get("api_key"))
	assert.Equal(t, "-123.419400,36.774900,-121.419400,38.774900", discovery.Get("bbox"))
	assert.Equal(t, "1", discovery.Get("safe_search"))
	assert.Equal(t, "url_m", discovery.Get("extras"))
	assert.Equal(t, "json", discovery.Get("format"))
	assert.Equal(t, "1", discovery.Get("nojsoncallback"))
	assert.Equal(t, "21", discovery.Get("per_page"))
	assert.Empty(t, discovery.Get("page"))
	assert.Equal(t, "190", f.requests[1].URL.Query().Get("page"))

	assert.Equal(t, 190, result.Page)
	assert.Equal(t, 500, result.Pages)
	assert.Equal(t, 2, result.Skipped)
	require.Len(t, result.Descriptors, 2)
	assert.Equal(t, "1", result.Descriptors[0].ID)
	assert.Equal(t, "Golden Gate", result.Descriptors[0].Title)
	assert.Equal(t, 500, result.Descriptors[0].Width)
	assert.Equal(t, 375, result.Descriptors[0].Height)
	assert.Equal(t, "https://live.staticflickr.com/3.jpg", result.Descriptors[1].URL)
}

func TestSearchPageWithinReportedPages(t *testing.T) {
	f := &fakeFlickr{pages: "50", photos: `{"id":"1","url_m":"https://x/1.jpg"}`}
	var bound int
	client := newFakeClient(f, WithRand(func(n int) int { bound = n; return 0 }))
	result, err := client.Search(context.Background(), 10, 10, 21)
	require.NoError(t, err)
	assert.Equal(t, 50, bound)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, "1", f.requests[1].URL.Query().Get("page"))
}

func TestSearchNoPages(t *testing.T) {
	f := &fakeFlickr{pages: "0"}
	client := newFakeClient(f)
	result, err := client.Search(context.Background(), 0, 0, 21)
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.Len(t, f.requests, 1, "no page must be requested when there are no pages")
}

func TestSearchNegativePages(t *testing.T) {
	f := &fakeFlickr{pages: "-1", photos: `{"id":"1","url_m":"https://x/1.jpg"}`}
	client := newFakeClient(f)
	result, err := client.Search(context.Background(), 0, 0, 21)
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.Len(t, f.requests, 1)
}

func TestSearchPageReportingNoPages(t *testing.T) {
	f := &fakeFlickr{pages: "3", pagePages: "0", photos: `{"id":"1","url_m":"https://x/1.jpg"}`}
	client := newFakeClient(f)
	result, err := client.Search(context.Background(), 0, 0, 21)
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.Len(t, f.requests, 2)
}

func TestSearchEmptyPage(t *testing.T) {
	f := &fakeFlickr{pages: "3"}
	client := newFakeClient(f)
	result, err := client.Search(context.Background(), 0, 0, 21)
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.Len(t, f.requests, 2)
}

func TestSearchTruncatesToPageSize(t *testing.T) {
	var photos []string
	for i := 0; i < 5; i++ {
		photos = append(photos, fmt.Sprintf(`{"id":"%d","url_m":"https://x/%d.jpg"}`, i, i))
	}
	f := &fakeFlickr{pages: "1", photos: strings.Join(photos, ",")}
	client := newFakeClient(f)
	result, err := client.Search(context.Background(), 0, 0, 3)
	require.NoError(t, err)
	assert.Len(t, result.Descriptors, 3)
	assert.Equal(t, 2, result.Skipped)
}

func TestSearchErrorClassification(t *testing.T) {
	data := []struct {
		name   string
		status int
		body   string
		err    error
		kind   failure.Kind
	}{
		{name: "server error", status: http.StatusServiceUnavailable, body: "", kind: failure.TransientNetwork},
		{name: "throttled", status: http.StatusTooManyRequests, body: "", kind: failure.TransientNetwork},
		{name: "forbidden", status: http.StatusForbidden, body: "", kind: failure.PermanentRequest},
		{name: "invalid key", status: http.StatusOK, body: `{"stat":"fail","code":100,"message":"Invalid API Key"}`, kind: failure.PermanentRequest},
		{name: "unavailable", status: http.StatusOK, body: `{"stat":"fail","code":105,"message":"Service currently unavailable"}`, kind: failure.TransientNetwork},
		{name: "not json", status: http.StatusOK, body: `<html>`, kind: failure.Parse},
		{name: "missing photos", status: http.StatusOK, body: `{"stat":"ok"}`, kind: failure.Parse},
		{name: "missing pages", status: http.StatusOK, body: `{"stat":"ok","photos":{"photo":[]}}`, kind: failure.Parse},
		{name: "bad pages", status: http.StatusOK, body: `{"stat":"ok","photos":{"pages":"many"}}`, kind: failure.Parse},
		{name: "transport", err: errors.New("connection reset by peer"), kind: failure.TransientNetwork},
	}
	for _, d := range data {
		t.Run(d.name, func(t *testing.T) {
			client := NewClient("secret",
				WithLimiter(rate.NewLimiter(rate.Inf, 1)),
				WithHTTPClient(newTestClient(func(*http.Request) (*http.Response, error) {
					if d.err != nil {
						return nil, d.err
					}
					return jsonResponse(d.status, d.body), nil
				})))
			result, err := client.Search(context.Background(), 1, 2, 21)
			assert.Nil(t, result)
			require.Error(t, err)
			assert.Equal(t, d.kind, failure.KindOf(err), "got %s", err)
		})
	}
}

func TestSearchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	client := NewClient("secret", WithHTTPClient(newTestClient(func(r *http.Request) (*http.Response, error) {
		called = true
		return nil, r.Context().Err()
	})))
	_, err := client.Search(ctx, 1, 2, 21)
	assert.Equal(t, failure.Cancelled, failure.KindOf(err))
	assert.False(t, called)
}

func TestSearchInvalidPageSize(t *testing.T) {
	client := NewClient("secret")
	_, err := client.Search(context.Background(), 1, 2, 0)
	assert.True(t, errors.Is(err, failure.ErrInvalid))
}

func TestFlexInt(t *testing.T) {
	var v struct {
		A flexInt `json:"a"`
		B flexInt `json:"b"`
	}
	require.NoError(t, jsonUnmarshal(`{"a":"12","b":34}`, &v))
	assert.Equal(t, flexInt(12), v.A)
	assert.Equal(t, flexInt(34), v.B)
}

func jsonUnmarshal(s string, v interface{}) error {
	return json.Unmarshal([]byte(s), v)
}
