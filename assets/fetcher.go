// Package assets downloads the image bytes behind a photo URL
package assets

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"bitbucket.org/kleinnic74/pinphotos/failure"
	"bitbucket.org/kleinnic74/pinphotos/logging"
)

const (
	DefaultMaxBytes = 20 << 20

	userAgent      = "PinPhotos/0.1"
	defaultTimeout = 30 * time.Second
)

var (
	fetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assets_fetches_total",
		Help: "Number of image downloads, by result",
	}, []string{"result"})
	fetchedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assets_fetched_bytes_total",
		Help: "Number of image bytes downloaded",
	})
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to a Fetcher
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// HTTPFetcher fetches assets with a single GET, it never retries
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewHTTPFetcher(client *http.Client, maxBytes int64) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &HTTPFetcher{client: client, maxBytes: maxBytes}
}

// Fetch returns the body of a successful GET on url. An empty body is
// returned as is.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	logger := logging.From(ctx).Named("assets")
	data, err := f.fetch(ctx, url)
	if err != nil {
		fetches.WithLabelValues(failure.KindOf(err).String()).Inc()
		logger.Warn("Fetch failed", zap.String("url", url), zap.Error(err))
		return nil, err
	}
	fetches.WithLabelValues("ok").Inc()
	fetchedBytes.Add(float64(len(data)))
	logger.Debug("Fetched", zap.String("url", url), zap.Int("size", len(data)))
	return data, nil
}

func (f *HTTPFetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	const op = "assets.fetch"
	if url == "" {
		return nil, failure.New(failure.Invalid, op, "empty URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, failure.Wrap(failure.PermanentRequest, op, err)
	}
	req.Header.Set("User-Agent", userAgent)
	res, err := f.client.Do(req)
	if err != nil {
		return nil, failure.Transport(ctx, op, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, failure.WithStatus(op, res.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, f.maxBytes+1))
	if err != nil {
		return nil, failure.Transport(ctx, op, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, failure.Newf(failure.Parse, op, "asset larger than %d bytes", f.maxBytes)
	}
	return data, nil
}
