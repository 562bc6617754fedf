// Package flickr implements search.Searcher on top of the flickr.photos.search
// REST method.
package flickr

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"bitbucket.org/kleinnic74/pinphotos/domain/gps"
	"bitbucket.org/kleinnic74/pinphotos/failure"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"bitbucket.org/kleinnic74/pinphotos/search"
)

const (
	DefaultBaseURL = "https://api.flickr.com/services/rest/"

	searchMethod = "flickr.photos.search"
	userAgent    = "PinPhotos/0.1"
	maxBodySize  = 4 << 20

	defaultTimeout = 15 * time.Second
)

// remote error codes meaning "try again later"
var transientCodes = map[int]bool{
	10:  true, // search API not currently available
	105: true, // service currently unavailable
}

var requests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flickr_requests_total",
	Help: "Number of requests sent to the flickr search API, by result",
}, []string{"result"})

type Client struct {
	apiKey     string
	baseURL    string
	client     *http.Client
	limiter    *rate.Limiter
	intn       func(int) int
	halfWidth  float64
	halfHeight float64
	maxResults int
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLimiter replaces the default limit of 1 request per second
func WithLimiter(limiter *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// WithRand sets the source used to pick the result page, intn must behave
// like rand.Intn
func WithRand(intn func(int) int) Option {
	return func(c *Client) {
		c.intn = intn
	}
}

// WithBoxSize sets the half width and half height in degrees of the
// searched area
func WithBoxSize(halfWidth, halfHeight float64) Option {
	return func(c *Client) {
		c.halfWidth = halfWidth
		c.halfHeight = halfHeight
	}
}

// WithMaxResults sets the number of results beyond which the service stops
// answering
func WithMaxResults(n int) Option {
	return func(c *Client) {
		c.maxResults = n
	}
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		client:     &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(1), 2),
		intn:       rand.Intn,
		halfWidth:  search.DefaultHalfWidth,
		halfHeight: search.DefaultHalfHeight,
		maxResults: search.DefaultMaxResults,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search finds at most pageSize distinct photos around (lat, lon). It first
// asks for the number of pages, then fetches one randomly chosen page.
func (c *Client) Search(ctx context.Context, lat, lon float64, pageSize int) (*search.Result, error) {
	logger, ctx := logging.FromWithNameAndFields(ctx, "flickr", zap.Float64("lat", lat), zap.Float64("lon", lon))
	if pageSize <= 0 {
		return nil, failure.Newf(failure.Invalid, "flickr.search", "page size must be positive, got %d", pageSize)
	}
	bbox := search.BoundingBox(lat, lon, c.halfWidth, c.halfHeight)

	first, err := c.query(ctx, bbox, pageSize, 0)
	if err != nil {
		return nil, err
	}
	pages := int(*first.Pages)
	page := search.PickPage(pages, search.MaxPage(c.maxResults, pageSize), c.intn)
	if page <= 0 {
		logger.Debug("No photos in area", zap.String("bbox", search.FormatBBox(bbox)), zap.Int("pages", pages))
		return &search.Result{}, nil
	}
	logger.Debug("Picked page", zap.Int("pages", pages), zap.Int("page", page))

	found, err := c.query(ctx, bbox, pageSize, page)
	if err != nil {
		return nil, err
	}
	if *found.Pages <= 0 {
		logger.Debug("Page reported no pages", zap.Int("page", page))
		return &search.Result{}, nil
	}
	candidates := make([]search.Descriptor, len(found.Photo))
	for i, p := range found.Photo {
		candidates[i] = p.descriptor()
	}
	descriptors, skipped := search.Distinct(candidates)
	if len(descriptors) > pageSize {
		skipped += len(descriptors) - pageSize
		descriptors = descriptors[:pageSize]
	}
	logger.Info("Search completed", zap.Int("page", page), zap.Int("photos", len(descriptors)), zap.Int("skipped", skipped))
	return &search.Result{
		Descriptors: descriptors,
		Skipped:     skipped,
		Page:        page,
		Pages:       pages,
	}, nil
}

func (c *Client) query(ctx context.Context, bbox gps.Rect, pageSize, page int) (*photos, error) {
	const op = "flickr.search"
	logger := logging.From(ctx)

	if err := c.limiter.Wait(ctx); err != nil {
		err = failure.Transport(ctx, op, err)
		requests.WithLabelValues(failure.KindOf(err).String()).Inc()
		return nil, err
	}
	params := url.Values{}
	params.Set("method", searchMethod)
	params.Set("api_key", c.apiKey)
	params.Set("bbox", search.FormatBBox(bbox))
	params.Set("safe_search", "1")
	params.Set("extras", "url_m")
	params.Set("format", "json")
	params.Set("nojsoncallback", "1")
	params.Set("per_page", strconv.Itoa(pageSize))
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, failure.Wrap(failure.PermanentRequest, op, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	result, err := c.do(ctx, req)
	if err != nil {
		requests.WithLabelValues(failure.KindOf(err).String()).Inc()
		logger.Warn("Search request failed", zap.Int("page", page), zap.Error(err))
		return nil, err
	}
	requests.WithLabelValues("ok").Inc()
	return result, nil
}

func (c *Client) do(ctx context.Context, req *http.Request) (*photos, error) {
	const op = "flickr.search"
	res, err := c.client.Do(req)
	if err != nil {
		return nil, failure.Transport(ctx, op, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, failure.WithStatus(op, res.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return nil, failure.Transport(ctx, op, err)
	}
	var body response
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, failure.Wrap(failure.Parse, op, err)
	}
	return body.photos(op)
}
