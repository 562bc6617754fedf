package library_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/kleinnic74/pinphotos/assets"
	"bitbucket.org/kleinnic74/pinphotos/failure"
	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/library/boltstore"
	"bitbucket.org/kleinnic74/pinphotos/search"
)

var fastRetry = library.RetryPolicy{Attempts: 3, Backoff: time.Millisecond}

type fakeSearcher struct {
	calls int32
	fn    func(call int, lat, lon float64, pageSize int) (*search.Result, error)
}

func (s *fakeSearcher) Search(ctx context.Context, lat, lon float64, pageSize int) (*search.Result, error) {
	call := int(atomic.AddInt32(&s.calls, 1))
	return s.fn(call, lat, lon, pageSize)
}

func (s *fakeSearcher) count() int {
	return int(atomic.LoadInt32(&s.calls))
}

func descriptors(prefix string, n int) *search.Result {
	result := &search.Result{Pages: 1, Page: 1}
	for i := 0; i < n; i++ {
		result.Descriptors = append(result.Descriptors, search.Descriptor{
			ID:  fmt.Sprintf("%s%d", prefix, i),
			URL: fmt.Sprintf("https://live.staticflickr.com/%s/%d.jpg", prefix, i),
		})
	}
	return result
}

func returning(n int) *fakeSearcher {
	return &fakeSearcher{fn: func(call int, lat, lon float64, pageSize int) (*search.Result, error) {
		return descriptors(fmt.Sprintf("s%d-", call), n), nil
	}}
}

type fakeFetcher struct {
	calls int32
	fn    func(ctx context.Context, url string) ([]byte, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.fn(ctx, url)
}

func (f *fakeFetcher) count() int {
	return int(atomic.LoadInt32(&f.calls))
}

func bytesOf(url string) []byte {
	return []byte("image:" + url)
}

func echoFetcher() *fakeFetcher {
	return &fakeFetcher{fn: func(ctx context.Context, url string) ([]byte, error) {
		return bytesOf(url), nil
	}}
}

func newStore(t *testing.T) *boltstore.BoltStore {
	store, err := boltstore.Open(t.TempDir(), "photos.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newCache(t *testing.T, searcher search.Searcher, fetcher assets.Fetcher) (*library.PhotoCache, *boltstore.BoltStore) {
	store := newStore(t)
	opts := library.DefaultOptions
	opts.Retry = fastRetry
	return library.NewPhotoCache(store, searcher, fetcher, opts), store
}

func newPin(t *testing.T, cache *library.PhotoCache) *library.Pin {
	pin, err := cache.CreatePin(context.Background(), 37.7749, -122.4194)
	require.NoError(t, err)
	return pin
}

func countPhotos(t *testing.T, store library.Store, pin library.PinID) int {
	var count int
	require.NoError(t, store.View(context.Background(), func(tx library.Tx) (err error) {
		count, err = tx.CountPhotos(pin)
		return
	}))
	return count
}

func TestCreatePinValidatesCoordinates(t *testing.T) {
	cache, _ := newCache(t, returning(0), echoFetcher())
	for _, c := range [][2]float64{{90.5, 0}, {-91, 0}, {0, 180.1}, {0, -181}} {
		_, err := cache.CreatePin(context.Background(), c[0], c[1])
		assert.True(t, errors.Is(err, failure.ErrInvalid), "%v", c)
	}
	pin, err := cache.CreatePin(context.Background(), -90, 180)
	require.NoError(t, err)
	assert.NotEmpty(t, pin.ID)

	found, err := cache.Pin(context.Background(), pin.ID)
	require.NoError(t, err)
	assert.Equal(t, pin.Lat, found.Lat)
	assert.Equal(t, pin.Lon, found.Lon)
}

func TestCacheHitDoesNotSearch(t *testing.T) {
	searcher := returning(5)
	cache, _ := newCache(t, searcher, echoFetcher())
	pin := newPin(t, cache)

	first, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	require.Len(t, first.Photos, 5)

	searcher.fn = func(int, float64, float64, int) (*search.Result, error) {
		t.Error("search must not be called on a cache hit")
		return nil, failure.ErrTransient
	}
	second, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	require.Len(t, second.Photos, 5)
	for i := range first.Photos {
		assert.Equal(t, first.Photos[i].ID, second.Photos[i].ID)
		assert.Equal(t, first.Photos[i].URL, second.Photos[i].URL)
	}
	assert.Equal(t, 1, searcher.count())
	stats := cache.Stats()
	assert.Equal(t, 1, stats.Hits)
	assert.Equal(t, 1, stats.Misses)
}

func TestEnsureUnknownPin(t *testing.T) {
	searcher := returning(5)
	cache, _ := newCache(t, searcher, echoFetcher())
	_, err := cache.EnsurePhotosForPin(context.Background(), "does-not-exist")
	assert.True(t, errors.Is(err, failure.ErrNotFound))
	assert.Equal(t, 0, searcher.count())
}

func TestSearchFailureWritesNothing(t *testing.T) {
	searcher := &fakeSearcher{fn: func(int, float64, float64, int) (*search.Result, error) {
		return nil, failure.New(failure.PermanentRequest, "search", "invalid API key")
	}}
	cache, store := newCache(t, searcher, echoFetcher())
	pin := newPin(t, cache)

	_, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	assert.True(t, errors.Is(err, failure.ErrPermanent))
	assert.Equal(t, 1, searcher.count(), "permanent errors are not retried")
	assert.Equal(t, 0, countPhotos(t, store, pin.ID))
}

func TestInsertFailureWritesNothing(t *testing.T) {
	searcher := &fakeSearcher{fn: func(int, float64, float64, int) (*search.Result, error) {
		result := descriptors("dup", 4)
		result.Descriptors[3].URL = result.Descriptors[0].URL
		return result, nil
	}}
	cache, store := newCache(t, searcher, echoFetcher())
	pin := newPin(t, cache)

	_, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	assert.Error(t, err)
	assert.Equal(t, 0, countPhotos(t, store, pin.ID))
}

func TestTransientSearchErrorsAreRetried(t *testing.T) {
	searcher := &fakeSearcher{fn: func(call int, lat, lon float64, pageSize int) (*search.Result, error) {
		if call < 3 {
			return nil, failure.WithStatus("search", 503)
		}
		return descriptors("ok", 2), nil
	}}
	cache, _ := newCache(t, searcher, echoFetcher())
	pin := newPin(t, cache)

	set, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	require.NoError(t, err)
	assert.Len(t, set.Photos, 2)
	assert.Equal(t, 3, searcher.count())
}

func TestRetriesGiveUp(t *testing.T) {
	searcher := &fakeSearcher{fn: func(int, float64, float64, int) (*search.Result, error) {
		return nil, failure.ErrTransient
	}}
	cache, store := newCache(t, searcher, echoFetcher())
	pin := newPin(t, cache)

	_, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	assert.True(t, failure.Retryable(err))
	assert.Equal(t, 3, searcher.count())
	assert.Equal(t, 0, countPhotos(t, store, pin.ID))
	assert.Equal(t, 1, cache.Stats().SearchFailures)
}

func TestEmptySearchResult(t *testing.T) {
	searcher := returning(0)
	cache, _ := newCache(t, searcher, echoFetcher())
	pin := newPin(t, cache)

	set, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	require.NoError(t, err)
	assert.Empty(t, set.Photos)
	assert.False(t, set.Cached)

	// an empty pin is searched again
	_, err = cache.EnsurePhotosForPin(context.Background(), pin.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, searcher.count())
}

func TestSkippedAreReported(t *testing.T) {
	searcher := &fakeSearcher{fn: func(int, float64, float64, int) (*search.Result, error) {
		result := descriptors("x", 3)
		result.Skipped = 2
		return result, nil
	}}
	cache, _ := newCache(t, searcher, echoFetcher())
	pin := newPin(t, cache)
	set, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Skipped)
	for i, p := range set.Photos {
		assert.Equal(t, i, p.Position)
		assert.Equal(t, pin.ID, p.Pin)
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, fmt.Sprintf("x%d", i), p.RemoteID)
	}
}

func TestConcurrentEnsureSearchesOnce(t *testing.T) {
	release := make(chan struct{})
	searcher := &fakeSearcher{fn: func(call int, lat, lon float64, pageSize int) (*search.Result, error) {
		<-release
		return descriptors("c", 4), nil
	}}
	cache, store := newCache(t, searcher, echoFetcher())
	pin := newPin(t, cache)

	var wg sync.WaitGroup
	results := make([]*library.PhotoSet, 5)
	errs := make([]error, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.EnsurePhotosForPin(context.Background(), pin.ID)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, searcher.count())
	assert.Equal(t, 4, countPhotos(t, store, pin.ID))
	for i := range results {
		require.NoError(t, errs[i])
		require.Len(t, results[i].Photos, 4)
		assert.Equal(t, results[0].Photos[0].ID, results[i].Photos[0].ID)
	}
}

func TestMaterializeIsIdempotent(t *testing.T) {
	fetcher := echoFetcher()
	cache, _ := newCache(t, returning(2), fetcher)
	pin := newPin(t, cache)
	set, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	require.NoError(t, err)
	photo := set.Photos[0]

	first, err := cache.Materialize(context.Background(), photo)
	require.NoError(t, err)
	assert.Equal(t, bytesOf(photo.URL), first)
	second, err := cache.Materialize(context.Background(), photo)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fetcher.count())

	stored, err := cache.Photo(context.Background(), photo.ID)
	require.NoError(t, err)
	assert.True(t, stored.Materialized())
	assert.Equal(t, first, stored.Image)
	assert.Equal(t, "application/octet-stream", stored.ContentType)

	third, err := cache.Materialize(context.Background(), stored)
	require.NoError(t, err)
	assert.Equal(t, first, third)
	assert.Equal(t, 1, fetcher.count())
}

func TestMaterializeCoalescesConcurrentCalls(t *testing.T) {
	release := make(chan struct{})
	fetcher := &fakeFetcher{fn: func(ctx context.Context, url string) ([]byte, error) {
		<-release
		return bytesOf(url), nil
	}}
	cache, _ := newCache(t, returning(1), fetcher)
	pin := newPin(t, cache)
	set, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	require.NoError(t, err)
	photo := set.Photos[0]

	var wg sync.WaitGroup
	results := make([][]byte, 6)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = cache.Materialize(context.Background(), photo)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, fetcher.count())
	for _, r := range results {
		assert.Equal(t, bytesOf(photo.URL), r)
	}
}

func TestMaterializeWaiterMayLeave(t *testing.T) {
	release := make(chan struct{})
	fetcher := &fakeFetcher{fn: func(ctx context.Context, url string) ([]byte, error) {
		<-release
		return bytesOf(url), nil
	}}
	cache, _ := newCache(t, returning(1), fetcher)
	pin := newPin(t, cache)
	set, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	require.NoError(t, err)
	photo := set.Photos[0]

	stay := make(chan []byte, 1)
	go func() {
		data, _ := cache.Materialize(context.Background(), photo)
		stay <- data
	}()
	time.Sleep(10 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = cache.Materialize(ctx, photo)
	assert.Error(t, err)

	close(release)
	select {
	case data := <-stay:
		assert.Equal(t, bytesOf(photo.URL), data)
	case <-time.After(2 * time.Second):
		t.Fatal("remaining waiter did not get the result")
	}
	assert.Equal(t, 1, fetcher.count())
}

func TestMaterializeCancelledWritesNothing(t *testing.T) {
	started := make(chan struct{})
	fetcher := &fakeFetcher{fn: func(ctx context.Context, url string) ([]byte, error) {
		close(started)
		<-ctx.Done()
		return nil, failure.Transport(ctx, "fetch", ctx.Err())
	}}
	cache, _ := newCache(t, returning(1), fetcher)
	pin := newPin(t, cache)
	set, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err = cache.Materialize(ctx, set.Photos[0])
	assert.Equal(t, failure.Cancelled, failure.KindOf(err))

	stored, err := cache.Photo(context.Background(), set.Photos[0].ID)
	require.NoError(t, err)
	assert.False(t, stored.Materialized())
}

func TestMaterializeFailureKeepsBytesAbsent(t *testing.T) {
	fail := true
	fetcher := &fakeFetcher{fn: func(ctx context.Context, url string) ([]byte, error) {
		if fail {
			return nil, failure.WithStatus("fetch", 502)
		}
		return bytesOf(url), nil
	}}
	cache, _ := newCache(t, returning(1), fetcher)
	pin := newPin(t, cache)
	set, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	require.NoError(t, err)

	_, err = cache.Materialize(context.Background(), set.Photos[0])
	assert.True(t, failure.Retryable(err))
	stored, err := cache.Photo(context.Background(), set.Photos[0].ID)
	require.NoError(t, err)
	assert.False(t, stored.Materialized())

	fail = false
	data, err := cache.Materialize(context.Background(), set.Photos[0])
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, 2, fetcher.count())
}

func TestMaterializeEmptyAsset(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(context.Context, string) ([]byte, error) {
		return []byte{}, nil
	}}
	cache, _ := newCache(t, returning(1), fetcher)
	pin := newPin(t, cache)
	set, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	require.NoError(t, err)

	_, err = cache.Materialize(context.Background(), set.Photos[0])
	assert.True(t, errors.Is(err, library.ErrEmptyAsset))
	stored, err := cache.Photo(context.Background(), set.Photos[0].ID)
	require.NoError(t, err)
	assert.False(t, stored.Materialized())

	_, err = cache.Materialize(context.Background(), set.Photos[0])
	assert.Error(t, err)
	assert.Equal(t, 2, fetcher.count(), "an empty asset is fetched again")
}

func TestMaterializeDeletedPhoto(t *testing.T) {
	var cache *library.PhotoCache
	var photo *library.Photo
	fetcher := &fakeFetcher{fn: func(ctx context.Context, url string) ([]byte, error) {
		if err := cache.DeletePhoto(context.Background(), photo.ID); err != nil {
			return nil, err
		}
		return bytesOf(url), nil
	}}
	cache, store := newCache(t, returning(2), fetcher)
	pin := newPin(t, cache)
	set, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	require.NoError(t, err)
	photo = set.Photos[0]

	_, err = cache.Materialize(context.Background(), photo)
	assert.True(t, errors.Is(err, failure.ErrNotFound), "got %v", err)
	assert.Equal(t, 1, countPhotos(t, store, pin.ID))
	_, err = cache.Photo(context.Background(), photo.ID)
	assert.True(t, errors.Is(err, failure.ErrNotFound))
}

func TestDeletePinCascades(t *testing.T) {
	for _, n := range []int{0, 1, 21} {
		t.Run(fmt.Sprintf("%d photos", n), func(t *testing.T) {
			cache, store := newCache(t, returning(n), echoFetcher())
			pin := newPin(t, cache)
			other := newPin(t, cache)
			_, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
			require.NoError(t, err)
			_, err = cache.EnsurePhotosForPin(context.Background(), other.ID)
			require.NoError(t, err)

			require.NoError(t, cache.DeletePin(context.Background(), pin.ID))

			_, err = cache.Pin(context.Background(), pin.ID)
			assert.True(t, errors.Is(err, failure.ErrNotFound))
			var all []*library.Photo
			require.NoError(t, store.View(context.Background(), func(tx library.Tx) (err error) {
				all, err = tx.FindPhotos(library.PhotoFilter{})
				return
			}))
			assert.Len(t, all, n, "only the photos of the other pin remain")
			for _, p := range all {
				assert.Equal(t, other.ID, p.Pin)
			}
			assert.True(t, errors.Is(cache.DeletePin(context.Background(), pin.ID), failure.ErrNotFound))
		})
	}
}

func TestRefreshReplacesPhotos(t *testing.T) {
	searcher := returning(3)
	cache, store := newCache(t, searcher, echoFetcher())
	pin := newPin(t, cache)
	before, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	require.NoError(t, err)

	after, err := cache.Refresh(context.Background(), pin.ID)
	require.NoError(t, err)
	assert.False(t, after.Cached)
	require.Len(t, after.Photos, 3)
	assert.Equal(t, 2, searcher.count())
	oldIDs := map[library.PhotoID]bool{}
	for _, p := range before.Photos {
		oldIDs[p.ID] = true
	}
	for _, p := range after.Photos {
		assert.False(t, oldIDs[p.ID], "refreshed photos get new ids")
	}
	_, err = cache.Photo(context.Background(), before.Photos[0].ID)
	assert.True(t, errors.Is(err, failure.ErrNotFound))
	assert.Equal(t, 3, countPhotos(t, store, pin.ID))
}

func TestRefreshFailureLeavesPinEmpty(t *testing.T) {
	searcher := returning(3)
	cache, store := newCache(t, searcher, echoFetcher())
	pin := newPin(t, cache)
	_, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	require.NoError(t, err)

	searcher.fn = func(int, float64, float64, int) (*search.Result, error) {
		return nil, failure.ErrPermanent
	}
	_, err = cache.Refresh(context.Background(), pin.ID)
	assert.Error(t, err)
	assert.Equal(t, 0, countPhotos(t, store, pin.ID))
	_, err = cache.Pin(context.Background(), pin.ID)
	assert.NoError(t, err, "the pin itself survives")
}

func TestDeletePhotos(t *testing.T) {
	cache, store := newCache(t, returning(4), echoFetcher())
	pin := newPin(t, cache)
	set, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	require.NoError(t, err)

	n, err := cache.DeletePhotos(context.Background(), []library.PhotoID{set.Photos[0].ID, set.Photos[2].ID, "unknown"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, countPhotos(t, store, pin.ID))
	assert.True(t, errors.Is(cache.DeletePhoto(context.Background(), set.Photos[0].ID), failure.ErrNotFound))
	require.NoError(t, cache.DeletePhoto(context.Background(), set.Photos[1].ID))
	assert.Equal(t, 3, cache.Stats().DeletedPhotos)
}

func TestSanFranciscoScenario(t *testing.T) {
	searcher := &fakeSearcher{fn: func(call int, lat, lon float64, pageSize int) (*search.Result, error) {
		assert.Equal(t, 37.7749, lat)
		assert.Equal(t, -122.4194, lon)
		assert.Equal(t, search.DefaultPageSize, pageSize)
		bbox := search.BoundingBox(lat, lon, search.DefaultHalfWidth, search.DefaultHalfHeight)
		assert.Equal(t, "-123.419400,36.774900,-121.419400,38.774900", search.FormatBBox(bbox))
		return descriptors("sf", pageSize), nil
	}}
	fetcher := echoFetcher()
	cache, store := newCache(t, searcher, fetcher)

	pin, err := cache.CreatePin(context.Background(), 37.7749, -122.4194)
	require.NoError(t, err)
	set, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	require.NoError(t, err)
	require.Len(t, set.Photos, 21)

	report, err := cache.Prefetch(context.Background(), pin.ID)
	require.NoError(t, err)
	assert.Equal(t, 21, report.Total)
	assert.Equal(t, 21, report.Fetched)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 21, fetcher.count())

	again, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	for _, p := range again.Photos {
		assert.True(t, p.Materialized())
	}
	report, err = cache.Prefetch(context.Background(), pin.ID)
	require.NoError(t, err)
	assert.Equal(t, 21, report.Cached)
	assert.Equal(t, 21, fetcher.count())

	n, err := cache.DeletePhotos(context.Background(), []library.PhotoID{again.Photos[0].ID, again.Photos[1].ID})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 19, countPhotos(t, store, pin.ID))
	assert.Equal(t, 1, searcher.count())

	require.NoError(t, cache.DeletePin(context.Background(), pin.ID))
	pins, err := cache.Pins(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pins)
}

func TestPrefetchCountsFailures(t *testing.T) {
	fetcher := &fakeFetcher{fn: func(ctx context.Context, url string) ([]byte, error) {
		if url == "https://live.staticflickr.com/s1-/1.jpg" {
			return nil, failure.WithStatus("fetch", 404)
		}
		return bytesOf(url), nil
	}}
	cache, _ := newCache(t, returning(3), fetcher)
	pin := newPin(t, cache)
	report, err := cache.Prefetch(context.Background(), pin.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 1, report.Failed)
}

// cancellingStore makes the caller leave while the next update is in
// progress, after the update started but before anything is committed
type cancellingStore struct {
	library.Store
	armed   atomic.Bool
	leave   context.CancelFunc
	updated chan error
}

func (s *cancellingStore) Update(ctx context.Context, fn func(library.Tx) error) error {
	if !s.armed.CompareAndSwap(true, false) {
		return s.Store.Update(ctx, fn)
	}
	err := s.Store.Update(ctx, func(tx library.Tx) error {
		s.leave()
		<-ctx.Done()
		return fn(tx)
	})
	s.updated <- err
	return err
}

func TestMaterializeCallerLeavingBeforeCommitWritesNothing(t *testing.T) {
	store := newStore(t)
	wrapped := &cancellingStore{Store: store, updated: make(chan error, 1)}
	opts := library.DefaultOptions
	opts.Retry = fastRetry
	cache := library.NewPhotoCache(wrapped, returning(1), echoFetcher(), opts)
	pin := newPin(t, cache)
	set, err := cache.EnsurePhotosForPin(context.Background(), pin.ID)
	require.NoError(t, err)
	require.Len(t, set.Photos, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wrapped.leave = cancel
	wrapped.armed.Store(true)
	data, err := cache.Materialize(ctx, set.Photos[0])
	assert.Nil(t, data)
	assert.True(t, errors.Is(err, failure.ErrCancelled), "got %v", err)

	select {
	case err := <-wrapped.updated:
		assert.Equal(t, failure.Cancelled, failure.KindOf(err))
	case <-time.After(2 * time.Second):
		t.Fatal("update did not terminate")
	}
	photo, err := cache.Photo(context.Background(), set.Photos[0].ID)
	require.NoError(t, err)
	assert.False(t, photo.Materialized())
}
