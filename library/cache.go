// Package library keeps the photos of geographic pins: it searches photos
// for a pin once, stores them and serves them from the store afterwards.
package library

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bitbucket.org/kleinnic74/pinphotos/assets"
	"bitbucket.org/kleinnic74/pinphotos/domain"
	"bitbucket.org/kleinnic74/pinphotos/events"
	"bitbucket.org/kleinnic74/pinphotos/failure"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"bitbucket.org/kleinnic74/pinphotos/search"
)

const defaultContentType = "application/octet-stream"

// ErrEmptyAsset is returned by Materialize when the remote asset has no
// content; nothing is stored and a later call fetches again
var ErrEmptyAsset = failure.New(failure.TransientNetwork, "photocache.materialize", "remote asset is empty")

type Options struct {
	PageSize            int
	PrefetchParallelism int
	Retry               RetryPolicy
	// Events receives a notification for every change, may be nil
	Events events.Publisher
}

var DefaultOptions = Options{
	PageSize:            search.DefaultPageSize,
	PrefetchParallelism: 4,
	Retry:               DefaultRetryPolicy,
}

// PhotoCache is the only component writing photos to the store
type PhotoCache struct {
	store    Store
	searcher search.Searcher
	fetcher  assets.Fetcher
	opts     Options

	pins    *keyLock
	flights *flights
	stats   internalStats

	now   func() time.Time
	newID func() string
}

func NewPhotoCache(store Store, searcher search.Searcher, fetcher assets.Fetcher, opts Options) *PhotoCache {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultOptions.PageSize
	}
	if opts.PrefetchParallelism <= 0 {
		opts.PrefetchParallelism = DefaultOptions.PrefetchParallelism
	}
	return &PhotoCache{
		store:    store,
		searcher: searcher,
		fetcher:  fetcher,
		opts:     opts,
		pins:     newKeyLock(),
		flights:  newFlights(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
}

// CreatePin stores a new pin at the given coordinates
func (c *PhotoCache) CreatePin(ctx context.Context, lat, lon float64) (*Pin, error) {
	logger := logging.From(ctx).Named("photocache")
	pin := &Pin{ID: PinID(c.newID()), Lat: lat, Lon: lon, Created: c.now()}
	if !pin.Coordinates().Valid() {
		return nil, failure.Newf(failure.Invalid, "pins.create", "coordinates out of range: %f,%f", lat, lon)
	}
	if err := c.store.Update(ctx, func(tx Tx) error {
		return tx.InsertPin(pin)
	}); err != nil {
		return nil, err
	}
	logger.Info("Pin created", zap.String("pin", string(pin.ID)), zap.String("location", pin.Coordinates().ISO6709()))
	c.publish("pin", "created", pin)
	return pin, nil
}

func (c *PhotoCache) Pin(ctx context.Context, id PinID) (pin *Pin, err error) {
	err = c.store.View(ctx, func(tx Tx) error {
		pin, err = tx.GetPin(id)
		return err
	})
	return
}

// Pins returns all pins ordered by creation
func (c *PhotoCache) Pins(ctx context.Context) (pins []*Pin, err error) {
	err = c.store.View(ctx, func(tx Tx) error {
		pins, err = tx.ListPins()
		return err
	})
	return
}

// Photo returns the photo with the given id including its image bytes if
// it was materialized
func (c *PhotoCache) Photo(ctx context.Context, id PhotoID) (photo *Photo, err error) {
	err = c.store.View(ctx, func(tx Tx) error {
		photo, err = tx.GetPhoto(id)
		return err
	})
	return
}

// EnsurePhotosForPin returns the stored photos of the pin. Only when there
// are none, photos are searched and stored.
func (c *PhotoCache) EnsurePhotosForPin(ctx context.Context, id PinID) (*PhotoSet, error) {
	logger, ctx := logging.FromWithNameAndFields(ctx, "photocache", zap.String("pin", string(id)))
	set, err := c.stored(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(set.Photos) > 0 {
		c.stats.hit()
		logger.Debug("Photos served from store", zap.Int("count", len(set.Photos)))
		return set, nil
	}
	c.stats.miss()

	release, err := c.pins.acquire(ctx, string(id))
	if err != nil {
		return nil, failure.FromContext(ctx, "photocache.ensure")
	}
	defer release()
	return c.populate(ctx, set.Pin)
}

// Refresh drops all photos of the pin and searches new ones. If the search
// fails, the pin is left without photos.
func (c *PhotoCache) Refresh(ctx context.Context, id PinID) (*PhotoSet, error) {
	logger, ctx := logging.FromWithNameAndFields(ctx, "photocache", zap.String("pin", string(id)))
	release, err := c.pins.acquire(ctx, string(id))
	if err != nil {
		return nil, failure.FromContext(ctx, "photocache.refresh")
	}
	defer release()

	var pin *Pin
	var deleted int
	if err := c.store.Update(ctx, func(tx Tx) (err error) {
		if pin, err = tx.GetPin(id); err != nil {
			return err
		}
		deleted, err = tx.DeletePhotosOfPin(id)
		return err
	}); err != nil {
		return nil, err
	}
	c.stats.deleted(deleted)
	logger.Info("Photos dropped for refresh", zap.Int("count", deleted))
	c.publish("pin", "cleared", pin)
	return c.populate(ctx, pin)
}

// DeletePin removes the pin and all of its photos
func (c *PhotoCache) DeletePin(ctx context.Context, id PinID) error {
	logger := logging.From(ctx).Named("photocache")
	var deleted int
	if err := c.store.Update(ctx, func(tx Tx) (err error) {
		if _, err = tx.GetPin(id); err != nil {
			return err
		}
		if deleted, err = tx.DeletePhotosOfPin(id); err != nil {
			return err
		}
		return tx.DeletePin(id)
	}); err != nil {
		return err
	}
	c.stats.deleted(deleted)
	logger.Info("Pin deleted", zap.String("pin", string(id)), zap.Int("photos", deleted))
	c.publish("pin", "deleted", id)
	return nil
}

func (c *PhotoCache) DeletePhoto(ctx context.Context, id PhotoID) error {
	n, err := c.DeletePhotos(ctx, []PhotoID{id})
	if err != nil {
		return err
	}
	if n == 0 {
		return failure.Newf(failure.NotFound, "photos.delete", "no photo with id %s", id)
	}
	return nil
}

// DeletePhotos removes the given photos, unknown ids are ignored. Returns
// the number of photos removed.
func (c *PhotoCache) DeletePhotos(ctx context.Context, ids []PhotoID) (int, error) {
	logger := logging.From(ctx).Named("photocache")
	var deleted int
	if err := c.store.Update(ctx, func(tx Tx) (err error) {
		deleted, err = tx.DeletePhotos(ids)
		return err
	}); err != nil {
		return 0, err
	}
	c.stats.deleted(deleted)
	logger.Info("Photos deleted", zap.Array("photos", logging.IDs[PhotoID](ids)), zap.Int("deleted", deleted))
	if deleted > 0 {
		c.publish("photos", "deleted", ids)
	}
	return deleted, nil
}

// Materialize returns the image bytes of the photo, downloading and
// storing them on first use. Concurrent calls for the same photo share a
// single download. The returned slice must not be modified.
func (c *PhotoCache) Materialize(ctx context.Context, photo *Photo) ([]byte, error) {
	if len(photo.Image) > 0 {
		c.stats.materializeHit()
		return photo.Image, nil
	}
	data, shared, err := c.flights.do(ctx, string(photo.ID), func(ctx context.Context) ([]byte, error) {
		return c.materialize(ctx, photo.ID)
	})
	if shared {
		c.stats.coalesced()
	}
	return data, err
}

// Content loads the photo and materializes it
func (c *PhotoCache) Content(ctx context.Context, id PhotoID) (*Photo, []byte, error) {
	photo, err := c.Photo(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := c.Materialize(ctx, photo)
	if err != nil {
		return nil, nil, err
	}
	if photo.ContentType == "" {
		if updated, err := c.Photo(ctx, id); err == nil {
			photo = updated
		}
	}
	return photo, data, nil
}

// PrefetchReport summarizes a Prefetch run
type PrefetchReport struct {
	Total     int  `json:"total"`
	Fetched   int  `json:"fetched"`
	Cached    int  `json:"cached"`
	Failed    int  `json:"failed"`
	Cancelled bool `json:"cancelled,omitempty"`
}

// Prefetch materializes all photos of the pin with bounded parallelism.
// Individual failures are counted, they do not stop the others.
func (c *PhotoCache) Prefetch(ctx context.Context, id PinID) (*PrefetchReport, error) {
	logger, ctx := logging.FromWithNameAndFields(ctx, "photocache", zap.String("pin", string(id)))
	set, err := c.EnsurePhotosForPin(ctx, id)
	if err != nil {
		return nil, err
	}
	report := &PrefetchReport{Total: len(set.Photos)}
	var fetched, cached, failed int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.PrefetchParallelism)
	for _, photo := range set.Photos {
		photo := photo
		if photo.Materialized() {
			cached++
			continue
		}
		g.Go(func() error {
			_, err := c.Materialize(gctx, photo)
			switch {
			case err == nil:
				atomic.AddInt32(&fetched, 1)
			case failure.KindOf(err) == failure.Cancelled:
				return err
			default:
				atomic.AddInt32(&failed, 1)
				logger.Warn("Prefetch failed", zap.String("photo", string(photo.ID)), zap.Error(err))
			}
			return nil
		})
	}
	err = g.Wait()
	report.Fetched = int(atomic.LoadInt32(&fetched))
	report.Cached = int(cached)
	report.Failed = int(atomic.LoadInt32(&failed))
	if err != nil {
		report.Cancelled = true
		return report, err
	}
	logger.Info("Prefetch completed", zap.Int("fetched", report.Fetched), zap.Int("cached", report.Cached), zap.Int("failed", report.Failed))
	c.publish("pin", "prefetched", report)
	return report, nil
}

func (c *PhotoCache) Stats() Stats {
	s := c.stats.snapshot()
	s.FetchesInProgress = c.flights.inFlight()
	return s
}

func (c *PhotoCache) stored(ctx context.Context, id PinID) (*PhotoSet, error) {
	set := &PhotoSet{Cached: true}
	err := c.store.View(ctx, func(tx Tx) (err error) {
		if set.Pin, err = tx.GetPin(id); err != nil {
			return err
		}
		set.Photos, err = tx.FindPhotos(PhotoFilter{Pin: id})
		return err
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// populate must be called with the pin lock held
func (c *PhotoCache) populate(ctx context.Context, pin *Pin) (*PhotoSet, error) {
	logger := logging.From(ctx)
	// another caller may have populated the pin while we were waiting
	set, err := c.stored(ctx, pin.ID)
	if err != nil {
		return nil, err
	}
	if len(set.Photos) > 0 {
		return set, nil
	}

	var result *search.Result
	err = c.opts.Retry.Do(ctx, "photocache.search", func(ctx context.Context) (err error) {
		result, err = c.searcher.Search(ctx, pin.Lat, pin.Lon, c.opts.PageSize)
		return err
	})
	c.stats.searched(err)
	if err != nil {
		logger.Warn("Search failed", zap.Error(err))
		return nil, err
	}
	if err := failure.FromContext(ctx, "photocache.populate"); err != nil {
		return nil, err
	}

	created := c.now()
	photos := make([]*Photo, 0, len(result.Descriptors))
	for i, d := range result.Descriptors {
		photos = append(photos, &Photo{
			ID:       PhotoID(c.newID()),
			Pin:      pin.ID,
			Position: i,
			URL:      d.URL,
			RemoteID: d.ID,
			Title:    d.Title,
			Width:    d.Width,
			Height:   d.Height,
			Created:  created,
		})
	}

	set = &PhotoSet{Pin: pin, Photos: photos, Skipped: result.Skipped}
	err = c.store.Update(ctx, func(tx Tx) error {
		if _, err := tx.GetPin(pin.ID); err != nil {
			return err
		}
		existing, err := tx.FindPhotos(PhotoFilter{Pin: pin.ID})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			set = &PhotoSet{Pin: pin, Photos: existing, Cached: true}
			return nil
		}
		if len(photos) == 0 {
			return nil
		}
		return tx.InsertPhotos(photos)
	})
	if err != nil {
		logger.Warn("Failed to store photos", zap.Error(err))
		return nil, err
	}
	logger.Info("Pin populated", zap.Int("count", len(set.Photos)), zap.Int("skipped", set.Skipped))
	if !set.Cached {
		c.publish("pin", "populated", set.Pin)
	}
	return set, nil
}

func (c *PhotoCache) materialize(ctx context.Context, id PhotoID) ([]byte, error) {
	const op = "photocache.materialize"
	logger, ctx := logging.FromWithNameAndFields(ctx, "photocache", zap.String("photo", string(id)))

	current, err := c.Photo(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Materialized() {
		c.stats.materializeHit()
		return current.Image, nil
	}
	data, err := c.fetcher.Fetch(ctx, current.URL)
	if err == nil && len(data) == 0 {
		logger.Warn("Remote asset is empty", zap.String("url", current.URL))
		err = ErrEmptyAsset
	}
	if err == nil {
		err = failure.FromContext(ctx, op)
	}
	if err != nil {
		c.stats.fetched(err)
		return nil, err
	}

	contentType := defaultContentType
	var meta domain.MediaMetaData
	if format, err := domain.FormatOf(data); err == nil {
		contentType = format.Mime()
		meta = domain.MetaDataOf(format, data)
	} else {
		logger.Debug("Unknown image format", zap.Error(err))
	}

	err = c.store.Update(ctx, func(tx Tx) error {
		if err := failure.FromContext(ctx, op); err != nil {
			return err
		}
		p, err := tx.GetPhoto(id)
		if err != nil {
			return err
		}
		if p.Materialized() {
			data = p.Image
			return nil
		}
		p.Image = data
		p.Size = int64(len(data))
		p.ContentType = contentType
		p.DateTaken = meta.DateTaken
		p.Orientation = meta.Orientation
		return tx.UpdatePhoto(p)
	})
	c.stats.fetched(err)
	if err != nil {
		return nil, err
	}
	logger.Debug("Photo materialized", zap.Int("size", len(data)), zap.String("contentType", contentType))
	c.publish("photo", "materialized", id)
	return data, nil
}

func (c *PhotoCache) publish(name, action string, data interface{}) {
	if c.opts.Events != nil {
		c.opts.Events.Publish(events.Event{Name: name, Action: action, Data: data})
	}
}
