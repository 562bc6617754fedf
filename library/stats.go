package library

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stats are the counters of one PhotoCache since it was created
type Stats struct {
	Hits              int `json:"hits"`
	Misses            int `json:"misses"`
	Searches          int `json:"searches"`
	SearchFailures    int `json:"searchFailures"`
	Materialized      int `json:"materialized"`
	MaterializeHits   int `json:"materializeHits"`
	Coalesced         int `json:"coalesced"`
	FetchFailures     int `json:"fetchFailures"`
	DeletedPhotos     int `json:"deletedPhotos"`
	FetchesInProgress int `json:"fetchesInProgress"`
}

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photocache_hits",
		Help: "Number of pins whose photos were served from the store",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photocache_misses",
		Help: "Number of pins which had no photos in the store",
	})
	cacheSearches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photocache_searches",
		Help: "Number of searches run to populate pins, by result",
	}, []string{"result"})
	cacheMaterialized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photocache_materialize",
		Help: "Number of photo image requests, by outcome",
	}, []string{"outcome"})
	cacheDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photocache_deleted_photos",
		Help: "Number of photos removed from the store",
	})
)

type internalStats struct {
	Stats
	lock sync.Mutex
}

func (s *internalStats) update(f func(*Stats)) {
	s.lock.Lock()
	f(&s.Stats)
	s.lock.Unlock()
}

func (s *internalStats) hit() {
	cacheHits.Inc()
	s.update(func(s *Stats) { s.Hits++ })
}

func (s *internalStats) miss() {
	cacheMisses.Inc()
	s.update(func(s *Stats) { s.Misses++ })
}

func (s *internalStats) searched(err error) {
	if err != nil {
		cacheSearches.WithLabelValues("error").Inc()
		s.update(func(s *Stats) { s.Searches++; s.SearchFailures++ })
		return
	}
	cacheSearches.WithLabelValues("ok").Inc()
	s.update(func(s *Stats) { s.Searches++ })
}

func (s *internalStats) materializeHit() {
	cacheMaterialized.WithLabelValues("hit").Inc()
	s.update(func(s *Stats) { s.MaterializeHits++ })
}

func (s *internalStats) coalesced() {
	cacheMaterialized.WithLabelValues("coalesced").Inc()
	s.update(func(s *Stats) { s.Coalesced++ })
}

func (s *internalStats) fetched(err error) {
	if err != nil {
		cacheMaterialized.WithLabelValues("error").Inc()
		s.update(func(s *Stats) { s.FetchFailures++ })
		return
	}
	cacheMaterialized.WithLabelValues("fetched").Inc()
	s.update(func(s *Stats) { s.Materialized++ })
}

func (s *internalStats) deleted(n int) {
	cacheDeleted.Add(float64(n))
	s.update(func(s *Stats) { s.DeletedPhotos += n })
}

func (s *internalStats) snapshot() Stats {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.Stats
}
