package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/kleinnic74/fflags"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"bitbucket.org/kleinnic74/pinphotos/assets"
	"bitbucket.org/kleinnic74/pinphotos/config"
	"bitbucket.org/kleinnic74/pinphotos/consts"
	"bitbucket.org/kleinnic74/pinphotos/domain"
	"bitbucket.org/kleinnic74/pinphotos/events"
	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/library/boltstore"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"bitbucket.org/kleinnic74/pinphotos/rest"
	"bitbucket.org/kleinnic74/pinphotos/search/flickr"
	"bitbucket.org/kleinnic74/pinphotos/swarm"
	"bitbucket.org/kleinnic74/pinphotos/tasks"
)

const dbName = "pinphotos.db"

var (
	announceFlag = fflags.Define("announce.mdns")
	thumbsFlag   = fflags.Define("photos.thumbs")
)

type App struct {
	store    *boltstore.BoltStore
	bus      *events.Stream
	executor *tasks.Executor
	cache    *library.PhotoCache
	instance *swarm.Instance
	peers    *swarm.Controller
	router   *mux.Router

	addr string

	shutdownHandlers shutdownHandlers
}

type shutdownHandler func(context.Context, *App)

type shutdownHandlers struct {
	h []shutdownHandler
}

func (hdls *shutdownHandlers) Add(h shutdownHandler) {
	hdls.h = append(hdls.h, h)
}

func (hdls shutdownHandlers) Execute(ctx context.Context, a *App) {
	for i := len(hdls.h) - 1; i >= 0; i-- {
		hdls.h[i](ctx, a)
	}
}

// NewApp wires all components according to cfg. Close must be called once
// the app is not needed anymore.
func NewApp(ctx context.Context, cfg config.Config) (a *App, err error) {
	logger, ctx := logging.SubFrom(ctx, "app")

	logger.Info("Library directory", zap.String("dir", cfg.LibDir))
	if err = os.MkdirAll(cfg.LibDir, os.ModePerm); err != nil {
		return nil, err
	}

	a = &App{
		addr:     fmt.Sprintf(":%d", cfg.Port),
		router:   mux.NewRouter(),
		bus:      events.NewStream(),
		executor: tasks.NewExecutor(cfg.Workers),
	}
	defer func() {
		if err != nil {
			a.shutdownHandlers.Execute(ctx, a)
		}
	}()

	if a.store, err = boltstore.Open(cfg.LibDir, dbName); err != nil {
		return nil, fmt.Errorf("Failed to initialize data store: %w", err)
	}
	a.shutdownHandlers.Add(func(ctx context.Context, a *App) {
		a.store.Close()
		logging.From(ctx).Info("Closed data store")
	})

	if a.instance, err = loadInstance(a.store.DB(), cfg.MDNSName, DefaultInstanceProperties()...); err != nil {
		return nil, fmt.Errorf("Failed to initialize unique local ID: %w", err)
	}
	logger, ctx = logging.FromWithFields(ctx, zap.Stringer("instance", a.instance.ID))

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	searcher := flickr.NewClient(cfg.FlickrAPIKey,
		flickr.WithHTTPClient(httpClient),
		flickr.WithBaseURL(cfg.FlickrBaseURL),
		flickr.WithLimiter(rate.NewLimiter(rate.Limit(cfg.SearchRPS), cfg.SearchBurst)),
		flickr.WithBoxSize(cfg.BoxHalfWidth, cfg.BoxHalfHeight),
		flickr.WithMaxResults(cfg.MaxResults),
	)
	fetcher := assets.NewHTTPFetcher(httpClient, cfg.FetchMaxBytes)

	a.cache = library.NewPhotoCache(a.store, searcher, fetcher, library.Options{
		PageSize:            cfg.PageSize,
		PrefetchParallelism: cfg.PrefetchParallelism,
		Retry: library.RetryPolicy{
			Attempts:   cfg.SearchRetries,
			Backoff:    cfg.SearchBackoff,
			MaxBackoff: library.DefaultRetryPolicy.MaxBackoff,
		},
		Events: a.bus,
	})
	logger.Info("Photo cache ready", zap.Int("pageSize", cfg.PageSize), zap.Float64("searchRPS", cfg.SearchRPS))

	// REST Handlers

	metrics := rest.NewMetricsHandler(a.cache)
	metrics.InitRoutes(a.router)

	if consts.IsDevMode() {
		logs := rest.NewLogsHandler()
		logs.InitRoutes(a.router)
	}

	sse := rest.NewSSEHandler(a.bus)
	sse.InitRoutes(a.router)

	pins := rest.NewPinsHandler(a.cache, library.NewAsync(a.cache, a.executor), a.bus)
	pins.InitRoutes(a.router)

	photos := rest.NewPhotosHandler(a.cache)
	photos.InitRoutes(a.router)
	if err = fflags.IfEnabled(thumbsFlag, func() error {
		n := runtime.NumCPU()
		photos.EnableThumbs(domain.NewParallelThumber(ctx, domain.LocalThumber{}, n))
		logger.Info("Initialized Thumber", zap.Int("parallelism", n))
		return nil
	}); err != nil {
		return nil, fmt.Errorf("Failed to initialize thumbnails: %w", err)
	}

	tasksApp := rest.NewTaskHandler(a.executor)
	tasksApp.InitRoutes(a.router)

	if err = fflags.IfEnabled(announceFlag, func() error {
		a.peers = swarm.NewController(a.instance, cfg.Port)
		a.peers.OnPeerDetected(swarm.SkipSelf(func(ctx context.Context, p swarm.Peer) {
			a.bus.Publish(events.Event{Name: "peers", Action: "detected", Data: p})
		}))
		peersRest := rest.NewPeersAPI(a.peers)
		peersRest.InitRoutes(a.router)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("Failed to initialize mDNS announcement: %w", err)
	}

	return a, nil
}

// Handler returns the HTTP API including its middlewares
func (a *App) Handler() http.Handler {
	return rest.WithMiddleWares(a.router, "rest")
}

// Close releases the resources acquired by NewApp
func (a *App) Close(ctx context.Context) {
	a.shutdownHandlers.Execute(ctx, a)
}

// Run serves the HTTP API and runs the background loops until ctx is done
func (a *App) Run(ctx context.Context) error {
	logger, ctx := logging.SubFrom(ctx, "app")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		logger, ctx := logging.SubFrom(ctx, "eventbus")
		a.bus.Dispatch(ctx)
		logger.Info("DONE")
		wg.Done()
	}()
	wg.Add(1)
	go func() {
		a.executor.DrainTasks(ctx, func(e tasks.Execution) {
			a.bus.Publish(events.Event{Name: "tasks", Action: "completed", Data: e})
		})
		logging.From(ctx).Info("Task executor DONE")
		wg.Done()
	}()
	wg.Add(1)
	go func() {
		logger, ctx := logging.SubFrom(ctx, "startuptasks")
		launchStartupTasks(ctx, a.cache, a.executor, a.bus)
		logger.Info("DONE")
		wg.Done()
	}()
	if a.peers != nil {
		wg.Add(1)
		go func() {
			a.peers.ListenAndServe(ctx)
			logging.From(ctx).Info("Swarm DONE")
			wg.Done()
		}()
	}

	server := http.Server{
		Addr:        a.addr,
		Handler:     a.Handler(),
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}
	var serverErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger, _ := logging.SubFrom(ctx, "http")
		logger.Info("Starting HTTP server...", zap.String("bindAddr", a.addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
			serverErr = err
			cancel()
		}
		logger.Info("DONE")
	}()

	<-ctx.Done()

	logger.Info("Stopping...")

	if a.peers != nil {
		a.peers.Shutdown()
	}

	ctxShutdown, cancelServerShutdown := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancelServerShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	wg.Wait()

	logger.Info("Terminated gracefully")
	return serverErr
}
