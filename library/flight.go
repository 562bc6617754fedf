package library

import (
	"context"
	"sync"

	"bitbucket.org/kleinnic74/pinphotos/failure"
)

type flight struct {
	done    chan struct{}
	data    []byte
	err     error
	waiters int
	cancel  context.CancelFunc
}

// flights coalesces concurrent loads of the same key: one load runs, all
// callers share its outcome. A caller may stop waiting when its own context
// is done; the load is cancelled once nobody waits for it anymore.
type flights struct {
	lock  sync.Mutex
	calls map[string]*flight
}

func newFlights() *flights {
	return &flights{calls: make(map[string]*flight)}
}

// do returns the result of fn for key and whether the caller joined a load
// started by someone else. The returned bytes are shared and must not be
// modified.
func (g *flights) do(ctx context.Context, key string, fn func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	g.lock.Lock()
	f, shared := g.calls[key]
	if !shared {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{done: make(chan struct{}), cancel: cancel}
		g.calls[key] = f
		go g.run(fctx, key, f, fn)
	}
	f.waiters++
	g.lock.Unlock()

	select {
	case <-f.done:
		return f.data, shared, f.err
	case <-ctx.Done():
		g.lock.Lock()
		f.waiters--
		if f.waiters == 0 {
			f.cancel()
			g.forget(key, f)
		}
		g.lock.Unlock()
		return nil, shared, failure.FromContext(ctx, "photocache.materialize")
	}
}

func (g *flights) run(ctx context.Context, key string, f *flight, fn func(context.Context) ([]byte, error)) {
	data, err := fn(ctx)
	g.lock.Lock()
	f.data, f.err = data, err
	g.forget(key, f)
	g.lock.Unlock()
	f.cancel()
	close(f.done)
}

func (g *flights) forget(key string, f *flight) {
	if g.calls[key] == f {
		delete(g.calls, key)
	}
}

func (g *flights) inFlight() int {
	g.lock.Lock()
	defer g.lock.Unlock()
	return len(g.calls)
}
