// Package swarm announces the server on the local network via mDNS and
// keeps track of other pinphotos servers announcing themselves.
package swarm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"bitbucket.org/kleinnic74/pinphotos/logging"
)

const (
	ServiceName = "_pinphotos._tcp"
	domain      = "local."
)

type Peer struct {
	Name       string            `json:"name"`
	ID         InstanceID        `json:"id"`
	URL        string            `json:"url"`
	Properties map[string]string `json:"properties,omitempty"`
	IsSelf     bool              `json:"-"`
}

type PeerHandler func(context.Context, Peer)

func SkipSelf(h PeerHandler) PeerHandler {
	return func(ctx context.Context, p Peer) {
		if !p.IsSelf {
			h(ctx, p)
		}
	}
}

type Controller struct {
	instance *Instance
	port     uint

	done     chan struct{}
	shutdown sync.Once

	peers    map[string]Peer
	peerLock sync.RWMutex
	handlers []PeerHandler
}

func NewController(instance *Instance, port uint) *Controller {
	return &Controller{
		instance: instance,
		port:     port,
		peers:    make(map[string]Peer),
		done:     make(chan struct{}),
	}
}

func (c *Controller) OnPeerDetected(h PeerHandler) {
	c.handlers = append(c.handlers, h)
}

// ListenAndServe announces the instance and browses for peers until ctx is
// done or Shutdown is called
func (c *Controller) ListenAndServe(ctx context.Context) {
	logger, ctx := logging.SubFrom(ctx, "swarm")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	server, err := zeroconf.Register(c.instance.Name, ServiceName, domain, int(c.port), c.instance.TXT(), nil)
	if err != nil {
		logger.Error("Failed to publish zeroconf service", zap.Error(err))
		return
	}
	defer server.Shutdown()
	logger.Info("Service announced", zap.String("service", ServiceName), zap.Uint("port", c.port))

	resolver, err := zeroconf.NewResolver()
	if err != nil {
		logger.Error("Failed to create mDNS resolver", zap.Error(err))
		c.wait(ctx)
		return
	}
	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, ServiceName, domain, entries); err != nil {
		logger.Error("Failed to browse mDNS services", zap.Error(err))
		c.wait(ctx)
		return
	}
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				logger.Info("mDNS browser terminated")
				c.wait(ctx)
				return
			}
			if e != nil {
				c.peerDiscovered(ctx, e)
			}
		case <-ctx.Done():
			return
		case <-c.done:
			logger.Info("Shutting down")
			return
		}
	}
}

func (c *Controller) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-c.done:
	}
}

func (c *Controller) Shutdown() {
	c.shutdown.Do(func() { close(c.done) })
}

func (c *Controller) peerDiscovered(ctx context.Context, e *zeroconf.ServiceEntry) {
	id := findID(e.Text)
	peer := Peer{
		Name:       e.Instance,
		ID:         id,
		URL:        asURL(e),
		Properties: propertiesFromTXT(e.Text),
		IsSelf:     c.instance.ID == id,
	}

	c.peerLock.Lock()
	_, found := c.peers[peer.Name]
	if !found {
		c.peers[peer.Name] = peer
	}
	c.peerLock.Unlock()
	if found {
		return
	}
	logging.From(ctx).Info("Peer detected",
		zap.String("peer.instance", peer.Name),
		zap.Stringer("peer.ID", peer.ID),
		zap.String("peer.URL", peer.URL),
		zap.String("peer.hostname", e.HostName),
		zap.Array("peer.ips", logging.IPs(e.AddrIPv4)))
	for _, h := range c.handlers {
		h(ctx, peer)
	}
}

func asURL(e *zeroconf.ServiceEntry) string {
	if len(e.AddrIPv4) > 0 {
		return fmt.Sprintf("http://%s:%d", e.AddrIPv4[0], e.Port)
	}
	if len(e.AddrIPv6) > 0 {
		return fmt.Sprintf("http://[%s]:%d", e.AddrIPv6[0], e.Port)
	}
	return ""
}

// Peers returns the instances seen so far, ordered by name
func (c *Controller) Peers() []Peer {
	c.peerLock.RLock()
	defer c.peerLock.RUnlock()

	r := make([]Peer, 0, len(c.peers))
	for _, p := range c.peers {
		r = append(r, p)
	}
	sort.Slice(r, func(i, j int) bool { return r[i].Name < r[j].Name })
	return r
}

// Self returns the local instance as it is announced
func (c *Controller) Self() *Instance {
	return c.instance
}
