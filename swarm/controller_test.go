package swarm

import (
	"context"
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
)

func TestTXTRoundtrip(t *testing.T) {
	i := &Instance{ID: "abc", Name: "pinphotos on host", Properties: map[string]string{"gc": "1234", "gr": "repo"}}
	txt := i.TXT()
	assert.Equal(t, []string{"id=abc", "gc=1234", "gr=repo"}, txt)
	assert.Equal(t, InstanceID("abc"), findID(txt))
	assert.Equal(t, map[string]string{"id": "abc", "gc": "1234", "gr": "repo"}, propertiesFromTXT(txt))
}

func TestPropertiesFromMalformedTXT(t *testing.T) {
	p := propertiesFromTXT([]string{"=x", "flag", "k=v=w"})
	assert.Equal(t, map[string]string{"flag": "", "k": "v=w"}, p)
	assert.Equal(t, InstanceID(""), findID([]string{"flag"}))
}

func newEntry(name, id string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(name, ServiceName, domain)
	e.Port = 8080
	e.AddrIPv4 = []net.IP{net.IPv4(192, 168, 1, 5)}
	e.Text = []string{"id=" + id}
	return e
}

func TestPeerDiscovered(t *testing.T) {
	c := NewController(&Instance{ID: "self"}, 8080)
	var seen []Peer
	c.OnPeerDetected(SkipSelf(func(_ context.Context, p Peer) {
		seen = append(seen, p)
	}))

	c.peerDiscovered(context.Background(), newEntry("b", "other"))
	c.peerDiscovered(context.Background(), newEntry("b", "other"))
	c.peerDiscovered(context.Background(), newEntry("a", "self"))

	assert.Len(t, seen, 1)
	assert.Equal(t, "http://192.168.1.5:8080", seen[0].URL)
	peers := c.Peers()
	if assert.Len(t, peers, 2) {
		assert.Equal(t, "a", peers[0].Name)
		assert.True(t, peers[0].IsSelf)
		assert.Equal(t, InstanceID("other"), peers[1].ID)
	}
}

func TestShutdownTwice(t *testing.T) {
	c := NewController(&Instance{ID: "self"}, 8080)
	c.Shutdown()
	c.Shutdown()
}
