package rest

import (
	"net/http"

	"github.com/gorilla/mux"

	"bitbucket.org/kleinnic74/pinphotos/failure"
	"bitbucket.org/kleinnic74/pinphotos/swarm"
)

// PeerLister is the view of the mDNS controller the REST API needs
type PeerLister interface {
	Self() *swarm.Instance
	Peers() []swarm.Peer
}

type PeersAPI struct {
	peers PeerLister
}

func NewPeersAPI(peers PeerLister) *PeersAPI {
	return &PeersAPI{peers: peers}
}

func (p *PeersAPI) InitRoutes(router *mux.Router) {
	router.HandleFunc("/peers", p.listPeers).Methods(http.MethodGet)
	router.HandleFunc("/peers/{id}", p.getPeer).Methods(http.MethodGet)
}

type peersPayload struct {
	Self  *swarm.Instance `json:"self"`
	Peers []swarm.Peer    `json:"peers"`
}

func (p *PeersAPI) others() []swarm.Peer {
	self := p.peers.Self()
	others := []swarm.Peer{}
	for _, peer := range p.peers.Peers() {
		if peer.IsSelf || (self != nil && peer.ID == self.ID) {
			continue
		}
		others = append(others, peer)
	}
	return others
}

func (p *PeersAPI) listPeers(w http.ResponseWriter, r *http.Request) {
	Respond(r).WithJSON(w, http.StatusOK, peersPayload{Self: p.peers.Self(), Peers: p.others()})
}

func (p *PeersAPI) getPeer(w http.ResponseWriter, r *http.Request) {
	id := swarm.InstanceID(mux.Vars(r)["id"])
	for _, peer := range p.others() {
		if peer.ID == id {
			Respond(r).WithJSON(w, http.StatusOK, peer)
			return
		}
	}
	Respond(r).WithError(w, failure.Newf(failure.NotFound, "peers.get", "no peer with id %s", id))
}
