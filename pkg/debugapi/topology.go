// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ethersphere/kadtable/pkg/jsonhttp"
	"github.com/ethersphere/kadtable/pkg/kad"
	"github.com/ethersphere/kadtable/pkg/routingtable"
	"github.com/ethersphere/kadtable/pkg/topology"
	"github.com/gorilla/mux"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/multiformats/go-multiaddr"
)

func (s *Service) topologyHandler(w http.ResponseWriter, r *http.Request) {
	params, err := s.topologyDriver.Snapshot(r.Context())
	if err != nil {
		s.logger.Debugf("debug api: topology: %v", err)
		s.logger.Error("debug api: topology")
		jsonhttp.InternalServerError(w, err)
		return
	}
	jsonhttp.OK(w, params)
}

type closestPeer struct {
	ID         string   `json:"id"`
	Distance   string   `json:"distance"`
	Connection string   `json:"connection"`
	Addresses  []string `json:"addresses"`
}

type closestPeersResponse struct {
	Target string        `json:"target"`
	Peers  []closestPeer `json:"peers"`
}

func (s *Service) closestPeersHandler(w http.ResponseWriter, r *http.Request) {
	id, err := peer.Decode(mux.Vars(r)["peer-id"])
	if err != nil {
		s.logger.Debugf("debug api: closest peers: parse peer id: %v", err)
		jsonhttp.BadRequest(w, "invalid peer id")
		return
	}

	limit := routingtable.DefaultBucketSize
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			s.logger.Debugf("debug api: closest peers: invalid limit %q", v)
			jsonhttp.BadRequest(w, "invalid limit")
			return
		}
	}

	target := kad.NewKey(id)
	peers, err := s.topologyDriver.ClosestPeers(r.Context(), target, limit)
	if err != nil {
		s.logger.Debugf("debug api: closest peers %s: %v", id, err)
		s.logger.Errorf("debug api: closest peers %s", id)
		jsonhttp.InternalServerError(w, err)
		return
	}

	resp := closestPeersResponse{
		Target: id.String(),
		Peers:  make([]closestPeer, 0, len(peers)),
	}
	for _, p := range peers {
		addrs := make([]string, 0, len(p.Addresses))
		for _, a := range p.Addresses {
			addrs = append(addrs, a.String())
		}
		resp.Peers = append(resp.Peers, closestPeer{
			ID:         p.ID.String(),
			Distance:   kad.NewKey(p.ID).Distance(target).String(),
			Connection: p.Connection.String(),
			Addresses:  addrs,
		})
	}
	jsonhttp.OK(w, resp)
}

func (s *Service) peerInfoHandler(w http.ResponseWriter, r *http.Request) {
	id, err := peer.Decode(mux.Vars(r)["peer-id"])
	if err != nil {
		s.logger.Debugf("debug api: peer info: parse peer id: %v", err)
		jsonhttp.BadRequest(w, "invalid peer id")
		return
	}

	info, err := s.topologyDriver.PeerInfo(r.Context(), id)
	switch {
	case errors.Is(err, topology.ErrNotFound):
		jsonhttp.NotFound(w, "peer not found")
		return
	case errors.Is(err, topology.ErrWantSelf):
		jsonhttp.BadRequest(w, err)
		return
	case err != nil:
		s.logger.Debugf("debug api: peer info %s: %v", id, err)
		s.logger.Errorf("debug api: peer info %s", id)
		jsonhttp.InternalServerError(w, err)
		return
	}
	jsonhttp.OK(w, info)
}

type addPeerResponse struct {
	ID    string `json:"id"`
	Entry string `json:"entry"`
}

func (s *Service) addPeerHandler(w http.ResponseWriter, r *http.Request) {
	addr, err := multiaddr.NewMultiaddr("/" + mux.Vars(r)["multi-address"])
	if err != nil {
		s.logger.Debugf("debug api: add peer: parse multiaddress: %v", err)
		jsonhttp.BadRequest(w, err)
		return
	}

	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		s.logger.Debugf("debug api: add peer %s: %v", addr, err)
		jsonhttp.BadRequest(w, "multiaddress without peer id")
		return
	}

	kind, err := s.topologyDriver.AddPeer(r.Context(), info.ID, addr)
	switch {
	case errors.Is(err, topology.ErrWantSelf), errors.Is(err, topology.ErrNoAddress):
		jsonhttp.BadRequest(w, err)
		return
	case err != nil:
		s.logger.Debugf("debug api: add peer %s: %v", addr, err)
		s.logger.Errorf("debug api: add peer %s", addr)
		jsonhttp.InternalServerError(w, err)
		return
	}

	jsonhttp.OK(w, addPeerResponse{
		ID:    info.ID.String(),
		Entry: kind.String(),
	})
}
