// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kademlia implements topology.Driver on top of a routing table
// that is owned by a single manage loop.
package kademlia

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethersphere/kadtable/pkg/kad"
	"github.com/ethersphere/kadtable/pkg/logging"
	"github.com/ethersphere/kadtable/pkg/routingtable"
	"github.com/ethersphere/kadtable/pkg/topology"
	"github.com/hashicorp/go-multierror"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/atomic"
)

var (
	errNotStarted = errors.New("kademlia not started")
	shutdownWait  = 5 * time.Second
)

var _ topology.Driver = (*Kad)(nil)

// Options for injecting services to Kademlia.
type Options struct {
	// Bootnodes are added as known peers on Start. Every address must end
	// with a /p2p component.
	Bootnodes []ma.Multiaddr
	// BucketSize is the routing table bucket capacity.
	BucketSize int
	// NewAddressBook overrides the address book of admitted peers.
	NewAddressBook func() routingtable.AddressBook
}

// Kad is the kademlia topology driver. All routing table access happens on
// the manage loop, so every exported method is safe for concurrent use.
type Kad struct {
	base      routingtable.PeerKey       // this node's key
	table     *routingtable.RoutingTable // only touched by manage
	bootnodes []ma.Multiaddr
	connected map[peer.ID]struct{}  // peers with an active session
	collector *peerMetricsCollector // per peer connection statistics
	now       func() time.Time
	opC       chan func()
	logger    logging.Logger
	metrics   metrics
	started   *atomic.Bool
	quit      chan struct{} // quit channel
	done      chan struct{} // signal that `manage` has quit
	closeOnce sync.Once
}

// New returns a new Kademlia.
func New(base peer.ID, logger logging.Logger, o Options) *Kad {
	key := kad.NewKey(base)
	return &Kad{
		base: key,
		table: routingtable.New(key, logger, routingtable.Options{
			BucketSize:     o.BucketSize,
			NewAddressBook: o.NewAddressBook,
		}),
		bootnodes: o.Bootnodes,
		connected: make(map[peer.ID]struct{}),
		collector: newPeerMetricsCollector(),
		now:       time.Now,
		opC:       make(chan func()),
		logger:    logger,
		metrics:   newMetrics(),
		started:   atomic.NewBool(false),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the manage loop and adds the bootnodes. Bootnodes that cannot
// be added are logged and skipped.
func (k *Kad) Start(ctx context.Context) error {
	if !k.started.CAS(false, true) {
		return nil
	}
	go k.manage()

	if err := k.addBootnodes(ctx); err != nil {
		k.logger.Warningf("kademlia: %v", err)
	}
	return nil
}

func (k *Kad) addBootnodes(ctx context.Context) error {
	var mErr error
	for _, addr := range k.bootnodes {
		info, err := peer.AddrInfoFromP2pAddr(addr)
		if err == nil {
			_, err = k.AddPeer(ctx, info.ID, info.Addrs...)
		}
		if err != nil {
			k.metrics.BootnodeErrorsCount.Inc()
			mErr = multierror.Append(mErr, fmt.Errorf("bootnode %s: %w", addr, err))
			continue
		}
		k.logger.Debugf("kademlia: added bootnode %s", info.ID)
	}
	return mErr
}

func (k *Kad) manage() {
	defer close(k.done)

	for {
		select {
		case <-k.quit:
			return
		case op := <-k.opC:
			op()
		}
	}
}

// do runs op on the manage loop and waits for it to return.
func (k *Kad) do(ctx context.Context, op func()) error {
	if !k.started.Load() {
		select {
		case <-k.quit:
			return topology.ErrClosed
		default:
			return errNotStarted
		}
	}

	done := make(chan struct{})
	select {
	case k.opC <- func() { defer close(done); op() }:
	case <-k.quit:
		return topology.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// AddPeer records addresses of a discovered peer. The peer is inserted as
// connected if a session with it is active.
func (k *Kad) AddPeer(ctx context.Context, id peer.ID, addrs ...ma.Multiaddr) (kind routingtable.EntryKind, err error) {
	if id == k.base.Preimage() {
		return routingtable.EntryLocalNode, topology.ErrWantSelf
	}

	var ok bool
	if err := k.do(ctx, func() {
		state := routingtable.NotConnected
		if _, c := k.connected[id]; c {
			state = routingtable.Connected
		}
		kind, ok = k.table.AddKnownPeer(id, addrs, state)
	}); err != nil {
		return routingtable.EntryNone, err
	}
	if !ok {
		return routingtable.EntryNone, topology.ErrNoAddress
	}

	k.metrics.AddPeerCount.Inc()
	k.logger.Tracef("kademlia: add peer %s: %s", id, kind)
	return kind, nil
}

// DialFailed penalizes the addresses of a known peer that could not be
// dialed.
func (k *Kad) DialFailed(ctx context.Context, id peer.ID, addrs ...ma.Multiaddr) error {
	k.metrics.DialFailureCount.Inc()
	return k.do(ctx, func() {
		key := kad.NewKey(id)
		if k.table.Entry(key).Peer() == nil {
			return
		}
		k.table.OnDialFailure(key, addrs)
		k.collector.record(id, incDialFailures())
	})
}

// Connected marks a known peer connected. Peers that are not in the routing
// table are only tracked as connected, so that they are admitted in the
// connected state when discovered later.
func (k *Kad) Connected(ctx context.Context, id peer.ID, endpoint routingtable.Endpoint) error {
	k.metrics.ConnectedCount.Inc()
	return k.do(ctx, func() {
		k.connected[id] = struct{}{}
		k.metrics.ConnectedPeers.Set(float64(len(k.connected)))

		key := kad.NewKey(id)
		k.table.OnConnectionEstablished(key, endpoint)
		if k.table.Entry(key).Peer() != nil {
			now := k.now()
			k.collector.record(id, setLastSeen(now), startSession(now, endpoint.Direction))
		}
	})
}

// Disconnected marks a peer not connected. The peer stays in the routing
// table until it is evicted.
func (k *Kad) Disconnected(id peer.ID) {
	k.metrics.DisconnectedCount.Inc()
	err := k.do(context.Background(), func() {
		delete(k.connected, id)
		k.metrics.ConnectedPeers.Set(float64(len(k.connected)))

		key := kad.NewKey(id)
		k.table.OnConnectionClosed(key)
		if k.table.Entry(key).Peer() != nil {
			now := k.now()
			k.collector.record(id, setLastSeen(now), endSession(now))
		}
	})
	if err != nil {
		k.logger.Debugf("kademlia: disconnected %s: %v", id, err)
	}
}

// ClosestPeers returns up to limit known peers ordered by ascending distance
// to target.
func (k *Kad) ClosestPeers(ctx context.Context, target kad.Identified, limit int) (peers []routingtable.Peer, err error) {
	k.metrics.ClosestPeersCount.Inc()
	if err := k.do(ctx, func() {
		peers = k.table.Closest(target, limit)
	}); err != nil {
		return nil, err
	}
	return peers, nil
}

// PeerInfo returns the routing table record of a known peer.
func (k *Kad) PeerInfo(ctx context.Context, id peer.ID) (info *topology.PeerInfo, err error) {
	key := kad.NewKey(id)
	bucket, ok := k.base.Distance(key).BucketIndex()
	if !ok {
		return nil, topology.ErrWantSelf
	}

	if err := k.do(ctx, func() {
		p := k.table.Entry(key).Peer()
		if p == nil {
			return
		}
		info = &topology.PeerInfo{
			ID:         id.String(),
			Bucket:     bucket,
			Connection: p.Connection().String(),
			Addresses:  multiaddrStrings(p.Addresses()),
		}
		if s, ok := k.collector.snapshot(k.now(), id); ok {
			info.Metrics = s
		}
	}); err != nil {
		return nil, err
	}
	if info == nil {
		return nil, topology.ErrNotFound
	}
	return info, nil
}

// Snapshot returns a view of the routing table. Connection statistics of
// peers that are no longer in the routing table are dropped.
func (k *Kad) Snapshot(ctx context.Context) (params *topology.KadParams, err error) {
	if err := k.do(ctx, func() {
		params = &topology.KadParams{
			Base:       k.base.Preimage().String(),
			BucketSize: k.table.BucketSize(),
			Timestamp:  k.now(),
			Buckets:    []topology.BucketInfo{},
		}

		known := make(map[peer.ID]struct{})
		for _, b := range k.table.Buckets() {
			info := topology.BucketInfo{Index: b.Index, Population: len(b.Peers)}
			for _, p := range b.Peers {
				known[p.ID] = struct{}{}
				if p.Connection == routingtable.Connected {
					info.Connected++
					info.ConnectedPeers = append(info.ConnectedPeers, p.ID.String())
				} else {
					info.DisconnectedPeers = append(info.DisconnectedPeers, p.ID.String())
				}
			}
			params.Population += info.Population
			params.Connected += info.Connected
			params.Buckets = append(params.Buckets, info)
		}

		k.collector.retain(func(id peer.ID) bool {
			_, ok := known[id]
			return ok
		})
	}); err != nil {
		return nil, err
	}
	return params, nil
}

// Close shuts down kademlia. Calls made after Close return
// topology.ErrClosed.
func (k *Kad) Close() error {
	k.closeOnce.Do(func() {
		k.logger.Info("kademlia shutting down")
		close(k.quit)

		if !k.started.Load() {
			return
		}
		select {
		case <-k.done:
		case <-time.After(shutdownWait):
			k.logger.Warning("kademlia manage loop did not shut down properly")
		}
	})
	return nil
}

func multiaddrStrings(addrs []ma.Multiaddr) []string {
	ret := make([]string, 0, len(addrs))
	for _, a := range addrs {
		ret = append(ret, a.String())
	}
	return ret
}
