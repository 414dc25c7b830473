// Copyright 2022 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package routingtable implements the Kademlia peer routing table of the
// overlay: peers organized in fixed capacity buckets by XOR distance from
// the local node, and nearest peer queries over them.
//
// The table is not safe for concurrent use. It is owned by a single task
// that serializes every call.
package routingtable

import (
	"github.com/ethersphere/kadtable/pkg/addressbook"
	"github.com/ethersphere/kadtable/pkg/kad"
	"github.com/ethersphere/kadtable/pkg/logging"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// DefaultBucketSize is the default bucket capacity, K.
const DefaultBucketSize = 20

// Options for configuring the RoutingTable.
type Options struct {
	// BucketSize is the capacity of every bucket. Zero means DefaultBucketSize.
	BucketSize int
	// NewAddressBook constructs the address book of a newly admitted peer.
	// Defaults to an addressbook.Book with addressbook.DefaultMaxAddresses.
	NewAddressBook func() AddressBook
}

// RoutingTable holds one bucket for every possible bucket index relative to
// the local key.
type RoutingTable struct {
	local          PeerKey
	bucketSize     int
	buckets        [kad.Bits]*KBucket
	newAddressBook func() AddressBook
	logger         logging.Logger
	metrics        metrics
}

// New returns an empty RoutingTable for the local key.
func New(local PeerKey, logger logging.Logger, o Options) *RoutingTable {
	if o.BucketSize <= 0 {
		o.BucketSize = DefaultBucketSize
	}
	if o.NewAddressBook == nil {
		o.NewAddressBook = func() AddressBook {
			return addressbook.New(addressbook.DefaultMaxAddresses)
		}
	}

	t := &RoutingTable{
		local:          local,
		bucketSize:     o.BucketSize,
		newAddressBook: o.NewAddressBook,
		logger:         logger,
		metrics:        newMetrics(),
	}
	for i := range t.buckets {
		t.buckets[i] = newKBucket(o.BucketSize, t.evicted)
	}
	return t
}

// Local returns the local key.
func (t *RoutingTable) Local() PeerKey {
	return t.local
}

// BucketSize returns the capacity of every bucket.
func (t *RoutingTable) BucketSize() int {
	return t.bucketSize
}

// Entry looks up key. Every insertion, update and removal goes through the
// handle returned here.
func (t *RoutingTable) Entry(key PeerKey) Entry {
	i, ok := t.local.Distance(key).BucketIndex()
	if !ok {
		return Entry{kind: EntryLocalNode, key: key}
	}
	return t.buckets[i].Entry(key)
}

// AddKnownPeer records addresses for the peer id. Addresses are normalized
// to carry the peer identity. A known peer gets the addresses merged into
// its address book and its connection state overwritten; an unknown peer is
// admitted if its bucket has room. Nothing happens if no address is given.
//
// Merged addresses enter the book with a zero score. The book is bounded, so
// once it is full and every stored score is zero or higher, a new address is
// not kept.
//
// The lookup outcome is returned so that callers can observe rejections.
// The boolean is false if the call was ignored for lack of addresses, and
// the kind is then EntryNone.
func (t *RoutingTable) AddKnownPeer(id peer.ID, addrs []ma.Multiaddr, connection ConnectionState) (EntryKind, bool) {
	addrs = addressbook.NormalizeAll(addrs, id)
	if len(addrs) == 0 {
		return EntryNone, false
	}

	e := t.Entry(kad.NewKey(id))
	switch e.Kind() {
	case EntryOccupied:
		p := e.Peer()
		for _, a := range addrs {
			p.addressBook.InsertOrUpdate(a, 0)
		}
		p.SetConnection(connection)

	case EntryVacant:
		book := t.newAddressBook()
		for _, a := range addrs {
			book.InsertOrUpdate(a, 0)
		}
		if _, err := e.Insert(book, connection); err != nil {
			t.logger.Errorf("routing table: insert peer %s: %v", id, err)
			return e.Kind(), true
		}
		t.metrics.InsertedPeers.Inc()
		t.metrics.Peers.Inc()

	case EntryLocalNode:
		t.logger.Warningf("routing table: attempt to add local peer %s as remote", id)
		t.metrics.LocalNodeRejections.Inc()

	case EntryNoSlot:
		t.logger.Tracef("routing table: no slot for peer %s", id)
		t.metrics.NoSlotRejections.Inc()
	}

	return e.Kind(), true
}

// OnDialFailure penalizes every address that failed to dial. Unknown peers
// are ignored.
func (t *RoutingTable) OnDialFailure(key PeerKey, addrs []ma.Multiaddr) {
	p := t.Entry(key).Peer()
	if p == nil {
		return
	}
	for _, a := range addressbook.NormalizeAll(addrs, key.Preimage()) {
		p.addressBook.InsertOrUpdate(a, addressbook.ScoreConnectionFailure)
		t.metrics.PenalizedAddresses.Inc()
	}
}

// OnConnectionEstablished marks a known peer connected. For connections
// dialed by the local node the dialed address is rewarded. Addresses of
// inbound connections are not recorded as the remote may use an ephemeral
// port.
func (t *RoutingTable) OnConnectionEstablished(key PeerKey, endpoint Endpoint) {
	p := t.Entry(key).Peer()
	if p == nil {
		return
	}
	p.SetConnection(Connected)

	if endpoint.Direction != DirectionOutbound || endpoint.Address == nil {
		return
	}
	p.addressBook.InsertOrUpdate(addressbook.Normalize(endpoint.Address, key.Preimage()), addressbook.ScoreConnectionEstablished)
	t.metrics.RewardedAddresses.Inc()
}

// OnConnectionClosed marks a known peer not connected, which makes it
// evictable again.
func (t *RoutingTable) OnConnectionClosed(key PeerKey) {
	if p := t.Entry(key).Peer(); p != nil {
		p.SetConnection(NotConnected)
	}
}

// Remove drops a known peer and reports whether it was present.
func (t *RoutingTable) Remove(key PeerKey) bool {
	if err := t.Entry(key).Remove(); err != nil {
		return false
	}
	t.metrics.RemovedPeers.Inc()
	t.metrics.Peers.Dec()
	return true
}

// Closest returns up to limit peers ordered by ascending distance to
// target. Only the buckets needed to fill the result are visited.
func (t *RoutingTable) Closest(target kad.Identified, limit int) []Peer {
	if limit <= 0 {
		return nil
	}
	t.metrics.ClosestQueries.Inc()

	var (
		it      = NewClosestIterator(t.local.Distance(target))
		peers   = make([]Peer, 0, limit)
		prev    = -1
		visited = 0
	)
	defer func() { t.metrics.ClosestVisitedBuckets.Observe(float64(visited)) }()

	for i, ok := it.Next(); ok; i, ok = it.Next() {
		if i == prev {
			continue
		}
		prev = i
		visited++

		for _, p := range t.buckets[i].closest(target) {
			peers = append(peers, p.view())
			if len(peers) == limit {
				return peers
			}
		}
	}
	return peers
}

// Len returns the number of stored peers.
func (t *RoutingTable) Len() int {
	var n int
	for _, b := range t.buckets {
		n += b.Len()
	}
	return n
}

// Bucket is a detached view of a non-empty bucket.
type Bucket struct {
	Index int
	Peers []Peer
}

// Buckets returns views of all non-empty buckets, nearest bucket first.
func (t *RoutingTable) Buckets() []Bucket {
	var ret []Bucket
	for i := 0; i < len(t.buckets); i++ {
		b := t.buckets[i]
		if b.Len() == 0 {
			continue
		}
		v := Bucket{Index: i, Peers: make([]Peer, 0, b.Len())}
		for _, p := range b.entries {
			v.Peers = append(v.Peers, p.view())
		}
		ret = append(ret, v)
	}
	return ret
}

func (t *RoutingTable) evicted(p *PeerEntry) {
	t.logger.Debugf("routing table: evicted not connected peer %s", p.Peer())
	t.metrics.EvictedPeers.Inc()
	t.metrics.Peers.Dec()
}
