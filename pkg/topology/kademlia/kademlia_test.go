// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kademlia_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ethersphere/kadtable/pkg/kad"
	"github.com/ethersphere/kadtable/pkg/kad/test"
	"github.com/ethersphere/kadtable/pkg/logging"
	"github.com/ethersphere/kadtable/pkg/routingtable"
	"github.com/ethersphere/kadtable/pkg/topology"
	"github.com/ethersphere/kadtable/pkg/topology/kademlia"
	"github.com/google/go-cmp/cmp"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

const underlay = "/ip4/127.0.0.1/tcp/1634"

var noopLogger = logging.New(io.Discard, 0)

func newTestKademlia(t *testing.T, o kademlia.Options) (peer.ID, *kademlia.Kad) {
	t.Helper()

	base := test.RandomPeer(t)
	k := kademlia.New(base, noopLogger, o)
	if err := k.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = k.Close() })
	return base, k
}

func p2pAddr(t *testing.T, id peer.ID, underlay string) ma.Multiaddr {
	t.Helper()

	a, err := ma.NewMultiaddr(underlay + "/p2p/" + id.Pretty())
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func addOne(t *testing.T, k *kademlia.Kad, id peer.ID) {
	t.Helper()

	if _, err := k.AddPeer(context.Background(), id, p2pAddr(t, id, underlay)); err != nil {
		t.Fatal(err)
	}
}

func TestNotStarted(t *testing.T) {
	k := kademlia.New(test.RandomPeer(t), noopLogger, kademlia.Options{})
	defer k.Close()

	id := test.RandomPeer(t)
	if _, err := k.AddPeer(context.Background(), id, p2pAddr(t, id, underlay)); !errors.Is(err, kademlia.ErrNotStarted) {
		t.Fatalf("got error %v, want %v", err, kademlia.ErrNotStarted)
	}
}

func TestClosed(t *testing.T) {
	k := kademlia.New(test.RandomPeer(t), noopLogger, kademlia.Options{})
	if err := k.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := k.Close(); err != nil {
		t.Fatal(err)
	}
	if err := k.Close(); err != nil {
		t.Fatal(err)
	}

	id := test.RandomPeer(t)
	if _, err := k.AddPeer(context.Background(), id, p2pAddr(t, id, underlay)); !errors.Is(err, topology.ErrClosed) {
		t.Fatalf("got error %v, want %v", err, topology.ErrClosed)
	}
	if _, err := k.ClosestPeers(context.Background(), kad.NewKey(id), 1); !errors.Is(err, topology.ErrClosed) {
		t.Fatalf("got error %v, want %v", err, topology.ErrClosed)
	}
	if _, err := k.Snapshot(context.Background()); !errors.Is(err, topology.ErrClosed) {
		t.Fatalf("got error %v, want %v", err, topology.ErrClosed)
	}
	// does not block
	k.Disconnected(id)
}

func TestBootnodes(t *testing.T) {
	var (
		good    = test.RandomPeers(t, 2)
		bare    = test.RandomPeer(t)
		noP2P   = ma.StringCast(underlay)
		options = kademlia.Options{
			Bootnodes: []ma.Multiaddr{
				p2pAddr(t, good[0], underlay),
				ma.StringCast("/p2p/" + bare.Pretty()),
				noP2P,
				p2pAddr(t, good[1], "/ip6/::1/tcp/1634"),
			},
		}
	)

	_, k := newTestKademlia(t, options)

	s, err := k.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.Population != len(good) {
		t.Fatalf("got population %d, want %d", s.Population, len(good))
	}

	for _, id := range good {
		info, err := k.PeerInfo(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if info.Connection != routingtable.NotConnected.String() {
			t.Fatalf("got connection %s, want %s", info.Connection, routingtable.NotConnected)
		}
		if len(info.Addresses) != 1 {
			t.Fatalf("got addresses %v", info.Addresses)
		}
	}
	if _, err := k.PeerInfo(context.Background(), bare); !errors.Is(err, topology.ErrNotFound) {
		t.Fatalf("got error %v, want %v", err, topology.ErrNotFound)
	}
}

func TestAddPeer(t *testing.T) {
	base, k := newTestKademlia(t, kademlia.Options{})
	ctx := context.Background()

	if _, err := k.AddPeer(ctx, base, p2pAddr(t, base, underlay)); !errors.Is(err, topology.ErrWantSelf) {
		t.Fatalf("got error %v, want %v", err, topology.ErrWantSelf)
	}

	id := test.RandomPeer(t)
	if kind, err := k.AddPeer(ctx, id); !errors.Is(err, topology.ErrNoAddress) || kind != routingtable.EntryNone {
		t.Fatalf("got %v, %v, want %v, %v", kind, err, routingtable.EntryNone, topology.ErrNoAddress)
	}

	kind, err := k.AddPeer(ctx, id, p2pAddr(t, id, underlay))
	if err != nil {
		t.Fatal(err)
	}
	if kind != routingtable.EntryVacant {
		t.Fatalf("got kind %v, want %v", kind, routingtable.EntryVacant)
	}

	kind, err = k.AddPeer(ctx, id, p2pAddr(t, id, "/ip4/10.0.0.1/tcp/1634"))
	if err != nil {
		t.Fatal(err)
	}
	if kind != routingtable.EntryOccupied {
		t.Fatalf("got kind %v, want %v", kind, routingtable.EntryOccupied)
	}

	info, err := k.PeerInfo(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Addresses) != 2 {
		t.Fatalf("got addresses %v, want 2", info.Addresses)
	}
	if _, err := k.PeerInfo(ctx, base); !errors.Is(err, topology.ErrWantSelf) {
		t.Fatalf("got error %v, want %v", err, topology.ErrWantSelf)
	}
}

// TestConnectedBeforeDiscovery checks that a peer with an active session is
// admitted as connected when its addresses are learned later.
func TestConnectedBeforeDiscovery(t *testing.T) {
	_, k := newTestKademlia(t, kademlia.Options{})
	ctx := context.Background()
	id := test.RandomPeer(t)

	if err := k.Connected(ctx, id, routingtable.Endpoint{Direction: routingtable.DirectionInbound}); err != nil {
		t.Fatal(err)
	}
	if _, err := k.PeerInfo(ctx, id); !errors.Is(err, topology.ErrNotFound) {
		t.Fatalf("got error %v, want %v", err, topology.ErrNotFound)
	}

	addOne(t, k, id)

	info, err := k.PeerInfo(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if info.Connection != routingtable.Connected.String() {
		t.Fatalf("got connection %s, want %s", info.Connection, routingtable.Connected)
	}

	k.Disconnected(id)
	addOne(t, k, id)

	info, err = k.PeerInfo(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if info.Connection != routingtable.NotConnected.String() {
		t.Fatalf("got connection %s, want %s", info.Connection, routingtable.NotConnected)
	}
}

func TestPeerMetrics(t *testing.T) {
	_, k := newTestKademlia(t, kademlia.Options{})
	ctx := context.Background()

	var (
		t0  = time.Date(2022, 3, 1, 12, 0, 0, 0, time.UTC)
		now = t0
	)
	k.SetNow(func() time.Time { return now })

	id := test.RandomPeer(t)
	addr := p2pAddr(t, id, underlay)
	addOne(t, k, id)

	for i := 0; i < 2; i++ {
		if err := k.DialFailed(ctx, id, addr); err != nil {
			t.Fatal(err)
		}
	}
	check := func(want topology.PeerMetrics) {
		t.Helper()

		info, err := k.PeerInfo(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if info.Metrics == nil {
			t.Fatal("no metrics")
		}
		if diff := cmp.Diff(want, *info.Metrics); diff != "" {
			t.Fatalf("mismatch (-want +got):\n%s", diff)
		}
	}
	check(topology.PeerMetrics{SessionDialFailures: 2})

	if err := k.Connected(ctx, id, routingtable.Endpoint{Address: addr, Direction: routingtable.DirectionOutbound}); err != nil {
		t.Fatal(err)
	}
	now = t0.Add(10 * time.Second)
	check(topology.PeerMetrics{
		LastSeen:                   t0,
		ConnectionTotalDuration:    10 * time.Second,
		SessionConnectionDuration:  10 * time.Second,
		SessionConnectionDirection: "outbound",
	})

	now = t0.Add(20 * time.Second)
	k.Disconnected(id)
	check(topology.PeerMetrics{
		LastSeen:                   t0.Add(20 * time.Second),
		ConnectionTotalDuration:    20 * time.Second,
		SessionConnectionDirection: "outbound",
	})
}

func TestSnapshot(t *testing.T) {
	base, k := newTestKademlia(t, kademlia.Options{})
	ctx := context.Background()

	ids := test.RandomPeers(t, 10)
	for _, id := range ids {
		addOne(t, k, id)
	}
	for _, id := range ids[:3] {
		if err := k.Connected(ctx, id, routingtable.Endpoint{Direction: routingtable.DirectionInbound}); err != nil {
			t.Fatal(err)
		}
	}

	s, err := k.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.Base != base.String() {
		t.Fatalf("got base %s, want %s", s.Base, base)
	}
	if s.BucketSize != routingtable.DefaultBucketSize {
		t.Fatalf("got bucket size %d, want %d", s.BucketSize, routingtable.DefaultBucketSize)
	}
	if s.Population != len(ids) {
		t.Fatalf("got population %d, want %d", s.Population, len(ids))
	}
	if s.Connected != 3 {
		t.Fatalf("got connected %d, want 3", s.Connected)
	}

	var population, connected int
	for _, b := range s.Buckets {
		population += b.Population
		connected += len(b.ConnectedPeers)
		if b.Population != len(b.ConnectedPeers)+len(b.DisconnectedPeers) {
			t.Fatalf("bucket %d: inconsistent population", b.Index)
		}
	}
	if population != s.Population || connected != s.Connected {
		t.Fatalf("got bucket totals %d/%d, want %d/%d", population, connected, s.Population, s.Connected)
	}
}

// TestClosestPeers checks that the driver answers as a routing table fed with
// the same events.
func TestClosestPeers(t *testing.T) {
	base, k := newTestKademlia(t, kademlia.Options{})
	table := routingtable.New(kad.NewKey(base), noopLogger, routingtable.Options{})
	ctx := context.Background()

	for _, id := range test.RandomPeers(t, 100) {
		addOne(t, k, id)
		table.AddKnownPeer(id, []ma.Multiaddr{p2pAddr(t, id, underlay)}, routingtable.NotConnected)
	}

	for i := 0; i < 10; i++ {
		target := kad.NewKey(test.RandomPeer(t))
		got, err := k.ClosestPeers(ctx, target, 16)
		if err != nil {
			t.Fatal(err)
		}
		want := table.Closest(target, 16)
		if diff := cmp.Diff(peerIDs(want), peerIDs(got)); diff != "" {
			t.Fatalf("mismatch (-want +got):\n%s", diff)
		}
	}
}

func peerIDs(peers []routingtable.Peer) []peer.ID {
	ret := make([]peer.ID, 0, len(peers))
	for _, p := range peers {
		ret = append(ret, p.ID)
	}
	return ret
}

func TestConcurrentAccess(t *testing.T) {
	_, k := newTestKademlia(t, kademlia.Options{})
	ctx := context.Background()
	ids := test.RandomPeers(t, 40)

	var wg sync.WaitGroup
	for _, id := range ids {
		id := id
		addr := p2pAddr(t, id, underlay)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := k.AddPeer(ctx, id, addr); err != nil {
				t.Error(err)
				return
			}
			if err := k.Connected(ctx, id, routingtable.Endpoint{Address: addr, Direction: routingtable.DirectionOutbound}); err != nil {
				t.Error(err)
			}
			if _, err := k.ClosestPeers(ctx, kad.NewKey(id), 4); err != nil {
				t.Error(err)
			}
			k.Disconnected(id)
		}()
	}
	wg.Wait()

	s, err := k.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.Connected != 0 {
		t.Fatalf("got connected %d, want 0", s.Connected)
	}
	if s.Population == 0 || s.Population > len(ids) {
		t.Fatalf("got population %d", s.Population)
	}
}

func TestContextCanceled(t *testing.T) {
	k := kademlia.New(test.RandomPeer(t), noopLogger, kademlia.Options{})
	if err := k.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer k.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// the loop may still accept the operation, so only a nil or a context
	// error are valid outcomes
	if _, err := k.Snapshot(ctx); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("got error %v", err)
	}
}
