// Copyright 2022 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package routingtable_test

import (
	"errors"
	"testing"

	"github.com/ethersphere/kadtable/pkg/addressbook"
	"github.com/ethersphere/kadtable/pkg/kad"
	"github.com/ethersphere/kadtable/pkg/kad/test"
	"github.com/ethersphere/kadtable/pkg/routingtable"
)

func randomKey(t *testing.T) routingtable.PeerKey {
	t.Helper()
	return kad.NewKey(test.RandomPeer(t))
}

func mustInsert(t *testing.T, b *routingtable.KBucket, key routingtable.PeerKey, c routingtable.ConnectionState) *routingtable.PeerEntry {
	t.Helper()

	e := b.Entry(key)
	if e.Kind() != routingtable.EntryVacant {
		t.Fatalf("got kind %v, want %v", e.Kind(), routingtable.EntryVacant)
	}
	p, err := e.Insert(addressbook.New(addressbook.DefaultMaxAddresses), c)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestKBucketAdmitsBelowCapacity(t *testing.T) {
	states := []routingtable.ConnectionState{
		routingtable.Connected,
		routingtable.CanConnect,
		routingtable.NotConnected,
		routingtable.Connected,
	}
	b := routingtable.NewKBucket(len(states), nil)

	for i, s := range states {
		mustInsert(t, b, randomKey(t), s)
		if got := b.Len(); got != i+1 {
			t.Fatalf("got len %d, want %d", got, i+1)
		}
	}
	if b.Capacity() != len(states) {
		t.Fatalf("got capacity %d, want %d", b.Capacity(), len(states))
	}
}

func TestKBucketOccupied(t *testing.T) {
	b := routingtable.NewKBucket(2, nil)
	key := randomKey(t)
	p := mustInsert(t, b, key, routingtable.CanConnect)

	e := b.Entry(key)
	if e.Kind() != routingtable.EntryOccupied {
		t.Fatalf("got kind %v, want %v", e.Kind(), routingtable.EntryOccupied)
	}
	if e.Peer() != p {
		t.Fatal("lookup returned a different entry")
	}
	if e.Peer().Connection() != routingtable.CanConnect {
		t.Fatalf("got connection %v", e.Peer().Connection())
	}
	if _, err := e.Insert(nil, routingtable.Connected); !errors.Is(err, routingtable.ErrNotVacant) {
		t.Fatalf("got error %v, want %v", err, routingtable.ErrNotVacant)
	}
}

func TestKBucketFullConnected(t *testing.T) {
	const k = 3
	b := routingtable.NewKBucket(k, nil)

	var keys []routingtable.PeerKey
	for i := 0; i < k; i++ {
		key := randomKey(t)
		keys = append(keys, key)
		mustInsert(t, b, key, routingtable.Connected)
	}

	e := b.Entry(randomKey(t))
	if e.Kind() != routingtable.EntryNoSlot {
		t.Fatalf("got kind %v, want %v", e.Kind(), routingtable.EntryNoSlot)
	}
	if e.Peer() != nil {
		t.Fatal("no slot entry returned a peer")
	}
	if _, err := e.Insert(nil, routingtable.Connected); !errors.Is(err, routingtable.ErrNotVacant) {
		t.Fatalf("got error %v, want %v", err, routingtable.ErrNotVacant)
	}

	if b.Len() != k {
		t.Fatalf("got len %d, want %d", b.Len(), k)
	}
	for _, key := range keys {
		if b.Entry(key).Kind() != routingtable.EntryOccupied {
			t.Fatalf("peer %s not kept", key)
		}
	}
}

func TestKBucketEvictsOldestNotConnected(t *testing.T) {
	var evicted []*routingtable.PeerEntry
	b := routingtable.NewKBucket(4, func(p *routingtable.PeerEntry) {
		evicted = append(evicted, p)
	})

	connected := mustInsert(t, b, randomKey(t), routingtable.Connected)
	oldest := mustInsert(t, b, randomKey(t), routingtable.NotConnected)
	canConnect := mustInsert(t, b, randomKey(t), routingtable.CanConnect)
	younger := mustInsert(t, b, randomKey(t), routingtable.NotConnected)

	// the oldest not connected peer goes first
	newcomer := randomKey(t)
	mustInsert(t, b, newcomer, routingtable.Connected)

	if len(evicted) != 1 || evicted[0] != oldest {
		t.Fatalf("got evicted %v, want %v", evicted, oldest.Peer())
	}
	if b.Entry(oldest.Key()).Kind() == routingtable.EntryOccupied {
		t.Fatal("evicted peer still present")
	}
	if b.Len() != 4 {
		t.Fatalf("got len %d, want 4", b.Len())
	}

	// then the younger one
	mustInsert(t, b, randomKey(t), routingtable.NotConnected)
	if len(evicted) != 2 || evicted[1] != younger {
		t.Fatalf("got evicted %v, want %v", evicted, younger.Peer())
	}

	// connected and can connect peers are never evicted, but the
	// not connected newcomer from the previous step is
	mustInsert(t, b, randomKey(t), routingtable.Connected)
	if len(evicted) != 3 {
		t.Fatalf("got %d evictions, want 3", len(evicted))
	}

	if b.Entry(randomKey(t)).Kind() != routingtable.EntryNoSlot {
		t.Fatal("expected no slot with all peers reachable")
	}
	for _, p := range []*routingtable.PeerEntry{connected, canConnect} {
		if b.Entry(p.Key()).Kind() != routingtable.EntryOccupied {
			t.Fatalf("peer %s was evicted", p.Peer())
		}
	}
	if b.Entry(newcomer).Kind() != routingtable.EntryOccupied {
		t.Fatal("newcomer was evicted")
	}
}

func TestKBucketLookupHasNoSideEffects(t *testing.T) {
	var evicted int
	b := routingtable.NewKBucket(1, func(*routingtable.PeerEntry) { evicted++ })
	p := mustInsert(t, b, randomKey(t), routingtable.NotConnected)

	for i := 0; i < 3; i++ {
		if e := b.Entry(randomKey(t)); e.Kind() != routingtable.EntryVacant {
			t.Fatalf("got kind %v, want %v", e.Kind(), routingtable.EntryVacant)
		}
	}
	if evicted != 0 {
		t.Fatalf("lookup evicted %d peers", evicted)
	}
	if b.Entry(p.Key()).Kind() != routingtable.EntryOccupied {
		t.Fatal("peer lost after lookups")
	}
}

func TestKBucketStaleEntry(t *testing.T) {
	b := routingtable.NewKBucket(2, nil)

	first := b.Entry(randomKey(t))
	second := b.Entry(randomKey(t))

	if _, err := first.Insert(addressbook.New(1), routingtable.NotConnected); err != nil {
		t.Fatal(err)
	}
	if _, err := second.Insert(addressbook.New(1), routingtable.NotConnected); !errors.Is(err, routingtable.ErrStaleEntry) {
		t.Fatalf("got error %v, want %v", err, routingtable.ErrStaleEntry)
	}
	if b.Len() != 1 {
		t.Fatalf("got len %d, want 1", b.Len())
	}
}

func TestKBucketStaleAfterConnectionChange(t *testing.T) {
	b := routingtable.NewKBucket(1, nil)
	p := mustInsert(t, b, randomKey(t), routingtable.NotConnected)

	// vacant because p is evictable
	e := b.Entry(randomKey(t))
	if e.Kind() != routingtable.EntryVacant {
		t.Fatalf("got kind %v, want %v", e.Kind(), routingtable.EntryVacant)
	}

	p.SetConnection(routingtable.Connected)

	if _, err := e.Insert(addressbook.New(1), routingtable.NotConnected); !errors.Is(err, routingtable.ErrStaleEntry) {
		t.Fatalf("got error %v, want %v", err, routingtable.ErrStaleEntry)
	}
	if b.Entry(p.Key()).Kind() != routingtable.EntryOccupied {
		t.Fatal("connected peer was evicted through a stale entry")
	}
}

func TestKBucketRemove(t *testing.T) {
	b := routingtable.NewKBucket(2, nil)
	key := randomKey(t)
	mustInsert(t, b, key, routingtable.Connected)

	if err := b.Entry(randomKey(t)).Remove(); !errors.Is(err, routingtable.ErrNotOccupied) {
		t.Fatalf("got error %v, want %v", err, routingtable.ErrNotOccupied)
	}

	e := b.Entry(key)
	if err := e.Remove(); err != nil {
		t.Fatal(err)
	}
	if err := e.Remove(); !errors.Is(err, routingtable.ErrStaleEntry) {
		t.Fatalf("got error %v, want %v", err, routingtable.ErrStaleEntry)
	}
	if b.Len() != 0 {
		t.Fatalf("got len %d, want 0", b.Len())
	}
	if b.Entry(key).Kind() != routingtable.EntryVacant {
		t.Fatal("removed peer still present")
	}
}
