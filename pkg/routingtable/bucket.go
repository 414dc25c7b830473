// Copyright 2022 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package routingtable

import (
	"errors"
	"sort"

	"github.com/ethersphere/kadtable/pkg/kad"
)

var (
	ErrNotVacant   = errors.New("entry is not vacant")
	ErrNotOccupied = errors.New("entry is not occupied")
	ErrStaleEntry  = errors.New("bucket changed since entry lookup")
)

// EntryKind is the outcome of a routing table lookup.
type EntryKind int

const (
	// EntryNone is the zero value. It is returned when no lookup was made.
	EntryNone EntryKind = iota
	// EntryLocalNode means the key is the local node. Nothing is ever
	// stored for it.
	EntryLocalNode
	// EntryOccupied means the peer is present.
	EntryOccupied
	// EntryVacant means the peer is absent and can be inserted, either
	// into free capacity or in place of an evictable occupant.
	EntryVacant
	// EntryNoSlot means the bucket is full and no occupant can be evicted.
	EntryNoSlot
)

func (k EntryKind) String() string {
	switch k {
	case EntryNone:
		return "none"
	case EntryLocalNode:
		return "local-node"
	case EntryOccupied:
		return "occupied"
	case EntryVacant:
		return "vacant"
	case EntryNoSlot:
		return "no-slot"
	default:
		return "unknown"
	}
}

// Entry is a handle to a slot of a bucket returned by a lookup. It is valid
// until the bucket is next modified; using it afterwards yields
// ErrStaleEntry.
type Entry struct {
	kind    EntryKind
	key     PeerKey
	bucket  *KBucket
	slot    int
	version uint64
}

// Kind returns the lookup outcome.
func (e Entry) Kind() EntryKind {
	return e.kind
}

// Key returns the key that was looked up.
func (e Entry) Key() PeerKey {
	return e.key
}

// Peer returns the stored entry of an occupied slot and nil otherwise.
func (e Entry) Peer() *PeerEntry {
	if e.kind != EntryOccupied || !e.valid() {
		return nil
	}
	return e.bucket.entries[e.slot]
}

// Insert fills a vacant slot with a new peer entry. If the slot belongs to
// an evictable occupant, that occupant is dropped.
func (e Entry) Insert(book AddressBook, connection ConnectionState) (*PeerEntry, error) {
	if e.kind != EntryVacant {
		return nil, ErrNotVacant
	}
	if !e.valid() {
		return nil, ErrStaleEntry
	}
	return e.bucket.insert(e.slot, e.key, book, connection), nil
}

// Remove drops the peer of an occupied slot.
func (e Entry) Remove() error {
	if e.kind != EntryOccupied {
		return ErrNotOccupied
	}
	if !e.valid() {
		return ErrStaleEntry
	}
	e.bucket.remove(e.slot)
	return nil
}

func (e Entry) valid() bool {
	return e.bucket != nil && e.bucket.version == e.version
}

// KBucket holds at most k peer entries sharing one bucket index.
type KBucket struct {
	entries []*PeerEntry
	k       int
	seq     uint64 // insertion counter
	version uint64 // bumped on every modification
	evicted func(*PeerEntry)
}

func newKBucket(k int, evicted func(*PeerEntry)) *KBucket {
	return &KBucket{
		entries: make([]*PeerEntry, 0, k),
		k:       k,
		evicted: evicted,
	}
}

// Entry looks up key in the bucket. It has no side effects.
func (b *KBucket) Entry(key PeerKey) Entry {
	e := Entry{key: key, bucket: b, version: b.version}

	for i, p := range b.entries {
		if p.key.Equal(key) {
			e.kind, e.slot = EntryOccupied, i
			return e
		}
	}

	if len(b.entries) < b.k {
		e.kind, e.slot = EntryVacant, len(b.entries)
		return e
	}

	if i, ok := b.evictable(); ok {
		e.kind, e.slot = EntryVacant, i
		return e
	}

	e.kind = EntryNoSlot
	return e
}

// evictable returns the slot of the oldest inserted occupant that is not
// connected. Connected and CanConnect occupants are never evicted.
func (b *KBucket) evictable() (int, bool) {
	slot := -1
	for i, p := range b.entries {
		if p.connection != NotConnected {
			continue
		}
		if slot == -1 || p.seq < b.entries[slot].seq {
			slot = i
		}
	}
	return slot, slot != -1
}

func (b *KBucket) insert(slot int, key PeerKey, book AddressBook, connection ConnectionState) *PeerEntry {
	b.seq++
	b.version++
	p := &PeerEntry{
		key:         key,
		connection:  connection,
		addressBook: book,
		seq:         b.seq,
		bucket:      b,
	}

	if slot == len(b.entries) {
		b.entries = append(b.entries, p)
		return p
	}

	old := b.entries[slot]
	old.bucket = nil
	b.entries[slot] = p
	if b.evicted != nil {
		b.evicted(old)
	}
	return p
}

func (b *KBucket) remove(slot int) {
	b.version++
	b.entries[slot].bucket = nil
	b.entries = append(b.entries[:slot], b.entries[slot+1:]...)
}

// Len returns the number of peers in the bucket.
func (b *KBucket) Len() int {
	return len(b.entries)
}

// Capacity returns the maximal number of peers in the bucket.
func (b *KBucket) Capacity() int {
	return b.k
}

// Peers returns the entries of the bucket in slot order.
func (b *KBucket) Peers() []*PeerEntry {
	ret := make([]*PeerEntry, len(b.entries))
	copy(ret, b.entries)
	return ret
}

// closest returns the entries ordered by ascending distance to target.
func (b *KBucket) closest(target kad.Identified) []*PeerEntry {
	peers := b.Peers()
	id := target.ID()
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].key.Distance(id).Cmp(peers[j].key.Distance(id)) < 0
	})
	return peers
}
