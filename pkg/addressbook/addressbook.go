// Copyright 2022 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package addressbook keeps the candidate network addresses of a single
// peer together with a preference score for each of them.
//
// The book is not safe for concurrent use; it is owned by the routing table
// entry of its peer.
package addressbook

import (
	"sort"

	ma "github.com/multiformats/go-multiaddr"
)

const (
	// ScoreConnectionEstablished rewards an address a local dial succeeded on.
	ScoreConnectionEstablished = 100
	// ScoreConnectionFailure penalizes an address a local dial failed on.
	ScoreConnectionFailure = -100

	// DefaultMaxAddresses bounds the number of addresses kept per peer.
	DefaultMaxAddresses = 64
)

type record struct {
	addr  ma.Multiaddr
	score int
	seq   uint64 // order of first insertion, breaks score ties
}

// Book is a bounded, scored collection of addresses of one peer.
type Book struct {
	records map[string]*record // key: binary form of the address
	max     int
	seq     uint64
}

// New returns an empty Book that keeps at most max addresses.
// Non-positive max falls back to DefaultMaxAddresses.
func New(max int) *Book {
	if max <= 0 {
		max = DefaultMaxAddresses
	}
	return &Book{
		records: make(map[string]*record),
		max:     max,
	}
}

// InsertOrUpdate adds delta to the score of addr. An unknown address is
// inserted with delta as its initial score. When the book is full the new
// address replaces the lowest scored one, but only if it scores higher.
func (b *Book) InsertOrUpdate(addr ma.Multiaddr, delta int) {
	if addr == nil {
		return
	}
	k := string(addr.Bytes())
	if r, ok := b.records[k]; ok {
		r.score += delta
		return
	}

	if len(b.records) >= b.max {
		worst := b.worst()
		if worst == nil || worst.score >= delta {
			return
		}
		delete(b.records, string(worst.addr.Bytes()))
	}

	b.seq++
	b.records[k] = &record{addr: addr, score: delta, seq: b.seq}
}

// Score returns the score of addr and whether the address is known.
func (b *Book) Score(addr ma.Multiaddr) (int, bool) {
	r, ok := b.records[string(addr.Bytes())]
	if !ok {
		return 0, false
	}
	return r.score, true
}

// Addresses returns all addresses, best scored first. Addresses with equal
// scores keep their insertion order.
func (b *Book) Addresses() []ma.Multiaddr {
	records := b.sorted()
	addrs := make([]ma.Multiaddr, len(records))
	for i, r := range records {
		addrs[i] = r.addr
	}
	return addrs
}

// Len returns the number of addresses in the book.
func (b *Book) Len() int {
	return len(b.records)
}

func (b *Book) sorted() []*record {
	records := make([]*record, 0, len(b.records))
	for _, r := range b.records {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].score != records[j].score {
			return records[i].score > records[j].score
		}
		return records[i].seq < records[j].seq
	})
	return records
}

// worst returns the lowest scored record, the most recently inserted one
// on ties.
func (b *Book) worst() *record {
	var w *record
	for _, r := range b.records {
		if w == nil || r.score < w.score || (r.score == w.score && r.seq > w.seq) {
			w = r
		}
	}
	return w
}
