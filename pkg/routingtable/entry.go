// Copyright 2022 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package routingtable

import (
	"github.com/ethersphere/kadtable/pkg/kad"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// PeerKey is the routing key of a peer identity.
type PeerKey = kad.Key[peer.ID]

// ConnectionState describes what is known about the reachability of a peer.
type ConnectionState int

const (
	// NotConnected means there is no session and reachability is unknown.
	// Only peers in this state can be evicted from a full bucket.
	NotConnected ConnectionState = iota
	// Connected means there is an active session with the peer.
	Connected
	// CanConnect means there is no session, but the peer was reachable
	// before. Preferred over NotConnected for dialing.
	CanConnect
)

func (s ConnectionState) String() string {
	switch s {
	case NotConnected:
		return "not-connected"
	case Connected:
		return "connected"
	case CanConnect:
		return "can-connect"
	default:
		return "unknown"
	}
}

// Direction tells which side initiated a connection.
type Direction int

const (
	DirectionInbound Direction = iota
	DirectionOutbound
)

func (d Direction) String() string {
	if d == DirectionOutbound {
		return "outbound"
	}
	return "inbound"
}

// Endpoint describes an established connection.
type Endpoint struct {
	Address   ma.Multiaddr
	Direction Direction
}

// AddressBook is the address scoring collaborator of a peer entry. The
// routing table forwards score deltas to it and never inspects scores.
type AddressBook interface {
	// InsertOrUpdate adds delta to the score of addr, inserting it if the
	// address is unknown.
	InsertOrUpdate(addr ma.Multiaddr, delta int)
	// Addresses returns the addresses, most preferred first.
	Addresses() []ma.Multiaddr
}

// PeerEntry is the record of a single peer held in a bucket.
type PeerEntry struct {
	key         PeerKey
	connection  ConnectionState
	addressBook AddressBook
	seq         uint64   // bucket insertion order
	bucket      *KBucket // owner, invalidates outstanding handles on change
}

// Peer returns the identity of the peer.
func (e *PeerEntry) Peer() peer.ID {
	return e.key.Preimage()
}

// Key returns the routing key of the peer.
func (e *PeerEntry) Key() PeerKey {
	return e.key
}

// Connection returns the current connection state.
func (e *PeerEntry) Connection() ConnectionState {
	return e.connection
}

// SetConnection overwrites the connection state.
func (e *PeerEntry) SetConnection(s ConnectionState) {
	if e.connection == s {
		return
	}
	e.connection = s
	if e.bucket != nil {
		e.bucket.version++
	}
}

// AddressBook returns the address book of the peer.
func (e *PeerEntry) AddressBook() AddressBook {
	return e.addressBook
}

// Addresses returns the known addresses, most preferred first.
func (e *PeerEntry) Addresses() []ma.Multiaddr {
	return e.addressBook.Addresses()
}

// Peer is a detached view of a peer entry returned by queries.
type Peer struct {
	ID         peer.ID
	Addresses  []ma.Multiaddr
	Connection ConnectionState
}

func (e *PeerEntry) view() Peer {
	return Peer{
		ID:         e.Peer(),
		Addresses:  e.Addresses(),
		Connection: e.connection,
	}
}
