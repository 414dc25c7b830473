// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package topology defines the interfaces of the component that owns the
// routing table and feeds it with peer and connection events.
package topology

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/ethersphere/kadtable/pkg/kad"
	"github.com/ethersphere/kadtable/pkg/routingtable"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

var (
	ErrNotFound  = errors.New("no peer found")
	ErrWantSelf  = errors.New("node wants self")
	ErrNoAddress = errors.New("no usable address")
	ErrClosed    = errors.New("topology closed")
)

type Driver interface {
	PeerAdder
	DialFailer
	ClosestPeerer
	Notifier
	PeerInfo(ctx context.Context, id peer.ID) (*PeerInfo, error)
	Snapshot(ctx context.Context) (*KadParams, error)
	io.Closer
}

type Notifier interface {
	Connecter
	Disconnecter
}

type PeerAdder interface {
	// AddPeer records addresses of a discovered peer. The returned kind
	// tells whether the peer was already known, admitted or rejected.
	AddPeer(ctx context.Context, id peer.ID, addrs ...ma.Multiaddr) (routingtable.EntryKind, error)
}

type DialFailer interface {
	// DialFailed is called when dialing the given addresses of a peer
	// failed.
	DialFailed(ctx context.Context, id peer.ID, addrs ...ma.Multiaddr) error
}

type Connecter interface {
	// Connected is called when a session with a peer is established,
	// either dialed by the local node or accepted from the remote.
	Connected(ctx context.Context, id peer.ID, endpoint routingtable.Endpoint) error
}

type Disconnecter interface {
	// Disconnected is called when the last session with a peer is closed.
	// The peer stays known, but becomes evictable.
	Disconnected(id peer.ID)
}

type ClosestPeerer interface {
	ClosestPeers(ctx context.Context, target kad.Identified, limit int) ([]routingtable.Peer, error)
}

// BucketInfo describes a single non-empty bucket.
type BucketInfo struct {
	Index             int      `json:"index" yaml:"index"`
	Population        int      `json:"population" yaml:"population"`
	Connected         int      `json:"connected" yaml:"connected"`
	ConnectedPeers    []string `json:"connectedPeers" yaml:"connectedPeers"`
	DisconnectedPeers []string `json:"disconnectedPeers" yaml:"disconnectedPeers"`
}

// KadParams is a point in time view of the routing table.
type KadParams struct {
	Base       string       `json:"baseAddr" yaml:"baseAddr"`
	Population int          `json:"population" yaml:"population"`
	Connected  int          `json:"connected" yaml:"connected"`
	BucketSize int          `json:"bucketSize" yaml:"bucketSize"`
	Timestamp  time.Time    `json:"timestamp" yaml:"timestamp"`
	Buckets    []BucketInfo `json:"buckets" yaml:"buckets"`
}

// PeerInfo describes a single known peer.
type PeerInfo struct {
	ID         string       `json:"id" yaml:"id"`
	Bucket     int          `json:"bucket" yaml:"bucket"`
	Connection string       `json:"connection" yaml:"connection"`
	Addresses  []string     `json:"addresses" yaml:"addresses"`
	Metrics    *PeerMetrics `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// PeerMetrics are connection statistics of a peer.
type PeerMetrics struct {
	LastSeen                   time.Time     `json:"lastSeen" yaml:"lastSeen"`
	ConnectionTotalDuration    time.Duration `json:"connectionTotalDuration" yaml:"connectionTotalDuration"`
	SessionConnectionDuration  time.Duration `json:"sessionConnectionDuration" yaml:"sessionConnectionDuration"`
	SessionConnectionDirection string        `json:"sessionConnectionDirection" yaml:"sessionConnectionDirection"`
	SessionDialFailures        int           `json:"sessionDialFailures" yaml:"sessionDialFailures"`
}
