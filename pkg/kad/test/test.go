// Copyright 2022 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package test provides helpers for generating peer identities at known
// positions of the metric space.
package test

import (
	"crypto/rand"
	"testing"

	"github.com/ethersphere/kadtable/pkg/kad"
	"github.com/libp2p/go-libp2p-core/crypto"
	"github.com/libp2p/go-libp2p-core/peer"
)

// maxAttempts bounds the search in RandomPeerAt. Bucket b is hit with
// probability 2^(b-255), so only the farthest buckets are practical.
const maxAttempts = 1 << 16

// RandomPeer generates a peer identity from a fresh ed25519 key.
func RandomPeer(tb testing.TB) peer.ID {
	tb.Helper()

	_, pub, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		tb.Fatal(err)
	}
	id, err := peer.IDFromPublicKey(pub)
	if err != nil {
		tb.Fatal(err)
	}
	return id
}

// RandomPeers generates count random peer identities.
func RandomPeers(tb testing.TB, count int) []peer.ID {
	tb.Helper()

	ids := make([]peer.ID, count)
	for i := range ids {
		ids[i] = RandomPeer(tb)
	}
	return ids
}

// RandomPeerAt generates a peer identity whose key falls into the given
// bucket relative to base.
func RandomPeerAt(tb testing.TB, base kad.Identified, bucket int) peer.ID {
	tb.Helper()

	for i := 0; i < maxAttempts; i++ {
		id := RandomPeer(tb)
		if b, ok := kad.NewKey(id).Distance(base).BucketIndex(); ok && b == bucket {
			return id
		}
	}
	tb.Fatalf("no peer found in bucket %d after %d attempts", bucket, maxAttempts)
	return ""
}
