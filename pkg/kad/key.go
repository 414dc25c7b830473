// Copyright 2022 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kad contains the metric space of the overlay routing table:
// fixed width identifiers, keys derived from peer identities or arbitrary
// lookup targets, and the XOR distance between them.
package kad

import (
	"encoding/hex"

	"github.com/minio/sha256-simd"
)

const (
	// IDSize is the byte length of an identifier.
	IDSize = sha256.Size
	// Bits is the bit width of an identifier and so the number of buckets
	// a routing table holds.
	Bits = IDSize * 8
)

// ID is a position in the metric space.
type ID [IDSize]byte

// String returns a hex-encoded representation of the ID.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// ID returns the identifier itself so that a bare ID can be used wherever
// an Identified value is expected.
func (id ID) ID() ID {
	return id
}

// Identified is anything that has a position in the metric space.
type Identified interface {
	ID() ID
}

// Preimage is the set of types a Key can be derived from.
type Preimage interface {
	~string | ~[]byte
}

// Key pairs a preimage with the identifier derived from it.
// Keys are immutable.
type Key[T Preimage] struct {
	preimage T
	id       ID
}

// NewKey hashes the canonical bytes of the preimage into an identifier.
func NewKey[T Preimage](preimage T) Key[T] {
	return Key[T]{
		preimage: preimage,
		id:       sha256.Sum256([]byte(preimage)),
	}
}

// Preimage returns the value the key was derived from.
func (k Key[T]) Preimage() T {
	return k.preimage
}

// ID returns the identifier of the key.
func (k Key[T]) ID() ID {
	return k.id
}

// Distance returns the XOR distance between k and other.
func (k Key[T]) Distance(other Identified) Distance {
	return Between(k.id, other.ID())
}

// Equal reports whether both keys have the same identifier.
func (k Key[T]) Equal(other Identified) bool {
	return k.id == other.ID()
}

// String returns a hex-encoded representation of the key identifier.
func (k Key[T]) String() string {
	return k.id.String()
}
