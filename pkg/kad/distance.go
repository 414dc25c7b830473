// Copyright 2022 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kad

import (
	"encoding/hex"

	"github.com/holiman/uint256"
)

// Distance is the XOR of two identifiers read as a big-endian 256-bit
// unsigned integer.
type Distance struct {
	v uint256.Int
}

// Between returns the distance between identifiers a and b.
// It is symmetric and zero if and only if a == b.
func Between(a, b ID) Distance {
	var x, y Distance
	x.v.SetBytes(a[:])
	y.v.SetBytes(b[:])
	x.v.Xor(&x.v, &y.v)
	return x
}

// NewDistance constructs a distance from big-endian bytes. Inputs longer
// than IDSize keep only the least significant IDSize bytes.
func NewDistance(b []byte) Distance {
	if len(b) > IDSize {
		b = b[len(b)-IDSize:]
	}
	var d Distance
	d.v.SetBytes(b)
	return d
}

// IsZero reports whether the distance is zero, ie. both ends are the same.
func (d Distance) IsZero() bool {
	return d.v.IsZero()
}

// BucketIndex returns the index of the most significant set bit of the
// distance, floor(log2(d)). Distance zero denotes the local node and has
// no bucket index.
//
// Bucket i holds exactly the distances in [2^i, 2^(i+1)-1].
func (d Distance) BucketIndex() (int, bool) {
	l := d.v.BitLen()
	if l == 0 {
		return 0, false
	}
	return l - 1, true
}

// Bit reports whether bit i is set, counting from the least significant
// bit. Bits outside [0, Bits) are never set.
func (d Distance) Bit(i int) bool {
	if i < 0 || i >= Bits {
		return false
	}
	// uint256.Int is four little-endian 64 bit limbs
	return d.v[i/64]>>(uint(i)%64)&1 == 1
}

// Cmp compares d and o and returns -1, 0 or +1.
func (d Distance) Cmp(o Distance) int {
	return d.v.Cmp(&o.v)
}

// Bytes returns the big-endian 32 byte representation.
func (d Distance) Bytes() [IDSize]byte {
	return d.v.Bytes32()
}

func (d Distance) String() string {
	b := d.Bytes()
	return hex.EncodeToString(b[:])
}
