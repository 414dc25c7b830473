// Copyright 2022 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package routingtable

import "github.com/ethersphere/kadtable/pkg/kad"

type iterState int

const (
	iterStart iterState = iota
	iterZoomIn
	iterZoomOut
	iterDone
)

// ClosestIterator yields bucket indices in the order a closest peers query
// visits them for a given distance between the local key and the target.
//
// It first zooms in: starting from the bucket of the distance itself, it
// descends through the set bits of the distance. Those buckets hold peers
// that share the target's position relative to the local node. Then it
// zooms out through the clear bits towards the farthest bucket.
//
// Bucket 0 may be yielded twice in a row.
type ClosestIterator struct {
	distance kad.Distance
	state    iterState
	index    int
}

// NewClosestIterator returns an iterator for distance. A zero distance
// starts at bucket 0.
func NewClosestIterator(distance kad.Distance) *ClosestIterator {
	i, _ := distance.BucketIndex()
	return &ClosestIterator{
		distance: distance,
		state:    iterStart,
		index:    i,
	}
}

// Next returns the next bucket index. The second return value is false once
// the iterator is exhausted.
func (it *ClosestIterator) Next() (int, bool) {
	switch it.state {
	case iterStart:
		it.state = iterZoomIn
		return it.index, true

	case iterZoomIn:
		for j := it.index - 1; j >= 0; j-- {
			if it.distance.Bit(j) {
				it.index = j
				return j, true
			}
		}
		it.state, it.index = iterZoomOut, 0
		return 0, true

	case iterZoomOut:
		for j := it.index + 1; j < kad.Bits; j++ {
			if !it.distance.Bit(j) {
				it.index = j
				return j, true
			}
		}
		it.state = iterDone
		return 0, false
	}

	return 0, false
}
