// Copyright 2021 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kademlia

import (
	"time"

	"github.com/ethersphere/kadtable/pkg/routingtable"
	"github.com/ethersphere/kadtable/pkg/topology"
	"github.com/libp2p/go-libp2p-core/peer"
)

// peerMetricsOp is a definition of a peer metrics operation
// whose execution modifies a specific metrics.
type peerMetricsOp func(*peerMetrics)

// setLastSeen sets the last seen peer metrics to the given time.
func setLastSeen(t time.Time) peerMetricsOp {
	return func(m *peerMetrics) {
		m.lastSeen = t
	}
}

// startSession marks the beginning of a connection session.
func startSession(t time.Time, d routingtable.Direction) peerMetricsOp {
	return func(m *peerMetrics) {
		m.sessionStart = t
		m.sessionDialFailures = 0
		m.sessionDirection = d.String()
	}
}

// endSession adds the duration of the current session to the
// connection total duration.
func endSession(t time.Time) peerMetricsOp {
	return func(m *peerMetrics) {
		if m.sessionStart.IsZero() {
			return
		}
		m.connTotalDuration += t.Sub(m.sessionStart)
		m.sessionStart = time.Time{}
	}
}

// incDialFailures increments the failed dial counter by 1.
func incDialFailures() peerMetricsOp {
	return func(m *peerMetrics) {
		m.sessionDialFailures++
	}
}

// peerMetrics represents a collection of peer metrics
// mainly collected for statistics and debugging.
type peerMetrics struct {
	lastSeen            time.Time
	connTotalDuration   time.Duration
	sessionStart        time.Time
	sessionDirection    string
	sessionDialFailures int
}

// peerMetricsCollector collects connection statistics of peers. It is only
// accessed from the manage loop.
type peerMetricsCollector struct {
	data map[peer.ID]*peerMetrics
}

func newPeerMetricsCollector() *peerMetricsCollector {
	return &peerMetricsCollector{
		data: make(map[peer.ID]*peerMetrics),
	}
}

// record applies the operations to the metrics of the given peer.
func (mc *peerMetricsCollector) record(id peer.ID, ops ...peerMetricsOp) {
	m, ok := mc.data[id]
	if !ok {
		m = new(peerMetrics)
		mc.data[id] = m
	}
	for _, op := range ops {
		op(m)
	}
}

// snapshot returns the metrics of the given peer as of t.
func (mc *peerMetricsCollector) snapshot(t time.Time, id peer.ID) (*topology.PeerMetrics, bool) {
	m, ok := mc.data[id]
	if !ok {
		return nil, false
	}

	s := &topology.PeerMetrics{
		LastSeen:                   m.lastSeen,
		ConnectionTotalDuration:    m.connTotalDuration,
		SessionConnectionDirection: m.sessionDirection,
		SessionDialFailures:        m.sessionDialFailures,
	}
	if !m.sessionStart.IsZero() {
		s.SessionConnectionDuration = t.Sub(m.sessionStart)
		s.ConnectionTotalDuration += s.SessionConnectionDuration
	}
	return s, true
}

// retain drops the metrics of every peer for which keep returns false.
func (mc *peerMetricsCollector) retain(keep func(peer.ID) bool) {
	for id := range mc.data {
		if !keep(id) {
			delete(mc.data, id)
		}
	}
}
