// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kademlia

import (
	m "github.com/ethersphere/kadtable/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	// all metrics fields must be exported
	// to be able to return them by Metrics()
	// using reflection
	ConnectedPeers      prometheus.Gauge
	AddPeerCount        prometheus.Counter
	DialFailureCount    prometheus.Counter
	ConnectedCount      prometheus.Counter
	DisconnectedCount   prometheus.Counter
	ClosestPeersCount   prometheus.Counter
	BootnodeErrorsCount prometheus.Counter
}

func newMetrics() metrics {
	subsystem := "kademlia"

	return metrics{
		ConnectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "connected_peers",
			Help:      "Number of peers with an active session.",
		}),
		AddPeerCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "add_peer_count",
			Help:      "Number of discovered peer records.",
		}),
		DialFailureCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "dial_failure_count",
			Help:      "Number of reported dial failures.",
		}),
		ConnectedCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "connected_count",
			Help:      "Number of established connections.",
		}),
		DisconnectedCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "disconnected_count",
			Help:      "Number of closed connections.",
		}),
		ClosestPeersCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "closest_peers_count",
			Help:      "Number of closest peers requests.",
		}),
		BootnodeErrorsCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "bootnode_errors_count",
			Help:      "Number of bootnodes that could not be added.",
		}),
	}
}

// Metrics returns the collectors of the driver and of the routing table it
// owns.
func (k *Kad) Metrics() []prometheus.Collector {
	return append(m.PrometheusCollectorsFromFields(k.metrics), k.table.Metrics()...)
}
