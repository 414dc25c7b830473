// Copyright 2022 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package routingtable

import (
	m "github.com/ethersphere/kadtable/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	// all metrics fields must be exported
	// to be able to return them by Metrics()
	// using reflection
	Peers                 prometheus.Gauge
	InsertedPeers         prometheus.Counter
	EvictedPeers          prometheus.Counter
	RemovedPeers          prometheus.Counter
	NoSlotRejections      prometheus.Counter
	LocalNodeRejections   prometheus.Counter
	PenalizedAddresses    prometheus.Counter
	RewardedAddresses     prometheus.Counter
	ClosestQueries        prometheus.Counter
	ClosestVisitedBuckets prometheus.Histogram
}

func newMetrics() metrics {
	subsystem := "routingtable"

	return metrics{
		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "peers",
			Help:      "Number of peers stored in the routing table.",
		}),
		InsertedPeers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "inserted_peers_count",
			Help:      "Number of peers admitted to a bucket.",
		}),
		EvictedPeers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "evicted_peers_count",
			Help:      "Number of not connected peers evicted from a full bucket.",
		}),
		RemovedPeers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "removed_peers_count",
			Help:      "Number of peers explicitly removed.",
		}),
		NoSlotRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "no_slot_rejections_count",
			Help:      "Number of peers rejected by a full bucket without evictable peers.",
		}),
		LocalNodeRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "local_node_rejections_count",
			Help:      "Number of attempts to add the local node as a remote peer.",
		}),
		PenalizedAddresses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "penalized_addresses_count",
			Help:      "Number of address score decreases after failed dials.",
		}),
		RewardedAddresses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "rewarded_addresses_count",
			Help:      "Number of address score increases after successful dials.",
		}),
		ClosestQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "closest_queries_count",
			Help:      "Number of closest peers queries.",
		}),
		ClosestVisitedBuckets: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "closest_visited_buckets",
			Help:      "Number of buckets visited by a closest peers query.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		}),
	}
}

func (t *RoutingTable) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(t.metrics)
}
