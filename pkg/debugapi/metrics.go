// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi

import (
	"github.com/ethersphere/kadtable"
	"github.com/ethersphere/kadtable/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func newMetricsRegistry() (r *prometheus.Registry) {
	r = prometheus.NewRegistry()

	// register standard metrics
	r.MustRegister(
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{
			Namespace: metrics.Namespace,
		}),
		prometheus.NewGoCollector(),
		prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Name:      "info",
			Help:      "Kadtable information.",
			ConstLabels: prometheus.Labels{
				"version": kadtable.Version,
			},
		}),
	)

	return r
}

// MustRegisterMetrics registers collectors of other components to be served
// on /metrics.
func (s *Service) MustRegisterMetrics(components ...metrics.Collector) {
	metrics.MustRegister(s.metricsRegistry, components...)
}
