// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package debugapi exposes the debug API used to
// inspect the routing table of a running node.
package debugapi

import (
	"net/http"
	"sync"

	"github.com/ethersphere/kadtable/pkg/logging"
	"github.com/ethersphere/kadtable/pkg/logging/httpaccess"
	"github.com/ethersphere/kadtable/pkg/metrics"
	"github.com/ethersphere/kadtable/pkg/topology"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Service implements http.Handler interface to be used in HTTP server.
type Service struct {
	topologyDriver  topology.Driver
	logger          logging.Logger
	accessLogger    *httpaccess.Logger
	metricsRegistry *prometheus.Registry
	// handler is changed in the Configure method
	handler   http.Handler
	handlerMu sync.RWMutex
}

// New creates a new Debug API Service with only basic routers enabled in order
// to expose /health and /metrics endpoints before the topology driver is
// running.
func New(logger logging.Logger) *Service {
	s := new(Service)
	s.logger = logger
	s.accessLogger = httpaccess.New(logger, logrus.InfoLevel, "debugapi", "debug api access")
	s.metricsRegistry = newMetricsRegistry()
	metrics.MustRegister(s.metricsRegistry, s.accessLogger)

	s.setRouter(s.newBasicRouter())

	return s
}

// Configure injects the topology driver and constructs the routes that
// depend on it. It is intended and safe to call this method only once.
func (s *Service) Configure(topologyDriver topology.Driver) {
	s.topologyDriver = topologyDriver

	s.setRouter(s.newRouter())
}

// ServeHTTP implements http.Handler interface.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// protect handler as it is changed by the Configure method
	s.handlerMu.RLock()
	h := s.handler
	s.handlerMu.RUnlock()

	h.ServeHTTP(w, r)
}
