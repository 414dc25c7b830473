// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package httpaccess logs and counts requests served by an HTTP API.
package httpaccess

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethersphere/kadtable/pkg/logging"
	m "github.com/ethersphere/kadtable/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Logger is a middleware that writes one log entry per served request and
// keeps request counters for the API it wraps.
type Logger struct {
	logger  logging.Logger
	level   logrus.Level
	message string
	metrics metrics
}

// New returns an access Logger that logs at level with message. The
// subsystem names the API in metric names.
func New(logger logging.Logger, level logrus.Level, subsystem, message string) *Logger {
	return &Logger{
		logger:  logger,
		level:   level,
		message: message,
		metrics: newMetrics(subsystem),
	}
}

// Handler wraps h so that every request is recorded after it is served.
func (l *Logger) Handler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &recorder{ResponseWriter: w, level: l.level}

		h.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)

		l.metrics.RequestCount.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
		l.metrics.RequestDuration.WithLabelValues(r.Method).Observe(duration.Seconds())

		if rec.level == 0 {
			return
		}

		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		fields := logrus.Fields{
			"ip":       ip,
			"method":   r.Method,
			"uri":      r.RequestURI,
			"status":   status,
			"size":     rec.size,
			"duration": duration.Seconds(),
		}
		if v := r.UserAgent(); v != "" {
			fields["user-agent"] = v
		}
		l.logger.WithFields(fields).Log(rec.level, l.message)
	})
}

// Metrics returns the request collectors.
func (l *Logger) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(l.metrics)
}

// SetLevelHandler overrides the log level of the enclosing Logger for the
// requests it serves. Level 0 suppresses the log entry, requests are still
// counted.
func SetLevelHandler(level logrus.Level) func(h http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rec, ok := w.(*recorder); ok {
				rec.level = level
			}
			h.ServeHTTP(w, r)
		})
	}
}

type recorder struct {
	http.ResponseWriter
	status int
	size   int
	level  logrus.Level
}

func (r *recorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *recorder) Write(b []byte) (int, error) {
	size, err := r.ResponseWriter.Write(b)
	r.size += size
	return size, err
}

func (r *recorder) WriteHeader(s int) {
	r.ResponseWriter.WriteHeader(s)
	if r.status == 0 {
		r.status = s
	}
}

type metrics struct {
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func newMetrics(subsystem string) metrics {
	return metrics{
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: m.Namespace,
				Subsystem: subsystem,
				Name:      "request_count",
				Help:      "Number of served requests by method and status code.",
			},
			[]string{"method", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: m.Namespace,
				Subsystem: subsystem,
				Name:      "request_duration_seconds",
				Help:      "Time spent serving requests.",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"method"},
		),
	}
}
