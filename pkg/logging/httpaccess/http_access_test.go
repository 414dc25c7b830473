// Copyright 2022 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package httpaccess_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethersphere/kadtable/pkg/logging"
	"github.com/ethersphere/kadtable/pkg/logging/httpaccess"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"resenje.org/web"
)

func TestHandler(t *testing.T) {
	var buf bytes.Buffer
	l := httpaccess.New(logging.New(&buf, logrus.InfoLevel), logrus.InfoLevel, "test", "test access")

	mux := http.NewServeMux()
	mux.Handle("/teapot", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	mux.Handle("/quiet", web.ChainHandlers(
		httpaccess.SetLevelHandler(0),
		web.FinalHandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}),
	))
	h := l.Handler(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot", nil))

	got := buf.String()
	for _, want := range []string{"test access", "status=418", "size=15", "method=GET", "uri=/teapot"} {
		if !strings.Contains(got, want) {
			t.Errorf("log %q does not contain %q", got, want)
		}
	}

	buf.Reset()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/quiet", nil))
	if buf.Len() != 0 {
		t.Errorf("got log %q for suppressed route", buf.String())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(l.Metrics()...)
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	counts := make(map[string]float64)
	for _, f := range families {
		if f.GetName() != "kadtable_test_request_count" {
			continue
		}
		for _, m := range f.GetMetric() {
			var code string
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "code" {
					code = lp.GetValue()
				}
			}
			counts[code] += m.GetCounter().GetValue()
		}
	}
	if counts["418"] != 1 {
		t.Errorf("got %v requests with code 418, want 1", counts["418"])
	}
	if counts["200"] != 1 {
		t.Errorf("got %v requests with code 200, want 1", counts["200"])
	}
}
