// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package jsonhttptest provides a helper for issuing HTTP requests against
// JSON endpoints in tests.
package jsonhttptest

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/ethersphere/kadtable/pkg/jsonhttp"
	"github.com/google/go-cmp/cmp"
)

// Option configures the expectations of a Request.
type Option func(*options)

type options struct {
	expected  interface{}
	unmarshal interface{}
}

// WithExpectedJSONResponse asserts that the response body encodes the same
// JSON value as response.
func WithExpectedJSONResponse(response interface{}) Option {
	return func(o *options) { o.expected = response }
}

// WithUnmarshalResponse decodes the response body into response.
func WithUnmarshalResponse(response interface{}) Option {
	return func(o *options) { o.unmarshal = response }
}

// Request sends a request without body and checks the response status code
// and any expectations given as options.
func Request(t *testing.T, client *http.Client, method, url string, responseCode int, opts ...Option) http.Header {
	t.Helper()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != responseCode {
		t.Errorf("got response status %s, want %v %s", resp.Status, responseCode, http.StatusText(responseCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	if o.expected != nil {
		if v := resp.Header.Get("Content-Type"); v != jsonhttp.DefaultContentTypeHeader {
			t.Errorf("got content type %q, want %q", v, jsonhttp.DefaultContentTypeHeader)
		}
		want, err := normalize(o.expected)
		if err != nil {
			t.Fatal(err)
		}
		var got interface{}
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("response %q: %v", body, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("json response mismatch (-want +got):\n%s", diff)
		}
	}

	if o.unmarshal != nil {
		if err := json.Unmarshal(body, o.unmarshal); err != nil {
			t.Fatalf("response %q: %v", body, err)
		}
	}
	return resp.Header
}

// normalize converts v to the generic form produced by decoding its JSON
// encoding.
func normalize(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var n interface{}
	return n, json.Unmarshal(b, &n)
}
