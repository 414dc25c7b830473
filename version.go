// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kadtable holds build information of the kadtable binary.
package kadtable

var (
	version    = "0.1.0" // manually set semantic version number
	commitHash string    // set with -ldflags at build time

	// Version is the semantic version suffixed with the commit hash, or
	// with "dev" for builds without one.
	Version = func() string {
		if commitHash != "" {
			return version + "-" + commitHash
		}
		return version + "-dev"
	}()
)
