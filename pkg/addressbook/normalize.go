// Copyright 2022 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package addressbook

import (
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// Normalize returns addr in a form that names the peer it belongs to.
// An address that already ends with a /p2p component is returned as is,
// otherwise /p2p/<id> is appended.
func Normalize(addr ma.Multiaddr, id peer.ID) ma.Multiaddr {
	if addr == nil {
		return nil
	}
	if _, last := ma.SplitLast(addr); last != nil && last.Protocol().Code == ma.P_P2P {
		return addr
	}
	c, err := ma.NewComponent(ma.ProtocolWithCode(ma.P_P2P).Name, id.Pretty())
	if err != nil {
		// the identity does not encode as a multihash, keep the raw address
		return addr
	}
	return addr.Encapsulate(c)
}

// NormalizeAll normalizes every address in addrs, dropping nil entries.
func NormalizeAll(addrs []ma.Multiaddr, id peer.ID) []ma.Multiaddr {
	out := make([]ma.Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		if n := Normalize(a, id); n != nil {
			out = append(out, n)
		}
	}
	return out
}
