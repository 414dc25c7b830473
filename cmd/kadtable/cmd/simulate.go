// Copyright 2022 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/ethersphere/kadtable/pkg/kad"
	"github.com/ethersphere/kadtable/pkg/logging"
	"github.com/ethersphere/kadtable/pkg/routingtable"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v2"
)

var errViolations = errors.New("closest peer queries violated ordering or limit")

type trialResult struct {
	Trial      int `yaml:"trial"`
	Stored     int `yaml:"stored"`
	Rejected   int `yaml:"rejected"`
	Evicted    int `yaml:"evicted"`
	Connected  int `yaml:"connected"`
	Buckets    int `yaml:"buckets"`
	Queries    int `yaml:"queries"`
	Violations int `yaml:"violations"`
}

type simulation struct {
	BucketSize int           `yaml:"bucketSize"`
	Peers      int           `yaml:"peers"`
	Limit      int           `yaml:"limit"`
	Trials     []trialResult `yaml:"trials"`
	Violations int           `yaml:"violations"`
}

func (c *command) initSimulateCmd() {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Populate random routing tables and check closest peer queries",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) > 0 {
				return cmd.Help()
			}

			logger, err := newLogger(cmd, c.config.GetString(optionNameVerbosity))
			if err != nil {
				return fmt.Errorf("new logger: %w", err)
			}
			bucketSize, err := c.bucketSize()
			if err != nil {
				return err
			}

			var (
				trials  = c.config.GetInt(optionNameTrials)
				peers   = c.config.GetInt(optionNamePeers)
				queries = c.config.GetInt(optionNameQueries)
				limit   = c.config.GetInt(optionNameLimit)
				format  = c.config.GetString(optionNameFormat)
			)
			switch {
			case trials <= 0:
				return fmt.Errorf("invalid %s %d", optionNameTrials, trials)
			case peers < 0:
				return fmt.Errorf("invalid %s %d", optionNamePeers, peers)
			case queries < 0:
				return fmt.Errorf("invalid %s %d", optionNameQueries, queries)
			case limit <= 0:
				return fmt.Errorf("invalid %s %d", optionNameLimit, limit)
			}
			if format != "text" && format != "yaml" {
				return fmt.Errorf("unknown %s %q", optionNameFormat, format)
			}

			s := simulation{
				BucketSize: bucketSize,
				Peers:      peers,
				Limit:      limit,
				Trials:     make([]trialResult, trials),
			}

			g, ctx := errgroup.WithContext(context.Background())
			for i := 0; i < trials; i++ {
				i := i
				g.Go(func() error {
					r, err := runTrial(ctx, logger, bucketSize, peers, queries, limit)
					if err != nil {
						return fmt.Errorf("trial %d: %w", i, err)
					}
					r.Trial = i
					s.Trials[i] = r
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			for _, r := range s.Trials {
				s.Violations += r.Violations
			}

			if err := s.write(cmd.OutOrStdout(), format); err != nil {
				return err
			}
			if s.Violations > 0 {
				return fmt.Errorf("%w: %d", errViolations, s.Violations)
			}
			return nil
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return c.config.BindPFlags(cmd.Flags())
		},
	}

	cmd.Flags().Int(optionNameTrials, 10, "number of independent routing tables")
	cmd.Flags().Int(optionNamePeers, 1000, "random peers offered to every table")
	cmd.Flags().Int(optionNameQueries, 100, "closest peer queries per table")
	cmd.Flags().Int(optionNameLimit, routingtable.DefaultBucketSize, "closest peer query limit")
	cmd.Flags().String(optionNameFormat, "text", "output format, text or yaml")
	setBucketSizeFlag(cmd)
	setVerbosityFlag(cmd, "silent")

	c.root.AddCommand(cmd)
}

// runTrial fills a fresh table and checks every query against a brute force
// ordering of its contents.
func runTrial(ctx context.Context, logger logging.Logger, bucketSize, peers, queries, limit int) (r trialResult, err error) {
	local, err := newIdentity()
	if err != nil {
		return r, err
	}
	table := routingtable.New(kad.NewKey(local), logger, routingtable.Options{
		BucketSize: bucketSize,
	})

	states := []routingtable.ConnectionState{
		routingtable.NotConnected,
		routingtable.Connected,
		routingtable.CanConnect,
	}
	for i := 0; i < peers; i++ {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		id, err := newIdentity()
		if err != nil {
			return r, err
		}
		addr, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/10.%d.%d.%d/tcp/1634", i>>16&0xff, i>>8&0xff, i&0xff))
		if err != nil {
			return r, err
		}
		n := table.Len()
		kind, _ := table.AddKnownPeer(id, []ma.Multiaddr{addr}, states[i%len(states)])
		switch {
		case kind != routingtable.EntryVacant:
			r.Rejected++
		case table.Len() == n:
			// admitted in place of a not connected occupant
			r.Evicted++
		}
	}

	buckets := table.Buckets()
	var stored []peer.ID
	for _, b := range buckets {
		for _, p := range b.Peers {
			stored = append(stored, p.ID)
			if p.Connection == routingtable.Connected {
				r.Connected++
			}
		}
	}
	r.Stored = len(stored)
	r.Buckets = len(buckets)

	for q := 0; q < queries; q++ {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		var target kad.ID
		if _, err := rand.Read(target[:]); err != nil {
			return r, err
		}
		r.Queries++
		if !verifyClosest(table.Closest(target, limit), stored, target, limit) {
			logger.Warningf("simulate: closest peers to %s violate ordering", target)
			r.Violations++
		}
	}
	return r, nil
}

// verifyClosest reports whether got holds exactly the limit nearest peers of
// stored in ascending distance order.
func verifyClosest(got []routingtable.Peer, stored []peer.ID, target kad.Identified, limit int) bool {
	want := make([]peer.ID, len(stored))
	copy(want, stored)
	sort.Slice(want, func(i, j int) bool {
		return kad.NewKey(want[i]).Distance(target).Cmp(kad.NewKey(want[j]).Distance(target)) < 0
	})
	if len(want) > limit {
		want = want[:limit]
	}

	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i].ID != want[i] {
			return false
		}
	}
	return true
}

func (s simulation) write(w io.Writer, format string) error {
	if format == "yaml" {
		b, err := yaml.Marshal(s)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	}

	for _, r := range s.Trials {
		if _, err := fmt.Fprintf(w, "trial %d: stored %d, rejected %d, evicted %d, connected %d, buckets %d, queries %d, violations %d\n",
			r.Trial, r.Stored, r.Rejected, r.Evicted, r.Connected, r.Buckets, r.Queries, r.Violations); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "bucket size %d, peers %d, limit %d, violations %d\n", s.BucketSize, s.Peers, s.Limit, s.Violations)
	return err
}
