// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethersphere/kadtable/pkg/debugapi"
	"github.com/ethersphere/kadtable/pkg/topology/kademlia"
	"github.com/hashicorp/go-multierror"
	"github.com/libp2p/go-libp2p-core/crypto"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func (c *command) initStartCmd() {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a node serving its routing table on the debug API",
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

			var bootnodes []ma.Multiaddr
			for _, s := range c.config.GetStringSlice(optionNameBootnodes) {
				addr, err := ma.NewMultiaddr(s)
				if err != nil {
					return fmt.Errorf("bootnode %s: %w", s, err)
				}
				bootnodes = append(bootnodes, addr)
			}

			base, err := newIdentity()
			if err != nil {
				return fmt.Errorf("identity: %w", err)
			}
			logger.Infof("peer id: %s", base)

			// Debug API server
			debugAPIService := debugapi.New(logger)
			debugAPIListener, err := net.Listen("tcp", c.config.GetString(optionNameDebugAPIAddr))
			if err != nil {
				return fmt.Errorf("debug api listener: %w", err)
			}
			debugAPIServer := &http.Server{
				Handler:           debugAPIService,
				ReadHeaderTimeout: 3 * time.Second,
				ErrorLog:          log.New(logger.WriterLevel(logrus.ErrorLevel), "", 0),
			}

			go func() {
				logger.Infof("debug api address: %s", debugAPIListener.Addr())

				if err := debugAPIServer.Serve(debugAPIListener); err != nil && err != http.ErrServerClosed {
					logger.Debugf("debug api server: %v", err)
					logger.Error("unable to serve debug api")
				}
			}()

			kad := kademlia.New(base, logger, kademlia.Options{
				Bootnodes:  bootnodes,
				BucketSize: bucketSize,
			})
			// register metrics from components
			debugAPIService.MustRegisterMetrics(logger, kad)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if err := kad.Start(ctx); err != nil {
				return fmt.Errorf("kademlia: %w", err)
			}
			debugAPIService.Configure(kad)

			// Wait for termination or interrupt signals.
			// We want to clean up things at the end.
			interruptChannel := make(chan os.Signal, 1)
			signal.Notify(interruptChannel, syscall.SIGINT, syscall.SIGTERM)

			// Block main goroutine until it is interrupted
			sig := <-interruptChannel

			logger.Debugf("received signal: %v", sig)
			logger.Info("shutting down")

			// Shutdown
			done := make(chan error, 1)
			go func() {
				ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
				defer cancel()

				var mErr error
				if err := debugAPIServer.Shutdown(ctx); err != nil {
					mErr = multierror.Append(mErr, fmt.Errorf("debug api server: %w", err))
				}
				if err := kad.Close(); err != nil {
					mErr = multierror.Append(mErr, fmt.Errorf("kademlia: %w", err))
				}
				done <- mErr
			}()

			// If shutdown function is blocking too long,
			// allow process termination by receiving another signal.
			select {
			case sig := <-interruptChannel:
				logger.Debugf("received signal: %v", sig)
			case err := <-done:
				return err
			}

			return nil
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return c.config.BindPFlags(cmd.Flags())
		},
	}

	cmd.Flags().String(optionNameDebugAPIAddr, ":1635", "debug HTTP API listen address")
	cmd.Flags().StringSlice(optionNameBootnodes, nil, "initial peers, multiaddresses ending with /p2p/<peer-id>")
	setBucketSizeFlag(cmd)
	setVerbosityFlag(cmd, "info")

	c.root.AddCommand(cmd)
}

// newIdentity generates a fresh ed25519 peer identity.
func newIdentity() (peer.ID, error) {
	_, pub, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return "", err
	}
	return peer.IDFromPublicKey(pub)
}
