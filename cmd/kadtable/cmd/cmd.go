// Copyright 2020 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethersphere/kadtable/pkg/logging"
	"github.com/ethersphere/kadtable/pkg/routingtable"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	optionNameDebugAPIAddr = "debug-api-addr"
	optionNameBootnodes    = "bootnode"
	optionNameBucketSize   = "bucket-size"
	optionNameVerbosity    = "verbosity"
	optionNameTrials       = "trials"
	optionNamePeers        = "peers"
	optionNameQueries      = "queries"
	optionNameLimit        = "limit"
	optionNameFormat       = "format"
)

func init() {
	cobra.EnableCommandSorting = false
}

type command struct {
	root    *cobra.Command
	config  *viper.Viper
	cfgFile string
	homeDir string
}

type option func(*command)

func newCommand(opts ...option) (c *command, err error) {
	c = &command{
		root: &cobra.Command{
			Use:           "kadtable",
			Short:         "Kademlia peer routing table",
			SilenceErrors: true,
			SilenceUsage:  true,
			PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
				return c.initConfig()
			},
		},
	}

	for _, o := range opts {
		o(c)
	}

	// Find home directory.
	if err := c.setHomeDir(); err != nil {
		return nil, err
	}

	c.initGlobalFlags()
	c.initStartCmd()
	c.initSimulateCmd()
	c.initVersionCmd()

	return c, nil
}

func (c *command) Execute() (err error) {
	return c.root.Execute()
}

// Execute parses command line arguments and runs appropriate functions.
func Execute() (err error) {
	c, err := newCommand()
	if err != nil {
		return err
	}
	return c.Execute()
}

func (c *command) initGlobalFlags() {
	globalFlags := c.root.PersistentFlags()
	globalFlags.StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.kadtable.yaml)")
}

func (c *command) initConfig() (err error) {
	config := viper.New()
	configName := ".kadtable"
	if c.cfgFile != "" {
		// Use config file from the flag.
		config.SetConfigFile(c.cfgFile)
	} else {
		// Search config in home directory with name ".kadtable" (without extension).
		config.AddConfigPath(c.homeDir)
		config.SetConfigName(configName)
	}

	// Environment
	config.SetEnvPrefix("kadtable")
	config.AutomaticEnv() // read in environment variables that match
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if c.homeDir != "" && c.cfgFile == "" {
		c.cfgFile = filepath.Join(c.homeDir, configName+".yaml")
	}

	// If a config file is found, read it in.
	if err := config.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if !errors.As(err, &e) {
			return err
		}
	}
	c.config = config
	return nil
}

func (c *command) setHomeDir() (err error) {
	if c.homeDir != "" {
		return
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	c.homeDir = dir
	return nil
}

// bucketSize returns the configured bucket size, rejecting values that the
// routing table would silently replace with the default.
func (c *command) bucketSize() (int, error) {
	k := c.config.GetInt(optionNameBucketSize)
	if k <= 0 {
		return 0, fmt.Errorf("invalid %s %d: must be positive", optionNameBucketSize, k)
	}
	return k, nil
}

func setBucketSizeFlag(cmd *cobra.Command) {
	cmd.Flags().Int(optionNameBucketSize, routingtable.DefaultBucketSize, "maximal number of peers in a bucket")
}

func setVerbosityFlag(cmd *cobra.Command, value string) {
	cmd.Flags().String(optionNameVerbosity, value, "log verbosity level 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace")
}

func newLogger(cmd *cobra.Command, verbosity string) (logging.Logger, error) {
	level, err := logging.ParseVerbosity(verbosity)
	if err != nil {
		return nil, err
	}
	var w io.Writer = cmd.OutOrStdout()
	if level == 0 {
		w = io.Discard
	}
	return logging.New(w, level), nil
}
