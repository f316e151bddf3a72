package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssd-technologies/spawner/internal/config"
	"github.com/ssd-technologies/spawner/internal/logging"
)

// app holds what every command needs once flags are parsed.
type app struct {
	out    io.Writer
	errOut io.Writer

	cfgPath  string
	dataDir  string
	logLevel string

	cfg config.Config
	log *logging.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "spawner",
		Short: "Spawn and supervise autonomous on-chain agents",
		Long: `spawner runs a fleet of agents that watch a blockchain and feed a shared
knowledge store.

Agent types:
  whale-watcher     Track large wallets
  yield-optimizer   Compare DeFi positions with the best yields
  airdrop-hunter    Find airdrops a wallet qualifies for
  wallet-guardian   Watch wallets for suspicious activity

Examples:
  spawner spawn whale-watcher alice
  spawner spawn wallet-guardian --param wallets='["<address>"]'
  spawner list
  spawner run --index`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				a.log.Close()
			}
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "path to a YAML config file")
	pf.StringVar(&a.dataDir, "data-dir", "", "directory for the registry, archive and daemon address")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newSpawnCmd(a),
		newListCmd(a),
		newLifecycleCmd(a, "stop", "Stop an agent"),
		newLifecycleCmd(a, "pause", "Pause a running agent"),
		newLifecycleCmd(a, "resume", "Resume a paused agent"),
		newLifecycleCmd(a, "delete", "Remove a stopped agent from the registry"),
		newStatsCmd(a),
		newQueryCmd(a),
		newRunCmd(a),
	)
	return root
}

// setup loads the config, applies flag overrides and builds the logger.
func (a *app) setup() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	lg, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File, Writer: a.errOut})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = lg
	return nil
}

// backend picks the live daemon when one answers, else the registry file.
func (a *app) backend(ctx context.Context) backend {
	if rb, ok := dialDaemon(ctx, a.cfg.APIAddrFile()); ok {
		a.log.Debug("forwarding to daemon", "addr", rb.base)
		return rb
	}
	return newLocalBackend(a.cfg, a.log.Logger)
}
