package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ssd-technologies/spawner/internal/agent"
	"github.com/ssd-technologies/spawner/internal/chain"
	"github.com/ssd-technologies/spawner/internal/config"
	"github.com/ssd-technologies/spawner/internal/indexer"
	"github.com/ssd-technologies/spawner/internal/knowledge"
	"github.com/ssd-technologies/spawner/internal/registry"
	"github.com/ssd-technologies/spawner/internal/runtime"
	"github.com/ssd-technologies/spawner/internal/server"
	"github.com/ssd-technologies/spawner/internal/storage"
	"github.com/ssd-technologies/spawner/internal/strategy"
)

const shutdownTimeout = 10 * time.Second

func newRunCmd(a *app) *cobra.Command {
	var (
		addr  string
		index bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every active agent and serve the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("index") {
				a.cfg.RAG.Indexer = index
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default from config)")
	cmd.Flags().BoolVar(&index, "index", false, "run the blockchain indexer feeding the knowledge store")
	return cmd
}

// run wires the daemon together and blocks until ctx is cancelled.
func (a *app) run(ctx context.Context) error {
	cfg := a.cfg
	logger := a.log.Logger

	store := knowledge.NewStore(
		knowledge.WithMaxEvents(cfg.RAG.MaxEvents),
		knowledge.WithLogger(logger),
	)

	pool := chain.NewPool(chain.RPCOptions{
		Timeout:        cfg.Chain.Timeout,
		RequestsPerSec: cfg.Chain.RequestsPerSec,
		Proxy:          cfg.Chain.Proxy,
		TxCacheSize:    cfg.Chain.TxCacheSize,
		BalanceTTL:     cfg.Chain.BalanceTTL,
		Logger:         logger,
	})
	defer pool.Close()

	hub := server.NewHub(logger)
	defer hub.Close()
	sinks := []agent.Sink{hub}

	var archive *storage.DB
	if cfg.Runtime.Archive {
		db, err := storage.NewDB(cfg.ArchivePath())
		if err != nil {
			return fmt.Errorf("open knowledge archive: %w", err)
		}
		defer db.Close()
		archive = db
		sinks = append(sinks, db)
	}

	rt := runtime.New(runtime.Options{
		Registry: registry.Open(cfg.RegistryPath(), registry.WithLogger(logger)),
		Catalog:  strategy.Catalog(),
		Deps: agent.Deps{
			Connect:       pool.Connect,
			DefaultRPCURL: cfg.Chain.RPCURL,
			Store:         store,
			Logger:        logger,
			Sinks:         sinks,
			KnowledgeCap:  cfg.Runtime.KnowledgeCap,
		},
		Logger:            logger,
		HeartbeatInterval: cfg.Runtime.HeartbeatInterval,
	})
	defer rt.Close()

	var ix *indexer.Indexer
	if cfg.RAG.Indexer {
		client, err := pool.Connect(cfg.Chain.RPCURL)
		if err != nil {
			return fmt.Errorf("connect indexer: %w", err)
		}
		ix, err = indexer.New(indexer.Options{
			Client:           client,
			Store:            store,
			Logger:           logger,
			WhaleInterval:    cfg.RAG.WhaleInterval,
			ProtocolInterval: cfg.RAG.ProtocolInterval,
		})
		if err != nil {
			return err
		}
		ix.Start(ctx)
		defer ix.Stop()
		indexer.NewAirdropDetector(store, logger).Start()
	}

	started := rt.StartAll(ctx)
	rt.StartHeartbeats()

	srv := server.New(server.Options{
		Runtime:          rt,
		Knowledge:        store,
		Archive:          archive,
		Hub:              hub,
		Indexer:          ix,
		Logger:           logger,
		RateLimit:        cfg.Server.RateLimit,
		RateWindow:       cfg.Server.RateWindow,
		ArchiveRetention: cfg.Runtime.ArchiveRetention,
	})

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	apiURL := "http://" + ln.Addr().String()
	if err := os.WriteFile(cfg.APIAddrFile(), []byte(apiURL+"\n"), 0o600); err != nil {
		logger.Warn("write daemon address", slog.String("error", err.Error()))
	}
	defer os.Remove(cfg.APIAddrFile())

	httpSrv := &http.Server{
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	srv.StartWorkers(gctx)

	g.Go(func() error {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})
	if a.cfgPath != "" {
		g.Go(func() error {
			err := config.Watch(gctx, a.cfgPath, logger, func(c config.Config) {
				if err := a.log.SetLevel(c.Log.Level); err != nil {
					logger.Warn("log level not changed", slog.String("error", err.Error()))
					return
				}
				logger.Info("log level changed", slog.String("level", c.Log.Level))
			})
			if err != nil {
				logger.Warn("config hot reload disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	logger.Info("spawner running",
		slog.String("api", apiURL),
		slog.Int("agents", started),
		slog.Bool("indexer", ix != nil),
		slog.Bool("archive", archive != nil))
	fmt.Fprintf(a.out, "spawner running on %s with %d agent(s); press Ctrl+C to stop\n", apiURL, started)

	err = g.Wait()

	logger.Info("shutting down")
	rt.StopHeartbeats()
	rt.StopAll()
	return err
}
