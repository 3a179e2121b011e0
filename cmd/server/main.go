package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eternalApril/moonstone/internal/config"
	"github.com/eternalApril/moonstone/internal/geo"
	"github.com/eternalApril/moonstone/internal/logger"
	"github.com/eternalApril/moonstone/internal/metrics"
	"github.com/eternalApril/moonstone/internal/persistence"
	"github.com/eternalApril/moonstone/internal/server"
	"github.com/eternalApril/moonstone/internal/storage"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	if err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Error("Moonstone stopped with error", zap.Error(err))
		log.Sync() //nolint:errcheck
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("Moonstone starting",
		zap.String("version", server.Version),
		zap.String("addr", cfg.Network.Addr()),
		zap.Uint("shards", cfg.Storage.Shards),
	)

	ks, err := storage.NewKeyspace(cfg.Storage.Shards)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		m.RegisterKeys(ks.Len)
	}

	persistLog := log.Named("persistence")
	snap := persistence.NewSnapshotter(cfg.Database.Dir, cfg.Database.Filename, persistLog)
	sched := persistence.NewScheduler(snap, ks, persistence.SchedulerConfig{
		Interval:  cfg.Database.SaveInterval(),
		Mutations: cfg.Database.Mutations,
	}, persistLog, m)

	engine := server.NewEngine(server.EngineConfig{
		Keyspace:    ks,
		Index:       geo.NewIndex(),
		Scheduler:   sched,
		Metrics:     m,
		RequireAuth: cfg.Server.RequireAuth,
		GC:          cfg.GC,
	}, log.Named("engine"))

	// the engine's index observer is attached, so restored geo keys are indexed
	loaded, err := snap.Load(ks)
	if err != nil {
		return err
	}
	log.Info("snapshot loaded", zap.String("path", snap.Path()), zap.Uint64("keys", loaded))

	listener, err := net.Listen("tcp", cfg.Network.Addr())
	if err != nil {
		return err
	}
	log.Info("listening on", zap.String("address", listener.Addr().String()))

	srv := server.NewServer(engine, server.ListenerConfig{
		MaxConnections: cfg.Network.MaxConnections,
		MaxPacket:      cfg.Network.MaxPacketBytes(),
		RateLimit:      cfg.Network.RateLimit,
		IdleTimeout:    cfg.Network.IdleTimeout,
	}, log.Named("server"))

	var adminLn net.Listener
	if cfg.Metrics.Enabled {
		adminLn, err = net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			listener.Close() //nolint:errcheck
			return err
		}
		log.Info("metrics listening on", zap.String("address", adminLn.Addr().String()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return srv.Serve(gctx, listener) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return engine.RunGC(gctx) })

	if adminLn != nil {
		router := metrics.NewRouter(m, func() error {
			if gctx.Err() != nil {
				return errors.New("shutting down")
			}
			return nil
		})
		g.Go(func() error { return metrics.Serve(gctx, adminLn, router) })
	}

	<-gctx.Done()
	log.Info("Shutting down...")

	runErr := g.Wait()

	if srv.Wait(shutdownTimeout) {
		log.Info("All connections closed gracefully")
	} else {
		log.Warn("Shutdown timed out, forcing exit", zap.Duration("timeout", shutdownTimeout))
	}

	if err := sched.Close(); err != nil {
		log.Error("final snapshot failed", zap.Error(err))
		runErr = errors.Join(runErr, err)
	}

	log.Info("Moonstone stopped")
	return runErr
}
