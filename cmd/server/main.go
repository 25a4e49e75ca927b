package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"containerflow.ai/internal/persistence/agentdb"
	persistlog "containerflow.ai/internal/persistence/log"
	"containerflow.ai/internal/persistence/snapshot"
	"containerflow.ai/internal/sim/tuning"
	"containerflow.ai/internal/sim/world"
	"containerflow.ai/internal/transport/observer"
)

func main() {
	var (
		addr        = flag.String("addr", "127.0.0.1:8080", "http listen address")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB   = flag.Bool("disable_db", false, "keep agent state in memory only")
		disableLogs = flag.Bool("disable_audit", false, "do not write the flow audit log")
		allowRemote = flag.Bool("allow_remote", false, "accept control requests from non-loopback clients")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
		snapEvery  = flag.Duration("snapshot_every", 5*time.Minute, "periodic snapshot interval (0 disables)")
	)
	flag.Parse()

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger := newLogger(level)
	defer func() { _ = logger.Sync() }()

	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("tuning not found; using defaults", zap.String("path", tp))
		tune, err = tuning.Defaults(), nil
	}
	if err != nil {
		logger.Fatal("load tuning", zap.Error(err))
	}
	rt := newRuntimeTuning(tune, level)

	worldDir := filepath.Join(*dataDir, "worlds", tune.World.ID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		logger.Fatal("data dir", zap.Error(err))
	}

	opts := world.Options{
		Log:      logger,
		Settings: rt.FlowSettings,
	}
	var store *agentdb.Store
	if !*disableDB {
		store, err = agentdb.Open(filepath.Join(worldDir, "agents.sqlite"), logger.Named("agentdb"))
		if err != nil {
			logger.Fatal("open agent store", zap.Error(err))
		}
		opts.Store = store
	} else {
		logger.Warn("agent state is not persisted")
	}
	var audit *persistlog.FlowLogger
	if !*disableLogs {
		audit = persistlog.NewFlowLogger(worldDir)
		opts.Audit = audit
	}

	w := world.New(tune.WorldConfig(), opts)

	snapshotToLoad := *snapPath
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatal("read snapshot", zap.Error(err))
		}
		if snap.Header.WorldID != w.ID() {
			logger.Fatal("snapshot world id mismatch", zap.String("tuning", w.ID()), zap.String("snapshot", snap.Header.WorldID))
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatal("import snapshot", zap.Error(err))
		}
		if got := w.StateDigest(); snap.Header.Digest != "" && got != snap.Header.Digest {
			logger.Warn("snapshot digest mismatch", zap.String("want", snap.Header.Digest), zap.String("got", got))
		}
		logger.Info("resumed from snapshot", zap.String("path", filepath.Base(snapshotToLoad)), zap.Uint64("tick", w.CurrentTick()))
	}

	obs := observer.NewServer(w, observer.Options{
		Log:         logger.Named("observer"),
		Locator:     rt.LocatorDefaults,
		AllowRemote: *allowRemote,
	})
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/v1/", obs.Handler())
	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := w.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", *addr), zap.String("world_id", w.ID()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		w.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		rt.watchReload(gctx, tp, logger)
		return nil
	})
	if *snapEvery > 0 {
		g.Go(func() error {
			t := time.NewTicker(*snapEvery)
			defer t.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-t.C:
				}
				var snap snapshot.SnapshotV1
				if err := w.Exec(gctx, func(w *world.World) { snap = w.ExportSnapshot() }); err != nil {
					continue
				}
				writeSnapshot(worldDir, snap, store, logger)
			}
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}

	// The loop has exited; the world is ours again.
	writeSnapshot(worldDir, w.ExportSnapshot(), store, logger)
	w.Close()
	if audit != nil {
		if err := audit.Close(); err != nil {
			logger.Warn("close audit log", zap.Error(err))
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Warn("close agent store", zap.Error(err))
		}
	}
	logger.Info("bye", zap.Uint64("tick", w.CurrentTick()))
}

func newLogger(level zap.AtomicLevel) *zap.Logger {
	config := zap.Config{
		Level:       level,
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		DisableCaller:    true,
	}
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
