package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	persistlog "nanitecraft.ai/internal/persistence/log"
	"nanitecraft.ai/internal/persistence/snapshot"
	"nanitecraft.ai/internal/sim/catalogs"
	"nanitecraft.ai/internal/sim/layout"
	"nanitecraft.ai/internal/sim/session"
	"nanitecraft.ai/internal/sim/tuning"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		worldID     = flag.String("world", "world_1", "world id")
		seed        = flag.Int64("seed", 1337, "session seed (used only when starting fresh)")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		stationPath = flag.String("stations", "", "path to stations.yaml (default: <configs>/stations.yaml)")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite index (tick/audit, catalogs, snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	sessionDir := filepath.Join(*dataDir, "worlds", *worldID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}
	lock := flock.New(filepath.Join(sessionDir, "server.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		logger.Fatalf("acquire lock: %v", err)
	}
	if !locked {
		logger.Fatalf("another server is already running for world %s (%s)", *worldID, lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	tune, err := tuning.Load(defaultPath(*tuningPath, *configDir, "tuning.yaml"))
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	lay, err := layout.Load(defaultPath(*stationPath, *configDir, "stations.yaml"))
	if err != nil {
		logger.Fatalf("load layout: %v", err)
	}

	snapDir := filepath.Join(sessionDir, "snapshots")
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(snapDir)
	}

	var snap *snapshot.SnapshotV1
	sessionSeed := *seed
	if snapshotToLoad != "" {
		s, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if s.Header.WorldID != "" && s.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, s.Header.WorldID)
		}
		snap = &s
		sessionSeed = s.Seed
	}

	sess, err := session.New(session.Config{
		ID:       *worldID,
		Seed:     sessionSeed,
		Tuning:   tune,
		Layout:   lay,
		Catalogs: cats,
		Logger:   log.New(os.Stdout, "[session] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		logger.Fatalf("session: %v", err)
	}
	defer sess.Close()
	if snap != nil {
		if err := sess.ImportSnapshot(*snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), sess.CurrentTick())
	}

	// Read-model index; never affects the simulation.
	idx, err := openRuntimeIndex(sessionDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
	}

	tickLog := persistlog.NewTickLogger(sessionDir)
	auditLog := persistlog.NewAuditLogger(sessionDir)
	defer tickLog.Close()
	defer auditLog.Close()
	ticks := multiTickLogger{tickLog}
	audits := multiAuditLogger{auditLog}
	if idx != nil {
		ticks = append(ticks, idx)
		audits = append(audits, idx)
	}
	sess.SetTickLogger(ticks)
	sess.SetAuditLogger(audits)

	ctx, cancel := signalContext()
	defer cancel()

	snapCh := make(chan snapshot.SnapshotV1, 2)
	sess.SetSnapshotSink(snapCh)
	snaps := newSnapshotWriter(snapDir, idx, logger)
	go snaps.run(ctx, snapCh)

	go func() {
		if err := sess.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("session stopped: %v", err)
		}
	}()

	a := &api{sess: sess, idx: idx, snaps: snaps, sessionDir: sessionDir, log: logger}
	srv := &http.Server{
		Addr:              *addr,
		Handler:           a.routes(envBool("NC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()), envBool("NC_ENABLE_PPROF_HTTP", false)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s world=%s session=%s stations=%d", *addr, *worldID, sess.ID(), len(lay.Stations))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func defaultPath(p, configDir, name string) string {
	if p = strings.TrimSpace(p); p != "" {
		return p
	}
	return filepath.Join(configDir, name)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(name string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
