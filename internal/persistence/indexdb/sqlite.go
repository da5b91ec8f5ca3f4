package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"nanitecraft.ai/internal/persistence/snapshot"
	"nanitecraft.ai/internal/sim/catalogs"
	"nanitecraft.ai/internal/sim/session"
	"nanitecraft.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable read model of the tick and audit logs. Writes are
// queued and applied by a single goroutine in batched transactions; when the
// queue is full entries are dropped and counted, the JSONL logs stay authoritative.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick          atomic.Uint64
	dropAudit         atomic.Uint64
	dropSnapshot      atomic.Uint64
	dropSnapshotState atomic.Uint64
}

type Stats struct {
	DropTickTotal          uint64 `json:"drop_tick_total"`
	DropAuditTotal         uint64 `json:"drop_audit_total"`
	DropSnapshotTotal      uint64 `json:"drop_snapshot_total"`
	DropSnapshotStateTotal uint64 `json:"drop_snapshot_state_total"`
	QueueDepth             int    `json:"queue_depth"`
	QueueCapacity          int    `json:"queue_capacity"`
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
	reqSnapshot
	reqSnapshotState
)

type req struct {
	kind reqKind

	tick     session.TickLogEntry
	audit    session.AuditEntry
	snapshot snapshotRow
	state    []stationRow
}

type snapshotRow struct {
	Tick      uint64
	Path      string
	SessionID string
	Fields    int
	Chunks    int
	Claims    int
	Active    int
	Mined     int
	Cargo     int
	Completed uint64
	Cancelled uint64
}

type stationRow struct {
	Tick             uint64
	StationID        string
	Enabled          bool
	UserTargetCap    int
	Active           int
	PotentialTargets int
	LastReason       string
}

const queueCapacity = 262144

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queueCapacity),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL suits the append-heavy workload; NORMAL sync is enough for a rebuildable index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			time_ms INTEGER NOT NULL,
			digest TEXT NOT NULL,
			commands INTEGER NOT NULL,
			events INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS target_events (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			station TEXT NOT NULL,
			scanner TEXT NOT NULL,
			field TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			material INTEGER NOT NULL,
			outcome TEXT,
			item TEXT,
			amount REAL NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_target_events_station_tick ON target_events(station, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_target_events_outcome ON target_events(outcome);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			station TEXT,
			action TEXT NOT NULL,
			field TEXT,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			material INTEGER NOT NULL,
			outcome TEXT,
			item TEXT,
			amount REAL NOT NULL,
			reason TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_station_tick ON audits(station, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_pos_tick ON audits(field, x, z, y, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			session_id TEXT NOT NULL,
			fields INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			claims INTEGER NOT NULL,
			active INTEGER NOT NULL,
			mined INTEGER NOT NULL,
			cargo INTEGER NOT NULL,
			completed INTEGER NOT NULL,
			cancelled INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS station_state (
			station_id TEXT PRIMARY KEY,
			tick INTEGER NOT NULL,
			enabled INTEGER NOT NULL,
			user_target_cap INTEGER NOT NULL,
			active INTEGER NOT NULL,
			potential_targets INTEGER NOT NULL,
			last_reason TEXT
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropTickTotal:          s.dropTick.Load(),
		DropAuditTotal:         s.dropAudit.Load(),
		DropSnapshotTotal:      s.dropSnapshot.Load(),
		DropSnapshotStateTotal: s.dropSnapshotState.Load(),
		QueueDepth:             len(s.ch),
		QueueCapacity:          cap(s.ch),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(entry session.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: entry}, &s.dropTick)
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry session.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqAudit, audit: entry}, &s.dropAudit)
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:      snap.Header.Tick,
		Path:      path,
		SessionID: snap.Header.SessionID,
		Fields:    len(snap.Fields),
		Claims:    len(snap.Claims),
		Cargo:     len(snap.Cargo),
		Completed: snap.Stats.Completed,
		Cancelled: snap.Stats.Cancelled,
	}
	for _, f := range snap.Fields {
		r.Chunks += len(f.Chunks)
	}
	for _, st := range snap.Stations {
		r.Active += len(st.Active)
	}
	for _, sc := range snap.Scanners {
		r.Mined += len(sc.Mined)
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

// RecordSnapshotState replaces the per-station rows with the stations in snap.
func (s *SQLiteIndex) RecordSnapshotState(snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	rows := make([]stationRow, 0, len(snap.Stations))
	for _, st := range snap.Stations {
		rows = append(rows, stationRow{
			Tick:             snap.Header.Tick,
			StationID:        st.ID,
			Enabled:          st.Enabled,
			UserTargetCap:    st.UserTargetCap,
			Active:           len(st.Active),
			PotentialTargets: st.PotentialTargets,
			LastReason:       st.LastReason,
		})
	}
	s.enqueue(req{kind: reqSnapshotState, state: rows}, &s.dropSnapshotState)
}

// UpsertCatalogs stores the raw catalog files and the tuning in effect, so a
// database copied off a host is self-describing.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" && cats != nil {
		if b, err := os.ReadFile(filepath.Join(configDir, "items.json")); err == nil {
			rows = append(rows, kv{name: "items_defs", digest: cats.Items.DefsDigest, json: b})
		}
		if b, err := os.ReadFile(filepath.Join(configDir, "materials.json")); err == nil {
			rows = append(rows, kv{name: "materials", digest: cats.Materials.Digest, json: b})
		}
	}
	if cats != nil {
		if b, _ := json.Marshal(cats.Items.Palette); len(b) > 0 {
			rows = append(rows, kv{name: "items_palette", digest: cats.Items.PaletteDigest, json: b})
		}
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,time_ms,digest,commands,events,raw_json) VALUES(?,?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO target_events(tick,seq,kind,station,scanner,field,x,y,z,material,outcome,item,amount) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(tick,seq,station,action,field,x,y,z,material,outcome,item,amount,reason,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,session_id,fields,chunks,claims,active,mined,cargo,completed,cancelled) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	upsertStation, _ := s.db.Prepare(`INSERT OR REPLACE INTO station_state(station_id,tick,enabled,user_target_cap,active,potential_targets,last_reason) VALUES(?,?,?,?,?,?,?)`)
	stmts := []*sql.Stmt{insertTick, insertEvent, insertAudit, insertSnapshot, upsertStation}
	defer func() {
		for _, st := range stmts {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	finish := func(commit bool) {
		if tx == nil {
			return
		}
		if commit {
			_ = tx.Commit()
		} else {
			_ = tx.Rollback()
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			finish(false)
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			raw, _ := json.Marshal(e)
			if !exec(insertTick, int64(e.Tick), e.TimeMs, e.Digest, len(e.Commands), len(e.Events), string(raw)) {
				continue
			}
			for i, ev := range e.Events {
				if !exec(insertEvent,
					int64(e.Tick), i, ev.Kind, ev.Station, ev.Scanner, ev.Field,
					ev.Pos[0], ev.Pos[1], ev.Pos[2], int(ev.Material),
					ev.Outcome, ev.Item, ev.Amount,
				) {
					break
				}
			}

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			exec(insertAudit,
				int64(a.Tick), seq, a.Station, a.Action, a.Field,
				a.Pos[0], a.Pos[1], a.Pos[2], int(a.Material),
				a.Outcome, a.Item, a.Amount, a.Reason, string(raw),
			)

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot,
				int64(sn.Tick), sn.Path, sn.SessionID, sn.Fields, sn.Chunks,
				sn.Claims, sn.Active, sn.Mined, sn.Cargo,
				int64(sn.Completed), int64(sn.Cancelled),
			)

		case reqSnapshotState:
			for _, st := range r.state {
				if !exec(upsertStation,
					st.StationID, int64(st.Tick), boolInt(st.Enabled), st.UserTargetCap,
					st.Active, st.PotentialTargets, st.LastReason,
				) {
					break
				}
			}
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			finish(true)
		}
	}
	finish(true)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
