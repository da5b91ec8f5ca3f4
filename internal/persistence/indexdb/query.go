package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
)

// Reader runs the admin queries against an index written by SQLiteIndex.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

type SnapshotInfo struct {
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

// Snapshots returns the newest snapshots first.
func (r *Reader) Snapshots(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT tick,path,session_id,fields,chunks,claims,active,mined,cargo,completed,cancelled
		FROM snapshots ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotInfo
	for rows.Next() {
		var s SnapshotInfo
		var tick, completed, cancelled int64
		if err := rows.Scan(&tick, &s.Path, &s.SessionID, &s.Fields, &s.Chunks, &s.Claims, &s.Active, &s.Mined, &s.Cargo, &completed, &cancelled); err != nil {
			return nil, err
		}
		s.Tick, s.Completed, s.Cancelled = uint64(tick), uint64(completed), uint64(cancelled)
		out = append(out, s)
	}
	return out, rows.Err()
}

// SnapshotAt returns the newest indexed snapshot at or before tick.
func (r *Reader) SnapshotAt(ctx context.Context, tick uint64) (SnapshotInfo, error) {
	var s SnapshotInfo
	var t int64
	err := r.db.QueryRowContext(ctx, `SELECT tick,path FROM snapshots WHERE tick <= ? ORDER BY tick DESC LIMIT 1`, int64(tick)).Scan(&t, &s.Path)
	if err == sql.ErrNoRows {
		return s, fmt.Errorf("no snapshot at or before tick %d", tick)
	}
	s.Tick = uint64(t)
	return s, err
}

type OutcomeCount struct {
	Station string
	Kind    string
	Outcome string
	Count   int
	Amount  float64
}

// Outcomes aggregates target events per station and outcome, optionally for one station.
func (r *Reader) Outcomes(ctx context.Context, station string) ([]OutcomeCount, error) {
	q := `SELECT station, kind, COALESCE(outcome,''), COUNT(*), COALESCE(SUM(amount),0) FROM target_events`
	var args []any
	if station != "" {
		q += ` WHERE station = ?`
		args = append(args, station)
	}
	q += ` GROUP BY station, kind, outcome ORDER BY station, kind, outcome`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OutcomeCount
	for rows.Next() {
		var c OutcomeCount
		if err := rows.Scan(&c.Station, &c.Kind, &c.Outcome, &c.Count, &c.Amount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type StationRow struct {
	ID               string
	Tick             uint64
	Enabled          bool
	UserTargetCap    int
	Active           int
	PotentialTargets int
	LastReason       string
}

func (r *Reader) Stations(ctx context.Context) ([]StationRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT station_id,tick,enabled,user_target_cap,active,potential_targets,COALESCE(last_reason,'')
		FROM station_state ORDER BY station_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StationRow
	for rows.Next() {
		var s StationRow
		var tick int64
		var enabled int
		if err := rows.Scan(&s.ID, &tick, &enabled, &s.UserTargetCap, &s.Active, &s.PotentialTargets, &s.LastReason); err != nil {
			return nil, err
		}
		s.Tick, s.Enabled = uint64(tick), enabled != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

type AuditRow struct {
	Tick    uint64
	Station string
	Action  string
	Field   string
	Pos     [3]int
	Outcome string
	Item    string
	Amount  float64
	Reason  string
}

// Audits lists audit entries at a cell, newest first.
func (r *Reader) Audits(ctx context.Context, field string, pos [3]int, limit int) ([]AuditRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT tick,COALESCE(station,''),action,COALESCE(field,''),x,y,z,COALESCE(outcome,''),COALESCE(item,''),amount,COALESCE(reason,'')
		FROM audits WHERE field = ? AND x = ? AND y = ? AND z = ? ORDER BY tick DESC, seq DESC LIMIT ?`,
		field, pos[0], pos[1], pos[2], limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditRow
	for rows.Next() {
		var a AuditRow
		var tick int64
		if err := rows.Scan(&tick, &a.Station, &a.Action, &a.Field, &a.Pos[0], &a.Pos[1], &a.Pos[2], &a.Outcome, &a.Item, &a.Amount, &a.Reason); err != nil {
			return nil, err
		}
		a.Tick = uint64(tick)
		out = append(out, a)
	}
	return out, rows.Err()
}
