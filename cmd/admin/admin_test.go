package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	persistlog "nanitecraft.ai/internal/persistence/log"
	"nanitecraft.ai/internal/persistence/snapshot"
	"nanitecraft.ai/internal/protocol"
	"nanitecraft.ai/internal/sim/session"
)

func runAdmin(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseVec3(t *testing.T) {
	v, err := parseVec3(" 1, -2,3 ")
	if err != nil || v != [3]int{1, -2, 3} {
		t.Fatalf("v=%v err=%v", v, err)
	}
	for _, bad := range []string{"", "1,2", "1,2,x", "1,2,3,4"} {
		if _, err := parseVec3(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestScanTicks_GapsAndCounts(t *testing.T) {
	sessionDir := t.TempDir()
	tl := persistlog.NewTickLogger(sessionDir)
	for _, tick := range []uint64{1, 2, 3, 7, 8} {
		e := session.TickLogEntry{Tick: tick, Digest: "d"}
		if tick == 2 {
			e.Events = []protocol.TargetEvent{
				{Tick: 2, Kind: protocol.EventClaim, Station: "S1"},
				{Tick: 2, Kind: protocol.EventComplete, Station: "S1", Outcome: "SUCCESS"},
			}
		}
		if err := tl.WriteTick(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	scan, err := scanTicks(persistlog.TickDir(sessionDir), 0, 0)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if scan.First != 1 || scan.Last != 8 || scan.Entries != 5 {
		t.Fatalf("scan=%+v", scan)
	}
	if len(scan.Gaps) != 1 || scan.Gaps[0] != [2]uint64{4, 6} {
		t.Fatalf("gaps=%v", scan.Gaps)
	}
	if scan.Events[protocol.EventClaim] != 1 || scan.Outcome["SUCCESS"] != 1 {
		t.Fatalf("events=%v outcomes=%v", scan.Events, scan.Outcome)
	}

	scan, err = scanTicks(persistlog.TickDir(sessionDir), 3, 7)
	if err != nil {
		t.Fatalf("scan range: %v", err)
	}
	if scan.First != 3 || scan.Last != 7 || scan.Entries != 2 || len(scan.Events) != 0 {
		t.Fatalf("ranged scan=%+v", scan)
	}
}

func TestSnapshotInspect_Latest(t *testing.T) {
	dataDir := t.TempDir()
	snapDir := filepath.Join(dataDir, "worlds", "w1", "snapshots")
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, WorldID: "w1", SessionID: "sess", Tick: 40},
		Fields: []snapshot.FieldV1{{ID: "F", Chunks: make([]snapshot.ChunkV1, 3)}},
		Claims: []snapshot.ClaimV1{
			{Cell: snapshot.CellV1{Field: "F", Pos: [3]int{1, 1, 1}}, Station: "S1"},
			{Cell: snapshot.CellV1{Field: "F", Pos: [3]int{2, 1, 1}}, Station: "S1"},
		},
		Stations: []snapshot.StationV1{
			{ID: "S2", Enabled: false, LastReason: "disabled"},
			{ID: "S1", Enabled: true, Active: []snapshot.TargetV1{{Tracked: true}, {}}},
		},
		Scanners: []snapshot.ScannerV1{{ID: "S1", Mined: make([]snapshot.CellV1, 4)}},
	}
	if err := snapshot.WriteSnapshot(snapshot.Path(snapDir, 10), snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, Tick: 10}}); err != nil {
		t.Fatalf("write old: %v", err)
	}
	if err := snapshot.WriteSnapshot(snapshot.Path(snapDir, 40), snap); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := runAdmin(t, "--data", dataDir, "--world", "w1", "--json", "snapshot", "inspect")
	if err != nil {
		t.Fatalf("inspect: %v\n%s", err, out)
	}
	var sum snapshotSummary
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if sum.Tick != 40 || sum.Chunks != 3 || sum.Claims != 2 || sum.Mined != 4 {
		t.Fatalf("summary=%+v", sum)
	}
	if len(sum.Stations) != 2 || sum.Stations[0].ID != "S1" || sum.Stations[0].Claims != 2 || sum.Stations[0].Active != 2 || sum.Stations[0].Tracked != 1 {
		t.Fatalf("stations=%+v", sum.Stations)
	}

	out, err = runAdmin(t, "--data", dataDir, "--world", "w1", "snapshot", "inspect")
	if err != nil {
		t.Fatalf("inspect table: %v", err)
	}
	if !strings.Contains(out, "tick=40") || !strings.Contains(out, "disabled") {
		t.Fatalf("table output:\n%s", out)
	}

	if _, err := runAdmin(t, "--data", t.TempDir(), "snapshot", "inspect"); err == nil {
		t.Fatalf("expected error without snapshots")
	}
}

func TestCommandCap_PostsAdminCommand(t *testing.T) {
	var got protocol.AdminCommandRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/admin/v1/commands" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		if got.Station == "NOPE" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(protocol.ErrorResponse{Code: protocol.ErrNotFound, Message: "station"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	if out, err := runAdmin(t, "--url", srv.URL, "cmd", "cap", "STATION_1", "3"); err != nil {
		t.Fatalf("cap: %v\n%s", err, out)
	}
	if got.Command != protocol.CmdSetTargetCap || got.Station != "STATION_1" || got.Cap == nil || *got.Cap != 3 {
		t.Fatalf("request=%+v", got)
	}

	_, err := runAdmin(t, "--url", srv.URL, "cmd", "disable", "NOPE")
	if err == nil || !strings.Contains(err.Error(), protocol.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}
