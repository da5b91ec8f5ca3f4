package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nanitecraft.ai/internal/persistence/archive"
	"nanitecraft.ai/internal/persistence/snapshot"
	"nanitecraft.ai/internal/protocol"
	"nanitecraft.ai/internal/sim/catalogs"
	"nanitecraft.ai/internal/sim/layout"
	"nanitecraft.ai/internal/sim/session"
	"nanitecraft.ai/internal/sim/tuning"
)

func newTestAPI(t *testing.T) (*api, *httptest.Server) {
	t.Helper()
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	lay, err := layout.Load("")
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	tune := tuning.Defaults()
	tune.TickRateHz = 50
	tune.SnapshotEveryTicks = 0

	sess, err := session.New(session.Config{ID: "w1", Seed: 1, Tuning: tune, Layout: lay, Catalogs: cats})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	dir := t.TempDir()
	logger := log.New(io.Discard, "", 0)

	ctx, cancel := context.WithCancel(context.Background())
	snapCh := make(chan snapshot.SnapshotV1, 2)
	sess.SetSnapshotSink(snapCh)
	snaps := newSnapshotWriter(filepath.Join(dir, "snapshots"), nil, logger)
	go snaps.run(ctx, snapCh)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sess.Run(ctx)
	}()

	a := &api{sess: sess, snaps: snaps, sessionDir: dir, log: logger}
	ts := httptest.NewServer(a.routes(true, false))
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
		sess.Close()
	})
	return a, ts
}

func postCommand(t *testing.T, ts *httptest.Server, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/admin/v1/commands", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestAdminCommands(t *testing.T) {
	a, ts := newTestAPI(t)

	code, out := postCommand(t, ts, `{"command":"SET_TARGET_CAP","station":"STATION_1","cap":1}`)
	if code != http.StatusOK {
		t.Fatalf("set cap: %d %v", code, out)
	}
	code, out = postCommand(t, ts, `{"command":"SET_ENABLED","station":"NOPE","enabled":false}`)
	if code != http.StatusNotFound || out["code"] != protocol.ErrNotFound {
		t.Fatalf("unknown station: %d %v", code, out)
	}
	code, out = postCommand(t, ts, `{"command":"REMOVE_CARGO","cargo":"STATION_1"}`)
	if code != http.StatusConflict || out["code"] != protocol.ErrConflict {
		t.Fatalf("remove station cargo: %d %v", code, out)
	}
	code, out = postCommand(t, ts, `{"command":"SET_ENABLED","station":"STATION_1"}`)
	if code != http.StatusBadRequest || out["code"] != protocol.ErrBadRequest {
		t.Fatalf("missing enabled: %d %v", code, out)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		m := a.sess.Metrics()
		if len(m.Stations) == 1 && m.Stations[0].UserTargetCap == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cap not visible in metrics: %+v", m.Stations)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestAdminResetFieldArchivesSnapshot(t *testing.T) {
	a, ts := newTestAPI(t)

	code, out := postCommand(t, ts, `{"command":"RESET_FIELD","field":"ASTEROID_1"}`)
	if code != http.StatusOK {
		t.Fatalf("reset: %d %v", code, out)
	}
	archived, _ := out["archived"].(string)
	if archived == "" {
		t.Fatalf("expected archived path, got %v", out)
	}
	if !strings.HasPrefix(archived, filepath.Join(a.sessionDir, "archives")) {
		t.Fatalf("archived outside session dir: %s", archived)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(archived), "meta.json")); err != nil {
		t.Fatalf("meta: %v", err)
	}
	snap, err := snapshot.ReadSnapshot(archived)
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if snap.Header.SessionID != a.sess.ID() {
		t.Fatalf("archived session=%s want %s", snap.Header.SessionID, a.sess.ID())
	}
	if filepath.Dir(archived) != archive.Dir(a.sessionDir, "reset", "ASTEROID_1", snap.Header.Tick) {
		t.Fatalf("archive dir=%s", filepath.Dir(archived))
	}
}

func TestAdminEventsAndState(t *testing.T) {
	a, ts := newTestAPI(t)

	resp, err := http.Get(ts.URL + "/admin/v1/events?since=0&limit=10")
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	var batch protocol.EventBatchMsg
	err = json.NewDecoder(resp.Body).Decode(&batch)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if batch.Type != protocol.TypeEventBatch || batch.SessionID != a.sess.ID() {
		t.Fatalf("batch=%+v", batch)
	}

	resp, err = http.Get(ts.URL + "/admin/v1/events?limit=x")
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status=%d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/admin/v1/state")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	var state struct {
		WorldID   string `json:"world_id"`
		SessionID string `json:"session_id"`
	}
	err = json.NewDecoder(resp.Body).Decode(&state)
	resp.Body.Close()
	if err != nil || state.WorldID != "w1" || state.SessionID != a.sess.ID() {
		t.Fatalf("state=%+v err=%v", state, err)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `nanite_session_tick{world="w1"}`) {
		t.Fatalf("metrics missing tick gauge:\n%s", body)
	}
}

func TestLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	for _, tick := range []uint64{5, 120, 40} {
		if err := os.WriteFile(snapshot.Path(dir, tick), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = os.WriteFile(filepath.Join(dir, "junk.snap.zst"), []byte("x"), 0o644)
	if got, want := latestSnapshot(dir), snapshot.Path(dir, 120); got != want {
		t.Fatalf("latest=%s want %s", got, want)
	}
	if latestSnapshot(filepath.Join(dir, "missing")) != "" {
		t.Fatalf("expected empty for missing dir")
	}
}

func TestAdminRemoveFieldArchivesAndRemoves(t *testing.T) {
	a, ts := newTestAPI(t)

	code, out := postCommand(t, ts, `{"command":"REMOVE_FIELD","field":"ASTEROID_1"}`)
	if code != http.StatusOK {
		t.Fatalf("remove: %d %v", code, out)
	}
	archived, _ := out["archived"].(string)
	if !strings.Contains(filepath.Base(filepath.Dir(archived)), "remove_ASTEROID_1_") {
		t.Fatalf("archive dir=%q", archived)
	}
	if len(a.sess.Bootstrap().Fields) != 0 {
		t.Fatalf("field still listed after removal: %+v", a.sess.Bootstrap().Fields)
	}

	code, out = postCommand(t, ts, `{"command":"REMOVE_FIELD","field":"ASTEROID_1"}`)
	if code != http.StatusNotFound || out["code"] != protocol.ErrNotFound {
		t.Fatalf("second removal: %d %v", code, out)
	}
}
