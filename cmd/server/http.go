package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"sort"
	"strconv"
	"strings"
	"time"

	"nanitecraft.ai/internal/persistence/archive"
	"nanitecraft.ai/internal/protocol"
	"nanitecraft.ai/internal/sim/session"
	"nanitecraft.ai/internal/transport/observer"
)

type api struct {
	sess       *session.Session
	idx        runtimeIndex
	snaps      *snapshotWriter
	sessionDir string
	log        *log.Logger
}

func (a *api) routes(enableAdmin, enablePprof bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", a.handleMetrics)

	if enableAdmin {
		mux.HandleFunc("/admin/v1/state", a.loopbackOnly(a.handleState))
		mux.HandleFunc("/admin/v1/snapshot", a.loopbackOnly(a.handleSnapshot))
		mux.HandleFunc("/admin/v1/commands", a.loopbackOnly(a.handleCommand))
		mux.HandleFunc("/admin/v1/events", a.loopbackOnly(a.handleEvents))

		obsSrv := observer.NewServer(a.sess, a.log)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		a.log.Printf("admin endpoints disabled (NC_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func (a *api) loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			writeError(rw, http.StatusForbidden, protocol.ErrBadRequest, "forbidden")
			return
		}
		h(rw, r)
	}
}

func (a *api) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	m := a.sess.Metrics()
	world := a.sess.WorldID()

	gauge := func(name, help string) {
		fmt.Fprintf(rw, "# HELP %s %s\n# TYPE %s gauge\n", name, help, name)
	}
	counter := func(name, help string) {
		fmt.Fprintf(rw, "# HELP %s %s\n# TYPE %s counter\n", name, help, name)
	}

	gauge("nanite_session_tick", "Current session tick.")
	fmt.Fprintf(rw, "nanite_session_tick{world=%q} %d\n", world, m.Tick)

	gauge("nanite_claims", "Cells held in the claim registry.")
	fmt.Fprintf(rw, "nanite_claims{world=%q} %d\n", world, m.Claims)

	gauge("nanite_active_targets", "Targets currently in a station's active list.")
	fmt.Fprintf(rw, "nanite_active_targets{world=%q} %d\n", world, m.ActiveTargets)

	gauge("nanite_tracked_targets", "Targets with a lifecycle entry.")
	fmt.Fprintf(rw, "nanite_tracked_targets{world=%q} %d\n", world, m.Tracked)

	counter("nanite_targets_completed_total", "Targets completed.")
	fmt.Fprintf(rw, "nanite_targets_completed_total{world=%q} %d\n", world, m.Completed)

	counter("nanite_targets_cancelled_total", "Targets cancelled.")
	fmt.Fprintf(rw, "nanite_targets_cancelled_total{world=%q} %d\n", world, m.Cancelled)

	counter("nanite_extraction_outcomes_total", "Extraction outcomes by kind.")
	for _, k := range sortedKeys(m.Outcomes) {
		fmt.Fprintf(rw, "nanite_extraction_outcomes_total{world=%q,outcome=%q} %d\n", world, k, m.Outcomes[k])
	}

	counter("nanite_mined_items_total", "Items deposited by extraction, by item id.")
	for _, k := range sortedKeys(m.Mined) {
		fmt.Fprintf(rw, "nanite_mined_items_total{world=%q,item=%q} %.6f\n", world, k, m.Mined[k])
	}

	counter("nanite_distributed_items_total", "Items moved from stations to linked cargo.")
	fmt.Fprintf(rw, "nanite_distributed_items_total{world=%q} %.6f\n", world, m.Distributed)

	gauge("nanite_effects_active", "Live transit effects.")
	fmt.Fprintf(rw, "nanite_effects_active{world=%q} %d\n", world, m.Effects.Active)
	counter("nanite_effects_dropped_total", "Effects rejected by the global budget.")
	fmt.Fprintf(rw, "nanite_effects_dropped_total{world=%q} %d\n", world, m.Effects.Dropped)

	gauge("nanite_queue_depth", "Channel backlog depth.")
	fmt.Fprintf(rw, "nanite_queue_depth{world=%q,queue=%q} %d\n", world, "commands", m.QueueDepths.Commands)
	fmt.Fprintf(rw, "nanite_queue_depth{world=%q,queue=%q} %d\n", world, "jobs", m.QueueDepths.Jobs)

	counter("nanite_dropped_commands_total", "Commands dropped on a full queue.")
	fmt.Fprintf(rw, "nanite_dropped_commands_total{world=%q} %d\n", world, m.DroppedCommands)

	gauge("nanite_loaded_chunks", "Modified chunks held across all fields.")
	fmt.Fprintf(rw, "nanite_loaded_chunks{world=%q} %d\n", world, m.LoadedChunks)

	gauge("nanite_step_ms", "Last tick step duration in milliseconds.")
	fmt.Fprintf(rw, "nanite_step_ms{world=%q} %.3f\n", world, m.StepMS)

	gauge("nanite_station_active_targets", "Active targets per station.")
	for _, st := range m.Stations {
		fmt.Fprintf(rw, "nanite_station_active_targets{world=%q,station=%q} %d\n", world, st.ID, st.Active)
	}
	gauge("nanite_station_cargo_free_m3", "Free cargo volume per station.")
	for _, st := range m.Stations {
		fmt.Fprintf(rw, "nanite_station_cargo_free_m3{world=%q,station=%q} %.3f\n", world, st.ID, st.CargoFree)
	}

	if a.idx != nil {
		s := a.idx.Stats()
		gauge("nanite_index_queue_depth", "Index writer queue depth.")
		fmt.Fprintf(rw, "nanite_index_queue_depth %d\n", s.QueueDepth)
		counter("nanite_index_dropped_total", "Index writes dropped on a full queue.")
		fmt.Fprintf(rw, "nanite_index_dropped_total{kind=%q} %d\n", "tick", s.DropTickTotal)
		fmt.Fprintf(rw, "nanite_index_dropped_total{kind=%q} %d\n", "audit", s.DropAuditTotal)
		fmt.Fprintf(rw, "nanite_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshotTotal)
		fmt.Fprintf(rw, "nanite_index_dropped_total{kind=%q} %d\n", "snapshot_state", s.DropSnapshotStateTotal)
	}
}

func (a *api) handleState(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp := struct {
		WorldID   string          `json:"world_id"`
		SessionID string          `json:"session_id"`
		Tick      uint64          `json:"tick"`
		Metrics   session.Metrics `json:"metrics"`
	}{
		WorldID:   a.sess.WorldID(),
		SessionID: a.sess.ID(),
		Tick:      a.sess.CurrentTick(),
		Metrics:   a.sess.Metrics(),
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (a *api) handleSnapshot(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	tick, err := a.sess.RequestSnapshot(ctx)
	if err != nil {
		writeError(rw, http.StatusServiceUnavailable, protocol.ErrBusy, err.Error())
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": tick})
}

func (a *api) handleCommand(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
		return
	}
	req, err := protocol.DecodeAdminCommand(body)
	if err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
		return
	}

	var cmd session.Command
	switch req.Command {
	case protocol.CmdSetEnabled:
		cmd = session.SetStationEnabled{StationID: req.Station, Enabled: *req.Enabled}
	case protocol.CmdSetTargetCap:
		cmd = session.SetUserTargetCap{StationID: req.Station, Cap: *req.Cap}
	case protocol.CmdResetField:
		cmd = session.ResetField{FieldID: req.Field}
	case protocol.CmdRemoveField:
		cmd = session.RemoveField{FieldID: req.Field}
	case protocol.CmdRemoveCargo:
		cmd = session.RemoveCargo{CargoID: req.Cargo}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	resp := map[string]any{"ok": true, "command": req.Command}
	if reason := archiveReason(req.Command); reason != "" && a.snaps != nil {
		archived, err := a.archiveBefore(ctx, reason, req.Field)
		if err != nil {
			writeError(rw, http.StatusServiceUnavailable, protocol.ErrBusy, "archive before "+reason+": "+err.Error())
			return
		}
		resp["archived"] = archived
	}

	if err := a.sess.Exec(ctx, cmd); err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			writeError(rw, http.StatusNotFound, protocol.ErrNotFound, err.Error())
		case errors.Is(err, session.ErrRejected):
			writeError(rw, http.StatusConflict, protocol.ErrConflict, err.Error())
		case errors.Is(err, context.DeadlineExceeded):
			writeError(rw, http.StatusServiceUnavailable, protocol.ErrBusy, err.Error())
		default:
			writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, err.Error())
		}
		return
	}
	resp["tick"] = a.sess.CurrentTick()
	writeJSON(rw, http.StatusOK, resp)
}

// archiveReason names the archive taken before a destructive field command.
func archiveReason(command string) string {
	switch command {
	case protocol.CmdResetField:
		return "reset"
	case protocol.CmdRemoveField:
		return "remove"
	}
	return ""
}

// archiveBefore writes a fresh snapshot and copies it aside, so the field contents
// dropped by a reset or removal stay recoverable.
func (a *api) archiveBefore(ctx context.Context, reason, fieldID string) (string, error) {
	tick, err := a.sess.RequestSnapshot(ctx)
	if err != nil {
		return "", err
	}
	path, snap, err := a.snaps.waitWritten(ctx, tick)
	if err != nil {
		return "", err
	}
	return archive.ArchiveSnapshot(a.sessionDir, path, reason, fieldID, snap)
}

func (a *api) handleEvents(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	var since uint64
	if v := q.Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "bad since")
			return
		}
		since = n
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "bad limit")
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	items, next, err := a.sess.RequestEventsAfter(ctx, since, limit)
	if err != nil {
		writeError(rw, http.StatusServiceUnavailable, protocol.ErrBusy, err.Error())
		return
	}
	msg := protocol.EventBatchMsg{
		Type:            protocol.TypeEventBatch,
		ProtocolVersion: protocol.Version,
		SessionID:       a.sess.ID(),
		Events:          make([]protocol.EventBatchItem, 0, len(items)),
		NextCursor:      next,
	}
	for _, it := range items {
		msg.Events = append(msg.Events, protocol.EventBatchItem{Cursor: it.Cursor, Event: it.Event})
	}
	writeJSON(rw, http.StatusOK, msg)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, protocol.ErrorResponse{Code: code, Message: msg})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
