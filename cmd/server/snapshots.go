package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"nanitecraft.ai/internal/persistence/snapshot"
)

// snapshotWriter drains the session's snapshot sink to disk and the index.
type snapshotWriter struct {
	dir string
	idx runtimeIndex
	log *log.Logger

	mu       sync.Mutex
	last     snapshot.SnapshotV1
	lastPath string
	changed  chan struct{}
}

func newSnapshotWriter(dir string, idx runtimeIndex, logger *log.Logger) *snapshotWriter {
	return &snapshotWriter{dir: dir, idx: idx, log: logger, changed: make(chan struct{})}
}

func (w *snapshotWriter) run(ctx context.Context, in <-chan snapshot.SnapshotV1) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-in:
			if _, err := w.write(snap); err != nil {
				w.log.Printf("snapshot write tick=%d: %v", snap.Header.Tick, err)
			}
		}
	}
}

func (w *snapshotWriter) write(snap snapshot.SnapshotV1) (string, error) {
	path := snapshot.Path(w.dir, snap.Header.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	if w.idx != nil {
		w.idx.RecordSnapshot(path, snap)
		w.idx.RecordSnapshotState(snap)
	}

	w.mu.Lock()
	w.last, w.lastPath = snap, path
	close(w.changed)
	w.changed = make(chan struct{})
	w.mu.Unlock()
	return path, nil
}

// waitWritten blocks until a snapshot at or after tick is on disk.
func (w *snapshotWriter) waitWritten(ctx context.Context, tick uint64) (string, snapshot.SnapshotV1, error) {
	for {
		w.mu.Lock()
		if w.lastPath != "" && w.last.Header.Tick >= tick {
			path, snap := w.lastPath, w.last
			w.mu.Unlock()
			return path, snap, nil
		}
		ch := w.changed
		w.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return "", snapshot.SnapshotV1{}, ctx.Err()
		}
	}
}

func latestSnapshot(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			best, bestTick = filepath.Join(dir, name), tick
		}
	}
	return best
}
