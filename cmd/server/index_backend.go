package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nanitecraft.ai/internal/persistence/indexdb"
	"nanitecraft.ai/internal/persistence/snapshot"
	"nanitecraft.ai/internal/sim/catalogs"
	"nanitecraft.ai/internal/sim/session"
	"nanitecraft.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	session.TickLogger
	session.AuditLogger
	Close() error
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	RecordSnapshotState(snap snapshot.SnapshotV1)
	Stats() indexdb.Stats
}

// openRuntimeIndex opens the read-model index selected by NC_INDEX_BACKEND
// (sqlite by default). A nil index means indexing is off.
func openRuntimeIndex(sessionDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("NC_INDEX_BACKEND")))
	switch backend {
	case "", "sqlite":
		return indexdb.OpenSQLite(indexPath(sessionDir))
	case "none", "off", "disabled":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported NC_INDEX_BACKEND: %s", backend)
	}
}

func indexPath(sessionDir string) string {
	return filepath.Join(sessionDir, "index", "session.sqlite")
}

type multiTickLogger []session.TickLogger

func (m multiTickLogger) WriteTick(entry session.TickLogEntry) error {
	var first error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.WriteTick(entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type multiAuditLogger []session.AuditLogger

func (m multiAuditLogger) WriteAudit(entry session.AuditEntry) error {
	var first error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.WriteAudit(entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}
