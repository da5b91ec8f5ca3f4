package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"nanitecraft.ai/internal/persistence/snapshot"
)

// Meta describes one archived snapshot.
type Meta struct {
	Reason    string `json:"reason"`
	Field     string `json:"field,omitempty"`
	Tick      uint64 `json:"tick"`
	SessionID string `json:"session_id"`
	Seed      int64  `json:"seed"`
	Snapshot  string `json:"snapshot"`
	Claims    int    `json:"claims"`
	CreatedAt string `json:"created_at"`
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Dir returns the archive directory for a reason/field pair at tick.
func Dir(sessionDir, reason, field string, tick uint64) string {
	name := unsafeName.ReplaceAllString(reason, "_")
	if field != "" {
		name += "_" + unsafeName.ReplaceAllString(field, "_")
	}
	return filepath.Join(sessionDir, "archives", fmt.Sprintf("%s_%012d", name, tick))
}

// ArchiveSnapshot copies a written snapshot into <sessionDir>/archives/<reason>[_field]_<tick>/
// next to a meta.json. Field resets and removals use it so the prior state of a
// field stays recoverable.
func ArchiveSnapshot(sessionDir, snapshotPath, reason, field string, snap snapshot.SnapshotV1) (string, error) {
	if reason == "" {
		return "", fmt.Errorf("archive: empty reason")
	}
	dir := Dir(sessionDir, reason, field, snap.Header.Tick)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", err
	}

	meta := Meta{
		Reason:    reason,
		Field:     field,
		Tick:      snap.Header.Tick,
		SessionID: snap.Header.SessionID,
		Seed:      snap.Seed,
		Snapshot:  filepath.Base(dst),
		Claims:    len(snap.Claims),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644); err != nil {
		return "", err
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
