package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"nanitecraft.ai/internal/sim/session"
)

const segmentLayout = "2006-01-02-15"

// JSONLZstdWriter appends JSON lines to hourly zstd segments named
// <prefix>-<yyyy-mm-dd-hh>.jsonl.zst. Each Write flushes through the encoder
// so a crashed process loses at most the current frame.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	segment string
	f       *os.File
	enc     *zstd.Encoder
	buf     *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	seg := w.now().UTC().Format(segmentLayout)
	if seg != w.segment || w.buf == nil {
		if err := w.openLocked(seg); err != nil {
			return err
		}
	}
	if _, err := w.buf.Write(b); err != nil {
		return err
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Path returns the segment file a write at t would land in.
func (w *JSONLZstdWriter) Path(t time.Time) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, t.UTC().Format(segmentLayout)))
}

func (w *JSONLZstdWriter) openLocked(seg string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, seg))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f, w.enc = f, enc
	w.buf = bufio.NewWriterSize(enc, 64*1024)
	w.segment = seg
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var errs []error
	if w.buf != nil {
		errs = append(errs, w.buf.Flush())
		w.buf = nil
	}
	if w.enc != nil {
		errs = append(errs, w.enc.Close())
		w.enc = nil
	}
	if w.f != nil {
		errs = append(errs, w.f.Close())
		w.f = nil
	}
	w.segment = ""
	return errors.Join(errs...)
}

// Segments lists the segment files under dir with the given prefix, oldest first.
func Segments(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ".jsonl.zst") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// ReadJSONL decodes every line of a segment into a fresh T and hands it to fn.
// A truncated final frame (process killed mid-write) ends the scan without error.
func ReadJSONL[T any](path string, fn func(T) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	return nil
}

// TickLogger appends one TickLogEntry per tick under <dir>/ticks.
type TickLogger struct{ w *JSONLZstdWriter }

func NewTickLogger(sessionDir string) *TickLogger {
	return &TickLogger{w: NewJSONLZstdWriter(TickDir(sessionDir), "ticks")}
}

func TickDir(sessionDir string) string { return filepath.Join(sessionDir, "ticks") }

func (l *TickLogger) WriteTick(v session.TickLogEntry) error { return l.w.Write(v) }
func (l *TickLogger) Close() error                           { return l.w.Close() }

// AuditLogger appends completion, cancellation and admin entries under <dir>/audit.
type AuditLogger struct{ w *JSONLZstdWriter }

func NewAuditLogger(sessionDir string) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(AuditDir(sessionDir), "audit")}
}

func AuditDir(sessionDir string) string { return filepath.Join(sessionDir, "audit") }

func (l *AuditLogger) WriteAudit(v session.AuditEntry) error { return l.w.Write(v) }
func (l *AuditLogger) Close() error                          { return l.w.Close() }
