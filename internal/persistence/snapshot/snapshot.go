package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version   int    `json:"version"`
	WorldID   string `json:"world_id"`
	SessionID string `json:"session_id"`
	Tick      uint64 `json:"tick"`
}

// SnapshotV1 is everything needed to resume a mining session: the modified part of
// every field, the claim registry, each station's active targets with their transit
// timers, scanner mined sets and cargo contents.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed       int64 `json:"seed"`
	TickRateHz int   `json:"tick_rate_hz"`
	// SessionTime is the authoritative clock all tracker timestamps are relative to.
	SessionTime time.Duration `json:"session_time_ns"`

	Fields   []FieldV1   `json:"fields"`
	Claims   []ClaimV1   `json:"claims"`
	Stations []StationV1 `json:"stations"`
	Scanners []ScannerV1 `json:"scanners"`
	Cargo    []CargoV1   `json:"cargo"`

	Stats StatsV1 `json:"stats"`
}

type FieldV1 struct {
	ID         string    `json:"id"`
	Generation uint64    `json:"generation"`
	Chunks     []ChunkV1 `json:"chunks"`
}

// ChunkV1 holds RLE+base64 encoded content and material layers.
type ChunkV1 struct {
	CX       int    `json:"cx"`
	CY       int    `json:"cy"`
	CZ       int    `json:"cz"`
	Content  string `json:"content"`
	Material string `json:"material"`
}

type CellV1 struct {
	Field string `json:"field"`
	Pos   [3]int `json:"pos"`
}

type ClaimV1 struct {
	Cell    CellV1 `json:"cell"`
	Station string `json:"station"`
}

type TargetV1 struct {
	Cell       CellV1        `json:"cell"`
	World      [3]float64    `json:"world"`
	Material   uint8         `json:"material"`
	ItemID     string        `json:"item_id"`
	YieldRatio float64       `json:"yield_ratio"`
	ItemVolume float64       `json:"item_volume"`
	Scanner    string        `json:"scanner"`
	ClaimedAt  time.Duration `json:"claimed_at_ns"`

	// Tracker state; Tracked is false when the target was claimed but never observed.
	Tracked     bool          `json:"tracked"`
	State       string        `json:"state,omitempty"`
	Start       time.Duration `json:"start_ns,omitempty"`
	Carry       time.Duration `json:"carry_ns,omitempty"`
	LastAttempt time.Duration `json:"last_attempt_ns,omitempty"`
}

type StationV1 struct {
	ID               string     `json:"id"`
	Enabled          bool       `json:"enabled"`
	UserTargetCap    int        `json:"user_target_cap"`
	LastReason       string     `json:"last_reason,omitempty"`
	PotentialTargets int        `json:"potential_targets"`
	Active           []TargetV1 `json:"active"`
}

type ScannerV1 struct {
	ID    string   `json:"id"`
	Mined []CellV1 `json:"mined"`
}

type StackV1 struct {
	Item  string  `json:"item"`
	Count float64 `json:"count"`
}

type CargoV1 struct {
	ID      string    `json:"id"`
	Removed bool      `json:"removed,omitempty"`
	Items   []StackV1 `json:"items"`
}

type StatsV1 struct {
	Claims    uint64             `json:"claims"`
	Completed uint64             `json:"completed"`
	Cancelled uint64             `json:"cancelled"`
	Outcomes  map[string]uint64  `json:"outcomes,omitempty"`
	Mined     map[string]float64 `json:"mined,omitempty"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body carries the header again.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line, for listings that must not pay for the body.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	if h.Version == 0 {
		return h, errors.New("missing snapshot version")
	}
	return h, nil
}

// Path returns <dir>/<tick>.snap.zst, zero padded so lexical order is tick order.
func Path(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%012d.snap.zst", tick))
}
