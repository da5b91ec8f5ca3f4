package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// EncodeLayer run-length encodes one byte layer of a chunk (content levels or
// material ids) into base64(varint pairs). Each pair is (value, run_len).
func EncodeLayer(cells []byte) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	for i := 0; i < len(cells); {
		v := cells[i]
		run := 1
		for j := i + 1; j < len(cells) && cells[j] == v; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(v))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeLayer reverses EncodeLayer. want is the expected cell count; a mismatch
// is an error so a truncated snapshot never loads as a partial chunk.
func DecodeLayer(b64 string, want int) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, want)
	for i := 0; i < len(raw); {
		v, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if v > 0xFF {
			return nil, fmt.Errorf("cell value too large: %d", v)
		}
		if run == 0 || uint64(len(out))+run > uint64(want) {
			return nil, fmt.Errorf("run of %d overflows layer of %d", run, want)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, byte(v))
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("layer has %d cells, want %d", len(out), want)
	}
	return out, nil
}
