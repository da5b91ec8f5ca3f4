package session

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// stateDigest hashes the authoritative state that extraction changes: field contents,
// claims, active lists and cargo. Two sessions fed the same commands agree on it.
func (s *Session) stateDigest(tick uint64) string {
	h := sha256.New()
	writeU64(h, tick)
	for _, id := range s.fields.IDs() {
		f, _ := s.fields.Get(id)
		h.Write([]byte(id))
		d := f.Digest()
		h.Write(d[:])
	}
	for _, e := range s.registry.Entries() {
		h.Write([]byte(e.Key.String()))
		h.Write([]byte(e.StationID))
	}
	for _, st := range s.stations {
		h.Write([]byte(st.view.ID))
		writeU64(h, uint64(len(st.view.Active)))
		for _, t := range st.view.Active {
			h.Write([]byte(t.Key().String()))
		}
		for _, it := range st.cargo.InventoryList() {
			h.Write([]byte(it.Item))
			writeU64(h, uint64(it.Count*1e6))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeU64(h hash.Hash, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	h.Write(b[:])
}
