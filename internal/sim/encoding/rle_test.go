package encoding

import "testing"

func TestLayer_RoundTrip(t *testing.T) {
	in := make([]byte, 0, 200)
	in = append(in, 255, 255, 255, 0, 0, 17)
	for i := 0; i < 50; i++ {
		in = append(in, 7)
	}
	in = append(in, 9, 10, 10, 10)

	enc := EncodeLayer(in)
	out, err := DecodeLayer(enc, len(in))
	if err != nil {
		t.Fatalf("DecodeLayer: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestLayer_RejectsWrongLength(t *testing.T) {
	enc := EncodeLayer([]byte{1, 1, 1, 2})
	if _, err := DecodeLayer(enc, 3); err == nil {
		t.Fatalf("expected overflow error")
	}
	if _, err := DecodeLayer(enc, 8); err == nil {
		t.Fatalf("expected short layer error")
	}
	if _, err := DecodeLayer("!!", 4); err == nil {
		t.Fatalf("expected base64 error")
	}
}
