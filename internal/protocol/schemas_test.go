package protocol_test

import (
	"testing"

	"nanitecraft.ai/internal/protocol"
)

func TestDecodeSubscribe(t *testing.T) {
	msg, err := protocol.DecodeSubscribe([]byte(`{
	  "type":"SUBSCRIBE",
	  "protocol_version":"1.0",
	  "stations":["S1","S2"],
	  "include_effects":true
	}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msg.Stations) != 2 || !msg.IncludeEffects {
		t.Fatalf("unexpected msg: %+v", msg)
	}

	bad := []string{
		`{"type":"HELLO","protocol_version":"1.0"}`,
		`{"type":"SUBSCRIBE","protocol_version":"2.0"}`,
		`{"type":"SUBSCRIBE","protocol_version":"1.0","stations":["S1","S1"]}`,
		`{"type":"SUBSCRIBE","protocol_version":"1.0","radius":4}`,
		`not json`,
	}
	for _, raw := range bad {
		if _, err := protocol.DecodeSubscribe([]byte(raw)); err == nil {
			t.Fatalf("expected rejection: %s", raw)
		}
	}
}

func TestDecodeAdminCommand(t *testing.T) {
	req, err := protocol.DecodeAdminCommand([]byte(`{"command":"SET_TARGET_CAP","station":"S1","cap":2}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.Cap == nil || *req.Cap != 2 || req.Station != "S1" {
		t.Fatalf("unexpected req: %+v", req)
	}
	if _, err := protocol.DecodeAdminCommand([]byte(`{"command":"RESET_FIELD","field":"F"}`)); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if req, err := protocol.DecodeAdminCommand([]byte(`{"command":"REMOVE_FIELD","field":"F"}`)); err != nil || req.Field != "F" {
		t.Fatalf("remove field: %+v %v", req, err)
	}

	bad := []string{
		`{"command":"SET_ENABLED","station":"S1"}`,
		`{"command":"SET_TARGET_CAP","station":"S1","cap":-1}`,
		`{"command":"REMOVE_CARGO"}`,
		`{"command":"REMOVE_FIELD"}`,
		`{"command":"LAUNCH","station":"S1"}`,
	}
	for _, raw := range bad {
		if _, err := protocol.DecodeAdminCommand([]byte(raw)); err == nil {
			t.Fatalf("expected rejection: %s", raw)
		}
	}
}
