package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const subscribeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "protocol_version"],
  "properties": {
    "type": {"const": "SUBSCRIBE"},
    "protocol_version": {"type": "string", "pattern": "^1\\."},
    "stations": {"type": "array", "items": {"type": "string", "minLength": 1}, "uniqueItems": true},
    "include_effects": {"type": "boolean"}
  },
  "additionalProperties": false
}`

const adminCommandSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["command"],
  "properties": {
    "command": {"enum": ["SET_ENABLED", "SET_TARGET_CAP", "RESET_FIELD", "REMOVE_FIELD", "REMOVE_CARGO"]},
    "station": {"type": "string", "minLength": 1},
    "enabled": {"type": "boolean"},
    "cap": {"type": "integer", "minimum": 0},
    "field": {"type": "string", "minLength": 1},
    "cargo": {"type": "string", "minLength": 1}
  },
  "allOf": [
    {"if": {"properties": {"command": {"const": "SET_ENABLED"}}}, "then": {"required": ["station", "enabled"]}},
    {"if": {"properties": {"command": {"const": "SET_TARGET_CAP"}}}, "then": {"required": ["station", "cap"]}},
    {"if": {"properties": {"command": {"const": "RESET_FIELD"}}}, "then": {"required": ["field"]}},
    {"if": {"properties": {"command": {"const": "REMOVE_FIELD"}}}, "then": {"required": ["field"]}},
    {"if": {"properties": {"command": {"const": "REMOVE_CARGO"}}}, "then": {"required": ["cargo"]}}
  ],
  "additionalProperties": false
}`

// Admin command names accepted by POST /admin/v1/commands.
const (
	CmdSetEnabled   = "SET_ENABLED"
	CmdSetTargetCap = "SET_TARGET_CAP"
	CmdResetField   = "RESET_FIELD"
	CmdRemoveField  = "REMOVE_FIELD"
	CmdRemoveCargo  = "REMOVE_CARGO"
)

// AdminCommandRequest is the body of POST /admin/v1/commands. Cap 0 clears a user cap.
type AdminCommandRequest struct {
	Command string `json:"command"`
	Station string `json:"station,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
	Cap     *int   `json:"cap,omitempty"`
	Field   string `json:"field,omitempty"`
	Cargo   string `json:"cargo,omitempty"`
}

var compiled = sync.OnceValues(func() (map[string]*jsonschema.Schema, error) {
	out := map[string]*jsonschema.Schema{}
	for name, src := range map[string]string{
		"subscribe":     subscribeSchema,
		"admin_command": adminCommandSchema,
	} {
		s, err := jsonschema.CompileString(name+".schema.json", src)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
})

func validate(name string, raw []byte) error {
	schemas, err := compiled()
	if err != nil {
		return err
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return schemas[name].Validate(doc)
}

// DecodeSubscribe validates and decodes a SUBSCRIBE message.
func DecodeSubscribe(raw []byte) (SubscribeMsg, error) {
	var msg SubscribeMsg
	if err := validate("subscribe", raw); err != nil {
		return msg, err
	}
	err := json.Unmarshal(raw, &msg)
	return msg, err
}

// DecodeAdminCommand validates and decodes an admin command body.
func DecodeAdminCommand(raw []byte) (AdminCommandRequest, error) {
	var req AdminCommandRequest
	if err := validate("admin_command", raw); err != nil {
		return req, err
	}
	err := json.Unmarshal(raw, &req)
	return req, err
}
