package protocol

import "encoding/json"

// Version is the observer protocol version.
const Version = "1.0"

// Message types.
const (
	TypeSubscribe  = "SUBSCRIBE"
	TypeTick       = "TICK"
	TypeEventBatch = "EVENT_BATCH"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
