package protocol

type EventBatchItem struct {
	Cursor uint64      `json:"cursor"`
	Event  TargetEvent `json:"event"`
}

// Response for GET /admin/v1/events?since=<cursor>&limit=<n>.
type EventBatchMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	SessionID       string           `json:"session_id"`
	Events          []EventBatchItem `json:"events"`
	NextCursor      uint64           `json:"next_cursor"`
}
