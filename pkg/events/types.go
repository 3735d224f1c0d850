package events

import stdjson "encoding/json"

// Event name constants
const (
	FollowerCount = "follower.count"
	PhaseChange   = "provision.phase"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string             // SSE event name
	Data stdjson.RawMessage // Raw JSON payload
}

// FollowerCountEvent is the payload of follower.count, sent after every
// successful fetch.
type FollowerCountEvent struct {
	Account string `json:"account"`
	Count   int    `json:"count"`
	Ts      int64  `json:"ts"`
}

// PhaseChangeEvent is the payload of provision.phase.
type PhaseChangeEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
	Ts   int64  `json:"ts"`
}

// DecodeAs decodes the event payload into T. Empty data yields the zero
// value of T.
//
//	payload, err := events.DecodeAs[events.FollowerCountEvent](ev)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
