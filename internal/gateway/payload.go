package gateway

import (
	"encoding/json"

	"github.com/rickgao/pylon/internal/model"
)

// Gateway opcodes.
const (
	OpDispatch            = 0
	OpHeartbeat           = 1
	OpIdentify            = 2
	OpPresenceUpdate      = 3
	OpResume              = 6
	OpReconnect           = 7
	OpRequestGuildMembers = 8
	OpInvalidSession      = 9
	OpHello               = 10
	OpHeartbeatACK        = 11
)

// Payload is the framed gateway message: opcode, data, sequence, and
// event type (Dispatch only).
type Payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  int64           `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// helloData carries the server-chosen heartbeat interval in milliseconds.
type helloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

// identifyProperties describes the connecting client.
type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Presence is the initial presence sent at identify time.
type Presence struct {
	Status string `json:"status,omitempty"`
	AFK    bool   `json:"afk,omitempty"`
}

// identifyData is the identify payload: credential, shard assignment, and
// capability flags.
type identifyData struct {
	Token      string             `json:"token"`
	Properties identifyProperties `json:"properties"`
	Intents    model.Intents      `json:"intents"`
	Shard      [2]int             `json:"shard"`
	Presence   *Presence          `json:"presence,omitempty"`
}

// resumeData replays missed events from a stored session and sequence.
type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// invalidSessionResumable decodes the op 9 data field: true means the
// session may still be resumed.
func invalidSessionResumable(d json.RawMessage) bool {
	var resumable bool
	json.Unmarshal(d, &resumable)
	return resumable
}

func marshalPayload(op int, d any) (Payload, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Op: op, D: raw}, nil
}
