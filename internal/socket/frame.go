package socket

import (
	"fmt"
)

// Reserved client events handled by the transport itself.
const (
	EventSubscribe   = "#subscribe"
	EventUnsubscribe = "#unsubscribe"
)

// inbound is a client → server frame. CID is set when the client expects a
// response.
type inbound struct {
	Event string `json:"event" cbor:"event"`
	Data  any    `json:"data,omitempty" cbor:"data,omitempty"`
	CID   *int64 `json:"cid,omitempty" cbor:"cid,omitempty"`
}

// eventFrame is a server → client event.
type eventFrame struct {
	Event string `json:"event" cbor:"event"`
	Data  any    `json:"data" cbor:"data"`
}

// responseFrame answers an inbound frame that carried a cid.
type responseFrame struct {
	RID   int64  `json:"rid" cbor:"rid"`
	Error string `json:"error,omitempty" cbor:"error,omitempty"`
	Data  any    `json:"data" cbor:"data"`
}

// channelArg accepts either {"channel": name} or a bare name.
func channelArg(data any) (string, error) {
	switch v := data.(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case map[string]any:
		if name, ok := v["channel"].(string); ok && name != "" {
			return name, nil
		}
	}
	return "", fmt.Errorf("channel name required")
}

// idArg accepts either a bare record ID or {"id": id}.
func idArg(data any) string {
	switch v := data.(type) {
	case string:
		return v
	case map[string]any:
		id, _ := v["id"].(string)
		return id
	}
	return ""
}

// credentialsArg reads the login credential. Anything that is not a string
// is treated as empty, which selects the agent role.
func credentialsArg(data any) string {
	s, _ := data.(string)
	return s
}
