package bus

import (
	"strings"
)

// PeerPrefix is the channel-name prefix of per-connection private channels.
const PeerPrefix = "peer:"

// PeerChannel returns the private channel name for a connection.
func PeerChannel(connID string) string {
	return PeerPrefix + connID
}

// ParsePeerChannel extracts the connection ID from a private channel name.
// ok is false for shared channels and for a bare "peer:" with no ID.
func ParsePeerChannel(name string) (connID string, ok bool) {
	id, found := strings.CutPrefix(name, PeerPrefix)
	if !found || id == "" {
		return "", false
	}

	return id, true
}
