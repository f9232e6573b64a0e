package bus

import "strings"

// Shared exchange channels. Any new channel class must also get a row in the
// hub's emit routing table.
const (
	ChannelLog     = "log"
	ChannelRespond = "respond"
	ChannelReport  = "report"
)

// ReservedPrefix marks client-defined broadcast channels ("sc-ping", ...).
const ReservedPrefix = "sc-"

// IsReserved reports whether name belongs to the sc- family.
func IsReserved(name string) bool {
	return strings.HasPrefix(name, ReservedPrefix)
}
