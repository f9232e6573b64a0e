package hub

// Client-invokable events handled by the hub after emit routing.
const (
	EventLogin     = "login"
	EventGetReport = "getReport"
	EventLogNoID   = "log-noid"
)

// EventPublish carries exchange deliveries for channels a client subscribed to.
const EventPublish = "#publish"

// Report message types.
const (
	ReportList = "list"
	ReportAdd  = "add"
)

// StatusDisconnected is the type of the message published when a logged-in
// connection goes away.
const StatusDisconnected = "DISCONNECTED"

// Tagged wraps a payload with the ID of the connection that sent it.
type Tagged struct {
	ID   string `json:"id"`
	Data any    `json:"data"`
}

// Disconnected announces a departed connection on its emit channel.
type Disconnected struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// ReportMessage is pushed on the report channel.
type ReportMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Publication is the body of an EventPublish frame.
type Publication struct {
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}
