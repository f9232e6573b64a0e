package schema

// Peer is the server side of one persistent client connection, as the hub
// sees it. The socket package implements it on top of a WebSocket.
type Peer interface {
	// ID returns the unique connection identifier.
	ID() string
	// Emit queues an event for delivery to the client. It never blocks on the
	// network; an error means the connection is closed or its queue is full.
	Emit(event string, data any) error
	// Close terminates the connection.
	Close() error
}
