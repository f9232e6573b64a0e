package hub

import (
	"github.com/switchboard/switchboard/internal/bus"
)

// Event is one message a connection emits.
type Event struct {
	Name string
	Data any
}

// Route is one row of the emit routing table.
type Route struct {
	Name   string
	Match  func(event string) bool
	Target func(connID string, ev Event) (channel string, payload any)
}

// Router republishes emitted events onto exchange channels. Rows are
// evaluated in order and the first match wins.
type Router struct {
	routes []Route
}

func NewRouter(routes ...Route) *Router {
	return &Router{routes: routes}
}

// DefaultRoutes is the routing table for the standard channel vocabulary.
func DefaultRoutes() []Route {
	return []Route{
		{
			Name: "broadcast",
			Match: func(event string) bool {
				return bus.IsReserved(event) || event == bus.ChannelRespond || event == bus.ChannelLog
			},
			Target: verbatim,
		},
		{
			Name:  "log-noid",
			Match: func(event string) bool { return event == EventLogNoID },
			Target: func(connID string, ev Event) (string, any) {
				return bus.ChannelLog, Tagged{ID: connID, Data: ev.Data}
			},
		},
		{
			Name:   "peer",
			Match:  func(event string) bool { _, ok := bus.ParsePeerChannel(event); return ok },
			Target: verbatim,
		},
	}
}

// Route returns the channel and payload to republish ev on. ok is false when
// no row matches; that is not an error.
func (r *Router) Route(connID string, ev Event) (channel string, payload any, ok bool) {
	for _, route := range r.routes {
		if route.Match(ev.Name) {
			channel, payload = route.Target(connID, ev)
			return channel, payload, true
		}
	}
	return "", nil, false
}

// names lists the table rows in evaluation order.
func (r *Router) names() []string {
	names := make([]string, len(r.routes))
	for i, route := range r.routes {
		names[i] = route.Name
	}
	return names
}

func verbatim(_ string, ev Event) (string, any) {
	return ev.Name, ev.Data
}
