package hub

import (
	"context"
	"sync"
	"time"

	"github.com/switchboard/switchboard/internal/bus"
	"github.com/switchboard/switchboard/internal/schema"
)

// Role is the side a connection takes after login.
type Role int

const (
	RoleUnassigned Role = iota
	RoleMaster
	RoleAgent
)

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleAgent:
		return "agent"
	default:
		return "unassigned"
	}
}

// MasterCredentials is the login credential that selects the master role.
// Every other value selects the agent role.
const MasterCredentials = "master"

// channelsFor returns the watch/emit pair for a role.
func channelsFor(r Role) (watch, emit string) {
	if r == RoleMaster {
		return bus.ChannelRespond, bus.ChannelLog
	}
	return bus.ChannelLog, bus.ChannelRespond
}

// Connection is the registry's record of one live persistent client.
// Role fields are written only by Hub.Login.
type Connection struct {
	id   string
	peer schema.Peer

	// ctx is cancelled on disconnect; pending snapshot pushes derive from it.
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	role         Role
	watchChannel string
	emitChannel  string
	private      *bus.Subscription
	subs         map[string]*bus.Subscription
	lastSeen     time.Time
	closed       bool
}

func newConnection(peer schema.Peer, now time.Time) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		id:       peer.ID(),
		peer:     peer,
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[string]*bus.Subscription),
		lastSeen: now,
	}
}

func (c *Connection) ID() string { return c.id }

// PrivateChannel returns the connection's point-to-point channel name.
func (c *Connection) PrivateChannel() string { return bus.PeerChannel(c.id) }

// Info returns a copy of the connection's current state.
func (c *Connection) Info() ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := make([]string, 0, len(c.subs))
	for name, sub := range c.subs {
		if !sub.Stopped() {
			subs = append(subs, name)
		}
	}
	return ConnectionInfo{
		ID:            c.id,
		Role:          c.role,
		WatchChannel:  c.watchChannel,
		EmitChannel:   c.emitChannel,
		Subscriptions: subs,
		LastSeen:      c.lastSeen,
	}
}

// forget drops the subscription on channel if the exchange has stopped it.
func (c *Connection) forget(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub, ok := c.subs[channel]; ok && sub.Stopped() {
		delete(c.subs, channel)
	}
}

func (c *Connection) touch(now time.Time) {
	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()
}

// ConnectionInfo is a read-only snapshot of a Connection.
type ConnectionInfo struct {
	ID            string
	Role          Role
	WatchChannel  string
	EmitChannel   string
	Subscriptions []string
	LastSeen      time.Time
}

// Authenticated reports whether the connection has completed login.
func (i ConnectionInfo) Authenticated() bool { return i.Role != RoleUnassigned }
