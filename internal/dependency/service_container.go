// Package dependency wires core switchboard services using go.uber.org/dig.
package dependency

import (
	"errors"
	"net/http"

	"go.uber.org/dig"

	"github.com/switchboard/switchboard/internal/bus"
	"github.com/switchboard/switchboard/internal/config"
	"github.com/switchboard/switchboard/internal/cron"
	"github.com/switchboard/switchboard/internal/heartbeat"
	"github.com/switchboard/switchboard/internal/hub"
	"github.com/switchboard/switchboard/internal/ingest"
	"github.com/switchboard/switchboard/internal/schema"
	"github.com/switchboard/switchboard/internal/socket"
	"github.com/switchboard/switchboard/internal/store"
)

// ServiceContainer holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type ServiceContainer struct {
	store    schema.Store
	exchange *bus.Exchange
	hub      *hub.Hub
	ingest   *ingest.Handler
	sockets  *socket.Server
	sweeper  *heartbeat.Service
	pruner   *cron.Service
	handler  http.Handler
}

func (c *ServiceContainer) Store() schema.Store         { return c.store }
func (c *ServiceContainer) Exchange() *bus.Exchange     { return c.exchange }
func (c *ServiceContainer) Hub() *hub.Hub               { return c.hub }
func (c *ServiceContainer) Ingest() *ingest.Handler     { return c.ingest }
func (c *ServiceContainer) Sockets() *socket.Server     { return c.sockets }
func (c *ServiceContainer) Sweeper() *heartbeat.Service { return c.sweeper }
func (c *ServiceContainer) Pruner() *cron.Service       { return c.pruner }
func (c *ServiceContainer) Handler() http.Handler       { return c.handler }

// New builds and wires all core services from cfg.
func New(cfg *config.Config) (*ServiceContainer, error) {
	d := dig.New()

	if err := d.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := d.Provide(newStore); err != nil {
		return nil, err
	}
	if err := d.Provide(newExchange); err != nil {
		return nil, err
	}
	if err := d.Provide(newHub); err != nil {
		return nil, err
	}
	if err := d.Provide(newIngestHandler); err != nil {
		return nil, err
	}
	if err := d.Provide(newSocketServer); err != nil {
		return nil, err
	}
	if err := d.Provide(newSweeper); err != nil {
		return nil, err
	}
	if err := d.Provide(newPruner); err != nil {
		return nil, err
	}
	if err := d.Provide(newMux); err != nil {
		return nil, err
	}

	var result *ServiceContainer
	err := d.Invoke(func(
		st schema.Store,
		ex *bus.Exchange,
		h *hub.Hub,
		in *ingest.Handler,
		ss *socket.Server,
		sweeper *heartbeat.Service,
		pruner *cron.Service,
		handler http.Handler,
	) {
		result = &ServiceContainer{
			store:    st,
			exchange: ex,
			hub:      h,
			ingest:   in,
			sockets:  ss,
			sweeper:  sweeper,
			pruner:   pruner,
			handler:  handler,
		}
	})
	return result, err
}

// NewStore opens only the configured record store. CLI commands that do
// not serve use it instead of the full container.
func NewStore(cfg *config.Config) (schema.Store, error) {
	return newStore(cfg)
}

// Close shuts services down in dependency order: sockets, hub, exchange,
// then the store.
func (c *ServiceContainer) Close() error {
	err := c.sockets.Close()
	c.hub.Close()
	c.exchange.Close()
	return errors.Join(err, c.store.Close())
}

func newStore(cfg *config.Config) (schema.Store, error) {
	return store.Open(cfg.Store.Driver, cfg.Store.ResolvedPath(), store.Options{
		BaseFields:     cfg.Store.BaseFields,
		RequiredFields: cfg.Store.RequiredFields,
	})
}

func newExchange(cfg *config.Config) *bus.Exchange {
	return bus.NewExchange(bus.WithBufferSize(cfg.Exchange.SubscriberBuffer))
}

func newHub(cfg *config.Config, ex *bus.Exchange, st schema.Store) *hub.Hub {
	return hub.New(ex, st, hub.WithSnapshotTimeout(cfg.Report.SnapshotTimeout()))
}

func newIngestHandler(cfg *config.Config, ex *bus.Exchange, st schema.Store) *ingest.Handler {
	return ingest.NewHandler(st, ex, ingest.Options{
		StoreTimeout:   cfg.Ingest.StoreTimeout(),
		MaxBodyBytes:   cfg.Ingest.MaxBodyBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
}

func newSocketServer(cfg *config.Config, h *hub.Hub) *socket.Server {
	return socket.NewServer(h, socket.Options{
		PingInterval:    cfg.Socket.PingInterval(),
		WriteTimeout:    cfg.Socket.WriteTimeout(),
		RequestTimeout:  cfg.Ingest.StoreTimeout(),
		MaxMessageBytes: cfg.Socket.MaxMessageBytes,
		SendBuffer:      cfg.Socket.SendBuffer,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	})
}

func newSweeper(cfg *config.Config, h *hub.Hub) *heartbeat.Service {
	return heartbeat.NewService(h, cfg.Socket.IdleTimeout(), cfg.Socket.SweepInterval())
}

func newPruner(cfg *config.Config, st schema.Store) (*cron.Service, error) {
	return cron.NewService(cfg.Store.PruneSchedule, cfg.Store.Retention(), st.Prune)
}

func newMux(cfg *config.Config, in *ingest.Handler, ss *socket.Server) http.Handler {
	mux := http.NewServeMux()
	in.Register(mux)
	ss.Register(mux, cfg.Server.SocketPath)
	if cfg.Server.LogRequests {
		return ingest.AccessLog(nil, mux)
	}
	return mux
}
