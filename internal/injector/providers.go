package injector

import (
	"fmt"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zeusync/intellitrack/internal/config"
	"github.com/zeusync/intellitrack/internal/core/events/bus"
	"github.com/zeusync/intellitrack/internal/core/observability/log"
	"github.com/zeusync/intellitrack/internal/core/observability/metrics"
	"github.com/zeusync/intellitrack/internal/core/space"
	"github.com/zeusync/intellitrack/internal/core/storage"
	"github.com/zeusync/intellitrack/internal/core/storage/sqlite"
	"github.com/zeusync/intellitrack/internal/core/world"
	"github.com/zeusync/intellitrack/internal/server"
)

// App holds everything a command needs. Store and Feed are nil when
// disabled in the config.
type App struct {
	Config   *config.Config
	Log      log.Log
	Bus      bus.EventBus
	Registry *prometheus.Registry
	Space    *space.Space
	World    *world.World
	Store    storage.Store
	Feed     *server.Feed
}

var ProviderSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	ProvideBus,
	ProvideRegistry,
	ProvideCollector,
	ProvideSpace,
	ProvideWorld,
	ProvideStore,
	ProvideFeed,
	wire.Struct(new(App), "*"),
)

func ProvideLogger(cfg *config.Config) (*log.Logger, func(), error) {
	l, err := log.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return l, func() { _ = l.Sync() }, nil
}

func ProvideBus() bus.EventBus {
	return bus.New()
}

func ProvideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// ProvideCollector returns nil when metrics are off; a nil collector
// records nothing.
func ProvideCollector(cfg *config.Config, reg *prometheus.Registry) *metrics.Collector {
	if !cfg.Space.Metrics {
		return nil
	}
	return metrics.NewCollector(reg)
}

func ProvideSpace(l log.Log, b bus.EventBus, c *metrics.Collector) (*space.Space, func()) {
	s := space.New(space.WithLogger(l), space.WithEventBus(b), space.WithMetrics(c))
	return s, s.Close
}

func ProvideWorld(cfg *config.Config, s *space.Space, l log.Log) (*world.World, error) {
	strategy, err := space.ParseStrategy(cfg.Space.Strategy)
	if err != nil {
		return nil, err
	}
	return world.Build(s, cfg.World, world.WithStrategy(strategy), world.WithLogger(l))
}

func ProvideStore(cfg *config.Config, l log.Log) (storage.Store, func(), error) {
	var (
		st  storage.Store
		err error
	)
	switch cfg.Persistence.Driver {
	case "":
		return nil, func() {}, nil
	case "memory":
		st = storage.NewMemoryStore()
	case "sqlite":
		st, err = sqlite.Open(cfg.Persistence.Path, l)
	default:
		err = fmt.Errorf("unknown persistence driver %q", cfg.Persistence.Driver)
	}
	if err != nil {
		return nil, nil, err
	}
	return st, func() {
		if err := st.Close(); err != nil {
			l.Warn("close store", log.Error(err))
		}
	}, nil
}

func ProvideFeed(cfg *config.Config, b bus.EventBus, s *space.Space, l log.Log, reg *prometheus.Registry) (*server.Feed, func(), error) {
	if !cfg.Server.Enabled {
		return nil, func() {}, nil
	}
	f, err := server.NewFeed(b, s, l, cfg.Server, server.WithGatherer(reg))
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
