package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/sheridanzzz/CamTag-WebApp/internal/api"
	"github.com/sheridanzzz/CamTag-WebApp/internal/dbconfig"
	"github.com/sheridanzzz/CamTag-WebApp/internal/game"
	"github.com/sheridanzzz/CamTag-WebApp/internal/gateway"
	"github.com/sheridanzzz/CamTag-WebApp/internal/janitor"
	"github.com/sheridanzzz/CamTag-WebApp/internal/notify"
	"github.com/sheridanzzz/CamTag-WebApp/internal/outbox"
	"github.com/sheridanzzz/CamTag-WebApp/internal/scheduler"
)

// Services is everything main wires together. The postgres-only members are
// nil when the memory backend is selected.
type Services struct {
	App         *game.App
	Scheduler   *scheduler.Scheduler
	API         *api.Handler
	Connections *gateway.ConnectionManager
	WS          *gateway.Handler
	Janitor     *janitor.Janitor

	OutboxWorker   *outbox.Worker
	OutboxListener *outbox.Listener
	Publisher      *outbox.JetStreamPublisher
	Consumer       *notify.Consumer

	pool *pgxpool.Pool
	db   *sql.DB
}

// setupServices builds the dependency graph for the selected store backend.
//
// With the memory backend everything runs in-process: events go straight
// from the game core to the dispatcher. With postgres the core writes events
// to the outbox table, the listener and worker relay them to JetStream, and
// the durable consumer drives the dispatcher, so a crash between the state
// change and the fan-out loses nothing.
func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	clock := clockwork.NewRealClock()
	sched := scheduler.New(clock, cfg.Scheduler.Workers)
	connections := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	messenger := notify.LogMessenger{}

	s := &Services{Scheduler: sched, Connections: connections}

	var store game.Store
	var sink game.EventSink

	switch cfg.Store.Backend {
	case "postgres":
		dbCfg := dbconfig.NewConfigFromEnv()
		pool, db, err := openDatabases(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		s.pool = pool
		s.db = db
		store = game.NewPostgresStore(pool)

		repo := outbox.NewRepository(db)
		sink = repo

		jsCfg := outbox.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		publisher, err := outbox.NewJetStreamPublisher(jsCfg)
		if err != nil {
			s.closeDatabases()
			return nil, fmt.Errorf("create publisher: %w", err)
		}
		s.Publisher = publisher

		lCfg := outbox.DefaultListenerConfig()
		lCfg.DatabaseURL = dbCfg.DSN()
		listener, err := outbox.NewListener(repo, publisher, lCfg)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("create listener: %w", err)
		}
		s.OutboxListener = listener
		s.OutboxWorker = outbox.NewWorker(db, publisher, outbox.DefaultConfig())

	default:
		store = game.NewMemStore()
	}

	dispatcher := notify.NewDispatcher(store, connections, messenger, clock)
	if sink == nil {
		sink = dispatcher
	}

	s.App = game.NewApp(store, sink, sched, messenger, clock)
	s.API = api.NewHandler(s.App, cfg.Server.PublicURL)
	s.WS = gateway.NewHandler(connections, s.App)

	j, err := janitor.New(store, clock, janitorConfig(cfg))
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Janitor = j

	if cfg.Store.Backend == "postgres" {
		consumer, err := notify.NewConsumer(ctx, cfg.NATS.URL, dispatcher, notify.DefaultConsumerConfig())
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("create consumer: %w", err)
		}
		s.Consumer = consumer
	}

	return s, nil
}

func janitorConfig(cfg *Config) janitor.Config {
	jc := janitor.DefaultConfig()
	if cfg.Janitor.Interval > 0 {
		jc.Interval = cfg.Janitor.Interval
	}
	if cfg.Janitor.CompletedRetention > 0 {
		jc.CompletedRetention = cfg.Janitor.CompletedRetention
	}
	if cfg.Janitor.UnverifiedGrace > 0 {
		jc.UnverifiedGrace = cfg.Janitor.UnverifiedGrace
	}
	if cfg.Janitor.LobbyTTL > 0 {
		jc.LobbyTTL = cfg.Janitor.LobbyTTL
	}
	return jc
}

func (s *Services) closeDatabases() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// Close tears down in reverse dependency order.
func (s *Services) Close() {
	if s.Consumer != nil {
		s.Consumer.Close()
	}
	if s.OutboxListener != nil {
		if err := s.OutboxListener.Stop(); err != nil {
			log.Warn().Err(err).Msg("failed to stop outbox listener")
		}
	}
	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close publisher")
		}
	}
	s.closeDatabases()
}
