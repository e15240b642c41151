package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"log"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"authsession/internal/config"
	"authsession/internal/db"
	devicedomain "authsession/internal/device/domain"
	"authsession/internal/gateway"
	"authsession/internal/security"
	"authsession/internal/session"
	"authsession/internal/telemetry"
	telemetryotel "authsession/internal/telemetry/otel"
	"authsession/internal/telemetry/producer"
	"authsession/internal/telemetry/repository"
	"authsession/internal/tokenstore"
)

const cliSource = "authctl"

// sessionClient is everything a command needs: the restored session manager and its sinks.
type sessionClient struct {
	cfg      *config.Config
	manager  *session.Manager
	events   *repository.PostgresRepository
	language string
	shutdown []func(context.Context) error
}

// getSessionClient wires config, the token store, the gateway and telemetry into a Manager
// and restores any stored session. Callers must call close.
func getSessionClient(c *cli.Context) (*sessionClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "error loading configuration")
	}
	if c.Bool(flagInsecure) {
		cfg.GatewayInsecureSkipVerify = true
	}
	client := &sessionClient{cfg: cfg, language: c.String(flagLanguage)}
	ready := false
	defer func() {
		if !ready {
			client.close(c.Context)
		}
	}()

	var database *sql.DB
	if cfg.DatabaseURL != "" {
		if database, err = db.Open(cfg.DatabaseURL); err != nil {
			return nil, errors.Wrap(err, "error connecting to database")
		}
		client.onShutdown(func(context.Context) error { return database.Close() })
	}

	store, err := client.openStore(database)
	if err != nil {
		return nil, err
	}

	providers, err := telemetryotel.NewProviders(c.Context, cfg.OTLPEndpoint, cfg.ServiceName, cfg.AppVersion, cfg.OTLPInsecure)
	if err != nil {
		return nil, errors.Wrap(err, "error setting up telemetry")
	}
	providers.SetGlobal()
	client.onShutdown(providers.Shutdown)
	metrics, err := telemetryotel.NewMetrics(providers.MeterProvider)
	if err != nil {
		return nil, errors.Wrap(err, "error creating session metrics")
	}

	emitters := telemetry.MultiEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.SessionEventsTopic); kp != nil {
		emitters = append(emitters, kp)
		client.onShutdown(func(context.Context) error { return kp.Close() })
	}
	if database != nil {
		client.events = repository.NewPostgresRepository(database)
		emitters = append(emitters, client.events)
	}

	manager, err := session.NewManager(session.Options{
		Store:          store,
		Gateway:        gateway.NewHTTPClient(cfg.GatewayURL, cfg.GatewayInsecureSkipVerify),
		SessionTimeout: cfg.SessionTimeout(),
		ExpiryLeeway:   cfg.ExpiryLeeway(),
		RefreshTimeout: cfg.RefreshTimeout(),
		Device: devicedomain.Info{
			Platform:   cfg.DevicePlatform,
			AppVersion: cfg.AppVersion,
		},
		Language: client.language,
		Emitter:  emitters,
		Metrics:  metrics,
		Source:   cliSource,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error creating session manager")
	}
	client.manager = manager

	// A corrupt or unreadable store leaves the session signed out; commands still run.
	if err := manager.RestoreSession(c.Context); err != nil {
		log.Printf("authctl: restore session: %v", err)
	}
	ready = true
	return client, nil
}

// openStore builds the encrypted token store on the configured backend.
func (s *sessionClient) openStore(database *sql.DB) (*tokenstore.SecureStore, error) {
	cfg := s.cfg
	var backend tokenstore.Backend
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		backend = tokenstore.NewMemoryBackend()
	case config.StoreBackendFile:
		path, err := cfg.ResolvedStorePath()
		if err != nil {
			return nil, errors.Wrap(err, "error resolving store path")
		}
		backend = tokenstore.NewFileBackend(path)
	case config.StoreBackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		s.onShutdown(func(context.Context) error { return rdb.Close() })
		backend = tokenstore.NewRedisBackend(rdb, cfg.StoreNamespace)
	case config.StoreBackendPostgres:
		if database == nil {
			return nil, errors.New("the postgres store backend requires DATABASE_URL")
		}
		backend = tokenstore.NewPostgresBackend(database, cfg.StoreNamespace)
	default:
		return nil, errors.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	key, err := masterKey(cfg)
	if err != nil {
		return nil, err
	}
	store, err := tokenstore.NewSecureStore(backend, key)
	if err != nil {
		return nil, errors.Wrap(err, "error creating token store")
	}
	return store, nil
}

// masterKey parses STORE_KEY. The memory backend may run without one; it then gets a throwaway key.
func masterKey(cfg *config.Config) ([]byte, error) {
	if cfg.StoreBackend == config.StoreBackendMemory && cfg.StoreKey == "" {
		key := make([]byte, security.MasterKeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, errors.Wrap(err, "error generating store key")
		}
		return key, nil
	}
	key, err := security.ParseMasterKey(cfg.StoreKey)
	if err != nil {
		return nil, errors.Wrap(err, "error reading STORE_KEY")
	}
	return key, nil
}

func (s *sessionClient) onShutdown(fn func(context.Context) error) {
	s.shutdown = append(s.shutdown, fn)
}

// close stops the manager, waits for in-flight session events, then releases sinks in reverse order.
func (s *sessionClient) close(ctx context.Context) {
	if s.manager != nil {
		s.manager.Close()
	}
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetry.ShutdownDrainDuration)
	defer cancel()
	if err := telemetry.Drain(drainCtx); err != nil {
		log.Printf("authctl: telemetry drain: %v", err)
	}
	for i := len(s.shutdown) - 1; i >= 0; i-- {
		if err := s.shutdown[i](drainCtx); err != nil {
			log.Printf("authctl: shutdown: %v", err)
		}
	}
}

// describe renders a session error in the user's language when it is one.
func (s *sessionClient) describe(err error) error {
	kind := session.KindOf(err)
	if kind == "" {
		return err
	}
	lang := s.language
	if u := s.manager.Snapshot().User; u != nil && u.PreferredLanguage != "" {
		lang = u.PreferredLanguage
	}
	return errors.New(session.Message(kind, lang))
}
