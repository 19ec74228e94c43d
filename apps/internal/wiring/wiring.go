// Package wiring builds the services shared by the API server and the admin CLI from
// environment configuration.
package wiring

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	provisioning "github.com/zenGate-Global/hubmetrix/domains/provisioning/be/service"
	tenantsrepo "github.com/zenGate-Global/hubmetrix/domains/tenants/be/repo"
	tenants "github.com/zenGate-Global/hubmetrix/domains/tenants/be/service"
	webhooks "github.com/zenGate-Global/hubmetrix/domains/webhooks/be/service"
	"github.com/zenGate-Global/hubmetrix/platform/go/bigcommerce"
	"github.com/zenGate-Global/hubmetrix/platform/go/chargebee"
	"github.com/zenGate-Global/hubmetrix/platform/go/dynamo"
	"github.com/zenGate-Global/hubmetrix/platform/go/eventdedupe"
	"github.com/zenGate-Global/hubmetrix/platform/go/hubspot"
	"github.com/zenGate-Global/hubmetrix/platform/go/persistence"
	"github.com/zenGate-Global/hubmetrix/platform/go/session"
	"github.com/zenGate-Global/hubmetrix/platform/go/validation"
)

// Backends accepted by STORE_BACKEND and SESSION_BACKEND.
const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// StoreConfig selects and configures the tenant store.
type StoreConfig struct {
	StoreBackend       string `env:"STORE_BACKEND" envDefault:"dynamodb"` // dynamodb | postgres | memory
	DynamoTable        string `env:"DYNAMODB_TABLE" envDefault:"hubmetrix-tenants"`
	DynamoEndpoint     string `env:"DYNAMODB_ENDPOINT"`
	AWSRegion          string `env:"AWS_REGION" envDefault:"us-west-1"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	DatabaseURL        string `env:"DATABASE_URL"`                            // required when STORE_BACKEND=postgres
	DatabaseSchema     string `env:"DATABASE_SCHEMA" envDefault:"hubmetrix"` // search path holding the tenants table
}

// Config is parsed from the environment with caarlos0/env.
type Config struct {
	StoreConfig

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // json | console

	SessionBackend string        `env:"SESSION_BACKEND" envDefault:"redis"` // redis | memory
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SessionSecure  bool          `env:"SESSION_COOKIE_SECURE" envDefault:"true"`
	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	EventTTL       time.Duration `env:"BILLING_EVENT_TTL" envDefault:"72h"`

	HTTPClientTimeout time.Duration `env:"HTTP_CLIENT_TIMEOUT" envDefault:"30s"`

	BCClientID     string `env:"BC_CLIENT_ID"`
	BCClientSecret string `env:"BC_CLIENT_SECRET"`
	HSClientID     string `env:"HS_CLIENT_ID"`
	HSClientSecret string `env:"HS_CLIENT_SECRET"`
	HSRedirectURI  string `env:"HS_REDIRECT_URI"`

	ChargebeeSite   string `env:"CHARGEBEE_SITE"`
	ChargebeeAPIKey string `env:"CHARGEBEE_API_KEY"`
	ChargebeePlanID string `env:"CHARGEBEE_PLAN_ID" envDefault:"hubmetrix-base-plan"`

	AppURL      string `env:"APP_URL,required"`
	BackendURL  string `env:"APP_BACKEND_URL,required"`
	StagePrefix string `env:"STAGE_PREFIX"`
}

// Stage names the deployment stage derived from STAGE_PREFIX ("/dev" -> "dev").
func (c Config) Stage() string {
	return strings.Trim(c.StagePrefix, "/")
}

// App holds the wired services. Close releases their connections.
type App struct {
	Tenants      *tenants.Service
	Webhooks     *webhooks.Service
	Provisioning *provisioning.Service
	Sessions     *session.Manager

	closers []func()
}

// Close releases backend connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Build wires every service from cfg.
func Build(ctx context.Context, cfg Config, logger *zap.Logger) (*App, error) {
	app := &App{}

	repo, closeRepo, err := NewTenantRepository(ctx, cfg.StoreConfig)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closeRepo)
	app.Tenants = tenants.New(repo)

	sessionStore, dedupe, closeRedis, err := newRedisBacked(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.closers = append(app.closers, closeRedis)
	app.Sessions = session.NewManager(sessionStore, session.Options{TTL: cfg.SessionTTL, Secure: cfg.SessionSecure})

	platform := bigcommerce.New(bigcommerce.Config{
		ClientID:     cfg.BCClientID,
		ClientSecret: cfg.BCClientSecret,
		Timeout:      cfg.HTTPClientTimeout,
	}, logger.Named("bigcommerce"))
	crm := hubspot.New(hubspot.Config{
		ClientID:     cfg.HSClientID,
		ClientSecret: cfg.HSClientSecret,
		RedirectURI:  cfg.HSRedirectURI,
		Timeout:      cfg.HTTPClientTimeout,
	}, logger.Named("hubspot"))
	billing := chargebee.New(chargebee.Credentials{
		Site:   cfg.ChargebeeSite,
		APIKey: cfg.ChargebeeAPIKey,
	}, chargebee.Options{Timeout: cfg.HTTPClientTimeout}, logger.Named("chargebee"))
	if cfg.ChargebeeSite == "" || cfg.ChargebeeAPIKey == "" {
		logger.Warn("chargebee credentials missing; subscription calls will fail")
	}

	app.Webhooks = webhooks.New(platform, app.Tenants, webhooks.Config{
		BackendURL:  cfg.BackendURL,
		StagePrefix: cfg.StagePrefix,
	}, logger.Named("webhooks"))

	app.Provisioning = provisioning.New(provisioning.Dependencies{
		Tenants:   app.Tenants,
		Platform:  platform,
		CRM:       crm,
		Billing:   billing,
		Webhooks:  app.Webhooks,
		Dedupe:    dedupe,
		Validator: validation.NewSchemaValidator(),
	}, provisioning.Config{
		AppURL:   cfg.AppURL,
		PlanID:   cfg.ChargebeePlanID,
		EventTTL: cfg.EventTTL,
	}, logger.Named("provisioning"))

	return app, nil
}

// NewTenantRepository opens the tenant store selected by STORE_BACKEND.
func NewTenantRepository(ctx context.Context, cfg StoreConfig) (tenants.Repository, func(), error) {
	switch strings.ToLower(cfg.StoreBackend) {
	case BackendDynamoDB:
		client, err := dynamo.NewClient(ctx, dynamoConfig(cfg))
		if err != nil {
			return nil, nil, fmt.Errorf("init dynamodb client: %w", err)
		}
		return tenantsrepo.NewDynamoRepository(client, cfg.DynamoTable), func() {}, nil
	case BackendPostgres:
		pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL, SearchPath: cfg.DatabaseSchema})
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres pool: %w", err)
		}
		store, err := persistence.NewTenantStore(pool)
		if err != nil {
			persistence.ClosePool(pool)
			return nil, nil, fmt.Errorf("init tenant store: %w", err)
		}
		return tenantsrepo.NewPostgresRepository(store), func() { persistence.ClosePool(pool) }, nil
	case BackendMemory:
		return tenantsrepo.NewMemoryRepository(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("invalid STORE_BACKEND %q (use dynamodb, postgres or memory)", cfg.StoreBackend)
	}
}

// Bootstrap creates the tenant table of the selected backend. It is idempotent.
func Bootstrap(ctx context.Context, cfg StoreConfig) error {
	switch strings.ToLower(cfg.StoreBackend) {
	case BackendDynamoDB:
		client, err := dynamo.NewClient(ctx, dynamoConfig(cfg))
		if err != nil {
			return fmt.Errorf("init dynamodb client: %w", err)
		}
		return dynamo.EnsureTable(ctx, client, cfg.DynamoTable)
	case BackendPostgres:
		pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
		if err != nil {
			return fmt.Errorf("init postgres pool: %w", err)
		}
		defer persistence.ClosePool(pool)
		return persistence.BootstrapSchema(ctx, pool, cfg.DatabaseSchema)
	case BackendMemory:
		return nil
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q (use dynamodb, postgres or memory)", cfg.StoreBackend)
	}
}

func dynamoConfig(cfg StoreConfig) dynamo.Config {
	return dynamo.Config{
		Region:          cfg.AWSRegion,
		Endpoint:        cfg.DynamoEndpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	}
}

// newRedisBacked returns the session and billing event stores selected by SESSION_BACKEND.
func newRedisBacked(cfg Config) (session.Store, eventdedupe.Store, func(), error) {
	switch strings.ToLower(cfg.SessionBackend) {
	case BackendRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		closeFn := func() { _ = client.Close() }
		return session.NewRedisStore(client, ""), eventdedupe.NewRedisStore(client, ""), closeFn, nil
	case BackendMemory:
		return session.NewMemoryStore(), eventdedupe.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("invalid SESSION_BACKEND %q (use redis or memory)", cfg.SessionBackend)
	}
}
