// Package bootstrap turns a loaded configuration into the running
// collaborators shared by the binaries: database, Redis, the engine and
// the AWS clients.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/outreach"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/policy"
	"github.com/ignite/outreach-engine/internal/repository/memory"
	"github.com/ignite/outreach-engine/internal/repository/postgres"
	"github.com/ignite/outreach-engine/internal/service/sending"
	"github.com/ignite/outreach-engine/internal/templates"
	"github.com/ignite/outreach-engine/internal/worker"
)

// Runtime holds everything a binary needs after boot.
type Runtime struct {
	Config    *config.Config
	DB        *sql.DB       // nil when running on the in-memory store
	Redis     *redis.Client // nil when locks are in-process
	Engine    *outreach.Engine
	Templates *templates.Catalog
}

// ConfigureLogging applies the logging section to the package logger.
func ConfigureLogging(cfg config.LoggingConfig) error {
	lvl, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)
	logger.SetRedactPII(cfg.RedactPII)
	return nil
}

// Open connects storage and Redis and builds the engine.
func Open(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	if err := ConfigureLogging(cfg.Logging); err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg}

	var err error
	if rt.DB, err = OpenDB(ctx, cfg.Database); err != nil {
		return nil, err
	}
	if rt.Redis, err = OpenRedis(ctx, cfg.Redis); err != nil {
		rt.Close()
		return nil, err
	}

	pol, err := policy.New(cfg.Policy)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("policy: %w", err)
	}
	if rt.Templates, err = templates.LoadFile(cfg.Templates.Path); err != nil {
		rt.Close()
		return nil, fmt.Errorf("templates: %w", err)
	}
	adapter, err := NewAdapter(ctx, cfg.SES)
	if err != nil {
		rt.Close()
		return nil, err
	}

	var repos outreach.Repositories
	if rt.DB != nil {
		repos = PostgresRepositories(rt.DB)
	} else {
		logger.Warn("no database configured: using the in-memory store", "component", "bootstrap")
		repos = outreach.MemoryRepositories(memory.NewStore())
	}

	var locker distlock.Locker
	if rt.Redis != nil {
		locker = distlock.NewRedisLocker(rt.Redis, cfg.Redis.LockTTL())
	}

	rt.Engine = outreach.New(outreach.Deps{
		Repos:     repos,
		Templates: rt.Templates,
		Adapter:   adapter,
		Locker:    locker,
		Policy:    pol,
	}, outreach.OptionsFromConfig(cfg))
	return rt, nil
}

// Close releases the connections.
func (rt *Runtime) Close() {
	if rt.Redis != nil {
		rt.Redis.Close()
	}
	if rt.DB != nil {
		rt.DB.Close()
	}
}

// Lock returns a singleton lock for a background job: Redis when
// configured, a Postgres advisory lock otherwise, nil on the memory store.
func (rt *Runtime) Lock(key string, ttl time.Duration) distlock.DistLock {
	if rt.Redis == nil && rt.DB == nil {
		return nil
	}
	return distlock.NewLock(rt.Redis, rt.DB, key, ttl)
}

// PostgresRepositories returns the Postgres implementation of every repository.
func PostgresRepositories(db *sql.DB) outreach.Repositories {
	return outreach.Repositories{
		Contacts:  postgres.NewContactRepo(db),
		Bundles:   postgres.NewBundleRepo(db),
		Tracking:  postgres.NewTrackingRepo(db),
		FollowUps: postgres.NewFollowUpRepo(db),
		Signals:   postgres.NewSignalRepo(db),
		Stats:     postgres.NewStatsRepo(db),
	}
}

// OpenDB opens and pings PostgreSQL. An empty URL returns nil, nil.
func OpenDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	dsn := cfg.URL
	if !strings.Contains(dsn, "connect_timeout") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "connect_timeout=5"
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// OpenRedis connects to Redis. An empty URL returns nil, nil.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewAdapter selects the SES adapter when enabled and the dry-run
// adapter otherwise.
func NewAdapter(ctx context.Context, cfg config.SESConfig) (sending.Adapter, error) {
	if !cfg.Enabled {
		logger.Warn("SES disabled: sends are simulated", "component", "bootstrap")
		return worker.NewDryRunAdapter(), nil
	}
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("ses: from_email is required")
	}
	client, err := worker.NewSESClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ses client: %w", err)
	}
	return worker.NewSESAdapter(client, cfg), nil
}

// AWSConfig loads the default AWS configuration for a region.
func AWSConfig(ctx context.Context, region string) (aws.Config, error) {
	if region == "" {
		region = "us-east-1"
	}
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
}
