// Package bootstrap opens the backends named in the configuration and hands back the
// stores the portal binaries are built on.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"plantops/portal/internal/audit"
	"plantops/portal/internal/cache"
	"plantops/portal/internal/config"
	"plantops/portal/internal/database"
	"plantops/portal/internal/handlers"
	"plantops/portal/internal/kv"
	"plantops/portal/internal/repository"
)

const (
	sessionPrefix    = "plantops:"
	credentialsScope = "credentials:"
)

type Stores struct {
	Redis       *redis.Client
	Postgres    *pgxpool.Pool
	Mongo       *mongo.Client
	KV          kv.Store
	Credentials repository.CredentialStore

	log zerolog.Logger
}

// Open connects every backend cfg selects. Close the result even when Open fails
// part way; it releases whatever was opened.
func Open(ctx context.Context, cfg *config.AppConfig, log zerolog.Logger) (*Stores, error) {
	s := &Stores{log: log}

	if cfg.Session.Backend == "redis" || cfg.Audit.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return s, err
		}
		s.Redis = client
	}

	if cfg.Session.Backend == "postgres" || cfg.Credentials.Backend == "postgres" {
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return s, fmt.Errorf("postgres: %w", err)
		}
		s.Postgres = pool
	}

	switch cfg.Session.Backend {
	case "redis":
		s.KV = kv.NewRedisStore(s.Redis, sessionPrefix)
	case "postgres":
		sessions := repository.NewSessionRepository(s.Postgres)
		if err := sessions.EnsureSchema(ctx); err != nil {
			return s, err
		}
		s.KV = sessions
	default:
		log.Warn().Msg("sessions kept in memory; they do not survive a restart")
		s.KV = kv.NewMemoryStore()
	}

	switch cfg.Credentials.Backend {
	case "postgres":
		users := repository.NewUserRepository(s.Postgres)
		if err := users.EnsureSchema(ctx); err != nil {
			return s, err
		}
		s.Credentials = users
	case "mongo":
		client, db, err := database.NewMongoDatabase(ctx, cfg.Mongo)
		if err != nil {
			return s, err
		}
		s.Mongo = client
		users := repository.NewMongoUserRepository(db)
		if err := users.EnsureIndexes(ctx); err != nil {
			return s, err
		}
		s.Credentials = users
	default:
		s.Credentials = repository.NewKVUserRepository(kv.Scope(s.KV, credentialsScope), log)
	}

	return s, nil
}

// Publisher returns the audit stream publisher, or a no-op one when auditing is off.
func (s *Stores) Publisher(cfg config.AuditConfig) audit.Publisher {
	if !cfg.Enabled || s.Redis == nil {
		return audit.Nop{}
	}
	return audit.NewStreamPublisher(s.Redis, cfg.Stream, cfg.MaxLen)
}

// Pingers lists a health check per opened backend.
func (s *Stores) Pingers() []handlers.Pinger {
	var pingers []handlers.Pinger
	if s.Redis != nil {
		pingers = append(pingers, handlers.Pinger{Name: "redis", Ping: func(ctx context.Context) error {
			return s.Redis.Ping(ctx).Err()
		}})
	}
	if s.Postgres != nil {
		pingers = append(pingers, handlers.Pinger{Name: "postgres", Ping: s.Postgres.Ping})
	}
	if s.Mongo != nil {
		pingers = append(pingers, handlers.Pinger{Name: "mongo", Ping: func(ctx context.Context) error {
			return s.Mongo.Ping(ctx, readpref.Primary())
		}})
	}
	return pingers
}

func (s *Stores) Close() {
	if s.Postgres != nil {
		s.Postgres.Close()
	}
	if s.Mongo != nil {
		if err := s.Mongo.Disconnect(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("mongo disconnect error")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.log.Error().Err(err).Msg("redis close error")
		}
	}
}
