package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"plantops/portal/internal/config"
)

// NewMongoDatabase connects to cfg.URI and returns the configured database handle.
// Disconnect the returned client on shutdown.
func NewMongoDatabase(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, *mongo.Database, error) {
	opts := options.Client().ApplyURI(cfg.URI).SetAppName(config.ApplicationName)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	ping := func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }
	release := func() { _ = client.Disconnect(context.Background()) }
	if err := Verify(ctx, "mongo", cfg.ConnectTimeout, ping, release); err != nil {
		return nil, nil, err
	}
	return client, client.Database(cfg.Database), nil
}
