package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/chatsell/agency_dash/backend/internal/config"
	"github.com/chatsell/agency_dash/backend/internal/store"
)

// Connect builds a MongoDB client using the provided configuration. The client
// connects lazily: an unreachable server at boot is logged, not returned, so the
// API can serve fallback payloads until the store comes back.
func Connect(ctx context.Context, cfg config.MongoConfig, logger *slog.Logger) (*mongo.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName("agency-dash-analytics").
		SetReadPreference(readpref.SecondaryPreferred())

	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.MinPoolSize > 0 {
		opts.SetMinPoolSize(cfg.MinPoolSize)
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.ServerSelectionTimeout > 0 {
		opts.SetServerSelectionTimeout(cfg.ServerSelectionTimeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		logger.Warn("mongo unreachable at startup", slog.String("error", err.Error()))
	}
	return client, nil
}

// IndexPlan lists the secondary indexes each analytics collection relies on.
func IndexPlan() map[string][]mongo.IndexModel {
	tenantCreated := func(name string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: store.FieldTenant, Value: 1}, {Key: store.FieldCreatedAt, Value: 1}},
			Options: options.Index().SetName(name),
		}
	}
	return map[string][]mongo.IndexModel{
		store.CollectionUsers: {
			tenantCreated("tenant_created_at"),
			{
				Keys:    bson.D{{Key: store.FieldTenant, Value: 1}, {Key: store.FieldCompanyName, Value: 1}},
				Options: options.Index().SetName("tenant_company_name"),
			},
		},
		store.CollectionBilling:       {tenantCreated("tenant_created_at")},
		store.CollectionConfigurators: {{
			Keys:    bson.D{{Key: store.FieldTenant, Value: 1}},
			Options: options.Index().SetName("tenant"),
		}},
	}
}

// EnsureIndexes creates the analytics indexes if enabled. It never drops or
// rewrites existing indexes.
func EnsureIndexes(ctx context.Context, db *mongo.Database, cfg config.MongoConfig) error {
	if !cfg.EnsureIndexes {
		return nil
	}
	for collection, models := range IndexPlan() {
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", collection, err)
		}
	}
	return nil
}
