package db

import (
	"context"
	"time"

	"github.com/adfyer/apiserver/config"
	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const defaultMongoConnectTimeout = 10 * time.Second

// OpenMongo connects to cfg.Mongo.URI and returns the client together with
// the accounts collection. The caller disconnects the client.
func OpenMongo(ctx context.Context, cfg config.Config) (*mongo.Client, *mongo.Collection, error) {
	opts := options.Client().
		ApplyURI(cfg.Mongo.URI).
		SetConnectTimeout(defaultMongoConnectTimeout).
		SetMaxPoolSize(defaultMaxOpenConns)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, nil, oops.Code("MONGO_CONNECT_FAILED").Wrap(err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, oops.Code("MONGO_PING_FAILED").With("database", cfg.Mongo.Database).Wrap(err)
	}

	coll := client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection)
	return client, coll, nil
}
