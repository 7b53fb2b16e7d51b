package db

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Options control how Connect reaches MongoDB.
type Options struct {
	URI     string
	TLS     bool
	Timeout time.Duration
}

// Connect dials MongoDB and pings it before returning.
func Connect(ctx context.Context, opts Options) (*mongo.Client, error) {
	if opts.URI == "" {
		return nil, fmt.Errorf("db: MONGODB_URI not set")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	clientOptions := options.Client().
		ApplyURI(opts.URI).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetTimeout(opts.Timeout).
		SetConnectTimeout(opts.Timeout)
	if opts.TLS {
		// Atlas clusters use the system root CAs.
		clientOptions.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	connectCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("db: mongodb connection failed: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 15*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("db: mongodb ping failed: %w", err)
	}

	slog.Info("connected to mongodb")
	return client, nil
}
