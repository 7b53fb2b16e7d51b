package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	mongod "go.mongodb.org/mongo-driver/mongo"

	"hospital-portal/auth"
	"hospital-portal/config"
	"hospital-portal/db"
	"hospital-portal/lock"
	"hospital-portal/models"
	"hospital-portal/queue"
	"hospital-portal/routes"
	"hospital-portal/store/memory"
	mongostore "hospital-portal/store/mongo"
)

func newServeCmd() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the portal HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			cfg, err := config.Load(files...)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment (default .env)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	gin.SetMode(cfg.GinMode)

	var (
		client   *mongod.Client
		database *mongod.Database
	)
	if cfg.NeedsMongo() {
		var err error
		client, err = db.Connect(ctx, db.Options{URI: cfg.MongoURI, TLS: cfg.MongoTLS})
		if err != nil {
			return err
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(dctx)
		}()
		database = client.Database(cfg.MongoDatabase)
	}

	store, err := newStore(ctx, cfg, client, database, logger)
	if err != nil {
		return err
	}
	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()
	resolver, err := newResolver(ctx, cfg, database)
	if err != nil {
		return err
	}

	hub := models.NewHub(logger)
	go hub.Run(ctx)

	svc := queue.NewService(store, locker,
		queue.WithNotifier(hub),
		queue.WithLogger(logger),
		queue.WithMinDoctors(cfg.MinDoctors),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes.NewRouter(svc, hub, resolver, cfg.RequestTimeout, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server running", slog.String("port", cfg.Port), slog.String("store", cfg.Store), slog.String("lock", cfg.LockBackend))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func newStore(ctx context.Context, cfg config.Config, client *mongod.Client, database *mongod.Database, logger *slog.Logger) (queue.Store, error) {
	if cfg.Store != config.StoreMongo {
		logger.Warn("using in-memory queue store, state is lost on restart")
		return memory.New(), nil
	}
	s := mongostore.New(client, database,
		mongostore.WithTransactions(cfg.MongoTx),
		mongostore.WithTimeout(cfg.RequestTimeout),
		mongostore.WithLogger(logger),
	)
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func newLocker(ctx context.Context, cfg config.Config, logger *slog.Logger) (queue.Locker, func(), error) {
	if cfg.LockBackend != config.LockRedis {
		return lock.NewLocal(), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping failed: %w", err)
	}
	l := lock.NewRedis(rdb, lock.WithTTL(cfg.LockTTL), lock.WithLogger(logger))
	return l, func() { _ = rdb.Close() }, nil
}

func newResolver(ctx context.Context, cfg config.Config, database *mongod.Database) (auth.Resolver, error) {
	if cfg.AuthSource == config.AuthMongo {
		r := auth.NewMongo(database)
		if err := r.Migrate(ctx); err != nil {
			return nil, err
		}
		return r, nil
	}
	tokens, err := auth.ParseTokens(cfg.AuthTokens)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		slog.Warn("AUTH_TOKENS is empty, every request will be rejected")
	}
	return auth.NewStatic(tokens), nil
}
