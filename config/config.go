// Package config loads portal settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"

	LockLocal = "local"
	LockRedis = "redis"

	AuthStatic = "static"
	AuthMongo  = "mongo"
)

// Config is the resolved portal configuration.
type Config struct {
	Port           string
	Store          string
	MongoURI       string
	MongoDatabase  string
	MongoTLS       bool
	MongoTx        bool
	LockBackend    string
	LockTTL        time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	AuthSource     string
	AuthTokens     string
	MinDoctors     int
	RequestTimeout time.Duration
	LogLevel       slog.Level
	GinMode        string
}

// Load reads envFiles, or an optional .env when none are given, and then the
// environment. A named file that cannot be read is an error.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return Config{}, fmt.Errorf("config: load env file: %w", err)
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("PORT", "5000")
	v.SetDefault("STORE", StoreMemory)
	v.SetDefault("MONGODB_DATABASE", "hospital_portal")
	v.SetDefault("MONGODB_TLS", false)
	v.SetDefault("MONGODB_TRANSACTIONS", false)
	v.SetDefault("LOCK_BACKEND", LockLocal)
	v.SetDefault("LOCK_TTL", "30s")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("AUTH_SOURCE", AuthStatic)
	v.SetDefault("QUEUE_MIN_DOCTORS", 4)
	v.SetDefault("REQUEST_TIMEOUT", "10s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("GIN_MODE", "release")
	v.AutomaticEnv()
	return v
}

// FromViper builds a Config from v and validates it.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:           v.GetString("PORT"),
		Store:          strings.ToLower(v.GetString("STORE")),
		MongoURI:       v.GetString("MONGODB_URI"),
		MongoDatabase:  v.GetString("MONGODB_DATABASE"),
		MongoTLS:       v.GetBool("MONGODB_TLS"),
		MongoTx:        v.GetBool("MONGODB_TRANSACTIONS"),
		LockBackend:    strings.ToLower(v.GetString("LOCK_BACKEND")),
		LockTTL:        v.GetDuration("LOCK_TTL"),
		RedisAddr:      v.GetString("REDIS_ADDR"),
		RedisPassword:  v.GetString("REDIS_PASSWORD"),
		RedisDB:        v.GetInt("REDIS_DB"),
		AuthSource:     strings.ToLower(v.GetString("AUTH_SOURCE")),
		AuthTokens:     v.GetString("AUTH_TOKENS"),
		MinDoctors:     v.GetInt("QUEUE_MIN_DOCTORS"),
		RequestTimeout: v.GetDuration("REQUEST_TIMEOUT"),
		GinMode:        v.GetString("GIN_MODE"),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("LOG_LEVEL"))); err != nil {
		return Config{}, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}

	switch cfg.Store {
	case StoreMemory:
	case StoreMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("config: STORE=mongo requires MONGODB_URI")
		}
	default:
		return Config{}, fmt.Errorf("config: unknown STORE %q", cfg.Store)
	}

	switch cfg.LockBackend {
	case LockLocal, LockRedis:
	default:
		return Config{}, fmt.Errorf("config: unknown LOCK_BACKEND %q", cfg.LockBackend)
	}

	switch cfg.AuthSource {
	case AuthStatic:
	case AuthMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("config: AUTH_SOURCE=mongo requires MONGODB_URI")
		}
	default:
		return Config{}, fmt.Errorf("config: unknown AUTH_SOURCE %q", cfg.AuthSource)
	}

	if cfg.MinDoctors <= 0 {
		return Config{}, fmt.Errorf("config: QUEUE_MIN_DOCTORS must be positive, got %d", cfg.MinDoctors)
	}
	if cfg.RequestTimeout <= 0 {
		return Config{}, fmt.Errorf("config: REQUEST_TIMEOUT must be positive")
	}
	if cfg.LockBackend == LockRedis && cfg.LockTTL <= cfg.RequestTimeout {
		return Config{}, fmt.Errorf("config: LOCK_TTL (%s) must exceed REQUEST_TIMEOUT (%s)", cfg.LockTTL, cfg.RequestTimeout)
	}
	return cfg, nil
}

// NeedsMongo reports whether any component talks to MongoDB.
func (c Config) NeedsMongo() bool {
	return c.Store == StoreMongo || c.AuthSource == AuthMongo
}
