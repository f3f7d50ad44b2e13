package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	App struct {
		ENV string
	}

	DB struct {
		Driver   string
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		LogLevel string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	GRPC struct {
		Host string
		Port string
	}

	HTTP struct {
		Host string
		Port string
	}

	Auth struct {
		JWTSecret string
	}

	Match struct {
		Expiry          time.Duration
		SweepInterval   time.Duration
		DefaultPageSize int
		MaxPageSize     int
	}

	// Live configures the server side of the live channel.
	Live struct {
		Path                  string
		WriteWait             time.Duration
		PongWait              time.Duration
		MaxMessageSize        int64
		SendBuffer            int
		PresenceTTL           time.Duration
		BroadcastChannel      string
		MaxConnectionsPerUser int
	}

	// LiveClient configures the client-resident connection manager.
	LiveClient struct {
		URL                  string
		MaxReconnectAttempts int
		InitialDelay         time.Duration
		MaxDelay             time.Duration
		ConnectTimeout       time.Duration
		CooldownAfterFailure time.Duration
	}
}

func New() *Config {
	// Optional .env, real environment wins.
	_ = godotenv.Load()

	cfg := &Config{}

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "swipecook")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	cfg.App.ENV = getEnvDefault("APP_ENV", "production")

	// Database
	cfg.DB.Driver = strings.ToLower(getEnvDefault("DB_DRIVER", "mysql"))
	cfg.DB.LogLevel = getEnvDefault("DB_LOG_LEVEL", "warn")
	cfg.DB.DSN = os.Getenv("DB_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	}
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "swipecook")

		switch cfg.DB.Driver {
		case "postgres":
			cfg.DB.Port = getEnvDefault("DB_PORT", "5432")
			cfg.DB.DSN = fmt.Sprintf(
				"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
				cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name,
			)
		case "sqlite":
			cfg.DB.DSN = getEnvDefault("DB_PATH", "swipecook.db") + "?_busy_timeout=5000&_txlock=immediate"
		default:
			cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
			cfg.DB.DSN = fmt.Sprintf(
				"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
				cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
			)
		}
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// gRPC
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	// HTTP (live channel, health, metrics)
	cfg.HTTP.Host = getEnvDefault("HTTP_HOST", "127.0.0.1")
	cfg.HTTP.Port = getEnvDefault("HTTP_PORT", "8080")

	cfg.Auth.JWTSecret = os.Getenv("AUTH_JWT_SECRET")

	// Matches
	cfg.Match.Expiry = getEnvDuration("MATCH_EXPIRY", 30*24*time.Hour)
	cfg.Match.SweepInterval = getEnvDuration("MATCH_SWEEP_INTERVAL", time.Hour)
	cfg.Match.DefaultPageSize = getEnvInt("MATCH_DEFAULT_PAGE_SIZE", 20)
	cfg.Match.MaxPageSize = getEnvInt("MATCH_MAX_PAGE_SIZE", 100)

	// Live channel (server)
	cfg.Live.Path = getEnvDefault("LIVE_PATH", "/ws")
	cfg.Live.WriteWait = getEnvDuration("LIVE_WRITE_WAIT", 10*time.Second)
	cfg.Live.PongWait = getEnvDuration("LIVE_PONG_WAIT", 60*time.Second)
	cfg.Live.MaxMessageSize = int64(getEnvInt("LIVE_MAX_MESSAGE_SIZE", 64*1024))
	cfg.Live.SendBuffer = getEnvInt("LIVE_SEND_BUFFER", 256)
	cfg.Live.PresenceTTL = getEnvDuration("LIVE_PRESENCE_TTL", 90*time.Second)
	cfg.Live.BroadcastChannel = getEnvDefault("LIVE_BROADCAST_CHANNEL", "live:broadcast")
	cfg.Live.MaxConnectionsPerUser = getEnvInt("LIVE_MAX_CONNECTIONS_PER_USER", 8)

	// Live channel (client)
	cfg.LiveClient.URL = getEnvDefault("LIVE_CLIENT_URL", "ws://127.0.0.1:8080/ws")
	cfg.LiveClient.MaxReconnectAttempts = getEnvInt("LIVE_CLIENT_MAX_RECONNECT_ATTEMPTS", 5)
	cfg.LiveClient.InitialDelay = getEnvDuration("LIVE_CLIENT_INITIAL_DELAY", time.Second)
	cfg.LiveClient.MaxDelay = getEnvDuration("LIVE_CLIENT_MAX_DELAY", 30*time.Second)
	cfg.LiveClient.ConnectTimeout = getEnvDuration("LIVE_CLIENT_CONNECT_TIMEOUT", 10*time.Second)
	cfg.LiveClient.CooldownAfterFailure = getEnvDuration("LIVE_CLIENT_COOLDOWN", 0)

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
