package config

import (
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Realtime RealtimeConfig
	Redis    RedisConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port              string
	BindAddress       string
	StaticDir         string // served under /static/
	ReadHeaderTimeout int
}

// RealtimeConfig holds WebSocket session settings.
type RealtimeConfig struct {
	HeartbeatInterval time.Duration
	ClientTimeout     time.Duration // no ping/pong for longer than this drops the session
	OutboxSize        int           // per-session outbound queue bound
}

// RedisConfig holds settings for the optional room event mirror.
// An empty Addr disables the mirror.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Addr returns the host:port the HTTP server binds to.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.BindAddress, c.Port)
}

// Enabled reports whether the Redis mirror is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnv("PORT", getEnv("VIMEET_PORT", "8080")),
			BindAddress:       getEnv("VIMEET_BIND_ADDRESS", "127.0.0.1"),
			StaticDir:         getEnv("VIMEET_STATIC_DIR", "static"),
			ReadHeaderTimeout: getEnvInt("READ_HEADER_TIMEOUT_SEC", 10),
		},
		Realtime: RealtimeConfig{
			HeartbeatInterval: getEnvMillis("VIMEET_HEARTBEAT_INTERVAL_MS", 5*time.Second),
			ClientTimeout:     getEnvMillis("VIMEET_CLIENT_TIMEOUT_MS", 10*time.Second),
			OutboxSize:        getEnvInt("VIMEET_OUTBOX_SIZE", 64),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback time.Duration) time.Duration {
	if n := getEnvInt(key, 0); n > 0 {
		return time.Duration(n) * time.Millisecond
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
