package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nelsonmaranda/tubonge-chat-app/internal/log"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Auth      AuthConfig
	Cassandra CassandraConfig
	Redis     RedisConfig
	History   HistoryConfig
	Log       log.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type AuthConfig struct {
	Secret string
	Issuer string
}

type CassandraConfig struct {
	Hosts          []string
	Keyspace       string
	Consistency    string
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	Timeout        time.Duration
	Username       string
	Password       string
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type HistoryConfig struct {
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	DefaultLimit int           `mapstructure:"default_limit"`
	MaxLimit     int           `mapstructure:"max_limit"`
}

// Load reads configuration from ./config/config.yaml and environment
// variables, with defaults for every key.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, rely on defaults and env vars.
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "tubonge")
	v.SetDefault("cassandra.hosts", []string{"localhost:9042"})
	v.SetDefault("cassandra.keyspace", "tubonge")
	v.SetDefault("cassandra.consistency", "LOCAL_QUORUM")
	v.SetDefault("cassandra.connect_timeout", "10s")
	v.SetDefault("cassandra.timeout", "5s")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("history.cache_ttl", "5s")
	v.SetDefault("history.default_limit", 50)
	v.SetDefault("history.max_limit", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("auth.secret", "AUTH_SECRET")
	v.BindEnv("cassandra.hosts", "CASSANDRA_HOSTS")
	v.BindEnv("cassandra.keyspace", "CASSANDRA_KEYSPACE")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Cassandra.ConnectTimeout = parseDuration(v, "cassandra.connect_timeout", 10*time.Second)
	cfg.Cassandra.Timeout = parseDuration(v, "cassandra.timeout", 5*time.Second)
	cfg.History.CacheTTL = parseDuration(v, "history.cache_ttl", 5*time.Second)

	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("auth.secret is required (set AUTH_SECRET)")
	}

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
