package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aamani-c/PalmIQ/internal/sink"
)

// Config holds the application configuration.
// Every setting has a default and can be overridden by a config file or by
// environment variables (server.port -> SERVER_PORT).
type Config struct {
	Debug     bool            `mapstructure:"debug"`
	Server    ServerConfig    `mapstructure:"server"`
	WS        WSConfig        `mapstructure:"ws"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
}

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WSConfig bounds device connections.
type WSConfig struct {
	MaxMessageBytes int64 `mapstructure:"max_message_bytes"`
	ReadBufferSize  int   `mapstructure:"read_buffer_size"`
	WriteBufferSize int   `mapstructure:"write_buffer_size"`
}

// LogConfig enables the rotated JSON log file when File is set.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// BroadcastConfig sizes the forwarding queue.
type BroadcastConfig struct {
	QueueSize      int           `mapstructure:"queue_size"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// RedisConfig enables the Redis sink when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
	Channel  string `mapstructure:"channel"`
}

// NATSConfig enables the NATS sink when URL is set.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// KafkaConfig enables the Kafka sink when Brokers is set (comma separated).
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// MQTTConfig enables the MQTT sink when Broker is set.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	QoS      int    `mapstructure:"qos"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("ws.max_message_bytes", 64*1024)
	v.SetDefault("ws.read_buffer_size", 1024)
	v.SetDefault("ws.write_buffer_size", 1024)

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("broadcast.queue_size", 100)
	v.SetDefault("broadcast.publish_timeout", "2s")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "palmiq:latest")
	v.SetDefault("redis.channel", "palmiq_readings")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "palmiq.readings")

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "palmiq.readings")

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", "palmiq/readings")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.qos", 0)
}

// loadConfig reads defaults, an optional config.yaml and the environment.
func loadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/palmiq")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server shutdown timeout must be positive")
	}
	if c.WS.MaxMessageBytes <= 0 {
		return errors.New("ws max message bytes must be positive")
	}
	if c.Broadcast.QueueSize <= 0 {
		return errors.New("broadcast queue size must be positive")
	}
	if c.Broadcast.PublishTimeout <= 0 {
		return errors.New("broadcast publish timeout must be positive")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos %d out of range", c.MQTT.QoS)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path %q must start with /", c.Metrics.Path)
	}
	return nil
}

// sinkConfig maps the broker settings onto the sink package.
func (c *Config) sinkConfig() sink.Config {
	return sink.Config{
		Redis: sink.RedisConfig{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Key:      c.Redis.Key,
			Channel:  c.Redis.Channel,
		},
		NATS: sink.NATSConfig{URL: c.NATS.URL, Subject: c.NATS.Subject},
		Kafka: sink.KafkaConfig{
			Brokers: splitList(c.Kafka.Brokers),
			Topic:   c.Kafka.Topic,
		},
		MQTT: sink.MQTTConfig{
			Broker:   c.MQTT.Broker,
			Topic:    c.MQTT.Topic,
			ClientID: c.MQTT.ClientID,
			QoS:      byte(c.MQTT.QoS),
		},
	}
}

// splitList splits a comma separated list and drops empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
