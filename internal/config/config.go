// Package config loads the service configuration: embedded defaults,
// overridden by an optional YAML file, overridden by environment variables.
package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"

	apperrors "cardshield/fraud-api/internal/errors"
)

var DefaultConfig = []byte(`
application: "fraud-api"

logger:
  level: "info"

is_prod_mode: false

http:
  port: 8080

store:
  backend: "memory"
  capacity: 50
  key_prefix: "cardshield"

redis:
  addr: "localhost:6379"
  password: ""
  db: 0

mongo:
  uri: ""
  database: "cardshield"

kafka:
  brokers:
    - "localhost:9092"
  consume: false
  topic: "transactions"
  consumer_name: "fraud-scorer"
  records_per_poll: 500

scoring:
  seed: 0

webhooks:
  urls: []
  threshold: 0

metrics:
  namespace: "cardshield"

seed_file: ""
`)

type Config struct {
	Application string   `koanf:"application"`
	Logger      Logger   `koanf:"logger"`
	IsProdMode  bool     `koanf:"is_prod_mode"`
	HTTP        HTTP     `koanf:"http"`
	Store       Store    `koanf:"store"`
	Redis       Redis    `koanf:"redis"`
	Mongo       Mongo    `koanf:"mongo"`
	Kafka       Kafka    `koanf:"kafka"`
	Scoring     Scoring  `koanf:"scoring"`
	Webhooks    Webhooks `koanf:"webhooks"`
	Metrics     Metrics  `koanf:"metrics"`
	SeedFile    string   `koanf:"seed_file"`
}

type Logger struct {
	Level string `koanf:"level"`
}

type HTTP struct {
	Port int `koanf:"port"`
}

// Store selects where scored transactions are kept.
type Store struct {
	Backend   string `koanf:"backend"` // memory | redis
	Capacity  int    `koanf:"capacity"`
	KeyPrefix string `koanf:"key_prefix"`
}

type Redis struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// Mongo archiving is disabled when URI is empty.
type Mongo struct {
	URI      string `koanf:"uri"`
	Database string `koanf:"database"`
}

type Kafka struct {
	Brokers        []string `koanf:"brokers"`
	Consume        bool     `koanf:"consume"`
	Topic          string   `koanf:"topic"`
	ConsumerName   string   `koanf:"consumer_name"`
	RecordsPerPoll int      `koanf:"records_per_poll"`
}

// Scoring.Seed makes the pattern sample reproducible when non-zero.
type Scoring struct {
	Seed uint64 `koanf:"seed"`
}

type Webhooks struct {
	URLs      []string `koanf:"urls"`
	Threshold float64  `koanf:"threshold"`
}

type Metrics struct {
	Namespace string `koanf:"namespace"`
}

// envKeys maps the supported environment variables to config keys.
var envKeys = map[string]string{
	"PORT":           "http.port",
	"LOG_LEVEL":      "logger.level",
	"IS_PROD_MODE":   "is_prod_mode",
	"STORE_BACKEND":  "store.backend",
	"REDIS_ADDR":     "redis.addr",
	"REDIS_PASSWORD": "redis.password",
	"MONGO_URI":      "mongo.uri",
	"KAFKA_BROKERS":  "kafka.brokers",
	"WEBHOOK_URLS":   "webhooks.urls",
	"SEED_FILE":      "seed_file",
}

var listKeys = map[string]bool{
	"kafka.brokers": true,
	"webhooks.urls": true,
}

// Load layers the defaults, the file at path (skipped when empty or
// missing) and the environment. The returned koanf instance is kept for
// printing the effective configuration.
func Load(path string) (*Config, *koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(DefaultConfig), yaml.Parser()); err != nil {
		return nil, nil, apperrors.E(apperrors.Internal, "parse default config", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, nil, apperrors.E(apperrors.Invalid, "parse config file "+path, err)
			}
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, nil, apperrors.E(apperrors.Invalid, "load environment", err)
	}

	conf := &Config{}
	if err := k.Unmarshal("", conf); err != nil {
		return nil, nil, apperrors.E(apperrors.Invalid, "decode config", err)
	}
	return conf, k, nil
}

func envValue(name, value string) (string, interface{}) {
	key, ok := envKeys[name]
	if !ok || value == "" {
		return "", nil
	}
	if listKeys[key] {
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return key, items
	}
	return key, value
}

// Validate validates the configuration
func (c *Config) Validate() error {
	ve := apperrors.ValidationErrs()

	if c.Application == "" {
		ve.Add("application", "cannot be empty")
	}
	if c.Logger.Level == "" {
		ve.Add("logger.level", "cannot be empty")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		ve.Add("http.port", "must be between 1 and 65535")
	}

	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			ve.Add("redis.addr", "cannot be empty when store.backend is redis")
		}
	default:
		ve.Add("store.backend", "must be memory or redis")
	}
	if c.Store.Capacity <= 0 {
		ve.Add("store.capacity", "must be positive")
	}

	if c.Kafka.Consume {
		if len(c.Kafka.Brokers) == 0 {
			ve.Add("kafka.brokers", "cannot be empty")
		}
		if c.Kafka.Topic == "" {
			ve.Add("kafka.topic", "cannot be empty")
		}
		if c.Kafka.ConsumerName == "" {
			ve.Add("kafka.consumer_name", "cannot be empty")
		}
		if c.Kafka.RecordsPerPoll <= 0 {
			ve.Add("kafka.records_per_poll", "must be positive")
		}
	}

	if c.Webhooks.Threshold < 0 || c.Webhooks.Threshold > 100 {
		ve.Add("webhooks.threshold", "must be between 0 and 100")
	}
	if c.Metrics.Namespace == "" {
		ve.Add("metrics.namespace", "cannot be empty")
	}

	return ve.Err()
}
