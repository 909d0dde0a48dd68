package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	mu sync.RWMutex `yaml:"-"`

	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Web       WebConfig       `yaml:"web"`
	Messaging MessagingConfig `yaml:"messaging"`
	Log       LogConfig       `yaml:"log"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DispatchConfig tunes the offer cycle. OfferTTL bounds how long a single
// vendor can hold a booking before the sweeper moves on.
type DispatchConfig struct {
	OfferTTL       time.Duration `yaml:"offer_ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	SearchRadiusKm float64       `yaml:"search_radius_km"`
	MaxCandidates  int           `yaml:"max_candidates"`
	StuckGrace     time.Duration `yaml:"stuck_grace"`
}

type WebConfig struct {
	Host          string          `yaml:"host"`
	Port          int             `yaml:"port"`
	SessionSecret string          `yaml:"session_secret"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type MessagingConfig struct {
	Backend             string        `yaml:"backend"`
	Kafka               KafkaConfig   `yaml:"kafka"`
	MQTT                MQTTConfig    `yaml:"mqtt"`
	BookingsTopic       string        `yaml:"bookings_topic"`
	VendorTopicPrefix   string        `yaml:"vendor_topic_prefix"`
	RequesterTopic      string        `yaml:"requester_topic"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
	StationID           string        `yaml:"station_id"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "truckdispatch.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "truckdispatch",
				User:     "truckdispatch",
				Password: "",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			Password: "",
			DB:       0,
		},
		Dispatch: DispatchConfig{
			OfferTTL:       2 * time.Minute,
			SweepInterval:  30 * time.Second,
			SearchRadiusKm: 25,
			MaxCandidates:  20,
			StuckGrace:     time.Minute,
		},
		Web: WebConfig{
			Host:          "0.0.0.0",
			Port:          8090,
			SessionSecret: "change-me-in-production",
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 5,
				Burst:             20,
			},
		},
		Messaging: MessagingConfig{
			Backend: "kafka",
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				GroupID: "truckdispatch",
			},
			MQTT: MQTTConfig{
				Broker:   "localhost",
				Port:     1883,
				ClientID: "truckdispatch-core",
			},
			BookingsTopic:       "truckdispatch.bookings",
			VendorTopicPrefix:   "truckdispatch.vendor",
			RequesterTopic:      "truckdispatch.requester",
			OutboxDrainInterval: 5 * time.Second,
			StationID:           "core",
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Lock()   { c.mu.Lock() }
func (c *Config) Unlock() { c.mu.Unlock() }
