package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration shared by gatesvc, monitorsvc and
// gatectl. Every field comes from the environment (after LoadEnv).
type Config struct {
	Log   LogConfig
	Nats  NatsConfig
	Store StoreConfig
	Gate  GateConfig
	HTTP  HTTPConfig
	Audit AuditConfig
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Dir    string `env:"LOG_DIR" envDefault:".l_g"`
	ToFile bool   `env:"LOG_TO_FILE" envDefault:"false"`
}

type NatsConfig struct {
	URL            string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	Token          string        `env:"NATS_TOKEN"`
	ConnectTimeout time.Duration `env:"NATS_CONNECT_TIMEOUT" envDefault:"5s"`
	ReconnectWait  time.Duration `env:"NATS_RECONNECT_WAIT" envDefault:"2s"`
}

type StoreConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver      string        `env:"GATE_STORE_DRIVER" envDefault:"postgres"`
	PostgresURL string        `env:"POSTGRES_URL"`
	SQLitePath  string        `env:"GATE_SQLITE_PATH" envDefault:"./data/gate_system.db"`
	Timeout     time.Duration `env:"GATE_STORE_TIMEOUT" envDefault:"5s"`
}

type GateConfig struct {
	InboundTopic string `env:"GATE_INBOUND_TOPIC" envDefault:"server"`
	EventsTopic  string `env:"GATE_EVENTS_TOPIC" envDefault:"gate.events"`
	QueueGroup   string `env:"GATE_QUEUE_GROUP"`
	Workers      int    `env:"GATE_WORKERS" envDefault:"16"`
	// IANA zone that report days are counted in
	ReportTZ string `env:"GATE_REPORT_TZ" envDefault:"Local"`

	HeartbeatTopic    string        `env:"GATE_HEARTBEAT_TOPIC" envDefault:"gate.heartbeat"`
	HeartbeatInterval time.Duration `env:"GATE_HEARTBEAT_INTERVAL" envDefault:"5s"`
}

type HTTPConfig struct {
	GatePort    string   `env:"GATE_SERVICE_PORT" envDefault:"8080"`
	MonitorPort string   `env:"MONITOR_SERVICE_PORT" envDefault:"8081"`
	RateLimit   int      `env:"RATE_LIMIT" envDefault:"120"`
	JWTSecret   string   `env:"JWT_SECRET_KEY"`
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`
}

type AuditConfig struct {
	MongoURI    string        `env:"MONGODB_URI"`
	Collection  string        `env:"GATE_AUDIT_COLLECTION" envDefault:"access_events"`
	Retention   time.Duration `env:"GATE_AUDIT_RETENTION" envDefault:"720h"`
	Timeout     time.Duration `env:"GATE_AUDIT_TIMEOUT" envDefault:"2s"`
	MemoryLimit int           `env:"GATE_AUDIT_MEMORY_LIMIT" envDefault:"1000"` // used when MONGODB_URI is unset
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ReportLocation resolves GATE_REPORT_TZ. Load has already validated it.
func (c Config) ReportLocation() *time.Location {
	loc, err := time.LoadLocation(c.Gate.ReportTZ)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required when GATE_STORE_DRIVER=postgres")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("GATE_SQLITE_PATH is required when GATE_STORE_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("unknown GATE_STORE_DRIVER %q (want postgres or sqlite)", c.Store.Driver)
	}
	if c.Gate.Workers <= 0 {
		return fmt.Errorf("GATE_WORKERS must be positive, got %d", c.Gate.Workers)
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("GATE_STORE_TIMEOUT must be positive, got %s", c.Store.Timeout)
	}
	if c.Gate.InboundTopic == "" {
		return fmt.Errorf("GATE_INBOUND_TOPIC must not be empty")
	}
	if _, err := time.LoadLocation(c.Gate.ReportTZ); err != nil {
		return fmt.Errorf("GATE_REPORT_TZ: %w", err)
	}
	return nil
}
