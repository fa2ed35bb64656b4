package helper

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	database "github.com/yishak-cs/menu-recommender/internal/database"
)

// Config is the full service configuration.
// Precedence: environment (including .env loaded by main) > defaults.
type Config struct {
	App       AppConfig       `koanf:"app"`
	Neo4j     Neo4jConfig     `koanf:"neo4j"`
	Postgres  PostgresConfig  `koanf:"postgres"`
	Recommend RecommendConfig `koanf:"recommend"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Breaker   BreakerConfig   `koanf:"breaker"`
	Kafka     KafkaConfig     `koanf:"kafka"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type AppConfig struct {
	Port             int    `koanf:"port" validate:"min=1,max=65535"`
	AggregateBackend string `koanf:"aggregate_backend" validate:"oneof=postgres neo4j"`
}

type Neo4jConfig struct {
	URI      string `koanf:"uri"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`
}

type PostgresConfig struct {
	URL string `koanf:"url" validate:"required"`
}

type RecommendConfig struct {
	DefaultCount     int           `koanf:"default_count" validate:"min=1"`
	MaxCount         int           `koanf:"max_count" validate:"min=1,gtefield=DefaultCount"`
	GeneratorTimeout time.Duration `koanf:"generator_timeout" validate:"gt=0"`
	Seed             int64         `koanf:"seed"`
}

type AnalyticsConfig struct {
	DefaultWindowDays int `koanf:"default_window_days" validate:"min=1"`
}

type BreakerConfig struct {
	MinRequests  uint32        `koanf:"min_requests" validate:"min=1"`
	FailureRatio float64       `koanf:"failure_ratio" validate:"gt=0,lte=1"`
	Timeout      time.Duration `koanf:"timeout" validate:"gt=0"`
	Interval     time.Duration `koanf:"interval"`
}

type KafkaConfig struct {
	// Brokers is comma-separated in the environment. Empty disables publishing.
	Brokers          []string `koanf:"brokers"`
	InteractionTopic string   `koanf:"interaction_topic"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// Enabled reports whether interaction events should be published
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// Neo4jDatabaseConfig maps the Neo4j section onto the driver config
func (c *Config) Neo4jDatabaseConfig() database.Config {
	return database.Config{
		URI:      c.Neo4j.URI,
		Username: c.Neo4j.Username,
		Password: c.Neo4j.Password,
		Database: c.Neo4j.Database,
	}
}

// BreakerSettings maps the breaker section onto the aggregate-layer breaker
func (c *Config) BreakerSettings() database.BreakerConfig {
	cfg := database.DefaultBreakerConfig()
	cfg.MinRequests = c.Breaker.MinRequests
	cfg.FailureRatio = c.Breaker.FailureRatio
	cfg.Timeout = c.Breaker.Timeout
	cfg.Interval = c.Breaker.Interval
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Port:             8080,
			AggregateBackend: "postgres",
		},
		Neo4j: Neo4jConfig{
			Username: "neo4j",
			Database: "neo4j",
		},
		Recommend: RecommendConfig{
			DefaultCount:     5,
			MaxCount:         50,
			GeneratorTimeout: 2 * time.Second,
		},
		Analytics: AnalyticsConfig{
			DefaultWindowDays: 30,
		},
		Breaker: BreakerConfig{
			MinRequests:  10,
			FailureRatio: 0.6,
			Timeout:      30 * time.Second,
			Interval:     time.Minute,
		},
		Kafka: KafkaConfig{
			InteractionTopic: "recommendation-interactions",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

var envMappings = map[string]string{
	"app_port":                      "app.port",
	"aggregate_backend":             "app.aggregate_backend",
	"neo4j_uri":                     "neo4j.uri",
	"neo4j_username":                "neo4j.username",
	"neo4j_password":                "neo4j.password",
	"neo4j_database":                "neo4j.database",
	"database_url":                  "postgres.url",
	"recommend_default_count":       "recommend.default_count",
	"recommend_max_count":           "recommend.max_count",
	"recommend_generator_timeout":   "recommend.generator_timeout",
	"recommend_seed":                "recommend.seed",
	"analytics_default_window_days": "analytics.default_window_days",
	"breaker_min_requests":          "breaker.min_requests",
	"breaker_failure_ratio":         "breaker.failure_ratio",
	"breaker_timeout":               "breaker.timeout",
	"breaker_interval":              "breaker.interval",
	"kafka_brokers":                 "kafka.brokers",
	"kafka_interaction_topic":       "kafka.interaction_topic",
	"log_level":                     "logging.level",
	"log_format":                    "logging.format",
}

// envTransform maps known variables to config paths and drops everything else
func envTransform(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

// LoadConfig builds the configuration from defaults and the environment, then validates it
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := splitBrokers(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	cfg.App.AggregateBackend = strings.ToLower(cfg.App.AggregateBackend)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// KAFKA_BROKERS arrives as a single string
func splitBrokers(k *koanf.Koanf) error {
	raw, ok := k.Get("kafka.brokers").(string)
	if !ok {
		return nil
	}

	brokers := make([]string, 0)
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	if err := k.Set("kafka.brokers", brokers); err != nil {
		return fmt.Errorf("failed to set kafka.brokers: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the rules that span sections
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}

	if c.App.AggregateBackend == "neo4j" && (c.Neo4j.URI == "" || c.Neo4j.Password == "") {
		return errors.New("NEO4J_URI and NEO4J_PASSWORD are required when AGGREGATE_BACKEND=neo4j")
	}

	return nil
}
