package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"atlas-api"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL
	DatabaseDriver              string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName            string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword            string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                string        `env:"DB_NAME" env-default:"atlas"`
	DatabaseSSLMode             string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns        int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns        int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime     time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion    int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce      int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool        `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis (geocode cache)
	RedisEnabled  bool   `env:"REDIS_ENABLED" env-default:"true"`
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka Consumer (entity lifecycle events from the CRUD services)
	KafkaBrokers           []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaEntityEventsTopic string   `env:"KAFKA_ENTITY_EVENTS_TOPIC" env-default:"entity-events"`
	KafkaConsumerGroup     string   `env:"KAFKA_CONSUMER_GROUP" env-default:"atlas-consumer"`
	KafkaConsumerEnabled   bool     `env:"KAFKA_CONSUMER_ENABLED" env-default:"true"`

	// Kafka Producer (resolution lifecycle events)
	KafkaOutputTopic  string `env:"KAFKA_OUTPUT_TOPIC" env-default:"resolution-events"`
	KafkaBatchSize    int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int    `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Geocoding
	GeocoderBaseURL     string        `env:"GEOCODER_BASE_URL" env-default:"https://nominatim.openstreetmap.org"`
	GeocoderProvider    string        `env:"GEOCODER_PROVIDER" env-default:"nominatim"`
	GeocoderResultLimit int           `env:"GEOCODER_RESULT_LIMIT" env-default:"5"`
	GeocoderTimeout     time.Duration `env:"GEOCODER_TIMEOUT" env-default:"5s"`
	GeocoderCacheTTL    time.Duration `env:"GEOCODER_CACHE_TTL" env-default:"15m"`

	// Matching
	ProximityRadiusMeters float64 `env:"PROXIMITY_RADIUS_METERS" env-default:"500"`
	ContactConfidence     float64 `env:"CONTACT_CONFIDENCE" env-default:"0.65"`
	MaxMatches            int     `env:"MAX_MATCHES" env-default:"3"`

	// Proposals
	UsableConfidenceFloor float64 `env:"USABLE_CONFIDENCE_FLOOR" env-default:"0.5"`

	// Diagnostics
	DiagnosticsCapacity int `env:"DIAGNOSTICS_CAPACITY" env-default:"64"`

	// Tracing
	TracingEnabled      bool   `env:"TRACING_ENABLED" env-default:"false"`
	TracingOTLPEndpoint string `env:"TRACING_OTLP_ENDPOINT" env-default:"localhost:4317"`
	TracingConsole      bool   `env:"TRACING_CONSOLE" env-default:"false"`
}

// Load reads configuration from the environment, with a .env file as a
// development convenience.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
