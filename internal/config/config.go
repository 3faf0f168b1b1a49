package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Notification NotificationConfig
	Dispatch     DispatchConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	WebhookURL string
}

// DispatchConfig controls the dispatch engine.
type DispatchConfig struct {
	Enabled          bool
	DefaultDomain    string
	DomainConfigPath string
	DefaultStrategy  string

	MaxAssignedTicketsPerAgent int
	MinTrainingRecords         int

	ModelDir            string
	ModelRetainVersions int

	RetrainInterval         time.Duration
	RetrainTimeout          time.Duration
	RetrainAfterResolutions int
	BacklogInterval         time.Duration
	BacklogBatchSize        int
	DistributedLock         bool

	WorkloadPenalty float64
	AffinityWeight  float64
	SkillWeight     float64
	LanguageWeight  float64
	RegionWeight    float64

	MaxProjectsPerManager int
	ManagerWorkloadWeight float64
	ManagerSuccessWeight  float64

	Training TrainingConfig
}

// TrainingConfig holds matrix factorization hyperparameters.
type TrainingConfig struct {
	Rank           int
	Epochs         int
	LearningRate   float64
	Regularization float64
	Seed           int64
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "dispatch-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Notification: NotificationConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		Dispatch: DispatchConfig{
			Enabled:          getEnvAsBool("DISPATCH_ENABLED", true),
			DefaultDomain:    getEnv("DISPATCH_DEFAULT_DOMAIN", "default"),
			DomainConfigPath: os.Getenv("DISPATCH_DOMAIN_CONFIG"),
			DefaultStrategy:  getEnv("DISPATCH_STRATEGY", "MatrixFactorization"),

			MaxAssignedTicketsPerAgent: getEnvAsInt("DISPATCH_MAX_TICKETS_PER_AGENT", 15),
			MinTrainingRecords:         getEnvAsInt("DISPATCH_MIN_TRAINING_RECORDS", 3),

			ModelDir:            getEnv("DISPATCH_MODEL_DIR", "./data/models"),
			ModelRetainVersions: getEnvAsInt("DISPATCH_MODEL_RETAIN_VERSIONS", 3),

			RetrainInterval:         getEnvAsDuration("DISPATCH_RETRAIN_INTERVAL", 24*time.Hour),
			RetrainTimeout:          getEnvAsDuration("DISPATCH_RETRAIN_TIMEOUT", 10*time.Minute),
			RetrainAfterResolutions: getEnvAsInt("DISPATCH_RETRAIN_AFTER_RESOLUTIONS", 50),
			BacklogInterval:         getEnvAsDuration("DISPATCH_BACKLOG_INTERVAL", 0),
			BacklogBatchSize:        getEnvAsInt("DISPATCH_BACKLOG_BATCH_SIZE", 100),
			DistributedLock:         getEnvAsBool("DISPATCH_DISTRIBUTED_LOCK", true),

			WorkloadPenalty: getEnvAsFloat("DISPATCH_WORKLOAD_PENALTY", 0.5),
			AffinityWeight:  getEnvAsFloat("DISPATCH_WEIGHT_AFFINITY", 0.4),
			SkillWeight:     getEnvAsFloat("DISPATCH_WEIGHT_SKILL", 0.3),
			LanguageWeight:  getEnvAsFloat("DISPATCH_WEIGHT_LANGUAGE", 0.2),
			RegionWeight:    getEnvAsFloat("DISPATCH_WEIGHT_REGION", 0.1),

			MaxProjectsPerManager: getEnvAsInt("DISPATCH_MAX_PROJECTS_PER_MANAGER", 5),
			ManagerWorkloadWeight: getEnvAsFloat("DISPATCH_MANAGER_WORKLOAD_WEIGHT", 0.6),
			ManagerSuccessWeight:  getEnvAsFloat("DISPATCH_MANAGER_SUCCESS_WEIGHT", 0.4),

			Training: TrainingConfig{
				Rank:           getEnvAsInt("DISPATCH_TRAINING_RANK", 10),
				Epochs:         getEnvAsInt("DISPATCH_TRAINING_EPOCHS", 20),
				LearningRate:   getEnvAsFloat("DISPATCH_TRAINING_LEARNING_RATE", 0.05),
				Regularization: getEnvAsFloat("DISPATCH_TRAINING_REGULARIZATION", 0.02),
				Seed:           int64(getEnvAsInt("DISPATCH_TRAINING_SEED", 1)),
			},
		},
	}

	if err := cfg.Dispatch.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (d DispatchConfig) validate() error {
	if d.MaxAssignedTicketsPerAgent <= 0 {
		return fmt.Errorf("DISPATCH_MAX_TICKETS_PER_AGENT must be positive, got %d", d.MaxAssignedTicketsPerAgent)
	}
	if d.WorkloadPenalty < 0 || d.WorkloadPenalty > 1 {
		return fmt.Errorf("DISPATCH_WORKLOAD_PENALTY must be within [0,1], got %v", d.WorkloadPenalty)
	}
	if d.MinTrainingRecords < 0 {
		return fmt.Errorf("DISPATCH_MIN_TRAINING_RECORDS must not be negative, got %d", d.MinTrainingRecords)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvAsDuration accepts Go durations ("90s", "24h") or plain seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
