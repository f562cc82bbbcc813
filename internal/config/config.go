package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	// Ownership model settings
	Ownership OwnershipConfig `yaml:"ownership" mapstructure:"ownership"`

	// Complexity estimator weights and caps
	Complexity ComplexityConfig `yaml:"complexity" mapstructure:"complexity"`

	// Availability tracker settings
	Availability AvailabilityConfig `yaml:"availability" mapstructure:"availability"`

	// Assignment resolver settings
	Assignment AssignmentConfig `yaml:"assignment" mapstructure:"assignment"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// GitHub configuration
	GitHub GitHubConfig `yaml:"github" mapstructure:"github"`

	// Ingestion pipeline settings
	Ingest IngestConfig `yaml:"ingest" mapstructure:"ingest"`

	// Optional ownership graph export
	Graph GraphConfig `yaml:"graph" mapstructure:"graph"`

	// Log level and destination
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

type OwnershipConfig struct {
	DecayHalfLifeDays   float64 `yaml:"decay_half_life_days" mapstructure:"decay_half_life_days"`
	StaleWindowDays     float64 `yaml:"stale_window_days" mapstructure:"stale_window_days"`
	DeletionCoefficient float64 `yaml:"deletion_coefficient" mapstructure:"deletion_coefficient"`
}

type ComplexityConfig struct {
	WeightSize     float64 `yaml:"weight_size" mapstructure:"weight_size"`
	WeightChurn    float64 `yaml:"weight_churn" mapstructure:"weight_churn"`
	WeightAuthors  float64 `yaml:"weight_authors" mapstructure:"weight_authors"`
	SizeCapLines   float64 `yaml:"size_cap_lines" mapstructure:"size_cap_lines"`
	ChurnCapPerDay float64 `yaml:"churn_cap_per_day" mapstructure:"churn_cap_per_day"`
	AuthorCap      float64 `yaml:"author_cap" mapstructure:"author_cap"`
	MinScore       float64 `yaml:"min_score" mapstructure:"min_score"`
}

// EngineerConfig seeds an engineer's availability
type EngineerConfig struct {
	ID       string `yaml:"id" mapstructure:"id"`
	Away     bool   `yaml:"away" mapstructure:"away"`
	Capacity int    `yaml:"capacity" mapstructure:"capacity"`
}

type AvailabilityConfig struct {
	Backend            string           `yaml:"backend" mapstructure:"backend"` // "storage", "redis", "memory"
	MaxCapacityDefault int              `yaml:"max_capacity_default" mapstructure:"max_capacity_default"`
	RedisAddr          string           `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword      string           `yaml:"redis_password" mapstructure:"redis_password"`
	Engineers          []EngineerConfig `yaml:"engineers" mapstructure:"engineers"`
}

type AssignmentConfig struct {
	EscalationTarget    string        `yaml:"escalation_target" mapstructure:"escalation_target"`
	AvailabilityTimeout time.Duration `yaml:"availability_timeout" mapstructure:"availability_timeout"`
	MaxBackups          int           `yaml:"max_backups" mapstructure:"max_backups"`
}

type StorageConfig struct {
	Type        string `yaml:"type" mapstructure:"type"` // "postgres", "sqlite"
	PostgresDSN string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
	LocalPath   string `yaml:"local_path" mapstructure:"local_path"`
}

type GitHubConfig struct {
	Token     string `yaml:"token" mapstructure:"token"`
	RateLimit int    `yaml:"rate_limit" mapstructure:"rate_limit"` // Requests per second
}

type IngestConfig struct {
	Workers        int    `yaml:"workers" mapstructure:"workers"`
	CheckpointPath string `yaml:"checkpoint_path" mapstructure:"checkpoint_path"`
	CloneDir       string `yaml:"clone_dir" mapstructure:"clone_dir"`
	LookbackDays   int    `yaml:"lookback_days" mapstructure:"lookback_days"`
}

type GraphConfig struct {
	URI      string `yaml:"uri" mapstructure:"uri"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

// LoggingConfig controls the structured logger. File adds a rotated log
// file next to stderr output.
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"` // debug, info, warn, error
	File  string `yaml:"file" mapstructure:"file"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

// Enabled reports whether ownership should be exported to neo4j
func (g GraphConfig) Enabled() bool {
	return g.URI != ""
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Ownership: OwnershipConfig{
			DecayHalfLifeDays:   90,
			StaleWindowDays:     180,
			DeletionCoefficient: 0.5,
		},
		Complexity: ComplexityConfig{
			WeightSize:     0.4,
			WeightChurn:    0.4,
			WeightAuthors:  0.2,
			SizeCapLines:   1000,
			ChurnCapPerDay: 1.0,
			AuthorCap:      5,
			MinScore:       0.1,
		},
		Availability: AvailabilityConfig{
			Backend:            "storage",
			MaxCapacityDefault: 5,
			RedisAddr:          "localhost:6379",
		},
		Assignment: AssignmentConfig{
			EscalationTarget:    "team-lead",
			AvailabilityTimeout: 2 * time.Second,
			MaxBackups:          2,
		},
		Storage: StorageConfig{
			Type:      "sqlite",
			LocalPath: filepath.Join(homeDir, ".bugrouter", "local.db"),
		},
		GitHub: GitHubConfig{
			RateLimit: 10, // 10 requests per second
		},
		Ingest: IngestConfig{
			Workers:        4,
			CheckpointPath: filepath.Join(homeDir, ".bugrouter", "checkpoint.db"),
			CloneDir:       filepath.Join(homeDir, ".bugrouter", "repos"),
			LookbackDays:   365,
		},
		Graph: GraphConfig{
			User:     "neo4j",
			Database: "neo4j",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	// Load .env files first (in order of precedence)
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	// Defaults live in the struct; the decoder only overwrites keys present
	// in the file, so nested sections merge field by field.
	cfg := Default()

	// Load from environment variables
	v.SetEnvPrefix("BUGROUTER")
	v.AutomaticEnv()

	// Try to find config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search for config in standard locations
		v.SetConfigName("config")
		v.AddConfigPath(".bugrouter")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".bugrouter"))
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	// Unmarshal into struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	envFiles := []string{
		".env.local", // Local overrides (highest precedence)
		".env",       // Main environment file
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".bugrouter", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides to config.
// Names follow the recognized option names (decay_half_life_days,
// complexity_weight_size, ...) upper-cased.
func applyEnvOverrides(cfg *Config) {
	setFloat := func(name string, dst *float64) {
		if raw := os.Getenv(name); raw != "" {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				*dst = v
			}
		}
	}
	setInt := func(name string, dst *int) {
		if raw := os.Getenv(name); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil {
				*dst = v
			}
		}
	}

	// Ownership
	setFloat("DECAY_HALF_LIFE_DAYS", &cfg.Ownership.DecayHalfLifeDays)
	setFloat("STALE_WINDOW_DAYS", &cfg.Ownership.StaleWindowDays)

	// Complexity
	setFloat("COMPLEXITY_WEIGHT_SIZE", &cfg.Complexity.WeightSize)
	setFloat("COMPLEXITY_WEIGHT_CHURN", &cfg.Complexity.WeightChurn)
	setFloat("COMPLEXITY_WEIGHT_AUTHORS", &cfg.Complexity.WeightAuthors)

	// Availability
	setInt("MAX_CAPACITY_DEFAULT", &cfg.Availability.MaxCapacityDefault)
	if backend := os.Getenv("AVAILABILITY_BACKEND"); backend != "" {
		cfg.Availability.Backend = backend
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Availability.RedisAddr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Availability.RedisPassword = password
	}

	// Assignment
	if target := os.Getenv("ESCALATION_TARGET"); target != "" {
		cfg.Assignment.EscalationTarget = target
	}

	// GitHub configuration
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		cfg.GitHub.Token = token
	} else if cfg.GitHub.Token == "" {
		km := NewKeyringManager()
		if km.IsAvailable() {
			if keychainToken, err := km.GetGitHubToken(); err == nil && keychainToken != "" {
				cfg.GitHub.Token = keychainToken
			}
		}
	}
	setInt("GITHUB_RATE_LIMIT", &cfg.GitHub.RateLimit)

	// Storage configuration
	if storageType := os.Getenv("STORAGE_TYPE"); storageType != "" {
		cfg.Storage.Type = storageType
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if path := os.Getenv("LOCAL_DB_PATH"); path != "" {
		cfg.Storage.LocalPath = expandPath(path)
	}

	// Ingestion
	setInt("INGEST_WORKERS", &cfg.Ingest.Workers)
	if path := os.Getenv("CHECKPOINT_PATH"); path != "" {
		cfg.Ingest.CheckpointPath = expandPath(path)
	}

	// Graph export
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Graph.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Graph.User = user
	}
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		cfg.Graph.Password = password
	}

	// Logging
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if file := os.Getenv("LOG_FILE"); file != "" {
		cfg.Logging.File = expandPath(file)
	}
	if raw := os.Getenv("LOG_JSON"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			cfg.Logging.JSON = v
		}
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("ownership", c.Ownership)
	v.Set("complexity", c.Complexity)
	v.Set("availability", c.Availability)
	v.Set("assignment", c.Assignment)
	v.Set("storage", c.Storage)
	v.Set("github", map[string]interface{}{"rate_limit": c.GitHub.RateLimit})
	v.Set("ingest", c.Ingest)
	v.Set("graph", c.Graph)
	v.Set("logging", c.Logging)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
