// Package config provides configuration management for the rolograph service.
// It supports loading configuration from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rolograph/rolograph/pkg/db"
)

// Default configuration values.
const (
	DefaultConfigDir  = ".rolograph"
	DefaultConfigFile = "config.yaml"

	DefaultRedisAddr     = "localhost:6379"
	DefaultEmbedModel    = "text-embedding-3-small"
	DefaultExtractModel  = "gpt-4o-mini"
	DefaultWorkerCount   = 4
	DefaultMetricsAddr   = ":9090"
	DefaultRequestWindow = 2 * time.Minute
)

// Dedup thresholds. Interactive checks use a stricter embedding cutoff than
// batch scans because a batch scan has no human in the loop per pair.
const (
	DefaultNameThreshold           = 0.5
	DefaultEmbeddingThreshold      = 0.85
	DefaultBatchEmbeddingThreshold = 0.8
	DefaultAutoQuestionThreshold   = 0.6
)

// Gap questioning defaults.
const (
	DefaultDailyQuestionCap    = 5
	DefaultQuestionCooldown    = 2 * time.Hour
	DefaultDismissPause        = 24 * time.Hour
	DefaultDismissPauseAfter   = 3
	DefaultGapCandidateLimit   = 50
	DefaultRecencyBoostWindow  = 7 * 24 * time.Hour
	DefaultQuestionTTL         = 14 * 24 * time.Hour
	DefaultSnoozePriorityDecay = 0.8
	DefaultSnoozeExpiryPush    = 3 * 24 * time.Hour
)

// RedisConfig holds Redis connection settings for the job queue.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// OpenAIConfig holds model selection for extraction and embeddings. The API
// key itself lives in the credentials store, never in config files.
type OpenAIConfig struct {
	ExtractModel string `yaml:"extract_model"`
	EmbedModel   string `yaml:"embed_model"`
	BaseURL      string `yaml:"base_url,omitempty"`
}

// DedupConfig holds duplicate detection thresholds.
type DedupConfig struct {
	NameThreshold           float64 `yaml:"name_threshold"`
	EmbeddingThreshold      float64 `yaml:"embedding_threshold"`
	BatchEmbeddingThreshold float64 `yaml:"batch_embedding_threshold"`
	AutoQuestionThreshold   float64 `yaml:"auto_question_threshold"`
}

// GapsConfig holds proactive questioning behavior.
type GapsConfig struct {
	DailyQuestionCap   int           `yaml:"daily_question_cap"`
	QuestionCooldown   time.Duration `yaml:"question_cooldown"`
	DismissPause       time.Duration `yaml:"dismiss_pause"`
	DismissPauseAfter  int           `yaml:"dismiss_pause_after"`
	CandidateLimit     int           `yaml:"candidate_limit"`
	RecencyBoostWindow time.Duration `yaml:"recency_boost_window"`
	QuestionTTL        time.Duration `yaml:"question_ttl"`
}

// WorkersConfig holds background processing settings.
type WorkersConfig struct {
	Count       int    `yaml:"count"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Config is the root service configuration.
type Config struct {
	// OwnerID identifies the graph owner. Generated by `rolo init` and
	// stored in the config file; all data is scoped to it.
	OwnerID string `yaml:"owner_id,omitempty"`

	Database db.Config     `yaml:"database"`
	Redis    RedisConfig   `yaml:"redis"`
	OpenAI   OpenAIConfig  `yaml:"openai"`
	Dedup    DedupConfig   `yaml:"dedup"`
	Gaps     GapsConfig    `yaml:"gaps"`
	Workers  WorkersConfig `yaml:"workers"`
	Debug    bool          `yaml:"debug,omitempty"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Database: *db.DefaultConfig(),
		Redis:    RedisConfig{Addr: DefaultRedisAddr},
		OpenAI: OpenAIConfig{
			ExtractModel: DefaultExtractModel,
			EmbedModel:   DefaultEmbedModel,
		},
		Dedup: DedupConfig{
			NameThreshold:           DefaultNameThreshold,
			EmbeddingThreshold:      DefaultEmbeddingThreshold,
			BatchEmbeddingThreshold: DefaultBatchEmbeddingThreshold,
			AutoQuestionThreshold:   DefaultAutoQuestionThreshold,
		},
		Gaps: GapsConfig{
			DailyQuestionCap:   DefaultDailyQuestionCap,
			QuestionCooldown:   DefaultQuestionCooldown,
			DismissPause:       DefaultDismissPause,
			DismissPauseAfter:  DefaultDismissPauseAfter,
			CandidateLimit:     DefaultGapCandidateLimit,
			RecencyBoostWindow: DefaultRecencyBoostWindow,
			QuestionTTL:        DefaultQuestionTTL,
		},
		Workers: WorkersConfig{
			Count:       DefaultWorkerCount,
			MetricsAddr: DefaultMetricsAddr,
		},
	}
}

// ConfigDir returns the configuration directory path.
// Uses $ROLOGRAPH_CONFIG_DIR if set, otherwise ~/.rolograph
func ConfigDir() (string, error) {
	if dir := os.Getenv("ROLOGRAPH_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// Load loads configuration in this order (later sources override earlier):
//  1. Default values
//  2. Config file (~/.rolograph/config.yaml or $ROLOGRAPH_CONFIG_DIR/config.yaml)
//  3. Environment variables (DB_*, REDIS_ADDR, ROLOGRAPH_DEBUG, ...)
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if err := loadFile(cfg, path); err != nil {
		return nil, err
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile loads configuration from an explicit path plus environment
// overrides. The file must exist.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFile merges the config file into cfg if it exists. A missing file is
// not an error: defaults plus environment variables are a valid setup.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	dbCfg := db.ConfigFromEnv()
	if os.Getenv("DB_HOST") != "" {
		cfg.Database.Host = dbCfg.Host
	}
	if os.Getenv("DB_PORT") != "" {
		cfg.Database.Port = dbCfg.Port
	}
	if os.Getenv("DB_NAME") != "" {
		cfg.Database.Database = dbCfg.Database
	}
	if os.Getenv("DB_USER") != "" {
		cfg.Database.User = dbCfg.User
	}
	if os.Getenv("DB_PASSWORD") != "" {
		cfg.Database.Password = dbCfg.Password
	}
	if os.Getenv("DB_SSLMODE") != "" {
		cfg.Database.SSLMode = dbCfg.SSLMode
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if dbNum := os.Getenv("REDIS_DB"); dbNum != "" {
		if n, err := strconv.Atoi(dbNum); err == nil {
			cfg.Redis.DB = n
		}
	}

	if model := os.Getenv("ROLOGRAPH_EXTRACT_MODEL"); model != "" {
		cfg.OpenAI.ExtractModel = model
	}
	if model := os.Getenv("ROLOGRAPH_EMBED_MODEL"); model != "" {
		cfg.OpenAI.EmbedModel = model
	}
	if baseURL := os.Getenv("ROLOGRAPH_OPENAI_BASE_URL"); baseURL != "" {
		cfg.OpenAI.BaseURL = baseURL
	}

	if workers := os.Getenv("ROLOGRAPH_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil && n > 0 {
			cfg.Workers.Count = n
		}
	}
	if owner := os.Getenv("ROLOGRAPH_OWNER_ID"); owner != "" {
		cfg.OwnerID = owner
	}
	if debug := os.Getenv("ROLOGRAPH_DEBUG"); debug != "" {
		cfg.Debug = debug == "true" || debug == "1"
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	for name, v := range map[string]float64{
		"dedup.name_threshold":            c.Dedup.NameThreshold,
		"dedup.embedding_threshold":       c.Dedup.EmbeddingThreshold,
		"dedup.batch_embedding_threshold": c.Dedup.BatchEmbeddingThreshold,
		"dedup.auto_question_threshold":   c.Dedup.AutoQuestionThreshold,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %v", name, v)
		}
	}
	if c.Gaps.DailyQuestionCap < 0 {
		return fmt.Errorf("gaps.daily_question_cap must not be negative")
	}
	if c.Gaps.CandidateLimit <= 0 {
		return fmt.Errorf("gaps.candidate_limit must be positive")
	}
	if c.Workers.Count <= 0 {
		return fmt.Errorf("workers.count must be positive")
	}
	return nil
}

// Save writes the configuration to the default config path, creating the
// directory if needed.
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
