// Package config loads server configuration from a YAML file and JIVE_*
// environment variables. File keys and env keys share the same dotted names
// (server.port ↔ JIVE_SERVER_PORT); defaults are set in code so a bare
// environment still yields a runnable server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Server    ServerConfig          `mapstructure:"server"`
	Database  DatabaseConfig        `mapstructure:"database"`
	Namespace NamespaceConfig       `mapstructure:"namespace"`
	Tools     map[string]ToolConfig `mapstructure:"tools"`
	Security  SecurityConfig        `mapstructure:"security"`
	Backup    BackupConfig          `mapstructure:"backup"`
	Sync      SyncConfig            `mapstructure:"sync"`
	Embedding EmbeddingConfig       `mapstructure:"embedding"`
}

// ServerConfig holds HTTP bind and logging settings.
type ServerConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"gte=1,lte=65535"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=DEBUG INFO WARNING ERROR CRITICAL"`
	LogDir   string `mapstructure:"log_dir" validate:"required"`
}

// DatabaseConfig holds the storage root and embedder selection.
type DatabaseConfig struct {
	DataPath       string `mapstructure:"data_path" validate:"required"`
	EmbeddingModel string `mapstructure:"embedding_model" validate:"oneof=local-hash-v1 azure-openai"`
}

// NamespaceConfig holds the fallback namespace and auto-create policy.
type NamespaceConfig struct {
	Default    string `mapstructure:"default" validate:"required"`
	AutoCreate bool   `mapstructure:"auto_create"`
}

// ToolConfig holds per-tool overrides.
type ToolConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds" validate:"gte=0"`
}

// SecurityConfig holds the HTTP-facing knobs.
type SecurityConfig struct {
	CORSOrigins    []string `mapstructure:"cors_origins"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps" validate:"gt=0"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst" validate:"gt=0"`
}

// BackupConfig controls scheduled namespace backups.
type BackupConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Dir       string `mapstructure:"dir"`
	Retention int    `mapstructure:"retention" validate:"gte=1"`
	Schedule  string `mapstructure:"schedule"`
}

// SyncConfig controls the file↔db sync surface.
type SyncConfig struct {
	Dir    string `mapstructure:"dir"`
	Format string `mapstructure:"format" validate:"oneof=json yaml markdown csv"`
	Watch  bool   `mapstructure:"watch"`
}

// EmbeddingConfig holds remote-embedder settings.
type EmbeddingConfig struct {
	Azure AzureEmbeddingConfig `mapstructure:"azure"`
}

// AzureEmbeddingConfig is required when database.embedding_model is
// azure-openai.
type AzureEmbeddingConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	APIKey     string `mapstructure:"api_key"`
	Deployment string `mapstructure:"deployment"`
}

// DefaultToolTimeouts maps each tool to its deadline in seconds.
var DefaultToolTimeouts = map[string]int{
	"jive_manage_work_item":   60,
	"jive_get_work_item":      30,
	"jive_search_content":     30,
	"jive_get_hierarchy":      60,
	"jive_execute_work_item":  300,
	"jive_track_progress":     90,
	"jive_sync_data":          120,
	"jive_reorder_work_items": 30,
}

// Load reads configuration from cfgFile (optional; otherwise jive.yaml is
// searched in ., $HOME/.jive, and /etc/jive), overlays JIVE_* environment
// variables, and validates the result.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("JIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("jive")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".jive"))
		}
		v.AddConfigPath("/etc/jive")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Missing config file is fine; defaults plus env apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDerivedDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3454)
	v.SetDefault("server.log_level", "INFO")
	v.SetDefault("server.log_dir", "logs")
	v.SetDefault("database.data_path", "data")
	v.SetDefault("database.embedding_model", "local-hash-v1")
	v.SetDefault("namespace.default", "default")
	v.SetDefault("namespace.auto_create", true)
	v.SetDefault("security.cors_origins", []string{"*"})
	v.SetDefault("security.rate_limit_rps", 10.0)
	v.SetDefault("security.rate_limit_burst", 20)
	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.retention", 7)
	v.SetDefault("backup.schedule", "0 3 * * *")
	v.SetDefault("sync.format", "json")
	v.SetDefault("sync.watch", false)
	v.SetDefault("embedding.azure.endpoint", "")
	v.SetDefault("embedding.azure.api_key", "")
	v.SetDefault("embedding.azure.deployment", "")
	for tool, seconds := range DefaultToolTimeouts {
		v.SetDefault("tools."+tool+".timeout_seconds", seconds)
	}
}

// applyDerivedDefaults fills settings whose defaults depend on other
// settings.
func applyDerivedDefaults(cfg *Config) {
	if cfg.Backup.Dir == "" {
		cfg.Backup.Dir = filepath.Join(cfg.Database.DataPath, "backups")
	}
	if cfg.Sync.Dir == "" {
		cfg.Sync.Dir = filepath.Join(cfg.Database.DataPath, "sync")
	}
}

// Validate checks the structural constraints declared on the config types.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Database.EmbeddingModel == "azure-openai" {
		az := c.Embedding.Azure
		if az.Endpoint == "" || az.APIKey == "" || az.Deployment == "" {
			return fmt.Errorf("invalid configuration: embedding.azure requires endpoint, api_key, and deployment")
		}
	}
	return nil
}

// Addr returns the HTTP bind address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ToolTimeout returns the deadline for one tool, falling back to the built-in
// default and then to 60s for unknown tools.
func (c *Config) ToolTimeout(tool string) time.Duration {
	if tc, ok := c.Tools[tool]; ok && tc.TimeoutSeconds > 0 {
		return time.Duration(tc.TimeoutSeconds) * time.Second
	}
	if seconds, ok := DefaultToolTimeouts[tool]; ok {
		return time.Duration(seconds) * time.Second
	}
	return 60 * time.Second
}
