package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	envPrefix = "CBU"

	DefaultMaxPayloadBytes = 512 << 20
)

var validate = validator.New()

// Load reads configuration from a file, env vars, and defaults.
func Load(path string) (*Config, error) {
	vp := viper.New()
	vp.SetEnvPrefix(envPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}
	if resolved != "" {
		vp.SetConfigFile(resolved)
		if err := vp.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	expandEnv(&cfg)
	applyPostLoadDefaults(&cfg)
	return &cfg, nil
}

// Validate checks the merged configuration, after CLI overrides have been applied.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return path, nil
	}
	if envPath := os.Getenv("CBU_CONFIG"); envPath != "" {
		return envPath, nil
	}

	candidates := []string{
		"cbu.yaml",
		"cbu.yml",
		"cbu.toml",
		"cbu.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	configDir, err := os.UserConfigDir()
	if err == nil {
		base := filepath.Join(configDir, "cbu")
		for _, c := range candidates {
			p := filepath.Join(base, c)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}

	return "", nil
}

func setDefaults(vp *viper.Viper) {
	vp.SetDefault("global.log_level", "info")
	vp.SetDefault("global.log_format", "json")
	vp.SetDefault("global.lock_file", "")
	vp.SetDefault("store.driver", "sqlite")
	vp.SetDefault("store.sqlite_path", "cbu.db")
	vp.SetDefault("backup.collections", []string{})
	vp.SetDefault("backup.events_collection", "calendarEvents")
	vp.SetDefault("backup.source", "cbu")
	vp.SetDefault("backup.note", "")
	vp.SetDefault("backup.encrypt", false)
	vp.SetDefault("backup.password", "")
	vp.SetDefault("backup.compression", "none")
	vp.SetDefault("backup.max_parallelism", 8)
	vp.SetDefault("backup.tiles_file", "")
	vp.SetDefault("backup.max_payload_bytes", DefaultMaxPayloadBytes)
	vp.SetDefault("restore.dry_run", false)
	vp.SetDefault("restore.collections", []string{})
	vp.SetDefault("storage.path", "./backups")
	vp.SetDefault("storage.prefix", "")
}

func applyPostLoadDefaults(cfg *Config) {
	if cfg.Backup.MaxPayloadBytes == 0 {
		cfg.Backup.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if cfg.Backup.Compression == "" {
		cfg.Backup.Compression = "none"
	}
}

func expandEnv(cfg *Config) {
	cfg.Store.SQLitePath = os.ExpandEnv(cfg.Store.SQLitePath)
	cfg.Storage.Path = os.ExpandEnv(cfg.Storage.Path)
	cfg.Backup.Password = os.ExpandEnv(cfg.Backup.Password)
	cfg.Backup.TilesFile = os.ExpandEnv(cfg.Backup.TilesFile)
}
