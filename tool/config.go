package tool

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/moyoez/bigtransfer-go/types"
)

var (
	ConfigPath    = "config.yaml" // be aware that it can be changed, default to ./config.yaml
	CurrentConfig types.AppConfig
)

const (
	DefaultAnonymousQuota = 5
	DefaultReadyCooldown  = 3 * time.Second
)

func defaultConfig() types.AppConfig {
	return types.AppConfig{
		Origin:          "http://127.0.0.1:5000",
		AnonymousQuota:  DefaultAnonymousQuota,
		DownloadDir:     "downloads",
		ReadyCooldownMs: int(DefaultReadyCooldown / time.Millisecond),
		Listen:          "127.0.0.1:53318",
		AnonymousIDPath: "anonymous_id.yaml",
		UseNotify:       false,
	}
}

func LoadConfig(path string) (types.AppConfig, error) {
	if path == "" {
		path = ConfigPath
	}
	ConfigPath = path

	cfg := defaultConfig()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if writeErr := writeConfig(path, cfg); writeErr != nil {
				return cfg, fmt.Errorf("config file not found, and failed to generate default config: %v", writeErr)
			}
			DefaultLogger.Infof("Created new config file at %s", path)
			CurrentConfig = cfg
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if info.IsDir() {
		return cfg, fmt.Errorf("config file path is a directory: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %v", err)
	}
	normalizeConfig(&cfg)

	CurrentConfig = cfg
	return cfg, nil
}

// ApplyFlags merges CLI overrides into cfg.
func ApplyFlags(cfg *types.AppConfig, flags types.Config) {
	if flags.UseOrigin != "" {
		cfg.Origin = flags.UseOrigin
	}
	if flags.UseToken != "" {
		cfg.AuthToken = flags.UseToken
	}
	if flags.UseListen != "" {
		cfg.Listen = flags.UseListen
	}
	if flags.UseOutputDir != "" {
		cfg.DownloadDir = flags.UseOutputDir
	}
	if flags.SkipNotify {
		cfg.UseNotify = false
	}
	normalizeConfig(cfg)
	CurrentConfig = *cfg
}

func normalizeConfig(cfg *types.AppConfig) {
	cfg.Origin = strings.TrimRight(cfg.Origin, "/")
	if cfg.AnonymousQuota <= 0 {
		cfg.AnonymousQuota = DefaultAnonymousQuota
	}
	if cfg.ReadyCooldownMs < 0 {
		cfg.ReadyCooldownMs = 0
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "."
	}
}

// ReadyCooldown returns the configured post-ready delay.
func ReadyCooldown(cfg types.AppConfig) time.Duration {
	return time.Duration(cfg.ReadyCooldownMs) * time.Millisecond
}

func writeConfig(path string, cfg types.AppConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func GetCurrentConfig() *types.AppConfig {
	return &CurrentConfig
}
