package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// FileConfig is the design-team.yaml file structure.
type FileConfig struct {
	AppName string            `yaml:"app_name"`
	Team    *TeamConfig       `yaml:"team"`
	LLM     *LLMConfig        `yaml:"llm"`
	Chat    *ChatConfig       `yaml:"chat"`
	System  *SystemYAMLConfig `yaml:"system"`
}

// SystemYAMLConfig groups infrastructure settings.
type SystemYAMLConfig struct {
	AllowedWSOrigins []string             `yaml:"allowed_ws_origins"`
	Retention        *RetentionYAMLConfig `yaml:"retention"`
}

// RetentionYAMLConfig uses pointers so an explicit zero can disable a rule.
type RetentionYAMLConfig struct {
	SessionRetentionDays *int           `yaml:"session_retention_days"`
	EmptySessionTTL      *time.Duration `yaml:"empty_session_ttl"`
	CleanupInterval      time.Duration  `yaml:"cleanup_interval"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Read design-team.yaml from configDir (optional)
//  2. Expand {{.ENV}} references
//  3. Parse YAML
//  4. Merge over built-in defaults
//  5. Validate
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"app_name", cfg.AppName,
		"worker_model", cfg.Team.WorkerModel,
		"designer_model", cfg.Team.DesignerModel,
		"max_gameplay_iterations", cfg.Team.MaxGameplayIterations,
		"synthesize_plan", cfg.Team.SynthesizePlan,
		"session_retention_days", cfg.Retention.SessionRetentionDays)
	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	file, err := loadFile(filepath.Join(configDir, ConfigFile))
	if err != nil {
		return nil, NewLoadError(ConfigFile, err)
	}

	team := DefaultTeamConfig()
	if file.Team != nil {
		if err := mergo.Merge(team, file.Team, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge team config: %w", err)
		}
	}

	llm := DefaultLLMConfig()
	if file.LLM != nil {
		if err := mergo.Merge(llm, file.LLM, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge llm config: %w", err)
		}
	}
	if llm.APIKey == "" {
		llm.APIKey = os.Getenv("GOOGLE_API_KEY")
	}

	chat := DefaultChatConfig()
	if file.Chat != nil {
		if err := mergo.Merge(chat, file.Chat, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge chat config: %w", err)
		}
	}

	appName := file.AppName
	if appName == "" {
		appName = DefaultAppName
	}

	var origins []string
	if file.System != nil {
		origins = file.System.AllowedWSOrigins
	}

	return &Config{
		configDir:        configDir,
		AppName:          appName,
		Team:             team,
		LLM:              llm,
		Chat:             chat,
		Retention:        resolveRetentionConfig(file.System),
		AllowedWSOrigins: origins,
	}, nil
}

// loadFile reads and parses the config file. A missing file yields an
// empty config so the built-in defaults apply.
func loadFile(path string) (*FileConfig, error) {
	var file FileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Info("No config file found, using built-in defaults", "path", path)
			return &file, nil
		}
		return nil, err
	}

	data = ExpandEnv(data)
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return &file, nil
}

func resolveRetentionConfig(sys *SystemYAMLConfig) *RetentionConfig {
	cfg := DefaultRetentionConfig()
	if sys == nil || sys.Retention == nil {
		return cfg
	}

	r := sys.Retention
	if r.SessionRetentionDays != nil {
		cfg.SessionRetentionDays = *r.SessionRetentionDays
	}
	if r.EmptySessionTTL != nil {
		cfg.EmptySessionTTL = *r.EmptySessionTTL
	}
	if r.CleanupInterval > 0 {
		cfg.CleanupInterval = r.CleanupInterval
	}
	return cfg
}

func validate(cfg *Config) error {
	var errs []error
	check := func(ok bool, section, field string, err error) {
		if !ok {
			errs = append(errs, NewValidationError(section, field, err))
		}
	}

	check(cfg.Team.WorkerModel != "", "team", "worker_model", ErrMissingRequiredField)
	check(cfg.Team.DesignerModel != "", "team", "designer_model", ErrMissingRequiredField)
	check(cfg.Team.MaxGameplayIterations > 0, "team", "max_gameplay_iterations",
		fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, cfg.Team.MaxGameplayIterations))
	check(cfg.Team.ThinkingBudget >= 0, "team", "thinking_budget",
		fmt.Errorf("%w: must not be negative, got %d", ErrInvalidValue, cfg.Team.ThinkingBudget))
	check(cfg.LLM.BaseURL != "", "llm", "base_url", ErrMissingRequiredField)
	check(cfg.LLM.Timeout > 0, "llm", "timeout",
		fmt.Errorf("%w: must be positive, got %s", ErrInvalidValue, cfg.LLM.Timeout))
	check(cfg.Chat.DefaultUser != "", "chat", "default_user", ErrMissingRequiredField)
	check(cfg.Chat.RunTimeout > 0, "chat", "run_timeout",
		fmt.Errorf("%w: must be positive, got %s", ErrInvalidValue, cfg.Chat.RunTimeout))
	check(cfg.Retention.SessionRetentionDays >= 0, "retention", "session_retention_days",
		fmt.Errorf("%w: must not be negative, got %d", ErrInvalidValue, cfg.Retention.SessionRetentionDays))
	check(cfg.Retention.EmptySessionTTL >= 0, "retention", "empty_session_ttl",
		fmt.Errorf("%w: must not be negative, got %s", ErrInvalidValue, cfg.Retention.EmptySessionTTL))

	return errors.Join(errs...)
}
