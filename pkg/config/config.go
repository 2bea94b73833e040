package config

import "time"

// ConfigFile is the optional YAML file read from the config directory.
const ConfigFile = "design-team.yaml"

// DefaultWelcomeMessage greets the user when a chat starts.
const DefaultWelcomeMessage = "Your personal **Game Design Team**, here to help! \n\nTo get started, *describe your game idea.*"

// Config is the resolved, validated configuration.
type Config struct {
	configDir string

	AppName          string
	Team             *TeamConfig
	LLM              *LLMConfig
	Chat             *ChatConfig
	Retention        *RetentionConfig
	AllowedWSOrigins []string
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }

// TeamConfig selects the models behind the design team.
type TeamConfig struct {
	WorkerModel           string `yaml:"worker_model"`
	DesignerModel         string `yaml:"designer_model"`
	MaxGameplayIterations int    `yaml:"max_gameplay_iterations"`
	ThinkingBudget        int    `yaml:"thinking_budget"`
	SynthesizePlan        bool   `yaml:"synthesize_plan"`
}

// LLMConfig configures the Gemini REST client.
type LLMConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries uint64        `yaml:"max_retries"`
}

// ChatConfig configures the live chat surface.
type ChatConfig struct {
	DefaultUser    string        `yaml:"default_user"`
	WelcomeMessage string        `yaml:"welcome_message"`
	RunTimeout     time.Duration `yaml:"run_timeout"`
}

// RetentionConfig controls the cleanup loop.
type RetentionConfig struct {
	// SessionRetentionDays deletes sessions not updated for this many days.
	// Zero keeps sessions forever.
	SessionRetentionDays int

	// EmptySessionTTL deletes sessions that never received an event once
	// they are this old. Zero disables.
	EmptySessionTTL time.Duration

	CleanupInterval time.Duration
}

// DefaultTeamConfig returns the built-in model selection.
func DefaultTeamConfig() *TeamConfig {
	return &TeamConfig{
		WorkerModel:           "gemini-2.0-flash",
		DesignerModel:         "gemini-2.5-pro",
		MaxGameplayIterations: 5,
		ThinkingBudget:        1024,
	}
}

// DefaultLLMConfig returns the built-in client settings.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		BaseURL:    "https://generativelanguage.googleapis.com",
		Timeout:    5 * time.Minute,
		MaxRetries: 3,
	}
}

// DefaultChatConfig returns the built-in chat settings.
func DefaultChatConfig() *ChatConfig {
	return &ChatConfig{
		DefaultUser:    "default_user",
		WelcomeMessage: DefaultWelcomeMessage,
		RunTimeout:     30 * time.Minute,
	}
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		SessionRetentionDays: 0,
		EmptySessionTTL:      24 * time.Hour,
		CleanupInterval:      1 * time.Hour,
	}
}

// DefaultAppName is the application name sessions are stored under.
const DefaultAppName = "game_design_team_app"
