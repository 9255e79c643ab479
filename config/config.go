package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// WhatsApp configuration
	WhatsApp WhatsAppConfig `json:"whatsapp" mapstructure:"whatsapp"`

	// Game configuration
	Game GameConfig `json:"game" mapstructure:"game"`

	// Server configuration
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Narration configuration
	Narration NarrationConfig `json:"narration" mapstructure:"narration"`

	// Telemetry configuration
	Telemetry TelemetryConfig `json:"telemetry" mapstructure:"telemetry"`
}

// WhatsAppConfig holds WhatsApp specific configuration
type WhatsAppConfig struct {
	// Path to store WhatsApp session data
	StoreDir string `json:"store_dir" mapstructure:"store_dir"`

	// Client device name
	ClientName string `json:"client_name" mapstructure:"client_name"`

	// Prefix that marks a chat message as a game command
	CommandPrefix string `json:"command_prefix" mapstructure:"command_prefix"`
}

// GameConfig holds game rule configuration
type GameConfig struct {
	// Phase durations in seconds
	NightDuration      int `json:"night_duration" mapstructure:"night_duration"`
	DiscussionDuration int `json:"discussion_duration" mapstructure:"discussion_duration"`
	VotingDuration     int `json:"voting_duration" mapstructure:"voting_duration"`

	// Minimum players for a manual start
	MinPlayers int `json:"min_players" mapstructure:"min_players"`

	// Population that triggers the auto-start countdown
	AutoStartPlayers int `json:"auto_start_players" mapstructure:"auto_start_players"`

	// Auto-start countdown in seconds, 0 disables it
	AutoStartCountdown int `json:"auto_start_countdown" mapstructure:"auto_start_countdown"`

	// Maximum simulated players per lobby
	MaxBots int `json:"max_bots" mapstructure:"max_bots"`

	// Driver poll interval in milliseconds
	PollInterval int `json:"poll_interval" mapstructure:"poll_interval"`

	// Event log lines kept and shown
	LogLimit int `json:"log_limit" mapstructure:"log_limit"`
	LogView  int `json:"log_view" mapstructure:"log_view"`

	// Per-night probabilities
	RumorChance float64 `json:"rumor_chance" mapstructure:"rumor_chance"`
	FrameChance float64 `json:"frame_chance" mapstructure:"frame_chance"`

	// Chance a bot follows its own suspicion instead of acting at random
	BotBias float64 `json:"bot_bias" mapstructure:"bot_bias"`

	// How deaths feed back into suspicion: legacy or voters
	VindicationMode string `json:"vindication_mode" mapstructure:"vindication_mode"`
}

// ServerConfig holds server specific configuration
type ServerConfig struct {
	// Server port
	Port string `json:"port" mapstructure:"port"`

	// Log level (debug, info, warn, error)
	LogLevel string `json:"log_level" mapstructure:"log_level"`

	// Requests per second allowed per client, and burst size
	RateLimit      float64 `json:"rate_limit" mapstructure:"rate_limit"`
	RateLimitBurst int     `json:"rate_limit_burst" mapstructure:"rate_limit_burst"`

	// Request timeout in seconds
	RequestTimeout int `json:"request_timeout" mapstructure:"request_timeout"`
}

// NarrationConfig holds the optional flavor text generator settings
type NarrationConfig struct {
	APIKey       string `json:"api_key" mapstructure:"api_key"`
	BaseURL      string `json:"base_url" mapstructure:"base_url"`
	Model        string `json:"model" mapstructure:"model"`
	Timeout      int    `json:"timeout" mapstructure:"timeout"`
	MaxPerMinute int    `json:"max_per_minute" mapstructure:"max_per_minute"`
}

// TelemetryConfig holds tracing settings. Tracing is off without an endpoint.
type TelemetryConfig struct {
	Endpoint    string `json:"endpoint" mapstructure:"endpoint"`
	ServiceName string `json:"service_name" mapstructure:"service_name"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		WhatsApp: WhatsAppConfig{
			StoreDir:      "./whatsapp-store",
			ClientName:    "MAFIA",
			CommandPrefix: "/",
		},
		Game: GameConfig{
			NightDuration:      30,
			DiscussionDuration: 180,
			VotingDuration:     30,
			MinPlayers:         3,
			AutoStartPlayers:   5,
			AutoStartCountdown: 30,
			MaxBots:            5,
			PollInterval:       1000,
			LogLimit:           8,
			LogView:            5,
			RumorChance:        0.3,
			FrameChance:        0.4,
			BotBias:            0.6,
			VindicationMode:    "legacy",
		},
		Server: ServerConfig{
			Port:           "8080",
			LogLevel:       "info",
			RateLimit:      5,
			RateLimitBurst: 10,
			RequestTimeout: 60,
		},
		Narration: NarrationConfig{
			BaseURL:      "https://api.anthropic.com/v1/messages",
			Model:        "claude-haiku-4-5-20251001",
			Timeout:      5,
			MaxPerMinute: 20,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "mafia-suspicion",
		},
	}
}

// Validate checks values the game cannot run with
func (c Config) Validate() error {
	g := c.Game
	if g.NightDuration <= 0 || g.DiscussionDuration <= 0 || g.VotingDuration <= 0 {
		return errors.New("phase durations must be positive")
	}
	if g.MinPlayers < 3 {
		return fmt.Errorf("min_players must be at least 3, got %d", g.MinPlayers)
	}
	if g.MaxBots < 0 || g.MaxBots > 5 {
		return fmt.Errorf("max_bots must be between 0 and 5, got %d", g.MaxBots)
	}
	if g.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	switch g.VindicationMode {
	case "legacy", "voters":
	default:
		return fmt.Errorf("unknown vindication_mode %q", g.VindicationMode)
	}
	if c.Server.Port == "" {
		return errors.New("server port must be set")
	}
	return nil
}

// LoadConfig loads configuration from a JSON file with MAFIA_* environment
// overrides. A missing file is created from the defaults.
func LoadConfig(path string) (Config, error) {
	defaults := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := SaveConfig(defaults, path); err != nil {
			return defaults, err
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("MAFIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, defaults)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return defaults, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return defaults, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("whatsapp.store_dir", d.WhatsApp.StoreDir)
	v.SetDefault("whatsapp.client_name", d.WhatsApp.ClientName)
	v.SetDefault("whatsapp.command_prefix", d.WhatsApp.CommandPrefix)

	v.SetDefault("game.night_duration", d.Game.NightDuration)
	v.SetDefault("game.discussion_duration", d.Game.DiscussionDuration)
	v.SetDefault("game.voting_duration", d.Game.VotingDuration)
	v.SetDefault("game.min_players", d.Game.MinPlayers)
	v.SetDefault("game.auto_start_players", d.Game.AutoStartPlayers)
	v.SetDefault("game.auto_start_countdown", d.Game.AutoStartCountdown)
	v.SetDefault("game.max_bots", d.Game.MaxBots)
	v.SetDefault("game.poll_interval", d.Game.PollInterval)
	v.SetDefault("game.log_limit", d.Game.LogLimit)
	v.SetDefault("game.log_view", d.Game.LogView)
	v.SetDefault("game.rumor_chance", d.Game.RumorChance)
	v.SetDefault("game.frame_chance", d.Game.FrameChance)
	v.SetDefault("game.bot_bias", d.Game.BotBias)
	v.SetDefault("game.vindication_mode", d.Game.VindicationMode)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.rate_limit_burst", d.Server.RateLimitBurst)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)

	v.SetDefault("narration.api_key", d.Narration.APIKey)
	v.SetDefault("narration.base_url", d.Narration.BaseURL)
	v.SetDefault("narration.model", d.Narration.Model)
	v.SetDefault("narration.timeout", d.Narration.Timeout)
	v.SetDefault("narration.max_per_minute", d.Narration.MaxPerMinute)

	v.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
	v.SetDefault("telemetry.service_name", d.Telemetry.ServiceName)
}

// SaveConfig saves configuration to a file
func SaveConfig(config Config, path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(config)
}
