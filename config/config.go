package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/wricardo/mindmeld/game/engine"
	"github.com/wricardo/mindmeld/game/session"
)

// EnvPrefix is prepended to every environment variable the config reads,
// e.g. MINDMELD_SERVER_PORT or MINDMELD_GAME_LATE_JOIN.
const EnvPrefix = "MINDMELD_"

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete server configuration.
type Config struct {
	Debug  bool         `yaml:"debug" env:"DEBUG"`
	Server ServerConfig `yaml:"server" envPrefix:"SERVER_"`
	Game   GameConfig   `yaml:"game" envPrefix:"GAME_"`
	Log    LogConfig    `yaml:"log" envPrefix:"LOG_"`
	Ngrok  NgrokConfig  `yaml:"ngrok" envPrefix:"NGROK_"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// AllowedOrigins restricts WebSocket upgrades. Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// GameConfig holds the session rules. Zero limits fall back to the engine
// defaults; a zero timeout disables that timeout.
type GameConfig struct {
	MaxPlayers      int           `yaml:"max_players" env:"MAX_PLAYERS"`
	LateJoin        bool          `yaml:"late_join" env:"LATE_JOIN"`
	MaxAnswerLength int           `yaml:"max_answer_length" env:"MAX_ANSWER_LENGTH"`
	MaxCodeAttempts int           `yaml:"max_code_attempts" env:"MAX_CODE_ATTEMPTS"`
	LobbyTimeout    time.Duration `yaml:"lobby_timeout" env:"LOBBY_TIMEOUT"`
	PhaseTimeout    time.Duration `yaml:"phase_timeout" env:"PHASE_TIMEOUT"`
	FinishedGrace   time.Duration `yaml:"finished_grace" env:"FINISHED_GRACE"`
	ReapInterval    time.Duration `yaml:"reap_interval" env:"REAP_INTERVAL"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	File   string `yaml:"file" env:"FILE"`
}

type NgrokConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	AuthToken string `yaml:"auth_token" env:"AUTHTOKEN"`
	Domain    string `yaml:"domain" env:"DOMAIN"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	rules := engine.DefaultRules()
	timeouts := session.DefaultTimeouts()
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            3001,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Game: GameConfig{
			MaxPlayers:      rules.MaxPlayers,
			LateJoin:        rules.LateJoin,
			MaxAnswerLength: rules.MaxAnswerLength,
			MaxCodeAttempts: session.DefaultMaxCodeAttempts,
			LobbyTimeout:    timeouts.Lobby,
			PhaseTimeout:    timeouts.Phase,
			FinishedGrace:   timeouts.Finished,
			ReapInterval:    session.DefaultReapInterval,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds a Config from defaults, then the YAML file at path (skipped
// when path is empty), then MINDMELD_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseEnv overlays MINDMELD_* environment variables onto target.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if err := c.Rules().Validate(); err != nil {
		return fmt.Errorf("%w: game: %v", ErrInvalidConfig, err)
	}
	if c.Game.MaxCodeAttempts < 0 {
		return fmt.Errorf("%w: game.max_code_attempts must not be negative", ErrInvalidConfig)
	}
	for name, d := range map[string]time.Duration{
		"game.lobby_timeout":  c.Game.LobbyTimeout,
		"game.phase_timeout":  c.Game.PhaseTimeout,
		"game.finished_grace": c.Game.FinishedGrace,
		"game.reap_interval":  c.Game.ReapInterval,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, name)
		}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// Addr is the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Rules converts the game section into engine rules.
func (c *Config) Rules() engine.Rules {
	return engine.Rules{
		MaxPlayers:      c.Game.MaxPlayers,
		LateJoin:        c.Game.LateJoin,
		MaxAnswerLength: c.Game.MaxAnswerLength,
	}
}

// Timeouts converts the game section into registry timeouts.
func (c *Config) Timeouts() session.Timeouts {
	return session.Timeouts{
		Lobby:    c.Game.LobbyTimeout,
		Phase:    c.Game.PhaseTimeout,
		Finished: c.Game.FinishedGrace,
	}
}
