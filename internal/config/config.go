// Package config provides YAML-based configuration loading for switchboard.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/zulandar/switchboard/internal/models"
)

// Config is the top-level configuration, loaded from switchboard.yaml.
type Config struct {
	Server        ServerConfig    `yaml:"server"`
	Database      DatabaseConfig  `yaml:"database"`
	Queue         QueueConfig     `yaml:"queue"`
	Agents        AgentsConfig    `yaml:"agents"`
	Bot           BotConfig       `yaml:"bot"`
	KnowledgeBase KBConfig        `yaml:"knowledge_base"`
	Notify        NotifyConfig    `yaml:"notify"`
	Redis         RedisConfig     `yaml:"redis"`
	Schedule      ScheduleConfig  `yaml:"schedule"`
	Retention     RetentionConfig `yaml:"retention"`
	Log           LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// SendBuffer is the per-connection outbound event buffer.
	SendBuffer int `yaml:"send_buffer"`
}

// DatabaseConfig selects and configures the journal database.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" or "mysql"
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// QueueConfig holds queue settings.
type QueueConfig struct {
	DefaultPriority string `yaml:"default_priority"`
}

// AgentsConfig holds agent settings.
type AgentsConfig struct {
	MaxSessions int `yaml:"max_sessions"`
}

// BotConfig configures the automated responder.
type BotConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Timeout            time.Duration `yaml:"timeout"`
	EscalationKeywords []string      `yaml:"escalation_keywords"`
	Greeting           string        `yaml:"greeting"`
	MinSimilarity      float64       `yaml:"min_similarity"`
	SearchLimit        int           `yaml:"search_limit"`
	MaxMisses          int           `yaml:"max_misses"`
	Fallback           string        `yaml:"fallback"`
}

// KBConfig points at the knowledge-base service.
type KBConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// NotifyConfig enables waiting-customer alerts.
type NotifyConfig struct {
	SlackToken     string `yaml:"slack_token"`
	SlackChannel   string `yaml:"slack_channel"`
	DiscordToken   string `yaml:"discord_token"`
	DiscordChannel string `yaml:"discord_channel"`
	DashboardURL   string `yaml:"dashboard_url"`
}

// RedisConfig enables the event mirror when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

// ScheduleConfig holds cron specs for periodic jobs. Empty disables a job.
type ScheduleConfig struct {
	Stats string `yaml:"stats"`
	Prune string `yaml:"prune"`
}

// RetentionConfig controls how long closed sessions stay in memory.
type RetentionConfig struct {
	ClosedSessions time.Duration `yaml:"closed_sessions"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "auto", "console" or "json"
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.SendBuffer == 0 {
		c.Server.SendBuffer = 64
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "switchboard.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" {
			c.Database.Name = "switchboard"
		}
	}
	if c.Queue.DefaultPriority == "" {
		c.Queue.DefaultPriority = string(models.PriorityNormal)
	}
	if c.Bot.Timeout == 0 {
		c.Bot.Timeout = 15 * time.Second
	}
	if c.Bot.SearchLimit == 0 {
		c.Bot.SearchLimit = 3
	}
	if c.Bot.MinSimilarity == 0 {
		c.Bot.MinSimilarity = 0.5
	}
	if c.KnowledgeBase.Timeout == 0 {
		c.KnowledgeBase.Timeout = 10 * time.Second
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "switchboard:events"
	}
	if c.Schedule.Stats == "" {
		c.Schedule.Stats = "@every 30s"
	}
	if c.Schedule.Prune == "" {
		c.Schedule.Prune = "@hourly"
	}
	if c.Retention.ClosedSessions == 0 {
		c.Retention.ClosedSessions = 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "auto"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.SendBuffer < 0 {
		errs = append(errs, "server.send_buffer must not be negative")
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite or mysql", c.Database.Driver))
	}
	if p, ok := models.ParsePriority(c.Queue.DefaultPriority); !ok || string(p) != c.Queue.DefaultPriority {
		errs = append(errs, fmt.Sprintf("queue.default_priority %q must be high, normal or low", c.Queue.DefaultPriority))
	}
	if c.Agents.MaxSessions < 0 {
		errs = append(errs, "agents.max_sessions must not be negative")
	}
	if c.Bot.MinSimilarity < 0 || c.Bot.MinSimilarity > 1 {
		errs = append(errs, "bot.min_similarity must be between 0 and 1")
	}
	if c.Bot.MaxMisses < 0 {
		errs = append(errs, "bot.max_misses must not be negative")
	}
	if (c.Notify.SlackToken == "") != (c.Notify.SlackChannel == "") {
		errs = append(errs, "notify.slack_token and notify.slack_channel must be set together")
	}
	if (c.Notify.DiscordToken == "") != (c.Notify.DiscordChannel == "") {
		errs = append(errs, "notify.discord_token and notify.discord_channel must be set together")
	}
	for _, job := range []struct{ name, spec string }{
		{"schedule.stats", c.Schedule.Stats},
		{"schedule.prune", c.Schedule.Prune},
	} {
		if job.spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(job.spec); err != nil {
			errs = append(errs, fmt.Sprintf("%s %q: %v", job.name, job.spec, err))
		}
	}
	if c.Retention.ClosedSessions < 0 {
		errs = append(errs, "retention.closed_sessions must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "auto", "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be auto, console or json", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
