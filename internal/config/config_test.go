package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_Empty_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.SendBuffer != 64 {
		t.Errorf("Server.SendBuffer = %d, want 64", cfg.Server.SendBuffer)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != "switchboard.db" {
		t.Errorf("Database = %+v, want sqlite switchboard.db", cfg.Database)
	}
	if cfg.Queue.DefaultPriority != "normal" {
		t.Errorf("Queue.DefaultPriority = %q, want %q", cfg.Queue.DefaultPriority, "normal")
	}
	if cfg.Bot.Timeout != 15*time.Second {
		t.Errorf("Bot.Timeout = %v, want 15s", cfg.Bot.Timeout)
	}
	if cfg.Schedule.Stats != "@every 30s" || cfg.Schedule.Prune != "@hourly" {
		t.Errorf("Schedule = %+v", cfg.Schedule)
	}
	if cfg.Retention.ClosedSessions != 24*time.Hour {
		t.Errorf("Retention.ClosedSessions = %v, want 24h", cfg.Retention.ClosedSessions)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("Redis.Addr = %q, want empty", cfg.Redis.Addr)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "auto" {
		t.Errorf("Log = %+v, want info/auto", cfg.Log)
	}
}

func TestParse_MySQLDefaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  driver: mysql\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db := cfg.Database
	if db.Host != "127.0.0.1" || db.Port != 3306 || db.User != "root" || db.Name != "switchboard" {
		t.Errorf("Database = %+v", db)
	}
	if db.Path != "" {
		t.Errorf("Database.Path = %q, want empty for mysql", db.Path)
	}
}

func TestLoad_FullFixture(t *testing.T) {
	cfg, err := Load("testdata/valid_full.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("len(AllowedOrigins) = %d, want 1", len(cfg.Server.AllowedOrigins))
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 3307 {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Queue.DefaultPriority != "low" {
		t.Errorf("Queue.DefaultPriority = %q, want low", cfg.Queue.DefaultPriority)
	}
	if cfg.Agents.MaxSessions != 4 {
		t.Errorf("Agents.MaxSessions = %d, want 4", cfg.Agents.MaxSessions)
	}
	if cfg.Bot.Timeout != 5*time.Second {
		t.Errorf("Bot.Timeout = %v, want 5s", cfg.Bot.Timeout)
	}
	if len(cfg.Bot.EscalationKeywords) != 2 || cfg.Bot.EscalationKeywords[1] != "supervisor" {
		t.Errorf("Bot.EscalationKeywords = %v", cfg.Bot.EscalationKeywords)
	}
	if cfg.Bot.MinSimilarity != 0.7 || cfg.Bot.MaxMisses != 2 {
		t.Errorf("Bot = %+v", cfg.Bot)
	}
	if cfg.KnowledgeBase.Timeout != 3*time.Second {
		t.Errorf("KnowledgeBase.Timeout = %v, want 3s", cfg.KnowledgeBase.Timeout)
	}
	if cfg.Redis.Stream != "support:events" || cfg.Redis.MaxLen != 10000 {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.Retention.ClosedSessions != 72*time.Hour {
		t.Errorf("Retention.ClosedSessions = %v, want 72h", cfg.Retention.ClosedSessions)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad driver", "database:\n  driver: postgres\n", "database.driver"},
		{"bad priority", "queue:\n  default_priority: urgent\n", "queue.default_priority"},
		{"negative max sessions", "agents:\n  max_sessions: -1\n", "agents.max_sessions"},
		{"similarity out of range", "bot:\n  min_similarity: 1.5\n", "bot.min_similarity"},
		{"slack without channel", "notify:\n  slack_token: xoxb\n", "notify.slack_token"},
		{"discord without token", "notify:\n  discord_channel: \"123\"\n", "notify.discord_token"},
		{"bad cron", "schedule:\n  prune: \"61 * * * *\"\n", "schedule.prune"},
		{"bad log level", "log:\n  level: loud\n", "log.level"},
		{"bad log format", "log:\n  format: xml\n", "log.format"},
		{"bad port", "server:\n  port: 70000\n", "server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestParse_MultipleValidationErrors(t *testing.T) {
	_, err := Parse([]byte("database:\n  driver: oracle\nlog:\n  level: loud\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "database.driver") || !strings.Contains(msg, "log.level") {
		t.Errorf("error = %q, want both problems reported", msg)
	}
	if !strings.HasPrefix(msg, "config: validation failed:") {
		t.Errorf("error = %q, want validation prefix", msg)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte(":::invalid"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "config: parse:") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: parse:")
	}
}

func TestParse_BadDuration(t *testing.T) {
	if _, err := Parse([]byte("bot:\n  timeout: soon\n")); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "switchboard.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7000\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/switchboard.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: read")
	}
}

func TestLoad_InvalidScheduleFixture(t *testing.T) {
	_, err := Load("testdata/invalid_schedule.yaml")
	if err == nil || !strings.Contains(err.Error(), "schedule.stats") {
		t.Errorf("err = %v, want schedule.stats error", err)
	}
}
