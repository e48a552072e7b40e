package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/zulandar/switchboard/internal/bot"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/journal"
	"github.com/zulandar/switchboard/internal/kb"
	"github.com/zulandar/switchboard/internal/models"
)

// writeConfig writes a sqlite-backed config into a temp dir and returns
// its path and the database path.
func writeConfig(t *testing.T, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sb.db")
	body := "database:\n  driver: sqlite\n  path: " + dbPath + "\n" + extra
	path := filepath.Join(dir, "switchboard.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, dbPath
}

func openDB(t *testing.T, path string) *gorm.DB {
	t.Helper()
	gormDB, err := db.Connect(config.DatabaseConfig{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { db.Close(gormDB) })
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return gormDB
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestServeCmd_Help(t *testing.T) {
	out, err := run(t, "serve", "--help")
	if err != nil {
		t.Fatalf("serve --help failed: %v", err)
	}
	if !strings.Contains(out, "--config") || !strings.Contains(out, "switchboard.yaml") {
		t.Errorf("expected help to mention --config default, got: %s", out)
	}
	if !strings.Contains(out, "--port") {
		t.Errorf("expected help to mention --port, got: %s", out)
	}
}

func TestServeCmd_MissingConfig(t *testing.T) {
	_, err := run(t, "serve", "--config", "/nonexistent/switchboard.yaml")
	if err == nil {
		t.Fatal("expected error for missing config")
	}
	if !strings.Contains(err.Error(), "load config") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "load config")
	}
}

func TestDBMigrateCmd(t *testing.T) {
	path, _ := writeConfig(t, "")
	out, err := run(t, "db", "migrate", "--config", path)
	if err != nil {
		t.Fatalf("db migrate failed: %v", err)
	}
	if !strings.Contains(out, "Migrated 3 tables") {
		t.Errorf("expected 'Migrated 3 tables', got: %s", out)
	}
}

func TestTranscriptCmd(t *testing.T) {
	path, dbPath := writeConfig(t, "")
	j := journal.New(openDB(t, dbPath), zerolog.Nop())

	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	sess := &models.Session{
		ID: "s-1", CustomerID: "u-1", Status: models.StatusBot,
		Metadata:  models.Metadata{"name": "Ada"},
		CreatedAt: now, UpdatedAt: now,
	}
	if err := j.SaveSession(sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	for i, content := range []string{"hello", "how can I help?"} {
		sender := models.SenderCustomer
		if i == 1 {
			sender = models.SenderBot
		}
		m := &models.Message{
			ID: "m-" + content, SessionID: "s-1", Sequence: i + 1,
			Content: content, Sender: sender, Timestamp: now.Add(time.Duration(i) * time.Second),
		}
		if err := j.AppendMessage(m); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	out, err := run(t, "transcript", "s-1", "--config", path)
	if err != nil {
		t.Fatalf("transcript failed: %v", err)
	}
	if !strings.Contains(out, "Customer: Ada") {
		t.Errorf("expected customer name, got: %s", out)
	}
	first := strings.Index(out, "hello")
	second := strings.Index(out, "how can I help?")
	if first < 0 || second < 0 || first > second {
		t.Errorf("messages missing or out of order:\n%s", out)
	}
}

func TestTranscriptCmd_UnknownSession(t *testing.T) {
	path, dbPath := writeConfig(t, "")
	openDB(t, dbPath)
	if _, err := run(t, "transcript", "missing", "--config", path); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestBuildApp_RestoresQueue(t *testing.T) {
	gormDB := openDB(t, ":memory:")
	j := journal.New(gormDB, zerolog.Nop())

	now := time.Now().Add(-time.Minute)
	waiting := &models.Session{
		ID: "w-1", CustomerID: "u-1", Status: models.StatusWaiting,
		Priority: models.PriorityHigh, TransferReason: bot.ReasonCustomerRequest,
		QueuedAt: &now, CreatedAt: now, UpdatedAt: now,
	}
	if err := j.SaveSession(waiting); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	cfg, err := config.Parse([]byte("database:\n  driver: sqlite\n  path: \":memory:\"\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	a, err := buildApp(cfg, gormDB, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	q := a.desk.QueueView()
	if len(q) != 1 || q[0].QueueInfo.SessionID != "w-1" {
		t.Fatalf("queue = %+v, want w-1 restored", q)
	}
	if a.mirror != nil {
		t.Error("mirror set without redis.addr")
	}
	if got := a.sched.Jobs(); got != 2 {
		t.Errorf("scheduled jobs = %d, want 2", got)
	}
}

func TestBuildResponder(t *testing.T) {
	if r := buildResponder(config.BotConfig{}, nil, zerolog.Nop()); r != nil {
		t.Error("responder set with bot disabled")
	}
	if r := buildResponder(config.BotConfig{Enabled: true}, nil, zerolog.Nop()); r == nil {
		t.Error("responder nil with bot enabled")
	}
	client, err := kb.New(kb.ClientOpts{BaseURL: "http://kb.invalid"})
	if err != nil {
		t.Fatalf("kb.New: %v", err)
	}
	r := buildResponder(config.BotConfig{Enabled: true}, client, zerolog.Nop())
	if _, ok := r.(*bot.KnowledgeResponder); !ok {
		t.Errorf("responder = %T, want *bot.KnowledgeResponder", r)
	}
}

func TestBuildNotifier(t *testing.T) {
	n, err := buildNotifier(config.NotifyConfig{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildNotifier: %v", err)
	}
	if n.Enabled() {
		t.Error("notifier enabled without channels")
	}
	n, err = buildNotifier(config.NotifyConfig{SlackToken: "xoxb-1", SlackChannel: "C1"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildNotifier: %v", err)
	}
	if !n.Enabled() {
		t.Error("notifier disabled with slack configured")
	}
}

func TestUseConsole(t *testing.T) {
	var buf bytes.Buffer
	if !useConsole("console", &buf) {
		t.Error("console format should force console output")
	}
	if useConsole("json", os.Stderr) {
		t.Error("json format should disable console output")
	}
	if useConsole("auto", &buf) {
		t.Error("auto on a non-file writer should be json")
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info logged at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn not logged: %s", out)
	}
}
