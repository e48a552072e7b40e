package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/zulandar/switchboard/internal/agent"
	"github.com/zulandar/switchboard/internal/bot"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/desk"
	"github.com/zulandar/switchboard/internal/events"
	"github.com/zulandar/switchboard/internal/journal"
	"github.com/zulandar/switchboard/internal/kb"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/notify"
	"github.com/zulandar/switchboard/internal/queue"
	"github.com/zulandar/switchboard/internal/router"
	"github.com/zulandar/switchboard/internal/schedule"
	"github.com/zulandar/switchboard/internal/server"
	"github.com/zulandar/switchboard/internal/session"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the support coordinator",
		Long: `Starts the websocket, dashboard and REST server.

Open sessions and agents are restored from the journal on startup, so a
restart keeps the queue and assignments intact.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

// app is the wired coordinator.
type app struct {
	desk   *desk.Desk
	hub    *events.Hub
	router *router.Router
	sched  *schedule.Scheduler
	mirror *events.RedisMirror
}

// buildApp wires every component from cfg and restores journaled state.
func buildApp(cfg *config.Config, gormDB *gorm.DB, logger zerolog.Logger) (*app, error) {
	j := journal.New(gormDB, logger)

	a := &app{}
	var mirror events.Mirror
	if cfg.Redis.Addr != "" {
		m, err := events.NewRedisMirror(events.RedisMirrorOpts{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Redis.Stream,
			MaxLen:   cfg.Redis.MaxLen,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		a.mirror = m
		mirror = m
	}
	a.hub = events.NewHub(events.HubOpts{Logger: logger, Mirror: mirror})

	var kbClient *kb.Client
	if cfg.KnowledgeBase.URL != "" {
		c, err := kb.New(kb.ClientOpts{
			BaseURL: cfg.KnowledgeBase.URL,
			Token:   cfg.KnowledgeBase.Token,
			Timeout: cfg.KnowledgeBase.Timeout,
		})
		if err != nil {
			return nil, err
		}
		kbClient = c
	}

	notifier, err := buildNotifier(cfg.Notify, logger)
	if err != nil {
		return nil, err
	}

	deskOpts := desk.Opts{
		Sessions:  session.NewStore(session.StoreOpts{Journal: j}),
		Queue:     queue.New(),
		Agents:    agent.NewRegistry(agent.RegistryOpts{Journal: j, MaxSessions: cfg.Agents.MaxSessions}),
		Publisher: a.hub,
		Logger:    logger,
	}
	if cfg.Bot.Enabled {
		deskOpts.Greeting = cfg.Bot.Greeting
	}
	if notifier.Enabled() {
		deskOpts.Notifier = notifier
	}
	if kbClient != nil {
		deskOpts.Knowledge = kbClient
	}
	a.desk = desk.New(deskOpts)

	sessions, agents, err := j.LoadOpen()
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	a.desk.Restore(sessions, agents)

	priority, _ := models.ParsePriority(cfg.Queue.DefaultPriority)
	a.router = router.New(router.Opts{
		Desk:            a.desk,
		Hub:             a.hub,
		Responder:       buildResponder(cfg.Bot, kbClient, logger),
		Detector:        bot.NewDetector(cfg.Bot.EscalationKeywords),
		BotTimeout:      cfg.Bot.Timeout,
		DefaultPriority: priority,
		Logger:          logger,
	})

	a.sched, err = schedule.New(schedule.Opts{
		Desk:      a.desk,
		Stats:     cfg.Schedule.Stats,
		Prune:     cfg.Schedule.Prune,
		Retention: cfg.Retention.ClosedSessions,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// buildResponder returns nil when the bot is disabled, the knowledge-base
// responder when a knowledge base is configured, and Echo otherwise.
func buildResponder(cfg config.BotConfig, kbClient *kb.Client, logger zerolog.Logger) bot.Responder {
	if !cfg.Enabled {
		return nil
	}
	if kbClient == nil {
		return bot.Echo
	}
	return bot.NewKnowledgeResponder(bot.KnowledgeOpts{
		Searcher:      kbClient,
		MinSimilarity: cfg.MinSimilarity,
		SearchLimit:   cfg.SearchLimit,
		MaxMisses:     cfg.MaxMisses,
		Fallback:      cfg.Fallback,
		Logger:        logger,
	})
}

func buildNotifier(cfg config.NotifyConfig, logger zerolog.Logger) (*notify.Notifier, error) {
	var channels []notify.Channel
	if cfg.SlackToken != "" {
		s, err := notify.NewSlack(notify.SlackOpts{BotToken: cfg.SlackToken, ChannelID: cfg.SlackChannel})
		if err != nil {
			return nil, err
		}
		channels = append(channels, s)
	}
	if cfg.DiscordToken != "" {
		d, err := notify.NewDiscord(notify.DiscordOpts{BotToken: cfg.DiscordToken, ChannelID: cfg.DiscordChannel})
		if err != nil {
			return nil, err
		}
		channels = append(channels, d)
	}
	return notify.New(notify.Opts{Channels: channels, DashboardURL: cfg.DashboardURL, Logger: logger}), nil
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	logger := newLogger(cfg.Log, os.Stderr)

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	a, err := buildApp(cfg, gormDB, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if a.mirror != nil {
		defer a.mirror.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.mirror.Run(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.sched.Run(ctx)
	}()

	err = server.Start(ctx, server.StartOpts{
		Desk:           a.desk,
		Hub:            a.hub,
		Router:         a.router,
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SendBuffer:     cfg.Server.SendBuffer,
		Logger:         logger,
		Out:            cmd.OutOrStdout(),
	})
	// A listener failure must still stop the background loops.
	stop()
	wg.Wait()
	a.router.Wait()
	if err == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Switchboard stopped.")
	}
	return err
}
