package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"triagebot/internal/bus"
	"triagebot/internal/channel"
	"triagebot/internal/config"
	"triagebot/internal/handler"
	"triagebot/internal/metrics"
	"triagebot/internal/router"
	"triagebot/internal/store"

	"github.com/spf13/cobra"
)

// botStore is everything the running bot persists.
type botStore interface {
	handler.Store
	store.RouteRecorder
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and route messages",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Discord.Token == "" {
		return errors.New("discord.token is required (set it in the config file or " + config.EnvPrefix + "_DISCORD_TOKEN)")
	}
	for _, o := range cfg.Overlaps() {
		logger.Warn("overlapping channel configuration, first matching category wins", "detail", o)
	}

	// Graceful shutdown on signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := bus.NewEventBus(logger)

	var st botStore
	if cfg.Storage.Enabled {
		sqlite, err := store.NewSQLiteStore(cfg.Storage.DBPath, logger)
		if err != nil {
			return err
		}
		defer sqlite.Close()
		st = sqlite
	} else {
		logger.Warn("storage disabled, request and modmail state is kept in memory only")
		st = store.NewMemoryStore()
	}
	store.AuditRoutes(events, st, logger)

	if cfg.Metrics.Enabled {
		collector := metrics.NewMetricsCollector("triagebot")
		metrics.ObserveRouter(collector, events)
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen, collector, logger); err != nil {
				logger.Error("metrics server stopped", "err", err)
			}
		}()
	}

	discord, err := channel.NewDiscord(channel.DiscordConfig{
		Token:   cfg.Discord.Token,
		GuildID: cfg.Discord.GuildID,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	bot, err := discord.BotUser(ctx)
	if err != nil {
		return err
	}

	handlers, err := handler.New(handlerDeps(cfg, discord, st))
	if err != nil {
		return err
	}
	r, err := router.New(router.Config{
		Settings: routerSettings(cfg, bot.ID),
		Handlers: handlers,
		Fetcher:  discord,
		Events:   events,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	logger.Info("triagebot starting",
		"bot_user", bot.Username,
		"request_channels", len(cfg.Request.Channels),
		"testing_channels", len(cfg.Request.TestingRequestChannels),
		"modmail", cfg.Modmail.Enabled,
	)
	return discord.Start(ctx, r)
}

func routerSettings(cfg *config.Config, botUserID string) router.Settings {
	return router.Settings{
		BotUserID:              botUserID,
		RequestChannels:        cfg.Request.Channels,
		TestingRequestChannels: cfg.Request.TestingRequestChannels,
		InternalChannels:       cfg.InternalProgressChannels(),
		ModmailEnabled:         cfg.Modmail.Enabled,
		ModmailChannel:         cfg.Modmail.Channel,
	}
}

func handlerDeps(cfg *config.Config, sender *channel.Discord, st handler.Store) handler.Deps {
	return handler.Deps{
		Sender:           sender,
		Store:            st,
		InternalChannels: cfg.InternalChannelMap(),
		RequestLimits:    cfg.RequestLimitMap(),
		ModmailChannel:   cfg.Modmail.Channel,
		NotePrefix:       cfg.Modmail.NotePrefix,
		Commands: handler.CommandSettings{
			Prefix:         cfg.Commands.Prefix,
			TicketURL:      cfg.Commands.TicketURL,
			LinkBurst:      cfg.Commands.LinkBurst,
			LinksPerMinute: cfg.Commands.LinksPerMinute,
		},
		Logger: logger,
	}
}
