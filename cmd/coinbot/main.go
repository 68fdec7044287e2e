package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coinbot/internal/api"
	"coinbot/internal/bot"
	"coinbot/internal/config"
	"coinbot/internal/db"
	"coinbot/internal/economy"
	"coinbot/internal/journal"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadBotFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	var sink journal.Sink = journal.LogSink{Log: logger.With("component", "journal")}
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		store := db.NewEntryStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Error("journal schema failed", "err", err)
			os.Exit(1)
		}
		sink = store
	}
	writer := journal.NewWriter(sink, logger, cfg.JournalBuffer)

	var (
		session *discordgo.Session
		roles   *bot.RoleGranter
	)
	opts := cfg.Economy.EngineOptions()
	opts.Logger = logger
	opts.Journal = writer
	if cfg.DiscordToken != "" {
		session, err = discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			logger.Error("discord session failed", "err", err)
			os.Exit(1)
		}
		roles = bot.NewRoleGranter(session, cfg.GuildID, cfg.RichRoleID, logger)
		opts.Sink = roles
	}

	engine, err := economy.NewEngine(opts)
	if err != nil {
		logger.Error("engine init failed", "err", err)
		os.Exit(1)
	}
	scheduler, err := economy.NewAccrualScheduler(engine, cfg.Economy.AccrualEvery, cfg.Economy.AccrualRate)
	if err != nil {
		logger.Error("accrual init failed", "err", err)
		os.Exit(1)
	}

	// The journal outlives the other components so it can flush their
	// last entries.
	writerCtx, stopWriter := context.WithCancel(context.Background())
	writerDone := make(chan error, 1)
	go func() { writerDone <- writer.Run(writerCtx) }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })

	if session != nil {
		b := bot.New(session, engine, roles, cfg.GuildID, logger)
		g.Go(func() error { return b.Run(gctx) })
	}

	if cfg.APIAddr != "" {
		server := api.New(cfg, logger, engine)
		httpServer := &http.Server{
			Addr:              cfg.APIAddr,
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			go func() {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				_ = httpServer.Shutdown(shutdownCtx)
			}()
			logger.Info("coinbot api listening", "addr", cfg.APIAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	runErr := g.Wait()
	engine.Achievements().Wait()
	stopWriter()
	if err := <-writerDone; err != nil {
		logger.Error("journal writer failed", "err", err)
	}
	if dropped := writer.Dropped(); dropped > 0 {
		logger.Warn("journal entries dropped", "count", dropped)
	}
	if runErr != nil {
		logger.Error("coinbot stopped", "err", runErr)
		os.Exit(1)
	}
	logger.Info("coinbot shutdown")
}
