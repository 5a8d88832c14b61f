package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"w2gbot/internal/bot"
	"w2gbot/internal/config"
	"w2gbot/internal/rooms"
	"w2gbot/internal/scraper"
	"w2gbot/internal/storage"
	"w2gbot/internal/w2g"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configDir string
	cmd := &cobra.Command{
		Use:           "w2gbot",
		Short:         "Telegram bot that collects chat links into a Watch2Gether room",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configDir)
			if err != nil {
				return fmt.Errorf("error loading configuration: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configDir, "config", "./configs", "directory containing config.yaml")
	return cmd
}

func run(parent context.Context, cfg config.Config) error {
	// --- Logger Setup ---
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(cfg.Level())

	log.WithFields(logrus.Fields{
		"badgerdb_path":  cfg.BadgerDBPath,
		"w2g_api_url":    cfg.W2GAPIURL,
		"browser_scrape": cfg.BrowserScrape,
	}).Info("Configuration loaded successfully")

	// --- Initialize Components ---
	repo, err := storage.NewBadgerRepository(cfg.BadgerDBPath, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		log.Info("Closing database...")
		if err := repo.Close(); err != nil {
			log.WithError(err).Error("Error closing database")
		}
	}()

	if cfg.BadgerGCSchedule != "" {
		gc, err := repo.ScheduleGC(cfg.BadgerGCSchedule)
		if err != nil {
			return err
		}
		defer gc.Stop()
	}

	httpClient := &http.Client{Timeout: cfg.CallTimeout}
	resolvers := []scraper.Resolver{}
	if cfg.OEmbedURL != "" {
		resolvers = append(resolvers, scraper.NewOEmbedResolver("oembed", cfg.OEmbedURL, httpClient, log))
	}
	if cfg.NoEmbedURL != "" {
		resolvers = append(resolvers, scraper.NewOEmbedResolver("noembed", cfg.NoEmbedURL, httpClient, log))
	}
	resolvers = append(resolvers, scraper.NewPageResolver(httpClient, log))
	if cfg.BrowserScrape {
		resolvers = append(resolvers, scraper.NewBrowserResolver(log))
	}
	metadata := scraper.NewChain(cfg.CallTimeout, log, resolvers...)

	api := w2g.NewClient(w2g.Options{
		APIKey:  cfg.W2GAPIKey,
		BaseURL: cfg.W2GAPIURL,
		RoomURL: cfg.W2GRoomURL,
		Timeout: cfg.CallTimeout,
	}, metadata, log)
	roomService := rooms.NewService(repo, api, cfg.CallTimeout, log)

	// --- Application Startup ---
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	botHandler, err := bot.NewHandler(ctx, cfg, roomService, log)
	if err != nil {
		return fmt.Errorf("failed to initialize Telegram bot handler: %w", err)
	}

	log.Info("w2gbot is running. Press Ctrl+C to exit.")
	botHandler.Start(ctx)

	// --- Graceful Shutdown ---
	log.Info("w2gbot shut down gracefully.")
	return nil
}
