package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/tally-server/internal/api"
	"github.com/rongwang/tally-server/internal/auth"
	"github.com/rongwang/tally-server/internal/changefeed"
	"github.com/rongwang/tally-server/internal/config"
	"github.com/rongwang/tally-server/internal/procedure"
	"github.com/rongwang/tally-server/internal/repository"
	"github.com/rongwang/tally-server/internal/service"
	"github.com/rongwang/tally-server/internal/utils"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	*rootOptions
	Memory bool
}

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &serveOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the RPC server",
		Long: `Start the RPC server.

By default the server stores everything in PostgreSQL, creating the schema
on startup. With --memory it keeps everything in process and forgets it on
exit.

Example:
  tally-server serve
  tally-server serve --config ./tally.yaml
  tally-server serve --memory`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Memory, "memory", false, "use the in-memory store instead of PostgreSQL")

	return cmd
}

func runServer(ctx context.Context, opts *serveOptions) error {
	// Load configuration
	cfg, err := opts.load()
	if err != nil {
		return err
	}

	logger := utils.NewLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	// Create repository
	var repo repository.Repository
	if opts.Memory {
		logger.Warn("using in-memory store; data is lost on exit")
		repo = repository.NewMemoryRepository()
	} else {
		// Set up database connection
		db, err := config.SetupDatabase(cfg)
		if err != nil {
			return fmt.Errorf("failed to set up database: %w", err)
		}
		defer db.Close()

		repo = repository.NewPostgresRepository(db)
	}

	// Change feed
	var feed changefeed.Publisher = changefeed.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		feed = changefeed.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		logger.Info("publishing changes", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	defer func() {
		if err := feed.Close(); err != nil {
			logger.Warn("failed to close change feed", "error", err)
		}
	}()

	// Create service
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	svc := service.NewDefaultService(repo, tokens, feed, logger)

	// Create API handler
	handler := api.NewHandler(svc, tokens, procedure.NewBuilder(repo, logger), logger)

	// Set up Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler.SetupRoutes(router)

	// Start server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
