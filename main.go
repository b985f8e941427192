package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JonMunkholm/WebDbChat/internal/api"
	"github.com/JonMunkholm/WebDbChat/internal/chat"
	"github.com/JonMunkholm/WebDbChat/internal/config"
	apperrors "github.com/JonMunkholm/WebDbChat/internal/errors"
	"github.com/JonMunkholm/WebDbChat/internal/llm"
	"github.com/JonMunkholm/WebDbChat/internal/logging"
	"github.com/JonMunkholm/WebDbChat/internal/query"
	"github.com/JonMunkholm/WebDbChat/internal/schema"
)

const shutdownTimeout = 15 * time.Second

var envFile string

var rootCmd = &cobra.Command{
	Use:           "webdbchat",
	Short:         "Ask questions of a database in plain language",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.AddCommand(serveCmd(), askCmd(), schemaCmd(), connectionsCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		msg := err.Error()
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			msg = apperrors.UserMessage(err)
		}
		fmt.Fprintln(os.Stderr, "error:", msg)
		os.Exit(1)
	}
}

// app holds the wired components shared by every command.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *config.Registry
	resolver *schema.Resolver
	executor *query.Executor
}

func newApp() (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindConfig, "Invalid logging configuration")
	}
	registry, err := config.LoadRegistry(cfg, nil)
	if err != nil {
		return nil, err
	}

	introspector := schema.NewIntrospector(nil, cfg.SchemaIntrospectTimeout, logger)
	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		resolver: schema.NewResolver(introspector, schema.NewMemoryStore(), cfg.SchemaCacheTTL, logger),
		executor: query.NewExecutor(nil, logger),
	}, nil
}

func (a *app) chatService() (*chat.Service, error) {
	provider, err := llm.NewProvider(a.cfg.LLM)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindConfig, err.Error())
	}
	client := llm.NewClient(provider, a.cfg.LLM, a.logger)
	a.logger.Info("LLM provider initialized", zap.String("provider", client.Name()))

	return chat.NewService(a.resolver, client, a.executor, chat.Config{
		Limits:      a.cfg.Limits(),
		StrictClean: a.cfg.StrictClean,
	}, a.logger), nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			svc, err := a.chatService()
			if err != nil {
				return err
			}
			if len(a.registry.Names()) == 0 {
				a.logger.Warn("no connections configured (set CONNECTIONS_FILE or DB_ENGINE)")
			}

			srv := &http.Server{
				Addr:              a.cfg.Addr,
				Handler:           api.NewServer(svc, a.resolver, a.registry, a.logger).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("listening",
					zap.String("addr", a.cfg.Addr),
					zap.Strings("connections", a.registry.Names()))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return apperrors.Wrap(err, apperrors.KindConfig, "HTTP server failed: "+err.Error())
				}
				return nil
			case <-ctx.Done():
			}

			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func connectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connections",
		Short: "List configured connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			for _, name := range a.registry.Names() {
				cfg, _ := a.registry.Lookup(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, cfg)
			}
			return nil
		},
	}
}
