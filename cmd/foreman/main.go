package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	app "github.com/kode4food/foreman"
	"github.com/kode4food/foreman/internal/config"
	"github.com/kode4food/foreman/internal/core"
	"github.com/kode4food/foreman/internal/server"
	"github.com/kode4food/foreman/internal/telemetry"
	"github.com/kode4food/foreman/internal/workflow"
	"github.com/kode4food/foreman/pkg/log"
)

type foreman struct {
	cfg        *config.Config
	telemetry  *telemetry.Telemetry
	core       *core.Core
	apiServer  *server.Server
	httpServer *http.Server
	quit       chan os.Signal
}

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrLoadEnv       = errors.New("failed to load environment file")
	ErrCheckFailed   = errors.New("workflow check failed")
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	serve := func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context(), envFile)
	}

	root := &cobra.Command{
		Use:           app.Name,
		Short:         "Autonomous task, decision and workflow orchestration",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          serve,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "",
		"Load environment variables from this file (default .env)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the orchestration core and its HTTP API",
			Args:  cobra.NoArgs,
			RunE:  serve,
		},
		newCheckCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n",
					app.Name, app.Version)
			},
		},
	)
	return root
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file.yaml>...",
		Short: "Validate workflow definition files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				def, err := workflow.LoadDefinitionFile(path)
				if err != nil {
					failed++
					cmd.PrintErrf("FAIL %s: %v\n", path, err)
					continue
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(),
					"ok   %s (%s, %d steps)\n", path, def.ID, len(def.Steps))
			}
			if failed > 0 {
				err := fmt.Errorf("%w: %d of %d files",
					ErrCheckFailed, failed, len(args))
				cmd.PrintErrln(err)
				return err
			}
			return nil
		},
	}
}

func runServe(ctx context.Context, envFile string) error {
	if err := loadEnv(envFile); err != nil {
		slog.Error("Environment not loaded", log.Error(err))
		return err
	}

	cfg := config.NewDefaultConfig()
	err := cfg.LoadFromEnv()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	s := &foreman{
		cfg:  cfg,
		quit: make(chan os.Signal, 1),
	}
	if err := s.setupLogging(ctx); err != nil {
		slog.Error("Failed to set up telemetry", log.Error(err))
		return err
	}

	if err := s.run(ctx); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		s.shutdownTelemetry()
		return err
	}
	return nil
}

func loadEnv(path string) error {
	if path == "" {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %w", ErrLoadEnv, err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("%w: %w", ErrLoadEnv, err)
	}
	return nil
}

func (s *foreman) run(ctx context.Context) error {
	c, err := core.New(ctx, s.cfg, core.Deps{})
	if err != nil {
		return err
	}
	s.core = c
	if err := s.core.Start(ctx); err != nil {
		return err
	}
	s.startServer()

	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.quit)
	<-s.quit

	s.shutdown()
	return nil
}

func (s *foreman) setupLogging(ctx context.Context) error {
	t, err := telemetry.Setup(ctx, s.cfg.Telemetry, app.Name, os.Stdout)
	if err != nil {
		return err
	}
	s.telemetry = t

	level := log.ParseLevel(s.cfg.LogLevel)
	env := os.Getenv("ENV")
	base := log.NewWithLevel(app.Name, env, app.Version, level)
	slog.SetDefault(slog.New(t.Handler(base.Handler())))
	slog.SetLogLoggerLevel(level)

	slog.Info("Foreman starting",
		slog.String("log_level", s.cfg.LogLevel),
		slog.String("version", app.Version))

	slog.Info("Configuration loaded",
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort),
		slog.Int("max_concurrent_tasks", s.cfg.Tasks.MaxConcurrent),
		slog.Int("max_concurrent_workflows", s.cfg.Workflow.MaxConcurrent),
		slog.String("workflow_dir", s.cfg.Workflow.DefinitionDir),
		slog.String("template_dir", s.cfg.Workflow.TemplateDir),
		slog.String("metrics_redis_addr", s.cfg.Monitor.Redis.Addr),
		slog.Bool("otel_logs", s.cfg.Telemetry.Logs),
		slog.Bool("otel_metrics", s.cfg.Telemetry.Metrics),
		slog.Bool("otel_traces", s.cfg.Telemetry.Traces))
	return nil
}

func (s *foreman) startServer() {
	s.apiServer = server.NewServer(s.core)
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler: s.apiServer.SetupRoutes(),
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
			select {
			case s.quit <- syscall.SIGTERM:
			default:
			}
		}
	}()
}

func (s *foreman) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}

	s.apiServer.CloseWebSockets()
	s.core.Stop(ctx)

	slog.Info("Server exited")
	s.shutdownTelemetry()
}

func (s *foreman) shutdownTelemetry() {
	if s.telemetry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()
	if err := s.telemetry.Shutdown(ctx); err != nil {
		slog.Error("Telemetry shutdown failed", log.Error(err))
	}
}
