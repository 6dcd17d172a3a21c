package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/peterje/forge/internal/commands"
	"github.com/peterje/forge/internal/files"
	"github.com/peterje/forge/internal/logging"
	"github.com/peterje/forge/internal/metrics"
	"github.com/peterje/forge/internal/pty"
	"github.com/peterje/forge/internal/server"
	"github.com/peterje/forge/internal/store"
	"github.com/peterje/forge/internal/ws"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the terminal server (default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "server port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Logger

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := store.Open(cfg.Store.Path, log.Named("store"))
	if err != nil {
		return err
	}
	defer st.Close()

	// No PTY survives a restart.
	if _, err := st.MarkStaleStopped(cmd.Context()); err != nil {
		log.Warn("failed to clean up stale terminals", zap.Error(err))
	}

	m := metrics.New()
	resolver := pty.DefaultShellResolver()
	events := make(chan pty.Event, cfg.Terminal.EventBuffer)
	mgr := pty.NewManager(events,
		pty.WithConfig(cfg.ManagerConfig()),
		pty.WithResolver(resolver),
		pty.WithLogger(log.Named("pty")),
		pty.WithRecorder(m),
	)
	svc := commands.NewService(mgr, st, log.Named("commands"))
	hub := ws.NewHub(events,
		ws.OnFinal(svc.TerminalEnded),
		ws.WithHubLogger(log.Named("ws")),
		ws.WithObserver(m),
	)
	watcher, err := files.NewWatcher(cfg.Watch.Debounce, hub.PublishFileChange, log.Named("watch"))
	if err != nil {
		return err
	}

	srv := server.New(server.Deps{
		Commands:    svc,
		Files:       files.NewService(log.Named("files")),
		Watcher:     watcher,
		Store:       st,
		Hub:         hub,
		Metrics:     m,
		Resolver:    resolver,
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit: server.RateLimit{
			RequestsPerSecond: cfg.Server.RateLimitRPS,
			Burst:             cfg.Server.RateLimitBurst,
		},
		Logger: log.Named("http"),
	})
	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error {
		log.Info("server listening",
			zap.String("addr", httpSrv.Addr),
			zap.String("default_shell", resolver.Resolve(cfg.Terminal.Shell)),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
		if err := mgr.CloseAll(shutdownCtx); err != nil {
			log.Warn("terminals did not stop in time", zap.Error(err))
		}
		if _, err := st.MarkStaleStopped(context.Background()); err != nil {
			log.Warn("failed to stop terminal records", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	log.Info("server stopped")
	return err
}
