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

	"browser-steps/internal/analysis"
	"browser-steps/internal/config"
	"browser-steps/internal/dispatch"
	"browser-steps/internal/intake"
	"browser-steps/internal/realtime"
	"browser-steps/internal/script"
	"browser-steps/internal/session"
	"browser-steps/internal/watcher"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "browser-steps",
		Short: "Stream browser automation steps to a connected extension",
		Long: "browser-steps serves a scripted sequence of browser commands to each " +
			"connected extension over SSE or WebSocket and collects their results.",
		Example: `  browser-steps -u "https://www.costco.com/.product.100736527.html"
  browser-steps --url https://example.com/product/123 --script steps.yaml --watch`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.New(), cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			setupLogging(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	rootCmd.Flags().StringVar(&configFile, "config", "", "config file (TOML or YAML)")
	config.RegisterFlags(rootCmd.Flags())

	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "browser-steps", version)
		},
	}
}

func setupLogging(cfg *config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
}

func loadSteps(cfg *config.Config) ([]session.Template, error) {
	if cfg.Script == "" {
		return script.Default(cfg.URL), nil
	}
	return script.Load(cfg.Script, cfg.URL)
}

func serve(ctx context.Context, cfg *config.Config) error {
	steps, err := loadSteps(cfg)
	if err != nil {
		return err
	}

	templates := session.NewTemplateStore(steps)
	sessMgr := session.NewManager(templates, cfg.MaxSessions)
	in := intake.New(sessMgr, analysis.NewHTMLAnalyzer())
	rtServer := realtime.New(templates, sessMgr, in, dispatch.Options{
		PollInterval:   cfg.PollInterval,
		Pacing:         cfg.Pacing,
		KeepAlive:      cfg.KeepAlive,
		ResetRedeliver: cfg.ResetRedeliver,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           rtServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Closing the sessions ends every open stream so Shutdown can finish.
	httpServer.RegisterOnShutdown(sessMgr.Shutdown)

	var scriptWatch *watcher.Watcher
	if cfg.Watch {
		load := func(path string) ([]session.Template, error) {
			return script.Load(path, cfg.URL)
		}
		scriptWatch, err = watcher.New(cfg.Script, load, templates.Define)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("browser steps server running",
			"addr", "http://"+cfg.Addr(),
			"target_url", cfg.URL,
			"steps", len(steps),
			"script", cfg.Script,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if scriptWatch != nil {
		g.Go(func() error {
			return scriptWatch.Run(gctx)
		})
	}

	return g.Wait()
}
