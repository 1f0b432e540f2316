package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/yourusername/craft-server-manager/internal/api"
	"github.com/yourusername/craft-server-manager/internal/certs"
	"github.com/yourusername/craft-server-manager/internal/config"
	"github.com/yourusername/craft-server-manager/internal/console"
	"github.com/yourusername/craft-server-manager/internal/logging"
	"github.com/yourusername/craft-server-manager/internal/scheduler"
	"github.com/yourusername/craft-server-manager/internal/websocket"
)

func newServeCmd() *cobra.Command {
	var noAutoStart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web console and supervise the game server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if noAutoStart {
				cfg.Game.AutoStart = false
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().BoolVar(&noAutoStart, "no-auto-start", false, "do not start the game server on boot")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	if err := setupLogging(cfg); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logging.Close()

	comp, err := setupComponents(cfg)
	if err != nil {
		return err
	}
	defer comp.close()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Initialize WebSocket hub
	log.Println("Initializing WebSocket hub...")
	hub := websocket.NewHub()
	go hub.Run(ctx)

	log.Println("Initializing console session...")
	session := console.NewSession(comp.supervisor, hub, comp.db.DB, comp.sessionOptions())
	go session.Run(ctx)

	comp.recorder.Start()
	go comp.pruneActivity(ctx)

	schedules, err := config.NewScheduleManager(cfg.Storage.ConfigDir)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}
	sched := scheduler.New(comp.supervisor, schedules, comp.activity, comp.stopTimeout)
	if comp.backups != nil {
		sched.SetBackupRunner(comp.backups)
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	log.Println("All components initialized successfully")

	router, shutdownOps := api.SetupRouter(cfg, comp.supervisor, session, hub, comp.recorder, comp.activity, schedules, sched, comp.backups)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.Server.TLS.Enabled && cfg.Server.TLS.SelfSigned {
		cert, err := certs.EnsureSelfSigned(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile, cfg.Server.TLS.Hosts, certs.DefaultTTL)
		if err != nil {
			return fmt.Errorf("failed to prepare TLS certificate: %w", err)
		}
		if cert.Generated {
			log.Printf("Generated self-signed certificate %s (sha256 %s, expires %s)",
				cert.CertPath, cert.Fingerprint, cert.NotAfter.Format(time.RFC3339))
		} else {
			log.Printf("Using certificate %s (sha256 %s)", cert.CertPath, cert.Fingerprint)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", srv.Addr)

		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if cfg.Game.AutoStart {
		log.Println("Starting game server...")
		err := comp.supervisor.Start(comp.launch)
		comp.activity.LogServerStart("auto-start", err)
		if err != nil {
			log.Printf("Failed to start game server: %v", err)
		}
	}

	// Wait for interrupt signal to gracefully shutdown the server
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runErr error
	select {
	case <-sigCtx.Done():
		log.Println("Shutting down server...")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server failed: %w", err)
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Wait for background stop and restart requests
	shutdownOps()

	log.Println("Server exited")
	return runErr
}
