package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yourusername/craft-server-manager/internal/backup"
	"github.com/yourusername/craft-server-manager/internal/config"
	"github.com/yourusername/craft-server-manager/internal/console"
	"github.com/yourusername/craft-server-manager/internal/database"
	"github.com/yourusername/craft-server-manager/internal/logging"
	"github.com/yourusername/craft-server-manager/internal/metrics"
	"github.com/yourusername/craft-server-manager/internal/server"
)

const activityRetention = 90 * 24 * time.Hour

// components are shared by the serve and run commands
type components struct {
	cfg         *config.Config
	db          *database.DB
	activity    *logging.ActivityLogger
	supervisor  *server.Supervisor
	recorder    *metrics.Recorder
	backups     *backup.Manager
	restart     *console.RestartPolicy
	launch      server.LaunchSpec
	stopTimeout time.Duration
}

func setupComponents(cfg *config.Config) (*components, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	logDir := filepath.Join(cfg.Storage.DataDir, "logs", "activity")
	activity, err := logging.NewActivityLogger(db.DB, logDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize activity logger: %w", err)
	}

	game := cfg.Game
	stopTimeout := config.Duration(game.StopTimeout, server.DefaultStopTimeout)
	supervisor := server.NewSupervisor(server.Options{
		StopCommand:    game.StopCommand,
		ProbeCommand:   game.ProbeCommand,
		ProbeInterval:  config.Duration(game.ProbeInterval, 0),
		SampleInterval: config.Duration(game.SampleInterval, 0),
		StopTimeout:    stopTimeout,
		EventBuffer:    game.EventBuffer,
	})

	var backups *backup.Manager
	if cfg.Backup.Enabled {
		stagingDir := filepath.Join(cfg.Storage.DataDir, "backups-staging")
		backups = backup.NewManager(cfg.Backup, game.WorkingDir, stagingDir, supervisor, db.DB, activity)
	}

	return &components{
		cfg:         cfg,
		db:          db,
		activity:    activity,
		supervisor:  supervisor,
		recorder:    metrics.NewRecorder(cfg.Metrics, db),
		backups:     backups,
		restart:     console.NewRestartPolicy(game.AutoRestart, game.MaxRestarts, config.Duration(game.RestartBackoff, 0), 0),
		launch:      server.NewJavaLaunchSpec(game.JavaPath, game.JVMArgs, game.Jar, game.ServerArgs, game.WorkingDir),
		stopTimeout: stopTimeout,
	}, nil
}

func (c *components) sessionOptions() console.Options {
	return console.Options{
		BufferLines: c.cfg.Game.ConsoleBufferLines,
		Restart:     c.restart,
		Metrics:     c.recorder,
		Activity:    c.activity,
	}
}

// pruneActivity trims the activity log once a day until ctx is done
func (c *components) pruneActivity(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		if removed, err := c.activity.Prune(activityRetention); err != nil {
			log.Printf("Failed to prune activity log: %v", err)
		} else if removed > 0 {
			log.Printf("Pruned %d activities older than %s", removed, activityRetention)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// close stops the game server and releases storage
func (c *components) close() {

	log.Println("Stopping game server...")
	if err := c.supervisor.Close(); err != nil {
		log.Printf("Failed to stop game server cleanly: %v", err)
	}

	c.recorder.Stop()

	if err := c.activity.Close(); err != nil {
		log.Printf("Failed to close activity logger: %v", err)
	}
	if err := c.db.Close(); err != nil {
		log.Printf("Failed to close database: %v", err)
	}
}

func setupLogging(cfg *config.Config) error {
	if cfg != nil && strings.TrimSpace(cfg.Logging.File) == "" {
		dataDir := cfg.Storage.DataDir
		if dataDir == "" {
			dataDir = "./data"
		}
		cfg.Logging.File = filepath.Join(dataDir, "logs", "server.log")
	}
	if cfg != nil && strings.TrimSpace(cfg.Logging.File) != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return err
		}
	}
	_, err := logging.Init(cfg.Logging)
	return err
}
