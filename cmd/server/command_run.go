package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/yourusername/craft-server-manager/internal/config"
	"github.com/yourusername/craft-server-manager/internal/console"
	"github.com/yourusername/craft-server-manager/internal/logging"
	"github.com/yourusername/craft-server-manager/internal/server"
)

const consoleActor = "console"

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the game server in the foreground without the web console",
		Long: "Run starts the game server, prints its console to stdout and forwards\n" +
			"lines typed on stdin as commands. It exits when the server stops.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return runHeadless(cmd.Context(), cfg)
		},
	}
}

func runHeadless(parent context.Context, cfg *config.Config) error {
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

	exited := make(chan server.ProcessExited, 1)
	opts := comp.sessionOptions()
	opts.Output = os.Stdout
	opts.OnExit = func(exit server.ProcessExited, restarting bool) {
		if restarting {
			return
		}
		select {
		case exited <- exit:
		default:
		}
	}

	session := console.NewSession(comp.supervisor, nil, comp.db.DB, opts)
	go session.Run(ctx)

	comp.recorder.Start()

	err = comp.supervisor.Start(comp.launch)
	comp.activity.LogServerStart(consoleActor, err)
	if err != nil {
		return err
	}

	go forwardStdin(ctx, session)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case exit := <-exited:
		if exit.Expected || exit.ExitCode == 0 {
			return nil
		}
		return fmt.Errorf("server exited with code %d", exit.ExitCode)
	case <-sigCtx.Done():
	}

	log.Printf("Stopping game server (timeout %v)...", comp.stopTimeout)
	err = comp.supervisor.Stop(comp.stopTimeout)
	comp.activity.LogServerStop(consoleActor, comp.stopTimeout, err)
	if errors.Is(err, server.ErrNotRunning) {
		return nil
	}
	return err
}

// forwardStdin sends each line read from stdin as a console command
func forwardStdin(ctx context.Context, session *console.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		if _, err := session.ExecuteCommand(consoleActor, line); err != nil {
			fmt.Fprintf(os.Stderr, "command failed: %v\n", err)
		}
	}
}
