package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grovetools/storymap/cli"
	"github.com/grovetools/storymap/internal/daemon/engine"
	"github.com/grovetools/storymap/internal/daemon/pidfile"
	"github.com/grovetools/storymap/internal/daemon/server"
	"github.com/grovetools/storymap/internal/daemon/store"
	"github.com/grovetools/storymap/logging"
	"github.com/grovetools/storymap/pkg/daemon"
	"github.com/grovetools/storymap/pkg/process"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds the final flush and HTTP shutdown on stop.
const shutdownTimeout = 10 * time.Second

// NewDaemonCmd returns the daemon command with subcommands.
func NewDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the storymap daemon",
		Long: `The daemon owns one worker process and one save queue so that every
client shares the same debounce window, optimistic state and error dialog.
Commands fall back to an in-process session when it is not running.`,
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())

	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		Long:  "Start the storymap daemon in foreground mode.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger("storymapd")
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.RequireWorker(); err != nil {
				return err
			}
			pidPath := cfg.Daemon.PidFile
			sockPath := cli.SocketPath(cmd, cfg)

			// 1. Acquire Lock
			if err := pidfile.Acquire(pidPath); err != nil {
				return err
			}
			defer func() {
				if err := pidfile.Release(pidPath); err != nil {
					logger.Errorf("Failed to release pidfile: %v", err)
				}
			}()

			// 2. Setup Store and Engine
			st := store.New()
			eng, err := engine.New(cfg, st, logger, engine.Options{})
			if err != nil {
				return err
			}

			// 3. Setup Server with engine
			srv := server.New(logger)
			srv.SetEngine(eng, st)
			srv.SetRunningConfig(&daemon.RunningConfig{
				Worker:            cfg.Worker.Command,
				WorkingDir:        cfg.Worker.WorkingDir,
				Debounce:          cfg.Queue.Debounce.Std(),
				AutoHide:          cfg.Queue.AutoHide.Std(),
				Timeout:           cfg.Worker.Timeout.Std(),
				ReadTimeout:       cfg.Worker.ReadTimeout.Std(),
				MissingNodePolicy: cfg.Graph.MissingNodePolicy,
				Snapshot:          cfg.Graph.Snapshot,
				Socket:            sockPath,
				StartedAt:         time.Now(),
			})

			// 4. Handle Signals
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(stop)

			go func() {
				select {
				case <-stop:
				case <-ctx.Done():
					return
				}
				logger.Info("Received stop signal")

				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer shutdownCancel()

				// Stop accepting changes before the last flush.
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Errorf("Server shutdown error: %v", err)
				}
				if err := eng.Close(shutdownCtx); err != nil {
					logger.WithError(err).Warn("Worker did not stop cleanly")
				}
				cancel()
			}()

			// 5. Start Engine in background
			go eng.Start(ctx)

			// 6. Start Server (Blocking)
			logger.WithFields(logrus.Fields{
				"pid":    os.Getpid(),
				"worker": cfg.Worker.Command,
			}).Info("Starting daemon")
			if err := srv.ListenAndServe(sockPath); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			<-ctx.Done()
			return nil
		},
	}
}

func newDaemonStopCmd() *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Long:  "Stop the daemon. Pending changes are flushed to the worker before it exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			running, pid, err := pidfile.IsRunning(cfg.Daemon.PidFile)
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}

			if _, err := process.Terminate(pid, grace); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped daemon (PID %d)\n", pid)
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 15*time.Second, "Time to wait for the final flush before killing the daemon")
	return cmd
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			running, pid, err := pidfile.IsRunning(cfg.Daemon.PidFile)
			if err != nil {
				return fmt.Errorf("error: %w", err)
			}

			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
				os.Exit(1) // Return non-zero for stopped state (useful for scripts)
			}

			client, err := daemon.Connect(cli.SocketPath(cmd, cfg))
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Running (PID: %d), socket not responding\n", pid)
				return nil
			}
			defer client.Close()

			rc, err := client.GetConfig(cmd.Context())
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, rc)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Running (PID: %d)\nSocket:  %s\nWorker:  %s\nUptime:  %s\n",
				pid, rc.Socket, rc.Worker, time.Since(rc.StartedAt).Round(time.Second))
			return nil
		},
	}
}
