package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentd-ai/agentd/internal/config"
	"github.com/agentd-ai/agentd/internal/event"
	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/internal/runtime"
	"github.com/agentd-ai/agentd/internal/server"
	"github.com/agentd-ai/agentd/internal/session"
	"github.com/agentd-ai/agentd/internal/storage"
	"github.com/agentd-ai/agentd/internal/trust"
)

func serveCommand() *cobra.Command {
	var (
		host     string
		port     int
		logLevel string
		pretty   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			global, err := config.LoadGlobal()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				global.Host = host
			}
			if cmd.Flags().Changed("port") {
				global.Port = port
			}
			if cmd.Flags().Changed("log-level") {
				global.LogLevel = logLevel
			}

			logging.Init(logging.Config{
				Level:  logging.ParseLevel(global.LogLevel),
				Pretty: pretty,
			})
			server.Version = version

			paths := config.GetPaths()
			if err := paths.EnsurePaths(); err != nil {
				return err
			}
			dataDir := global.DataDir
			if dataDir == "" {
				dataDir = paths.Data
			}

			store := storage.New(dataDir)
			trustSvc, err := trust.NewService(store)
			if err != nil {
				return err
			}

			bus := event.NewBus()
			defer bus.Close()

			sessions := session.NewStore(runtime.NewGeminiRuntime(), bus, global)
			srv := server.New(sessions, trustSvc, bus, global)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Info().Str("signal", sig.String()).Msg("shutting down")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "bind address")
	cmd.Flags().IntVar(&port, "port", 8420, "listen port")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "human-readable log output")
	return cmd
}
