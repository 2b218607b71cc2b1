package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DannyRuijters/webrtc-friends/internal/config"
	"github.com/DannyRuijters/webrtc-friends/internal/logging"
	"github.com/DannyRuijters/webrtc-friends/internal/server"
	"github.com/DannyRuijters/webrtc-friends/internal/signaling"
)

var (
	flagConfig    string
	flagHost      string
	flagPort      int
	flagMaxPeers  int
	flagStaticDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling relay",
	Long: `Run the signaling relay until interrupted.

Examples:
  signaling-server serve
  signaling-server serve --port 9000 --max-peers 8
  signaling-server serve --config /etc/signaling/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to YAML config file")
	serveCmd.Flags().StringVar(&flagHost, "host", "", "host to bind to (default 0.0.0.0)")
	serveCmd.Flags().IntVar(&flagPort, "port", 0, "port to listen on (default 8080)")
	serveCmd.Flags().IntVar(&flagMaxPeers, "max-peers", 0, "maximum number of peers per room (default 32)")
	serveCmd.Flags().StringVar(&flagStaticDir, "static-dir", "", "directory of static assets served at /")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command) error {
	cfg, err := config.LoadWithDefaults(flagConfig)
	if err != nil {
		return err
	}

	// Flags outrank the config file.
	if flagHost != "" {
		cfg.Server.Host = flagHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = flagPort
	}
	if cmd.Flags().Changed("max-peers") {
		cfg.Rooms.MaxPeersPerRoom = flagMaxPeers
	}
	if flagStaticDir != "" {
		cfg.Server.StaticDir = flagStaticDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Init(cfg.Logging.Level)
	logger := slog.Default()

	registry := signaling.NewRegistry(cfg.Rooms.MaxPeersPerRoom, logger)
	router := signaling.NewRouter(registry, logger)
	handler := server.Handler(registry, router, cfg.Rooms.JoinWait(), cfg.Server.StaticDir, logger)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: handler,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("signaling server listening",
			"addr", cfg.Addr(),
			"max_peers_per_room", cfg.Rooms.MaxPeersPerRoom,
			"join_timeout", cfg.Rooms.JoinWait())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}
