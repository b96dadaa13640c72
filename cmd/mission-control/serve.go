package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ctavolazzi/mission-control/pkg/api"
	"github.com/ctavolazzi/mission-control/pkg/broadcast"
	"github.com/ctavolazzi/mission-control/pkg/config"
	"github.com/ctavolazzi/mission-control/pkg/counter"
	"github.com/ctavolazzi/mission-control/pkg/events"
	"github.com/ctavolazzi/mission-control/pkg/log"
	"github.com/ctavolazzi/mission-control/pkg/registry"
	"github.com/ctavolazzi/mission-control/pkg/watcher"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Mission Control server",
	Long: `Run the server: parse the configured repositories, watch them for
change, and expose the HTTP control plane plus the websocket stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		listen, _ := cmd.Flags().GetString("listen")
		counterFile, _ := cmd.Flags().GetString("counter-file")
		browseRoot, _ := cmd.Flags().GetString("browse-root")
		staticDir, _ := cmd.Flags().GetString("static-dir")
		devAssets, _ := cmd.Flags().GetString("dev-assets")
		logLevel, _ := cmd.Flags().GetString("log-level")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")

		log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: jsonLogs})
		logger := log.WithComponent("main")

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %v", err)
		}
		if listen == "" {
			listen = fmt.Sprintf(":%d", cfg.Port)
		}

		counters, err := counter.NewService(counterFile)
		if err != nil {
			return fmt.Errorf("failed to open counter state: %v", err)
		}

		bus := events.NewBus()
		reg := registry.New(cfg, cfgPath, bus, watcher.Options{
			Debounce: time.Duration(cfg.DebounceMs) * time.Millisecond,
		})
		hub := broadcast.NewHub(reg.Snapshot, func(repo string) {
			if err := reg.Refresh(repo); err != nil {
				repoLog := log.WithRepo(repo)
				repoLog.Warn().Err(err).Msg("client refresh failed")
			}
		})
		reg.SetBroadcaster(hub)
		reg.Init()

		// Development-only hot reload for static assets.
		var assets *watcher.AssetWatcher
		if devAssets != "" {
			assets, err = watcher.WatchAssets(devAssets, func(file string) {
				hub.Broadcast(broadcast.HotReloadFrame(file))
			})
			if err != nil {
				return fmt.Errorf("failed to watch dev assets: %v", err)
			}
			logger.Info().Str("dir", devAssets).Msg("hot reload enabled")
		}

		server := api.NewServer(api.Options{
			Registry:   reg,
			Hub:        hub,
			Counters:   counters,
			BrowseRoot: browseRoot,
			StaticDir:  staticDir,
		})
		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(listen); err != nil {
				errCh <- err
			}
		}()
		logger.Info().
			Str("listen", listen).
			Int("repos", len(cfg.Repos)).
			Str("version", Version).
			Msg("mission control started")

		// Wait for interrupt signal or server error
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		var runErr error
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
		case runErr = <-errCh:
			logger.Error().Err(runErr).Msg("server error")
		}

		// Shutdown: stop intake first, then tell clients, then the pipeline.
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("server shutdown incomplete")
			if runErr == nil {
				runErr = fmt.Errorf("shutdown incomplete: %v", err)
			}
		}
		hub.Close()
		if assets != nil {
			assets.Close()
		}
		reg.Close()
		bus.Close()

		logger.Info().Msg("shutdown complete")
		return runErr
	},
}

func init() {
	serveCmd.Flags().String("config", "config.json", "Path to the configuration file")
	serveCmd.Flags().String("listen", "", "Listen address (default :<port> from config)")
	serveCmd.Flags().String("counter-file", "counter-state.json", "Path to the counter state file")
	serveCmd.Flags().String("browse-root", "", "Root directory for /api/browse (default: home directory)")
	serveCmd.Flags().String("static-dir", "", "Directory with the dashboard UI to serve at /")
	serveCmd.Flags().String("dev-assets", "", "Watch this asset directory and push hot_reload frames")
	serveCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	serveCmd.Flags().Bool("json-logs", false, "Emit JSON logs instead of console output")
}
