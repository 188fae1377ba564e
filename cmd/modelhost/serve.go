package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/modelhost/pkg/api"
	"github.com/cuemby/modelhost/pkg/artifact"
	"github.com/cuemby/modelhost/pkg/builder"
	"github.com/cuemby/modelhost/pkg/config"
	"github.com/cuemby/modelhost/pkg/hosting"
	"github.com/cuemby/modelhost/pkg/log"
	"github.com/cuemby/modelhost/pkg/metrics"
	"github.com/cuemby/modelhost/pkg/notify"
	"github.com/cuemby/modelhost/pkg/pipeline"
	"github.com/cuemby/modelhost/pkg/registry"
	"github.com/cuemby/modelhost/pkg/storage"
	"github.com/cuemby/modelhost/pkg/tracker"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the modelhost server",
	Long: `Start the HTTP API, the notification socket and the deployment pipeline.

Configuration is read from --config (YAML, environment variables are
expanded); flags given on the command line override the file. The
deployment section of the file is watched and reloaded while running.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("config", "c", envOr("MODELHOST_CONFIG", ""), "Path to the YAML configuration file")
	serveCmd.Flags().String("addr", "", "HTTP listen address (overrides server.addr)")
	serveCmd.Flags().String("upload-dir", "", "Directory for build contexts (overrides server.uploadDir)")
	serveCmd.Flags().String("store", "", "Store driver: bolt or postgres (overrides store.driver)")
	serveCmd.Flags().String("data-dir", "", "Bolt data directory (overrides store.dataDir)")
	serveCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error (overrides log.level)")
	serveCmd.Flags().Bool("log-json", false, "Emit JSON logs (overrides log.json)")
}

func runServe(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Init(log.Config{Level: cfg.Log.Level, JSONOutput: cfg.Log.JSON})
	metrics.SetVersion(Version)
	logger := log.WithComponent("serve")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Server.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	store, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	uploader, err := artifact.NewMinIOUploader(cfg.ObjectStore)
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}
	if err := uploader.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("object store: %w", err)
	}

	engine, err := builder.NewDockerEngine()
	if err != nil {
		return fmt.Errorf("docker: %w", err)
	}
	defer engine.Close()

	publisher := registry.NewExecPublisher(cfg.Registry)

	hostingSvc, err := hosting.NewSageMaker(ctx, cfg.Hosting)
	if err != nil {
		return fmt.Errorf("hosting: %w", err)
	}

	hub := notify.NewHub()
	track := tracker.New(store, hub)

	var deployments config.DeploymentProvider = config.Static(cfg.Deployment)
	if path != "" {
		watcher := config.NewWatcher(path, cfg.Deployment)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger := log.WithComponent("config")
				logger.Warn().Err(err).Msg("Deployment configuration watcher stopped")
			}
		}()
		deployments = watcher
	}

	orchestrator := pipeline.New(pipeline.Dependencies{
		Store:       store,
		Tracker:     track,
		Uploader:    uploader,
		Builder:     builder.NewBuilder(engine),
		Publisher:   publisher,
		Cleaner:     registry.NewCleaner(),
		Provisioner: hosting.NewProvisioner(hostingSvc, track),
		Config:      deployments,
	})

	collector := metrics.NewCollector(store, 0)
	collector.AddCheck("store", store.Ping)
	collector.AddCheck("objectStore", uploader.CheckBucket)
	collector.AddCheck("docker", engine.Ping)
	metrics.SetCriticalComponents("store", "objectStore", "docker")
	collector.Start()
	defer collector.Stop()

	server := api.NewServer(api.Options{
		Store:         store,
		Pipeline:      orchestrator,
		Hub:           hub,
		UploadDir:     cfg.Server.UploadDir,
		MaxUploadSize: cfg.Server.MaxUploadSize,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.Server.Addr)
	}()

	logger.Info().
		Str("addr", cfg.Server.Addr).
		Str("store", cfg.Store.Driver).
		Str("repository", publisher.Repository()).
		Msg("Modelhost server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}

	start := time.Now()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown incomplete")
	}
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Pipeline shutdown incomplete")
	}

	logger.Info().Dur("elapsed", time.Since(start)).Msg("Shutdown complete")
	return nil
}

// applyServeFlags copies explicitly set flags over the loaded configuration
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Addr, _ = flags.GetString("addr")
	}
	if flags.Changed("upload-dir") {
		cfg.Server.UploadDir, _ = flags.GetString("upload-dir")
	}
	if flags.Changed("store") {
		cfg.Store.Driver, _ = flags.GetString("store")
	}
	if flags.Changed("data-dir") {
		cfg.Store.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("log-level") {
		level, _ := flags.GetString("log-level")
		cfg.Log.Level = log.Level(level)
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON, _ = flags.GetBool("log-json")
	}
}
