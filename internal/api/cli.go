package api

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	zaplog "sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/gislas3/hydra/internal/config"
	"github.com/gislas3/hydra/internal/houston"
	"github.com/gislas3/hydra/internal/ingest"
	"github.com/gislas3/hydra/internal/metrics"
	"github.com/gislas3/hydra/pkg/cluster"
	"github.com/gislas3/hydra/pkg/scheduler"
	"github.com/gislas3/hydra/pkg/store"
	"github.com/gislas3/hydra/pkg/watcher"
)

var buildInfo BuildInfo

// Execute starts the Hydra server CLI.
func Execute(info BuildInfo) error {
	buildInfo = info
	return rootCmd.Execute()
}

var rootCmd = &cobra.Command{
	Use:   "hydra-server",
	Short: "Hydra batch-to-job scheduling server",
	Long: `Hydra is a data-driven Kubernetes job orchestrator: it accumulates
uploaded batches against a tree of Job Definitions and Job Specs, decides
when enough data has arrived to run a job, and drives the job through its
Kubernetes lifecycle.

Configuration is sourced entirely from the environment, overlaid with an
optional .env file in the working directory; there are no server flags
beyond the subcommand itself.

  hydra-server serve`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Hydra server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewDotEnvLoader()
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	zapOpts := zaplog.Options{Development: cfg.LogFormat != "json"}
	log := zaplog.New(zaplog.UseFlagOptions(&zapOpts))

	s := store.NewMemoryStore()

	if cfg.SeedFile != "" {
		doc, err := config.LoadSeedDocument(cfg.SeedFile)
		if err != nil {
			return fmt.Errorf("load seed file: %w", err)
		}
		if err := doc.Apply(context.Background(), s); err != nil {
			return fmt.Errorf("apply seed file: %w", err)
		}
		log.Info("applied seed file", "path", cfg.SeedFile)
	}

	var adapter cluster.Adapter
	restConfig, err := cluster.LoadRESTConfig()
	if err != nil {
		log.Info("no usable kubeconfig found, job scheduling will fail at creation time", "error", err.Error())
	} else {
		clientset, err := kubernetes.NewForConfig(restConfig)
		if err != nil {
			return fmt.Errorf("build kubernetes client: %w", err)
		}
		adapter = cluster.NewKubeAdapter(clientset, log)
	}

	sched := scheduler.Get(s, adapter, scheduler.Config{
		MaxActiveJobs: cfg.MaxActiveJobs,
		EnableCascade: cfg.EnableCascade,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.WatchK8S && adapter != nil {
		w := watcher.New(adapter, s, sched, watcher.Config{
			Namespace:      cfg.WatchNamespace,
			Timeout:        cfg.WatchTimeout,
			RequestTimeout: cfg.WatchReqTimeout,
		}, log)
		go w.Run(ctx)
	}

	notifier := houston.NewClient(cfg.HoustonURL, cfg.HoustonToken, cfg.HoustonTimeout, log)
	trigger := ingest.New(sched)

	metrics.ActiveJobs.Set(float64(sched.ActiveJobs()))

	apiConfig := DefaultConfig()
	apiConfig.ListenAddr = cfg.ListenAddr

	server := NewServer(apiConfig, buildInfo, s, trigger, notifier, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed to start: %w", err)
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Stop(shutdownCtx); err != nil {
			log.Error(err, "error during shutdown")
			return err
		}
		log.Info("server shut down gracefully")
		return nil
	}
}
