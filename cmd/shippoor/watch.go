package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethpandaops/shippoor/pkg/config"
	"github.com/ethpandaops/shippoor/pkg/objectkey"
	"github.com/ethpandaops/shippoor/pkg/shipper"
	"github.com/ethpandaops/shippoor/pkg/stability"
	"github.com/ethpandaops/shippoor/pkg/upload"
	"github.com/ethpandaops/shippoor/pkg/watcher"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	watchBucket   string
	watchHostname string
	watchDebug    bool
	watchLogJSON  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [flags] DIR [DIR...]",
	Short: "Watch directories and ship stable files to object storage",
	Long: `Watch one or more directories for filesystem changes. Once a file's
size has stopped changing it is uploaded to the configured bucket and
deleted locally. Without a bucket, files are detected but left in place.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchBucket, "bucket", "",
		"destination bucket; uploads are skipped when unset")
	watchCmd.Flags().StringVar(&watchHostname, "hostname", "",
		"hostname folded into every generated object key")
	watchCmd.Flags().BoolVar(&watchDebug, "debug", false,
		"enable per-poll debug logging")
	watchCmd.Flags().BoolVar(&watchLogJSON, "log-json", false,
		"render logs as JSON")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadWatchConfig(cmd)
	if err != nil {
		return err
	}

	dirs, err := resolveWatchDirs(args)
	if err != nil {
		return err
	}

	bucket := cfg.Bucket()

	var uploader upload.Uploader

	if bucket != "" {
		uploader, err = upload.NewS3Uploader(log, cfg.S3)
		if err != nil {
			return fmt.Errorf("creating S3 uploader: %w", err)
		}
	} else {
		log.Warn("No bucket configured, file uploads will be skipped")
	}

	// Setup context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if bucket != "" && cfg.S3.Preflight {
		// Fail fast: verify the bucket is reachable and writable before
		// touching any file.
		if err := uploader.Preflight(ctx); err != nil {
			return fmt.Errorf("S3 preflight check failed: %w", err)
		}

		log.Info("S3 preflight check passed")
	}

	detector := stability.NewDetector(log,
		time.Duration(cfg.Watch.PollIntervalSeconds)*time.Second,
		time.Duration(cfg.Watch.StableTimeoutSeconds)*time.Second)
	keys := objectkey.NewGenerator(cfg.Watch.Hostname)
	ship := shipper.New(log, keys, uploader, bucket,
		time.Duration(cfg.Watch.FailureBackoffSeconds)*time.Second)
	router := watcher.NewRouter(log, detector, ship)
	supervisor := watcher.NewSupervisor(log, router, dirs)

	if err := supervisor.Start(ctx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	log.WithField("dirs", dirs).Info("Watching directories")

	// Wait for shutdown signal. Stop the notification source first and let
	// any in-flight handling finish before the context is torn down.
	sig := <-sigCh
	log.WithField("signal", sig).Info("Shutting down")
	supervisor.Stop()

	return nil
}

// loadWatchConfig loads the optional config file and folds the CLI flags on
// top of it. Flags win on conflict.
func loadWatchConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)

	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Default()
	}

	if watchBucket != "" {
		if cfg.S3 == nil {
			cfg.S3 = &config.S3Config{Region: config.DefaultS3Region}
		}

		cfg.S3.Bucket = watchBucket
	}

	if watchHostname != "" {
		cfg.Watch.Hostname = watchHostname
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// The config file may set the log level unless --log-level was given
	// explicitly; --debug beats both.
	if cfg.Global.LogLevel != "" && !cmd.Root().PersistentFlags().Changed("log-level") {
		level, err := logrus.ParseLevel(cfg.Global.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Global.LogLevel, err)
		}

		log.SetLevel(level)
	}

	if watchDebug {
		log.SetLevel(logrus.DebugLevel)
	}

	if watchLogJSON || cfg.Global.LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	return cfg, nil
}

// resolveWatchDirs turns the positional arguments into absolute directory
// paths, rejecting anything that is not an existing directory.
func resolveWatchDirs(args []string) ([]string, error) {
	dirs := make([]string, 0, len(args))

	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", arg, err)
		}

		fi, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}

		if !fi.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", arg)
		}

		dirs = append(dirs, abs)
	}

	return dirs, nil
}
