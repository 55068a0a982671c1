// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Stripefs is the command-line entry point for the striped file
// store. It hosts three subcommands:
//
//   - mount: connect to the chunk servers and mount the FUSE
//     filesystem over them.
//   - serve: run a chunk server, storing slices under a local root.
//   - version: print build information.
//
// Mount and serve read the shared YAML configuration (STRIPEFS_CONFIG
// or --config); serve can also run from flags alone.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/stripefs/stripefs/cmd/stripefs/cli"
	"github.com/stripefs/stripefs/lib/backend"
	"github.com/stripefs/stripefs/lib/chunkserver"
	"github.com/stripefs/stripefs/lib/clock"
	"github.com/stripefs/stripefs/lib/config"
	"github.com/stripefs/stripefs/lib/engine"
	"github.com/stripefs/stripefs/lib/meta"
	"github.com/stripefs/stripefs/lib/mount"
	"github.com/stripefs/stripefs/lib/stripe"
	"github.com/stripefs/stripefs/lib/version"
)

func main() {
	root := &cli.Command{
		Name:        "stripefs",
		Description: "Network-striped file store with single-fault tolerance.",
		Subcommands: []*cli.Command{
			mountCommand(),
			serveCommand(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Mount using a config file",
				Command:     "stripefs mount --config /etc/stripefs.yaml",
			},
			{
				Description: "Run a chunk server",
				Command:     "stripefs serve --listen :9000 --root /srv/stripefs/slices",
			},
		},
	}

	if err := root.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the configuration from --config or the
// STRIPEFS_CONFIG environment variable and validates it.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from the log configuration.
// The returned closer is non-nil when a log file was opened.
func newLogger(cfg config.LogConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	output := io.Writer(os.Stderr)
	var closer io.Closer
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file %s: %w", cfg.File, err)
		}
		output = file
		closer = file
	}

	logger := slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, closer, nil
}

func mountCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "mount",
		Summary: "Mount the striped filesystem",
		Description: "Connects to the configured chunk servers, mounts the FUSE\n" +
			"filesystem, and serves it until interrupted. The mount survives\n" +
			"the loss of any single backend.",
		Usage: "stripefs mount [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("mount", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "path to stripefs.yaml (defaults to $STRIPEFS_CONFIG)")
			return flagSet
		},
		Run: func(args []string) error {
			return runMount(configPath)
		},
	}
}

func runMount(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger, logCloser, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer logCloser.Close()
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	set := backend.Connect(ctx, cfg.Backends, cfg.DialTimeout(), logger)
	defer set.Close()
	if set.DeadCount() > 1 {
		return fmt.Errorf("%d of %d backends unreachable, need at least %d",
			set.DeadCount(), set.Len(), set.Len()-1)
	}

	layout, err := stripe.NewLayout(len(cfg.Backends), cfg.Stripe.ChunkSize)
	if err != nil {
		return err
	}
	store, err := meta.NewStore(cfg.Paths.Metadata, nil)
	if err != nil {
		return err
	}
	eng, err := engine.New(set, layout, store, logger)
	if err != nil {
		return err
	}

	server, err := mount.Mount(mount.Options{
		Mountpoint: cfg.Paths.Mount,
		Engine:     eng,
		Meta:       store,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	go backend.RunHeartbeat(ctx, set, clock.Real(), cfg.HeartbeatInterval(), cfg.HeartbeatTimeout())

	logger.Info("serving", "mountpoint", cfg.Paths.Mount,
		"backends", len(cfg.Backends), "chunk_size", cfg.Stripe.ChunkSize)

	<-ctx.Done()
	logger.Info("unmounting", "mountpoint", cfg.Paths.Mount)
	if err := server.Unmount(); err != nil {
		return fmt.Errorf("unmounting %s: %w", cfg.Paths.Mount, err)
	}
	server.Wait()
	return nil
}

func serveCommand() *cli.Command {
	var configPath string
	var listen string
	var root string

	return &cli.Command{
		Name:    "serve",
		Summary: "Run a chunk server",
		Description: "Serves slices from a local directory over TCP. The server is\n" +
			"stateless: which slice of which file it holds is entirely the\n" +
			"client's business.",
		Usage: "stripefs serve [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("serve", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "path to stripefs.yaml (optional when --root is given)")
			flagSet.StringVar(&listen, "listen", ":9000", "TCP listen address")
			flagSet.StringVar(&root, "root", "", "slice storage directory (defaults to paths.storage from the config)")
			return flagSet
		},
		Run: func(args []string) error {
			return runServe(configPath, listen, root)
		},
	}
}

func runServe(configPath, listen, root string) error {
	logConfig := config.LogConfig{Level: "info"}
	if root == "" || configPath != "" || os.Getenv("STRIPEFS_CONFIG") != "" {
		cfg, err := loadConfig(configPath)
		if err != nil {
			if root == "" {
				return fmt.Errorf("--root not given and no usable config: %w", err)
			}
		} else {
			if root == "" {
				root = cfg.Paths.Storage
			}
			logConfig = cfg.Log
		}
	}
	if root == "" {
		return fmt.Errorf("--root is required (or set paths.storage in the config)")
	}

	logger, logCloser, err := newLogger(logConfig)
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := chunkserver.New(listen, root, logger)
	if err != nil {
		return err
	}
	logger.Info("chunk server listening", "address", server.Address(), "root", root)
	return server.Serve(ctx)
}

func versionCommand() *cli.Command {
	var full bool

	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Usage:   "stripefs version [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("version", pflag.ContinueOnError)
			flagSet.BoolVar(&full, "full", false, "include Go version and platform")
			return flagSet
		},
		Run: func(args []string) error {
			if full {
				fmt.Println(version.Full())
			} else {
				fmt.Printf("stripefs %s\n", version.Info())
			}
			return nil
		},
	}
}
