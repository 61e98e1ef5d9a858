// Package cmd holds the start-up sequence shared by the binaries.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/membo/vtubot/core/config"
	"github.com/membo/vtubot/core/logger"
)

// Options describe how to locate configuration and what to run with it.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string
	// EnvFiles are loaded into the process environment before the config; missing files are skipped.
	EnvFiles []string

	LoadConfig     func(path string) (*config.Config, error)
	Run            func(ctx context.Context, cfg *config.Config) error
	ShutdownLogger func() error
}

// Run loads .env files and configuration, then calls opts.Run with a context
// cancelled on SIGINT or SIGTERM.
func Run(opts Options) error {
	if opts.Run == nil {
		return fmt.Errorf("cmd: Run is required")
	}

	envFiles := opts.EnvFiles
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("cmd: load %s: %w", f, err)
		}
	}

	cfgPath := resolveConfigPath(opts)
	if cfgPath != "" {
		log.Printf("loading config: %s", cfgPath)
	}
	load := opts.LoadConfig
	if load == nil {
		load = config.Load
	}
	cfg, err := load(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return opts.Run(ctx, cfg)
}

// resolveConfigPath prefers the env var, then the default path when it exists.
// An empty result means configuration comes from the environment alone.
func resolveConfigPath(opts Options) string {
	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	if p := os.Getenv(env); p != "" {
		return p
	}
	if opts.DefaultConfigPath == "" {
		return ""
	}
	if _, err := os.Stat(opts.DefaultConfigPath); err != nil {
		return ""
	}
	return opts.DefaultConfigPath
}
