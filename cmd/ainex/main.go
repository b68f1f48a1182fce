// Command ainex is the arbitrage pipeline entry point. It loads and validates
// configuration, wires dependencies, and runs the application in the
// configured mode until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/TemamAb/ainex-sub000/internal/app"
	"github.com/TemamAb/ainex-sub000/internal/config"
	"github.com/TemamAb/ainex-sub000/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	encryptKeyPath := flag.String("encrypt-key", "", "write an encrypted keystore to this path and exit (reads AINEX_WALLET_PRIVATE_KEY and AINEX_WALLET_KEY_PASSWORD)")
	flag.Parse()

	if *encryptKeyPath != "" {
		if err := writeKeystore(*encryptKeyPath); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt-key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("keystore written to %s\n", *encryptKeyPath)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run owns the application lifecycle so deferred cleanup fires on every exit
// path; main only translates its error into an exit code.
func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Debug("active configuration", slog.Any("config", config.RedactedConfig(cfg)))
	logger.Info("ainex starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// context.Canceled is the clean-shutdown path.
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("ainex stopped")
	return nil
}

// newLogger builds the JSON logger at the configured level, falling back to
// info when the name does not parse.
func newLogger(levelName string) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// writeKeystore encrypts the key from AINEX_WALLET_PRIVATE_KEY under
// AINEX_WALLET_KEY_PASSWORD and writes the keystore JSON to path. The running
// pipeline then only needs the password and the file.
func writeKeystore(path string) error {
	raw := os.Getenv("AINEX_WALLET_PRIVATE_KEY")
	password := os.Getenv("AINEX_WALLET_KEY_PASSWORD")
	if raw == "" || password == "" {
		return errors.New("AINEX_WALLET_PRIVATE_KEY and AINEX_WALLET_KEY_PASSWORD must both be set")
	}

	blob, err := crypto.EncryptKey(raw, password)
	if err != nil {
		return err
	}
	return os.WriteFile(path, blob, 0o600)
}
