package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/chaz8081/renpho-ble/internal/config"
)

// CLI is the command-line grammar.
type CLI struct {
	Config  string `help:"Path to config file (default: ~/.config/renpho-ble/config.yaml)." type:"path" placeholder:"PATH"`
	Verbose bool   `short:"v" help:"Enable debug logging."`

	Measure    MeasureCmd    `cmd:"" help:"Connect to the scale and take one measurement."`
	Scan       ScanCmd       `cmd:"" help:"List nearby Renpho scales."`
	Watch      WatchCmd      `cmd:"" help:"Decode body-composition advertisements without connecting."`
	History    HistoryCmd    `cmd:"" help:"Print measurements from the journal."`
	DecodeAdv  DecodeAdvCmd  `cmd:"" help:"Decode a manufacturer-data blob given as hex."`
	InitConfig InitConfigCmd `cmd:"" help:"Write the default config file."`
}

// app carries what every command needs. The config is loaded on first use
// so init-config works without one.
type app struct {
	ctx        context.Context
	log        *slog.Logger
	level      *slog.LevelVar
	verbose    bool
	configPath string
	cfg        *config.Config
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("renpho-ble"),
		kong.Description("Talk to Renpho body-composition scales over Bluetooth LE."),
		kong.UsageOnError(),
	)

	level := new(slog.LevelVar)
	if cli.Verbose {
		level.Set(slog.LevelDebug)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := kctx.Run(&app{
		ctx:        ctx,
		log:        logger,
		level:      level,
		verbose:    cli.Verbose,
		configPath: cli.Config,
	})
	kctx.FatalIfErrorf(err)
}

// config loads and validates the configuration once and applies its log
// level unless -v was given.
func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := loadConfig(a.configPath, a.log)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	if !a.verbose {
		a.level.Set(config.ParseLogLevel(cfg.LogLevel))
	}
	a.cfg = cfg
	return cfg, nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		logger.Debug("config loaded", "path", defaultPath)
		return cfg, nil
	}

	logger.Debug("no config file found, using defaults")
	return config.Default(), nil
}
