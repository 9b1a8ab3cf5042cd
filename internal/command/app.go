package command

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/iTrooz/kiosk-dashboard/internal/cache"
	"github.com/iTrooz/kiosk-dashboard/internal/config"
	"github.com/iTrooz/kiosk-dashboard/internal/metrics"
	"github.com/iTrooz/kiosk-dashboard/internal/storage"
)

// InitError wraps failures that happen before any command runs
type InitError struct {
	Err error
}

func (e *InitError) Error() string { return e.Err.Error() }
func (e *InitError) Unwrap() error { return e.Err }

// app holds what every command needs, built once the global flags are parsed
type app struct {
	configPath string
	config     *config.Config
	cache      *cache.Cache
	metrics    *metrics.Metrics
}

// InitApp builds the kioskcache command tree
func InitApp() *cli.Command {
	a := &app{}

	return &cli.Command{
		Name:  "kioskcache",
		Usage: "Kiosk dashboard cache maintenance and weather lookups",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file, defaults apply when unset",
				Sources: cli.NewValueSourceChain(
					cli.EnvVar("KIOSK_CONFIG"),
				),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "overrides log.level from the config",
				Sources: cli.NewValueSourceChain(
					cli.EnvVar("KIOSK_LOG"),
				),
			},
			&cli.StringFlag{
				Name:  "metrics-textfile",
				Usage: "write cache metrics to this file on exit, overrides metrics.textfile",
			},
		},
		Before: a.before,
		After:  a.after,
		Commands: []*cli.Command{
			a.setCommand(),
			a.getCommand(),
			a.rmCommand(),
			a.clearCommand(),
			a.statsCommand(),
			a.probeCommand(),
			a.weatherCommand(),
		},
	}
}

func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	a.configPath = cmd.String("config")

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return ctx, &InitError{fmt.Errorf("failed to load config: %w", err)}
	}
	if level := cmd.String("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if path := cmd.String("metrics-textfile"); path != "" {
		cfg.Metrics.Textfile = path
	}
	if err := cfg.Validate(); err != nil {
		return ctx, &InitError{fmt.Errorf("invalid configuration: %w", err)}
	}

	level, _ := cfg.GetLogLevel()
	logrus.SetLevel(level)

	store, err := storage.New(cfg.Storage)
	if err != nil {
		return ctx, &InitError{err}
	}
	if err := store.Init(); err != nil {
		return ctx, &InitError{fmt.Errorf("failed to initialize storage: %w", err)}
	}

	a.config = cfg
	a.metrics = metrics.New()
	a.cache = cache.New(store,
		cache.WithPrefix(cfg.Cache.Prefix),
		cache.WithMetrics(a.metrics),
	)

	logrus.Debugf("Storage backend: %s", cfg.Storage.Backend)
	logrus.Debugf("Cache prefix: %s", cfg.Cache.Prefix)
	return ctx, nil
}

func (a *app) after(_ context.Context, _ *cli.Command) error {
	if a.config == nil || a.config.Metrics.Textfile == "" {
		return nil
	}
	if err := a.metrics.WriteTextfile(a.config.Metrics.Textfile); err != nil {
		logrus.Errorf("Failed to export metrics: %v", err)
	}
	return nil
}
