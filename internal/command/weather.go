package command

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/iTrooz/kiosk-dashboard/internal/config"
	"github.com/iTrooz/kiosk-dashboard/internal/weather"
)

func (a *app) weatherCommand() *cli.Command {
	return &cli.Command{
		Name:  "weather",
		Usage: "show the current conditions, served from the cache while fresh",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "forecast",
				Aliases: []string{"f"},
				Usage:   "also show the daily forecast",
			},
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "keep refreshing until interrupted",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "refresh interval with --watch, weather.refresh when unset",
			},
		},
		Action: a.weatherAction,
	}
}

func (a *app) weatherAction(ctx context.Context, cmd *cli.Command) error {
	client, err := weather.New(a.config, a.cache)
	if err != nil {
		return err
	}

	w := cmd.Root().Writer
	forecast := cmd.Bool("forecast")

	if !cmd.Bool("watch") {
		return showWeather(ctx, w, client, a.config.Weather.Units, forecast)
	}

	interval := cmd.Duration("interval")
	if !cmd.IsSet("interval") {
		interval, _ = a.config.GetWeatherRefresh()
	}
	if interval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %s", interval)
	}

	var current atomic.Pointer[weather.Client]
	current.Store(client)
	var units atomic.Value
	units.Store(a.config.Weather.Units)

	if a.configPath != "" {
		stop, err := config.Watch(a.configPath, func(cfg *config.Config) {
			next, err := weather.New(cfg, a.cache)
			if err != nil {
				logrus.Errorf("Keeping previous weather settings: %v", err)
				return
			}
			current.Store(next)
			units.Store(cfg.Weather.Units)
		})
		if err != nil {
			logrus.Warnf("Config changes will not be picked up: %v", err)
		} else {
			defer stop()
		}
	}

	logrus.Infof("Refreshing weather every %s", interval)
	weather.Watch(ctx, interval, func(ctx context.Context) {
		if err := showWeather(ctx, w, current.Load(), units.Load().(string), forecast); err != nil {
			logrus.Errorf("Weather refresh failed: %v", err)
		}
	})
	return nil
}

func showWeather(ctx context.Context, w io.Writer, client *weather.Client, units string, forecast bool) error {
	cond, err := client.Current(ctx)
	if err != nil {
		return err
	}
	symbol := weather.UnitSymbol(units)

	fmt.Fprintf(w, "%s  %.0f%s  %s\n", cond.Location, cond.Temp, symbol, cond.Description)
	fmt.Fprintf(w, "feels like %.0f%s, humidity %d%%, wind %.1f\n", cond.FeelsLike, symbol, cond.Humidity, cond.WindSpeed)
	if !cond.Sunrise.IsZero() && !cond.Sunset.IsZero() {
		fmt.Fprintf(w, "sunrise %s, sunset %s\n", cond.Sunrise.Format("15:04"), cond.Sunset.Format("15:04"))
	}
	if !cond.ObservedAt.IsZero() {
		fmt.Fprintf(w, "observed %s\n", humanize.RelTime(cond.ObservedAt, time.Now(), "ago", "from now"))
	}

	if !forecast {
		return nil
	}
	days, err := client.Forecast(ctx)
	if err != nil {
		return err
	}
	for _, day := range days {
		fmt.Fprintf(w, "%s  %.0f/%.0f%s  %s\n", day.Date, day.Min, day.Max, symbol, day.Description)
	}
	return nil
}
