package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

var errUnavailable = errors.New("storage unavailable")

func (a *app) setCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "cache a value, parsed as JSON when possible",
		ArgsUsage: "KEY VALUE",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "ttl",
				Aliases: []string{"t"},
				Usage:   "time to live, cache.default_ttl when unset",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 2 {
				return fmt.Errorf("expected KEY and VALUE, got %d arguments", cmd.NArg())
			}
			key, raw := cmd.Args().Get(0), cmd.Args().Get(1)

			ttl := cmd.Duration("ttl")
			if !cmd.IsSet("ttl") {
				ttl, _ = a.config.GetDefaultTTL()
			}

			var value any = raw
			if json.Valid([]byte(raw)) {
				value = json.RawMessage(raw)
			}

			if !a.cache.Set(key, value, ttl) {
				return fmt.Errorf("failed to cache %q", key)
			}
			return nil
		},
	}
}

func (a *app) getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "print a cached value as JSON",
		ArgsUsage: "KEY",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("expected KEY, got %d arguments", cmd.NArg())
			}
			key := cmd.Args().First()

			// Printed as stored, so large integers keep every digit
			var value json.RawMessage
			if !a.cache.GetInto(key, &value) {
				return fmt.Errorf("%q is not cached", key)
			}

			var out bytes.Buffer
			if err := json.Indent(&out, value, "", "  "); err != nil {
				return fmt.Errorf("failed to format value: %w", err)
			}
			_, err := fmt.Fprintln(cmd.Root().Writer, out.String())
			return err
		},
	}
}

func (a *app) rmCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "remove cached values",
		ArgsUsage: "KEY...",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.NArg() == 0 {
				return fmt.Errorf("expected at least one KEY")
			}
			for _, key := range cmd.Args().Slice() {
				a.cache.Remove(key)
			}
			return nil
		},
	}
}

func (a *app) clearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "remove every cached value, leaving other stored data alone",
		Action: func(_ context.Context, _ *cli.Command) error {
			a.cache.Clear()
			return nil
		},
	}
}

func (a *app) statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "summarise cached entries",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output format: text, json or yaml",
				Value:   "text",
				Validator: func(value string) error {
					switch value {
					case "text", "json", "yaml":
						return nil
					}
					return fmt.Errorf("unsupported output format %q", value)
				},
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			stats, ok := a.cache.Stats()
			if !ok {
				return fmt.Errorf("failed to enumerate cache entries")
			}

			w := cmd.Root().Writer
			switch cmd.String("output") {
			case "json":
				out, err := json.MarshalIndent(stats, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, string(out))
				return err
			case "yaml":
				out, err := yaml.Marshal(stats)
				if err != nil {
					return err
				}
				_, err = w.Write(out)
				return err
			}

			_, err := fmt.Fprintf(w, "entries: %d (valid %d, expired %d)\nsize:    %s (%d bytes)\n",
				stats.TotalEntries, stats.ValidEntries, stats.ExpiredEntries,
				humanize.IBytes(uint64(stats.TotalSizeBytes)), stats.TotalSizeBytes)
			return err
		},
	}
}

func (a *app) probeCommand() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "check that the storage accepts writes",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if !a.cache.IsAvailable() {
				return errUnavailable
			}
			_, err := fmt.Fprintln(cmd.Root().Writer, "storage available")
			return err
		},
	}
}
