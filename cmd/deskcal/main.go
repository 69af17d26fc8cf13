package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"deskcal/internal/config"
	"deskcal/internal/controller"
	"deskcal/internal/holiday"
	appLog "deskcal/internal/log"
	"deskcal/internal/store"
	"deskcal/internal/weather"
)

const version = "0.3.0"

// app carries what every command needs once the config is loaded.
type app struct {
	cfg        *config.Config
	configPath string
	loc        *time.Location
}

func main() {
	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{}
	if err := newCLI(a).RunContext(ctx, os.Args); err != nil {
		appLog.Error("deskcal failed", err)
		os.Exit(1)
	}
}

func newCLI(a *app) *cli.App {
	return &cli.App{
		Name:    "deskcal",
		Usage:   "Month calendar with holidays, events and today's weather.",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultPath(),
				Usage:   "path to config file (created with defaults if missing)",
				EnvVars: []string{"DESKCAL_CONFIG"},
			},
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "optional .env file with DESKCAL_* overrides"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error (overrides config)"},
		},
		Before: a.setup,
		Commands: []*cli.Command{
			serveCommand(a),
			monthCommand(a),
			eventsCommand(a),
			holidaysCommand(a),
			weatherCommand(a),
			exportCommand(a),
			importCommand(a),
			hashPasswordCommand(a),
		},
	}
}

// setup loads .env, the config file and the log level.
func (a *app) setup(c *cli.Context) error {
	appLog.SetOutput(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))
	config.LoadDotEnv(c.String("env-file"))

	a.configPath = c.String("config")
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", a.configPath, err)
	}
	a.cfg = cfg
	a.loc = cfg.Location()

	level := cfg.LogLevel
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	appLog.SetLevel(appLog.ParseLevel(level))

	appLog.Debug("effective config",
		"config_path", a.configPath,
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"events_file", cfg.EventsFile,
		"holiday_cache", cfg.HolidayCacheFile,
		"refresh", cfg.Refresh,
		"http_timeout", cfg.HTTPTimeout,
		"basic_auth", cfg.BasicAuth != nil,
	)
	return nil
}

func (a *app) holidayCache() *holiday.Cache {
	return holiday.New(a.cfg.HolidayCacheFile, holiday.NewHTTPSource(a.cfg.Holidays.URL, a.cfg.HTTPClient()))
}

func (a *app) weatherFetcher() *weather.Fetcher {
	return weather.NewFetcher(a.cfg.Weather.URL, a.cfg.Weather.Region, a.cfg.HTTPClient())
}

// controller provisions the events file and builds a loaded controller.
// withWeather controls whether reloads fetch the forecast.
func (a *app) controller(ctx context.Context, withWeather bool) (*controller.Controller, error) {
	if err := store.Provision(a.cfg.EventsFile, a.cfg.EventsTemplate); err != nil {
		return nil, fmt.Errorf("provision events file: %w", err)
	}
	deps := controller.Deps{
		Store:    store.New(a.cfg.EventsFile),
		Holidays: a.holidayCache(),
		Location: a.loc,
	}
	if withWeather {
		deps.Weather = a.weatherFetcher()
	}
	return controller.New(ctx, deps), nil
}
