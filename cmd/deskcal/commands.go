package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"deskcal/internal/calendar"
	"deskcal/internal/config"
	"deskcal/internal/ics"
	appLog "deskcal/internal/log"
	"deskcal/internal/model"
	"deskcal/internal/status"
	"deskcal/internal/store"
	"deskcal/internal/theme"
	"deskcal/internal/web"
)

func serveCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the JSON API, keep the status clock ticking and refresh on schedule.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "HTTP listen address (overrides config)"},
		},
		Action: func(c *cli.Context) error {
			if c.IsSet("listen") {
				a.cfg.Listen = c.String("listen")
			}
			ctrl, err := a.controller(c.Context, true)
			if err != nil {
				return err
			}

			line := status.NewLine(status.Clock{Location: a.loc})
			syncWeather := func() {
				snap, _ := ctrl.Weather()
				line.SetWeather(snap)
			}
			syncWeather()

			ticker, err := status.NewTicker(line, a.cfg.Refresh, ctrl, syncWeather)
			if err != nil {
				return fmt.Errorf("invalid refresh schedule %q: %w", a.cfg.Refresh, err)
			}
			ticker.Start()
			defer ticker.Stop()

			appLog.Info("deskcal serving", "version", version, "listen", a.cfg.Listen, "refresh", a.cfg.Refresh)
			return web.StartServer(c.Context, web.NewServer(a.cfg, ctrl, line))
		},
	}
}

func monthCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "month",
		Usage: "Print a month with holidays and events.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "next", Usage: "move forward N months"},
			&cli.IntFlag{Name: "prev", Usage: "move back N months"},
			&cli.StringFlag{Name: "theme", Usage: "light or dark (overrides config)"},
			&cli.BoolFlag{Name: "no-weather", Usage: "skip the forecast request"},
		},
		Action: func(c *cli.Context) error {
			ctrl, err := a.controller(c.Context, !c.Bool("no-weather"))
			if err != nil {
				return err
			}
			for i := 0; i < c.Int("next"); i++ {
				ctrl.Advance(c.Context)
			}
			for i := 0; i < c.Int("prev"); i++ {
				ctrl.Retreat(c.Context)
			}

			th := theme.ByName(a.cfg.Theme)
			if c.IsSet("theme") {
				th = theme.ByName(c.String("theme"))
			}
			clock := status.Clock{Location: a.loc}
			_, err = fmt.Fprintln(c.App.Writer, renderMonth(c.App.Writer, ctrl.View(), th, clock.Text()))
			return err
		},
	}
}

func eventsCommand(a *app) *cli.Command {
	dateFlag := &cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "YYYY-MM-DD or e.g. \"tomorrow\", \"next friday\" (default: today)"}
	fieldFlags := []cli.Flag{
		&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "title, e.g. " + strings.Join(titleChoices(), ", ")},
		&cli.StringFlag{Name: "start", Usage: "start time HH:MM"},
		&cli.StringFlag{Name: "end", Usage: "end time HH:MM"},
		&cli.StringFlag{Name: "memo", Usage: "free-form note"},
	}
	indexFlag := &cli.IntFlag{Name: "index", Aliases: []string{"i"}, Required: true, Usage: "position in the day's list, from 0"}

	return &cli.Command{
		Name:  "events",
		Usage: "List, add, update or delete events.",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List a day's events.",
				Flags: []cli.Flag{dateFlag},
				Action: func(c *cli.Context) error {
					date, err := a.resolveDate(c.String("date"))
					if err != nil {
						return err
					}
					ctrl, err := a.controller(c.Context, false)
					if err != nil {
						return err
					}
					printDay(c.App.Writer, date, ctrl.EventsForDate(date), holidayName(ctrl, date))
					return nil
				},
			},
			{
				Name:  "add",
				Usage: "Add an event.",
				Flags: append([]cli.Flag{dateFlag}, fieldFlags...),
				Action: func(c *cli.Context) error {
					date, err := a.resolveDate(c.String("date"))
					if err != nil {
						return err
					}
					ctrl, err := a.controller(c.Context, false)
					if err != nil {
						return err
					}
					if err := ctrl.AddEvent(c.Context, date, c.String("title"), c.String("start"), c.String("end"), c.String("memo")); err != nil {
						return err
					}
					printDay(c.App.Writer, date, ctrl.EventsForDate(date), holidayName(ctrl, date))
					return nil
				},
			},
			{
				Name:  "update",
				Usage: "Replace the event at --index.",
				Flags: append([]cli.Flag{dateFlag, indexFlag}, fieldFlags...),
				Action: func(c *cli.Context) error {
					date, err := a.resolveDate(c.String("date"))
					if err != nil {
						return err
					}
					ctrl, err := a.controller(c.Context, false)
					if err != nil {
						return err
					}
					ok, err := ctrl.UpdateEvent(c.Context, date, c.Int("index"), c.String("title"), c.String("start"), c.String("end"), c.String("memo"))
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("%w: %s #%d", store.ErrNotFound, date, c.Int("index"))
					}
					printDay(c.App.Writer, date, ctrl.EventsForDate(date), holidayName(ctrl, date))
					return nil
				},
			},
			{
				Name:  "delete",
				Usage: "Delete the event at --index.",
				Flags: []cli.Flag{dateFlag, indexFlag},
				Action: func(c *cli.Context) error {
					date, err := a.resolveDate(c.String("date"))
					if err != nil {
						return err
					}
					ctrl, err := a.controller(c.Context, false)
					if err != nil {
						return err
					}
					ok, err := ctrl.DeleteEvent(c.Context, date, c.Int("index"))
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("%w: %s #%d", store.ErrNotFound, date, c.Int("index"))
					}
					printDay(c.App.Writer, date, ctrl.EventsForDate(date), holidayName(ctrl, date))
					return nil
				},
			},
		},
	}
}

func holidaysCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "holidays",
		Usage: "Print the national holidays of a year (cached after the first fetch).",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "year", Aliases: []string{"y"}, Usage: "year (default: this year)"},
		},
		Action: func(c *cli.Context) error {
			year := c.Int("year")
			if year == 0 {
				year = time.Now().In(a.loc).Year()
			}
			res := a.holidayCache().ForYear(c.Context, year)
			if res.Status == model.StatusDegraded {
				return fmt.Errorf("holidays for %d unavailable: %w", year, res.Err)
			}
			w := c.App.Writer
			for _, key := range sortedDateKeys(res.Holidays) {
				fmt.Fprintf(w, "%s  %s\n", key, res.Holidays[key])
			}
			if res.Status == model.StatusEmpty {
				fmt.Fprintf(w, "no holidays published for %d\n", year)
			}
			return nil
		},
	}
}

func weatherCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "weather",
		Usage: "Print today's forecast sentence for the configured region.",
		Action: func(c *cli.Context) error {
			res := a.weatherFetcher().FetchToday(c.Context)
			switch res.Status {
			case model.StatusOK:
				fmt.Fprintf(c.App.Writer, "%s %s\n", status.Glyphs(res.Snapshot.Icons), res.Snapshot.Description)
				return nil
			case model.StatusEmpty:
				fmt.Fprintln(c.App.Writer, "no forecast for today")
				return nil
			default:
				return fmt.Errorf("weather unavailable: %w", res.Err)
			}
		},
	}
}

func exportCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write all events and this year's holidays as iCalendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file (default: stdout)"},
		},
		Action: func(c *cli.Context) error {
			ctrl, err := a.controller(c.Context, false)
			if err != nil {
				return err
			}
			v := ctrl.View()
			body := ics.Export(v.Events, v.Holidays, a.loc, time.Now())
			if out := c.String("out"); out != "" {
				if err := os.WriteFile(out, []byte(body), 0o644); err != nil {
					return err
				}
				appLog.Info("exported calendar", "path", out, "events", v.Events.Count(), "holidays", len(v.Holidays))
				return nil
			}
			_, err = io.WriteString(c.App.Writer, body)
			return err
		},
	}
}

func importCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Add the events of an .ics file, expanding recurrences inside a window.",
		ArgsUsage: "<file.ics>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Usage: "window start, date or phrase (default: first day of this month)"},
			&cli.StringFlag{Name: "to", Usage: "window end, date or phrase (default: one year after --from)"},
			&cli.BoolFlag{Name: "dry-run", Usage: "print what would be added without saving"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("import needs exactly one .ics file")
			}
			path := c.Args().First()
			body, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			from, to, err := a.importWindow(c.String("from"), c.String("to"))
			if err != nil {
				return err
			}
			parsed, err := ics.ParseICS(path, body)
			if err != nil {
				return err
			}
			res, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
				DisplayLocation: a.loc,
				RangeStart:      from,
				RangeEnd:        to,
			})
			if err != nil {
				return err
			}
			records := ics.ToRecords(res.Occurrences)

			if c.Bool("dry-run") {
				for _, r := range records {
					fmt.Fprintf(c.App.Writer, "%s  %s\n", r.Date, formatEvent(r.Event))
				}
				return nil
			}

			ctrl, err := a.controller(c.Context, false)
			if err != nil {
				return err
			}
			added := 0
			for _, r := range records {
				if err := ctrl.AddEvent(c.Context, r.Date, r.Event.Title, r.Event.StartTime, r.Event.EndTime, r.Event.Memo); err != nil {
					appLog.Warn("import: skipping event", "date", r.Date, "title", r.Event.Title, "err", err)
					continue
				}
				added++
			}
			fmt.Fprintf(c.App.Writer, "imported %d of %d occurrences from %s\n", added, len(records), path)
			return nil
		},
	}
}

func hashPasswordCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "hash-password",
		Usage: "Hash a password for basic_auth.password_hash.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "also store user and hash in the config file"},
		},
		Action: func(c *cli.Context) error {
			password, err := readPassword(c.App.Reader, c.App.ErrWriter)
			if err != nil {
				return err
			}
			hash, err := web.HashPassword(password)
			if err != nil {
				return err
			}
			if user := c.String("user"); user != "" {
				// Edit the file as written, without .env or DESKCAL_* overrides.
				fileCfg, err := config.LoadFile(a.configPath)
				if err != nil {
					return fmt.Errorf("load config %s: %w", a.configPath, err)
				}
				fileCfg.BasicAuth = &config.BasicAuthConfig{Username: user, PasswordHash: hash}
				if err := fileCfg.Save(a.configPath); err != nil {
					return err
				}
				a.cfg.BasicAuth = fileCfg.BasicAuth
				appLog.Info("basic auth saved", "user", user, "config", a.configPath)
				return nil
			}
			fmt.Fprintln(c.App.Writer, hash)
			return nil
		},
	}
}

// readPassword prompts twice on a terminal, or reads one line otherwise.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return "", errors.New("empty password")
		}
		return line, nil
	}
	fd := int(f.Fd())

	fmt.Fprint(prompt, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", err
	}
	fmt.Fprint(prompt, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", err
	}
	if len(first) == 0 {
		return "", errors.New("empty password")
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

// importWindow resolves --from/--to, defaulting to the current month start
// and one year after it.
func (a *app) importWindow(fromRaw, toRaw string) (time.Time, time.Time, error) {
	now := time.Now().In(a.loc)
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, a.loc)
	if fromRaw != "" {
		key, err := parseDate(fromRaw, now)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = dayStart(key, a.loc)
	}
	to := from.AddDate(1, 0, 0)
	if toRaw != "" {
		key, err := parseDate(toRaw, now)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = dayStart(key, a.loc).AddDate(0, 0, 1)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to must be after --from")
	}
	return from, to, nil
}

func dayStart(key string, loc *time.Location) time.Time {
	t, _ := calendar.ParseDateKey(key)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func (a *app) resolveDate(raw string) (string, error) {
	now := time.Now().In(a.loc)
	if raw == "" {
		return calendar.DateKeyOf(now), nil
	}
	return parseDate(raw, now)
}
