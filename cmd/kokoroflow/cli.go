package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/keshon/kokoroflow/internal/console"
	"github.com/keshon/kokoroflow/internal/discord"
	"github.com/keshon/kokoroflow/internal/mind"
	"github.com/keshon/kokoroflow/pkg/util"
)

const timeTpl = "YYYY-MM-DD HH:mm:ss"

func newApp(in io.Reader, out io.Writer) *cli.App {
	app := &cli.App{
		Name:    "kokoroflow",
		Usage:   "Companion chat engine that decides when to speak and for how long to wait",
		Version: Version,
		Reader:  in,
		Writer:  out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file (overrides KFC_CONFIG_FILE)"},
		},
		Commands: []*cli.Command{
			runCmd(),
			consoleCmd(),
			sessionsCmd(),
		},
	}
	// errors are returned to main, not printed and exited here
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Serve Discord direct messages",
		Action: func(c *cli.Context) error {
			e, err := openEngine(c.Context, c.String("config"))
			if err != nil {
				return err
			}
			defer e.Close()

			bot, err := discord.New(e.cfg.Discord, e.log)
			if err != nil {
				return err
			}
			loop, err := e.loop(bot)
			if err != nil {
				return err
			}
			bot.Attach(loop)
			return serve(c.Context, e.log, loop, bot.Run)
		},
	}
}

func consoleCmd() *cli.Command {
	return &cli.Command{
		Name:  "console",
		Usage: "Chat in the terminal, one line per message",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session", Value: "console:local", Usage: "Session id to continue"},
			&cli.StringFlag{Name: "name", Value: "you", Usage: "Your display name"},
			&cli.BoolFlag{Name: "thoughts", Usage: "Show the thought behind silent decisions"},
		},
		Action: func(c *cli.Context) error {
			e, err := openEngine(c.Context, c.String("config"))
			if err != nil {
				return err
			}
			defer e.Close()

			con := console.New(c.App.Reader, c.App.Writer, console.Options{
				SessionID:    c.String("session"),
				UserName:     c.String("name"),
				ShowThoughts: c.Bool("thoughts"),
			}, e.log)
			loop, err := e.loop(con)
			if err != nil {
				return err
			}
			return serve(c.Context, e.log, loop, func(ctx context.Context) error {
				return con.Run(ctx, loop)
			})
		},
	}
}

func sessionsCmd() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Inspect persisted sessions",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List sessions with their state",
				Action: func(c *cli.Context) error {
					e, err := openEngine(c.Context, c.String("config"))
					if err != nil {
						return err
					}
					defer e.Close()
					return listSessions(c.App.Writer, e.store)
				},
			},
			{
				Name:      "show",
				Usage:     "Print the timeline of one session",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: string(mind.FormatNarrative), Usage: "narrative|table|json"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("expected one session id, got %d arguments", c.NArg())
					}
					e, err := openEngine(c.Context, c.String("config"))
					if err != nil {
						return err
					}
					defer e.Close()
					return showSession(c.App.Writer, e.store, c.Args().First(), c.String("format"))
				},
			},
		},
	}
}

func listSessions(w io.Writer, store *mind.Store) error {
	sums := store.Summaries()
	slices.SortFunc(sums, func(a, b mind.Summary) int { return b.LastActivityAt.Compare(a.LastActivityAt) })

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tLAST ACTIVITY\tLAST SENDER\tTIMEOUTS\tDEADLINE")
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.State, stamp(s.LastActivityAt), s.LastSender, s.ConsecutiveTimeouts, stamp(s.Deadline))
	}
	return tw.Flush()
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return util.FormatTpl(t, timeTpl)
}

func showSession(w io.Writer, store *mind.Store, id, format string) error {
	sess, ok := store.Lookup(id)
	if !ok {
		return fmt.Errorf("session %q not found", id)
	}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sess.Snapshot())
	case string(mind.FormatNarrative), string(mind.FormatTable):
		_, err := io.WriteString(w, sess.Render(mind.Format(format)))
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
