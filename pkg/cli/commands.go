package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"dsget/pkg/blob"
	"dsget/pkg/config"
	"dsget/pkg/disk"
	"dsget/pkg/display"
	"dsget/pkg/download"
	"dsget/pkg/downloader"
	"dsget/pkg/history"
	"dsget/pkg/opener"
	"dsget/pkg/saver"

	"github.com/urfave/cli/v2"
)

// newOpener is replaced in tests.
var newOpener = opener.New

// Run executes the command line args (without the program name) and
// returns the process exit status.
func Run(ctx context.Context, args []string) int {
	disp := display.NewConsole()
	defer disp.Close()
	return run(ctx, NewApp(disp), disp, args)
}

func run(ctx context.Context, app *cli.App, disp display.Display, args []string) int {
	err := app.RunContext(ctx, append([]string{config.AppName}, args...))
	if err == nil {
		return 0
	}
	if !errors.Is(err, errReported) {
		disp.Notify(display.LevelFailure, err.Error())
	}
	return 1
}

type handlerFunc func(ctx context.Context, c *cli.Context, m *Managers) (*ExecutionResult, error)

// NewApp builds the dsget command line. Everything the user sees goes
// through disp.
func NewApp(disp display.Display) *cli.App {
	theme := DefaultTheme()

	action := func(fn handlerFunc) cli.ActionFunc {
		return func(c *cli.Context) error {
			m, err := setup(c, disp, theme)
			if err != nil {
				return err
			}
			res, err := fn(c.Context, c, m)
			if err != nil {
				return err
			}
			if res != nil && res.ExitCode != 0 {
				return fmt.Errorf("%w: exit status %d", errReported, res.ExitCode)
			}
			return nil
		}
	}

	return &cli.App{
		Name:            config.AppName,
		Usage:           "download files from the analysis platform API",
		HideVersion:     true,
		Writer:          os.Stdout,
		ErrWriter:       os.Stderr,
		ExitErrHandler:  func(*cli.Context, error) {},
		Suggest:         true,
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "base-url", Usage: "API origin, empty for relative URLs (env " + config.EnvBaseURL + ")"},
			&cli.StringFlag{Name: "api-prefix", Usage: "path prefix of the API (env " + config.EnvAPIPrefix + ")"},
			&cli.StringFlag{Name: "token", Usage: "bearer token (env " + config.EnvAPIToken + ")"},
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "download directory (env " + config.EnvDownloadDir + ")"},
			&cli.DurationFlag{Name: "timeout", Usage: "abort when no data arrives for this long, 0 disables (env " + config.EnvInactivityTimeout + ")"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "show debug logs"},
		},
		Before: func(c *cli.Context) error {
			level := slog.LevelWarn
			if c.Bool("verbose") {
				level = slog.LevelDebug
				disp.SetVerbose(true)
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "download a resource into the download directory",
				ArgsUsage: "<resource-path>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "file name to use when the server suggests none"},
					&cli.BoolFlag{Name: "extract", Aliases: []string{"x"}, Usage: "unpack zip and tar archives next to the saved file"},
				},
				Action: action(func(ctx context.Context, c *cli.Context, m *Managers) (*ExecutionResult, error) {
					if c.NArg() != 1 {
						return nil, errors.New("get expects exactly one resource path")
					}
					return runGet(ctx, m, &getParams{Path: c.Args().First(), Name: c.String("name"), Extract: c.Bool("extract")})
				}),
			},
			{
				Name:      "get-all",
				Usage:     "download several resources in parallel",
				ArgsUsage: "<resource-path>...",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "parallel", Aliases: []string{"p"}, Value: 4, Usage: "maximum downloads in flight"},
				},
				Action: action(func(ctx context.Context, c *cli.Context, m *Managers) (*ExecutionResult, error) {
					if c.NArg() == 0 {
						return nil, errors.New("get-all expects at least one resource path")
					}
					return runGetAll(ctx, m, &getAllParams{Paths: c.Args().Slice(), Parallel: c.Int("parallel")})
				}),
			},
			{
				Name:      "open",
				Usage:     "hand the resource URL to the system browser",
				ArgsUsage: "<resource-path>",
				Action: action(func(ctx context.Context, c *cli.Context, m *Managers) (*ExecutionResult, error) {
					if c.NArg() != 1 {
						return nil, errors.New("open expects exactly one resource path")
					}
					return runOpen(ctx, m, c.Args().First())
				}),
			},
			{
				Name:  "history",
				Usage: "list recent downloads",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "number of entries, 0 for all"},
					&cli.BoolFlag{Name: "clear", Usage: "forget all entries"},
				},
				Action: action(func(ctx context.Context, c *cli.Context, m *Managers) (*ExecutionResult, error) {
					return runHistory(ctx, m, &historyParams{Limit: c.Int("limit"), Clear: c.Bool("clear")})
				}),
			},
			{
				Name:  "disk",
				Usage: "inspect and reclaim local storage",
				Subcommands: []*cli.Command{
					{
						Name:  "info",
						Usage: "show storage usage",
						Action: action(func(ctx context.Context, c *cli.Context, m *Managers) (*ExecutionResult, error) {
							return runDiskInfo(ctx, m)
						}),
					},
					{
						Name:  "clean",
						Usage: "remove payloads left behind by interrupted downloads",
						Flags: []cli.Flag{
							&cli.DurationFlag{Name: "older-than", Value: time.Hour, Usage: "keep files modified more recently"},
						},
						Action: action(func(ctx context.Context, c *cli.Context, m *Managers) (*ExecutionResult, error) {
							return runDiskClean(ctx, m, &diskCleanParams{OlderThan: c.Duration("older-than")})
						}),
					},
				},
			},
			{
				Name:  "config",
				Usage: "show the effective configuration",
				Action: action(func(ctx context.Context, c *cli.Context, m *Managers) (*ExecutionResult, error) {
					return runConfig(ctx, m)
				}),
			},
			{
				Name:  "version",
				Usage: "show version information",
				Action: func(c *cli.Context) error {
					_, err := runVersion(c.Context, &Managers{Disp: disp, Theme: theme})
					return err
				},
			},
		},
	}
}

// setup builds the configuration and the download stack from the
// environment and the global flags.
func setup(c *cli.Context, disp display.Display, theme *Theme) (*Managers, error) {
	cfg, err := config.Init()
	if err != nil {
		return nil, fmt.Errorf("error initializing config: %w", err)
	}

	w := cfg.Checkout()
	if c.IsSet("base-url") {
		w.SetBaseURL(c.String("base-url"))
	}
	if c.IsSet("api-prefix") {
		w.SetAPIPrefix(c.String("api-prefix"))
	}
	if c.IsSet("token") {
		w.SetToken(c.String("token"))
	}
	if c.IsSet("dir") {
		w.SetDownloadDir(c.String("dir"))
	}
	if c.IsSet("timeout") {
		w.SetInactivityTimeout(c.Duration("timeout"))
	}
	cfg.Freeze()

	blobs := blob.NewStore(cfg.GetStagingDir())
	hist := history.Open(cfg.GetHistoryFile())
	transport := downloader.NewDownloader(downloader.Options{
		Token:             cfg.GetToken(),
		InactivityTimeout: cfg.GetInactivityTimeout(),
		ExtraHeaders: map[string]string{
			"User-Agent": config.AppName + "/" + config.BuildVersion,
		},
	})

	return &Managers{
		Disp:   disp,
		SysCfg: cfg,
		Files: download.New(download.Options{
			Transport: transport,
			URLs:      cfg,
			Blobs:     blobs,
			Saver:     saver.New(cfg.GetDownloadDir()),
			Display:   disp,
			History:   hist,
			Opener:    newOpener(),
		}),
		History: hist,
		DiskMgr: disk.NewManager(cfg, blobs),
		Theme:   theme,
	}, nil
}
