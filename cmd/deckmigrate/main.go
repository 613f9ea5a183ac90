package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/deckmigrate/internal"
	"github.com/starford/deckmigrate/internal/batch"
	"github.com/starford/deckmigrate/internal/deleter"
	"github.com/starford/deckmigrate/internal/export"
	"github.com/starford/deckmigrate/internal/importer"
	"github.com/starford/deckmigrate/internal/progress"
	"github.com/starford/deckmigrate/internal/remote"
	pkgconfig "github.com/starford/deckmigrate/pkg/config"
)

func main() {
	cmd := &cli.Command{
		Name:  "deckmigrate",
		Usage: "Migrate flashcard decks between content-management API instances through file bundles",
		Commands: []*cli.Command{
			exportCommand(),
			importCommand(),
			deleteCommand(),
			batchImportCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintf(os.Stderr, "%s", debug.Stack())
		os.Exit(1)
	}
}

// connectionFlags are shared by every subcommand that talks to a target
// instance.
func connectionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML config file",
			Sources: cli.EnvVars("DECKMIGRATE_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "protocol",
			Aliases: []string{"l"},
			Usage:   "Target protocol (http or https)",
		},
		&cli.StringFlag{
			Name:    "host",
			Aliases: []string{"s"},
			Usage:   "Target host",
		},
		&cli.StringFlag{
			Name:    "port",
			Aliases: []string{"t"},
			Usage:   "Target port, or \"none\" for the protocol default",
		},
		&cli.StringFlag{
			Name:    "user",
			Aliases: []string{"u"},
			Usage:   "Sign-in username",
		},
		&cli.StringFlag{
			Name:    "password",
			Aliases: []string{"w"},
			Usage:   "Sign-in password",
			Sources: cli.EnvVars("ADMIN_PASSWORD"),
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level (debug, info, warn, error)",
			Value: "info",
		},
		&cli.BoolFlag{
			Name:  "no-spinner",
			Usage: "Disable the terminal spinner",
		},
	}
}

func exportCommand() *cli.Command {
	flags := append(connectionFlags(),
		&cli.StringFlag{
			Name:     "deck-name",
			Aliases:  []string{"d"},
			Usage:    "Name of the deck to export",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "owner",
			Aliases:  []string{"o"},
			Usage:    "Username of the deck owner",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "data-path",
			Aliases: []string{"p"},
			Usage:   "Parent directory for bundle subdirectories",
		},
		&cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"f"},
			Usage:   "Explicit bundle directory, overriding data-path",
		},
		&cli.StringFlag{
			Name:    "responses",
			Aliases: []string{"r"},
			Usage:   "Responses mode: none, true, or only",
		},
	)

	return &cli.Command{
		Name:  "export",
		Usage: "Export a deck from the target instance into a file bundle",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			env, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			responses, err := internal.ParseResponsesMode(cmd.String("responses"))
			if err != nil {
				return err
			}
			if v := cmd.String("data-path"); v != "" {
				env.cfg.DataPath = v
			}

			reporter := env.newReporter("Exporting deck")
			result, err := export.New(env.client, env.logger, reporter).Run(ctx, export.Options{
				DeckName:      cmd.String("deck-name"),
				OwnerUsername: cmd.String("owner"),
				DataPath:      env.cfg.DataPath,
				Dir:           cmd.String("dir"),
				Responses:     responses,
			})
			if err != nil {
				reporter.Fail()
				return err
			}
			env.logger.Info("export of deck complete",
				slog.Int64("deck_id", result.DeckID),
				slog.String("path", result.Path))
			return nil
		},
	}
}

func importCommand() *cli.Command {
	flags := append(connectionFlags(),
		&cli.StringFlag{
			Name:     "dir",
			Aliases:  []string{"f"},
			Usage:    "Bundle directory to import",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "owner",
			Aliases:  []string{"o"},
			Usage:    "Username of the target-side deck owner",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "deck-name",
			Aliases: []string{"d"},
			Usage:   "Override the deck name from the bundle",
		},
		&cli.StringFlag{
			Name:    "responses",
			Aliases: []string{"r"},
			Usage:   "Responses mode: none, true, or only",
		},
		&cli.BoolFlag{
			Name:    "rename-conflict",
			Aliases: []string{"rc"},
			Usage:   "Rename an existing deck of the owner if its name conflicts",
		},
		&cli.IntFlag{
			Name:    "existing-deck-id",
			Aliases: []string{"ei"},
			Usage:   "Existing deck id for a responses-only import",
		},
		&cli.StringFlag{
			Name:    "test-auto",
			Aliases: []string{"a"},
			Usage:   "Marker copied onto every created record",
		},
	)

	return &cli.Command{
		Name:  "import",
		Usage: "Import a file bundle into the target instance",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			env, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			responses, err := internal.ParseResponsesMode(cmd.String("responses"))
			if err != nil {
				return err
			}

			reporter := env.newReporter("Importing deck")
			result, err := importer.New(env.client, env.logger, reporter).Run(ctx, importer.Options{
				Dir:            cmd.String("dir"),
				OwnerUsername:  cmd.String("owner"),
				DeckName:       cmd.String("deck-name"),
				Responses:      responses,
				RenameConflict: cmd.Bool("rename-conflict"),
				ExistingDeckID: cmd.Int("existing-deck-id"),
				TestAuto:       cmd.String("test-auto"),
			})
			if err != nil {
				reporter.Fail()
				return err
			}
			env.logger.Info("import of deck complete",
				slog.Int64("deck_id", result.DeckID),
				slog.Int("cards", result.Cards),
				slog.Int("skipped_responses", result.Skipped))
			return nil
		},
	}
}

func deleteCommand() *cli.Command {
	flags := append(connectionFlags(),
		&cli.StringFlag{
			Name:    "deck-name",
			Aliases: []string{"d"},
			Usage:   "Name of the deck to delete",
		},
		&cli.IntFlag{
			Name:  "card-id",
			Usage: "Id of a single card to delete",
		},
		&cli.StringFlag{
			Name:    "owner",
			Aliases: []string{"o"},
			Usage:   "Username of the deck owner",
		},
	)

	return &cli.Command{
		Name:  "delete",
		Usage: "Delete a deck or a single card, cascading through assets",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			env, err := setup(ctx, cmd)
			if err != nil {
				return err
			}

			reporter := env.newReporter("Deleting")
			err = deleter.New(env.client, env.logger, reporter).Run(ctx, deleter.Options{
				DeckName:      cmd.String("deck-name"),
				CardID:        cmd.Int("card-id"),
				OwnerUsername: cmd.String("owner"),
			})
			if err != nil {
				reporter.Fail()
				return err
			}
			return nil
		},
	}
}

func batchImportCommand() *cli.Command {
	return &cli.Command{
		Name:  "batch-import",
		Usage: "Run the import against multiple environments as separate processes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the batch YAML file",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
				Value: "info",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger, err := newLogger(cmd.String("log-level"))
			if err != nil {
				return err
			}
			cfg := &batch.Config{}
			if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
				return err
			}
			return batch.New(os.Args[0], logger).Run(ctx, cfg)
		},
	}
}

// environment is everything a subcommand needs to run an engine.
type environment struct {
	cfg     *internal.Config
	logger  *slog.Logger
	client  *remote.Client
	spinner bool
}

// setup builds the configuration from defaults, the optional config file,
// and flag overrides, then signs in to the target.
func setup(ctx context.Context, cmd *cli.Command) (*environment, error) {
	cfg := internal.NewDefaultConfig()
	if path := cmd.String("config"); path != "" {
		if err := pkgconfig.Load(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if v := cmd.String("protocol"); v != "" {
		cfg.Target.Protocol = v
	}
	if v := cmd.String("host"); v != "" {
		cfg.Target.Host = v
	}
	if v := cmd.String("port"); v != "" {
		cfg.Target.Port = v
	}
	if v := cmd.String("user"); v != "" {
		cfg.Auth.Username = v
	}
	if v := cmd.String("password"); v != "" {
		cfg.Auth.Password = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cmd.String("log-level"))
	if err != nil {
		return nil, err
	}
	logger.Debug("using api url", slog.String("url", cfg.Target.APIURL()))

	client, err := remote.New(cfg.Target.APIURL(), logger)
	if err != nil {
		return nil, err
	}
	if err := client.SignIn(ctx, cfg.Auth.Username, cfg.Auth.Password); err != nil {
		return nil, fmt.Errorf("sign in failed: %w", err)
	}

	return &environment{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		spinner: !cmd.Bool("no-spinner"),
	}, nil
}

func (e *environment) newReporter(msg string) progress.Reporter {
	if !e.spinner {
		return progress.Discard{}
	}
	return progress.NewSpinner(msg)
}

func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}
