// Command cbintool decrypts CBIN configuration files to text and encrypts
// edited text back into CBIN files.
//
//	cbintool [--key HEX] <file ...>          decrypt (default)
//	cbintool encrypt <file.txt ...>
//	cbintool headers <file ...>
//	cbintool inspect --format json <file ...>
//
// Every file argument is a glob pattern.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/twinfer/cbin-plugin/internal/batch"
	"github.com/twinfer/cbin-plugin/internal/config"
	"github.com/twinfer/cbin-plugin/pkg/cbin"
	"github.com/urfave/cli/v2"
)

// Version is set via ldflags.
var Version = "dev"

const (
	runnerKey = "runner"
	loggerKey = "logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "cbintool",
		Usage:     "Convert CBIN configuration files to and from text",
		Version:   Version,
		ArgsUsage: "<file ...>",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "key",
				Aliases: []string{"k"},
				Usage:   "XOR key as hex (default: built-in key)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{"CBIN_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
			},
		},
		Before: func(c *cli.Context) error {
			runner, logger, err := setup(c, stdout, stderr)
			if err != nil {
				return err
			}
			c.App.Metadata[runnerKey] = runner
			c.App.Metadata[loggerKey] = logger
			return nil
		},
		Action: run("decrypt", func(c *cli.Context, r *batch.Runner) batch.Report {
			return r.Decrypt(c.Context, c.Args().Slice())
		}),
		Commands: []*cli.Command{
			{
				Name:      "decrypt",
				Aliases:   []string{"d"},
				Usage:     "Decode CBIN files to <file>.txt and <file>_decrypted.bin",
				ArgsUsage: "<file ...>",
				Action: run("decrypt", func(c *cli.Context, r *batch.Runner) batch.Report {
					return r.Decrypt(c.Context, c.Args().Slice())
				}),
			},
			{
				Name:      "encrypt",
				Aliases:   []string{"e"},
				Usage:     "Encode text files to <file>_reconstructed.bin and <file>_encrypted.bin",
				ArgsUsage: "<file.txt ...>",
				Action: run("encrypt", func(c *cli.Context, r *batch.Runner) batch.Report {
					return r.Encrypt(c.Context, c.Args().Slice())
				}),
			},
			{
				Name:      "headers",
				Usage:     "Print the 20-byte header of each CBIN file",
				ArgsUsage: "<file ...>",
				Action: run("headers", func(c *cli.Context, r *batch.Runner) batch.Report {
					return r.Headers(c.Context, c.Args().Slice())
				}),
			},
			{
				Name:      "inspect",
				Usage:     "Print decoded CBIN files without writing anything",
				ArgsUsage: "<file ...>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: text, json, yaml",
						Value:   batch.FormatText,
					},
				},
				Action: run("inspect", func(c *cli.Context, r *batch.Runner) batch.Report {
					return r.Inspect(c.Context, c.Args().Slice(), c.String("format"))
				}),
			},
		},
	}
}

// setup resolves configuration and builds the runner shared by all commands.
func setup(c *cli.Context, stdout, stderr io.Writer) (*batch.Runner, *slog.Logger, error) {
	overrides := map[string]any{}
	if c.IsSet("key") {
		overrides["key"] = c.String("key")
	}
	if c.IsSet("log-level") {
		overrides["log_level"] = c.String("log-level")
	}

	cfg, err := config.NewLoader(
		config.WithConfigFile(c.String("config")),
		config.WithOverrides(overrides),
	).Load()
	if err != nil {
		return nil, nil, err
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, nil, err
	}
	opts, err := cfg.CodecOptions()
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	codec := cbin.NewCodec(append(opts, cbin.WithLogger(logger))...)
	return batch.NewRunner(codec, stdout, logger), logger, nil
}

// run wraps a batch operation as a command action. Per-file failures are
// logged by the runner and do not change the exit status.
func run(op string, fn func(*cli.Context, *batch.Runner) batch.Report) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() == 0 {
			return cli.ShowAppHelp(c)
		}
		runner := c.App.Metadata[runnerKey].(*batch.Runner)
		logger := c.App.Metadata[loggerKey].(*slog.Logger)

		report := fn(c, runner)
		logger.DebugContext(c.Context, "Batch finished", "op", op, "files", report.Files, "failed", len(report.Errors))
		return nil
	}
}
