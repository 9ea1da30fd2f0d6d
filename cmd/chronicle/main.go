// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/poiesic/chronicle"
	"github.com/poiesic/chronicle/config"
	"github.com/poiesic/chronicle/ingestion"
	"github.com/poiesic/chronicle/reconcile"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(os.Stdin, os.Stdout, os.Stderr)
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// runner carries the streams and engine options shared by every command.
type runner struct {
	in         *bufio.Reader
	out        io.Writer
	errOut     io.Writer
	logger     *slog.Logger
	engineOpts []chronicle.EngineOption
}

func newApp(in io.Reader, out, errOut io.Writer, engineOpts ...chronicle.EngineOption) *cli.App {
	r := &runner{
		in:         bufio.NewReader(in),
		out:        out,
		errOut:     errOut,
		logger:     slog.Default(),
		engineOpts: engineOpts,
	}

	sourceFlag := func() cli.Flag {
		return &cli.StringSliceFlag{
			Name:    "source",
			Aliases: []string{"s"},
			Usage:   "Restrict to these sequence keys (repeatable)",
		}
	}

	return &cli.App{
		Name:      "chronicle",
		Usage:     "Ingest transcripts into a vector store and keep it consistent",
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				EnvVars: []string{"CHRONICLE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a dotenv file",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "corpus",
				Usage: "Corpus (source name) to operate on",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log output format (text, json)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "init-collection",
				Usage:  "Create the collection and its payload indexes",
				Action: r.initCollection,
			},
			{
				Name:   "ingest",
				Usage:  "Ingest catalog sources into the store",
				Action: r.ingest,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Reprocess sources that are already stored",
					},
					sourceFlag(),
					&cli.BoolFlag{
						Name:  "retry-failed",
						Usage: "Reprocess the sources that failed in the last run",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of sources processed concurrently",
					},
				},
			},
			{
				Name:   "scan-duplicates",
				Usage:  "Report positions held by more than one point",
				Action: r.scanDuplicates,
			},
			{
				Name:   "clean-duplicates",
				Usage:  "Delete redundant points, keeping one per position",
				Action: r.cleanDuplicates,
				Flags:  []cli.Flag{sourceFlag()},
			},
			{
				Name:   "scan-orphans",
				Usage:  "Report stored sources missing from the catalog",
				Action: r.scanOrphans,
			},
			{
				Name:   "clean-orphans",
				Usage:  "Delete points of sources missing from the catalog",
				Action: r.cleanOrphans,
			},
			{
				Name:   "purge-source",
				Usage:  "Delete every point of the given sources",
				Action: r.purgeSource,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     "source",
						Aliases:  []string{"s"},
						Usage:    "Sequence key to purge (repeatable)",
						Required: true,
					},
				},
			},
			{
				Name:   "purge-corpus",
				Usage:  "Delete every point of the corpus",
				Action: r.purgeCorpus,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "confirm",
						Usage: `Confirmation token ("DELETE <CORPUS>"); prompts when omitted`,
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show point counts and the last run",
				Action: r.status,
			},
		},
	}
}

// open loads the configuration, installs the logger and opens an engine.
func (r *runner) open(c *cli.Context) (*chronicle.Engine, error) {
	overrides := map[string]any{
		"corpus":     c.String("corpus"),
		"log.level":  c.String("log-level"),
		"log.format": c.String("log-format"),
	}
	if c.IsSet("workers") {
		overrides["pipeline.workers"] = c.Int("workers")
	}
	cfg, err := config.Load(c.String("config"),
		config.WithEnvFile(c.String("env-file")),
		config.WithOverrides(overrides),
	)
	if err != nil {
		return nil, err
	}

	r.logger, err = setupLogger(r.errOut, cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(r.logger)

	opts := append([]chronicle.EngineOption{chronicle.WithLogger(r.logger)}, r.engineOpts...)
	return chronicle.Open(cfg, opts...)
}

// withEngine runs fn against an open engine and closes it afterwards.
func (r *runner) withEngine(c *cli.Context, fn func(ctx context.Context, e *chronicle.Engine) error) (err error) {
	e, err := r.open(c)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(c.Context, e)
}

func (r *runner) initCollection(c *cli.Context) error {
	return r.withEngine(c, func(ctx context.Context, e *chronicle.Engine) error {
		if err := e.InitCollection(ctx); err != nil {
			return err
		}
		cfg := e.Config()
		fmt.Fprintf(r.out, "Collection ready (%d dimensions, backend %s)\n", cfg.Embedding.Dimensions, cfg.Store.Backend)
		return nil
	})
}

func (r *runner) ingest(c *cli.Context) error {
	return r.withEngine(c, func(ctx context.Context, e *chronicle.Engine) error {
		pipeline, err := e.NewPipeline(ctx, ingestion.WithProgress(r.errOut))
		if err != nil {
			return err
		}
		defer pipeline.Release()

		fmt.Fprintf(r.errOut, "Corpus: %s\n", e.Config().Corpus)
		fmt.Fprintf(r.errOut, "Embedding model: %s\n", e.Config().Embedding.Model)
		fmt.Fprintln(r.errOut)

		report, err := pipeline.Run(ctx, ingestion.RunOptions{
			Force:       c.Bool("force"),
			Sources:     c.StringSlice("source"),
			RetryFailed: c.Bool("retry-failed"),
		})
		if report != nil {
			printReport(r.out, report)
		}
		return err
	})
}

func printReport(w io.Writer, report *ingestion.RunReport) {
	fmt.Fprintf(w, "Run %s\n", report.ID)
	fmt.Fprintf(w, "  attempted: %d\n", report.Attempted())
	fmt.Fprintf(w, "  succeeded: %d\n", report.Succeeded())
	fmt.Fprintf(w, "  skipped:   %d\n", report.Skipped())
	fmt.Fprintf(w, "  failed:    %d\n", report.Failed())
	fmt.Fprintf(w, "  segments:  %d\n", report.Segments())
	if n := report.Repaired(); n > 0 {
		fmt.Fprintf(w, "  repaired:  %d\n", n)
	}
	if n := report.EmbeddingMissing(); n > 0 {
		fmt.Fprintf(w, "  zero-filled segments: %d (reprocessed by the next run)\n", n)
	}
	fmt.Fprintf(w, "  duration:  %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	for _, f := range report.Failures() {
		fmt.Fprintf(w, "  ! %s (%s) at %s: %s\n", f.SequenceKey, f.DocumentKey, f.Stage, f.Reason)
	}
}

func (r *runner) scanDuplicates(c *cli.Context) error {
	return r.withEngine(c, func(ctx context.Context, e *chronicle.Engine) error {
		rec, err := e.NewReconciler()
		if err != nil {
			return err
		}
		report, err := rec.ScanDuplicates(ctx, e.Config().Corpus)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Scanned %d points: %d duplicate positions, %d redundant points\n",
			report.Scanned, len(report.Groups), report.Redundant())
		for _, g := range report.Groups {
			fmt.Fprintf(r.out, "  %s #%d: %d points\n", g.SequenceKey, g.Position, len(g.IDs))
		}
		return nil
	})
}

func (r *runner) cleanDuplicates(c *cli.Context) error {
	return r.withEngine(c, func(ctx context.Context, e *chronicle.Engine) error {
		rec, err := e.NewReconciler()
		if err != nil {
			return err
		}
		result, err := rec.CleanDuplicates(ctx, e.Config().Corpus, c.StringSlice("source")...)
		if result != nil {
			printCleanup(r.out, result)
		}
		return err
	})
}

func printCleanup(w io.Writer, result *reconcile.CleanupResult) {
	fmt.Fprintf(w, "Groups: %d, kept: %d, deleted: %d in %d batches\n",
		result.Groups, result.Kept, result.Deleted, result.Batches)
}

func (r *runner) scanOrphans(c *cli.Context) error {
	return r.withEngine(c, func(ctx context.Context, e *chronicle.Engine) error {
		rec, err := e.NewReconciler()
		if err != nil {
			return err
		}
		known, err := e.KnownSources(ctx)
		if err != nil {
			return err
		}
		report, err := rec.ScanOrphans(ctx, e.Config().Corpus, known)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Scanned %d points: %d orphaned sources, %d points\n",
			report.Scanned, len(report.Sources), report.Points())
		for _, s := range report.Sources {
			fmt.Fprintf(r.out, "  %s: %d points\n", s.SequenceKey, len(s.IDs))
		}
		return nil
	})
}

func (r *runner) cleanOrphans(c *cli.Context) error {
	return r.withEngine(c, func(ctx context.Context, e *chronicle.Engine) error {
		rec, err := e.NewReconciler()
		if err != nil {
			return err
		}
		known, err := e.KnownSources(ctx)
		if err != nil {
			return err
		}
		result, err := rec.CleanOrphans(ctx, e.Config().Corpus, known)
		if result != nil {
			printCleanup(r.out, result)
		}
		return err
	})
}

func (r *runner) purgeSource(c *cli.Context) error {
	return r.withEngine(c, func(ctx context.Context, e *chronicle.Engine) error {
		rec, err := e.NewReconciler()
		if err != nil {
			return err
		}
		for _, key := range c.StringSlice("source") {
			n, err := rec.PurgeSource(ctx, e.Config().Corpus, key)
			if err != nil {
				return fmt.Errorf("purge %s: %w", key, err)
			}
			fmt.Fprintf(r.out, "Deleted %d points of %s\n", n, key)
		}
		return nil
	})
}

func (r *runner) purgeCorpus(c *cli.Context) error {
	return r.withEngine(c, func(ctx context.Context, e *chronicle.Engine) error {
		corpus := e.Config().Corpus
		token := c.String("confirm")
		if !c.IsSet("confirm") {
			fmt.Fprintf(r.errOut, "This deletes every point of %s. Type %q to continue: ", corpus, reconcile.ConfirmationToken(corpus))
			line, err := r.in.ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read confirmation: %w", err)
			}
			token = strings.TrimRight(line, "\r\n")
		}

		rec, err := e.NewReconciler()
		if err != nil {
			return err
		}
		n, err := rec.PurgeCorpus(ctx, corpus, token)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Deleted %d points of %s\n", n, corpus)
		return nil
	})
}

func (r *runner) status(c *cli.Context) error {
	return r.withEngine(c, func(ctx context.Context, e *chronicle.Engine) error {
		st, err := e.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Corpus:        %s\n", st.Corpus)
		fmt.Fprintf(r.out, "Corpus points: %d\n", st.CorpusPoints)
		fmt.Fprintf(r.out, "Total points:  %d\n", st.TotalPoints)
		if st.LastRun == nil {
			fmt.Fprintln(r.out, "Last run:      none")
			return nil
		}
		run := st.LastRun
		fmt.Fprintf(r.out, "Last run:      %s at %s\n", run.ID, run.StartedAt.Format(time.RFC3339))
		fmt.Fprintf(r.out, "  succeeded %d, skipped %d, failed %d, segments %d\n",
			run.Succeeded, run.Skipped, run.Failed, run.Segments)
		return nil
	})
}

// setupLogger builds a charmbracelet handler for slog from the log settings.
func setupLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	level, err := log.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", cfg.Level)
	}

	opts := log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	}
	switch cfg.Format {
	case "", "text":
		opts.Formatter = log.TextFormatter
	case "json":
		opts.Formatter = log.JSONFormatter
	default:
		return nil, fmt.Errorf("invalid log format %q: must be text or json", cfg.Format)
	}
	return slog.New(log.NewWithOptions(w, opts)), nil
}
