package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/safecity/dashboard/internal/app"
	"github.com/safecity/dashboard/internal/platform/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}

		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli holds state shared by the subcommands.
type cli struct {
	cfg    *config.Config
	logger zerolog.Logger
	query  app.Query
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "safecity",
		Short:         "Gendarmerie crime dashboard with an AI assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			c.cfg = cfg
			c.logger = newLogger(cfg.AppEnv, cfg.LogLevel)

			return nil
		},
	}

	root.AddCommand(
		c.serveCmd(),
		c.summaryCmd(),
		c.askCmd(),
		c.exportCmd(),
	)

	return root
}

func (c *cli) app(ctx context.Context) (*app.App, error) {
	return app.New(ctx, c.cfg, &c.logger)
}

func (c *cli) addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.query.InfractionType, "type", "", "infraction type to keep (all when empty)")
	cmd.Flags().StringSliceVar(&c.query.Subdivisions, "sub", nil, "subdivision codes to keep (all when empty)")
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web dashboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.app(cmd.Context())
			if err != nil {
				return err
			}

			if err := a.Serve(cmd.Context()); err != nil {
				return err
			}

			c.logger.Info().Msg("application stopped")

			return nil
		},
	}
}

func (c *cli) summaryCmd() *cobra.Command {
	var question string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Ask the assistant to analyse the selected records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.app(cmd.Context())
			if err != nil {
				return err
			}

			answer, err := a.Summary(cmd.Context(), c.query, question)
			if err != nil {
				return err
			}

			return printAnswer(cmd.OutOrStdout(), answer)
		},
	}

	c.addQueryFlags(cmd)
	cmd.Flags().StringVarP(&question, "question", "q", "", "specific question for the analysis")

	return cmd
}

func (c *cli) askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Send a question to the statistics chatbot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd.Context())
			if err != nil {
				return err
			}

			answer, err := a.Ask(cmd.Context(), c.query, args[0])
			if err != nil {
				return err
			}

			return printAnswer(cmd.OutOrStdout(), answer)
		},
	}

	c.addQueryFlags(cmd)

	return cmd
}

func (c *cli) exportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the Excel workbook of the selected records",
		Long:  "Write the Excel workbook of the selected records to a file, or to the blob store under EXPORT_PREFIX when --output is empty.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.app(cmd.Context())
			if err != nil {
				return err
			}

			if output == "" {
				info, err := a.ExportToStore(cmd.Context(), c.query)
				if err != nil {
					return err
				}

				_, err = fmt.Fprintln(cmd.OutOrStdout(), info.Location)

				return err
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}

			if err := a.ExportTo(cmd.Context(), c.query, f); err != nil {
				_ = f.Close()
				return err
			}

			return f.Close()
		},
	}

	c.addQueryFlags(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "workbook path")

	return cmd
}

func printAnswer(w io.Writer, answer string) error {
	_, err := fmt.Fprintln(w, answer)
	return err
}

func newLogger(appEnv, level string) zerolog.Logger {
	var logger zerolog.Logger

	if appEnv == "local" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	if lvl, err := zerolog.ParseLevel(level); err == nil && level != "" {
		logger = logger.Level(lvl)
	}

	return logger
}
