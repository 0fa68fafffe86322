// -- cmd/run.go --
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/internal/browser"
	"github.com/xkilldash9x/relist-cli/internal/browser/session"
	"github.com/xkilldash9x/relist-cli/internal/config"
	"github.com/xkilldash9x/relist-cli/internal/observability"
	"github.com/xkilldash9x/relist-cli/internal/renewal"
)

// browserSession is a page whose browser the caller must close.
type browserSession interface {
	browser.Page
	ID() string
	Close() error
}

// newBrowserSession launches the browser. Replaced in tests.
var newBrowserSession = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (browserSession, error) {
	return session.New(ctx, cfg.Browser, cfg.Timing, logger)
}

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Signs in and renews every configured listing",
		Long: `Signs in once, then for each listing number ends its exposure, re-registers
it and submits payment. Listings that fail are retried once at the end.

Credentials come from LOGIN_ID and LOGIN_PASSWORD (or run.login_id and
run.password), listings from PROPERTY_NUMBERS or --listings.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := viperFrom(cmd.Context())
			if err != nil {
				return err
			}
			// Flags override config file and environment only when set.
			bindings := map[string]string{
				"run.simulate":     "simulate",
				"run.listings":     "listings",
				"run.max_pages":    "max-pages",
				"run.report_path":  "report",
				"browser.headless": "headless",
			}
			for key, flag := range bindings {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return fmt.Errorf("bind --%s: %w", flag, err)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			v, err := viperFrom(ctx)
			if err != nil {
				return err
			}
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if len(cfg.Run.Listings) == 0 {
				logger.Warn("No listing numbers configured; nothing to do.")
				return nil
			}
			return runRenewal(ctx, cmd, cfg, logger)
		},
	}

	runCmd.Flags().Bool("simulate", false, "Walk the workflow without changing any listing")
	runCmd.Flags().StringSlice("listings", nil, "Listing numbers to renew (comma-separated)")
	runCmd.Flags().Int("max-pages", 10, "Maximum listing table pages to search per listing")
	runCmd.Flags().Bool("headless", false, "Run Chrome without a window")
	runCmd.Flags().String("report", "", "Write the run summary as JSON to this path")
	return runCmd
}

// runRenewal owns the browser for the whole run. Failures after configuration
// are reported in the summary and do not fail the command.
func runRenewal(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting run",
		zap.Int("listings", len(cfg.Run.Listings)),
		zap.Bool("simulate", cfg.Run.Simulate),
		zap.Bool("headless", cfg.Browser.Headless),
	)

	sess, err := newBrowserSession(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		logger.Error("Browser could not be started.", zap.Error(err))
		return nil
	}
	logger = logger.With(zap.String("session_id", sess.ID()))
	logger.Info("Browser session ready.")
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("Browser did not close cleanly.", zap.Error(err))
		}
	}()

	out := cmd.OutOrStdout()
	var opts []renewal.Option
	if cfg.Run.Simulate {
		opts = append(opts, renewal.WithObserver(func(ev renewal.StepEvent) {
			fmt.Fprintf(out, "[simulate] %s step %d/%d: %s\n", ev.ListingID, ev.Step, len(renewal.Steps), ev.Name)
		}))
	}

	runner, err := renewal.NewRunner(sess, cfg, logger, opts...)
	if err != nil {
		logger.Error("Run could not be prepared.", zap.Error(err))
		return nil
	}

	summary, runErr := runner.Run(ctx)
	if summary != nil {
		summary.Render(out)
		writeReport(cfg.Run.ReportPath, summary, logger)
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return runErr
		}
		logger.Error("Run ended early.", zap.Error(runErr))
	}
	return nil
}

func writeReport(path string, s *renewal.Summary, logger *zap.Logger) {
	if path == "" {
		return
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		logger.Warn("Invalid report path.", zap.String("path", path), zap.Error(err))
		return
	}
	if err := renewal.WriteReport(expanded, s); err != nil {
		logger.Warn("Report not written.", zap.String("path", expanded), zap.Error(err))
		return
	}
	logger.Info("Report written.", zap.String("path", expanded))
}
