package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bizbook/backend/internal/application/sweeper"
	"github.com/bizbook/backend/internal/infrastructure/config"
	"github.com/bizbook/backend/internal/infrastructure/logger"
	"github.com/bizbook/backend/internal/infrastructure/persistence"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Exit codes reported to the scheduler running the command
const (
	exitOK      = 0
	exitPartial = 1
	exitFatal   = 2
)

// errPartial marks a run that finished with record-level failures
var errPartial = errors.New("sweep finished with failures")

// runner executes one sweep
type runner interface {
	Run(ctx context.Context) (*sweeper.Report, error)
}

// runnerFactory builds the sweeper and a cleanup func from configuration
type runnerFactory func(cfg *config.Config, log *zap.Logger) (runner, func(), error)

type runOptions struct {
	batchSize int
	timeout   time.Duration
	factory   runnerFactory
}

func newRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:     "sweeper",
		Short:   "Subscription expiry sweeper",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand(databaseRunner))
	return root
}

func newRunCommand(factory runnerFactory) *cobra.Command {
	opts := &runOptions{factory: factory}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Warn and expire trials, then expire lapsed subscriptions",
		Long: `Run executes the three sweep passes once: trial warnings, trial
expiry and subscription expiry.

Exit status is 0 when every record was processed, 1 when some records
failed and 2 when the sweep could not run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "records read per page (default from config)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "maximum duration of the sweep (default from config)")
	return cmd
}

func runSweep(ctx context.Context, opts *runOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.batchSize > 0 {
		cfg.Sweeper.BatchSize = opts.batchSize
	}
	timeout := cfg.Sweeper.JobTimeout
	if opts.timeout > 0 {
		timeout = opts.timeout
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	defer func() {
		_ = log.Sync()
	}()

	r, cleanup, err := opts.factory(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return sweepOnce(ctx, r, log)
}

// sweepOnce runs r and logs its report. A report with failures yields
// errPartial.
func sweepOnce(ctx context.Context, r runner, log *zap.Logger) error {
	report, err := r.Run(ctx)
	if report != nil {
		for _, p := range report.Passes {
			log.Info("Sweep pass finished",
				zap.String("pass", string(p.Pass)),
				zap.Int("scanned", p.Scanned),
				zap.Int("transitioned", p.Transitioned),
				zap.Int("notified", p.Notified),
				zap.Int("skipped", p.Skipped),
				zap.Int("failures", len(p.Failures)))
			for _, f := range p.Failures {
				log.Warn("Sweep record failed",
					zap.String("pass", string(f.Pass)),
					zap.String("subscription_id", f.SubscriptionID.String()),
					zap.Error(f.Err))
			}
		}
	}
	if err != nil {
		return err
	}
	if report != nil && report.Failed() {
		return errPartial
	}
	return nil
}

func databaseRunner(cfg *config.Config, log *zap.Logger) (runner, func(), error) {
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database,
		logger.NewGormLogger(log, logger.GormConfig{Level: logger.MapGormLogLevel(cfg.Log.Level)}))
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}
	s := sweeper.NewExpirySweeper(sweeper.ExpirySweeperConfig{
		UnitOfWork:    persistence.NewGormUnitOfWork(db.DB, cfg.Notification.MaxRetries),
		Subscriptions: persistence.NewGormSubscriptionRepository(db.DB),
		Users:         persistence.NewGormUserDirectory(db.DB),
		WarningWindow: cfg.Subscription.WarningWindow,
		BatchSize:     cfg.Sweeper.BatchSize,
		Logger:        log,
	})
	return s, cleanup, nil
}

// execute runs root with args and maps the outcome to an exit code
func execute(root *cobra.Command, args []string) int {
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	code := exitCode(err)
	if err != nil && code == exitFatal {
		fmt.Fprintln(os.Stderr, "sweeper:", err)
	}
	return code
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errPartial):
		return exitPartial
	default:
		return exitFatal
	}
}
