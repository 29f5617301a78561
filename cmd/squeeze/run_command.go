package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"squeeze/internal/cloudfiles"
	"squeeze/internal/config"
	"squeeze/internal/encoder"
	"squeeze/internal/history"
	"squeeze/internal/logging"
	"squeeze/internal/media/probe"
	"squeeze/internal/pipeline"
)

func newRunCommand(cctx *commandContext) *cobra.Command {
	var dryRun bool
	var rootOverride string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sweep the root folder and convert eligible files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), cctx, rootOverride, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Evaluate the header-only gates without downloading or encoding")
	cmd.Flags().StringVar(&rootOverride, "root", "", "Override the configured root directory for this run")
	return cmd
}

func runSweep(parent context.Context, cctx *commandContext, rootOverride string, dryRun bool) error {
	cfg, err := cctx.ensureConfig()
	if err != nil {
		return err
	}
	if rootOverride != "" {
		expanded, err := config.ExpandPath(rootOverride)
		if err != nil {
			return err
		}
		cfg.Paths.RootDir = expanded
	}
	if strings.TrimSpace(cfg.Paths.RootDir) == "" {
		return errors.New("paths.root_dir must be set (config file or --root)")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lock := flock.New(filepath.Join(filepath.Dir(cfg.Paths.HistoryDB), "squeeze.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return errors.New("another squeeze run is already in progress")
	}
	defer func() { _ = lock.Unlock() }()

	store, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		return err
	}

	runID := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	ffmpeg := encoder.NewFFmpeg(cfg.Encoder.FFmpeg, logger)

	profile, err := encoder.Select(ctx, ffmpeg, logger)
	if err != nil {
		_ = store.Close()
		return err
	}

	cloud := cloudfiles.NewCoordinator(
		cloudfiles.NewPlatformBackend(),
		secondsToDuration(cfg.Downloads.PollIntervalSeconds),
		logger,
	)

	runner, err := pipeline.New(pipeline.Options{
		Config:  cfg,
		Store:   store,
		Prober:  probe.FFprobe{Binary: cfg.Encoder.FFprobe},
		Encoder: ffmpeg,
		Profile: profile,
		Cloud:   cloud,
		Logger:  logger,
		RunID:   runID,
		DryRun:  dryRun,
	})
	if err != nil {
		_ = store.Close()
		return err
	}

	interrupt := runner.Interrupt()
	defer interrupt.Cleanup(logger)

	summary, runErr := runner.Run(ctx)
	interrupt.Cleanup(logger)

	fmt.Println(renderSummaryTable(summary, dryRun))

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return errors.New("run interrupted")
		}
		return runErr
	}
	return nil
}

func renderSummaryTable(summary pipeline.Summary, dryRun bool) string {
	rows := [][]string{
		{"Scanned", fmt.Sprintf("%d", summary.Scanned)},
	}
	if dryRun {
		rows = append(rows, []string{"Eligible", fmt.Sprintf("%d", summary.Eligible)})
	} else {
		rows = append(rows,
			[]string{"Converted", fmt.Sprintf("%d", summary.Converted)},
			[]string{"Kept original", fmt.Sprintf("%d", summary.Kept)},
			[]string{"Failed", fmt.Sprintf("%d", summary.Failed)},
		)
	}

	reasons := make([]pipeline.SkipReason, 0, len(summary.Skipped))
	for reason := range summary.Skipped {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	for _, reason := range reasons {
		rows = append(rows, []string{
			fmt.Sprintf("Skipped (%s)", reason),
			fmt.Sprintf("%d", summary.Skipped[reason]),
		})
	}

	if !dryRun {
		rows = append(rows,
			[]string{"Saved this run", humanize.IBytes(uint64(summary.BytesSaved))},
			[]string{"Saved all time", humanize.IBytes(uint64(summary.TotalSaved))},
		)
	}

	return renderTable(
		[]string{"Result", "Count"},
		rows,
		[]columnAlignment{alignLeft, alignRight},
	)
}
