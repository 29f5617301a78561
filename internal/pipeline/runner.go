// Package pipeline is the decision and resumability core: it gates each
// candidate file through an ordered admission chain and drives the full
// transcode for files that pass every gate.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"squeeze/internal/cloudfiles"
	"squeeze/internal/config"
	"squeeze/internal/encoder"
	"squeeze/internal/fileutil"
	"squeeze/internal/history"
	"squeeze/internal/logging"
	"squeeze/internal/media/probe"
	"squeeze/internal/scan"
)

// Options collects the collaborators a Runner needs. Everything that shells
// out is behind an interface so gate logic tests run with scripted fakes.
type Options struct {
	Config  *config.Config
	Store   *history.Store
	Prober  probe.Prober
	Encoder encoder.Runner
	Profile encoder.Profile
	Cloud   *cloudfiles.Coordinator
	Logger  *slog.Logger
	RunID   string
	DryRun  bool

	// FreeSpace overrides the platform free-space query in tests.
	FreeSpace func(path string) (uint64, error)
}

// Runner executes one sweep over the root. Single logical thread of control:
// one file is fully gated and transcoded before the next begins. The only
// concurrency is the fire-and-forget prefetch window.
type Runner struct {
	cfg       *config.Config
	store     *history.Store
	prober    probe.Prober
	encoder   encoder.Runner
	profile   encoder.Profile
	cloud     *cloudfiles.Coordinator
	logger    *slog.Logger
	runID     string
	dryRun    bool
	freeSpace func(path string) (uint64, error)
	interrupt *RunContext

	queue   []Candidate
	summary Summary
}

// New validates options and constructs a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Config == nil || opts.Store == nil || opts.Prober == nil || opts.Encoder == nil || opts.Cloud == nil {
		return nil, errors.New("pipeline requires config, store, prober, encoder, and cloud coordinator")
	}
	freeSpace := opts.FreeSpace
	if freeSpace == nil {
		freeSpace = fileutil.FreeSpace
	}
	logger := logging.NewComponentLogger(opts.Logger, "pipeline")
	if opts.RunID != "" {
		logger = logger.With(logging.String(logging.FieldRunID, opts.RunID))
	}
	return &Runner{
		cfg:       opts.Config,
		store:     opts.Store,
		prober:    opts.Prober,
		encoder:   opts.Encoder,
		profile:   opts.Profile,
		cloud:     opts.Cloud,
		logger:    logger,
		runID:     opts.RunID,
		dryRun:    opts.DryRun,
		freeSpace: freeSpace,
		interrupt: NewRunContext(opts.Store),
		summary:   newSummary(),
	}, nil
}

// Interrupt exposes the run's interruption state so the caller can flush it
// on abnormal termination.
func (r *Runner) Interrupt() *RunContext {
	return r.interrupt
}

// Run sweeps the root once. Per-file failures are contained; only a missing
// root, a broken history database, or cancellation abort the run.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	root := r.cfg.Paths.RootDir
	entries, err := scan.Candidates(root, r.cfg.ExtensionSet(), r.cfg.MinFileSizeBytes())
	if err != nil {
		return r.summary, err
	}

	if !r.dryRun {
		if removed, err := fileutil.SweepStaleArtifacts(root); err == nil && removed > 0 {
			r.logger.Info("removed stale temp artifacts from previous runs", logging.Int("count", removed))
		}
	}

	r.queue = make([]Candidate, len(entries))
	for i, entry := range entries {
		r.queue[i] = Candidate{Path: entry.Path, Size: entry.Size}
	}
	r.summary.Scanned = len(r.queue)
	r.logger.Info("sweep started",
		logging.String("root", root),
		logging.Int("candidates", len(r.queue)),
		logging.String(logging.FieldProfile, r.profile.ID),
		logging.Bool("dry_run", r.dryRun),
	)

	for i := range r.queue {
		if err := ctx.Err(); err != nil {
			return r.summary, err
		}
		if err := r.process(ctx, i); err != nil {
			return r.summary, err
		}
	}

	if total, err := r.store.TotalSaved(ctx); err == nil {
		r.summary.TotalSaved = total
	}
	r.logSummary()
	return r.summary, nil
}

func (r *Runner) process(ctx context.Context, index int) error {
	cand := &r.queue[index]
	for _, g := range r.gateList() {
		if r.dryRun && g.name == gateNameMaterialize {
			// Dry runs stop at the header-only gates: no downloads, no
			// encodes, no history writes.
			r.summary.Eligible++
			r.logger.Info("would convert",
				logging.String(logging.FieldFile, cand.Path),
				logging.String(logging.FieldCodec, cand.Info.Codec),
				logging.Int64("bitrate_kbps", cand.Info.BitrateKbps),
			)
			return nil
		}
		verdict, err := g.check(ctx, cand)
		if err != nil {
			return err
		}
		if !verdict.Proceed {
			return r.applyVerdict(ctx, cand, g.name, verdict)
		}
	}
	if r.dryRun {
		r.summary.Eligible++
		return nil
	}

	// Overlap upcoming downloads with the encode that is about to start.
	r.prefetchAhead(ctx, index+1)
	return r.transcode(ctx, cand)
}

func (r *Runner) applyVerdict(ctx context.Context, cand *Candidate, gateName string, verdict Verdict) error {
	r.logger.Info("skipped",
		logging.String(logging.FieldFile, cand.Path),
		logging.String(logging.FieldGate, gateName),
		logging.String(logging.FieldReason, string(verdict.Reason)),
		logging.Bool("recorded", verdict.Record != ""),
	)
	r.summary.Skipped[verdict.Reason]++
	if r.dryRun {
		return nil
	}
	if verdict.Record != "" {
		if err := r.store.RecordOutcome(ctx, r.key(cand), verdict.Record, 0); err != nil {
			return err
		}
	}
	if verdict.Release && r.cloud.IsLocal(cand.Path) {
		r.cloud.Release(cand.Path)
	}
	return nil
}

func (r *Runner) key(cand *Candidate) string {
	return history.Key(r.cfg.Paths.RootDir, cand.Path)
}

func dirOf(path string) string {
	return filepath.Dir(path)
}
