package pipeline

import (
	"context"
	"os"
	"time"

	"squeeze/internal/estimate"
	"squeeze/internal/history"
	"squeeze/internal/logging"
)

// gateOutputExists skips files whose converted sibling already exists. The
// filesystem itself is the evidence, so no history is written.
func (r *Runner) gateOutputExists(_ context.Context, cand *Candidate) (Verdict, error) {
	if _, err := os.Stat(r.outputPath(cand.Path)); err == nil {
		return skip(SkipOutputExists), nil
	}
	return proceed(), nil
}

// gateHistory skips files with a permanent record: no probing, no download,
// no new work.
func (r *Runner) gateHistory(ctx context.Context, cand *Candidate) (Verdict, error) {
	has, err := r.store.Has(ctx, r.key(cand))
	if err != nil {
		return Verdict{}, err
	}
	if has {
		return skip(SkipHistory), nil
	}
	return proceed(), nil
}

// gateProbe attaches codec and bitrate from the container header. Header
// reads work against cloud placeholders. A failed or empty probe is
// retryable: the file may simply not have finished syncing.
func (r *Runner) gateProbe(ctx context.Context, cand *Candidate) (Verdict, error) {
	if !cand.Probed {
		info, err := r.prober.Probe(ctx, cand.Path)
		if err != nil {
			if ctx.Err() != nil {
				return Verdict{}, ctx.Err()
			}
			r.logger.Debug("probe failed",
				logging.String(logging.FieldFile, cand.Path),
				logging.Error(err),
			)
			return skip(SkipProbeFailed), nil
		}
		cand.Info = info
		cand.Probed = true
	}
	if cand.Info.Codec == "" {
		return skip(SkipProbeFailed), nil
	}
	return proceed(), nil
}

// gateBitrate records a permanent skip for files already below the bitrate
// floor; re-encoding them would trade quality for little space.
func (r *Runner) gateBitrate(_ context.Context, cand *Candidate) (Verdict, error) {
	floor := r.cfg.Thresholds.MinBitrateKbps
	if floor > 0 && cand.Info.BitrateKbps > 0 && cand.Info.BitrateKbps < floor {
		return recordSkip(SkipLowBitrate, history.StatusSkippedLowBitrate), nil
	}
	return proceed(), nil
}

// gateStaticSavings applies the codec ratio table before any download.
func (r *Runner) gateStaticSavings(_ context.Context, cand *Candidate) (Verdict, error) {
	prediction := estimate.Static(cand.Info.Codec, cand.Size)
	if prediction.Percent < r.cfg.Thresholds.MinSavingsPercent {
		return recordSkip(SkipLowSavings, history.StatusSkippedLowSavings), nil
	}
	return proceed(), nil
}

// gateMaterialize downloads the full payload for cloud-resident files. Only
// the gates before this one run against header data, so bandwidth is spent
// solely on files that are still in play. A timeout leaves no record.
func (r *Runner) gateMaterialize(ctx context.Context, cand *Candidate) (Verdict, error) {
	timeout := time.Duration(r.cfg.Downloads.TimeoutSeconds) * time.Second
	err := r.cloud.Materialize(ctx, cand.Path, timeout)
	if err == nil {
		return proceed(), nil
	}
	if ctx.Err() != nil {
		return Verdict{}, ctx.Err()
	}
	r.logger.Warn("materialization timed out",
		logging.String(logging.FieldFile, cand.Path),
		logging.Error(err),
	)
	return skip(SkipDownloadTimeout), nil
}

// gateTrialEncode measures real savings on a mid-file segment. A failing
// trial is advisory, not a gate: the full encode may still succeed, so the
// pipeline proceeds.
func (r *Runner) gateTrialEncode(ctx context.Context, cand *Candidate) (Verdict, error) {
	duration := r.cfg.Trial.DurationSeconds
	trial, err := r.encoder.TrialEncode(ctx, cand.Path, r.profile, trialStart(cand.Info.DurationSeconds, duration), duration)
	if err != nil {
		if ctx.Err() != nil {
			return Verdict{}, ctx.Err()
		}
		r.logger.Warn("trial encode failed, proceeding to full conversion",
			logging.String(logging.FieldFile, cand.Path),
			logging.Error(err),
		)
		return proceed(), nil
	}
	r.logger.Info("trial encode measured",
		logging.String(logging.FieldFile, cand.Path),
		logging.Int64("orig_kbps", trial.OrigKbps),
		logging.Int64("new_kbps", trial.NewKbps),
		logging.Float64("percent", trial.Percent),
	)
	if trial.Percent < r.cfg.Thresholds.MinSavingsPercent {
		return recordSkip(SkipTrialLowSavings, history.StatusSkippedTrialLowSaving), nil
	}
	return proceed(), nil
}

// trialStart picks the segment offset: a third of the way in, clamped so the
// segment fits, avoiding unrepresentative intro frames. Unknown durations
// fall back to a fixed offset.
func trialStart(totalSeconds float64, trialSeconds int) int {
	if totalSeconds <= 0 {
		return 60
	}
	start := int(totalSeconds) / 3
	if start+trialSeconds > int(totalSeconds) {
		start = int(totalSeconds) - trialSeconds
	}
	if start < 0 {
		start = 0
	}
	return start
}

// gateDiskSpace requires headroom of 1.1x the input size at the destination.
// Insufficiency is environmental and leaves no record.
func (r *Runner) gateDiskSpace(_ context.Context, cand *Candidate) (Verdict, error) {
	free, err := r.freeSpace(dirOf(cand.Path))
	if err != nil {
		return Verdict{}, err
	}
	needed := uint64(float64(cand.Size) * 1.1)
	if free < needed {
		r.logger.Warn("insufficient disk space",
			logging.String(logging.FieldFile, cand.Path),
			logging.Uint64("free", free),
			logging.Uint64("needed", needed),
		)
		return skip(SkipNoDiskSpace), nil
	}
	return proceed(), nil
}
