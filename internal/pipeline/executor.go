package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"squeeze/internal/fileutil"
	"squeeze/internal/history"
	"squeeze/internal/logging"
)

// transcode runs the full conversion into a temporary sibling artifact and
// promotes or discards the result. The original input is deleted only after
// the smaller replacement has been renamed into place; a failed encode or an
// oversized result never touches it.
func (r *Runner) transcode(ctx context.Context, cand *Candidate) error {
	temp := fileutil.TempArtifactPath(cand.Path, r.runID)
	r.interrupt.SetTempArtifact(temp)
	defer r.interrupt.ClearTempArtifact()

	started := time.Now()
	r.logger.Info("transcoding",
		logging.String(logging.FieldFile, cand.Path),
		logging.String(logging.FieldCodec, cand.Info.Codec),
		logging.Int64("size", cand.Size),
	)

	if err := r.encoder.Transcode(ctx, cand.Path, temp, r.profile); err != nil {
		_ = os.Remove(temp)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Process failure is retryable: no record, next run tries again.
		r.logger.Error("transcode failed",
			logging.String(logging.FieldFile, cand.Path),
			logging.Error(err),
		)
		r.summary.Failed++
		return nil
	}

	info, err := os.Stat(temp)
	if err != nil {
		r.logger.Error("transcode output missing",
			logging.String(logging.FieldFile, cand.Path),
			logging.Error(err),
		)
		r.summary.Failed++
		return nil
	}
	newSize := info.Size()
	elapsed := time.Since(started)

	if newSize >= cand.Size {
		_ = os.Remove(temp)
		if err := r.store.RecordOutcome(ctx, r.key(cand), history.StatusKeptOriginal, 0); err != nil {
			return err
		}
		r.cloud.Release(cand.Path)
		r.summary.Kept++
		r.logger.Info("kept original, encode was not smaller",
			logging.String(logging.FieldFile, cand.Path),
			logging.Int64("new_size", newSize),
			logging.Duration("elapsed", elapsed),
		)
		return nil
	}

	output := r.outputPath(cand.Path)
	if err := fileutil.Promote(temp, output); err != nil {
		_ = os.Remove(temp)
		r.logger.Error("failed to promote transcode output",
			logging.String(logging.FieldFile, cand.Path),
			logging.Error(err),
		)
		r.summary.Failed++
		return nil
	}
	if err := os.Remove(cand.Path); err != nil {
		// The replacement is durable; a lingering original is an
		// operator cleanup, not a correctness problem.
		r.logger.Warn("could not remove original after conversion",
			logging.String(logging.FieldFile, cand.Path),
			logging.Error(err),
		)
	}

	saved := cand.Size - newSize
	if err := r.store.RecordOutcome(ctx, r.key(cand), history.StatusConverted, saved); err != nil {
		return fmt.Errorf("record conversion: %w", err)
	}
	r.cloud.Release(output)
	r.summary.Converted++
	r.summary.BytesSaved += saved
	r.logger.Info("converted",
		logging.String(logging.FieldFile, cand.Path),
		logging.Int64("orig_size", cand.Size),
		logging.Int64("new_size", newSize),
		logging.Int64("saved", saved),
		logging.Duration("elapsed", elapsed),
	)
	return nil
}
