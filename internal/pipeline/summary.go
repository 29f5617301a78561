package pipeline

import "squeeze/internal/logging"

// Summary aggregates the outcome counts of one sweep.
type Summary struct {
	Scanned    int
	Converted  int
	Kept       int
	Failed     int
	Eligible   int // dry-run only
	Skipped    map[SkipReason]int
	BytesSaved int64
	TotalSaved int64
}

func newSummary() Summary {
	return Summary{Skipped: make(map[SkipReason]int)}
}

// SkippedTotal sums skips across all reasons.
func (s Summary) SkippedTotal() int {
	total := 0
	for _, count := range s.Skipped {
		total += count
	}
	return total
}

func (r *Runner) logSummary() {
	attrs := []logging.Attr{
		logging.Int("scanned", r.summary.Scanned),
		logging.Int("converted", r.summary.Converted),
		logging.Int("kept", r.summary.Kept),
		logging.Int("skipped", r.summary.SkippedTotal()),
		logging.Int("failed", r.summary.Failed),
		logging.Int64("bytes_saved", r.summary.BytesSaved),
		logging.Int64("total_saved", r.summary.TotalSaved),
	}
	if r.dryRun {
		attrs = append(attrs, logging.Int("eligible", r.summary.Eligible))
	}
	r.logger.Info("sweep finished", logging.Args(attrs...)...)
}
