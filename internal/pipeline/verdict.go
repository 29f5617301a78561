package pipeline

import (
	"context"

	"squeeze/internal/history"
)

// SkipReason identifies which gate turned a file away.
type SkipReason string

const (
	SkipOutputExists    SkipReason = "output-exists"
	SkipHistory         SkipReason = "history"
	SkipProbeFailed     SkipReason = "probe-failed"
	SkipLowBitrate      SkipReason = "low-bitrate"
	SkipLowSavings      SkipReason = "low-savings"
	SkipDownloadTimeout SkipReason = "download-timeout"
	SkipTrialLowSavings SkipReason = "trial-low-savings"
	SkipNoDiskSpace     SkipReason = "no-disk-space"
)

// Verdict is the tagged outcome of one gate. Record names the permanent
// history status to write, or "" for a retryable skip that leaves no trace.
// Release asks for the file's local payload to be given back to the cloud
// when the pipeline abandons it.
type Verdict struct {
	Proceed bool
	Reason  SkipReason
	Record  history.Status
	Release bool
}

func proceed() Verdict {
	return Verdict{Proceed: true}
}

// skip is a retryable skip: no history record, reconsidered next run.
func skip(reason SkipReason) Verdict {
	return Verdict{Reason: reason}
}

// recordSkip is a permanent skip: history is written and the local payload
// is released, since the file will never be worked on again.
func recordSkip(reason SkipReason, status history.Status) Verdict {
	return Verdict{Reason: reason, Record: status, Release: true}
}

// gate is one ordered pass/fail step. The pipeline iterates the list and
// stops at the first verdict that does not proceed, which makes gate order
// and short-circuit behavior data rather than control flow.
type gate struct {
	name  string
	check func(ctx context.Context, cand *Candidate) (Verdict, error)
}

// Gate list indices the runner cares about: everything before
// gateNameMaterialize operates on header data only and is safe for dry runs
// and prefetch screening.
const gateNameMaterialize = "materialize"

func (r *Runner) gateList() []gate {
	return []gate{
		{"output-exists", r.gateOutputExists},
		{"history", r.gateHistory},
		{"probe", r.gateProbe},
		{"bitrate", r.gateBitrate},
		{"static-savings", r.gateStaticSavings},
		{gateNameMaterialize, r.gateMaterialize},
		{"trial-encode", r.gateTrialEncode},
		{"disk-space", r.gateDiskSpace},
	}
}
