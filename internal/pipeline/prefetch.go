package pipeline

import (
	"context"

	"squeeze/internal/logging"
)

// prefetchAhead triggers materialization for upcoming candidates so their
// downloads overlap with the encode of the current file. Only candidates that
// independently pass the cheap header-only gates get a trigger; a file's
// placeholder stays untouched until it is plausible work. Triggers are
// fire-and-forget; if one never completes, the file's own turn falls back to
// the blocking wait.
func (r *Runner) prefetchAhead(ctx context.Context, from int) {
	window := r.cfg.Downloads.PrefetchWindow
	if window <= 0 {
		return
	}
	triggered := 0
	for i := from; i < len(r.queue) && triggered < window; i++ {
		cand := &r.queue[i]
		if r.cloud.InFlight(cand.Path) {
			triggered++
			continue
		}
		if r.cloud.IsLocal(cand.Path) {
			continue
		}
		eligible, err := r.passesCheapGates(ctx, cand)
		if err != nil || !eligible {
			continue
		}
		if r.cloud.Prefetch(cand.Path) {
			r.logger.Debug("prefetch triggered", logging.String(logging.FieldFile, cand.Path))
			triggered++
		}
	}
}

// passesCheapGates evaluates the header-only gates without recording or
// releasing anything. Probe results cache on the candidate, so the file's own
// turn reuses them instead of re-probing.
func (r *Runner) passesCheapGates(ctx context.Context, cand *Candidate) (bool, error) {
	for _, g := range r.gateList() {
		if g.name == gateNameMaterialize {
			return true, nil
		}
		verdict, err := g.check(ctx, cand)
		if err != nil {
			return false, err
		}
		if !verdict.Proceed {
			return false, nil
		}
	}
	return true, nil
}
