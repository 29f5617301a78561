// Package cloudfiles abstracts the host's cloud-sync layer: whether a file's
// payload is locally materialized, triggering materialization, and releasing
// local content back to cloud-only placeholders.
package cloudfiles

import (
	"context"
	"log/slog"
	"time"

	"squeeze/internal/logging"
	"squeeze/internal/services"
)

// State describes where a file's payload currently lives.
type State int

const (
	// StateLocal means the full payload is on local storage.
	StateLocal State = iota
	// StateCloudOnly means only a placeholder exists locally.
	StateCloudOnly
)

// Backend is the minimal contract the coordinator needs from the host
// filesystem's cloud-sync integration.
type Backend interface {
	// Status inspects the file's placeholder attributes.
	Status(path string) (State, error)
	// Hydrate asks the sync layer to begin materializing the payload. The
	// call returns once the request is registered, not once the download
	// completes.
	Hydrate(path string) error
	// Release discards the local payload, keeping the remote copy and a
	// placeholder.
	Release(path string) error
}

// Coordinator wraps a Backend with blocking materialization and a
// fire-and-forget prefetch window. The inflight set is only touched from the
// pipeline's single control thread; prefetch goroutines talk exclusively to
// the sync layer.
type Coordinator struct {
	backend      Backend
	pollInterval time.Duration
	logger       *slog.Logger
	inflight     map[string]struct{}
}

// NewCoordinator builds a coordinator over the given backend.
func NewCoordinator(backend Backend, pollInterval time.Duration, logger *slog.Logger) *Coordinator {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Coordinator{
		backend:      backend,
		pollInterval: pollInterval,
		logger:       logging.NewComponentLogger(logger, "cloudfiles"),
		inflight:     make(map[string]struct{}),
	}
}

// IsLocal reports whether the file's payload is materialized. Errors reading
// attributes are treated as local so the pipeline proceeds and fails later
// with a more specific error if the file is genuinely unusable.
func (c *Coordinator) IsLocal(path string) bool {
	state, err := c.backend.Status(path)
	if err != nil {
		c.logger.Debug("attribute probe failed, assuming local",
			logging.String(logging.FieldFile, path),
			logging.Error(err),
		)
		return true
	}
	return state == StateLocal
}

// Materialize blocks until the file is fully local or the timeout elapses.
// A timeout is a transient condition: the caller skips the file without
// recording history so a later run retries it.
func (c *Coordinator) Materialize(ctx context.Context, path string, timeout time.Duration) error {
	if c.IsLocal(path) {
		c.Consume(path)
		return nil
	}
	if err := c.backend.Hydrate(path); err != nil {
		return services.Wrap(services.ErrTransient, "cloudfiles", "hydrate", path, err)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return services.Wrap(services.ErrTimeout, "cloudfiles", "materialize", path, nil)
		case <-ticker.C:
			if c.IsLocal(path) {
				c.Consume(path)
				return nil
			}
		}
	}
}

// Prefetch triggers materialization without waiting. Returns false when the
// path already has a trigger in flight. Purely best-effort: if the hydrate
// never completes, the file's own turn falls back to the blocking wait.
func (c *Coordinator) Prefetch(path string) bool {
	if _, ok := c.inflight[path]; ok {
		return false
	}
	c.inflight[path] = struct{}{}
	go func() {
		if err := c.backend.Hydrate(path); err != nil {
			c.logger.Debug("prefetch trigger failed",
				logging.String(logging.FieldFile, path),
				logging.Error(err),
			)
		}
	}()
	return true
}

// InFlight reports whether a prefetch trigger is pending for the path.
func (c *Coordinator) InFlight(path string) bool {
	_, ok := c.inflight[path]
	return ok
}

// Consume clears the prefetch bookkeeping once a file is materialized or its
// turn has come.
func (c *Coordinator) Consume(path string) {
	delete(c.inflight, path)
}

// Release gives the file's local payload back to the cloud. Best-effort;
// failures are logged, not propagated, because reclaiming space never blocks
// a gate decision.
func (c *Coordinator) Release(path string) bool {
	if err := c.backend.Release(path); err != nil {
		c.logger.Debug("release to cloud-only failed",
			logging.String(logging.FieldFile, path),
			logging.Error(err),
		)
		return false
	}
	return true
}
