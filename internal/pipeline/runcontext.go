package pipeline

import (
	"log/slog"
	"os"
	"sync"

	"squeeze/internal/history"
	"squeeze/internal/logging"
)

// RunContext is the process-wide interruption state: the live history store
// and the path of the at-most-one in-flight temporary transcode artifact.
// The top-level run function owns it and flushes it on any termination path,
// so no ambient globals are needed for the signal handler to reach it.
type RunContext struct {
	mu           sync.Mutex
	store        *history.Store
	tempArtifact string
	cleaned      bool
}

// NewRunContext wraps the store a run will mutate.
func NewRunContext(store *history.Store) *RunContext {
	return &RunContext{store: store}
}

// SetTempArtifact registers the in-flight artifact before an encode starts.
func (rc *RunContext) SetTempArtifact(path string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.tempArtifact = path
}

// ClearTempArtifact deregisters the artifact once it is promoted or removed.
func (rc *RunContext) ClearTempArtifact() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.tempArtifact = ""
}

// Cleanup deletes any in-flight temp artifact and closes the store. The
// store commits every outcome synchronously, so closing is the only flush
// needed; committed records are already durable. Safe to call more than
// once.
func (rc *RunContext) Cleanup(logger *slog.Logger) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.cleaned {
		return
	}
	rc.cleaned = true

	if rc.tempArtifact != "" {
		if err := os.Remove(rc.tempArtifact); err != nil && !os.IsNotExist(err) {
			if logger != nil {
				logger.Warn("could not remove in-flight artifact",
					logging.String(logging.FieldFile, rc.tempArtifact),
					logging.Error(err),
				)
			}
		}
		rc.tempArtifact = ""
	}
	if rc.store != nil {
		if err := rc.store.Close(); err != nil && logger != nil {
			logger.Warn("close history store", logging.Error(err))
		}
	}
}
