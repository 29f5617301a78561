package pipeline

import (
	"path/filepath"
	"strings"

	"squeeze/internal/media/probe"
)

// Candidate is one enumerated media file moving through the gates. Probe
// results attach lazily; nothing else mutates it. Only the outcome is
// persisted.
type Candidate struct {
	Path   string
	Size   int64
	Info   probe.Info
	Probed bool
}

// outputPath derives the canonical sibling output location for an input:
// same directory, original stem plus the configured suffix and extension.
func (r *Runner) outputPath(input string) string {
	dir := filepath.Dir(input)
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(dir, stem+r.cfg.Encoder.OutputSuffix+r.cfg.Encoder.OutputExt)
}
