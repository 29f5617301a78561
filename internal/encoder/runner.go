package encoder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"squeeze/internal/estimate"
	"squeeze/internal/logging"
	"squeeze/internal/services"
)

// Runner abstracts the ffmpeg invocations the pipeline needs so decision
// logic stays testable with scripted fakes.
type Runner interface {
	// ProbeProfile runs a tiny synthetic encode to verify the profile works
	// in the current environment.
	ProbeProfile(ctx context.Context, profile Profile) error
	// TrialEncode re-encodes a fixed-length segment and reports measured
	// bitrates before and after.
	TrialEncode(ctx context.Context, input string, profile Profile, startSeconds, durationSeconds int) (estimate.Trial, error)
	// Transcode runs the full conversion into the given output path.
	Transcode(ctx context.Context, input, output string, profile Profile) error
}

// FFmpeg is the production Runner.
type FFmpeg struct {
	Binary string
	Logger *slog.Logger
}

// NewFFmpeg constructs an ffmpeg runner with a component logger.
func NewFFmpeg(binary string, logger *slog.Logger) *FFmpeg {
	return &FFmpeg{
		Binary: binary,
		Logger: logging.NewComponentLogger(logger, "ffmpeg"),
	}
}

func (f *FFmpeg) binary() string {
	if strings.TrimSpace(f.Binary) == "" {
		return "ffmpeg"
	}
	return f.Binary
}

func (f *FFmpeg) run(ctx context.Context, operation string, args []string) error {
	cmd := exec.CommandContext(ctx, f.binary(), args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "ffmpeg", operation, tail(output), err)
	}
	return nil
}

// ProbeProfile encodes one second of synthetic video with the profile's
// parameters. A profile whose encoder is absent or whose hardware is
// unavailable fails here instead of mid-run.
func (f *FFmpeg) ProbeProfile(ctx context.Context, profile Profile) error {
	dir, err := os.MkdirTemp("", "squeeze-encprobe-")
	if err != nil {
		return fmt.Errorf("create probe dir: %w", err)
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "probe.mkv")
	args := []string{"-hide_banner", "-v", "error", "-y", "-f", "lavfi", "-i", "color=c=black:s=1280x720:r=30:d=1"}
	args = append(args, profile.Args...)
	args = append(args, "-frames:v", "30", out)

	if err := f.run(ctx, "probe "+profile.ID, args); err != nil {
		return err
	}
	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, "ffmpeg", "probe "+profile.ID, "empty probe output", nil)
	}
	return nil
}

// TrialEncode extracts a segment losslessly to measure the source bitrate,
// encodes the same segment with the profile, and compares. Both artifacts
// are removed before returning regardless of outcome.
func (f *FFmpeg) TrialEncode(ctx context.Context, input string, profile Profile, startSeconds, durationSeconds int) (estimate.Trial, error) {
	if durationSeconds <= 0 {
		return estimate.Trial{}, fmt.Errorf("trial duration must be positive, got %d", durationSeconds)
	}

	dir, err := os.MkdirTemp("", "squeeze-trial-")
	if err != nil {
		return estimate.Trial{}, fmt.Errorf("create trial dir: %w", err)
	}
	defer os.RemoveAll(dir)

	start := strconv.Itoa(startSeconds)
	duration := strconv.Itoa(durationSeconds)

	reference := filepath.Join(dir, "reference.mkv")
	refArgs := []string{
		"-hide_banner", "-v", "error", "-y",
		"-ss", start, "-t", duration, "-i", input,
		"-map", "0:v:0", "-c", "copy", reference,
	}
	if err := f.run(ctx, "trial extract", refArgs); err != nil {
		return estimate.Trial{}, err
	}

	encoded := filepath.Join(dir, "encoded.mkv")
	encArgs := []string{
		"-hide_banner", "-v", "error", "-y",
		"-ss", start, "-t", duration, "-i", input,
		"-map", "0:v:0",
	}
	encArgs = append(encArgs, profile.Args...)
	encArgs = append(encArgs, "-an", encoded)
	if err := f.run(ctx, "trial encode", encArgs); err != nil {
		return estimate.Trial{}, err
	}

	origKbps, err := segmentKbps(reference, durationSeconds)
	if err != nil {
		return estimate.Trial{}, err
	}
	newKbps, err := segmentKbps(encoded, durationSeconds)
	if err != nil {
		return estimate.Trial{}, err
	}
	return estimate.NewTrial(origKbps, newKbps), nil
}

// Transcode converts the whole input into output. Video uses the profile's
// encoder with hardware-accelerated decode when available; audio and
// subtitle streams are copied verbatim.
func (f *FFmpeg) Transcode(ctx context.Context, input, output string, profile Profile) error {
	args := []string{
		"-hide_banner", "-v", "error", "-y",
		"-hwaccel", "auto",
		"-i", input,
		"-map", "0", "-map_metadata", "0",
	}
	args = append(args, profile.Args...)
	args = append(args, "-c:a", "copy", "-c:s", "copy", "-threads", "0", output)

	f.Logger.Debug("launching transcode",
		logging.String("input", input),
		logging.String("output", output),
		logging.String(logging.FieldProfile, profile.ID),
	)
	if err := f.run(ctx, "transcode", args); err != nil {
		return err
	}
	info, err := os.Stat(output)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "ffmpeg", "transcode", "output missing after encode", err)
	}
	if info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, "ffmpeg", "transcode", "empty output after encode", nil)
	}
	return nil
}

func segmentKbps(path string, durationSeconds int) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat trial artifact: %w", err)
	}
	return info.Size() * 8 / int64(durationSeconds) / 1000, nil
}

func tail(output []byte) string {
	const limit = 512
	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) <= limit {
		return trimmed
	}
	return trimmed[len(trimmed)-limit:]
}
