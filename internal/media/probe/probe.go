// Package probe exposes the codec and bitrate prober the admission pipeline
// depends on, decoupled from the ffprobe binary for testability.
package probe

import (
	"context"

	"squeeze/internal/media/ffprobe"
	"squeeze/internal/services"
)

// Info holds the header-derived facts the pipeline gates on. A zero Codec or
// BitrateKbps means the container did not expose the field.
type Info struct {
	Codec           string
	BitrateKbps     int64
	DurationSeconds float64
}

// Prober inspects a media file's container header.
type Prober interface {
	Probe(ctx context.Context, path string) (Info, error)
}

// FFprobe is the production Prober backed by the ffprobe binary.
type FFprobe struct {
	Binary string
}

// Probe reads codec, bitrate, and duration from the container header.
func (p FFprobe) Probe(ctx context.Context, path string) (Info, error) {
	result, err := ffprobe.Inspect(ctx, p.Binary, path)
	if err != nil {
		return Info{}, services.Wrap(services.ErrExternalTool, "probe", "inspect", path, err)
	}
	return Info{
		Codec:           result.VideoCodec(),
		BitrateKbps:     result.VideoBitRateKbps(),
		DurationSeconds: result.DurationSeconds(),
	}, nil
}
