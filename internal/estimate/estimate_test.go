package estimate_test

import (
	"math"
	"testing"

	"squeeze/internal/estimate"
)

func TestStaticKnownCodecs(t *testing.T) {
	var gigabyte = int64(1 << 30)

	cases := []struct {
		codec       string
		wantPercent float64
		wantNewSize int64
	}{
		{"h264", 60, int64(float64(gigabyte) * 0.40)},
		{"mpeg2video", 70, int64(float64(gigabyte) * 0.30)},
		{"hevc", 5, int64(float64(gigabyte) * 0.95)},
		{"av1", 0, gigabyte},
	}
	for _, tc := range cases {
		got := estimate.Static(tc.codec, gigabyte)
		if math.Abs(got.Percent-tc.wantPercent) > 0.01 {
			t.Errorf("Static(%q).Percent = %.2f, want %.2f", tc.codec, got.Percent, tc.wantPercent)
		}
		if got.NewSize != tc.wantNewSize {
			t.Errorf("Static(%q).NewSize = %d, want %d", tc.codec, got.NewSize, tc.wantNewSize)
		}
	}
}

func TestStaticUnknownCodecDefaults(t *testing.T) {
	got := estimate.Static("prores", 1000)
	if got.NewSize != 500 {
		t.Errorf("unknown codec NewSize = %d, want 500", got.NewSize)
	}
	if math.Abs(got.Percent-50) > 0.01 {
		t.Errorf("unknown codec Percent = %.2f, want 50", got.Percent)
	}
}

func TestNewTrial(t *testing.T) {
	trial := estimate.NewTrial(4000, 1000)
	if math.Abs(trial.Percent-75) > 0.01 {
		t.Errorf("trial percent = %.2f, want 75", trial.Percent)
	}

	// Unknown reference bitrate yields no measurable savings.
	trial = estimate.NewTrial(0, 1000)
	if trial.Percent != 0 {
		t.Errorf("trial percent with zero reference = %.2f, want 0", trial.Percent)
	}
}
