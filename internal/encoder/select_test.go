package encoder_test

import (
	"context"
	"errors"
	"testing"

	"squeeze/internal/encoder"
	"squeeze/internal/estimate"
	"squeeze/internal/logging"
	"squeeze/internal/services"
)

type fakeRunner struct {
	usable map[string]bool
	probed []string
}

func (f *fakeRunner) ProbeProfile(_ context.Context, profile encoder.Profile) error {
	f.probed = append(f.probed, profile.ID)
	if f.usable[profile.ID] {
		return nil
	}
	return errors.New("encoder unavailable")
}

func (f *fakeRunner) TrialEncode(context.Context, string, encoder.Profile, int, int) (estimate.Trial, error) {
	return estimate.Trial{}, nil
}

func (f *fakeRunner) Transcode(context.Context, string, string, encoder.Profile) error {
	return nil
}

func TestSelectPrefersEarlierProfiles(t *testing.T) {
	registry := encoder.Registry()
	if len(registry) < 2 {
		t.Fatal("registry needs at least two profiles")
	}
	runner := &fakeRunner{usable: map[string]bool{registry[1].ID: true}}

	profile, err := encoder.Select(context.Background(), runner, logging.NewNop())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if profile.ID != registry[1].ID {
		t.Fatalf("selected %q, want %q", profile.ID, registry[1].ID)
	}
	// The first profile was tried and rejected before falling through.
	if len(runner.probed) != 2 || runner.probed[0] != registry[0].ID {
		t.Fatalf("probe order = %v", runner.probed)
	}
}

func TestSelectNoUsableProfile(t *testing.T) {
	runner := &fakeRunner{usable: map[string]bool{}}
	_, err := encoder.Select(context.Background(), runner, logging.NewNop())
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestSelectHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &fakeRunner{usable: map[string]bool{}}
	if _, err := encoder.Select(ctx, runner, logging.NewNop()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRegistryOrderedByPreference(t *testing.T) {
	registry := encoder.Registry()
	if len(registry) == 0 {
		t.Fatal("empty registry")
	}
	if registry[len(registry)-1].ID != "libx265" {
		t.Fatalf("expected software fallback last, got %q", registry[len(registry)-1].ID)
	}
	seen := make(map[string]bool)
	for _, profile := range registry {
		if seen[profile.ID] {
			t.Fatalf("duplicate profile id %q", profile.ID)
		}
		seen[profile.ID] = true
		if len(profile.Args) == 0 {
			t.Fatalf("profile %q has no encoder arguments", profile.ID)
		}
	}
}
