package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"squeeze/internal/cloudfiles"
	"squeeze/internal/config"
	"squeeze/internal/encoder"
	"squeeze/internal/estimate"
	"squeeze/internal/history"
	"squeeze/internal/logging"
	"squeeze/internal/media/probe"
	"squeeze/internal/pipeline"
	"squeeze/internal/testsupport"
)

type fakeProber struct {
	mu    sync.Mutex
	infos map[string]probe.Info
	calls []string
}

func (p *fakeProber) Probe(_ context.Context, path string) (probe.Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, path)
	info, ok := p.infos[path]
	if !ok {
		return probe.Info{}, os.ErrNotExist
	}
	return info, nil
}

func (p *fakeProber) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fakeEncoder struct {
	trial        estimate.Trial
	trialErr     error
	ratio        float64
	transcodeErr error
	onTranscode  func(input string)

	trialCalls []string
	transcoded []string
}

func (f *fakeEncoder) ProbeProfile(context.Context, encoder.Profile) error { return nil }

func (f *fakeEncoder) TrialEncode(_ context.Context, input string, _ encoder.Profile, _, _ int) (estimate.Trial, error) {
	f.trialCalls = append(f.trialCalls, input)
	if f.trialErr != nil {
		return estimate.Trial{}, f.trialErr
	}
	return f.trial, nil
}

func (f *fakeEncoder) Transcode(_ context.Context, input, output string, _ encoder.Profile) error {
	f.transcoded = append(f.transcoded, input)
	if f.onTranscode != nil {
		f.onTranscode(input)
	}
	if f.transcodeErr != nil {
		return f.transcodeErr
	}
	info, err := os.Stat(input)
	if err != nil {
		return err
	}
	size := int64(float64(info.Size()) * f.ratio)
	if size < 1 {
		size = 1
	}
	return os.WriteFile(output, make([]byte, size), 0o644)
}

type fakeBackend struct {
	mu                sync.Mutex
	cloud             map[string]bool
	hydrated          []string
	released          []string
	hydrateMakesLocal bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{cloud: make(map[string]bool)}
}

func (b *fakeBackend) Status(path string) (cloudfiles.State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cloud[path] {
		return cloudfiles.StateCloudOnly, nil
	}
	return cloudfiles.StateLocal, nil
}

func (b *fakeBackend) Hydrate(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hydrated = append(b.hydrated, path)
	if b.hydrateMakesLocal {
		b.cloud[path] = false
	}
	return nil
}

func (b *fakeBackend) Release(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = append(b.released, path)
	b.cloud[path] = true
	return nil
}

func (b *fakeBackend) hydratedPaths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.hydrated...)
}

func (b *fakeBackend) releasedPaths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.released...)
}

type fixture struct {
	cfg     *config.Config
	store   *history.Store
	prober  *fakeProber
	encoder *fakeEncoder
	backend *fakeBackend
	coord   *cloudfiles.Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Scan.MinFileSizeMB = 0
	backend := newFakeBackend()
	backend.hydrateMakesLocal = true
	return &fixture{
		cfg:     cfg,
		store:   testsupport.MustOpenStore(t, cfg),
		prober:  &fakeProber{infos: make(map[string]probe.Info)},
		encoder: &fakeEncoder{trial: estimate.NewTrial(4000, 1200), ratio: 0.4},
		backend: backend,
		coord:   cloudfiles.NewCoordinator(backend, time.Millisecond, logging.NewNop()),
	}
}

func (f *fixture) addFile(t *testing.T, name string, size int, info probe.Info, cloudOnly bool) string {
	t.Helper()
	path := testsupport.WriteFile(t, f.cfg.Paths.RootDir, name, size)
	f.prober.infos[path] = info
	if cloudOnly {
		f.backend.cloud[path] = true
	}
	return path
}

func (f *fixture) run(t *testing.T, dryRun bool) pipeline.Summary {
	t.Helper()
	runner, err := pipeline.New(pipeline.Options{
		Config:    f.cfg,
		Store:     f.store,
		Prober:    f.prober,
		Encoder:   f.encoder,
		Profile:   encoder.Registry()[0],
		Cloud:     f.coord,
		Logger:    logging.NewNop(),
		RunID:     "testrun1",
		DryRun:    dryRun,
		FreeSpace: func(string) (uint64, error) { return 1 << 50, nil },
	})
	if err != nil {
		t.Fatalf("pipeline.New failed: %v", err)
	}
	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return summary
}

func h264Info(kbps int64) probe.Info {
	return probe.Info{Codec: "h264", BitrateKbps: kbps, DurationSeconds: 3600}
}

func TestConvertedFlow(t *testing.T) {
	f := newFixture(t)
	input := f.addFile(t, "movie.mkv", 4096, h264Info(5000), false)

	summary := f.run(t, false)

	if summary.Converted != 1 {
		t.Fatalf("converted = %d, want 1", summary.Converted)
	}
	if _, err := os.Stat(input); !os.IsNotExist(err) {
		t.Fatal("original should be removed after conversion")
	}
	output := filepath.Join(f.cfg.Paths.RootDir, "movie-hevc.mkv")
	outInfo, err := os.Stat(output)
	if err != nil {
		t.Fatalf("converted output missing: %v", err)
	}
	wantSaved := int64(4096) - outInfo.Size()
	if summary.BytesSaved != wantSaved {
		t.Fatalf("bytes saved = %d, want %d", summary.BytesSaved, wantSaved)
	}

	record, err := f.store.Get(context.Background(), "movie.mkv")
	if err != nil || record == nil {
		t.Fatalf("expected history record, got %v err=%v", record, err)
	}
	if record.Status != history.StatusConverted || record.BytesSaved != wantSaved {
		t.Fatalf("unexpected record: %#v", record)
	}
	total, err := f.store.TotalSaved(context.Background())
	if err != nil || total != wantSaved {
		t.Fatalf("total saved = %d err=%v, want %d", total, err, wantSaved)
	}
	if summary.TotalSaved != wantSaved {
		t.Fatalf("summary total saved = %d, want %d", summary.TotalSaved, wantSaved)
	}
}

func TestKeptOriginalWhenEncodeNotSmaller(t *testing.T) {
	f := newFixture(t)
	f.encoder.ratio = 1.2
	input := f.addFile(t, "movie.mkv", 4096, h264Info(5000), false)

	summary := f.run(t, false)

	if summary.Kept != 1 || summary.Converted != 0 {
		t.Fatalf("kept=%d converted=%d, want 1/0", summary.Kept, summary.Converted)
	}
	if _, err := os.Stat(input); err != nil {
		t.Fatalf("original must survive an oversized encode: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.cfg.Paths.RootDir, "movie-hevc.mkv")); !os.IsNotExist(err) {
		t.Fatal("oversized encode output should be discarded")
	}
	record, err := f.store.Get(context.Background(), "movie.mkv")
	if err != nil || record == nil || record.Status != history.StatusKeptOriginal {
		t.Fatalf("expected kept-original record, got %v err=%v", record, err)
	}
	if total, _ := f.store.TotalSaved(context.Background()); total != 0 {
		t.Fatalf("kept-original must not contribute savings, total=%d", total)
	}
	if released := f.backend.releasedPaths(); len(released) != 1 || released[0] != input {
		t.Fatalf("original should be released back to the cloud, released=%v", released)
	}
}

func TestLowBitrateCloudFileNeverDownloads(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "movie.mkv", 4096, h264Info(800), true)

	summary := f.run(t, false)

	if summary.Skipped[pipeline.SkipLowBitrate] != 1 {
		t.Fatalf("expected low-bitrate skip, got %#v", summary.Skipped)
	}
	if hydrated := f.backend.hydratedPaths(); len(hydrated) != 0 {
		t.Fatalf("low-bitrate rejection must precede any download, hydrated=%v", hydrated)
	}
	if len(f.encoder.transcoded) != 0 {
		t.Fatal("skipped file must not be transcoded")
	}
	record, err := f.store.Get(context.Background(), "movie.mkv")
	if err != nil || record == nil || record.Status != history.StatusSkippedLowBitrate {
		t.Fatalf("expected permanent low-bitrate record, got %v err=%v", record, err)
	}
	// Cloud-only payloads have nothing local to release.
	if released := f.backend.releasedPaths(); len(released) != 0 {
		t.Fatalf("no release expected for placeholder, released=%v", released)
	}
}

func TestStaticSavingsSkipBeforeDownload(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "movie.mkv", 4096, probe.Info{Codec: "hevc", BitrateKbps: 5000, DurationSeconds: 3600}, true)

	summary := f.run(t, false)

	if summary.Skipped[pipeline.SkipLowSavings] != 1 {
		t.Fatalf("expected low-savings skip, got %#v", summary.Skipped)
	}
	if hydrated := f.backend.hydratedPaths(); len(hydrated) != 0 {
		t.Fatalf("static estimate rejection must precede any download, hydrated=%v", hydrated)
	}
	record, err := f.store.Get(context.Background(), "movie.mkv")
	if err != nil || record == nil || record.Status != history.StatusSkippedLowSavings {
		t.Fatalf("expected low-savings record, got %v err=%v", record, err)
	}
}

func TestHistoryRecordShortCircuits(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "movie.mkv", 4096, h264Info(5000), false)
	if err := f.store.RecordOutcome(context.Background(), "movie.mkv", history.StatusConverted, 10); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	summary := f.run(t, false)

	if summary.Skipped[pipeline.SkipHistory] != 1 {
		t.Fatalf("expected history skip, got %#v", summary.Skipped)
	}
	if f.prober.callCount() != 0 {
		t.Fatal("recorded file must not be re-probed")
	}
	if len(f.encoder.transcoded) != 0 {
		t.Fatal("recorded file must not be re-encoded")
	}
	if total, _ := f.store.TotalSaved(context.Background()); total != 10 {
		t.Fatalf("counter must be unchanged, total=%d", total)
	}
}

func TestSecondRunConvertsNothingNew(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "movie.mkv", 4096, h264Info(5000), false)

	first := f.run(t, false)
	if first.Converted != 1 {
		t.Fatalf("first run converted = %d, want 1", first.Converted)
	}
	totalAfterFirst, _ := f.store.TotalSaved(context.Background())

	second := f.run(t, false)
	if second.Converted != 0 {
		t.Fatalf("second run converted = %d, want 0", second.Converted)
	}
	if len(f.encoder.transcoded) != 1 {
		t.Fatalf("transcode count = %d, want 1 across both runs", len(f.encoder.transcoded))
	}
	if total, _ := f.store.TotalSaved(context.Background()); total != totalAfterFirst {
		t.Fatalf("counter changed on idempotent rerun: %d -> %d", totalAfterFirst, total)
	}
}

func TestOutputExistsSkip(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "movie.mkv", 4096, h264Info(5000), false)
	testsupport.WriteFile(t, f.cfg.Paths.RootDir, "movie-hevc.mkv", 1024)

	summary := f.run(t, false)

	if summary.Skipped[pipeline.SkipOutputExists] != 1 {
		t.Fatalf("expected output-exists skip, got %#v", summary.Skipped)
	}
	if len(f.encoder.transcoded) != 0 {
		t.Fatal("nothing should be transcoded")
	}
	if has, _ := f.store.Has(context.Background(), "movie.mkv"); has {
		t.Fatal("output-exists skip must not write history")
	}
}

func TestTrialLowSavingsRecordsAndReleases(t *testing.T) {
	f := newFixture(t)
	f.encoder.trial = estimate.NewTrial(4000, 3800)
	input := f.addFile(t, "movie.mkv", 4096, h264Info(5000), false)

	summary := f.run(t, false)

	if summary.Skipped[pipeline.SkipTrialLowSavings] != 1 {
		t.Fatalf("expected trial-low-savings skip, got %#v", summary.Skipped)
	}
	if len(f.encoder.transcoded) != 0 {
		t.Fatal("full transcode must not run after a failed trial measurement")
	}
	record, err := f.store.Get(context.Background(), "movie.mkv")
	if err != nil || record == nil || record.Status != history.StatusSkippedTrialLowSaving {
		t.Fatalf("expected trial skip record, got %v err=%v", record, err)
	}
	if released := f.backend.releasedPaths(); len(released) != 1 || released[0] != input {
		t.Fatalf("materialized payload should be released, released=%v", released)
	}
}

func TestTrialFailureIsAdvisory(t *testing.T) {
	f := newFixture(t)
	f.encoder.trialErr = os.ErrPermission
	f.addFile(t, "movie.mkv", 4096, h264Info(5000), false)

	summary := f.run(t, false)

	if summary.Converted != 1 {
		t.Fatalf("a failed trial must not block conversion, converted=%d", summary.Converted)
	}
}

func TestDiskSpaceSkipLeavesNoRecord(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "movie.mkv", 4096, h264Info(5000), false)

	runner, err := pipeline.New(pipeline.Options{
		Config:    f.cfg,
		Store:     f.store,
		Prober:    f.prober,
		Encoder:   f.encoder,
		Profile:   encoder.Registry()[0],
		Cloud:     f.coord,
		Logger:    logging.NewNop(),
		FreeSpace: func(string) (uint64, error) { return 100, nil },
	})
	if err != nil {
		t.Fatalf("pipeline.New failed: %v", err)
	}
	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Skipped[pipeline.SkipNoDiskSpace] != 1 {
		t.Fatalf("expected no-disk-space skip, got %#v", summary.Skipped)
	}
	if has, _ := f.store.Has(context.Background(), "movie.mkv"); has {
		t.Fatal("environmental skip must leave no record")
	}
}

func TestDownloadTimeoutLeavesNoRecord(t *testing.T) {
	f := newFixture(t)
	f.backend.hydrateMakesLocal = false
	f.cfg.Downloads.TimeoutSeconds = 0
	f.addFile(t, "movie.mkv", 4096, h264Info(5000), true)

	summary := f.run(t, false)

	if summary.Skipped[pipeline.SkipDownloadTimeout] != 1 {
		t.Fatalf("expected download-timeout skip, got %#v", summary.Skipped)
	}
	if has, _ := f.store.Has(context.Background(), "movie.mkv"); has {
		t.Fatal("timeout must leave no record so a later run retries")
	}
	if hydrated := f.backend.hydratedPaths(); len(hydrated) != 1 {
		t.Fatalf("expected one hydrate attempt, got %v", hydrated)
	}
}

func TestTranscodeFailureKeepsOriginal(t *testing.T) {
	f := newFixture(t)
	f.encoder.transcodeErr = os.ErrPermission
	input := f.addFile(t, "movie.mkv", 4096, h264Info(5000), false)

	summary := f.run(t, false)

	if summary.Failed != 1 {
		t.Fatalf("failed = %d, want 1", summary.Failed)
	}
	if _, err := os.Stat(input); err != nil {
		t.Fatalf("original must survive a failed encode: %v", err)
	}
	if has, _ := f.store.Has(context.Background(), "movie.mkv"); has {
		t.Fatal("failed encode must leave no record so a later run retries")
	}
}

func TestDryRunMakesNoChanges(t *testing.T) {
	f := newFixture(t)
	eligible := f.addFile(t, "big.mkv", 4096, h264Info(5000), true)
	f.addFile(t, "small.mkv", 4096, h264Info(800), false)

	summary := f.run(t, true)

	if summary.Eligible != 1 {
		t.Fatalf("eligible = %d, want 1", summary.Eligible)
	}
	if summary.Skipped[pipeline.SkipLowBitrate] != 1 {
		t.Fatalf("expected low-bitrate skip reported, got %#v", summary.Skipped)
	}
	if len(f.encoder.transcoded) != 0 || len(f.encoder.trialCalls) != 0 {
		t.Fatal("dry run must not invoke the encoder")
	}
	if hydrated := f.backend.hydratedPaths(); len(hydrated) != 0 {
		t.Fatalf("dry run must not download, hydrated=%v", hydrated)
	}
	for _, key := range []string{"big.mkv", "small.mkv"} {
		if has, _ := f.store.Has(context.Background(), key); has {
			t.Fatalf("dry run must not write history, found record for %s", key)
		}
	}
	if _, err := os.Stat(eligible); err != nil {
		t.Fatalf("dry run must not touch files: %v", err)
	}
}

func TestPrefetchScreensUpcomingCandidates(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "a.mkv", 4096, h264Info(5000), false)
	pathB := f.addFile(t, "b.mkv", 4096, h264Info(5000), true)
	pathC := f.addFile(t, "c.mkv", 4096, h264Info(800), true)
	pathD := f.addFile(t, "d.mkv", 4096, h264Info(5000), true)

	var inflightAtFirstEncode []bool
	f.encoder.onTranscode = func(input string) {
		if filepath.Base(input) == "a.mkv" {
			inflightAtFirstEncode = []bool{
				f.coord.InFlight(pathB),
				f.coord.InFlight(pathC),
				f.coord.InFlight(pathD),
			}
		}
	}

	summary := f.run(t, false)

	if summary.Converted != 3 {
		t.Fatalf("converted = %d, want 3", summary.Converted)
	}
	if summary.Skipped[pipeline.SkipLowBitrate] != 1 {
		t.Fatalf("expected c.mkv skipped, got %#v", summary.Skipped)
	}
	if len(inflightAtFirstEncode) != 3 {
		t.Fatal("first encode never observed")
	}
	// Window of two: the next two plausible candidates overlap with this
	// encode, and the low-bitrate file is screened out without a trigger.
	if !inflightAtFirstEncode[0] || inflightAtFirstEncode[1] || !inflightAtFirstEncode[2] {
		t.Fatalf("inflight during first encode = %v, want b and d only", inflightAtFirstEncode)
	}
	for _, path := range f.backend.hydratedPaths() {
		if path == pathC {
			t.Fatal("low-bitrate candidate must never be downloaded")
		}
	}
}

func TestRunContextCleanupRemovesArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	artifact := testsupport.WriteFile(t, cfg.Paths.RootDir, ".movie-deadbeef.sqz-tmp", 64)

	rc := pipeline.NewRunContext(store)
	rc.SetTempArtifact(artifact)
	rc.Cleanup(logging.NewNop())

	if _, err := os.Stat(artifact); !os.IsNotExist(err) {
		t.Fatal("cleanup should remove the in-flight artifact")
	}
	// Idempotent on repeated termination paths.
	rc.Cleanup(logging.NewNop())
}
