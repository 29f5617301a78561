package history_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"squeeze/internal/history"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordOutcomeAndHas(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	has, err := store.Has(ctx, "movies/a.mkv")
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if has {
		t.Fatal("expected empty store")
	}

	if err := store.RecordOutcome(ctx, "movies/a.mkv", history.StatusConverted, 1000); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	has, err = store.Has(ctx, "movies/a.mkv")
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if !has {
		t.Fatal("expected record after RecordOutcome")
	}

	record, err := store.Get(ctx, "movies/a.mkv")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record == nil || record.Status != history.StatusConverted || record.BytesSaved != 1000 {
		t.Fatalf("unexpected record: %#v", record)
	}
	if record.RecordedAt.IsZero() {
		t.Fatal("expected recorded timestamp")
	}
}

func TestTotalSavedMatchesConvertedSum(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.RecordOutcome(ctx, "a.mkv", history.StatusConverted, 500); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if err := store.RecordOutcome(ctx, "b.mkv", history.StatusConverted, 300); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if err := store.RecordOutcome(ctx, "c.mkv", history.StatusSkippedLowBitrate, 0); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	total, err := store.TotalSaved(ctx)
	if err != nil {
		t.Fatalf("TotalSaved failed: %v", err)
	}
	if total != 800 {
		t.Fatalf("expected total 800, got %d", total)
	}

	// Re-recording the same key must not double-count.
	if err := store.RecordOutcome(ctx, "a.mkv", history.StatusConverted, 500); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	total, err = store.TotalSaved(ctx)
	if err != nil {
		t.Fatalf("TotalSaved failed: %v", err)
	}
	if total != 800 {
		t.Fatalf("expected total unchanged at 800, got %d", total)
	}
}

func TestRecordOutcomeRejectsSavingsOnSkips(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.RecordOutcome(ctx, "a.mkv", history.StatusKeptOriginal, 42); err == nil {
		t.Fatal("expected error for savings on non-converted status")
	}
	if err := store.RecordOutcome(ctx, "a.mkv", history.StatusConverted, -1); err == nil {
		t.Fatal("expected error for negative savings")
	}
	if err := store.RecordOutcome(ctx, "", history.StatusConverted, 1); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestOpenToleratesCorruptDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	if err := os.WriteFile(path, []byte("this is not sqlite"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	store, err := history.Open(path)
	if err != nil {
		t.Fatalf("Open should tolerate corruption, got: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	total, err := store.TotalSaved(ctx)
	if err != nil {
		t.Fatalf("TotalSaved failed: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected fresh store, got total %d", total)
	}

	matches, err := filepath.Glob(path + ".corrupt-*")
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected corrupt file set aside, matches=%v err=%v", matches, err)
	}
}

func TestListAndStats(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	outcomes := map[string]history.Status{
		"a.mkv": history.StatusConverted,
		"b.mkv": history.StatusSkippedLowBitrate,
		"c.mkv": history.StatusSkippedLowBitrate,
	}
	for key, status := range outcomes {
		saved := int64(0)
		if status == history.StatusConverted {
			saved = 10
		}
		if err := store.RecordOutcome(ctx, key, status, saved); err != nil {
			t.Fatalf("RecordOutcome failed: %v", err)
		}
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	if all[0].Key != "a.mkv" {
		t.Fatalf("expected key ordering, got %q first", all[0].Key)
	}

	lowBitrate, err := store.List(ctx, history.StatusSkippedLowBitrate)
	if err != nil {
		t.Fatalf("List filtered failed: %v", err)
	}
	if len(lowBitrate) != 2 {
		t.Fatalf("expected 2 low-bitrate records, got %d", len(lowBitrate))
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[history.StatusConverted] != 1 || stats[history.StatusSkippedLowBitrate] != 2 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestRemoveReconcilesTotals(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.RecordOutcome(ctx, "a.mkv", history.StatusConverted, 700); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	removed, err := store.Remove(ctx, "a.mkv")
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if !removed {
		t.Fatal("expected record removed")
	}
	total, err := store.TotalSaved(ctx)
	if err != nil {
		t.Fatalf("TotalSaved failed: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected total reset, got %d", total)
	}
}

func TestClearResetsEverything(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.RecordOutcome(ctx, "a.mkv", history.StatusConverted, 700); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	count, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 cleared, got %d", count)
	}
	total, err := store.TotalSaved(ctx)
	if err != nil {
		t.Fatalf("TotalSaved failed: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected total 0 after clear, got %d", total)
	}
}

func TestKeyNormalization(t *testing.T) {
	cases := []struct {
		root, path, want string
	}{
		{"/media", "/media/movies/a.mkv", "movies/a.mkv"},
		{"/media/", "/media/a.mkv", "a.mkv"},
		{"/media", "/media/a.mkv", "a.mkv"},
	}
	for _, tc := range cases {
		if got := history.Key(tc.root, tc.path); got != tc.want {
			t.Errorf("Key(%q, %q) = %q, want %q", tc.root, tc.path, got, tc.want)
		}
	}
}
