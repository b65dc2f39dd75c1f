package store_test

import (
	"context"
	"testing"
	"time"

	"syncabull/internal/media"
	"syncabull/internal/store"
	"syncabull/internal/testsupport"
)

func TestUpsertItemsPreservesOutcomeFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedItems(t, st, "acct-1", "item-a")

	if _, err := st.RecordOutcome(ctx, "item-a", store.Outcome{
		Success:   true,
		FinalPath: "/library/item-a.jpg",
		Bytes:     2048,
	}); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	refreshed := testsupport.NewItem("item-a")
	refreshed.Description = "updated caption"
	refreshed.BaseURL = "https://cdn.example/assets/item-a?fresh"
	if err := st.UpsertItems(ctx, "acct-1", []media.Item{refreshed}); err != nil {
		t.Fatalf("re-upsert failed: %v", err)
	}

	item, err := st.GetItem(ctx, "item-a")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if item.Media.Description != "updated caption" {
		t.Fatalf("expected catalog fields replaced, got %q", item.Media.Description)
	}
	if item.Media.BaseURL != "https://cdn.example/assets/item-a?fresh" {
		t.Fatalf("expected base url replaced, got %q", item.Media.BaseURL)
	}
	if !item.Success || item.Attempts != 1 || item.FinalPath != "/library/item-a.jpg" {
		t.Fatalf("expected outcome fields untouched by upsert: %#v", item)
	}
}

func TestUpsertItemsRoundTripsMetadata(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.AddAccount(t, st, "acct-1")
	item := testsupport.NewItem("item-video")
	item.MimeType = "video/mp4"
	item.Filename = "clip.mp4"
	item.Metadata = &media.Metadata{
		CreationTime: time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC).Format(time.RFC3339),
		Width:        "1920",
		Height:       "1080",
		Video: &media.VideoMetadata{
			FPS:    29.97,
			Status: media.VideoStatusReady,
		},
	}
	item.Contributor = &media.ContributorInfo{DisplayName: "Sam"}

	if err := st.UpsertItems(ctx, "acct-1", []media.Item{item}); err != nil {
		t.Fatalf("UpsertItems failed: %v", err)
	}

	fetched, err := st.GetItem(ctx, "item-video")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if fetched.Media.Metadata == nil || fetched.Media.Metadata.Video == nil {
		t.Fatalf("expected video metadata, got %#v", fetched.Media.Metadata)
	}
	if fetched.Media.Metadata.Video.Status != media.VideoStatusReady {
		t.Fatalf("unexpected processing status: %q", fetched.Media.Metadata.Video.Status)
	}
	if fetched.Media.Contributor == nil || fetched.Media.Contributor.DisplayName != "Sam" {
		t.Fatalf("unexpected contributor: %#v", fetched.Media.Contributor)
	}
	if !fetched.Media.IsVideo() {
		t.Fatal("expected item to report as video")
	}
}

func TestUpsertItemsRejectsAmbiguousMetadata(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.AddAccount(t, st, "acct-1")
	item := testsupport.NewItem("item-bad")
	item.Metadata = &media.Metadata{
		Photo: &media.PhotoMetadata{CameraMake: "Acme"},
		Video: &media.VideoMetadata{FPS: 30},
	}

	if err := st.UpsertItems(ctx, "acct-1", []media.Item{item}); err == nil {
		t.Fatal("expected ambiguous metadata to be rejected")
	}
	if fetched, err := st.GetItem(ctx, "item-bad"); err != nil || fetched != nil {
		t.Fatalf("expected rejected page to leave no rows, got %#v err=%v", fetched, err)
	}
}

func TestNextEligibleOrdering(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedItems(t, st, "acct-1", "first", "second", "third")

	// One failed attempt pushes "first" behind the untouched items.
	if _, err := st.RecordOutcome(ctx, "first", store.Outcome{
		MaxAttempts: 4,
		Error:       "connection reset",
	}); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	eligible, err := st.NextEligible(ctx, 10)
	if err != nil {
		t.Fatalf("NextEligible failed: %v", err)
	}
	got := make([]string, 0, len(eligible))
	for _, item := range eligible {
		got = append(got, item.Media.ID)
	}
	want := []string{"second", "third", "first"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}

	limited, err := st.NextEligible(ctx, 1)
	if err != nil {
		t.Fatalf("NextEligible with limit failed: %v", err)
	}
	if len(limited) != 1 || limited[0].Media.ID != "second" {
		t.Fatalf("expected single lowest-attempt item, got %#v", limited)
	}
}

func TestRecordOutcomeTerminalDerivation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedItems(t, st, "acct-1", "retryable", "fatal", "exhausted")

	item, err := st.RecordOutcome(ctx, "retryable", store.Outcome{
		MaxAttempts: 4,
		Error:       "timeout",
	})
	if err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if item.Terminal || item.Success || item.Attempts != 1 {
		t.Fatalf("expected retryable failure to stay eligible: %#v", item)
	}
	if item.LastError != "timeout" || item.LastAttemptAt == nil {
		t.Fatalf("expected attempt bookkeeping: %#v", item)
	}

	item, err = st.RecordOutcome(ctx, "fatal", store.Outcome{
		Fatal:       true,
		MaxAttempts: 4,
		Error:       "item gone",
	})
	if err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if !item.Terminal || item.Attempts != 1 {
		t.Fatalf("expected fatal failure to go terminal immediately: %#v", item)
	}

	for i := 0; i < 2; i++ {
		if _, err := st.RecordOutcome(ctx, "exhausted", store.Outcome{
			MaxAttempts: 2,
			Error:       "flaky",
		}); err != nil {
			t.Fatalf("RecordOutcome failed: %v", err)
		}
	}
	item, err = st.GetItem(ctx, "exhausted")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if !item.Terminal || item.Attempts != 2 {
		t.Fatalf("expected exhaustion at the attempt budget: %#v", item)
	}

	eligible, err := st.NextEligible(ctx, 10)
	if err != nil {
		t.Fatalf("NextEligible failed: %v", err)
	}
	if len(eligible) != 1 || eligible[0].Media.ID != "retryable" {
		t.Fatalf("expected only the retryable item to remain eligible: %#v", eligible)
	}
}

func TestRecordOutcomeSuccessLeavesPool(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedItems(t, st, "acct-1", "item-a")

	item, err := st.RecordOutcome(ctx, "item-a", store.Outcome{
		Success:     true,
		MaxAttempts: 4,
		FinalPath:   "/library/item-a.jpg",
		Bytes:       4096,
	})
	if err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if !item.Success || item.Terminal {
		t.Fatalf("unexpected success state: %#v", item)
	}
	if item.BytesDownloaded != 4096 || item.FinalPath != "/library/item-a.jpg" {
		t.Fatalf("expected outcome details persisted: %#v", item)
	}

	eligible, err := st.NextEligible(ctx, 10)
	if err != nil {
		t.Fatalf("NextEligible failed: %v", err)
	}
	if len(eligible) != 0 {
		t.Fatalf("expected empty pool after success, got %#v", eligible)
	}
}

func TestResetTerminalRestoresEligibility(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedItems(t, st, "acct-1", "stuck-a", "stuck-b", "done")
	for _, id := range []string{"stuck-a", "stuck-b"} {
		if _, err := st.RecordOutcome(ctx, id, store.Outcome{Fatal: true, MaxAttempts: 4, Error: "gone"}); err != nil {
			t.Fatalf("RecordOutcome failed: %v", err)
		}
	}
	if _, err := st.RecordOutcome(ctx, "done", store.Outcome{Success: true, MaxAttempts: 4}); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	reset, err := st.ResetTerminal(ctx, "stuck-a")
	if err != nil {
		t.Fatalf("ResetTerminal failed: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected one reset row, got %d", reset)
	}

	item, err := st.GetItem(ctx, "stuck-a")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if item.Terminal || item.Attempts != 0 || item.LastError != "" {
		t.Fatalf("expected clean slate after reset: %#v", item)
	}

	reset, err = st.ResetTerminal(ctx)
	if err != nil {
		t.Fatalf("ResetTerminal all failed: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected remaining terminal item reset, got %d", reset)
	}
}

func TestFilenameShared(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.AddAccount(t, st, "acct-1")
	first := testsupport.NewItem("item-a")
	second := testsupport.NewItem("item-b")
	second.Filename = first.Filename
	if err := st.UpsertItems(ctx, "acct-1", []media.Item{first, second}); err != nil {
		t.Fatalf("UpsertItems failed: %v", err)
	}

	shared, err := st.FilenameShared(ctx, first.Filename, "item-a")
	if err != nil {
		t.Fatalf("FilenameShared failed: %v", err)
	}
	if !shared {
		t.Fatal("expected filename to be shared")
	}

	shared, err = st.FilenameShared(ctx, "unique.jpg", "item-a")
	if err != nil {
		t.Fatalf("FilenameShared failed: %v", err)
	}
	if shared {
		t.Fatal("expected unique filename")
	}

	// Distinct raw names that sanitize to the same local name still count
	// as shared: one decomposed, one precomposed.
	third := testsupport.NewItem("item-c")
	third.Filename = "cafe\u0301.jpg"
	fourth := testsupport.NewItem("item-d")
	fourth.Filename = "caf\u00e9.jpg"
	if err := st.UpsertItems(ctx, "acct-1", []media.Item{third, fourth}); err != nil {
		t.Fatalf("UpsertItems failed: %v", err)
	}
	shared, err = st.FilenameShared(ctx, "caf\u00e9.jpg", "item-c")
	if err != nil {
		t.Fatalf("FilenameShared failed: %v", err)
	}
	if !shared {
		t.Fatal("expected normalized variants to share a local name")
	}
}

func TestRefreshAssetURL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedItems(t, st, "acct-1", "item-a")
	fetchedAt := time.Now().Add(time.Minute).UTC().Truncate(time.Second)
	if err := st.RefreshAssetURL(ctx, "item-a", "https://cdn.example/assets/item-a?renewed", fetchedAt); err != nil {
		t.Fatalf("RefreshAssetURL failed: %v", err)
	}

	item, err := st.GetItem(ctx, "item-a")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if item.Media.BaseURL != "https://cdn.example/assets/item-a?renewed" {
		t.Fatalf("expected renewed url, got %q", item.Media.BaseURL)
	}
	if !item.Media.BaseURLObtained.Equal(fetchedAt) {
		t.Fatalf("expected fetched-at %v, got %v", fetchedAt, item.Media.BaseURLObtained)
	}
}

func TestStatsAggregation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedItems(t, st, "acct-1", "a1", "a2", "a3")
	if _, err := st.RecordOutcome(ctx, "a1", store.Outcome{Success: true, MaxAttempts: 4, Bytes: 100}); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if _, err := st.RecordOutcome(ctx, "a2", store.Outcome{Fatal: true, MaxAttempts: 4, Error: "gone"}); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected one account, got %#v", stats)
	}
	got := stats[0]
	if got.AccountID != "acct-1" || got.Total != 3 || got.Downloaded != 1 || got.Terminal != 1 || got.Pending != 1 {
		t.Fatalf("unexpected stats: %#v", got)
	}
	if got.Bytes != 100 {
		t.Fatalf("expected 100 bytes recorded, got %d", got.Bytes)
	}
}
