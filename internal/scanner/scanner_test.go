package scanner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"syncabull/internal/media"
	"syncabull/internal/retry"
	"syncabull/internal/scanner"
	"syncabull/internal/services"
	"syncabull/internal/services/photos"
	"syncabull/internal/testsupport"
)

// fakeLibrary serves a fixed page sequence keyed by page token and can fail
// specific tokens a limited number of times.
type fakeLibrary struct {
	pages    map[string]*photos.Page
	failures map[string]int
	calls    []string
}

func (f *fakeLibrary) ListPage(ctx context.Context, accountID, pageToken string) (*photos.Page, error) {
	f.calls = append(f.calls, pageToken)
	if remaining := f.failures[pageToken]; remaining > 0 {
		f.failures[pageToken] = remaining - 1
		return nil, services.Wrap(services.ErrNetwork, "photos", "list page", "injected failure", nil)
	}
	page, ok := f.pages[pageToken]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "photos", "list page", "unknown token "+pageToken, nil)
	}
	return page, nil
}

func itemsNamed(ids ...string) []media.Item {
	items := make([]media.Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, testsupport.NewItem(id))
	}
	return items
}

func TestSyncAccountWalksAllPages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.AddAccount(t, st, "acct-1")

	library := &fakeLibrary{pages: map[string]*photos.Page{
		"":       {Items: itemsNamed("a", "b"), NextPageToken: "page-2"},
		"page-2": {Items: itemsNamed("c"), NextPageToken: "page-3"},
		"page-3": {Items: itemsNamed("d")},
	}}

	sc := scanner.New(cfg, st, library, nil)
	ctx := context.Background()

	recorded, err := sc.SyncAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("SyncAccount failed: %v", err)
	}
	if recorded != 4 {
		t.Fatalf("expected 4 items recorded, got %d", recorded)
	}

	for _, id := range []string{"a", "b", "c", "d"} {
		item, err := st.GetItem(ctx, id)
		if err != nil || item == nil {
			t.Fatalf("expected item %q persisted, got %#v err=%v", id, item, err)
		}
	}

	cursor, err := st.GetCursor(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetCursor failed: %v", err)
	}
	if cursor != nil {
		t.Fatalf("expected cursor cleared after full pass, got %#v", cursor)
	}

	account, err := st.GetAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if !account.InitialScanComplete {
		t.Fatal("expected initial scan marked complete")
	}
}

func TestSyncAccountResumesFromFailedPage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.AddAccount(t, st, "acct-1")

	library := &fakeLibrary{
		pages: map[string]*photos.Page{
			"":       {Items: itemsNamed("a", "b"), NextPageToken: "page-2"},
			"page-2": {Items: itemsNamed("c")},
		},
		failures: map[string]int{"page-2": 1},
	}

	sc := scanner.New(cfg, st, library, nil)
	// Single-attempt policy so the injected failure surfaces instead of
	// being absorbed by in-place retries.
	sc.SetPolicy(retry.Policy{MaxAttempts: 1})
	ctx := context.Background()

	recorded, err := sc.SyncAccount(ctx, "acct-1")
	if !errors.Is(err, services.ErrNetwork) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if recorded != 2 {
		t.Fatalf("expected first page recorded before failure, got %d", recorded)
	}

	// The cursor survived the failure pointing at the unfinished page.
	cursor, err := st.GetCursor(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetCursor failed: %v", err)
	}
	if cursor == nil || cursor.NextToken != "page-2" {
		t.Fatalf("expected cursor at page-2, got %#v", cursor)
	}

	recorded, err = sc.SyncAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("resumed pass failed: %v", err)
	}
	if recorded != 1 {
		t.Fatalf("expected only the failed page replayed, got %d", recorded)
	}
	if library.calls[len(library.calls)-1] != "page-2" {
		t.Fatalf("expected resume at page-2, calls %v", library.calls)
	}
}

func TestSyncAccountRetriesTransientPageFetchInPlace(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.AddAccount(t, st, "acct-1")

	library := &fakeLibrary{
		pages: map[string]*photos.Page{
			"":       {Items: itemsNamed("a"), NextPageToken: "page-2"},
			"page-2": {Items: itemsNamed("b")},
		},
		failures: map[string]int{"page-2": 2},
	}

	sc := scanner.New(cfg, st, library, nil)
	sc.SetPolicy(retry.Policy{MaxAttempts: 4, Base: time.Millisecond, Cap: time.Millisecond})
	ctx := context.Background()

	recorded, err := sc.SyncAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("SyncAccount failed: %v", err)
	}
	if recorded != 2 {
		t.Fatalf("expected both pages recorded, got %d", recorded)
	}

	// The failing page was re-fetched in place without restarting the pass.
	attempts := 0
	for _, token := range library.calls {
		if token == "page-2" {
			attempts++
		}
	}
	if attempts != 3 {
		t.Fatalf("expected 3 fetches of page-2, calls %v", library.calls)
	}
}

func TestSyncAccountReplayedPageIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.AddAccount(t, st, "acct-1")

	library := &fakeLibrary{pages: map[string]*photos.Page{
		"": {Items: itemsNamed("a", "b")},
	}}
	sc := scanner.New(cfg, st, library, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := sc.SyncAccount(ctx, "acct-1"); err != nil {
			t.Fatalf("pass %d failed: %v", i, err)
		}
	}

	items, err := st.ItemsByAccount(ctx, "acct-1", 0)
	if err != nil {
		t.Fatalf("ItemsByAccount failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items after replays, got %d", len(items))
	}
}

func TestSyncAllSkipsReauthAccounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.AddAccount(t, st, "acct-ok")
	testsupport.AddAccount(t, st, "acct-revoked")

	ctx := context.Background()
	if err := st.SetReauthRequired(ctx, "acct-revoked", true); err != nil {
		t.Fatalf("SetReauthRequired failed: %v", err)
	}

	library := &fakeLibrary{pages: map[string]*photos.Page{
		"": {Items: itemsNamed("a")},
	}}
	sc := scanner.New(cfg, st, library, nil)

	recorded, err := sc.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if recorded != 1 {
		t.Fatalf("expected one item from the healthy account, got %d", recorded)
	}
	for _, token := range library.calls {
		if token != "" {
			t.Fatalf("unexpected page token %q", token)
		}
	}
	if len(library.calls) != 1 {
		t.Fatalf("expected a single pass for the healthy account, calls %v", library.calls)
	}
}
