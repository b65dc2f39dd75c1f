package testsupport

import (
	"context"
	"testing"
	"time"

	"syncabull/internal/config"
	"syncabull/internal/media"
	"syncabull/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// AddAccount registers a test account with a refresh token.
func AddAccount(t testing.TB, st *store.Store, accountID string) {
	t.Helper()

	err := st.AddAccount(context.Background(),
		store.Account{ID: accountID, DisplayName: accountID},
		store.Credential{AccountID: accountID, RefreshToken: "refresh-" + accountID})
	if err != nil {
		t.Fatalf("store.AddAccount: %v", err)
	}
}

// NewItem builds a minimal valid media item descriptor for tests.
func NewItem(id string) media.Item {
	return media.Item{
		ID:              id,
		ProductURL:      "https://library.example/items/" + id,
		BaseURL:         "https://cdn.example/assets/" + id,
		MimeType:        "image/jpeg",
		Filename:        id + ".jpg",
		BaseURLObtained: time.Now(),
	}
}

// SeedItems registers an account and upserts one descriptor per id.
func SeedItems(t testing.TB, st *store.Store, accountID string, ids ...string) {
	t.Helper()

	AddAccount(t, st, accountID)
	items := make([]media.Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, NewItem(id))
	}
	if err := st.UpsertItems(context.Background(), accountID, items); err != nil {
		t.Fatalf("store.UpsertItems: %v", err)
	}
}
