package photos_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"syncabull/internal/media"
	"syncabull/internal/services"
	"syncabull/internal/services/photos"
	"syncabull/internal/testsupport"
)

type staticTokens struct {
	token         string
	next          string
	calls         int
	invalidations int
}

func (s *staticTokens) AccessToken(ctx context.Context, accountID string) (string, error) {
	s.calls++
	return s.token, nil
}

// Invalidate swaps in the next token when one is staged, mimicking a manager
// whose forced refresh mints a working token.
func (s *staticTokens) Invalidate(ctx context.Context, accountID string) error {
	s.invalidations++
	if s.next != "" {
		s.token = s.next
		s.next = ""
	}
	return nil
}

func newTestClient(t *testing.T, handler http.Handler) (*photos.Client, *staticTokens) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	tokens := &staticTokens{token: "token-1"}
	cfg := testsupport.NewConfig(t, testsupport.WithLibraryBaseURL(server.URL))
	return photos.New(cfg, tokens, nil), tokens
}

func TestListPageSendsAuthAndPaging(t *testing.T) {
	var gotAuth, gotToken, gotSize string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mediaItems" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotToken = r.URL.Query().Get("pageToken")
		gotSize = r.URL.Query().Get("pageSize")
		fmt.Fprint(w, `{
            "mediaItems": [
                {"id": "item-1", "productUrl": "https://library.example/1", "baseUrl": "https://cdn.example/1", "filename": "one.jpg"},
                {"id": "item-2", "productUrl": "https://library.example/2", "baseUrl": "https://cdn.example/2", "filename": "two.jpg"}
            ],
            "nextPageToken": "page-2"
        }`)
	}))

	page, err := client.ListPage(context.Background(), "acct-1", "page-1")
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if gotAuth != "Bearer token-1" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotToken != "page-1" {
		t.Fatalf("expected page token replayed, got %q", gotToken)
	}
	if gotSize == "" {
		t.Fatal("expected pageSize parameter")
	}
	if len(page.Items) != 2 || page.NextPageToken != "page-2" {
		t.Fatalf("unexpected page: %#v", page)
	}
	if page.Items[0].BaseURLObtained.IsZero() {
		t.Fatal("expected fetch time stamped on items")
	}
}

func TestListPageFinalPageHasNoToken(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"mediaItems": []}`)
	}))

	page, err := client.ListPage(context.Background(), "acct-1", "")
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if page.NextPageToken != "" || len(page.Items) != 0 {
		t.Fatalf("unexpected final page: %#v", page)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status  int
		headers map[string]string
		want    error
	}{
		{http.StatusUnauthorized, nil, services.ErrAuth},
		{http.StatusForbidden, nil, services.ErrAuth},
		{http.StatusNotFound, nil, services.ErrNotFound},
		{http.StatusGone, nil, services.ErrNotFound},
		{http.StatusTooManyRequests, map[string]string{"Retry-After": "30"}, services.ErrRateLimited},
		{http.StatusInternalServerError, nil, services.ErrNetwork},
		{http.StatusBadGateway, nil, services.ErrNetwork},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tc.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tc.status)
			}))

			_, err := client.ListPage(context.Background(), "acct-1", "")
			if !errors.Is(err, tc.want) {
				t.Fatalf("status %d mapped to %v, want %v", tc.status, err, tc.want)
			}
			if tc.status == http.StatusTooManyRequests {
				hint, ok := services.RetryAfterHint(err)
				if !ok || hint != 30*time.Second {
					t.Fatalf("expected 30s retry hint, got %v ok=%v", hint, ok)
				}
			}
		})
	}
}

func TestStale401ReplaysAfterForcedRefresh(t *testing.T) {
	var requests int
	client, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"mediaItems": []}`)
	}))
	// The server rejects the stored token even though its local expiry
	// still looks fine; a forced refresh must rescue the request.
	tokens.token = "stale"
	tokens.next = "fresh"

	page, err := client.ListPage(context.Background(), "acct-1", "")
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if page == nil {
		t.Fatal("expected a page after replay")
	}
	if tokens.invalidations != 1 {
		t.Fatalf("expected exactly one forced refresh, got %d", tokens.invalidations)
	}
	if requests != 2 {
		t.Fatalf("expected original request plus one replay, got %d", requests)
	}
}

func TestPersistent401IsAuthError(t *testing.T) {
	client, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.ListPage(context.Background(), "acct-1", "")
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected ErrAuth after a 401 survived the refresh, got %v", err)
	}
	if tokens.invalidations != 1 {
		t.Fatalf("expected a single refresh attempt before giving up, got %d", tokens.invalidations)
	}
}

func TestGetItemRenewsFetchTime(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mediaItems/item-1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"id": "item-1", "productUrl": "https://library.example/1", "baseUrl": "https://cdn.example/1?sig=fresh", "filename": "one.jpg"}`)
	}))

	before := time.Now()
	item, err := client.GetItem(context.Background(), "acct-1", "item-1")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if item.BaseURL != "https://cdn.example/1?sig=fresh" {
		t.Fatalf("unexpected base url %q", item.BaseURL)
	}
	if item.BaseURLObtained.Before(before) {
		t.Fatalf("expected fetch time stamped, got %v", item.BaseURLObtained)
	}
}

func TestDownloadURLParams(t *testing.T) {
	photo := &media.Item{BaseURL: "https://cdn.example/p", MimeType: "image/jpeg"}
	if got := photos.DownloadURL(photo); got != "https://cdn.example/p=d" {
		t.Fatalf("photo url = %q", got)
	}

	video := &media.Item{BaseURL: "https://cdn.example/v", MimeType: "video/mp4"}
	if got := photos.DownloadURL(video); got != "https://cdn.example/v=dv" {
		t.Fatalf("video url = %q", got)
	}

	// Metadata arm decides when the mime type is missing.
	tagged := &media.Item{
		BaseURL:  "https://cdn.example/t",
		Metadata: &media.Metadata{Video: &media.VideoMetadata{}},
	}
	if got := photos.DownloadURL(tagged); got != "https://cdn.example/t=dv" {
		t.Fatalf("tagged url = %q", got)
	}
}

func TestFetchAssetStreamsBody(t *testing.T) {
	payload := []byte("asset-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Write(payload)
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t)
	client := photos.New(cfg, &staticTokens{token: "token-1"}, nil)

	item := &media.Item{ID: "item-1", BaseURL: server.URL + "/asset", MimeType: "image/jpeg"}
	body, size, err := client.FetchAsset(context.Background(), item)
	if err != nil {
		t.Fatalf("FetchAsset failed: %v", err)
	}
	defer body.Close()

	got, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read asset failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("unexpected payload %q", got)
	}
	if size != int64(len(payload)) {
		t.Fatalf("unexpected size %d", size)
	}
}

func TestFetchAssetNotFoundIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t)
	client := photos.New(cfg, &staticTokens{token: "token-1"}, nil)

	item := &media.Item{ID: "item-1", BaseURL: server.URL + "/asset", MimeType: "image/jpeg"}
	if _, _, err := client.FetchAsset(context.Background(), item); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
