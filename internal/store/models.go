package store

import (
	"time"

	"syncabull/internal/media"
)

// Account is a remote library account registered for backup.
type Account struct {
	ID                  string
	DisplayName         string
	ReauthRequired      bool
	InitialScanComplete bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Credential is the per-account OAuth token pair. Expiry is the access token
// expiry instant; a zero Expiry means the access token was never obtained.
type Credential struct {
	AccountID    string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	UpdatedAt    time.Time
}

// Cursor is the per-account pagination position. Tokens are opaque and
// replayed verbatim; an empty NextToken means enumeration starts from the
// first page.
type Cursor struct {
	AccountID string
	NextToken string
	PrevToken string
	UpdatedAt time.Time
}

// Item is a media item descriptor together with its persisted sync record.
type Item struct {
	Media     media.Item
	AccountID string

	Attempts        int
	Success         bool
	Terminal        bool
	LastAttemptAt   *time.Time
	LastError       string
	FinalPath       string
	BytesDownloaded int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Outcome records the result of one download attempt. Terminal state is
// derived inside the store: a fatal classification or attempt exhaustion
// marks the record terminal.
type Outcome struct {
	Success     bool
	Fatal       bool
	MaxAttempts int
	Error       string
	FinalPath   string
	Bytes       int64
}

// AccountStats aggregates item counts for status output.
type AccountStats struct {
	AccountID  string
	Total      int
	Pending    int
	Downloaded int
	Terminal   int
	Bytes      int64
}
