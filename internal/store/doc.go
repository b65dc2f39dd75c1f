// Package store persists engine state in SQLite: media item descriptors with
// their download outcomes, per-account credentials, pagination cursors, and
// engine settings. It is the single owner of those tables; all cross-worker
// serialization happens through its transactional updates.
package store
