// Package media defines the remote media item descriptor and its typed
// metadata as exchanged with the remote library API and persisted by the
// item store.
package media
