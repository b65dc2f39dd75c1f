// Package workflow runs the sync engine's background lanes.
//
// The Manager owns two independent loops: the scan lane enumerates every
// registered account's catalog on an interval, and the download lane drains
// the eligible item pool through the downloader's worker pool. The lanes
// share only the item store, so a slow enumeration never blocks downloads
// and vice versa.
//
// The scan lane runs on the short interval until every account has finished
// its first full pass, then relaxes to the idle interval. Stop cancels both
// lanes and waits for in-flight work to settle.
package workflow
