// Package fileutil provides durable file writes and target naming for
// downloaded assets.
package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SanitizeFilename maps a remote filename to a safe local one: NFC
// normalization collapses byte-level variants of the same name, path
// separators become underscores, and leading/trailing dots are stripped.
// Collision checks must run over this form, never the raw remote name.
func SanitizeFilename(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, name)
	return strings.Trim(name, ".")
}

// WriteStream streams r into path, fsyncing before close so the bytes are
// durable. The partial file is removed on any error. Returns the byte count
// written.
func WriteStream(path string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create parent directory: %w", err)
	}

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}

	written, err := io.Copy(out, r)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return 0, err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return 0, fmt.Errorf("sync %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return written, nil
}

// PublishAtomic moves a completed temp file onto its final path with a
// rename, then syncs the parent directory so the entry survives a crash.
// Readers of finalPath only ever see a complete file.
func PublishAtomic(tempPath, finalPath string) error {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("publish %s: %w", finalPath, err)
	}
	if dir, err := os.Open(filepath.Dir(finalPath)); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}
	return nil
}

// RemoveQuiet deletes a file, ignoring missing-file errors. Used to clean
// abandoned temp files.
func RemoveQuiet(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
