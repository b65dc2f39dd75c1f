package fileutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestWriteStream(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.bin")

	written, err := WriteStream(path, strings.NewReader("hello world"))
	if err != nil {
		t.Fatal(err)
	}
	if written != int64(len("hello world")) {
		t.Fatalf("written = %d", written)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello world" {
		t.Fatalf("content mismatch: got %q", got)
	}
}

func TestWriteStreamRemovesPartialOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	boom := errors.New("stream interrupted")
	_, err := WriteStream(path, &failingReader{data: []byte("partial"), err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("expected stream error, got %v", err)
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("expected partial file removed, stat err %v", statErr)
	}
}

func TestPublishAtomic(t *testing.T) {
	dir := t.TempDir()
	temp := filepath.Join(dir, "asset.part")
	final := filepath.Join(dir, "library", "asset.jpg")

	if err := os.WriteFile(temp, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := PublishAtomic(temp, final); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(temp); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected temp gone, stat err %v", err)
	}
	got, err := os.ReadFile(final)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload" {
		t.Fatalf("content mismatch: got %q", got)
	}
}

func TestPublishAtomicMissingTemp(t *testing.T) {
	dir := t.TempDir()
	err := PublishAtomic(filepath.Join(dir, "missing.part"), filepath.Join(dir, "final.jpg"))
	if err == nil {
		t.Fatal("expected error for missing temp file")
	}
}

func TestRemoveQuiet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stale.part")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	RemoveQuiet(path)
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected file removed, stat err %v", err)
	}

	RemoveQuiet(path)
	RemoveQuiet("")
}

var _ io.Reader = (*failingReader)(nil)
