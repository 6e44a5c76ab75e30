// ABOUTME: Tests for media file lookup
// ABOUTME: Verifies item-to-media path derivation
package player

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLocateMedia(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "show.mp3")
	if err := os.WriteFile(path, []byte{0}, 0o644); err != nil {
		t.Fatal(err)
	}

	got, ok := LocateMedia(dir, "show.fseq")
	if !ok {
		t.Fatal("expected media to be found")
	}
	if got != path {
		t.Errorf("expected %s, got %s", path, got)
	}
}

func TestLocateMediaMissing(t *testing.T) {
	if _, ok := LocateMedia(t.TempDir(), "show.fseq"); ok {
		t.Error("expected no media")
	}
}

func TestLocateMediaEmptyItem(t *testing.T) {
	if _, ok := LocateMedia(t.TempDir(), ""); ok {
		t.Error("expected no media for empty item")
	}
}
