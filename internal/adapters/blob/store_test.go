package blob

import (
	"os"
	"strings"
	"testing"
)

func TestSave_ContentAddressed(t *testing.T) {
	store := NewStore(t.TempDir())

	first, err := store.Save("photo", "jpg", strings.NewReader("evidencia-1"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	second, err := store.Save("photo", "jpg", strings.NewReader("evidencia-1"))
	if err != nil {
		t.Fatalf("Save duplicate: %v", err)
	}

	if first.Ref != second.Ref {
		t.Fatalf("refs differ: %q vs %q", first.Ref, second.Ref)
	}
	if first.SHA256 == "" || first.SHA256 != second.SHA256 {
		t.Fatalf("sha mismatch: %q vs %q", first.SHA256, second.SHA256)
	}
	if !strings.HasPrefix(first.Ref, "photo/") {
		t.Fatalf("ref=%q should be under photo/", first.Ref)
	}
	if !store.Exists(first.Ref) {
		t.Fatalf("blob should exist after save")
	}
}

func TestSave_RejectsEmptyContent(t *testing.T) {
	store := NewStore(t.TempDir())

	if _, err := store.Save("photo", "jpg", strings.NewReader("")); err == nil {
		t.Fatalf("expected error for empty content")
	}
}

func TestOpen_RoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	saved, err := store.Save("signature", "png", strings.NewReader("firma"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	f, err := store.Open(saved.Ref)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	raw, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(raw) != "firma" {
		t.Fatalf("content=%q want %q", raw, "firma")
	}
}

func TestResolve_RejectsTraversal(t *testing.T) {
	store := NewStore(t.TempDir())

	for _, ref := range []string{"../secret", "photo/../../etc/passwd", "/etc/passwd", ""} {
		if _, err := store.Resolve(ref); err == nil {
			t.Fatalf("ref %q should be rejected", ref)
		}
	}
}
