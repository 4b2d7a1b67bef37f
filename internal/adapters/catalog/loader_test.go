package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const validCatalogYAML = `version: "1.0.0"
bundle_type: checklist_catalog
maintainer: ops
description: test catalog
meta:
  critical_sections:
    - Sala de máquinas
    - Unidad hidráulica
questions:
  - ordinal: 2
    section: Cabina
    text: Revisar botonera de cabina
    tier: monthly
  - ordinal: 1
    section: Sala de máquinas
    text: Revisar nivel de aceite de la máquina
    tier: quarterly
  - ordinal: 3
    section: Unidad hidráulica
    text: Revisar fugas en la central hidráulica
    tier: monthly
    hydraulic_only: true
`

func writeTempCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp catalog: %v", err)
	}
	return path
}

func TestLoad_SortsByOrdinalAndHashes(t *testing.T) {
	path := writeTempCatalog(t, validCatalogYAML)

	loaded, err := NewLoader(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(loaded.Questions) != 3 {
		t.Fatalf("questions=%d want 3", len(loaded.Questions))
	}
	for i, q := range loaded.Questions {
		if q.Ordinal != i+1 {
			t.Fatalf("questions[%d].Ordinal=%d want %d", i, q.Ordinal, i+1)
		}
	}
	if loaded.SHA256 == "" {
		t.Fatalf("SHA256 is empty")
	}
	if !loaded.Questions[2].HydraulicOnly {
		t.Fatalf("ordinal 3 should be hydraulic_only")
	}
}

func TestLoad_CriticalSectionsCaseInsensitive(t *testing.T) {
	path := writeTempCatalog(t, validCatalogYAML)

	loaded, err := NewLoader(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !loaded.IsCriticalSection("sala de máquinas") {
		t.Fatalf("sala de máquinas should be critical")
	}
	if !loaded.IsCriticalSection("  Unidad Hidráulica  ") {
		t.Fatalf("unidad hidráulica should be critical")
	}
	if loaded.IsCriticalSection("Cabina") {
		t.Fatalf("cabina should not be critical")
	}
}

func TestLoad_RejectsDuplicateOrdinal(t *testing.T) {
	path := writeTempCatalog(t, `version: "1"
bundle_type: checklist_catalog
questions:
  - {ordinal: 1, section: Cabina, text: a, tier: monthly}
  - {ordinal: 1, section: Foso, text: b, tier: monthly}
`)

	if _, err := NewLoader(path).Load(context.Background()); err == nil {
		t.Fatalf("expected duplicate ordinal error")
	}
}

func TestLoad_RejectsUnknownTier(t *testing.T) {
	path := writeTempCatalog(t, `version: "1"
bundle_type: checklist_catalog
questions:
  - {ordinal: 1, section: Cabina, text: a, tier: yearly}
`)

	if _, err := NewLoader(path).Load(context.Background()); err == nil {
		t.Fatalf("expected unknown tier error")
	}
}
