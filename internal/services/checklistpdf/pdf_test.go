package checklistpdf

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"liftops/internal/adapters/catalog"
	sqliteadapter "liftops/internal/adapters/store/sqlite"
	"liftops/internal/domain/model"
	"liftops/internal/platform/id"

	_ "modernc.org/sqlite"
)

const testCatalogYAML = `version: "test"
bundle_type: checklist_catalog
meta:
  critical_sections:
    - "Sala de máquinas"
questions:
  - ordinal: 1
    section: "Sala de máquinas"
    text: "Verificar limpieza de la sala de máquinas."
    tier: monthly
  - ordinal: 2
    section: "Cabina"
    text: "Probar alarma de emergencia."
    tier: monthly
`

func TestGenerateChecklistPDF_CreatesDocumentAndFile(t *testing.T) {
	ctx := context.Background()
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "liftops.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		t.Fatalf("set busy_timeout: %v", err)
	}

	m := sqliteadapter.NewMigrator(db)
	if err := m.Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := sqliteadapter.NewStore(db)
	cl, err := store.EnsureChecklist(ctx, "cli_demo", "eq_demo", "tec_demo", 3, 2026, false)
	if err != nil {
		t.Fatalf("ensure checklist: %v", err)
	}

	// 答案：一条通过、一条被拒（带观察说明与照片引用）。
	answers := []model.ChecklistAnswer{
		{ChecklistID: cl.ID, Ordinal: 1, Status: model.AnswerApproved},
		{
			ChecklistID: cl.ID,
			Ordinal:     2,
			Status:      model.AnswerRejected,
			Observation: "La alarma no suena al mantener pulsado el botón.",
			PhotoRef1:   "photo/ab/abcdef.jpg",
		},
	}
	if err := store.UpsertAnswers(ctx, cl.ID, answers); err != nil {
		t.Fatalf("upsert answers: %v", err)
	}

	if err := store.UpdateCertification(ctx, cl.ID, "2025-09", 9, 2026, false, model.CertVigente); err != nil {
		t.Fatalf("update certification: %v", err)
	}

	// 派生工单（PDF 展示用）
	if err := store.InsertServiceRequest(ctx, model.DerivedServiceRequest{
		ID:           id.New("req"),
		ChecklistID:  cl.ID,
		EquipmentID:  cl.EquipmentID,
		ClientID:     cl.ClientID,
		TechnicianID: cl.TechnicianID,
		Ordinal:      2,
		Section:      "Cabina",
		Description:  "La alarma no suena al mantener pulsado el botón.",
		Critical:     false,
		PhotoRef1:    "photo/ab/abcdef.jpg",
		CreatedAt:    time.Now().Unix(),
	}); err != nil {
		t.Fatalf("insert service request: %v", err)
	}

	// 审计链（PDF 摘要用）
	_ = store.AppendAudit(ctx, cl.ID, "visit", "open_checklist", "success", "tester", "pdf_test", map[string]any{"k": "v"})
	_ = store.AppendAudit(ctx, cl.ID, "answers", "flush", "success", "tester", "pdf_test", map[string]any{"count": 2})

	catalogPath := filepath.Join(tmp, "catalog.yaml")
	if err := os.WriteFile(catalogPath, []byte(testCatalogYAML), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	loaded, err := catalog.NewLoader(catalogPath).Load(ctx)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	res, err := GenerateChecklistPDF(ctx, store, loaded, Options{
		ChecklistID: cl.ID,
		OutputDir:   filepath.Join(tmp, "documents"),
		Operator:    "tester",
		Note:        "unit_test",
	})
	if err != nil {
		t.Fatalf("GenerateChecklistPDF: %v", err)
	}
	if res.DocumentID == "" {
		t.Fatalf("expected document_id, got empty")
	}
	if res.PDFPath == "" {
		t.Fatalf("expected pdf_path, got empty")
	}
	if res.PDFSHA256 == "" {
		t.Fatalf("expected pdf_sha256, got empty")
	}

	st, err := os.Stat(res.PDFPath)
	if err != nil {
		t.Fatalf("stat pdf: %v", err)
	}
	if st.Size() <= 0 {
		t.Fatalf("pdf size should be > 0, got %d", st.Size())
	}

	info, err := store.GetDocumentByID(ctx, res.DocumentID)
	if err != nil {
		t.Fatalf("get document by id: %v", err)
	}
	if info == nil {
		t.Fatalf("document not found by id: %s", res.DocumentID)
	}
	if info.DocType != "checklist_pdf" {
		t.Fatalf("unexpected doc type: %s", info.DocType)
	}
	if info.SHA256 != res.PDFSHA256 {
		t.Fatalf("sha mismatch: db=%s res=%s", info.SHA256, res.PDFSHA256)
	}
}

func TestSafeText_ReplacesNonASCIIWithoutUnicodeFont(t *testing.T) {
	got := safeText("Observación técnica", false)
	if got != "Observaci?n t?cnica" {
		t.Fatalf("unexpected safeText output: %q", got)
	}
	if safeText("Observación", true) != "Observación" {
		t.Fatalf("utf8 text should pass through unchanged")
	}
}

func TestAnswerMark(t *testing.T) {
	cases := map[model.AnswerStatus]string{
		model.AnswerApproved:      "OK",
		model.AnswerRejected:      "RECHAZADO",
		model.AnswerNotApplicable: "N/A",
		model.AnswerPending:       "PENDIENTE",
	}
	for status, want := range cases {
		if got := answerMark(status); got != want {
			t.Fatalf("answerMark(%s) = %s, want %s", status, got, want)
		}
	}
}
