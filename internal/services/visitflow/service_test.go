package visitflow

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"liftops/internal/adapters/catalog"
	sqliteadapter "liftops/internal/adapters/store/sqlite"
	"liftops/internal/domain/model"

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
  - ordinal: 3
    section: "Unidad hidráulica"
    text: "Verificar nivel de aceite hidráulico."
    tier: monthly
    hydraulic_only: true
`

func newTestService(t *testing.T) (*Service, *sqliteadapter.Store, func()) {
	t.Helper()
	ctx := context.Background()
	tmp := t.TempDir()

	db, err := sql.Open("sqlite", filepath.Join(tmp, "liftops.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		t.Fatalf("set busy_timeout: %v", err)
	}
	if err := sqliteadapter.NewMigrator(db).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	catalogPath := filepath.Join(tmp, "catalog.yaml")
	if err := os.WriteFile(catalogPath, []byte(testCatalogYAML), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	loaded, err := catalog.NewLoader(catalogPath).Load(ctx)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	store := sqliteadapter.NewStore(db)
	svc := NewService(store, loaded, filepath.Join(tmp, "documents"))
	return svc, store, func() { db.Close() }
}

func TestVisitFlow_CompleteAndSign(t *testing.T) {
	ctx := context.Background()
	svc, store, cleanup := newTestService(t)
	defer cleanup()

	sess, err := svc.StartVisit(ctx, "cli_demo", "tec_demo")
	if err != nil {
		t.Fatalf("start visit: %v", err)
	}

	cl, questions, err := svc.OpenChecklist(ctx, sess.ID, "eq_demo", 1, 2026, false)
	if err != nil {
		t.Fatalf("open checklist: %v", err)
	}
	// 非液压设备在 1 月：只剩两道月检题，液压专属题被过滤。
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}

	if _, err := svc.SetAnswerStatus(ctx, sess.ID, cl.ID, 1, model.AnswerApproved); err != nil {
		t.Fatalf("set status 1: %v", err)
	}
	if _, err := svc.SetAnswerStatus(ctx, sess.ID, cl.ID, 2, model.AnswerRejected); err != nil {
		t.Fatalf("set status 2: %v", err)
	}

	// 被拒答案缺观察说明与照片时不可关单。
	res, err := svc.EvaluateCompletion(ctx, sess.ID, cl.ID)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.CanComplete {
		t.Fatalf("expected blocked completion")
	}

	if _, err := svc.SetObservation(ctx, sess.ID, cl.ID, 2, "La alarma no suena."); err != nil {
		t.Fatalf("set observation: %v", err)
	}
	if _, err := svc.SetPhotoRef(ctx, sess.ID, cl.ID, 2, 1, "photo/ab/abcdef.jpg"); err != nil {
		t.Fatalf("set photo: %v", err)
	}

	res, completed, err := svc.CompleteChecklist(ctx, sess.ID, cl.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !res.CanComplete || completed == nil {
		t.Fatalf("expected completion, got blockers=%v", res.Blockers)
	}
	if completed.Status != model.ChecklistCompleted {
		t.Fatalf("unexpected status: %s", completed.Status)
	}
	if completed.Folio != "F-2026-0001" {
		t.Fatalf("unexpected folio: %s", completed.Folio)
	}

	signRes, err := svc.SignSession(ctx, sess.ID, "Cliente Demo", "signature/ab/abcdef.png")
	if err != nil {
		t.Fatalf("sign session: %v", err)
	}
	if len(signRes.Signed) != 1 || signRes.Signed[0] != cl.ID {
		t.Fatalf("unexpected signed list: %v", signRes.Signed)
	}
	if signRes.RequestsCreated != 1 {
		t.Fatalf("expected 1 derived request, got %d", signRes.RequestsCreated)
	}

	// 签名后会话被清理。
	if _, ok := svc.Session(sess.ID); ok {
		t.Fatalf("session should be cleared after signing")
	}

	requests, err := store.ListServiceRequestsByChecklist(ctx, cl.ID)
	if err != nil {
		t.Fatalf("list requests: %v", err)
	}
	if len(requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(requests))
	}
	if requests[0].Critical {
		t.Fatalf("Cabina is not a critical section")
	}

	signed, err := store.GetChecklist(ctx, cl.ID)
	if err != nil || signed == nil {
		t.Fatalf("get checklist: %v", err)
	}
	if signed.SignatureID == "" || signed.SignedAt == 0 {
		t.Fatalf("checklist should carry signature binding")
	}
	if signed.DocumentID == "" {
		t.Fatalf("checklist should have exported pdf document")
	}
}

func TestVisitFlow_ReopenCompletedPeriodRejected(t *testing.T) {
	ctx := context.Background()
	svc, _, cleanup := newTestService(t)
	defer cleanup()

	sess, err := svc.StartVisit(ctx, "cli_demo", "tec_demo")
	if err != nil {
		t.Fatalf("start visit: %v", err)
	}
	cl, _, err := svc.OpenChecklist(ctx, sess.ID, "eq_demo", 1, 2026, false)
	if err != nil {
		t.Fatalf("open checklist: %v", err)
	}
	if _, err := svc.SetAnswerStatus(ctx, sess.ID, cl.ID, 1, model.AnswerApproved); err != nil {
		t.Fatalf("set status 1: %v", err)
	}
	if _, err := svc.SetAnswerStatus(ctx, sess.ID, cl.ID, 2, model.AnswerNotApplicable); err != nil {
		t.Fatalf("set status 2: %v", err)
	}
	if _, _, err := svc.CompleteChecklist(ctx, sess.ID, cl.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// 同周期再开单必须被拒绝。
	if _, _, err := svc.OpenChecklist(ctx, sess.ID, "eq_demo", 1, 2026, false); !errors.Is(err, sqliteadapter.ErrPeriodCompleted) {
		t.Fatalf("expected ErrPeriodCompleted, got %v", err)
	}
}

func TestVisitFlow_AutosaveFailureSurfacedOnUpdate(t *testing.T) {
	ctx := context.Background()
	svc, _, cleanup := newTestService(t)
	defer cleanup()

	sess, err := svc.StartVisit(ctx, "cli_demo", "tec_demo")
	if err != nil {
		t.Fatalf("start visit: %v", err)
	}
	cl, _, err := svc.OpenChecklist(ctx, sess.ID, "eq_demo", 1, 2026, false)
	if err != nil {
		t.Fatalf("open checklist: %v", err)
	}

	// 四次变更低于阈值，不触发落库。
	statuses := []model.AnswerStatus{
		model.AnswerApproved, model.AnswerApproved,
		model.AnswerNotApplicable, model.AnswerNotApplicable,
	}
	for i, status := range statuses {
		update, err := svc.SetAnswerStatus(ctx, sess.ID, cl.ID, i%2+1, status)
		if err != nil {
			t.Fatalf("set status %d: %v", i, err)
		}
		if update.Saved || update.FlushError != "" {
			t.Fatalf("mutation %d: saved=%v flush_error=%q want below-threshold no-op", i, update.Saved, update.FlushError)
		}
	}

	// 关掉数据库模拟落库故障：第五次变更触发自动保存并失败。
	cleanup()
	update, err := svc.SetAnswerStatus(ctx, sess.ID, cl.ID, 1, model.AnswerApproved)
	if err != nil {
		t.Fatalf("set status with broken store: %v", err)
	}
	if update.FlushError == "" {
		t.Fatalf("expected flush_error on failed autosave, got empty")
	}
	if update.Saved {
		t.Fatalf("failed flush must not report saved")
	}
	if update.Answer.Status != model.AnswerApproved {
		t.Fatalf("in-memory state should keep the mutation, got %s", update.Answer.Status)
	}

	// 内存状态保留，下一次变更会重试整份快照。
	answers, err := svc.Answers(sess.ID, cl.ID)
	if err != nil {
		t.Fatalf("answers: %v", err)
	}
	for _, a := range answers {
		if a.Ordinal == 1 && a.Status != model.AnswerApproved {
			t.Fatalf("mutation lost after failed flush: %v", a)
		}
	}
}

func TestVisitFlow_ResumeRestoresPersistedAnswers(t *testing.T) {
	ctx := context.Background()
	svc, _, cleanup := newTestService(t)
	defer cleanup()

	sess, err := svc.StartVisit(ctx, "cli_demo", "tec_demo")
	if err != nil {
		t.Fatalf("start visit: %v", err)
	}
	cl, _, err := svc.OpenChecklist(ctx, sess.ID, "eq_demo", 1, 2026, false)
	if err != nil {
		t.Fatalf("open checklist: %v", err)
	}
	if _, err := svc.SetAnswerStatus(ctx, sess.ID, cl.ID, 1, model.AnswerApproved); err != nil {
		t.Fatalf("set status: %v", err)
	}
	// 强制落库后模拟中断：换一个新会话续单。
	if _, err := svc.EvaluateCompletion(ctx, sess.ID, cl.ID); err != nil {
		t.Fatalf("flush via evaluate: %v", err)
	}

	sess2, err := svc.StartVisit(ctx, "cli_demo", "tec_demo")
	if err != nil {
		t.Fatalf("start second visit: %v", err)
	}
	cl2, _, err := svc.OpenChecklist(ctx, sess2.ID, "eq_demo", 1, 2026, false)
	if err != nil {
		t.Fatalf("reopen checklist: %v", err)
	}
	if cl2.ID != cl.ID {
		t.Fatalf("expected resume of same checklist, got %s vs %s", cl2.ID, cl.ID)
	}

	restored, err := svc.Answers(sess2.ID, cl2.ID)
	if err != nil {
		t.Fatalf("answers: %v", err)
	}
	var found bool
	for _, a := range restored {
		if a.Ordinal == 1 && a.Status == model.AnswerApproved {
			found = true
		}
	}
	if !found {
		t.Fatalf("persisted answer was not restored: %v", restored)
	}
}
