package answers

import (
	"testing"

	"liftops/internal/domain/model"
)

func testQuestions() []model.ChecklistQuestion {
	return []model.ChecklistQuestion{
		{Ordinal: 1, Section: "Cabina", Text: "Revisar botonera", Tier: model.TierMonthly},
		{Ordinal: 2, Section: "Foso", Text: "Revisar foso", Tier: model.TierMonthly},
	}
}

func TestNewStore_SeedsPendingAndRestores(t *testing.T) {
	seed := []model.ChecklistAnswer{
		{Ordinal: 2, Status: model.AnswerApproved},
		{Ordinal: 99, Status: model.AnswerApproved}, // 不在本月题集，忽略
	}
	store := NewStore("chk_1", testQuestions(), seed)

	a, ok := store.Get(1)
	if !ok || a.Status != model.AnswerPending {
		t.Fatalf("ordinal 1 status=%q want pending", a.Status)
	}
	b, ok := store.Get(2)
	if !ok || b.Status != model.AnswerApproved {
		t.Fatalf("ordinal 2 status=%q want approved", b.Status)
	}
	if _, ok := store.Get(99); ok {
		t.Fatalf("ordinal 99 should not exist")
	}
}

func TestSetStatus_LeavingRejectedClearsEvidence(t *testing.T) {
	store := NewStore("chk_1", testQuestions(), nil)

	if _, err := store.SetStatus(1, model.AnswerRejected); err != nil {
		t.Fatalf("SetStatus rejected: %v", err)
	}
	if _, err := store.SetObservation(1, "Cable dañado"); err != nil {
		t.Fatalf("SetObservation: %v", err)
	}
	if _, err := store.SetPhotoRef(1, 1, "photo/aa/abc.jpg"); err != nil {
		t.Fatalf("SetPhotoRef: %v", err)
	}

	got, err := store.SetStatus(1, model.AnswerApproved)
	if err != nil {
		t.Fatalf("SetStatus approved: %v", err)
	}
	if got.Observation != "" || got.PhotoRef1 != "" || got.PhotoRef2 != "" {
		t.Fatalf("evidence not cleared: %+v", got)
	}
}

func TestSetObservation_RequiresRejected(t *testing.T) {
	store := NewStore("chk_1", testQuestions(), nil)

	if _, err := store.SetObservation(1, "algo"); err == nil {
		t.Fatalf("expected error for observation on pending answer")
	}
	if _, err := store.SetPhotoRef(1, 1, "photo/aa/abc.jpg"); err == nil {
		t.Fatalf("expected error for photo on pending answer")
	}
}

func TestSetStatus_UnknownOrdinalOrStatus(t *testing.T) {
	store := NewStore("chk_1", testQuestions(), nil)

	if _, err := store.SetStatus(7, model.AnswerApproved); err == nil {
		t.Fatalf("expected error for unknown ordinal")
	}
	if _, err := store.SetStatus(1, model.AnswerStatus("maybe")); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestMutations_CountsEveryChange(t *testing.T) {
	store := NewStore("chk_1", testQuestions(), nil)

	_, _ = store.SetStatus(1, model.AnswerRejected)
	_, _ = store.SetObservation(1, "fuga")
	_, _ = store.SetPhotoRef(1, 2, "photo/bb/def.jpg")

	if got := store.Mutations(); got != 3 {
		t.Fatalf("mutations=%d want 3", got)
	}
}

func TestSnapshot_SortedCopies(t *testing.T) {
	store := NewStore("chk_1", testQuestions(), nil)
	_, _ = store.SetStatus(2, model.AnswerApproved)

	snap := store.Snapshot()
	if len(snap) != 2 || snap[0].Ordinal != 1 || snap[1].Ordinal != 2 {
		t.Fatalf("snapshot order wrong: %+v", snap)
	}

	snap[0].Status = model.AnswerNotApplicable
	if got, _ := store.Get(1); got.Status != model.AnswerPending {
		t.Fatalf("snapshot mutation leaked into store")
	}
}
