package signing

import (
	"context"
	"errors"
	"testing"

	"liftops/internal/domain/model"
)

type fakeStore struct {
	checklists map[string]*model.Checklist
	attached   []string
	audits     int
}

func (f *fakeStore) GetChecklist(_ context.Context, checklistID string) (*model.Checklist, error) {
	return f.checklists[checklistID], nil
}

func (f *fakeStore) ListAnswers(_ context.Context, _ string) ([]model.ChecklistAnswer, error) {
	return nil, nil
}

func (f *fakeStore) AttachSignature(_ context.Context, _ model.SignatureRecord, checklistIDs []string) ([]string, error) {
	f.attached = append(f.attached, checklistIDs...)
	return checklistIDs, nil
}

func (f *fakeStore) AppendAudit(_ context.Context, _, _, _, _, _, _ string, _ any) error {
	f.audits++
	return nil
}

type fakeDeriver struct {
	calls map[string]int
}

func (f *fakeDeriver) Derive(_ context.Context, checklistID string) (int, []string) {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[checklistID]++
	return 1, nil
}

type fakeExporter struct {
	fail  map[string]bool
	calls int
}

func (f *fakeExporter) Export(_ context.Context, checklistID string) (string, error) {
	f.calls++
	if f.fail[checklistID] {
		return "", errors.New("font missing")
	}
	return "doc_" + checklistID, nil
}

func sessionStore() *fakeStore {
	return &fakeStore{checklists: map[string]*model.Checklist{
		"chk_a": {ID: "chk_a", Status: model.ChecklistCompleted},
		"chk_b": {ID: "chk_b", Status: model.ChecklistCompleted},
		"chk_c": {ID: "chk_c", Status: model.ChecklistInProgress},
		"chk_d": {ID: "chk_d", Status: model.ChecklistCompleted, SignatureID: "sig_old"},
	}}
}

func validInput(ids ...string) Input {
	return Input{
		ChecklistIDs: ids,
		SignerName:   "María González",
		ImageRef:     "signature/aa/abc.png",
		Operator:     "tec_1",
	}
}

func TestSign_OnlyCompletedUnsigned(t *testing.T) {
	store := sessionStore()
	deriver := &fakeDeriver{}
	coord := NewCoordinator(store, deriver, &fakeExporter{})

	res, err := coord.Sign(context.Background(), validInput("chk_a", "chk_b", "chk_c", "chk_d"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if len(res.Signed) != 2 {
		t.Fatalf("signed=%v want [chk_a chk_b]", res.Signed)
	}
	if len(res.Skipped) != 2 {
		t.Fatalf("skipped=%v want [chk_c chk_d]", res.Skipped)
	}
	if res.SignatureID == "" {
		t.Fatalf("signature id is empty")
	}
	if deriver.calls["chk_a"] != 1 || deriver.calls["chk_b"] != 1 {
		t.Fatalf("derive calls=%v want once each", deriver.calls)
	}
	if deriver.calls["chk_c"] != 0 || deriver.calls["chk_d"] != 0 {
		t.Fatalf("skipped checklists must not derive: %v", deriver.calls)
	}
	if res.RequestsCreated != 2 {
		t.Fatalf("requests=%d want 2", res.RequestsCreated)
	}
}

func TestSign_ExportFailureIsolated(t *testing.T) {
	store := sessionStore()
	exporter := &fakeExporter{fail: map[string]bool{"chk_a": true}}
	coord := NewCoordinator(store, &fakeDeriver{}, exporter)

	res, err := coord.Sign(context.Background(), validInput("chk_a", "chk_b"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if res.ExportFailures != 1 {
		t.Fatalf("export_failures=%d want 1", res.ExportFailures)
	}
	if len(res.Signed) != 2 {
		t.Fatalf("export failure must not unsign: %v", res.Signed)
	}
	if exporter.calls != 2 {
		t.Fatalf("export calls=%d want 2", exporter.calls)
	}
	if len(res.Warnings) == 0 {
		t.Fatalf("expected warning for failed export")
	}
}

func TestSign_NoCompletedChecklists(t *testing.T) {
	coord := NewCoordinator(sessionStore(), &fakeDeriver{}, &fakeExporter{})

	if _, err := coord.Sign(context.Background(), validInput("chk_c")); err == nil {
		t.Fatalf("expected error when nothing to sign")
	}
}

func TestSign_ValidatesInput(t *testing.T) {
	coord := NewCoordinator(sessionStore(), &fakeDeriver{}, &fakeExporter{})

	in := validInput("chk_a")
	in.SignerName = "  "
	if _, err := coord.Sign(context.Background(), in); err == nil {
		t.Fatalf("expected error for empty signer name")
	}

	in = validInput("chk_a")
	in.ImageRef = ""
	if _, err := coord.Sign(context.Background(), in); err == nil {
		t.Fatalf("expected error for empty image ref")
	}

	in = validInput()
	if _, err := coord.Sign(context.Background(), in); err == nil {
		t.Fatalf("expected error for empty session")
	}
}
