package catalogfilter

import (
	"reflect"
	"testing"

	"liftops/internal/domain/model"
)

func sampleQuestions() []model.ChecklistQuestion {
	return []model.ChecklistQuestion{
		{Ordinal: 1, Section: "Sala de máquinas", Text: "Revisar nivel de aceite", Tier: model.TierMonthly},
		{Ordinal: 2, Section: "Cabina", Text: "Revisar botonera", Tier: model.TierQuarterly},
		{Ordinal: 3, Section: "Foso", Text: "Revisar amortiguadores", Tier: model.TierSemestral},
		{Ordinal: 4, Section: "Unidad hidráulica", Text: "Revisar fugas de la central", Tier: model.TierMonthly, HydraulicOnly: true},
	}
}

func ordinals(qs []model.ChecklistQuestion) []int {
	out := make([]int, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.Ordinal)
	}
	return out
}

func TestFilter_MonthlyOnlyMonth(t *testing.T) {
	got, err := Filter(sampleQuestions(), EquipmentProfile{Hydraulic: false, Month: 1})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(got) != 1 || got[0].Ordinal != 1 {
		t.Fatalf("ordinals=%v want [1]", ordinals(got))
	}
}

func TestFilter_QuarterlyMonths(t *testing.T) {
	for _, month := range []int{3, 9} {
		got, err := Filter(sampleQuestions(), EquipmentProfile{Month: month})
		if err != nil {
			t.Fatalf("Filter month %d: %v", month, err)
		}
		if len(got) != 2 || got[1].Ordinal != 2 {
			t.Fatalf("month %d ordinals=%v want [1 2]", month, ordinals(got))
		}
	}
}

func TestFilter_SemestralMonthsIncludeAllTiers(t *testing.T) {
	got, err := Filter(sampleQuestions(), EquipmentProfile{Hydraulic: true, Month: 6})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	want := []int{1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("ordinals=%v want %v", ordinals(got), want)
	}
	for i, o := range ordinals(got) {
		if o != want[i] {
			t.Fatalf("ordinals=%v want %v", ordinals(got), want)
		}
	}
}

func TestFilter_HydraulicOnlyExcludedForTraction(t *testing.T) {
	got, err := Filter(sampleQuestions(), EquipmentProfile{Hydraulic: false, Month: 12})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	for _, q := range got {
		if q.HydraulicOnly {
			t.Fatalf("hydraulic-only question %d leaked for traction unit", q.Ordinal)
		}
	}
}

func TestFilter_IdempotentForSameProfile(t *testing.T) {
	for _, profile := range []EquipmentProfile{
		{Hydraulic: false, Month: 1},
		{Hydraulic: true, Month: 6},
		{Hydraulic: false, Month: 9},
	} {
		first, err := Filter(sampleQuestions(), profile)
		if err != nil {
			t.Fatalf("Filter %+v: %v", profile, err)
		}
		second, err := Filter(sampleQuestions(), profile)
		if err != nil {
			t.Fatalf("Filter %+v again: %v", profile, err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("profile %+v: first=%v second=%v want identical elements and order",
				profile, ordinals(first), ordinals(second))
		}
	}
}

func TestFilter_RejectsBadMonth(t *testing.T) {
	if _, err := Filter(sampleQuestions(), EquipmentProfile{Month: 0}); err == nil {
		t.Fatalf("expected error for month 0")
	}
	if _, err := Filter(sampleQuestions(), EquipmentProfile{Month: 13}); err == nil {
		t.Fatalf("expected error for month 13")
	}
}
