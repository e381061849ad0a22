package compliance

import (
	"testing"
	"time"

	"github.com/rips/rips/internal/domain/identity"
	"github.com/rips/rips/internal/domain/ingest"
)

var refNow = time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC)

func rec(pid, code, typ, date string) ingest.ServiceRecord {
	return ingest.ServiceRecord{ServiceCode: code, PatientID: pid, ServiceType: typ, ServiceName: "N" + code, ServiceDate: date}
}

func TestAggregate_ActiveTypeFilter(t *testing.T) {
	in := Input{
		Records: []ingest.ServiceRecord{
			rec("1", "100001", "CONSULTA", "2024-01-01"),
			rec("1", "200001", "LAB", "2024-01-01"),
			rec("1", "200001", "LAB", "2024-01-01"),
		},
		Goals: []Goal{
			{ServiceType: "CONSULTA", MonthlyGoal: 10, Active: true},
			{ServiceType: "LAB", MonthlyGoal: 10, Active: false},
		},
		Scale: 1,
		Now:   refNow,
	}
	rep := Aggregate(in)

	if rep.Stats.TotalRecords != 1 {
		t.Errorf("expected 1 filtered record, got %d", rep.Stats.TotalRecords)
	}
	if len(rep.CodeRanking) != 1 || rep.CodeRanking[0].ServiceCode != "100001" {
		t.Errorf("unexpected code ranking: %+v", rep.CodeRanking)
	}
	if len(rep.Duplicates) != 0 {
		t.Errorf("expected duplicates of inactive types to be ignored, got %+v", rep.Duplicates)
	}
	if len(rep.Chart) != 1 {
		t.Errorf("expected chart only for active goals, got %d", len(rep.Chart))
	}
}

func TestAggregate_ChartCapping(t *testing.T) {
	var records []ingest.ServiceRecord
	for i := 0; i < 15; i++ {
		records = append(records, rec("1", "100001", "CONSULTA", ""))
	}
	rep := Aggregate(Input{
		Records: records,
		Goals:   []Goal{{ServiceType: "CONSULTA", MonthlyGoal: 10, Active: true}},
		Scale:   1,
		Now:     refNow,
	})
	p := rep.Chart[0]
	if p.Executed != 15 || p.Target != 10 || p.Percent != 150 || p.CappedPercent != 100 || p.Color != ColorGreen {
		t.Errorf("unexpected chart point: %+v", p)
	}
}

func TestAggregate_ChartScaleAndColors(t *testing.T) {
	records := make([]ingest.ServiceRecord, 0, 17)
	for i := 0; i < 17; i++ {
		records = append(records, rec("1", "100001", "A", ""))
	}
	rep := Aggregate(Input{
		Records: records,
		Goals: []Goal{
			{ServiceType: "A", MonthlyGoal: 10, Active: true},
			{ServiceType: "B", MonthlyGoal: 0, Active: true},
		},
		Scale: 2,
		Now:   refNow,
	})
	a, b := rep.Chart[0], rep.Chart[1]
	if a.Target != 20 || a.Percent != 85 || a.Color != ColorYellow {
		t.Errorf("unexpected scaled point: %+v", a)
	}
	if b.Target != 0 || b.Percent != 0 || b.Color != ColorRed {
		t.Errorf("expected zero target to yield 0%% red, got %+v", b)
	}
}

func TestColorFor(t *testing.T) {
	tests := []struct {
		pct  int
		want Color
	}{{0, ColorRed}, {79, ColorRed}, {80, ColorYellow}, {99, ColorYellow}, {100, ColorGreen}}
	for _, tt := range tests {
		if got := ColorFor(tt.pct); got != tt.want {
			t.Errorf("ColorFor(%d) = %s, want %s", tt.pct, got, tt.want)
		}
	}
}

func TestAggregate_CodeRankingStableOrder(t *testing.T) {
	rep := Aggregate(Input{
		Records: []ingest.ServiceRecord{
			rec("1", "300003", "T", ""),
			rec("1", "100001", "T", ""),
			rec("2", "200002", "T", ""),
			rec("2", "100001", "T", ""),
			rec("3", "200002", "T", ""),
		},
		Goals: []Goal{{ServiceType: "T", Active: true}},
		Scale: 1,
		Now:   refNow,
	})
	got := []string{}
	for _, r := range rep.CodeRanking {
		got = append(got, r.ServiceCode)
	}
	want := []string{"100001", "200002", "300003"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("code ranking = %v, want %v", got, want)
		}
	}

	// Equal counts keep first-seen order.
	rep = Aggregate(Input{
		Records: []ingest.ServiceRecord{rec("1", "900009", "T", ""), rec("1", "100001", "T", "")},
		Goals:   []Goal{{ServiceType: "T", Active: true}},
		Scale:   1,
	})
	if rep.CodeRanking[0].ServiceCode != "900009" {
		t.Errorf("expected tie to keep insertion order, got %s", rep.CodeRanking[0].ServiceCode)
	}
}

func TestAggregate_TopPatient(t *testing.T) {
	roster := identity.RosterFromPatients([]identity.Patient{
		{ID: "2", Sex: "F", BirthDate: "1990-01-01", FullName: "ANA"},
	})
	rep := Aggregate(Input{
		Records: []ingest.ServiceRecord{
			rec("1", "100001", "T", "2024-01-05"),
			rec("2", "100001", "T", "2024-01-03"),
			rec("2", "100001", "T", "2024-01-01"),
			rec("2", "100001", "T", "2024-01-03"),
			rec("3", "200002", "T", "2024-02-01"),
			rec("4", "200002", "T", "2024-02-02"),
		},
		Roster: roster,
		Goals:  []Goal{{ServiceType: "T", Active: true}},
		Scale:  1,
		Now:    refNow,
	})
	top := rep.CodeRanking[0]
	if top.TopPatientID != "2" || top.TopPatientCount != 3 {
		t.Errorf("unexpected top patient: %+v", top)
	}
	if top.TopPatientDates != "2024-01-01, 2024-01-03" {
		t.Errorf("unexpected dates: %q", top.TopPatientDates)
	}
	if top.TopPatient.FullName != "ANA" || top.TopPatient.Bracket != identity.BracketAdulthood {
		t.Errorf("unexpected demographics: %+v", top.TopPatient)
	}
	// Tie between patients 3 and 4 goes to the first encountered.
	if rep.CodeRanking[1].TopPatientID != "3" {
		t.Errorf("expected first-encountered tie-break, got %s", rep.CodeRanking[1].TopPatientID)
	}
}

func TestAggregate_TopPatientDatesSkipEmpty(t *testing.T) {
	rep := Aggregate(Input{
		Records: []ingest.ServiceRecord{
			rec("1", "100001", "T", ""),
			rec("1", "100001", "T", "2024-01-02"),
			rec("1", "100001", "T", ""),
		},
		Roster: identity.NewRoster(),
		Goals:  []Goal{{ServiceType: "T", Active: true}},
		Scale:  1,
		Now:    refNow,
	})
	top := rep.CodeRanking[0]
	if top.TopPatientCount != 3 {
		t.Errorf("expected empty-date records to count, got %d", top.TopPatientCount)
	}
	if top.TopPatientDates != "2024-01-02" {
		t.Errorf("expected empty dates left out of the date set, got %q", top.TopPatientDates)
	}
}

func TestAggregate_PatientRanking(t *testing.T) {
	rep := Aggregate(Input{
		Records: []ingest.ServiceRecord{
			rec("1", "100001", "T", "2024-01-02"),
			rec("2", "100001", "T", "2024-01-01"),
			rec("2", "200002", "T", ""),
			rec("2", "100001", "T", "2024-01-01"),
		},
		Goals: []Goal{{ServiceType: "T", Active: true}},
		Scale: 1,
		Now:   refNow,
	})
	if len(rep.PatientRanking) != 2 || rep.PatientRanking[0].PatientID != "2" {
		t.Fatalf("unexpected patient ranking: %+v", rep.PatientRanking)
	}
	p := rep.PatientRanking[0]
	wantCodes := []string{"100001", "200002", "100001"}
	wantDates := []string{"2024-01-01", "", "2024-01-01"}
	for i := range wantCodes {
		if p.Codes[i] != wantCodes[i] || p.Dates[i] != wantDates[i] {
			t.Fatalf("unexpected lists: codes=%v dates=%v", p.Codes, p.Dates)
		}
	}
}

func TestAggregate_DuplicatesAndStats(t *testing.T) {
	roster := identity.RosterFromPatients([]identity.Patient{{ID: "1"}, {ID: "2"}, {ID: "99"}})
	rep := Aggregate(Input{
		Records: []ingest.ServiceRecord{
			rec("1", "100001", "T", "2024-01-01"),
			rec("1", "100001", "T", "2024-01-01"),
			rec("1", "100001", "T", "2024-01-02"),
			rec("2", "100001", "T", "01/01/2024"),
			rec("2", "100001", "T", "2024-01-01"),
			rec("1", "100001", "T", "2024-01-01"),
		},
		Roster: roster,
		Goals:  []Goal{{ServiceType: "T", Active: true}},
		Scale:  1,
		Now:    refNow,
	})
	if len(rep.Duplicates) != 1 {
		t.Fatalf("expected 1 duplicate group (dates compared verbatim), got %+v", rep.Duplicates)
	}
	g := rep.Duplicates[0]
	if g.Count != 3 || g.Key.PatientID != "1" || g.Key.ServiceDate != "2024-01-01" {
		t.Errorf("unexpected group: %+v", g)
	}
	if rep.Stats.TotalPatients != 3 {
		t.Errorf("expected roster size as total patients, got %d", rep.Stats.TotalPatients)
	}
	if rep.Stats.TopCode != "100001" || rep.Stats.TopPatient != "1" || rep.Stats.DuplicateRecords != 2 {
		t.Errorf("unexpected stats: %+v", rep.Stats)
	}
}

func TestAggregate_Empty(t *testing.T) {
	rep := Aggregate(Input{Scale: 1})
	if rep.Stats.TotalRecords != 0 || rep.Stats.TopCode != "" || len(rep.CodeRanking) != 0 {
		t.Errorf("unexpected report for empty input: %+v", rep.Stats)
	}
}

func TestValidScale(t *testing.T) {
	for _, s := range []int{1, 2, 3, 6, 12} {
		if !ValidScale(s) {
			t.Errorf("expected %d to be valid", s)
		}
	}
	for _, s := range []int{0, 4, 24, -1} {
		if ValidScale(s) {
			t.Errorf("expected %d to be invalid", s)
		}
	}
}

func TestValidateGoals(t *testing.T) {
	if err := ValidateGoals([]Goal{{ServiceType: "A", MonthlyGoal: 1}}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	bad := [][]Goal{
		{{ServiceType: "", MonthlyGoal: 1}},
		{{ServiceType: "A", MonthlyGoal: -1}},
		{{ServiceType: "A"}, {ServiceType: "A"}},
	}
	for i, goals := range bad {
		if err := ValidateGoals(goals); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}
