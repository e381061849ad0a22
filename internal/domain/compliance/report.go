package compliance

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rips/rips/internal/domain/identity"
	"github.com/rips/rips/internal/domain/ingest"
	"github.com/rips/rips/pkg/orderedmap"
)

// Color is the traffic-light status of a chart point.
type Color string

const (
	ColorRed    Color = "red"
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
)

// ColorFor maps a capped percentage to its status color.
func ColorFor(cappedPercent int) Color {
	switch {
	case cappedPercent >= 100:
		return ColorGreen
	case cappedPercent >= 80:
		return ColorYellow
	default:
		return ColorRed
	}
}

// ChartPoint compares executed services of one type with its scaled goal.
type ChartPoint struct {
	ServiceType   string `json:"service_type"`
	Executed      int    `json:"executed"`
	Target        int    `json:"target"`
	Percent       int    `json:"percent"`
	CappedPercent int    `json:"capped_percent"`
	Color         Color  `json:"color"`
}

// CodeRank is one row of the per-code ranking.
type CodeRank struct {
	ServiceCode     string           `json:"service_code"`
	ServiceName     string           `json:"service_name"`
	ServiceType     string           `json:"service_type"`
	Count           int              `json:"count"`
	TopPatientID    string           `json:"top_patient_id"`
	TopPatientCount int              `json:"top_patient_count"`
	TopPatient      identity.Summary `json:"top_patient"`
	TopPatientDates string           `json:"top_patient_dates"`
}

// PatientRank is one row of the per-patient ranking. Codes and Dates hold one
// entry per record in original order.
type PatientRank struct {
	PatientID    string           `json:"patient_id"`
	Count        int              `json:"count"`
	Demographics identity.Summary `json:"demographics"`
	Codes        []string         `json:"codes"`
	Dates        []string         `json:"dates"`
}

// DuplicateGroup is a set of records sharing the exact duplicate key.
type DuplicateGroup struct {
	Key    ingest.DuplicateKey  `json:"key"`
	Count  int                  `json:"count"`
	Record ingest.ServiceRecord `json:"record"`
}

// Stats are the top-line figures of a report.
type Stats struct {
	TotalRecords     int    `json:"total_records"`
	TotalPatients    int    `json:"total_patients"`
	TopCode          string `json:"top_code"`
	TopCodeName      string `json:"top_code_name"`
	TopCodeCount     int    `json:"top_code_count"`
	TopPatient       string `json:"top_patient"`
	TopPatientName   string `json:"top_patient_name"`
	TopPatientCount  int    `json:"top_patient_count"`
	DuplicateGroups  int    `json:"duplicate_groups"`
	DuplicateRecords int    `json:"duplicate_records"`
}

// Report holds every derived view of one aggregation pass.
type Report struct {
	GeneratedAt    time.Time        `json:"generated_at"`
	Scale          int              `json:"scale"`
	TypeCounts     map[string]int   `json:"type_counts"`
	Chart          []ChartPoint     `json:"chart"`
	CodeRanking    []CodeRank       `json:"code_ranking"`
	PatientRanking []PatientRank    `json:"patient_ranking"`
	Duplicates     []DuplicateGroup `json:"duplicates"`
	Stats          Stats            `json:"stats"`
}

// Input is everything a report is derived from.
type Input struct {
	Records []ingest.ServiceRecord
	Roster  *identity.Roster
	Goals   []Goal
	Scale   int
	Now     time.Time
}

type codeAgg struct {
	code     string
	name     string
	svcType  string
	count    int
	patients *orderedmap.Map[string, *patientInCode]
}

type patientInCode struct {
	count int
	dates map[string]bool
}

type patientAgg struct {
	id    string
	count int
	codes []string
	dates []string
}

// Aggregate recomputes all views from scratch. It does not modify its input
// and is safe to call concurrently.
func Aggregate(in Input) *Report {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	active := activeTypes(in.Goals)

	typeCounts := make(map[string]int)
	codes := orderedmap.New[string, *codeAgg]()
	patients := orderedmap.New[string, *patientAgg]()
	dups := orderedmap.New[ingest.DuplicateKey, *DuplicateGroup]()
	total := 0

	for _, r := range in.Records {
		if !active[r.ServiceType] {
			continue
		}
		total++
		typeCounts[r.ServiceType]++

		ca := codes.GetOrInsert(r.ServiceCode, func() *codeAgg {
			return &codeAgg{
				code:     r.ServiceCode,
				name:     r.ServiceName,
				svcType:  r.ServiceType,
				patients: orderedmap.New[string, *patientInCode](),
			}
		})
		ca.count++
		pc := ca.patients.GetOrInsert(r.PatientID, func() *patientInCode {
			return &patientInCode{dates: make(map[string]bool)}
		})
		pc.count++
		if r.ServiceDate != "" {
			pc.dates[r.ServiceDate] = true
		}

		pa := patients.GetOrInsert(r.PatientID, func() *patientAgg {
			return &patientAgg{id: r.PatientID}
		})
		pa.count++
		pa.codes = append(pa.codes, r.ServiceCode)
		pa.dates = append(pa.dates, r.ServiceDate)

		dg := dups.GetOrInsert(r.Key(), func() *DuplicateGroup {
			return &DuplicateGroup{Key: r.Key(), Record: r}
		})
		dg.Count++
	}

	rep := &Report{
		GeneratedAt:    now,
		Scale:          in.Scale,
		TypeCounts:     typeCounts,
		Chart:          chartSeries(in.Goals, typeCounts, in.Scale),
		CodeRanking:    codeRanking(codes, in.Roster, now),
		PatientRanking: patientRanking(patients, in.Roster, now),
		Duplicates:     duplicateGroups(dups),
	}
	rep.Stats = topLine(rep, total, in.Roster)
	return rep
}

func chartSeries(goals []Goal, typeCounts map[string]int, scale int) []ChartPoint {
	points := make([]ChartPoint, 0, len(goals))
	for _, g := range goals {
		if !g.Active {
			continue
		}
		p := ChartPoint{
			ServiceType: g.ServiceType,
			Executed:    typeCounts[g.ServiceType],
			Target:      g.MonthlyGoal * scale,
		}
		if p.Target > 0 {
			p.Percent = int(math.Floor(float64(p.Executed)/float64(p.Target)*100 + 0.5))
		}
		p.CappedPercent = min(p.Percent, 100)
		p.Color = ColorFor(p.CappedPercent)
		points = append(points, p)
	}
	return points
}

func codeRanking(codes *orderedmap.Map[string, *codeAgg], roster *identity.Roster, now time.Time) []CodeRank {
	rows := make([]CodeRank, 0, codes.Len())
	codes.Each(func(_ string, ca *codeAgg) bool {
		row := CodeRank{
			ServiceCode: ca.code,
			ServiceName: ca.name,
			ServiceType: ca.svcType,
			Count:       ca.count,
		}
		var top *patientInCode
		ca.patients.Each(func(pid string, pc *patientInCode) bool {
			if top == nil || pc.count > top.count {
				top = pc
				row.TopPatientID = pid
			}
			return true
		})
		if top != nil {
			row.TopPatientCount = top.count
			row.TopPatient = roster.Demographics(row.TopPatientID, now)
			row.TopPatientDates = joinSorted(top.dates)
		}
		rows = append(rows, row)
		return true
	})
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Count > rows[j].Count })
	return rows
}

func patientRanking(patients *orderedmap.Map[string, *patientAgg], roster *identity.Roster, now time.Time) []PatientRank {
	rows := make([]PatientRank, 0, patients.Len())
	patients.Each(func(_ string, pa *patientAgg) bool {
		rows = append(rows, PatientRank{
			PatientID:    pa.id,
			Count:        pa.count,
			Demographics: roster.Demographics(pa.id, now),
			Codes:        pa.codes,
			Dates:        pa.dates,
		})
		return true
	})
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Count > rows[j].Count })
	return rows
}

func duplicateGroups(dups *orderedmap.Map[ingest.DuplicateKey, *DuplicateGroup]) []DuplicateGroup {
	var groups []DuplicateGroup
	dups.Each(func(_ ingest.DuplicateKey, g *DuplicateGroup) bool {
		if g.Count > 1 {
			groups = append(groups, *g)
		}
		return true
	})
	return groups
}

func topLine(rep *Report, total int, roster *identity.Roster) Stats {
	s := Stats{
		TotalRecords:    total,
		TotalPatients:   roster.Len(),
		DuplicateGroups: len(rep.Duplicates),
	}
	for _, g := range rep.Duplicates {
		s.DuplicateRecords += g.Count - 1
	}
	if len(rep.CodeRanking) > 0 {
		top := rep.CodeRanking[0]
		s.TopCode, s.TopCodeName, s.TopCodeCount = top.ServiceCode, top.ServiceName, top.Count
	}
	if len(rep.PatientRanking) > 0 {
		top := rep.PatientRanking[0]
		s.TopPatient, s.TopPatientName, s.TopPatientCount = top.PatientID, top.Demographics.FullName, top.Count
	}
	return s
}

func joinSorted(set map[string]bool) string {
	vals := make([]string, 0, len(set))
	for v := range set {
		vals = append(vals, v)
	}
	sort.Strings(vals)
	return strings.Join(vals, ", ")
}
