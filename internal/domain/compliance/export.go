package compliance

import (
	"strconv"
	"strings"
)

// Table is a flat export of one report view. Rows are keyed by the names in
// Columns, which also fix the column order.
type Table struct {
	Name    string              `json:"name"`
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
}

// Export view names.
const (
	ViewChart      = "chart"
	ViewCodes      = "codes"
	ViewPatients   = "patients"
	ViewDuplicates = "duplicates"
)

// Views lists every exportable view.
var Views = []string{ViewChart, ViewCodes, ViewPatients, ViewDuplicates}

// ListSeparator joins list fields in exported cells.
const ListSeparator = "\n"

var (
	ChartColumns = []string{"Tipo Servicio", "Ejecutado", "Meta", "Porcentaje", "Porcentaje Tope", "Estado"}

	CodeColumns = []string{
		"CUPS", "Nombre", "Tipo Servicio", "Total",
		"Paciente Top", "Atenciones Paciente Top", "Nombre Paciente", "Sexo", "Edad", "Curso de Vida", "Fechas",
	}

	PatientColumns = []string{
		"Paciente", "Total", "Nombre", "Sexo", "Fecha Nacimiento", "Edad", "Curso de Vida", "CUPS", "Fechas",
	}

	DuplicateColumns = []string{"Paciente", "CUPS", "Fecha", "Repeticiones", "Tipo Servicio", "Nombre"}
)

// ExportTable returns the flat table for view, or false for an unknown view.
func ExportTable(rep *Report, view string) (*Table, bool) {
	switch view {
	case ViewChart:
		return ChartTable(rep), true
	case ViewCodes:
		return CodeRankingTable(rep), true
	case ViewPatients:
		return PatientRankingTable(rep), true
	case ViewDuplicates:
		return DuplicateTable(rep), true
	default:
		return nil, false
	}
}

// ChartTable flattens the chart series.
func ChartTable(rep *Report) *Table {
	t := &Table{Name: ViewChart, Columns: ChartColumns}
	for _, p := range rep.Chart {
		t.Rows = append(t.Rows, map[string]string{
			"Tipo Servicio":   p.ServiceType,
			"Ejecutado":       strconv.Itoa(p.Executed),
			"Meta":            strconv.Itoa(p.Target),
			"Porcentaje":      strconv.Itoa(p.Percent),
			"Porcentaje Tope": strconv.Itoa(p.CappedPercent),
			"Estado":          string(p.Color),
		})
	}
	return t
}

// CodeRankingTable flattens the code ranking.
func CodeRankingTable(rep *Report) *Table {
	t := &Table{Name: ViewCodes, Columns: CodeColumns}
	for _, r := range rep.CodeRanking {
		t.Rows = append(t.Rows, map[string]string{
			"CUPS":                    r.ServiceCode,
			"Nombre":                  r.ServiceName,
			"Tipo Servicio":           r.ServiceType,
			"Total":                   strconv.Itoa(r.Count),
			"Paciente Top":            r.TopPatientID,
			"Atenciones Paciente Top": strconv.Itoa(r.TopPatientCount),
			"Nombre Paciente":         r.TopPatient.FullName,
			"Sexo":                    r.TopPatient.Sex,
			"Edad":                    r.TopPatient.Age,
			"Curso de Vida":           r.TopPatient.Bracket,
			"Fechas":                  r.TopPatientDates,
		})
	}
	return t
}

// PatientRankingTable flattens the patient ranking. Code and date lists are
// joined with ListSeparator.
func PatientRankingTable(rep *Report) *Table {
	t := &Table{Name: ViewPatients, Columns: PatientColumns}
	for _, r := range rep.PatientRanking {
		t.Rows = append(t.Rows, map[string]string{
			"Paciente":         r.PatientID,
			"Total":            strconv.Itoa(r.Count),
			"Nombre":           r.Demographics.FullName,
			"Sexo":             r.Demographics.Sex,
			"Fecha Nacimiento": r.Demographics.BirthDate,
			"Edad":             r.Demographics.Age,
			"Curso de Vida":    r.Demographics.Bracket,
			"CUPS":             strings.Join(r.Codes, ListSeparator),
			"Fechas":           strings.Join(r.Dates, ListSeparator),
		})
	}
	return t
}

// DuplicateTable flattens the duplicate groups.
func DuplicateTable(rep *Report) *Table {
	t := &Table{Name: ViewDuplicates, Columns: DuplicateColumns}
	for _, g := range rep.Duplicates {
		t.Rows = append(t.Rows, map[string]string{
			"Paciente":      g.Key.PatientID,
			"CUPS":          g.Key.ServiceCode,
			"Fecha":         g.Key.ServiceDate,
			"Repeticiones":  strconv.Itoa(g.Count),
			"Tipo Servicio": g.Record.ServiceType,
			"Nombre":        g.Record.ServiceName,
		})
	}
	return t
}

// SplitListField reverses the list join of PatientRankingTable. count is the
// number of entries expected, which disambiguates an empty cell holding a
// single empty entry from an empty list.
func SplitListField(cell string, count int) []string {
	if count == 0 {
		return []string{}
	}
	return strings.Split(cell, ListSeparator)
}

// Header returns the column names in order.
func (t *Table) Header() []string { return t.Columns }

// Values returns the rows as cells in column order.
func (t *Table) Values() [][]string {
	out := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		cells := make([]string, len(t.Columns))
		for j, col := range t.Columns {
			cells[j] = row[col]
		}
		out[i] = cells
	}
	return out
}
