// Package catalog builds the service-code lookup used to recognize service
// lines. Rows come from an external spreadsheet reader as column-name keyed
// mappings.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Column names read from every catalog row.
const (
	ColumnCode = "CUPS VIGENTE"
	ColumnType = "Tipo Ser"
	ColumnName = "NOMBRE CUPS"
)

// Entry describes one service code.
type Entry struct {
	Code        string `json:"service_code"`
	ServiceType string `json:"service_type"`
	DisplayName string `json:"display_name"`
}

// RowReader yields catalog rows one at a time and returns io.EOF once the
// sequence is exhausted.
type RowReader interface {
	Read() (map[string]string, error)
}

// Catalog is an immutable service-code lookup.
type Catalog struct {
	entries map[string]Entry
}

// Load consumes rows until io.EOF. Rows with an empty code are skipped and a
// later row for the same code replaces the earlier one. Any other read error
// aborts the load.
func Load(rows RowReader) (*Catalog, error) {
	if rows == nil {
		return nil, errors.New("catalog: nil row reader")
	}
	entries := make(map[string]Entry)
	for n := 1; ; n++ {
		row, err := rows.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read catalog row %d: %w", n, err)
		}
		code := strings.TrimSpace(row[ColumnCode])
		if code == "" {
			continue
		}
		entries[code] = Entry{
			Code:        code,
			ServiceType: strings.TrimSpace(row[ColumnType]),
			DisplayName: strings.TrimSpace(row[ColumnName]),
		}
	}
	return &Catalog{entries: entries}, nil
}

// FromEntries builds a catalog directly, last entry wins.
func FromEntries(entries ...Entry) *Catalog {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if e.Code == "" {
			continue
		}
		m[e.Code] = e
	}
	return &Catalog{entries: m}
}

// Lookup returns the entry for code.
func (c *Catalog) Lookup(code string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	e, ok := c.entries[code]
	return e, ok
}

// Len returns the number of codes.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Codes returns all codes sorted ascending.
func (c *Catalog) Codes() []string {
	if c == nil {
		return nil
	}
	codes := make([]string, 0, len(c.entries))
	for code := range c.entries {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// ServiceTypes returns the distinct service types in the catalog, sorted.
func (c *Catalog) ServiceTypes() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]bool)
	var types []string
	for _, e := range c.entries {
		if e.ServiceType == "" || seen[e.ServiceType] {
			continue
		}
		seen[e.ServiceType] = true
		types = append(types, e.ServiceType)
	}
	sort.Strings(types)
	return types
}

// SliceRowReader serves already materialized rows.
type SliceRowReader struct {
	rows []map[string]string
	pos  int
}

// NewSliceRowReader wraps rows.
func NewSliceRowReader(rows []map[string]string) *SliceRowReader {
	return &SliceRowReader{rows: rows}
}

// Read returns the next row or io.EOF.
func (r *SliceRowReader) Read() (map[string]string, error) {
	if r.pos >= len(r.rows) {
		return nil, io.EOF
	}
	row := r.rows[r.pos]
	r.pos++
	return row, nil
}
