// Package export writes flat tables as CSV, JSON or Parquet.
package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Format is an export encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// ErrUnknownFormat is returned for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown export format")

// Table is anything with a header and row-major string cells.
type Table interface {
	Header() []string
	Values() [][]string
}

// ParseFormat resolves a format name. An empty name means CSV.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatJSON, FormatParquet:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Extension returns the file extension for f, including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// Write encodes t to w in format f.
func Write(w io.Writer, t Table, f Format) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, t)
	case FormatJSON:
		return WriteJSON(w, t)
	case FormatParquet:
		return WriteParquet(w, t)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// WriteCSV writes a header line followed by one line per row. Multi-line
// cells are quoted.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Values()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// WriteJSON writes the rows as an array of objects keyed by column name.
// Keys appear in column order.
func WriteJSON(w io.Writer, t Table) error {
	bw := bufio.NewWriter(w)
	header := t.Header()
	keys := make([][]byte, len(header))
	for i, col := range header {
		k, err := json.Marshal(col)
		if err != nil {
			return err
		}
		keys[i] = k
	}

	bw.WriteByte('[')
	for i, row := range t.Values() {
		if i > 0 {
			bw.WriteByte(',')
		}
		bw.WriteByte('{')
		for j, cell := range row {
			if j > 0 {
				bw.WriteByte(',')
			}
			v, err := json.Marshal(cell)
			if err != nil {
				return err
			}
			bw.Write(keys[j])
			bw.WriteByte(':')
			bw.Write(v)
		}
		bw.WriteByte('}')
	}
	bw.WriteString("]\n")
	return bw.Flush()
}

// WriteParquet writes t as a Parquet file with one required string column per
// header entry.
func WriteParquet(w io.Writer, t Table) error {
	header := t.Header()
	group := make(parquet.Group, len(header))
	for _, col := range header {
		group[col] = parquet.String()
	}
	schema := parquet.NewSchema("rips_export", group)

	// Group fields are laid out in name order; map each header entry to its
	// leaf column index.
	sorted := append([]string(nil), header...)
	sort.Strings(sorted)
	leaf := make(map[string]int, len(sorted))
	for i, col := range sorted {
		leaf[col] = i
	}

	pw := parquet.NewWriter(w, schema, parquet.Compression(&parquet.Snappy))
	values := t.Values()
	rows := make([]parquet.Row, 0, len(values))
	for _, cells := range values {
		row := make(parquet.Row, len(sorted))
		for j, cell := range cells {
			idx := leaf[header[j]]
			row[idx] = parquet.ByteArrayValue([]byte(cell)).Level(0, 0, idx)
		}
		rows = append(rows, row)
	}
	if _, err := pw.WriteRows(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}
