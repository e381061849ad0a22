package catalog

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// CSVRowReader adapts a delimited text export of the catalog spreadsheet to
// RowReader. The first record is the header; every following record becomes a
// header-keyed mapping.
type CSVRowReader struct {
	reader *csv.Reader
	header []string
	err    error
}

// NewCSVRowReader reads a catalog sheet saved as CSV. The delimiter (comma or
// semicolon) is sniffed from the header line and a UTF-8 BOM is skipped.
func NewCSVRowReader(r io.Reader) *CSVRowReader {
	br := bufio.NewReaderSize(r, 64*1024)

	if bom, err := br.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		br.Discard(3)
	}

	delim := ','
	if peek, _ := br.Peek(br.Size()); len(peek) > 0 {
		first := string(peek)
		if i := strings.IndexByte(first, '\n'); i >= 0 {
			first = first[:i]
		}
		if strings.Count(first, ";") > strings.Count(first, ",") {
			delim = ';'
		}
	}

	reader := csv.NewReader(br)
	reader.Comma = delim
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	return &CSVRowReader{reader: reader}
}

// Read returns the next row mapping or io.EOF.
func (c *CSVRowReader) Read() (map[string]string, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.header == nil {
		header, err := c.reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.err = io.EOF
				return nil, io.EOF
			}
			c.err = fmt.Errorf("read catalog header: %w", err)
			return nil, c.err
		}
		for i := range header {
			header[i] = strings.TrimSpace(header[i])
		}
		c.header = header
	}

	record, err := c.reader.Read()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			err = fmt.Errorf("read catalog record: %w", err)
		}
		c.err = err
		return nil, err
	}

	row := make(map[string]string, len(c.header))
	for i, name := range c.header {
		if i < len(record) {
			row[name] = record[i]
		} else {
			row[name] = ""
		}
	}
	return row, nil
}
