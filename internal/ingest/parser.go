package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/quakewatch/eq-records/internal/domain"
)

// ParseError reports a file-level parsing failure. It is a different error
// class from per-row validation: the remedy is fixing the file, not a row,
// and the coordinator stops before validation when it sees one.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse csv: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseCSV turns raw file bytes into an ordered sequence of RawRows. The
// first non-blank line is the header; its fields key every subsequent row.
// Blank lines are dropped and do not produce rows, so rows[i] is spreadsheet
// row i+2 when echoing errors back to a human editing the file.
//
// ParseCSV performs no field validation; that is strictly the validator's
// job.
func ParseCSV(data []byte) ([]domain.RawRow, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	// Data-entry exports often have ragged rows; the validator decides what
	// is missing, not the reader.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Err: errors.New("file is empty")}
		}
		return nil, &ParseError{Err: err}
	}
	header = cleanHeader(header)

	var rows []domain.RawRow
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Err: err}
		}
		if isBlank(fields) {
			continue
		}

		row := make(domain.RawRow, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			if i < len(fields) {
				row[name] = fields[i]
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// cleanHeader trims whitespace and the UTF-8 byte order mark Excel prepends
// to the first cell of exported files.
func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		out[i] = strings.TrimSpace(h)
	}
	return out
}

// isBlank reports whether every field in the record is empty. encoding/csv
// drops truly empty lines itself; this catches lines of commas.
func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
