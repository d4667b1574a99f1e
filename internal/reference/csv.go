// Package reference loads the static city reference table that enrichment
// results are joined against.
package reference

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// KeyColumn is the required unique key column of the reference dataset.
const KeyColumn = "city"

// Record is one reference row: the join key plus passthrough static columns.
type Record struct {
	Key string
	// Attrs holds the remaining columns by header name (e.g. country,
	// population), untouched.
	Attrs map[string]string
}

// Attr returns the named passthrough column, or "" when absent.
func (r Record) Attr(name string) string {
	return r.Attrs[name]
}

// DataSourceError reports a fatal problem with the reference dataset.
type DataSourceError struct {
	Source string
	Err    error
}

func (e *DataSourceError) Error() string {
	if e == nil {
		return "data source error"
	}
	return fmt.Sprintf("reference source %q: %v", e.Source, e.Err)
}

func (e *DataSourceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// LoadFile reads the reference CSV at path. Missing file, unreadable
// content, or an absent key column all fail with a DataSourceError.
func LoadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DataSourceError{Source: path, Err: err}
	}
	defer func() {
		_ = f.Close()
	}()

	recs, err := Read(f)
	if err != nil {
		return nil, &DataSourceError{Source: path, Err: err}
	}
	return recs, nil
}

// Read parses reference records from CSV content. The header must contain
// the key column; all other columns pass through as attributes.
func Read(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	keyIdx := -1
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), KeyColumn) {
			keyIdx = i
			break
		}
	}
	if keyIdx < 0 {
		return nil, fmt.Errorf("missing required column %q", KeyColumn)
	}

	var out []Record
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if keyIdx >= len(rec) {
			return nil, fmt.Errorf("row has %d columns, want at least %d", len(rec), keyIdx+1)
		}

		attrs := make(map[string]string, len(header)-1)
		for i, col := range header {
			if i == keyIdx || i >= len(rec) {
				continue
			}
			attrs[strings.TrimSpace(col)] = rec[i]
		}
		out = append(out, Record{
			Key:   strings.TrimSpace(rec[keyIdx]),
			Attrs: attrs,
		})
	}
	return out, nil
}

// Keys returns the record keys in input order.
func Keys(recs []Record) []string {
	keys := make([]string, 0, len(recs))
	for _, r := range recs {
		keys = append(keys, r.Key)
	}
	return keys
}
