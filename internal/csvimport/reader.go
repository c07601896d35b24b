package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mes-backend/internal/parse"
)

// RowError points at the cell that could not be read.
type RowError struct {
	File   string
	Line   int
	Column string
	Err    error
}

func (e *RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
	}
	return fmt.Sprintf("%s:%d: column %q: %v", e.File, e.Line, e.Column, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

var (
	errMissingColumn = errors.New("missing column")
	errEmptyValue    = errors.New("empty value")
)

// table is a fully read CSV file addressed by header name.
type table struct {
	file   string
	header map[string]int
	rows   [][]string
	lines  []int
}

// readTable loads path. The first record is the header; header names are
// matched case-insensitively.
func readTable(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeTable(f, filepath.Base(path))
}

func decodeTable(r io.Reader, file string) (*table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if err == io.EOF {
		return nil, &RowError{File: file, Line: 1, Err: errors.New("missing header row")}
	}
	if err != nil {
		return nil, wrapCSVError(file, err)
	}

	t := &table{file: file, header: make(map[string]int, len(head))}
	for i, name := range head {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := t.header[name]; dup {
			return nil, &RowError{File: file, Line: 1, Column: name, Err: errors.New("duplicate column")}
		}
		t.header[name] = i
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapCSVError(file, err)
		}
		if isBlank(rec) {
			continue
		}
		line, _ := cr.FieldPos(0)
		t.rows = append(t.rows, rec)
		t.lines = append(t.lines, line)
	}
	return t, nil
}

func wrapCSVError(file string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &RowError{File: file, Line: pe.Line, Err: pe.Err}
	}
	return fmt.Errorf("%s: %w", file, err)
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func (t *table) has(col string) bool {
	_, ok := t.header[col]
	return ok
}

// require fails with a header-level error when any of cols is absent.
func (t *table) require(cols ...string) error {
	for _, c := range cols {
		if !t.has(c) {
			return &RowError{File: t.file, Line: 1, Column: c, Err: errMissingColumn}
		}
	}
	return nil
}

// row reads typed values from one record. The first failure sticks and later
// reads return zero values, so a row can be decoded top to bottom and checked
// once with Err.
type row struct {
	t    *table
	n    int
	line int
	err  error
}

func (t *table) row(i int) *row {
	return &row{t: t, n: i + 1, line: t.lines[i]}
}

func (r *row) Err() error { return r.err }

func (r *row) fail(col string, err error) {
	if r.err == nil {
		r.err = &RowError{File: r.t.file, Line: r.line, Column: col, Err: err}
	}
}

func (r *row) lookup(col string) (string, bool) {
	i, ok := r.t.header[col]
	if !ok || i >= len(r.t.rows[r.n-1]) {
		return "", false
	}
	return strings.TrimSpace(r.t.rows[r.n-1][i]), true
}

// optional returns the trimmed value of col, or "" when the column is absent.
func (r *row) optional(col string) string {
	v, _ := r.lookup(col)
	return v
}

func (r *row) str(col string) string {
	if r.err != nil {
		return ""
	}
	v, ok := r.lookup(col)
	switch {
	case !ok:
		r.fail(col, errMissingColumn)
	case v == "":
		r.fail(col, errEmptyValue)
	}
	return v
}

// first reads the first of cols present in the header.
func (r *row) first(cols ...string) (string, string) {
	for _, c := range cols {
		if r.t.has(c) {
			return c, r.str(c)
		}
	}
	r.fail(cols[0], errMissingColumn)
	return cols[0], ""
}

func (r *row) integer(col string) int {
	v := r.str(col)
	if r.err != nil {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(col, fmt.Errorf("invalid integer %q", v))
	}
	return n
}

func (r *row) number(col string) float64 {
	v := r.str(col)
	if r.err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(col, fmt.Errorf("invalid number %q", v))
	}
	return f
}

func (r *row) flag(col string) bool {
	v := r.str(col)
	if r.err != nil {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(col, fmt.Errorf("invalid boolean %q", v))
	}
	return b
}

// timestamp reads the first of cols present in the header as a timestamp.
func (r *row) timestamp(cols ...string) time.Time {
	col, v := r.first(cols...)
	if r.err != nil {
		return time.Time{}
	}
	ts, err := parse.Time(v)
	if err != nil {
		r.fail(col, err)
	}
	return ts
}

// key is the CSV-local identity of the row: the id column when the file has
// one, else the 1-based row number.
func (r *row) key() string {
	if r.t.has("id") {
		return r.str("id")
	}
	return strconv.Itoa(r.n)
}

