package store

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate record")
)

// NotFoundError names the entity that could not be found.
type NotFoundError struct {
	Entity string
	Key    any
}

func (e *NotFoundError) Error() string {
	return e.Entity + " not found"
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Page selects one page of a listing. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

// offset saturates at math.MaxInt for page numbers whose offset does not fit
// in an int.
func (p Page) offset() int {
	if p.Number < 1 || p.Size < 1 {
		return 0
	}
	if p.Number-1 > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return (p.Number - 1) * p.Size
}

// pastEnd reports whether the page starts after the last of total rows.
func (p Page) pastEnd(total int64) bool {
	return int64(p.offset()) >= total
}

// Pages returns how many pages of size hold total rows.
func Pages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

// MachineSummary is a machine with the status of its newest metric sample.
type MachineSummary struct {
	ID           int64
	Name         string
	Category     string
	Group        string
	Manufacturer string
	CreatedAt    time.Time
	LatestStatus *string
}

// MetricPoint is one sample of a metric slice.
type MetricPoint struct {
	Timestamp time.Time
	Value     any
}

// MachineTool describes the tool currently assigned to a machine.
type MachineTool struct {
	MachineID int64
	ToolID    *int64
	ToolName  *string
	WearLevel *int
}

// MaintenanceEntry is a maintenance log joined with its performer.
type MaintenanceEntry struct {
	ID          int64
	MachineID   int64
	PerformedBy string
	Date        time.Time
	Notes       string
	Planned     bool
}
