package model

import "time"

// MetricNames lists the MachineMetric fields that can be charted.
var MetricNames = []string{"oee", "availability", "performance", "output_quality", "status"}

// IsMetricName reports whether name is one of MetricNames.
func IsMetricName(name string) bool {
	for _, n := range MetricNames {
		if n == name {
			return true
		}
	}
	return false
}

// MachineMetric is one performance sample of a machine (append-only time series).
type MachineMetric struct {
	ID            int64     `gorm:"primaryKey"`
	MachineID     int64     `gorm:"not null;index:idx_machine_metrics_machine_ts,priority:1"`
	Timestamp     time.Time `gorm:"not null;index:idx_machine_metrics_machine_ts,priority:2,sort:desc"`
	OEE           float64   `gorm:"column:oee;not null"`
	Availability  float64   `gorm:"not null"`
	Performance   float64   `gorm:"not null"`
	OutputQuality float64   `gorm:"not null"`
	Status        string    `gorm:"size:50;not null"`

	// Associations
	Machine *Machine `gorm:"constraint:OnDelete:CASCADE"`
}

// Value returns the named metric field.
func (m MachineMetric) Value(name string) (any, bool) {
	switch name {
	case "oee":
		return m.OEE, true
	case "availability":
		return m.Availability, true
	case "performance":
		return m.Performance, true
	case "output_quality":
		return m.OutputQuality, true
	case "status":
		return m.Status, true
	}
	return nil, false
}
