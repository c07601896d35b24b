package model

import "time"

// MaintenanceLog records one maintenance action on a machine.
type MaintenanceLog struct {
	ID          int64     `gorm:"primaryKey"`
	MachineID   int64     `gorm:"index;not null"`
	PerformedBy int64     `gorm:"index;not null"` // users.id
	Date        time.Time `gorm:"not null"`
	Notes       string    `gorm:"type:text"`
	Planned     bool      `gorm:"not null"`

	// Associations
	Machine   *Machine `gorm:"constraint:OnDelete:CASCADE"`
	Performer *User    `gorm:"foreignKey:PerformedBy;constraint:OnDelete:CASCADE"`
}
