package model

import "time"

// Machine is a piece of production equipment on the factory floor.
type Machine struct {
	ID           int64     `gorm:"primaryKey"`
	Name         string    `gorm:"size:100;not null"`
	Category     string    `gorm:"size:50;not null"`
	Group        string    `gorm:"column:group;size:50;not null"`
	Manufacturer string    `gorm:"size:100;not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

// ToolAssignment maps a machine to the tool currently mounted on it.
// The unique index on MachineID keeps at most one tool per machine.
type ToolAssignment struct {
	ID        int64 `gorm:"primaryKey"`
	MachineID int64 `gorm:"uniqueIndex;not null"`
	ToolID    int64 `gorm:"index;not null"`

	// Associations
	Machine *Machine `gorm:"constraint:OnDelete:CASCADE"`
	Tool    *Tool    `gorm:"constraint:OnDelete:CASCADE"`
}
