package model

import "time"

// StatusInStorage is the only tool status for which a storage location is kept.
const StatusInStorage = "in storage"

// NoStorageLocation is stored for tools that are not in storage.
const NoStorageLocation = "N/A"

// Tool is a physical tool that can be mounted on a machine.
type Tool struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"size:100;not null"`
	Type      string    `gorm:"size:50;not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Metrics []ToolMetric `gorm:"foreignKey:ToolID"`
}

// ToolMetric records condition and location of a tool.
type ToolMetric struct {
	ID              int64  `gorm:"primaryKey"`
	ToolID          int64  `gorm:"index;not null"`
	Status          string `gorm:"size:50;not null"`
	StorageLocation string `gorm:"size:100;not null"`
	WearLevel       int    `gorm:"not null"` // 0-100

	// Associations
	Tool *Tool `gorm:"constraint:OnDelete:CASCADE"`
}

// NormalizeStorage applies the storage-location rule: anything not in storage
// has no meaningful location.
func (m *ToolMetric) NormalizeStorage() {
	if m.Status != StatusInStorage || m.StorageLocation == "" {
		m.StorageLocation = NoStorageLocation
	}
}
