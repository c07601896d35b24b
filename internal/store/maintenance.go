package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mes-backend/internal/model"
)

// ListMaintenance returns a machine's maintenance logs ordered by date, ties
// broken by id.
func (s *gormStore) ListMaintenance(ctx context.Context, machineID int64) ([]MaintenanceEntry, error) {
	var logs []model.MaintenanceLog
	err := s.db.WithContext(ctx).
		Preload("Performer").
		Where("machine_id = ?", machineID).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "date"}},
			{Column: clause.Column{Name: "id"}},
		}}).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list maintenance for machine %d: %w", machineID, err)
	}

	entries := make([]MaintenanceEntry, len(logs))
	for i, l := range logs {
		performer := ""
		if l.Performer != nil {
			performer = l.Performer.DisplayName()
		}
		entries[i] = MaintenanceEntry{
			ID:          l.ID,
			MachineID:   l.MachineID,
			PerformedBy: performer,
			Date:        l.Date,
			Notes:       l.Notes,
			Planned:     l.Planned,
		}
	}
	return entries, nil
}

// CreateMaintenance stores entry after checking that its machine and
// performer exist.
func (s *gormStore) CreateMaintenance(ctx context.Context, entry *model.MaintenanceLog) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := exists(tx, &model.Machine{}, entry.MachineID)
		if err != nil {
			return fmt.Errorf("failed to look up machine %d: %w", entry.MachineID, err)
		}
		if !ok {
			return &NotFoundError{Entity: "Machine", Key: entry.MachineID}
		}
		if ok, err = exists(tx, &model.User{}, entry.PerformedBy); err != nil {
			return fmt.Errorf("failed to look up user %d: %w", entry.PerformedBy, err)
		}
		if !ok {
			return &NotFoundError{Entity: "User", Key: entry.PerformedBy}
		}

		if err := tx.Omit(clause.Associations).Create(entry).Error; err != nil {
			return fmt.Errorf("failed to create maintenance log: %w", err)
		}
		return nil
	})
}
