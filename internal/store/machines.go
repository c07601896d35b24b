package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mes-backend/internal/model"
)

// ListMachines returns one page of machines ordered by id, each with the
// status of its newest metric sample.
func (s *gormStore) ListMachines(ctx context.Context, page Page) ([]MachineSummary, int64, error) {
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&model.Machine{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count machines: %w", err)
	}
	if page.pastEnd(total) {
		return []MachineSummary{}, total, nil
	}

	var machines []model.Machine
	if err := db.Order("id").Offset(page.offset()).Limit(page.Size).Find(&machines).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list machines: %w", err)
	}

	ids := make([]int64, len(machines))
	for i, m := range machines {
		ids[i] = m.ID
	}
	statuses, err := latestStatuses(db, ids)
	if err != nil {
		return nil, 0, err
	}

	summaries := make([]MachineSummary, 0, len(machines))
	for _, m := range machines {
		summary := MachineSummary{
			ID:           m.ID,
			Name:         m.Name,
			Category:     m.Category,
			Group:        m.Group,
			Manufacturer: m.Manufacturer,
			CreatedAt:    m.CreatedAt,
		}
		if st, ok := statuses[m.ID]; ok {
			summary.LatestStatus = &st
		}
		summaries = append(summaries, summary)
	}
	return summaries, total, nil
}

// latestStatuses picks, per machine, the status of the sample with the
// greatest (timestamp, id).
func latestStatuses(db *gorm.DB, machineIDs []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(machineIDs))
	if len(machineIDs) == 0 {
		return out, nil
	}

	type row struct {
		MachineID int64
		Status    string
	}
	var rows []row
	err := db.Raw(`SELECT m.machine_id, m.status FROM machine_metrics m
		WHERE m.machine_id IN ? AND NOT EXISTS (
			SELECT 1 FROM machine_metrics n
			WHERE n.machine_id = m.machine_id
			AND (n.timestamp > m.timestamp OR (n.timestamp = m.timestamp AND n.id > m.id)))`,
		machineIDs).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load latest machine statuses: %w", err)
	}
	for _, r := range rows {
		out[r.MachineID] = r.Status
	}
	return out, nil
}

func (s *gormStore) GetMachine(ctx context.Context, id int64) (*model.Machine, error) {
	var m model.Machine
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, notFound(err, "Machine", id)
	}
	return &m, nil
}

func (s *gormStore) CreateMachine(ctx context.Context, m *model.Machine) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create machine: %w", err)
	}
	return nil
}

// DeleteMachine removes a machine together with its assignment, metrics,
// maintenance logs and subscription links.
func (s *gormStore) DeleteMachine(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := exists(tx, &model.Machine{}, id)
		if err != nil {
			return fmt.Errorf("failed to look up machine %d: %w", id, err)
		}
		if !ok {
			return &NotFoundError{Entity: "Machine", Key: id}
		}

		for _, dependent := range []any{&model.ToolAssignment{}, &model.MachineMetric{}, &model.MaintenanceLog{}} {
			if err := tx.Where("machine_id = ?", id).Delete(dependent).Error; err != nil {
				return fmt.Errorf("failed to delete dependents of machine %d: %w", id, err)
			}
		}
		if tx.Migrator().HasTable("subscription_machines") {
			if err := tx.Exec("DELETE FROM subscription_machines WHERE machine_id = ?", id).Error; err != nil {
				return fmt.Errorf("failed to unlink subscriptions of machine %d: %w", id, err)
			}
		}
		if err := tx.Delete(&model.Machine{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete machine %d: %w", id, err)
		}
		return nil
	})
}

// AssignTool points the machine at toolID, replacing any previous assignment.
func (s *gormStore) AssignTool(ctx context.Context, machineID, toolID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := exists(tx, &model.Machine{}, machineID)
		if err != nil {
			return fmt.Errorf("failed to look up machine %d: %w", machineID, err)
		}
		if !ok {
			return &NotFoundError{Entity: "Machine", Key: machineID}
		}
		if ok, err = exists(tx, &model.Tool{}, toolID); err != nil {
			return fmt.Errorf("failed to look up tool %d: %w", toolID, err)
		}
		if !ok {
			return &NotFoundError{Entity: "Tool", Key: toolID}
		}

		assignment := model.ToolAssignment{MachineID: machineID, ToolID: toolID}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "machine_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"tool_id"}),
		}).Create(&assignment).Error; err != nil {
			return fmt.Errorf("failed to assign tool %d to machine %d: %w", toolID, machineID, err)
		}
		return nil
	})
}

// GetMachineTool returns the current assignment with the tool's latest wear
// level. Unassigned machines yield a MachineTool with nil fields.
func (s *gormStore) GetMachineTool(ctx context.Context, machineID int64) (*MachineTool, error) {
	db := s.db.WithContext(ctx)
	out := &MachineTool{MachineID: machineID}

	var assignments []model.ToolAssignment
	if err := db.Preload("Tool").Where("machine_id = ?", machineID).Limit(1).Find(&assignments).Error; err != nil {
		return nil, fmt.Errorf("failed to load tool assignment for machine %d: %w", machineID, err)
	}
	if len(assignments) == 0 {
		return out, nil
	}

	a := assignments[0]
	out.ToolID = &a.ToolID
	if a.Tool != nil {
		out.ToolName = &a.Tool.Name
	}

	var metrics []model.ToolMetric
	if err := db.Where("tool_id = ?", a.ToolID).Order("id DESC").Limit(1).Find(&metrics).Error; err != nil {
		return nil, fmt.Errorf("failed to load wear level for tool %d: %w", a.ToolID, err)
	}
	if len(metrics) > 0 {
		out.WearLevel = &metrics[0].WearLevel
	}
	return out, nil
}

// MetricSlice returns up to limit of the newest samples of one metric for a
// machine, in chronological order. limit <= 0 returns every sample.
func (s *gormStore) MetricSlice(ctx context.Context, machineID int64, metric string, limit int) ([]MetricPoint, error) {
	if !model.IsMetricName(metric) {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}

	q := s.db.WithContext(ctx).
		Where("machine_id = ?", machineID).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "timestamp"}, Desc: true},
			{Column: clause.Column{Name: "id"}, Desc: true},
		}})
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []model.MachineMetric
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load %s for machine %d: %w", metric, machineID, err)
	}

	points := make([]MetricPoint, len(rows))
	for i, r := range rows {
		v, _ := r.Value(metric)
		// Newest-first from the query; fill from the back for oldest-first.
		points[len(rows)-1-i] = MetricPoint{Timestamp: r.Timestamp, Value: v}
	}
	return points, nil
}
