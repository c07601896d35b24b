package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"mes-backend/internal/model"
)

// ListTools returns one page of tools ordered by id with their metric rows.
func (s *gormStore) ListTools(ctx context.Context, page Page) ([]model.Tool, int64, error) {
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&model.Tool{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count tools: %w", err)
	}
	if page.pastEnd(total) {
		return []model.Tool{}, total, nil
	}

	var tools []model.Tool
	err := db.Preload("Metrics", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("id")
	}).Order("id").Offset(page.offset()).Limit(page.Size).Find(&tools).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tools: %w", err)
	}
	return tools, total, nil
}
