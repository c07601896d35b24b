package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"mes-backend/internal/model"
)

func (s *gormStore) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *gormStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, notFound(err, "User", username)
	}
	return &u, nil
}

// CreateUser inserts u. A taken username yields ErrDuplicate.
func (s *gormStore) CreateUser(ctx context.Context, u *model.User) error {
	if u.Role == "" {
		u.Role = model.DefaultRole
	}

	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&model.User{}).Where("username = ?", u.Username).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to check username %q: %w", u.Username, err)
	}
	if n > 0 {
		return fmt.Errorf("username %q: %w", u.Username, ErrDuplicate)
	}

	if err := db.Create(u).Error; err != nil {
		// Concurrent registration can still lose the race on the unique index.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("username %q: %w", u.Username, ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}
