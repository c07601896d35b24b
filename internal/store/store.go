package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"mes-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB
	Ping(ctx context.Context) error

	ListMachines(ctx context.Context, page Page) ([]MachineSummary, int64, error)
	GetMachine(ctx context.Context, id int64) (*model.Machine, error)
	CreateMachine(ctx context.Context, m *model.Machine) error
	DeleteMachine(ctx context.Context, id int64) error

	AssignTool(ctx context.Context, machineID, toolID int64) error
	GetMachineTool(ctx context.Context, machineID int64) (*MachineTool, error)
	MetricSlice(ctx context.Context, machineID int64, metric string, limit int) ([]MetricPoint, error)

	ListMaintenance(ctx context.Context, machineID int64) ([]MaintenanceEntry, error)
	CreateMaintenance(ctx context.Context, entry *model.MaintenanceLog) error

	ListTools(ctx context.Context, page Page) ([]model.Tool, int64, error)

	ListUsers(ctx context.Context) ([]model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	CreateUser(ctx context.Context, u *model.User) error

	PutSubscription(ctx context.Context, sub *model.PushSubscription, machineIDs []int64) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForMachine(ctx context.Context, machineID int64) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Ping checks that the underlying connection is alive.
func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// exists reports whether a row with the given primary key exists for model.
func exists(tx *gorm.DB, m any, id int64) (bool, error) {
	var n int64
	if err := tx.Model(m).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func notFound(err error, entity string, key any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Entity: entity, Key: key}
	}
	return fmt.Errorf("failed to load %s %v: %w", entity, key, err)
}
