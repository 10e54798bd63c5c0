package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"plant-monitor-backend/internal/model"
)

var (
	// ErrNotFound is returned when a device, credential or command does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrDuplicate is returned when a unique key is violated.
	ErrDuplicate = errors.New("store: duplicate key")
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB
	// Transaction runs fn against a store bound to a single database transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	DeviceStore
	CredentialStore
	CommandStore
}

// DeviceStore covers device identity, presence and configuration.
type DeviceStore interface {
	CreateDevice(ctx context.Context, device *model.Device) error
	GetDevice(ctx context.Context, id int64) (*model.Device, error)
	GetDeviceByExternalID(ctx context.Context, externalID string) (*model.Device, error)
	// LockDeviceByExternalID reads the device row with a row lock held until the
	// surrounding transaction ends.
	LockDeviceByExternalID(ctx context.Context, externalID string) (*model.Device, error)
	MarkDeviceSeen(ctx context.Context, id int64, at time.Time) error
	MarkDevicesOffline(ctx context.Context, seenBefore time.Time) (int64, error)
	ListDeviceConfigurations(ctx context.Context, deviceID int64) ([]model.DeviceConfiguration, error)
}

// CredentialStore covers hashed device credentials.
type CredentialStore interface {
	CreateCredential(ctx context.Context, token *model.ApiToken) error
	ActiveCredentials(ctx context.Context, deviceID int64, now time.Time) ([]model.ApiToken, error)
	HasActiveCredential(ctx context.Context, deviceID int64) (bool, error)
	ListCredentials(ctx context.Context, deviceID int64) ([]model.ApiToken, error)
	TouchCredential(ctx context.Context, id int64, at time.Time) error
	DeactivateCredential(ctx context.Context, tokenHash string) error
}

// CommandStore covers the device command queue.
type CommandStore interface {
	CreateCommand(ctx context.Context, cmd *model.DeviceCommand) error
	ClaimPendingCommands(ctx context.Context, deviceID int64, now time.Time, limit int) ([]model.DeviceCommand, error)
	AcknowledgeCommand(ctx context.Context, deviceID, commandID int64, outcome Outcome) (*model.DeviceCommand, bool, error)
	ListCommands(ctx context.Context, deviceID int64, limit int) ([]model.DeviceCommand, error)
	ExpireCommands(ctx context.Context, now time.Time) (int64, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying connection.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Transaction begins a transaction and hands a tx-bound store to fn.
// Returning an error from fn rolls everything back.
func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}
