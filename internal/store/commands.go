package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"plant-monitor-backend/internal/model"
)

// Outcome is what a device reports back for a delivered command.
type Outcome struct {
	Success      bool
	Result       *string
	ErrorMessage *string
	At           time.Time
}

func (s *gormStore) CreateCommand(ctx context.Context, cmd *model.DeviceCommand) error {
	if err := s.db.WithContext(ctx).Create(cmd).Error; err != nil {
		return fmt.Errorf("create %s command for device %d: %w", cmd.Type, cmd.DeviceID, translate(err))
	}
	return nil
}

// ClaimPendingCommands selects up to limit deliverable commands and marks them
// sent in one transaction. Rows are tagged with a fresh poll id so the caller
// only ever receives the rows this call flipped.
func (s *gormStore) ClaimPendingCommands(ctx context.Context, deviceID int64, now time.Time, limit int) ([]model.DeviceCommand, error) {
	pollID := uuid.NewString()
	var claimed []model.DeviceCommand

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []int64
		if err := tx.Model(&model.DeviceCommand{}).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("device_id = ? AND status = ? AND expires_at > ?", deviceID, model.CommandStatusPending, now).
			Order("priority DESC, created_at ASC, id ASC").
			Limit(limit).
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("select pending commands: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		res := tx.Model(&model.DeviceCommand{}).
			Where("id IN ? AND status = ?", ids, model.CommandStatusPending).
			Updates(map[string]any{
				"status":  model.CommandStatusSent,
				"sent_at": now,
				"poll_id": pollID,
			})
		if res.Error != nil {
			return fmt.Errorf("mark commands sent: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		return tx.Where("poll_id = ?", pollID).
			Order("priority DESC, created_at ASC, id ASC").
			Find(&claimed).Error
	})
	if err != nil {
		return nil, fmt.Errorf("claim commands for device %d: %w", deviceID, err)
	}
	return claimed, nil
}

// AcknowledgeCommand moves an open command to completed or failed. The bool
// result reports whether this call performed the transition; an already
// terminal command is returned unchanged with false.
func (s *gormStore) AcknowledgeCommand(ctx context.Context, deviceID, commandID int64, outcome Outcome) (*model.DeviceCommand, bool, error) {
	var cmd model.DeviceCommand
	applied := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND device_id = ?", commandID, deviceID).
			First(&cmd).Error; err != nil {
			return err
		}
		if cmd.Status.Terminal() {
			return nil
		}

		status := model.CommandStatusFailed
		if outcome.Success {
			status = model.CommandStatusCompleted
		}
		res := tx.Model(&model.DeviceCommand{}).
			Where("id = ? AND status IN ?", commandID, model.OpenStatuses).
			Updates(map[string]any{
				"status":           status,
				"acknowledged_at":  outcome.At,
				"execution_result": outcome.Result,
				"error_message":    outcome.ErrorMessage,
			})
		if res.Error != nil {
			return res.Error
		}
		// Lost a race with the sweeper; the row is already terminal.
		if res.RowsAffected == 0 {
			return tx.First(&cmd, commandID).Error
		}

		applied = true
		cmd.Status = status
		cmd.AcknowledgedAt = &outcome.At
		cmd.ExecutionResult = outcome.Result
		cmd.ErrorMessage = outcome.ErrorMessage
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrNotFound
		}
		return nil, false, fmt.Errorf("acknowledge command %d: %w", commandID, err)
	}
	return &cmd, applied, nil
}

// ListCommands returns the newest commands of a device first.
func (s *gormStore) ListCommands(ctx context.Context, deviceID int64, limit int) ([]model.DeviceCommand, error) {
	var cmds []model.DeviceCommand
	err := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&cmds).Error
	if err != nil {
		return nil, fmt.Errorf("list commands for device %d: %w", deviceID, err)
	}
	return cmds, nil
}

// ExpireCommands marks every open command past its deadline as expired in a
// single guarded statement.
func (s *gormStore) ExpireCommands(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.DeviceCommand{}).
		Where("status IN ? AND expires_at <= ?", model.OpenStatuses, now).
		Update("status", model.CommandStatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("expire commands: %w", res.Error)
	}
	return res.RowsAffected, nil
}
