package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/datatypes"

	"plant-monitor-backend/internal/metrics"
	"plant-monitor-backend/internal/model"
	"plant-monitor-backend/internal/store"
)

var (
	ErrInvalidCommandType = errors.New("invalid command type")
	ErrInvalidPriority    = errors.New("invalid priority")
	ErrInvalidParameters  = errors.New("invalid command parameters")
	ErrDeviceOffline      = errors.New("device is offline")
)

const (
	DefaultPollLimit    = 10
	MaxPollLimit        = 50
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200

	defaultWateringSeconds = 30
)

// Ack is a device's report on a delivered command.
type Ack struct {
	CommandID    int64
	Success      bool
	Result       *string
	ErrorMessage *string
}

// Service is the device command queue.
type Service struct {
	store           store.Store
	expiry          ExpiryPolicy
	pollLimit       int
	historyLimit    int
	wateringSeconds int
	now             func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithExpiryPolicy(p ExpiryPolicy) Option {
	return func(s *Service) { s.expiry = p }
}

// WithLimits sets the default page sizes for polls and history. Zero keeps the default.
func WithLimits(poll, history int) Option {
	return func(s *Service) {
		if poll > 0 {
			s.pollLimit = min(poll, MaxPollLimit)
		}
		if history > 0 {
			s.historyLimit = min(history, MaxHistoryLimit)
		}
	}
}

// WithWateringDuration sets the duration used when a watering request omits one.
func WithWateringDuration(seconds int) Option {
	return func(s *Service) {
		if seconds > 0 {
			s.wateringSeconds = seconds
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a command queue over st.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:           st,
		expiry:          DefaultExpiryPolicy(),
		pollLimit:       DefaultPollLimit,
		historyLimit:    DefaultHistoryLimit,
		wateringSeconds: defaultWateringSeconds,
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue creates a pending command for deviceID. Priority 0 means low.
func (s *Service) Enqueue(ctx context.Context, deviceID int64, t model.CommandType, params json.RawMessage, priority int) (*model.DeviceCommand, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCommandType, t)
	}
	if priority == 0 {
		priority = model.PriorityLow
	}
	if priority < model.PriorityLow || priority > model.PriorityCritical {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, priority)
	}
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	if !json.Valid(params) {
		return nil, ErrInvalidParameters
	}

	if _, err := s.store.GetDevice(ctx, deviceID); err != nil {
		return nil, fmt.Errorf("enqueue for device %d: %w", deviceID, err)
	}

	now := s.now()
	cmd := &model.DeviceCommand{
		DeviceID:   deviceID,
		Type:       t,
		Parameters: datatypes.JSON(params),
		Status:     model.CommandStatusPending,
		Priority:   priority,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.expiry.TTL(t)),
	}
	if err := s.store.CreateCommand(ctx, cmd); err != nil {
		return nil, err
	}

	metrics.IncCommandEnqueued(string(t))
	log.Printf("created command %d (%s) for device %d with priority %d", cmd.ID, t, deviceID, priority)
	return cmd, nil
}

// PollPending claims up to limit deliverable commands, highest priority and
// oldest first, and marks them sent. A command is handed out by at most one poll.
func (s *Service) PollPending(ctx context.Context, deviceID int64, limit int) ([]model.DeviceCommand, error) {
	limit = clamp(limit, s.pollLimit, MaxPollLimit)

	cmds, err := s.store.ClaimPendingCommands(ctx, deviceID, s.now(), limit)
	if err != nil {
		return nil, err
	}
	if len(cmds) > 0 {
		metrics.AddCommandsDelivered(len(cmds))
		log.Printf("delivered %d commands to device %d", len(cmds), deviceID)
	}
	return cmds, nil
}

// Acknowledge records the outcome of a command. It reports false when the
// command does not exist for this device; acknowledging a finished command
// again is a successful no-op.
func (s *Service) Acknowledge(ctx context.Context, deviceID int64, ack Ack) (bool, error) {
	cmd, applied, err := s.store.AcknowledgeCommand(ctx, deviceID, ack.CommandID, store.Outcome{
		Success:      ack.Success,
		Result:       ack.Result,
		ErrorMessage: ack.ErrorMessage,
		At:           s.now(),
	})
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("command %d not found for device %d", ack.CommandID, deviceID)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if !applied {
		metrics.IncCommandAck(metrics.AckDuplicate)
		log.Printf("command %d already %s, ignoring acknowledgment", cmd.ID, cmd.Status)
		return true, nil
	}
	metrics.IncCommandAck(string(cmd.Status))
	log.Printf("command %d acknowledged with status %s", cmd.ID, cmd.Status)
	return true, nil
}

// History returns the most recent commands of a device, newest first.
func (s *Service) History(ctx context.Context, deviceID int64, limit int) ([]model.DeviceCommand, error) {
	return s.store.ListCommands(ctx, deviceID, clamp(limit, s.historyLimit, MaxHistoryLimit))
}

// SweepExpired moves every open command past its deadline to expired.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireCommands(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddCommandsExpired(n)
		log.Printf("marked %d expired commands", n)
	}
	return n, nil
}

// ManualWatering asks an online device to water for durationSeconds.
func (s *Service) ManualWatering(ctx context.Context, deviceID int64, durationSeconds int) (*model.DeviceCommand, error) {
	device, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("manual watering for device %d: %w", deviceID, err)
	}
	if !device.IsOnline {
		return nil, ErrDeviceOffline
	}
	if durationSeconds < 0 {
		return nil, fmt.Errorf("%w: negative duration", ErrInvalidParameters)
	}
	if durationSeconds == 0 {
		durationSeconds = s.wateringSeconds
	}

	params, err := json.Marshal(map[string]int{"durationSeconds": durationSeconds})
	if err != nil {
		return nil, err
	}
	return s.Enqueue(ctx, deviceID, model.CommandManualWatering, params, model.PriorityHigh)
}

func clamp(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
