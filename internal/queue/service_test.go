package queue

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"plant-monitor-backend/internal/model"
	"plant-monitor-backend/internal/store"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc    *Service
	store  store.Store
	clock  *testClock
	device *model.Device
}

func setup(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.Device{}, &model.DeviceCommand{}))

	st := store.NewGormStore(db)
	clock := &testClock{t: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	device := newDevice(t, st, "PM-0001")
	return &fixture{
		svc:    NewService(st, WithClock(clock.Now)),
		store:  st,
		clock:  clock,
		device: device,
	}
}

func newDevice(t *testing.T, st store.Store, externalID string) *model.Device {
	t.Helper()
	device := &model.Device{ExternalID: externalID, DisplayName: "Plant Monitor", Status: model.DeviceStatusActive}
	require.NoError(t, st.CreateDevice(context.Background(), device))
	return device
}

func ids(cmds []model.DeviceCommand) []int64 {
	out := make([]int64, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c.ID)
	}
	return out
}

func TestEnqueue(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	tests := []struct {
		name     string
		cmdType  model.CommandType
		priority int
		ttl      time.Duration
	}{
		{name: "Emergency stop", cmdType: model.CommandEmergencyStop, priority: 4, ttl: 2 * time.Minute},
		{name: "Manual watering", cmdType: model.CommandManualWatering, priority: 3, ttl: 5 * time.Minute},
		{name: "Configuration", cmdType: model.CommandUpdateConfiguration, priority: 2, ttl: 30 * time.Minute},
		{name: "Restart defaults priority", cmdType: model.CommandRestart, priority: 0, ttl: 10 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := f.svc.Enqueue(ctx, f.device.ID, tt.cmdType, json.RawMessage(`{"a":1}`), tt.priority)
			require.NoError(t, err)
			assert.Equal(t, model.CommandStatusPending, cmd.Status)
			assert.Equal(t, f.clock.Now().Add(tt.ttl), cmd.ExpiresAt)
			if tt.priority == 0 {
				assert.Equal(t, model.PriorityLow, cmd.Priority)
			} else {
				assert.Equal(t, tt.priority, cmd.Priority)
			}
			assert.JSONEq(t, `{"a":1}`, string(cmd.Parameters))
		})
	}
}

func TestEnqueue_Rejects(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.svc.Enqueue(ctx, f.device.ID, "self_destruct", nil, 1)
	assert.ErrorIs(t, err, ErrInvalidCommandType)

	_, err = f.svc.Enqueue(ctx, f.device.ID, model.CommandRestart, nil, 5)
	assert.ErrorIs(t, err, ErrInvalidPriority)

	_, err = f.svc.Enqueue(ctx, f.device.ID, model.CommandRestart, json.RawMessage(`{"a":`), 1)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = f.svc.Enqueue(ctx, f.device.ID+99, model.CommandRestart, nil, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	cmd, err := f.svc.Enqueue(ctx, f.device.ID, model.CommandRestart, nil, 1)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(cmd.Parameters))
}

func TestPollPending_PriorityOrder(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	for _, p := range []int{1, 3, 2} {
		_, err := f.svc.Enqueue(ctx, f.device.ID, model.CommandRestart, nil, p)
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	cmds, err := f.svc.PollPending(ctx, f.device.ID, 0)
	require.NoError(t, err)
	require.Len(t, cmds, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{cmds[0].Priority, cmds[1].Priority, cmds[2].Priority})
	for _, c := range cmds {
		assert.Equal(t, model.CommandStatusSent, c.Status)
		require.NotNil(t, c.SentAt)
	}

	// Everything was claimed by the first poll.
	cmds, err = f.svc.PollPending(ctx, f.device.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, cmds)
}

func TestPollPending_FIFOWithinPriorityAndLimit(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	var created []int64
	for i := 0; i < 4; i++ {
		cmd, err := f.svc.Enqueue(ctx, f.device.ID, model.CommandCalibrateSensors, nil, 2)
		require.NoError(t, err)
		created = append(created, cmd.ID)
		f.clock.Advance(time.Second)
	}

	first, err := f.svc.PollPending(ctx, f.device.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, created[:3], ids(first))

	second, err := f.svc.PollPending(ctx, f.device.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, created[3:], ids(second))
}

func TestPollPending_OnlyOwnDevice(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	other := newDevice(t, f.store, "PM-0002")

	_, err := f.svc.Enqueue(ctx, other.ID, model.CommandRestart, nil, 1)
	require.NoError(t, err)

	cmds, err := f.svc.PollPending(ctx, f.device.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, cmds)
}

func TestPollPending_SkipsExpired(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.svc.Enqueue(ctx, f.device.ID, model.CommandEmergencyStop, nil, 4)
	require.NoError(t, err)

	// Past the deadline but before any sweep ran.
	f.clock.Advance(2 * time.Minute)
	cmds, err := f.svc.PollPending(ctx, f.device.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, cmds)
}

// The fixture holds a single connection, so these polls are serialized. The
// row-level claim guard is covered in the store tests.
func TestPollPending_InterleavedPollersNeverShare(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	const total = 12
	for i := 0; i < total; i++ {
		_, err := f.svc.Enqueue(ctx, f.device.ID, model.CommandRestart, nil, 1+i%4)
		require.NoError(t, err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[int64]int{}
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cmds, err := f.svc.PollPending(ctx, f.device.ID, 3)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, c := range cmds {
				seen[c.ID]++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "command %d delivered more than once", id)
	}
}

func TestAcknowledge(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	cmd, err := f.svc.Enqueue(ctx, f.device.ID, model.CommandManualWatering, nil, 3)
	require.NoError(t, err)
	_, err = f.svc.PollPending(ctx, f.device.ID, 10)
	require.NoError(t, err)

	result := "watered 30s"
	ok, err := f.svc.Acknowledge(ctx, f.device.ID, Ack{CommandID: cmd.ID, Success: true, Result: &result})
	require.NoError(t, err)
	assert.True(t, ok)

	// Repeating the acknowledgment, even with a different outcome, changes nothing.
	failure := "pump jammed"
	ok, err = f.svc.Acknowledge(ctx, f.device.ID, Ack{CommandID: cmd.ID, Success: false, ErrorMessage: &failure})
	require.NoError(t, err)
	assert.True(t, ok)

	history, err := f.svc.History(ctx, f.device.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.CommandStatusCompleted, history[0].Status)
	require.NotNil(t, history[0].ExecutionResult)
	assert.Equal(t, result, *history[0].ExecutionResult)
	assert.Nil(t, history[0].ErrorMessage)
	assert.NotNil(t, history[0].AcknowledgedAt)
}

func TestAcknowledge_Failure(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	cmd, err := f.svc.Enqueue(ctx, f.device.ID, model.CommandCalibrateSensors, nil, 1)
	require.NoError(t, err)
	_, err = f.svc.PollPending(ctx, f.device.ID, 10)
	require.NoError(t, err)

	msg := "sensor offline"
	ok, err := f.svc.Acknowledge(ctx, f.device.ID, Ack{CommandID: cmd.ID, ErrorMessage: &msg})
	require.NoError(t, err)
	assert.True(t, ok)

	history, err := f.svc.History(ctx, f.device.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, model.CommandStatusFailed, history[0].Status)
}

func TestAcknowledge_UnknownOrForeign(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	other := newDevice(t, f.store, "PM-0002")

	cmd, err := f.svc.Enqueue(ctx, other.ID, model.CommandRestart, nil, 1)
	require.NoError(t, err)

	ok, err := f.svc.Acknowledge(ctx, f.device.ID, Ack{CommandID: cmd.ID, Success: true})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.Acknowledge(ctx, f.device.ID, Ack{CommandID: 9999, Success: true})
	require.NoError(t, err)
	assert.False(t, ok)

	history, err := f.svc.History(ctx, other.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, model.CommandStatusPending, history[0].Status)
}

func TestSweepExpired_EmergencyStop(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	stop, err := f.svc.Enqueue(ctx, f.device.ID, model.CommandEmergencyStop, nil, 4)
	require.NoError(t, err)
	config, err := f.svc.Enqueue(ctx, f.device.ID, model.CommandUpdateConfiguration, nil, 2)
	require.NoError(t, err)

	f.clock.Advance(3 * time.Minute)
	n, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// A second sweep finds nothing left to expire.
	n, err = f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	cmds, err := f.svc.PollPending(ctx, f.device.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{config.ID}, ids(cmds))

	// A late acknowledgment of the expired command is accepted but ignored.
	ok, err := f.svc.Acknowledge(ctx, f.device.ID, Ack{CommandID: stop.ID, Success: true})
	require.NoError(t, err)
	assert.True(t, ok)

	history, err := f.svc.History(ctx, f.device.ID, 0)
	require.NoError(t, err)
	byID := map[int64]model.CommandStatus{}
	for _, c := range history {
		byID[c.ID] = c.Status
	}
	assert.Equal(t, model.CommandStatusExpired, byID[stop.ID])
	assert.Equal(t, model.CommandStatusSent, byID[config.ID])
}

func TestSweepExpired_SentCommands(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	cmd, err := f.svc.Enqueue(ctx, f.device.ID, model.CommandRestart, nil, 1)
	require.NoError(t, err)
	_, err = f.svc.PollPending(ctx, f.device.ID, 10)
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	n, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ok, err := f.svc.Acknowledge(ctx, f.device.ID, Ack{CommandID: cmd.ID, Success: true})
	require.NoError(t, err)
	assert.True(t, ok)

	history, err := f.svc.History(ctx, f.device.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, model.CommandStatusExpired, history[0].Status)
	assert.Nil(t, history[0].AcknowledgedAt)
}

func TestHistory_NewestFirstAndLimit(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	var created []int64
	for i := 0; i < 5; i++ {
		cmd, err := f.svc.Enqueue(ctx, f.device.ID, model.CommandRestart, nil, 1)
		require.NoError(t, err)
		created = append(created, cmd.ID)
		f.clock.Advance(time.Second)
	}

	history, err := f.svc.History(ctx, f.device.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{created[4], created[3]}, ids(history))
}

func TestManualWatering(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.svc.ManualWatering(ctx, f.device.ID, 20)
	assert.ErrorIs(t, err, ErrDeviceOffline)

	require.NoError(t, f.store.MarkDeviceSeen(ctx, f.device.ID, f.clock.Now()))

	cmd, err := f.svc.ManualWatering(ctx, f.device.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, model.CommandManualWatering, cmd.Type)
	assert.Equal(t, model.PriorityHigh, cmd.Priority)
	assert.JSONEq(t, `{"durationSeconds":30}`, string(cmd.Parameters))
	assert.Equal(t, f.clock.Now().Add(5*time.Minute), cmd.ExpiresAt)
}

func TestExpiryPolicy_TTL(t *testing.T) {
	p := ExpiryPolicy{EmergencyStop: time.Minute}

	assert.Equal(t, time.Minute, p.TTL(model.CommandEmergencyStop))
	assert.Equal(t, 5*time.Minute, p.TTL(model.CommandManualWatering))
	assert.Equal(t, 10*time.Minute, p.TTL(model.CommandEnableAutoWatering))
}
