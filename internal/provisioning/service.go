package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"plant-monitor-backend/internal/credential"
	"plant-monitor-backend/internal/metrics"
	"plant-monitor-backend/internal/model"
	"plant-monitor-backend/internal/parse"
	"plant-monitor-backend/internal/store"
)

// ErrAlreadyProvisioned is returned when the device already holds an active credential.
var ErrAlreadyProvisioned = errors.New("device already provisioned")

const (
	secretPrefix     = "PM_"
	provisionedLabel = "provisioned"
)

// Result is returned once per successful provisioning. Secret is shown only here.
type Result struct {
	DeviceID    int64  `json:"id"`
	ExternalID  string `json:"deviceId"`
	DisplayName string `json:"displayName"`
	Secret      string `json:"token"`
}

// BatchResult reports the outcome for one id of a batch.
type BatchResult struct {
	ExternalID string  `json:"deviceId"`
	Success    bool    `json:"success"`
	Result     *Result `json:"result,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Service registers new devices and authenticates provisioned ones.
type Service struct {
	store store.Store
	creds *credential.Service
	now   func() time.Time
}

// NewService creates a provisioning service on top of the credential service.
func NewService(st store.Store, creds *credential.Service) *Service {
	return &Service{
		store: st,
		creds: creds,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// ProvisionDevice creates the device if needed and issues its first secret.
// The whole operation runs in one transaction holding the device row lock.
func (s *Service) ProvisionDevice(ctx context.Context, rawID string) (*Result, error) {
	externalID, err := parse.DeviceID(rawID)
	if err != nil {
		return nil, err
	}

	random, err := credential.GenerateSecret()
	if err != nil {
		return nil, err
	}
	secret := secretPrefix + externalID + "_" + random

	var device *model.Device
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		existing, err := tx.LockDeviceByExternalID(ctx, externalID)
		switch {
		case err == nil:
			provisioned, err := tx.HasActiveCredential(ctx, existing.ID)
			if err != nil {
				return err
			}
			if provisioned {
				return ErrAlreadyProvisioned
			}
			device = existing
		case errors.Is(err, store.ErrNotFound):
			now := s.now()
			device = &model.Device{
				ExternalID:  externalID,
				DisplayName: parse.DisplayName(externalID),
				Status:      model.DeviceStatusActive,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.CreateDevice(ctx, device); err != nil {
				return err
			}
		default:
			return err
		}

		_, err = s.creds.Register(ctx, tx, device.ID, secret, provisionedLabel, nil)
		return err
	})
	if err != nil {
		// A concurrent provisioner created the same device first.
		if errors.Is(err, store.ErrDuplicate) {
			err = ErrAlreadyProvisioned
		}
		if errors.Is(err, ErrAlreadyProvisioned) {
			metrics.IncProvisioning(metrics.ProvisionAlreadyProvisioned)
		} else {
			metrics.IncProvisioning(metrics.ResultError)
		}
		return nil, fmt.Errorf("provision %q: %w", externalID, err)
	}

	metrics.IncProvisioning(metrics.ResultSuccess)
	log.Printf("provisioned device %q (id %d)", externalID, device.ID)
	return &Result{
		DeviceID:    device.ID,
		ExternalID:  device.ExternalID,
		DisplayName: device.DisplayName,
		Secret:      secret,
	}, nil
}

// ProvisionBatch provisions every id independently; one failure never aborts the rest.
func (s *Service) ProvisionBatch(ctx context.Context, externalIDs []string) []BatchResult {
	results := make([]BatchResult, 0, len(externalIDs))
	for _, id := range externalIDs {
		res, err := s.ProvisionDevice(ctx, id)
		if err != nil {
			results = append(results, BatchResult{ExternalID: id, Error: batchError(err)})
			continue
		}
		results = append(results, BatchResult{ExternalID: res.ExternalID, Success: true, Result: res})
	}
	return results
}

func batchError(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyProvisioned):
		return ErrAlreadyProvisioned.Error()
	case errors.Is(err, parse.ErrInvalidDeviceID):
		return parse.ErrInvalidDeviceID.Error()
	}
	return "provisioning failed"
}

// Authenticate resolves the device behind a secret presented with its
// external id. Every failure is credential.ErrInvalidCredential.
func (s *Service) Authenticate(ctx context.Context, raw, externalID string) (*model.Device, error) {
	var deviceID int64
	device, err := s.lookup(ctx, externalID)
	if err == nil {
		deviceID = device.ID
	}

	// deviceID 0 never has credentials, so unknown devices still pay for a compare.
	if _, verr := s.creds.Verify(ctx, raw, deviceID); verr != nil || err != nil {
		return nil, credential.ErrInvalidCredential
	}
	return device, nil
}

// ValidateProvisionedSecret reports whether raw authenticates externalID.
func (s *Service) ValidateProvisionedSecret(ctx context.Context, raw, externalID string) bool {
	_, err := s.Authenticate(ctx, raw, externalID)
	return err == nil
}

func (s *Service) lookup(ctx context.Context, rawID string) (*model.Device, error) {
	externalID, err := parse.DeviceID(rawID)
	if err != nil {
		return nil, err
	}
	device, err := s.store.GetDeviceByExternalID(ctx, externalID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("device lookup failed for %q: %v", externalID, err)
		}
		return nil, err
	}
	return device, nil
}
