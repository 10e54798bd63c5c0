package credential

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"plant-monitor-backend/internal/model"
	"plant-monitor-backend/internal/store"
)

// ErrInvalidCredential is the only failure reported for a rejected secret.
// Callers must not learn whether the device, the secret or its expiry was at fault.
var ErrInvalidCredential = errors.New("invalid credential")

const secretBytes = 32

// Service issues, validates and revokes hashed device credentials.
type Service struct {
	store  store.Store
	hasher Hasher
	now    func() time.Time
	// dummy is compared against when a device has no usable credential so that
	// every rejection costs one hash comparison.
	dummy string
}

// Option configures a Service.
type Option func(*Service)

// WithHasher replaces the default bcrypt hasher.
func WithHasher(h Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a credential service.
func NewService(st store.Store, opts ...Option) (*Service, error) {
	s := &Service{
		store:  st,
		hasher: NewBcryptHasher(0),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, err := GenerateSecret()
	if err != nil {
		return nil, err
	}
	if s.dummy, err = s.hasher.Hash(raw); err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return s, nil
}

// GenerateSecret returns 256 random bits encoded as unpadded base64url.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Issue creates a new credential for an existing device and returns the raw
// secret. The secret is not retrievable afterwards.
func (s *Service) Issue(ctx context.Context, deviceID int64, label string, expiresAt *time.Time) (string, error) {
	if _, err := s.store.GetDevice(ctx, deviceID); err != nil {
		return "", fmt.Errorf("issue credential for device %d: %w", deviceID, err)
	}

	raw, err := GenerateSecret()
	if err != nil {
		return "", err
	}
	if _, err := s.Register(ctx, s.store, deviceID, raw, label, expiresAt); err != nil {
		return "", err
	}
	log.Printf("issued credential %q for device %d", label, deviceID)
	return raw, nil
}

// Register hashes raw and persists it through st, which may be bound to a
// caller's transaction.
func (s *Service) Register(ctx context.Context, st store.CredentialStore, deviceID int64, raw, label string, expiresAt *time.Time) (*model.ApiToken, error) {
	hash, err := s.hasher.Hash(raw)
	if err != nil {
		return nil, fmt.Errorf("hash credential: %w", err)
	}
	token := &model.ApiToken{
		DeviceID:  deviceID,
		TokenHash: hash,
		Label:     label,
		ExpiresAt: expiresAt,
		IsActive:  true,
		CreatedAt: s.now(),
	}
	if err := st.CreateCredential(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// Verify returns the credential of deviceID matching raw. Any failure,
// including a store error, is reported as ErrInvalidCredential; store errors
// are logged.
func (s *Service) Verify(ctx context.Context, raw string, deviceID int64) (*model.ApiToken, error) {
	now := s.now()
	tokens, err := s.store.ActiveCredentials(ctx, deviceID, now)
	if err != nil {
		log.Printf("credential lookup failed for device %d: %v", deviceID, err)
		tokens = nil
	}

	if raw == "" || len(tokens) == 0 {
		s.hasher.Compare(s.dummy, raw)
		return nil, ErrInvalidCredential
	}

	for i := range tokens {
		if !tokens[i].Usable(now) || !s.hasher.Compare(tokens[i].TokenHash, raw) {
			continue
		}
		if err := s.store.TouchCredential(ctx, tokens[i].ID, now); err != nil {
			log.Printf("failed to record use of credential %d: %v", tokens[i].ID, err)
		} else {
			tokens[i].LastUsedAt = &now
		}
		return &tokens[i], nil
	}
	return nil, ErrInvalidCredential
}

// Validate reports whether raw is a usable credential of deviceID.
func (s *Service) Validate(ctx context.Context, raw string, deviceID int64) bool {
	_, err := s.Verify(ctx, raw, deviceID)
	return err == nil
}

// Revoke deactivates the credential with the given hash. Unknown or already
// revoked hashes succeed.
func (s *Service) Revoke(ctx context.Context, tokenHash string) error {
	if err := s.store.DeactivateCredential(ctx, tokenHash); err != nil {
		return err
	}
	log.Printf("revoked credential")
	return nil
}

// List returns credential metadata for a device.
func (s *Service) List(ctx context.Context, deviceID int64) ([]model.ApiToken, error) {
	if _, err := s.store.GetDevice(ctx, deviceID); err != nil {
		return nil, fmt.Errorf("list credentials for device %d: %w", deviceID, err)
	}
	return s.store.ListCredentials(ctx, deviceID)
}
