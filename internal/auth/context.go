package auth

import (
	"context"

	"plant-monitor-backend/internal/model"
)

type contextKey string

const (
	contextKeyDevice  contextKey = "auth.device"
	contextKeyRole    contextKey = "auth.role"
	contextKeySubject contextKey = "auth.subject"
)

// WithDevice stores the authenticated device in context.
func WithDevice(ctx context.Context, device *model.Device) context.Context {
	return context.WithValue(ctx, contextKeyDevice, device)
}

// DeviceFromContext returns the device verified by the authentication gate.
func DeviceFromContext(ctx context.Context) (*model.Device, bool) {
	if ctx == nil {
		return nil, false
	}
	device, ok := ctx.Value(contextKeyDevice).(*model.Device)
	return device, ok && device != nil
}

// WithOperator stores operator identity details in context.
func WithOperator(ctx context.Context, subject string, role Role) context.Context {
	ctx = context.WithValue(ctx, contextKeySubject, subject)
	return context.WithValue(ctx, contextKeyRole, role)
}

// RoleFromContext extracts role from context.
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return ""
	}
	role, _ := ctx.Value(contextKeyRole).(Role)
	return role
}

// SubjectFromContext extracts subject from context.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	subject, _ := ctx.Value(contextKeySubject).(string)
	return subject
}
