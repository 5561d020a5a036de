// Package account is the session service exposed over the rpc runtime.
package account

import (
	"context"
	"errors"
	"time"
)

const (
	// Interface is the interface name the service is registered and bound under.
	Interface = "AccountService"
	// ServiceName is the default registry name of the service.
	ServiceName = "account"

	CodeCreateSession int32 = 100
	CodeGetSession    int32 = 101
)

var (
	ErrInvalidDevice   = errors.New("invalid device")
	ErrInvalidUID      = errors.New("invalid uid")
	ErrSessionNotFound = errors.New("session not found")
)

// Service manages login sessions of devices.
type Service interface {
	CreateSession(ctx context.Context, req *CreateSessionReq) (*Session, error)
	GetSession(ctx context.Context, req *GetSessionReq) (*Session, error)
}

type Device struct {
	ID       string `json:"id"`
	Platform string `json:"platform"`
	Model    string `json:"model,omitempty"`
	Version  string `json:"version,omitempty"`
}

type CreateSessionReq struct {
	Device Device `json:"device"`
	UID    uint64 `json:"uid"`
}

func (r *CreateSessionReq) Validate() error {
	if r.Device.ID == "" || r.Device.Platform == "" {
		return ErrInvalidDevice
	}
	if r.UID == 0 {
		return ErrInvalidUID
	}
	return nil
}

type GetSessionReq struct {
	Token string `json:"token"`
}

type Session struct {
	Token     string    `json:"token"`
	UID       uint64    `json:"uid"`
	Device    Device    `json:"device"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
