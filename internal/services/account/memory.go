package account

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/zeusrpc/internal/core/observability/log"
)

const DefaultSessionTTL = 24 * time.Hour

// MemoryService keeps sessions in process memory. A device holds at most one
// session: creating a new one replaces the previous token.
type MemoryService struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byDevice map[string]string

	ttl    time.Duration
	now    func() time.Time
	logger log.Log
}

func NewMemoryService(ttl time.Duration, logger log.Log) *MemoryService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = log.Provide()
	}
	return &MemoryService{
		sessions: make(map[string]*Session),
		byDevice: make(map[string]string),
		ttl:      ttl,
		now:      time.Now,
		logger:   logger.With(log.String("component", "account_service")),
	}
}

func (s *MemoryService) CreateSession(ctx context.Context, req *CreateSessionReq) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrInvalidDevice
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	session := &Session{
		Token:     uuid.NewString(),
		UID:       req.UID,
		Device:    req.Device,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	if previous, ok := s.byDevice[req.Device.ID]; ok {
		delete(s.sessions, previous)
	}
	s.sessions[session.Token] = session
	s.byDevice[req.Device.ID] = session.Token
	s.mu.Unlock()

	s.logger.Info("Session created",
		log.Uint64("uid", req.UID),
		log.String("device_id", req.Device.ID),
		log.String("platform", req.Device.Platform),
	)
	copied := *session
	return &copied, nil
}

func (s *MemoryService) GetSession(ctx context.Context, req *GetSessionReq) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil || req.Token == "" {
		return nil, ErrSessionNotFound
	}

	s.mu.RLock()
	session, ok := s.sessions[req.Token]
	s.mu.RUnlock()

	if !ok || session.Expired(s.now()) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, req.Token)
	}
	copied := *session
	return &copied, nil
}

var _ Service = (*MemoryService)(nil)
