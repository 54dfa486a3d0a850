package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/YidKik/yidvid-sub003/internal/model"
	"github.com/YidKik/yidvid-sub003/pkg/hash"
)

// Security event types written by the server itself.
const EventSignOut = "signout"

type SecurityService struct {
	events SecurityEventStore
	salt   string
}

// NewSecurityService stores events with client IPs hashed under salt.
func NewSecurityService(events SecurityEventStore, salt string) *SecurityService {
	return &SecurityService{events: events, salt: salt}
}

// Log records a security event. userID is empty for anonymous callers.
func (s *SecurityService) Log(ctx context.Context, userID, ip, userAgent, eventType, detail string) (*model.SecurityEvent, error) {
	ev := &model.SecurityEvent{
		EventType: eventType,
		IPHash:    hash.IP(ip, s.salt),
		UserAgent: userAgent,
		Detail:    detail,
	}
	if userID != "" {
		ev.UserID = &userID
	}
	if err := s.events.Insert(ctx, ev); err != nil {
		return nil, err
	}
	log.Info().Str("component", "security").Str("event_type", eventType).Str("ip_hash", ev.IPHash[:12]).Msg("security event")
	return ev, nil
}

// HashIP returns the stored form of a client IP.
func (s *SecurityService) HashIP(ip string) string {
	return hash.IP(ip, s.salt)
}

func (s *SecurityService) Recent(ctx context.Context, limit int) ([]model.SecurityEvent, error) {
	return s.events.ListRecent(ctx, limit)
}
