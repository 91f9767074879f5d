package store

import (
	"fmt"
	"time"

	"github.com/luxentry/lux-entry-bot/types"
)

// RedisSessionStore keeps the in-flight onboarding step per user. Durable
// facts live in Postgres; a lost session only costs the current step pointer.
type RedisSessionStore struct {
	client *RedisClient
	ttl    time.Duration
}

func NewRedisSessionStore(redisClient *RedisClient, ttlHours int) *RedisSessionStore {
	ttl := time.Duration(ttlHours) * time.Hour
	if ttlHours <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisSessionStore{
		client: redisClient,
		ttl:    ttl,
	}
}

func (s *RedisSessionStore) sessionKey(telegramID int64) string {
	return s.client.generateKey("session", fmt.Sprintf("%d", telegramID))
}

func (s *RedisSessionStore) GetSession(telegramID int64) (*types.Session, error) {
	var session types.Session
	if err := s.client.Get(s.sessionKey(telegramID), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *RedisSessionStore) SaveSession(session *types.Session) error {
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	return s.client.Set(s.sessionKey(session.TelegramID), session, s.ttl)
}

func (s *RedisSessionStore) ClearSession(telegramID int64) error {
	return s.client.Del(s.sessionKey(telegramID))
}
