package store

import (
	"fmt"
	"time"
)

// RedisReminderLog remembers which expiry reminders were already sent, so a
// sweep rerun or process restart cannot notify the same user twice for the
// same expiry date. Entries are marked after a successful send.
type RedisReminderLog struct {
	client *RedisClient
	ttl    time.Duration
}

func NewRedisReminderLog(redisClient *RedisClient) *RedisReminderLog {
	return &RedisReminderLog{
		client: redisClient,
		ttl:    96 * time.Hour,
	}
}

func (l *RedisReminderLog) reminderKey(telegramID int64, creatorID string, expiry time.Time) string {
	return l.client.generateKey("reminded", fmt.Sprintf("%d", telegramID), creatorID, expiry.Format("2006-01-02"))
}

func (l *RedisReminderLog) WasNotified(telegramID int64, creatorID string, expiry time.Time) (bool, error) {
	return l.client.Exists(l.reminderKey(telegramID, creatorID, expiry))
}

func (l *RedisReminderLog) MarkNotified(telegramID int64, creatorID string, expiry time.Time) error {
	return l.client.Set(l.reminderKey(telegramID, creatorID, expiry), true, l.ttl)
}
