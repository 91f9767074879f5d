package scheduler

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/luxentry/lux-entry-bot/internal/messages"
	"github.com/luxentry/lux-entry-bot/types"
)

// Sender delivers a reminder text to a user's private chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// ReminderLog deduplicates reminders per (user, creator, expiry date) across
// sweep reruns and restarts.
type ReminderLog interface {
	WasNotified(telegramID int64, creatorID string, expiry time.Time) (bool, error)
	MarkNotified(telegramID int64, creatorID string, expiry time.Time) error
}

// ExpiryLister lists paid memberships whose access ends on the given day.
type ExpiryLister interface {
	ListExpiringOn(date time.Time) ([]types.VipUser, error)
}

// Expiring memberships are reminded one day and three days ahead. Lapsed
// memberships past their date are never contacted.
var reminderOffsets = []int{1, 3}

// ReminderScheduler runs a daily sweep over active memberships nearing expiry
// and invites a renewal screenshot.
type ReminderScheduler struct {
	members ExpiryLister
	log     ReminderLog
	sender  Sender
	cron    *cron.Cron
	now     func() time.Time
}

func NewReminderScheduler(members ExpiryLister, reminderLog ReminderLog, sender Sender, loc *time.Location) *ReminderScheduler {
	return &ReminderScheduler{
		members: members,
		log:     reminderLog,
		sender:  sender,
		cron:    cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		now:     time.Now,
	}
}

// Start registers the daily sweep at the given HH:MM local time and starts
// the cron loop.
func (s *ReminderScheduler) Start(timeStr string) error {
	spec, err := buildDailySpec(timeStr)
	if err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(spec, s.Sweep); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("Reminder scheduler started, daily at %s", timeStr)
	return nil
}

func (s *ReminderScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *ReminderScheduler) Sweep() {
	ctx := context.Background()
	now := s.now()

	for _, days := range reminderOffsets {
		target := dateOnly(now.AddDate(0, 0, days))

		members, err := s.members.ListExpiringOn(target)
		if err != nil {
			log.Printf("Reminder sweep: failed to list memberships expiring on %s: %v", target.Format("2006-01-02"), err)
			continue
		}

		for _, member := range members {
			notified, err := s.log.WasNotified(member.TelegramID, member.CreatorID, target)
			if err != nil {
				log.Printf("Reminder sweep: dedup check failed for user %d: %v", member.TelegramID, err)
			}
			if notified {
				continue
			}

			err = s.sender.SendMessage(ctx, member.TelegramID, messages.ExpiryReminder(target, days))
			if err != nil {
				log.Printf("Reminder sweep: failed to notify user %d: %v", member.TelegramID, err)
				continue
			}
			if err := s.log.MarkNotified(member.TelegramID, member.CreatorID, target); err != nil {
				log.Printf("Reminder sweep: failed to mark user %d notified: %v", member.TelegramID, err)
			}
		}
	}
}

func buildDailySpec(timeStr string) (string, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", timeStr)
	}
	// cron format: second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
