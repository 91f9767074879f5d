package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExtendValidUntil(t *testing.T) {
	now := time.Date(2026, time.July, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		current *time.Time
		days    int
		want    time.Time
	}{
		{
			name:    "first activation counts from today",
			current: nil,
			days:    7,
			want:    day(2026, time.July, 17),
		},
		{
			name:    "renewal before expiry stacks on the current expiry",
			current: ptr(day(2026, time.July, 15)),
			days:    7,
			want:    day(2026, time.July, 22),
		},
		{
			name:    "renewal after expiry counts from today",
			current: ptr(day(2026, time.July, 1)),
			days:    7,
			want:    day(2026, time.July, 17),
		},
		{
			name:    "expiry today counts from today",
			current: ptr(day(2026, time.July, 10)),
			days:    30,
			want:    day(2026, time.August, 9),
		},
		{
			name:    "zero days falls back to the default",
			current: nil,
			days:    0,
			want:    day(2026, time.July, 17),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtendValidUntil(tt.current, now, tt.days)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtendValidUntilNeverShortens(t *testing.T) {
	now := time.Date(2026, time.July, 10, 8, 0, 0, 0, time.UTC)
	current := ptr(day(2026, time.September, 1))

	got := ExtendValidUntil(current, now, 7)
	assert.True(t, got.After(*current), "renewal must extend, not shorten")
	assert.Equal(t, day(2026, time.September, 8), got)
}

func TestCurrentStatus(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		user VipUser
		want MemberStatus
	}{
		{
			name: "unpaid membership reads as started",
			user: VipUser{},
			want: StatusStarted,
		},
		{
			name: "paid with future expiry is active",
			user: VipUser{PaymentConfirmed: true, ValidUntil: ptr(day(2026, time.July, 17))},
			want: StatusActive,
		},
		{
			name: "paid and expiring today is still active",
			user: VipUser{PaymentConfirmed: true, ValidUntil: ptr(day(2026, time.July, 10))},
			want: StatusActive,
		},
		{
			name: "paid with past expiry is expired",
			user: VipUser{PaymentConfirmed: true, ValidUntil: ptr(day(2026, time.July, 9))},
			want: StatusExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.CurrentStatus(now))
		})
	}
}

func TestCreatorConfigDays(t *testing.T) {
	assert.Equal(t, 30, (&CreatorConfig{SubscriptionDays: 30}).Days())
	assert.Equal(t, DefaultSubscriptionDays, (&CreatorConfig{}).Days())
}

func TestNormalizeUsername(t *testing.T) {
	assert.Equal(t, "luna", NormalizeUsername("@luna"))
	assert.Equal(t, "luna", NormalizeUsername("  luna "))
	assert.Equal(t, "", NormalizeUsername(""))
}

func ptr(t time.Time) *time.Time { return &t }
