package types

import (
	"strings"
	"time"
)

type CreatorConfig struct {
	CreatorID        string
	StartLinkToken   string
	PaymentRecipient string
	// Price is kept as the exact string the creator configured. Receipt
	// verification is literal substring containment of "-<price>", so no
	// numeric normalization may happen between storage and matching.
	Price            string
	SubscriptionDays int
	GroupInviteLink  string
	Tier             Tier
	WelcomeText      string
	RulesText        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Days returns the configured subscription length, falling back to the
// default when the creator never set one.
func (c *CreatorConfig) Days() int {
	if c.SubscriptionDays <= 0 {
		return DefaultSubscriptionDays
	}
	return c.SubscriptionDays
}

func (c *CreatorConfig) IsPremium() bool {
	return c.Tier == TierPremium
}

type VipUser struct {
	TelegramID        int64
	CreatorID         string
	Username          string
	AgeConfirmed      bool
	RulesConfirmed    bool
	PaymentConfirmed  bool
	Status            MemberStatus
	ValidUntil        *time.Time
	LastScreenshotRef string
	SelfieRef         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CurrentStatus derives the effective status at the given time. Expiry is
// never written back eagerly; a membership past its valid_until date simply
// reads as expired.
func (u *VipUser) CurrentStatus(now time.Time) MemberStatus {
	if !u.PaymentConfirmed {
		return StatusStarted
	}
	if u.ValidUntil != nil && u.ValidUntil.Before(truncateToDay(now)) {
		return StatusExpired
	}
	return StatusActive
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ExtendValidUntil computes the expiry after a successful payment: days are
// added to the later of today and the current expiry, so renewing early never
// shortens the remaining access.
func ExtendValidUntil(current *time.Time, now time.Time, days int) time.Time {
	if days <= 0 {
		days = DefaultSubscriptionDays
	}
	base := truncateToDay(now)
	if current != nil && current.After(base) {
		base = truncateToDay(*current)
	}
	return base.AddDate(0, 0, days)
}

type VerificationAttempt struct {
	ID         string
	TelegramID int64
	CreatorID  string
	FileRef    string
	Outcome    string
	CreatedAt  time.Time
}

type CreatorDirectory interface {
	// ResolveStartToken maps a /start token to its creator, matching the
	// link slug first and the raw creator id second.
	ResolveStartToken(token string) (*CreatorConfig, error)
	GetCreator(creatorID string) (*CreatorConfig, error)
}

type MembershipStore interface {
	// UpsertStarted creates the membership row on first contact. Repeated
	// calls refresh the username only; confirmations are never reset.
	UpsertStarted(telegramID int64, username, creatorID string) (*VipUser, error)
	GetMember(telegramID int64, creatorID string) (*VipUser, error)
	// GetLatestMember returns the most recently touched membership of a
	// user, for routing events that carry no creator context after the
	// session pointer was lost.
	GetLatestMember(telegramID int64) (*VipUser, error)

	ConfirmAge(telegramID int64, creatorID string) error
	ConfirmRules(telegramID int64, creatorID string) error

	// ActivateOrExtend marks the payment confirmed and extends the
	// membership by the given number of days from max(today, valid_until).
	ActivateOrExtend(telegramID int64, creatorID string, days int, screenshotRef string) (*VipUser, error)
	SetSelfieRef(telegramID int64, creatorID, ref string) error

	ListExpiringOn(date time.Time) ([]VipUser, error)
	RecordVerification(attempt VerificationAttempt) error
}

func NormalizeUsername(username string) string {
	return strings.TrimSpace(strings.TrimPrefix(username, "@"))
}
