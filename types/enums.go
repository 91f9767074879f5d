package types

type ChatState string

const (
	StateAwaitingLink    ChatState = "awaiting_link"
	StateAwaitingAge     ChatState = "awaiting_age"
	StateAwaitingRules   ChatState = "awaiting_rules"
	StateAwaitingPayment ChatState = "awaiting_payment"
	StateAwaitingSelfie  ChatState = "awaiting_selfie"
	StateVerified        ChatState = "verified"
	StateRejected        ChatState = "rejected"
)

type MemberStatus string

const (
	StatusStarted MemberStatus = "started"
	StatusActive  MemberStatus = "active"
	StatusExpired MemberStatus = "expired"
)

type Tier string

const (
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

const DefaultSubscriptionDays = 7
