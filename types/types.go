package types

import "time"

// Session is the in-flight step pointer for one chat. It only routes the next
// inbound message; every durable fact lives in VipUser, so losing a session
// costs at most the current step, which is re-derived from the confirmations.
type Session struct {
	TelegramID int64     `json:"telegram_id"`
	ChatID     int64     `json:"chat_id"`
	CreatorID  string    `json:"creator_id"`
	State      ChatState `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type SessionStore interface {
	GetSession(telegramID int64) (*Session, error)
	SaveSession(session *Session) error
	ClearSession(telegramID int64) error
}
