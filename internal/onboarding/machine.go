package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/luxentry/lux-entry-bot/internal/messages"
	"github.com/luxentry/lux-entry-bot/internal/verification"
	"github.com/luxentry/lux-entry-bot/store"
	"github.com/luxentry/lux-entry-bot/types"
)

// Verifier runs a submitted screenshot through the payment verification
// workflow.
type Verifier interface {
	Verify(ctx context.Context, telegramID int64, creatorID, fileID string) (*verification.Result, error)
}

// Reply is one outbound message the machine wants sent, transport-agnostic.
type Reply struct {
	Text    string
	Buttons [][]Button
}

type Button struct {
	Text string
	Data string
}

const (
	ActionAgeConfirm   = "age_ok"
	ActionAgeDeny      = "age_no"
	ActionRulesAccept  = "rules_ok"
	ActionRulesDecline = "rules_no"
)

// Machine drives a user through link validation, the age and rules gates and
// payment proof. Confirmations are persisted immediately; the session only
// carries the in-flight step, re-derived from the persisted flags when lost.
type Machine struct {
	members  types.MembershipStore
	creators types.CreatorDirectory
	sessions types.SessionStore
	verifier Verifier
}

func NewMachine(members types.MembershipStore, creators types.CreatorDirectory, sessions types.SessionStore, verifier Verifier) *Machine {
	return &Machine{
		members:  members,
		creators: creators,
		sessions: sessions,
		verifier: verifier,
	}
}

// CallbackData builds the inline button payload. The creator id rides along
// so gate state stays scoped to the (user, creator) pair.
func CallbackData(action, creatorID string) string {
	return action + ":" + creatorID
}

func ParseCallbackData(data string) (action, creatorID string, err error) {
	parts := strings.SplitN(strings.TrimSpace(data), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid callback data: %q", data)
	}
	return parts[0], parts[1], nil
}

// ParseStartToken extracts the creator token from a /start command, accepting
// both the deep-link form "/start luna" and the legacy "/start=luna".
func ParseStartToken(text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return ""
	}
	token := ""
	if i := strings.Index(fields[0], "="); i >= 0 {
		token = fields[0][i+1:]
	} else if len(fields) > 1 {
		token = fields[1]
	}
	return strings.TrimSpace(strings.TrimPrefix(token, "="))
}

// InferStep derives the current onboarding step from the persisted
// confirmations, used when no live session exists.
func InferStep(member *types.VipUser) types.ChatState {
	switch {
	case member == nil:
		return types.StateAwaitingLink
	case !member.AgeConfirmed:
		return types.StateAwaitingAge
	case !member.RulesConfirmed:
		return types.StateAwaitingRules
	default:
		return types.StateAwaitingPayment
	}
}

func (m *Machine) Start(ctx context.Context, telegramID, chatID int64, username, firstName, commandText string) ([]Reply, error) {
	token := ParseStartToken(commandText)
	creator, err := m.creators.ResolveStartToken(token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return []Reply{{Text: messages.InvalidLink()}}, nil
		}
		return nil, err
	}

	if _, err := m.members.UpsertStarted(telegramID, username, creator.CreatorID); err != nil {
		return nil, err
	}
	m.saveSession(telegramID, chatID, creator.CreatorID, types.StateAwaitingAge)

	return []Reply{{
		Text: messages.Welcome(firstName, creator.WelcomeText),
		Buttons: [][]Button{{
			{Text: messages.BtnAgeConfirm(), Data: CallbackData(ActionAgeConfirm, creator.CreatorID)},
			{Text: messages.BtnAgeDeny(), Data: CallbackData(ActionAgeDeny, creator.CreatorID)},
		}},
	}}, nil
}

func (m *Machine) Callback(ctx context.Context, telegramID, chatID int64, data string) ([]Reply, error) {
	action, creatorID, err := ParseCallbackData(data)
	if err != nil {
		return nil, nil
	}

	// A rejected session absorbs everything until the next /start.
	if session, err := m.sessions.GetSession(telegramID); err == nil &&
		session.State == types.StateRejected && session.CreatorID == creatorID {
		return nil, nil
	}

	switch action {
	case ActionAgeConfirm:
		if err := m.members.ConfirmAge(telegramID, creatorID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return []Reply{{Text: messages.UseStartLink()}}, nil
			}
			return nil, err
		}
		creator, err := m.creators.GetCreator(creatorID)
		if err != nil {
			return nil, err
		}
		m.saveSession(telegramID, chatID, creatorID, types.StateAwaitingRules)
		return []Reply{{
			Text: messages.RulesPrompt(creator.RulesText),
			Buttons: [][]Button{{
				{Text: messages.BtnRulesAccept(), Data: CallbackData(ActionRulesAccept, creatorID)},
				{Text: messages.BtnRulesDecline(), Data: CallbackData(ActionRulesDecline, creatorID)},
			}},
		}}, nil

	case ActionAgeDeny:
		m.saveSession(telegramID, chatID, creatorID, types.StateRejected)
		return []Reply{{Text: messages.AgeRejected()}}, nil

	case ActionRulesAccept:
		if err := m.members.ConfirmRules(telegramID, creatorID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return []Reply{{Text: messages.UseStartLink()}}, nil
			}
			return nil, err
		}
		creator, err := m.creators.GetCreator(creatorID)
		if err != nil {
			return nil, err
		}
		m.saveSession(telegramID, chatID, creatorID, types.StateAwaitingPayment)
		return []Reply{{Text: messages.PaymentInstructions(creator.Price, creator.PaymentRecipient)}}, nil

	case ActionRulesDecline:
		m.saveSession(telegramID, chatID, creatorID, types.StateRejected)
		return []Reply{{Text: messages.RulesRejected()}}, nil
	}

	return nil, nil
}

func (m *Machine) Photo(ctx context.Context, telegramID, chatID int64, fileID string) ([]Reply, error) {
	creatorID, state, err := m.photoContext(telegramID)
	if err != nil {
		return nil, err
	}
	if creatorID == "" {
		return []Reply{{Text: messages.UseStartLink()}}, nil
	}

	switch state {
	case types.StateRejected, types.StateAwaitingAge, types.StateAwaitingRules:
		// Screenshots only count once the gates are passed.
		return nil, nil
	case types.StateAwaitingSelfie:
		return m.acceptSelfie(telegramID, chatID, creatorID, fileID)
	}

	// AwaitingPayment, and Verified for renewals.
	result, err := m.verifier.Verify(ctx, telegramID, creatorID, fileID)
	if err != nil {
		log.Printf("Verification failed user=%d creator=%s: %v", telegramID, creatorID, err)
		return []Reply{{Text: messages.ProcessingFailed()}}, nil
	}

	switch result.Outcome {
	case verification.OutcomeNoText:
		return []Reply{{Text: messages.NoTextDetected()}}, nil
	case verification.OutcomeRejected:
		return []Reply{{Text: messages.ScreenshotInvalid(result.Creator.Price, result.Creator.PaymentRecipient, result.Missing)}}, nil
	}

	replies := []Reply{{Text: messages.PaymentAccepted(result.Creator.Price, result.Creator.PaymentRecipient)}}
	if result.Creator.IsPremium() {
		m.saveSession(telegramID, chatID, creatorID, types.StateAwaitingSelfie)
		return append(replies, Reply{Text: messages.SelfieRequest()}), nil
	}
	m.saveSession(telegramID, chatID, creatorID, types.StateVerified)
	return append(replies, Reply{Text: messages.GroupAccess(result.Creator.GroupInviteLink)}), nil
}

func (m *Machine) acceptSelfie(telegramID, chatID int64, creatorID, fileID string) ([]Reply, error) {
	// Stored for the creator's records only; nothing evaluates it.
	if err := m.members.SetSelfieRef(telegramID, creatorID, fileID); err != nil {
		return nil, err
	}
	creator, err := m.creators.GetCreator(creatorID)
	if err != nil {
		return nil, err
	}
	m.saveSession(telegramID, chatID, creatorID, types.StateVerified)
	return []Reply{
		{Text: messages.SelfieReceived()},
		{Text: messages.GroupAccess(creator.GroupInviteLink)},
	}, nil
}

func (m *Machine) Text(ctx context.Context, telegramID, chatID int64, text string) ([]Reply, error) {
	// Non-photo input mid-flow is deliberately ignored; only users the
	// system has never seen get pointed at their access link.
	if _, err := m.sessions.GetSession(telegramID); err == nil {
		return nil, nil
	}
	if _, err := m.members.GetLatestMember(telegramID); err == nil {
		return nil, nil
	}
	return []Reply{{Text: messages.UseStartLink()}}, nil
}

func (m *Machine) photoContext(telegramID int64) (string, types.ChatState, error) {
	if session, err := m.sessions.GetSession(telegramID); err == nil && session.CreatorID != "" {
		return session.CreatorID, session.State, nil
	}

	member, err := m.members.GetLatestMember(telegramID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", "", nil
		}
		return "", "", err
	}
	return member.CreatorID, InferStep(member), nil
}

func (m *Machine) saveSession(telegramID, chatID int64, creatorID string, state types.ChatState) {
	err := m.sessions.SaveSession(&types.Session{
		TelegramID: telegramID,
		ChatID:     chatID,
		CreatorID:  creatorID,
		State:      state,
	})
	if err != nil {
		log.Printf("Error saving session for user %d: %v", telegramID, err)
	}
}
