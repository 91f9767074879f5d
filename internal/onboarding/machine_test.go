package onboarding

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxentry/lux-entry-bot/internal/verification"
	"github.com/luxentry/lux-entry-bot/store"
	"github.com/luxentry/lux-entry-bot/types"
)

type fakeSessions struct {
	sessions map[int64]*types.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[int64]*types.Session{}}
}

func (f *fakeSessions) GetSession(telegramID int64) (*types.Session, error) {
	s, ok := f.sessions[telegramID]
	if !ok {
		return nil, errors.New("session not found")
	}
	return s, nil
}

func (f *fakeSessions) SaveSession(session *types.Session) error {
	f.sessions[session.TelegramID] = session
	return nil
}

func (f *fakeSessions) ClearSession(telegramID int64) error {
	delete(f.sessions, telegramID)
	return nil
}

type fakeCreators struct {
	configs map[string]*types.CreatorConfig
}

func (f *fakeCreators) GetCreator(creatorID string) (*types.CreatorConfig, error) {
	c, ok := f.configs[creatorID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeCreators) ResolveStartToken(token string) (*types.CreatorConfig, error) {
	for _, c := range f.configs {
		if c.StartLinkToken == token || c.CreatorID == token {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

type fakeMembers struct {
	now   time.Time
	users map[string]*types.VipUser
}

func newFakeMembers(now time.Time) *fakeMembers {
	return &fakeMembers{now: now, users: map[string]*types.VipUser{}}
}

func memberKey(telegramID int64, creatorID string) string {
	return fmt.Sprintf("%d:%s", telegramID, creatorID)
}

func (f *fakeMembers) UpsertStarted(telegramID int64, username, creatorID string) (*types.VipUser, error) {
	key := memberKey(telegramID, creatorID)
	if u, ok := f.users[key]; ok {
		u.Username = username
		return u, nil
	}
	u := &types.VipUser{TelegramID: telegramID, CreatorID: creatorID, Username: username, Status: types.StatusStarted}
	f.users[key] = u
	return u, nil
}

func (f *fakeMembers) GetMember(telegramID int64, creatorID string) (*types.VipUser, error) {
	u, ok := f.users[memberKey(telegramID, creatorID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeMembers) GetLatestMember(telegramID int64) (*types.VipUser, error) {
	for _, u := range f.users {
		if u.TelegramID == telegramID {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeMembers) ConfirmAge(telegramID int64, creatorID string) error {
	u, ok := f.users[memberKey(telegramID, creatorID)]
	if !ok {
		return store.ErrNotFound
	}
	u.AgeConfirmed = true
	return nil
}

func (f *fakeMembers) ConfirmRules(telegramID int64, creatorID string) error {
	u, ok := f.users[memberKey(telegramID, creatorID)]
	if !ok {
		return store.ErrNotFound
	}
	u.RulesConfirmed = true
	return nil
}

func (f *fakeMembers) ActivateOrExtend(telegramID int64, creatorID string, days int, screenshotRef string) (*types.VipUser, error) {
	u, ok := f.users[memberKey(telegramID, creatorID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	until := types.ExtendValidUntil(u.ValidUntil, f.now, days)
	u.PaymentConfirmed = true
	u.Status = types.StatusActive
	u.ValidUntil = &until
	u.LastScreenshotRef = screenshotRef
	return u, nil
}

func (f *fakeMembers) SetSelfieRef(telegramID int64, creatorID, ref string) error {
	u, ok := f.users[memberKey(telegramID, creatorID)]
	if !ok {
		return store.ErrNotFound
	}
	u.SelfieRef = ref
	return nil
}

func (f *fakeMembers) ListExpiringOn(date time.Time) ([]types.VipUser, error) {
	var out []types.VipUser
	for _, u := range f.users {
		if u.PaymentConfirmed && u.ValidUntil != nil && u.ValidUntil.Equal(date) {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeMembers) RecordVerification(attempt types.VerificationAttempt) error {
	return nil
}

type stubVerifier struct {
	result *verification.Result
	err    error
	calls  int
}

func (s *stubVerifier) Verify(ctx context.Context, telegramID int64, creatorID, fileID string) (*verification.Result, error) {
	s.calls++
	return s.result, s.err
}

type fakeFetcher struct{}

func (fakeFetcher) FetchFile(ctx context.Context, fileID string) ([]byte, string, error) {
	return []byte("png"), "files/" + fileID, nil
}

type fakeOCR struct {
	text string
}

func (f fakeOCR) ExtractText(ctx context.Context, image []byte) (string, error) {
	return f.text, nil
}

func lunaConfig(tier types.Tier) *types.CreatorConfig {
	return &types.CreatorConfig{
		CreatorID:        "luna-creator",
		StartLinkToken:   "luna",
		Price:            "10",
		PaymentRecipient: "luna@pay",
		SubscriptionDays: 7,
		GroupInviteLink:  "https://t.me/+vip",
		Tier:             tier,
		WelcomeText:      "Schön, dass du da bist!",
		RulesText:        "Keine Weitergabe von Inhalten.",
	}
}

func newTestMachine(now time.Time, tier types.Tier, verifier Verifier) (*Machine, *fakeMembers, *fakeSessions) {
	members := newFakeMembers(now)
	sessions := newFakeSessions()
	creators := &fakeCreators{configs: map[string]*types.CreatorConfig{"luna-creator": lunaConfig(tier)}}
	return NewMachine(members, creators, sessions, verifier), members, sessions
}

func TestStartUnknownToken(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	m, members, _ := newTestMachine(now, types.TierStandard, &stubVerifier{})

	replies, err := m.Start(context.Background(), 42, 42, "luna_fan", "Max", "/start nobody")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Ungültiger Model-Link")
	assert.Empty(t, members.users)
}

func TestStartCreatesMembershipAndAgeGate(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	m, members, sessions := newTestMachine(now, types.TierStandard, &stubVerifier{})

	replies, err := m.Start(context.Background(), 42, 42, "luna_fan", "Max", "/start luna")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Willkommen, Max")
	assert.Contains(t, replies[0].Text, "Schön, dass du da bist!")

	require.Len(t, replies[0].Buttons, 1)
	require.Len(t, replies[0].Buttons[0], 2)
	assert.Equal(t, "age_ok:luna-creator", replies[0].Buttons[0][0].Data)
	assert.Equal(t, "age_no:luna-creator", replies[0].Buttons[0][1].Data)

	member, err := members.GetMember(42, "luna-creator")
	require.NoError(t, err)
	assert.Equal(t, types.StatusStarted, member.Status)
	assert.False(t, member.AgeConfirmed)

	session, err := sessions.GetSession(42)
	require.NoError(t, err)
	assert.Equal(t, types.StateAwaitingAge, session.State)
	assert.Equal(t, "luna-creator", session.CreatorID)
}

func TestStartDoesNotResetConfirmations(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	m, members, _ := newTestMachine(now, types.TierStandard, &stubVerifier{})
	ctx := context.Background()

	_, err := m.Start(ctx, 42, 42, "luna_fan", "Max", "/start luna")
	require.NoError(t, err)
	_, err = m.Callback(ctx, 42, 42, "age_ok:luna-creator")
	require.NoError(t, err)

	_, err = m.Start(ctx, 42, 42, "luna_fan", "Max", "/start luna")
	require.NoError(t, err)

	member, err := members.GetMember(42, "luna-creator")
	require.NoError(t, err)
	assert.True(t, member.AgeConfirmed, "a repeated /start must not reset confirmations")
}

func TestAgeConfirmAdvancesToRules(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	m, members, sessions := newTestMachine(now, types.TierStandard, &stubVerifier{})
	ctx := context.Background()

	_, err := m.Start(ctx, 42, 42, "luna_fan", "Max", "/start luna")
	require.NoError(t, err)

	replies, err := m.Callback(ctx, 42, 42, "age_ok:luna-creator")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Gruppenregeln")
	assert.Contains(t, replies[0].Text, "Keine Weitergabe von Inhalten.")
	require.Len(t, replies[0].Buttons, 1)
	assert.Equal(t, "rules_ok:luna-creator", replies[0].Buttons[0][0].Data)
	assert.Equal(t, "rules_no:luna-creator", replies[0].Buttons[0][1].Data)

	member, err := members.GetMember(42, "luna-creator")
	require.NoError(t, err)
	assert.True(t, member.AgeConfirmed)

	session, err := sessions.GetSession(42)
	require.NoError(t, err)
	assert.Equal(t, types.StateAwaitingRules, session.State)
}

func TestAgeDenyRejectsAndAbsorbs(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	m, members, sessions := newTestMachine(now, types.TierStandard, &stubVerifier{})
	ctx := context.Background()

	_, err := m.Start(ctx, 42, 42, "luna_fan", "Max", "/start luna")
	require.NoError(t, err)

	replies, err := m.Callback(ctx, 42, 42, "age_no:luna-creator")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "über 18")

	session, err := sessions.GetSession(42)
	require.NoError(t, err)
	assert.Equal(t, types.StateRejected, session.State)

	// A late button press after the rejection changes nothing.
	replies, err = m.Callback(ctx, 42, 42, "age_ok:luna-creator")
	require.NoError(t, err)
	assert.Empty(t, replies)

	member, err := members.GetMember(42, "luna-creator")
	require.NoError(t, err)
	assert.False(t, member.AgeConfirmed)
}

func TestRulesAcceptShowsPaymentInstructions(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	m, members, _ := newTestMachine(now, types.TierStandard, &stubVerifier{})
	ctx := context.Background()

	_, err := m.Start(ctx, 42, 42, "luna_fan", "Max", "/start luna")
	require.NoError(t, err)
	_, err = m.Callback(ctx, 42, 42, "age_ok:luna-creator")
	require.NoError(t, err)

	replies, err := m.Callback(ctx, 42, 42, "rules_ok:luna-creator")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "-10 €")
	assert.Contains(t, replies[0].Text, "luna@pay")
	assert.Contains(t, replies[0].Text, "Geld gesendet")

	member, err := members.GetMember(42, "luna-creator")
	require.NoError(t, err)
	assert.True(t, member.RulesConfirmed)
}

func TestRulesDeclineRejects(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	m, _, sessions := newTestMachine(now, types.TierStandard, &stubVerifier{})
	ctx := context.Background()

	_, err := m.Start(ctx, 42, 42, "luna_fan", "Max", "/start luna")
	require.NoError(t, err)
	_, err = m.Callback(ctx, 42, 42, "age_ok:luna-creator")
	require.NoError(t, err)

	replies, err := m.Callback(ctx, 42, 42, "rules_no:luna-creator")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "kein Zugang")

	session, err := sessions.GetSession(42)
	require.NoError(t, err)
	assert.Equal(t, types.StateRejected, session.State)
}

func TestCallbackWithoutMembership(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	m, _, _ := newTestMachine(now, types.TierStandard, &stubVerifier{})

	replies, err := m.Callback(context.Background(), 42, 42, "age_ok:luna-creator")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Zugangslink")
}

func TestPhotoWithoutAnyContext(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	verifier := &stubVerifier{}
	m, _, _ := newTestMachine(now, types.TierStandard, verifier)

	replies, err := m.Photo(context.Background(), 42, 42, "file-1")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Zugangslink")
	assert.Zero(t, verifier.calls)
}

func TestPhotoBeforeGatesIsIgnored(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	verifier := &stubVerifier{}
	m, _, _ := newTestMachine(now, types.TierStandard, verifier)
	ctx := context.Background()

	_, err := m.Start(ctx, 42, 42, "luna_fan", "Max", "/start luna")
	require.NoError(t, err)

	replies, err := m.Photo(ctx, 42, 42, "file-1")
	require.NoError(t, err)
	assert.Empty(t, replies)
	assert.Zero(t, verifier.calls)
}

func TestPhotoRoutingAfterSessionLoss(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	verifier := &stubVerifier{result: &verification.Result{
		Outcome: verification.OutcomeAccepted,
		Creator: lunaConfig(types.TierStandard),
	}}
	m, members, sessions := newTestMachine(now, types.TierStandard, verifier)
	ctx := context.Background()

	_, err := m.Start(ctx, 42, 42, "luna_fan", "Max", "/start luna")
	require.NoError(t, err)
	_, err = m.Callback(ctx, 42, 42, "age_ok:luna-creator")
	require.NoError(t, err)
	_, err = m.Callback(ctx, 42, 42, "rules_ok:luna-creator")
	require.NoError(t, err)

	// Session expired; step is re-derived from the persisted confirmations.
	require.NoError(t, sessions.ClearSession(42))

	replies, err := m.Photo(ctx, 42, 42, "file-1")
	require.NoError(t, err)
	require.NotEmpty(t, replies)
	assert.Equal(t, 1, verifier.calls)

	member, err := members.GetMember(42, "luna-creator")
	require.NoError(t, err)
	assert.True(t, member.AgeConfirmed)
	assert.True(t, member.RulesConfirmed)
}

func TestPhotoVerifierErrorReportsFailure(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	verifier := &stubVerifier{err: errors.New("vision down")}
	m, _, _ := newTestMachine(now, types.TierStandard, verifier)
	ctx := context.Background()

	_, err := m.Start(ctx, 42, 42, "luna_fan", "Max", "/start luna")
	require.NoError(t, err)
	_, err = m.Callback(ctx, 42, 42, "age_ok:luna-creator")
	require.NoError(t, err)
	_, err = m.Callback(ctx, 42, 42, "rules_ok:luna-creator")
	require.NoError(t, err)

	replies, err := m.Photo(ctx, 42, 42, "file-1")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Fehler beim Verarbeiten")
}

func TestPremiumFlowRequiresSelfie(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	members := newFakeMembers(now)
	sessions := newFakeSessions()
	creators := &fakeCreators{configs: map[string]*types.CreatorConfig{"luna-creator": lunaConfig(types.TierPremium)}}
	verifier := &stubVerifier{result: &verification.Result{
		Outcome: verification.OutcomeAccepted,
		Creator: lunaConfig(types.TierPremium),
	}}
	m := NewMachine(members, creators, sessions, verifier)
	ctx := context.Background()

	_, err := m.Start(ctx, 42, 42, "luna_fan", "Max", "/start luna")
	require.NoError(t, err)
	_, err = m.Callback(ctx, 42, 42, "age_ok:luna-creator")
	require.NoError(t, err)
	_, err = m.Callback(ctx, 42, 42, "rules_ok:luna-creator")
	require.NoError(t, err)

	replies, err := m.Photo(ctx, 42, 42, "receipt-file")
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0].Text, "Zahlung")
	assert.Contains(t, replies[1].Text, "Selfie")

	session, err := sessions.GetSession(42)
	require.NoError(t, err)
	require.Equal(t, types.StateAwaitingSelfie, session.State)

	// The link is only released once the selfie arrives.
	replies, err = m.Photo(ctx, 42, 42, "selfie-file")
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0].Text, "Selfie erhalten")
	assert.Contains(t, replies[1].Text, "https://t.me/+vip")

	member, err := members.GetMember(42, "luna-creator")
	require.NoError(t, err)
	assert.Equal(t, "selfie-file", member.SelfieRef)

	session, err = sessions.GetSession(42)
	require.NoError(t, err)
	assert.Equal(t, types.StateVerified, session.State)
}

func TestFullOnboardingFlow(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	members := newFakeMembers(now)
	sessions := newFakeSessions()
	creators := &fakeCreators{configs: map[string]*types.CreatorConfig{"luna-creator": lunaConfig(types.TierStandard)}}

	receiptText := `Geld gesendet
Juli 11, 10:12 AM
Freunde und Familie
-10 €
luna@pay
1WC88058A3980530G`

	workflow := verification.NewWorkflow(fakeFetcher{}, fakeOCR{text: receiptText}, members, creators)
	m := NewMachine(members, creators, sessions, workflow)
	ctx := context.Background()

	_, err := m.Start(ctx, 42, 42, "luna_fan", "Max", "/start luna")
	require.NoError(t, err)
	_, err = m.Callback(ctx, 42, 42, "age_ok:luna-creator")
	require.NoError(t, err)
	_, err = m.Callback(ctx, 42, 42, "rules_ok:luna-creator")
	require.NoError(t, err)

	replies, err := m.Photo(ctx, 42, 42, "receipt.jpg")
	require.NoError(t, err)
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0].Text, "Zahlung")
	assert.Contains(t, replies[1].Text, "https://t.me/+vip")

	member, err := members.GetMember(42, "luna-creator")
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, member.Status)
	require.NotNil(t, member.ValidUntil)
	assert.Equal(t, time.Date(2026, time.July, 17, 0, 0, 0, 0, time.UTC), *member.ValidUntil)
}

func TestFullFlowRejectsIncompleteReceipt(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	members := newFakeMembers(now)
	sessions := newFakeSessions()
	creators := &fakeCreators{configs: map[string]*types.CreatorConfig{"luna-creator": lunaConfig(types.TierStandard)}}

	receiptText := `Geld gesendet
Juli 11, 10:12 AM
-10 €
luna@pay
1WC88058A3980530G`

	workflow := verification.NewWorkflow(fakeFetcher{}, fakeOCR{text: receiptText}, members, creators)
	m := NewMachine(members, creators, sessions, workflow)
	ctx := context.Background()

	_, err := m.Start(ctx, 42, 42, "luna_fan", "Max", "/start luna")
	require.NoError(t, err)
	_, err = m.Callback(ctx, 42, 42, "age_ok:luna-creator")
	require.NoError(t, err)
	_, err = m.Callback(ctx, 42, 42, "rules_ok:luna-creator")
	require.NoError(t, err)

	replies, err := m.Photo(ctx, 42, 42, "receipt.jpg")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Screenshot ungültig")
	assert.Contains(t, replies[0].Text, "Freunde und Familie")

	member, err := members.GetMember(42, "luna-creator")
	require.NoError(t, err)
	assert.False(t, member.PaymentConfirmed)
}

func TestTextRouting(t *testing.T) {
	now := time.Date(2026, time.July, 10, 12, 0, 0, 0, time.UTC)
	m, _, _ := newTestMachine(now, types.TierStandard, &stubVerifier{})
	ctx := context.Background()

	replies, err := m.Text(ctx, 42, 42, "hallo?")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Zugangslink")

	_, err = m.Start(ctx, 42, 42, "luna_fan", "Max", "/start luna")
	require.NoError(t, err)

	replies, err = m.Text(ctx, 42, 42, "hallo?")
	require.NoError(t, err)
	assert.Empty(t, replies, "mid-flow chatter is ignored")
}

func TestParseStartToken(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"/start luna", "luna"},
		{"/start=luna", "luna"},
		{"/start  luna ", "luna"},
		{"/start", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStartToken(tt.text))
		})
	}
}

func TestParseCallbackData(t *testing.T) {
	action, creatorID, err := ParseCallbackData("age_ok:luna-creator")
	require.NoError(t, err)
	assert.Equal(t, "age_ok", action)
	assert.Equal(t, "luna-creator", creatorID)

	for _, data := range []string{"", "age_ok", "age_ok:", ":luna-creator"} {
		_, _, err := ParseCallbackData(data)
		assert.Error(t, err, "data %q", data)
	}
}

func TestInferStep(t *testing.T) {
	tests := []struct {
		name   string
		member *types.VipUser
		want   types.ChatState
	}{
		{"no membership", nil, types.StateAwaitingLink},
		{"fresh start", &types.VipUser{}, types.StateAwaitingAge},
		{"age confirmed", &types.VipUser{AgeConfirmed: true}, types.StateAwaitingRules},
		{"both gates passed", &types.VipUser{AgeConfirmed: true, RulesConfirmed: true}, types.StateAwaitingPayment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferStep(tt.member))
		})
	}
}

func TestCallbackDataRoundTrip(t *testing.T) {
	action, creatorID, err := ParseCallbackData(CallbackData(ActionRulesAccept, "luna-creator"))
	require.NoError(t, err)
	assert.Equal(t, ActionRulesAccept, action)
	assert.Equal(t, "luna-creator", creatorID)
}
