package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/luxentry/lux-entry-bot/types"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

var ErrNotFound = errors.New("not found")

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = buildPostgresDSNFromEnv()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{pool: pool}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func buildPostgresDSNFromEnv() string {
	host := strings.TrimSpace(os.Getenv("POSTGRES_HOST"))
	if host == "" {
		host = "localhost"
	}
	port := strings.TrimSpace(os.Getenv("POSTGRES_PORT"))
	if port == "" {
		port = "5432"
	}
	db := strings.TrimSpace(os.Getenv("POSTGRES_DB"))
	if db == "" {
		db = "lux_entry"
	}
	user := strings.TrimSpace(os.Getenv("POSTGRES_USER"))
	if user == "" {
		user = "lux_entry"
	}
	pass := os.Getenv("POSTGRES_PASSWORD")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", urlEscape(user), urlEscape(pass), host, port, db)
}

func urlEscape(s string) string {
	r := strings.NewReplacer(
		"%", "%25",
		":", "%3A",
		"/", "%2F",
		"@", "%40",
		"?", "%3F",
		"#", "%23",
		"[", "%5B",
		"]", "%5D",
	)
	return r.Replace(s)
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDB(*s.pool.Config().ConnConfig)
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

func (s *PostgresStore) ResolveStartToken(token string) (*types.CreatorConfig, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := scanCreator(s.pool.QueryRow(ctx, `
SELECT creator_id, start_link_token, payment_recipient, price, subscription_days, group_invite_link, tier, welcome_text, rules_text, created_at, updated_at
FROM creator_config
WHERE start_link_token = $1 OR creator_id = $1
ORDER BY (start_link_token = $1) DESC
LIMIT 1
`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *PostgresStore) GetCreator(creatorID string) (*types.CreatorConfig, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := scanCreator(s.pool.QueryRow(ctx, `
SELECT creator_id, start_link_token, payment_recipient, price, subscription_days, group_invite_link, tier, welcome_text, rules_text, created_at, updated_at
FROM creator_config
WHERE creator_id = $1
`, creatorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func scanCreator(row pgx.Row) (*types.CreatorConfig, error) {
	var c types.CreatorConfig
	var token, link, welcome, rules *string
	var days *int
	err := row.Scan(&c.CreatorID, &token, &c.PaymentRecipient, &c.Price, &days, &link, &c.Tier, &welcome, &rules, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if token != nil {
		c.StartLinkToken = *token
	}
	if days != nil {
		c.SubscriptionDays = *days
	}
	if link != nil {
		c.GroupInviteLink = *link
	}
	if welcome != nil {
		c.WelcomeText = *welcome
	}
	if rules != nil {
		c.RulesText = *rules
	}
	if c.Tier == "" {
		c.Tier = types.TierStandard
	}
	return &c, nil
}

func (s *PostgresStore) UpsertStarted(telegramID int64, username, creatorID string) (*types.VipUser, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	row := s.pool.QueryRow(ctx, `
INSERT INTO vip_users (telegram_id, creator_id, username, status)
VALUES ($1, $2, $3, 'started')
ON CONFLICT (telegram_id, creator_id) DO UPDATE SET
  username = EXCLUDED.username,
  updated_at = NOW()
RETURNING telegram_id, creator_id, username, age_confirmed, rules_confirmed, payment_confirmed, status, valid_until, last_screenshot_ref, selfie_ref, created_at, updated_at;
`, telegramID, creatorID, types.NormalizeUsername(username))
	return scanVipUser(row)
}

func (s *PostgresStore) GetMember(telegramID int64, creatorID string) (*types.VipUser, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	u, err := scanVipUser(s.pool.QueryRow(ctx, `
SELECT telegram_id, creator_id, username, age_confirmed, rules_confirmed, payment_confirmed, status, valid_until, last_screenshot_ref, selfie_ref, created_at, updated_at
FROM vip_users
WHERE telegram_id = $1 AND creator_id = $2
`, telegramID, creatorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *PostgresStore) GetLatestMember(telegramID int64) (*types.VipUser, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	u, err := scanVipUser(s.pool.QueryRow(ctx, `
SELECT telegram_id, creator_id, username, age_confirmed, rules_confirmed, payment_confirmed, status, valid_until, last_screenshot_ref, selfie_ref, created_at, updated_at
FROM vip_users
WHERE telegram_id = $1
ORDER BY updated_at DESC
LIMIT 1
`, telegramID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func scanVipUser(row pgx.Row) (*types.VipUser, error) {
	var u types.VipUser
	var screenshot, selfie *string
	err := row.Scan(&u.TelegramID, &u.CreatorID, &u.Username, &u.AgeConfirmed, &u.RulesConfirmed, &u.PaymentConfirmed, &u.Status, &u.ValidUntil, &screenshot, &selfie, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if screenshot != nil {
		u.LastScreenshotRef = *screenshot
	}
	if selfie != nil {
		u.SelfieRef = *selfie
	}
	return &u, nil
}

func (s *PostgresStore) ConfirmAge(telegramID int64, creatorID string) error {
	return s.setFlag(telegramID, creatorID, "age_confirmed")
}

func (s *PostgresStore) ConfirmRules(telegramID int64, creatorID string) error {
	return s.setFlag(telegramID, creatorID, "rules_confirmed")
}

func (s *PostgresStore) setFlag(telegramID int64, creatorID, column string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
UPDATE vip_users
SET %s = TRUE, updated_at = NOW()
WHERE telegram_id = $1 AND creator_id = $2
`, column), telegramID, creatorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ActivateOrExtend(telegramID int64, creatorID string, days int, screenshotRef string) (*types.VipUser, error) {
	if days <= 0 {
		days = types.DefaultSubscriptionDays
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var currentUntil *time.Time
	err = tx.QueryRow(ctx, `
SELECT valid_until
FROM vip_users
WHERE telegram_id = $1 AND creator_id = $2
FOR UPDATE
`, telegramID, creatorID).Scan(&currentUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	newUntil := types.ExtendValidUntil(currentUntil, time.Now(), days)

	row := tx.QueryRow(ctx, `
UPDATE vip_users
SET payment_confirmed = TRUE,
    status = 'active',
    valid_until = $3,
    last_screenshot_ref = $4,
    updated_at = NOW()
WHERE telegram_id = $1 AND creator_id = $2
RETURNING telegram_id, creator_id, username, age_confirmed, rules_confirmed, payment_confirmed, status, valid_until, last_screenshot_ref, selfie_ref, created_at, updated_at;
`, telegramID, creatorID, newUntil, strings.TrimSpace(screenshotRef))
	u, err := scanVipUser(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *PostgresStore) SetSelfieRef(telegramID int64, creatorID, ref string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
UPDATE vip_users
SET selfie_ref = $3, updated_at = NOW()
WHERE telegram_id = $1 AND creator_id = $2
`, telegramID, creatorID, strings.TrimSpace(ref))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListExpiringOn(date time.Time) ([]types.VipUser, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
SELECT telegram_id, creator_id, username, age_confirmed, rules_confirmed, payment_confirmed, status, valid_until, last_screenshot_ref, selfie_ref, created_at, updated_at
FROM vip_users
WHERE payment_confirmed AND valid_until = $1
`, dateOnly(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []types.VipUser
	for rows.Next() {
		u, err := scanVipUser(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *u)
	}
	return members, rows.Err()
}

func (s *PostgresStore) RecordVerification(attempt types.VerificationAttempt) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO verification_attempts (id, telegram_id, creator_id, file_ref, outcome)
VALUES ($1, $2, $3, $4, $5)
`, attempt.ID, attempt.TelegramID, attempt.CreatorID, strings.TrimSpace(attempt.FileRef), strings.TrimSpace(attempt.Outcome))
	return err
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
