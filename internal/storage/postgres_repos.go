package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/access"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/invitation"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/onboarding"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/stage"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/user"
)

type userRepo struct {
	db *sql.DB
}

func (r *userRepo) Create(ctx context.Context, u user.User) error {
	if u.ID == "" || u.Email == "" || u.CreatedAt.IsZero() {
		return fmt.Errorf("user id, email, and created_at are required")
	}

	var passwordHash any
	if u.PasswordHash != "" {
		passwordHash = u.PasswordHash
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`, u.ID, u.Email, passwordHash, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id user.ID) (user.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, email, password_hash, created_at
		FROM users WHERE id = $1`, id)
	return scanUser(row, "select user by id")
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, email, password_hash, created_at
		FROM users WHERE email = $1`, email)
	return scanUser(row, "select user by email")
}

func (r *userRepo) SetPasswordHash(ctx context.Context, id user.ID, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return expectOne(res, user.ErrNotFound)
}

func scanUser(row *sql.Row, op string) (user.User, error) {
	var u user.User
	var passwordHash sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &passwordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, fmt.Errorf("%s: %w", op, err)
	}
	if passwordHash.Valid {
		u.PasswordHash = passwordHash.String
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

// invitationRepo serves both the token and the delivery repositories.
type invitationRepo struct {
	db *sql.DB
}

const tokenColumns = `id, token_hash, user_id, application_id, expires_at, used_at, created_at`

func (r *invitationRepo) Create(ctx context.Context, tok invitation.Token) error {
	if tok.ID == "" || len(tok.TokenHash) == 0 || tok.UserID == "" || tok.ExpiresAt.IsZero() {
		return fmt.Errorf("token id, hash, user_id, and expires_at are required")
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO invitation_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tok.ID, tok.TokenHash, tok.UserID, stringArg(tok.ApplicationID), tok.ExpiresAt, timeArg(tok.UsedAt), tok.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert invitation token: %w", err)
	}
	return nil
}

func (r *invitationRepo) GetByHash(ctx context.Context, hash []byte) (invitation.Token, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM invitation_tokens WHERE token_hash = $1`, hash)
	return scanToken(row, "select invitation by hash")
}

func (r *invitationRepo) GetByID(ctx context.Context, id string) (invitation.Token, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM invitation_tokens WHERE id = $1`, id)
	return scanToken(row, "select invitation by id")
}

func (r *invitationRepo) MarkUsed(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE invitation_tokens SET used_at = $2
		WHERE id = $1 AND used_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("mark invitation used: %w", err)
	}
	return expectOne(res, invitation.ErrConflict)
}

func scanToken(row *sql.Row, op string) (invitation.Token, error) {
	var tok invitation.Token
	var app sql.NullString
	var usedAt sql.NullTime
	if err := row.Scan(&tok.ID, &tok.TokenHash, &tok.UserID, &app, &tok.ExpiresAt, &usedAt, &tok.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invitation.Token{}, invitation.ErrNotFound
		}
		return invitation.Token{}, fmt.Errorf("%s: %w", op, err)
	}
	if app.Valid {
		tok.ApplicationID = &app.String
	}
	tok.ExpiresAt = tok.ExpiresAt.UTC()
	tok.CreatedAt = tok.CreatedAt.UTC()
	tok.UsedAt = nullTimePtr(usedAt)
	return tok, nil
}

func (r *invitationRepo) CreateDelivery(ctx context.Context, d invitation.Delivery) error {
	if d.TokenID == "" || d.UserID == "" || d.Status == "" {
		return fmt.Errorf("delivery token_id, user_id, and status are required")
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO invitation_emails (token_id, user_id, status, sent_at, link_clicked_at, link_used_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.TokenID, d.UserID, string(d.Status), timeArg(d.SentAt), timeArg(d.LinkClickedAt), timeArg(d.LinkUsedAt))
	if err != nil {
		return fmt.Errorf("insert invitation email: %w", err)
	}
	return nil
}

func (r *invitationRepo) GetDelivery(ctx context.Context, tokenID string) (invitation.Delivery, error) {
	row := r.db.QueryRowContext(ctx, `SELECT token_id, user_id, status, sent_at, link_clicked_at, link_used_at
		FROM invitation_emails WHERE token_id = $1`, tokenID)
	var d invitation.Delivery
	var status string
	var sentAt, clickedAt, usedAt sql.NullTime
	if err := row.Scan(&d.TokenID, &d.UserID, &status, &sentAt, &clickedAt, &usedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invitation.Delivery{}, invitation.ErrNotFound
		}
		return invitation.Delivery{}, fmt.Errorf("select invitation email: %w", err)
	}
	d.Status = invitation.DeliveryStatus(status)
	d.SentAt = nullTimePtr(sentAt)
	d.LinkClickedAt = nullTimePtr(clickedAt)
	d.LinkUsedAt = nullTimePtr(usedAt)
	return d, nil
}

func (r *invitationRepo) SetDeliveryStatus(ctx context.Context, tokenID string, status invitation.DeliveryStatus, at time.Time) error {
	var sentAt any
	if status == invitation.DeliverySent {
		sentAt = at
	}
	res, err := r.db.ExecContext(ctx, `UPDATE invitation_emails
		SET status = $2, sent_at = COALESCE(sent_at, $3)
		WHERE token_id = $1`, tokenID, string(status), sentAt)
	if err != nil {
		return fmt.Errorf("update invitation email status: %w", err)
	}
	return expectOne(res, invitation.ErrNotFound)
}

func (r *invitationRepo) MarkLinkClicked(ctx context.Context, tokenID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE invitation_emails
		SET link_clicked_at = COALESCE(link_clicked_at, $2)
		WHERE token_id = $1`, tokenID, at)
	if err != nil {
		return fmt.Errorf("mark link clicked: %w", err)
	}
	return expectOne(res, invitation.ErrNotFound)
}

func (r *invitationRepo) MarkLinkUsed(ctx context.Context, tokenID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE invitation_emails
		SET link_clicked_at = COALESCE(link_clicked_at, $2), link_used_at = COALESCE(link_used_at, $2)
		WHERE token_id = $1`, tokenID, at)
	if err != nil {
		return fmt.Errorf("mark link used: %w", err)
	}
	return expectOne(res, invitation.ErrNotFound)
}

type creatorRepo struct {
	db *sql.DB
}

func (r *creatorRepo) Get(ctx context.Context, id user.ID) (access.Creator, error) {
	row := r.db.QueryRowContext(ctx, `SELECT user_id, has_early_grant, meeting_booked, meeting_completed,
		meeting_status, meeting_date, updated_at
		FROM creators WHERE user_id = $1`, id)
	var c access.Creator
	var status string
	var date sql.NullTime
	if err := row.Scan(&c.UserID, &c.HasEarlyGrant, &c.MeetingBooked, &c.MeetingCompleted, &status, &date, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return access.Creator{}, access.ErrNotFound
		}
		return access.Creator{}, fmt.Errorf("select creator: %w", err)
	}
	c.MeetingStatus = access.MeetingStatus(status)
	c.MeetingDate = nullTimePtr(date)
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

// Save upserts the facts. The three flags are OR-ed with what is stored so
// a concurrent writer holding stale facts cannot clear one.
func (r *creatorRepo) Save(ctx context.Context, c access.Creator) error {
	if c.UserID == "" || c.UpdatedAt.IsZero() {
		return fmt.Errorf("creator user_id and updated_at are required")
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO creators (user_id, has_early_grant, meeting_booked, meeting_completed,
		meeting_status, meeting_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			has_early_grant = creators.has_early_grant OR EXCLUDED.has_early_grant,
			meeting_booked = creators.meeting_booked OR EXCLUDED.meeting_booked,
			meeting_completed = creators.meeting_completed OR EXCLUDED.meeting_completed,
			meeting_status = EXCLUDED.meeting_status,
			meeting_date = EXCLUDED.meeting_date,
			updated_at = EXCLUDED.updated_at`,
		c.UserID, c.HasEarlyGrant, c.MeetingBooked, c.MeetingCompleted, string(c.MeetingStatus), timeArg(c.MeetingDate), c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert creator: %w", err)
	}
	return nil
}

type onboardingRepo struct {
	db *sql.DB
}

const recordColumns = `user_id, current_step, completed_steps, is_completed, completion_percentage, sections, created_at, updated_at`

func (r *onboardingRepo) Get(ctx context.Context, id user.ID) (onboarding.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM onboarding_records WHERE user_id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		return onboarding.Record{}, err
	}
	return rec, nil
}

// Update creates the row if needed, then locks it for the duration of fn.
func (r *onboardingRepo) Update(ctx context.Context, id user.ID, fn func(*onboarding.Record) error) (onboarding.Record, error) {
	if id == "" {
		return onboarding.Record{}, onboarding.ErrInvalidInput
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return onboarding.Record{}, fmt.Errorf("begin onboarding update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO onboarding_records (user_id, current_step, created_at, updated_at)
		VALUES ($1, 1, now(), now())
		ON CONFLICT (user_id) DO NOTHING`, id); err != nil {
		return onboarding.Record{}, fmt.Errorf("ensure onboarding record: %w", err)
	}

	row := tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM onboarding_records WHERE user_id = $1 FOR UPDATE`, id)
	rec, err := scanRecord(row)
	if err != nil {
		return onboarding.Record{}, err
	}
	if err := fn(&rec); err != nil {
		return onboarding.Record{}, err
	}

	completed, sections, err := EncodeRecord(rec)
	if err != nil {
		return onboarding.Record{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE onboarding_records
		SET current_step = $2, completed_steps = $3, is_completed = $4, completion_percentage = $5,
			sections = $6, updated_at = $7
		WHERE user_id = $1`,
		id, rec.CurrentStep, completed, rec.IsCompleted, rec.CompletionPercentage, sections, rec.UpdatedAt); err != nil {
		return onboarding.Record{}, fmt.Errorf("update onboarding record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return onboarding.Record{}, fmt.Errorf("commit onboarding update: %w", err)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (onboarding.Record, error) {
	var rec onboarding.Record
	var completed, sections []byte
	if err := row.Scan(&rec.UserID, &rec.CurrentStep, &completed, &rec.IsCompleted, &rec.CompletionPercentage,
		&sections, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return onboarding.Record{}, onboarding.ErrNotFound
		}
		return onboarding.Record{}, fmt.Errorf("select onboarding record: %w", err)
	}
	if err := DecodeRecord(&rec, completed, sections); err != nil {
		return onboarding.Record{}, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

// EncodeRecord renders the JSON columns of an onboarding record. Section
// ids become object keys.
func EncodeRecord(rec onboarding.Record) (string, string, error) {
	steps := rec.CompletedSteps
	if steps == nil {
		steps = []int{}
	}
	completed, err := json.Marshal(steps)
	if err != nil {
		return "", "", fmt.Errorf("encode completed steps: %w", err)
	}
	sections := rec.Sections
	if sections == nil {
		sections = map[int]onboarding.Section{}
	}
	blob, err := json.Marshal(sections)
	if err != nil {
		return "", "", fmt.Errorf("encode sections: %w", err)
	}
	return string(completed), string(blob), nil
}

func DecodeRecord(rec *onboarding.Record, completed, sections []byte) error {
	if len(completed) > 0 {
		if err := json.Unmarshal(completed, &rec.CompletedSteps); err != nil {
			return fmt.Errorf("decode completed steps: %w", err)
		}
	}
	rec.Sections = make(map[int]onboarding.Section)
	if len(sections) > 0 {
		if err := json.Unmarshal(sections, &rec.Sections); err != nil {
			return fmt.Errorf("decode sections: %w", err)
		}
	}
	return nil
}

type triageRepo struct {
	db *sql.DB
}

// TriageQuery joins every account with its facts and the delivery row of
// its most recent invitation. It is plain enough to run on SQLite too.
const TriageQuery = `SELECT u.id, u.email, COALESCE(c.meeting_status, ''), c.meeting_date,
	COALESCE(e.status, ''), e.sent_at, e.link_clicked_at, e.link_used_at
	FROM users u
	LEFT JOIN creators c ON c.user_id = u.id
	LEFT JOIN invitation_emails e ON e.token_id = (
		SELECT t.id FROM invitation_tokens t
		WHERE t.user_id = u.id
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT 1
	)
	ORDER BY u.id`

func (r *triageRepo) ListCandidates(ctx context.Context) ([]stage.Candidate, error) {
	rows, err := r.db.QueryContext(ctx, TriageQuery)
	if err != nil {
		return nil, fmt.Errorf("list triage candidates: %w", err)
	}
	defer rows.Close()

	var out []stage.Candidate
	for rows.Next() {
		var c stage.Candidate
		var status, emailStatus string
		var meetingDate, sentAt, clickedAt, usedAt sql.NullTime
		if err := rows.Scan(&c.UserID, &c.Email, &status, &meetingDate, &emailStatus, &sentAt, &clickedAt, &usedAt); err != nil {
			return nil, fmt.Errorf("scan triage candidate: %w", err)
		}
		c.MeetingStatus = access.MeetingStatus(status)
		c.MeetingDate = nullTimePtr(meetingDate)
		c.EmailStatus = stage.EmailStatus{
			Status:        emailStatus,
			SentAt:        nullTimePtr(sentAt),
			LinkClickedAt: nullTimePtr(clickedAt),
			LinkUsedAt:    nullTimePtr(usedAt),
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate triage candidates: %w", err)
	}
	return out, nil
}

func expectOne(res sql.Result, none error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return none
	}
	return nil
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func stringArg(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
