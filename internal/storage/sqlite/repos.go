package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/access"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/invitation"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/onboarding"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/stage"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/storage"
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
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		string(u.ID), u.Email, passwordHash, toMillis(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id user.ID) (user.User, error) {
	return r.get(ctx, `WHERE id = ?`, string(id))
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.get(ctx, `WHERE email = ?`, email)
}

func (r *userRepo) get(ctx context.Context, where string, arg any) (user.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, email, password_hash, created_at FROM users `+where, arg)
	var u user.User
	var id string
	var passwordHash sql.NullString
	var created int64
	if err := row.Scan(&id, &u.Email, &passwordHash, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, fmt.Errorf("select user: %w", err)
	}
	u.ID = user.ID(id)
	u.PasswordHash = passwordHash.String
	u.CreatedAt = fromMillis(created)
	return u, nil
}

func (r *userRepo) SetPasswordHash(ctx context.Context, id user.ID, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, string(id))
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return expectOne(res, user.ErrNotFound)
}

type invitationRepo struct {
	db *sql.DB
}

func (r *invitationRepo) Create(ctx context.Context, tok invitation.Token) error {
	if tok.ID == "" || len(tok.TokenHash) == 0 || tok.UserID == "" || tok.ExpiresAt.IsZero() {
		return fmt.Errorf("token id, hash, user_id, and expires_at are required")
	}
	var app any
	if tok.ApplicationID != nil {
		app = *tok.ApplicationID
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO invitation_tokens (id, token_hash, user_id, application_id, expires_at, used_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tok.ID, tok.TokenHash, string(tok.UserID), app, toMillis(tok.ExpiresAt), millisArg(tok.UsedAt), toMillis(tok.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert invitation token: %w", err)
	}
	return nil
}

func (r *invitationRepo) GetByHash(ctx context.Context, hash []byte) (invitation.Token, error) {
	return r.get(ctx, `WHERE token_hash = ?`, hash)
}

func (r *invitationRepo) GetByID(ctx context.Context, id string) (invitation.Token, error) {
	return r.get(ctx, `WHERE id = ?`, id)
}

func (r *invitationRepo) get(ctx context.Context, where string, arg any) (invitation.Token, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, token_hash, user_id, application_id, expires_at, used_at, created_at
		FROM invitation_tokens `+where, arg)
	var tok invitation.Token
	var userID string
	var app sql.NullString
	var expires, created int64
	var used sql.NullInt64
	if err := row.Scan(&tok.ID, &tok.TokenHash, &userID, &app, &expires, &used, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invitation.Token{}, invitation.ErrNotFound
		}
		return invitation.Token{}, fmt.Errorf("select invitation: %w", err)
	}
	tok.UserID = user.ID(userID)
	if app.Valid {
		tok.ApplicationID = &app.String
	}
	tok.ExpiresAt = fromMillis(expires)
	tok.CreatedAt = fromMillis(created)
	tok.UsedAt = millisPtr(used)
	return tok, nil
}

func (r *invitationRepo) MarkUsed(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE invitation_tokens SET used_at = ? WHERE id = ? AND used_at IS NULL`, toMillis(at), id)
	if err != nil {
		return fmt.Errorf("mark invitation used: %w", err)
	}
	return expectOne(res, invitation.ErrConflict)
}

func (r *invitationRepo) CreateDelivery(ctx context.Context, d invitation.Delivery) error {
	if d.TokenID == "" || d.UserID == "" || d.Status == "" {
		return fmt.Errorf("delivery token_id, user_id, and status are required")
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO invitation_emails (token_id, user_id, status, sent_at, link_clicked_at, link_used_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.TokenID, string(d.UserID), string(d.Status), millisArg(d.SentAt), millisArg(d.LinkClickedAt), millisArg(d.LinkUsedAt))
	if err != nil {
		return fmt.Errorf("insert invitation email: %w", err)
	}
	return nil
}

func (r *invitationRepo) GetDelivery(ctx context.Context, tokenID string) (invitation.Delivery, error) {
	row := r.db.QueryRowContext(ctx, `SELECT token_id, user_id, status, sent_at, link_clicked_at, link_used_at
		FROM invitation_emails WHERE token_id = ?`, tokenID)
	var d invitation.Delivery
	var userID, status string
	var sent, clicked, used sql.NullInt64
	if err := row.Scan(&d.TokenID, &userID, &status, &sent, &clicked, &used); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invitation.Delivery{}, invitation.ErrNotFound
		}
		return invitation.Delivery{}, fmt.Errorf("select invitation email: %w", err)
	}
	d.UserID = user.ID(userID)
	d.Status = invitation.DeliveryStatus(status)
	d.SentAt = millisPtr(sent)
	d.LinkClickedAt = millisPtr(clicked)
	d.LinkUsedAt = millisPtr(used)
	return d, nil
}

func (r *invitationRepo) SetDeliveryStatus(ctx context.Context, tokenID string, status invitation.DeliveryStatus, at time.Time) error {
	var sentAt any
	if status == invitation.DeliverySent {
		sentAt = toMillis(at)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE invitation_emails SET status = ?, sent_at = COALESCE(sent_at, ?) WHERE token_id = ?`,
		string(status), sentAt, tokenID)
	if err != nil {
		return fmt.Errorf("update invitation email status: %w", err)
	}
	return expectOne(res, invitation.ErrNotFound)
}

func (r *invitationRepo) MarkLinkClicked(ctx context.Context, tokenID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE invitation_emails SET link_clicked_at = COALESCE(link_clicked_at, ?) WHERE token_id = ?`,
		toMillis(at), tokenID)
	if err != nil {
		return fmt.Errorf("mark link clicked: %w", err)
	}
	return expectOne(res, invitation.ErrNotFound)
}

func (r *invitationRepo) MarkLinkUsed(ctx context.Context, tokenID string, at time.Time) error {
	ms := toMillis(at)
	res, err := r.db.ExecContext(ctx, `UPDATE invitation_emails
		SET link_clicked_at = COALESCE(link_clicked_at, ?), link_used_at = COALESCE(link_used_at, ?)
		WHERE token_id = ?`, ms, ms, tokenID)
	if err != nil {
		return fmt.Errorf("mark link used: %w", err)
	}
	return expectOne(res, invitation.ErrNotFound)
}

type creatorRepo struct {
	db *sql.DB
}

func (r *creatorRepo) Get(ctx context.Context, id user.ID) (access.Creator, error) {
	row := r.db.QueryRowContext(ctx, `SELECT has_early_grant, meeting_booked, meeting_completed, meeting_status, meeting_date, updated_at
		FROM creators WHERE user_id = ?`, string(id))
	c := access.Creator{UserID: id}
	var status string
	var date sql.NullInt64
	var updated int64
	if err := row.Scan(&c.HasEarlyGrant, &c.MeetingBooked, &c.MeetingCompleted, &status, &date, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return access.Creator{}, access.ErrNotFound
		}
		return access.Creator{}, fmt.Errorf("select creator: %w", err)
	}
	c.MeetingStatus = access.MeetingStatus(status)
	c.MeetingDate = millisPtr(date)
	c.UpdatedAt = fromMillis(updated)
	return c, nil
}

func (r *creatorRepo) Save(ctx context.Context, c access.Creator) error {
	if c.UserID == "" || c.UpdatedAt.IsZero() {
		return fmt.Errorf("creator user_id and updated_at are required")
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO creators (user_id, has_early_grant, meeting_booked, meeting_completed, meeting_status, meeting_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			has_early_grant = creators.has_early_grant OR excluded.has_early_grant,
			meeting_booked = creators.meeting_booked OR excluded.meeting_booked,
			meeting_completed = creators.meeting_completed OR excluded.meeting_completed,
			meeting_status = excluded.meeting_status,
			meeting_date = excluded.meeting_date,
			updated_at = excluded.updated_at`,
		string(c.UserID), c.HasEarlyGrant, c.MeetingBooked, c.MeetingCompleted, string(c.MeetingStatus), millisArg(c.MeetingDate), toMillis(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert creator: %w", err)
	}
	return nil
}

type onboardingRepo struct {
	db *sql.DB
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *onboardingRepo) Get(ctx context.Context, id user.ID) (onboarding.Record, error) {
	return loadRecord(ctx, r.db, id)
}

func (r *onboardingRepo) Update(ctx context.Context, id user.ID, fn func(*onboarding.Record) error) (onboarding.Record, error) {
	if id == "" {
		return onboarding.Record{}, onboarding.ErrInvalidInput
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return onboarding.Record{}, fmt.Errorf("begin onboarding update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := loadRecord(ctx, tx, id)
	if errors.Is(err, onboarding.ErrNotFound) {
		rec = onboarding.NewRecord(id)
	} else if err != nil {
		return onboarding.Record{}, err
	}
	if err := fn(&rec); err != nil {
		return onboarding.Record{}, err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}

	completed, sections, err := storage.EncodeRecord(rec)
	if err != nil {
		return onboarding.Record{}, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO onboarding_records
		(user_id, current_step, completed_steps, is_completed, completion_percentage, sections, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			current_step = excluded.current_step,
			completed_steps = excluded.completed_steps,
			is_completed = excluded.is_completed,
			completion_percentage = excluded.completion_percentage,
			sections = excluded.sections,
			updated_at = excluded.updated_at`,
		string(id), rec.CurrentStep, completed, rec.IsCompleted, rec.CompletionPercentage, sections,
		toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt)); err != nil {
		return onboarding.Record{}, fmt.Errorf("write onboarding record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return onboarding.Record{}, fmt.Errorf("commit onboarding update: %w", err)
	}
	return rec, nil
}

func loadRecord(ctx context.Context, q queryer, id user.ID) (onboarding.Record, error) {
	row := q.QueryRowContext(ctx, `SELECT current_step, completed_steps, is_completed, completion_percentage, sections, created_at, updated_at
		FROM onboarding_records WHERE user_id = ?`, string(id))
	rec := onboarding.Record{UserID: id}
	var completed, sections string
	var created, updated int64
	if err := row.Scan(&rec.CurrentStep, &completed, &rec.IsCompleted, &rec.CompletionPercentage, &sections, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return onboarding.Record{}, onboarding.ErrNotFound
		}
		return onboarding.Record{}, fmt.Errorf("select onboarding record: %w", err)
	}
	if err := storage.DecodeRecord(&rec, []byte(completed), []byte(sections)); err != nil {
		return onboarding.Record{}, err
	}
	rec.CreatedAt = fromMillis(created)
	rec.UpdatedAt = fromMillis(updated)
	return rec, nil
}

type triageRepo struct {
	db *sql.DB
}

func (r *triageRepo) ListCandidates(ctx context.Context) ([]stage.Candidate, error) {
	rows, err := r.db.QueryContext(ctx, storage.TriageQuery)
	if err != nil {
		return nil, fmt.Errorf("list triage candidates: %w", err)
	}
	defer rows.Close()

	var out []stage.Candidate
	for rows.Next() {
		var c stage.Candidate
		var id, status, emailStatus string
		var meetingDate, sent, clicked, used sql.NullInt64
		if err := rows.Scan(&id, &c.Email, &status, &meetingDate, &emailStatus, &sent, &clicked, &used); err != nil {
			return nil, fmt.Errorf("scan triage candidate: %w", err)
		}
		c.UserID = user.ID(id)
		c.MeetingStatus = access.MeetingStatus(status)
		c.MeetingDate = millisPtr(meetingDate)
		c.EmailStatus = stage.EmailStatus{
			Status:        emailStatus,
			SentAt:        millisPtr(sent),
			LinkClickedAt: millisPtr(clicked),
			LinkUsedAt:    millisPtr(used),
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
