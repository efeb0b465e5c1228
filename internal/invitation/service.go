package invitation

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/notify"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/securelog"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/user"
)

var tracer = otel.Tracer("bloom/invitation")

const DefaultTTL = 72 * time.Hour

type IssueRequest struct {
	Email         string
	ApplicationID string
	// TTL overrides the service default when positive.
	TTL time.Duration
}

// Issued carries the raw token. It is the only place the raw value exists.
type Issued struct {
	Token  Token
	Secret string
	User   user.User
}

type Verification struct {
	UserID  user.ID
	Email   string
	TokenID string
}

type Service struct {
	tokens     Repository
	deliveries DeliveryRepository
	users      UserDirectory
	creds      Credentials
	events     notify.Publisher
	log        *securelog.Logger
	ttl        time.Duration
	idGen      func() string
	secretGen  func() (string, error)
	now        func() time.Time
}

func NewService(tokens Repository, deliveries DeliveryRepository, users UserDirectory, creds Credentials, events notify.Publisher, log *securelog.Logger) *Service {
	return &Service{
		tokens:     tokens,
		deliveries: deliveries,
		users:      users,
		creds:      creds,
		events:     events,
		log:        log,
		ttl:        DefaultTTL,
		idGen:      func() string { return uuid.NewString() },
		secretGen:  randomToken,
		now:        time.Now,
	}
}

// SetTTL changes the lifetime of newly issued tokens.
func (s *Service) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		s.ttl = ttl
	}
}

// Issue creates the account if needed, stores a fresh token and a pending
// delivery row. Enrollment calls this; the mailer reports back through
// RecordDelivery.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (Issued, error) {
	ctx, span := tracer.Start(ctx, "invitation.Issue")
	defer span.End()

	if err := s.ready(); err != nil {
		return Issued{}, err
	}
	account, err := s.users.Ensure(ctx, req.Email)
	if err != nil {
		return Issued{}, err
	}

	secret, err := s.secretGen()
	if err != nil {
		return Issued{}, fmt.Errorf("generate token: %w", err)
	}
	ttl := s.ttl
	if req.TTL > 0 {
		ttl = req.TTL
	}
	now := s.now().UTC()
	tok := Token{
		ID:        s.idGen(),
		TokenHash: hashToken(secret),
		UserID:    account.ID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if app := strings.TrimSpace(req.ApplicationID); app != "" {
		tok.ApplicationID = &app
	}
	if err := s.tokens.Create(ctx, tok); err != nil {
		return Issued{}, err
	}
	if err := s.deliveries.CreateDelivery(ctx, Delivery{TokenID: tok.ID, UserID: account.ID, Status: DeliveryPending}); err != nil {
		return Issued{}, err
	}

	s.publish(ctx, notify.Event{
		Kind:   notify.KindInvitationIssued,
		UserID: string(account.ID),
		Email:  account.Email,
		Data: map[string]string{
			"token_id":   tok.ID,
			"expires_at": tok.ExpiresAt.Format(time.RFC3339),
		},
	})
	return Issued{Token: tok, Secret: secret, User: account}, nil
}

// Verify checks that the token can still be redeemed and records the link
// click. It never consumes the token and may be called any number of times.
func (s *Service) Verify(ctx context.Context, raw string) (Verification, error) {
	ctx, span := tracer.Start(ctx, "invitation.Verify")
	defer span.End()

	if err := s.ready(); err != nil {
		return Verification{}, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Verification{}, ErrInvalidInput
	}

	tok, err := s.lookup(ctx, raw)
	if err != nil {
		return Verification{}, err
	}
	span.SetAttributes(attribute.String("invitation.id", tok.ID))

	now := s.now().UTC()
	if err := tok.Usable(now); err != nil {
		return Verification{}, err
	}
	account, err := s.users.GetByID(ctx, tok.UserID)
	if err != nil {
		return Verification{}, err
	}

	if err := s.deliveries.MarkLinkClicked(ctx, tok.ID, now); err != nil && !errors.Is(err, ErrNotFound) {
		s.log.Failure("invitation.Verify mark clicked", err)
	}
	return Verification{UserID: tok.UserID, Email: account.Email, TokenID: tok.ID}, nil
}

// CompleteSetup stores the creator's credential and burns the token. The
// credential is written before the token is stamped, so a failure in
// between leaves the token redeemable. A lost race on the stamp is
// reported as ErrAlreadyUsed wrapping ErrConflict and is not retried.
func (s *Service) CompleteSetup(ctx context.Context, tokenID, secret string) (string, error) {
	ctx, span := tracer.Start(ctx, "invitation.CompleteSetup")
	defer span.End()

	if err := s.ready(); err != nil {
		return "", err
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return "", ErrInvalidInput
	}
	span.SetAttributes(attribute.String("invitation.id", tokenID))

	tok, err := s.tokens.GetByID(ctx, tokenID)
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	if err := tok.Usable(now); err != nil {
		return "", err
	}
	if utf8.RuneCountInString(secret) < MinSecretLength {
		return "", ErrWeakSecret
	}
	account, err := s.users.GetByID(ctx, tok.UserID)
	if err != nil {
		return "", err
	}

	if err := s.creds.SetCredential(ctx, tok.UserID, secret); err != nil {
		span.SetStatus(codes.Error, "set credential")
		return "", err
	}
	if err := s.tokens.MarkUsed(ctx, tok.ID, now); err != nil {
		if errors.Is(err, ErrConflict) {
			span.SetStatus(codes.Error, "lost consume race")
			return "", fmt.Errorf("%w: %w", ErrAlreadyUsed, err)
		}
		return "", err
	}

	if err := s.deliveries.MarkLinkUsed(ctx, tok.ID, now); err != nil && !errors.Is(err, ErrNotFound) {
		s.log.Failure("invitation.CompleteSetup mark used", err)
	}
	s.publish(ctx, notify.Event{
		Kind:   notify.KindSetupCompleted,
		UserID: string(tok.UserID),
		Email:  account.Email,
		Data:   map[string]string{"token_id": tok.ID},
	})
	return account.Email, nil
}

// RecordDelivery is the mailer's callback for the invitation email.
func (s *Service) RecordDelivery(ctx context.Context, tokenID string, status DeliveryStatus) (Delivery, error) {
	if err := s.ready(); err != nil {
		return Delivery{}, err
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return Delivery{}, ErrInvalidInput
	}
	if _, err := ParseDeliveryStatus(string(status)); err != nil {
		return Delivery{}, err
	}
	if err := s.deliveries.SetDeliveryStatus(ctx, tokenID, status, s.now().UTC()); err != nil {
		return Delivery{}, err
	}
	return s.deliveries.GetDelivery(ctx, tokenID)
}

func (s *Service) lookup(ctx context.Context, raw string) (Token, error) {
	hash := hashToken(raw)
	tok, err := s.tokens.GetByHash(ctx, hash)
	if err != nil {
		return Token{}, err
	}
	if subtle.ConstantTimeCompare(tok.TokenHash, hash) != 1 {
		return Token{}, ErrNotFound
	}
	return tok, nil
}

func (s *Service) publish(ctx context.Context, evt notify.Event) {
	if s.events == nil {
		return
	}
	evt.OccurredAt = s.now().UTC()
	s.events.Publish(ctx, evt)
}

func (s *Service) ready() error {
	if s.tokens == nil || s.deliveries == nil {
		return errors.New("repository is required")
	}
	if s.users == nil || s.creds == nil {
		return errors.New("services are required")
	}
	return nil
}

func hashToken(raw string) []byte {
	sum := sha256.Sum256([]byte(raw))
	return sum[:]
}

// randomToken returns 256 bits of entropy, URL-safe.
func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
