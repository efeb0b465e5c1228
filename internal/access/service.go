package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/notify"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/user"
)

var tracer = otel.Tracer("bloom/access")

// Change describes the outcome of a fact update.
type Change struct {
	Creator Creator
	From    Level
	To      Level
}

func (c Change) Changed() bool { return c.From != c.To }

type Service struct {
	repo   Repository
	events notify.Publisher
	now    func() time.Time
}

func NewService(repo Repository, events notify.Publisher) *Service {
	return &Service{
		repo:   repo,
		events: events,
		now:    time.Now,
	}
}

// Creator loads the stored facts. A creator enrollment has not touched yet
// has no facts, which is a valid state and resolves to NoAccess.
func (s *Service) Creator(ctx context.Context, id user.ID) (Creator, error) {
	if s.repo == nil {
		return Creator{}, errors.New("repository is required")
	}
	if strings.TrimSpace(string(id)) == "" {
		return Creator{}, ErrInvalidInput
	}
	c, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Creator{UserID: id}, nil
	}
	if err != nil {
		return Creator{}, err
	}
	return c, nil
}

// Level recomputes the access level from stored facts on every call.
func (s *Service) Level(ctx context.Context, id user.ID) (Level, error) {
	c, err := s.Creator(ctx, id)
	if err != nil {
		return "", err
	}
	return c.Level(), nil
}

// RecordMeetingStatus stores a new meeting status. Booking and completion
// flags only ever get set here; cancelling keeps what was already earned.
func (s *Service) RecordMeetingStatus(ctx context.Context, id user.ID, status MeetingStatus, date *time.Time) (Change, error) {
	ctx, span := tracer.Start(ctx, "access.RecordMeetingStatus")
	defer span.End()
	span.SetAttributes(attribute.String("meeting.status", string(status)))

	if _, err := ParseMeetingStatus(string(status)); err != nil {
		return Change{}, err
	}
	current, err := s.Creator(ctx, id)
	if err != nil {
		return Change{}, err
	}

	next := current
	next.MeetingStatus = status
	next.MeetingDate = date
	if status == MeetingNone {
		next.MeetingDate = nil
	}
	if status.Booked() {
		next.MeetingBooked = true
	}
	if status == MeetingCompleted {
		next.MeetingBooked = true
		next.MeetingCompleted = true
	}

	change, err := s.commit(ctx, current, next)
	if err != nil {
		return Change{}, err
	}
	if status == MeetingConfirmed && current.MeetingStatus != MeetingConfirmed {
		data := map[string]string{}
		if date != nil {
			data["meeting_date"] = date.UTC().Format(time.RFC3339)
		}
		s.publish(ctx, notify.Event{Kind: notify.KindMeetingConfirmed, UserID: string(id), Data: data})
	}
	return change, nil
}

// GrantEarlyAccess is the operator override that skips the meeting.
func (s *Service) GrantEarlyAccess(ctx context.Context, id user.ID) (Change, error) {
	ctx, span := tracer.Start(ctx, "access.GrantEarlyAccess")
	defer span.End()

	current, err := s.Creator(ctx, id)
	if err != nil {
		return Change{}, err
	}
	next := current
	next.HasEarlyGrant = true
	return s.commit(ctx, current, next)
}

func (s *Service) commit(ctx context.Context, current, next Creator) (Change, error) {
	from, to := current.Level(), next.Level()
	if from != to && !IsValidTransition(from, to) {
		return Change{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	next.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, next); err != nil {
		return Change{}, err
	}

	change := Change{Creator: next, From: from, To: to}
	if change.Changed() {
		s.publish(ctx, notify.Event{
			Kind:   notify.KindAccessLevelChanged,
			UserID: string(next.UserID),
			Data:   map[string]string{"from": string(from), "to": string(to)},
		})
	}
	return change, nil
}

func (s *Service) publish(ctx context.Context, evt notify.Event) {
	if s.events == nil {
		return
	}
	evt.OccurredAt = s.now().UTC()
	s.events.Publish(ctx, evt)
}
