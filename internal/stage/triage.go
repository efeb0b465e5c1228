package stage

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/access"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/user"
)

// Candidate is one creator row as the triage query returns it.
type Candidate struct {
	UserID        user.ID
	Email         string
	MeetingStatus access.MeetingStatus
	MeetingDate   *time.Time
	EmailStatus   EmailStatus
}

type Entry struct {
	Candidate
	Stage   Stage
	Urgency int
}

type Repository interface {
	ListCandidates(ctx context.Context) ([]Candidate, error)
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Triage classifies every candidate and returns them most urgent first.
func (s *Service) Triage(ctx context.Context) ([]Entry, error) {
	if s.repo == nil {
		return nil, errors.New("repository is required")
	}
	candidates, err := s.repo.ListCandidates(ctx)
	if err != nil {
		return nil, err
	}
	return Classify(candidates, s.now().UTC()), nil
}

// Classify scores candidates and sorts them. Ties go to the earlier
// meeting, then the earlier invitation email, then user ID.
func Classify(candidates []Candidate, now time.Time) []Entry {
	entries := make([]Entry, 0, len(candidates))
	for _, c := range candidates {
		st := Determine(c.MeetingStatus, c.EmailStatus)
		entries = append(entries, Entry{
			Candidate: c,
			Stage:     st,
			Urgency:   UrgencyScore(st, c.MeetingDate, c.EmailStatus.SentAt, now),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Urgency != b.Urgency {
			return a.Urgency < b.Urgency
		}
		if c := compareTimes(a.MeetingDate, b.MeetingDate); c != 0 {
			return c < 0
		}
		if c := compareTimes(a.EmailStatus.SentAt, b.EmailStatus.SentAt); c != 0 {
			return c < 0
		}
		return a.UserID < b.UserID
	})
	return entries
}

// compareTimes orders set times before unset ones.
func compareTimes(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}
