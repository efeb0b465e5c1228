package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/user"
)

// MeetingStatus is the onboarding-meeting state set by enrollment.
type MeetingStatus string

const (
	MeetingNone      MeetingStatus = ""
	MeetingPending   MeetingStatus = "pending"
	MeetingConfirmed MeetingStatus = "confirmed"
	MeetingCompleted MeetingStatus = "completed"
	MeetingCancelled MeetingStatus = "cancelled"
)

var (
	ErrNotFound             = errors.New("creator not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidMeetingStatus = errors.New("invalid meeting status")
)

func ParseMeetingStatus(s string) (MeetingStatus, error) {
	switch MeetingStatus(s) {
	case MeetingNone, MeetingPending, MeetingConfirmed, MeetingCompleted, MeetingCancelled:
		return MeetingStatus(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMeetingStatus, s)
}

// Booked reports whether the status counts as a scheduled meeting.
func (m MeetingStatus) Booked() bool {
	return m == MeetingPending || m == MeetingConfirmed
}

// Creator holds the facts the access level is computed from. The level
// itself is never stored.
type Creator struct {
	UserID           user.ID
	HasEarlyGrant    bool
	MeetingBooked    bool
	MeetingCompleted bool
	MeetingStatus    MeetingStatus
	MeetingDate      *time.Time
	UpdatedAt        time.Time
}

func (c Creator) Level() Level {
	return Determine(c.HasEarlyGrant, c.MeetingCompleted, c.MeetingBooked)
}

type Repository interface {
	Get(ctx context.Context, id user.ID) (Creator, error)
	Save(ctx context.Context, creator Creator) error
}
