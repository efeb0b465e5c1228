package stage

import (
	"time"

	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/access"
)

// Stage is the operator-facing funnel position of a creator. It is advisory
// only; gating always goes through access levels.
type Stage string

const (
	NoInvitation     Stage = "no_invitation"
	InvitationSent   Stage = "invitation_sent"
	MeetingBooked    Stage = "meeting_booked"
	MeetingCompleted Stage = "meeting_completed"
)

// EmailStatus is the invitation-email delivery state the classifier reads.
type EmailStatus struct {
	Status        string
	SentAt        *time.Time
	LinkClickedAt *time.Time
	LinkUsedAt    *time.Time
}

func Determine(meeting access.MeetingStatus, email EmailStatus) Stage {
	switch {
	case meeting == access.MeetingCompleted:
		return MeetingCompleted
	case meeting == access.MeetingConfirmed || meeting == access.MeetingPending:
		return MeetingBooked
	case email.SentAt != nil:
		return InvitationSent
	default:
		return NoInvitation
	}
}

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// UrgencyScore ranks a creator for the operator queue, lower first.
//
//	meeting_completed                      1
//	meeting_booked, meeting <= 1 day away  2
//	meeting_booked, <= 7 days away         3
//	meeting_booked, further or undated     4
//	invitation_sent, sent >= 7 days ago    5
//	no_invitation                          6
//	invitation_sent, recent                7
//	anything else                          8
func UrgencyScore(s Stage, meetingDate, emailSentAt *time.Time, now time.Time) int {
	switch s {
	case MeetingCompleted:
		return 1
	case MeetingBooked:
		if meetingDate == nil {
			return 4
		}
		until := meetingDate.Sub(now)
		switch {
		case until <= day:
			return 2
		case until <= week:
			return 3
		default:
			return 4
		}
	case InvitationSent:
		if emailSentAt != nil && now.Sub(*emailSentAt) >= week {
			return 5
		}
		return 7
	case NoInvitation:
		return 6
	}
	return 8
}
