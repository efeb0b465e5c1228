package access

import (
	"errors"
	"fmt"
)

// Level is the coarse permission tier of a creator.
type Level string

const (
	NoAccess    Level = "no_access"
	MeetingOnly Level = "meeting_only"
	FullAccess  Level = "full_access"
)

var (
	ErrInvalidLevel      = errors.New("invalid access level")
	ErrInvalidTransition = errors.New("invalid access level transition")
)

// ParseLevel accepts the wire form of a level.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case NoAccess, MeetingOnly, FullAccess:
		return Level(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

func (l Level) String() string { return string(l) }

// Determine maps creator facts to a level. First match wins:
// early grant, then completed meeting, then booked meeting.
func Determine(hasEarlyGrant, meetingCompleted, meetingBooked bool) Level {
	switch {
	case hasEarlyGrant:
		return FullAccess
	case meetingCompleted:
		return FullAccess
	case meetingBooked:
		return MeetingOnly
	default:
		return NoAccess
	}
}

var transitions = map[Level]map[Level]bool{
	NoAccess:    {MeetingOnly: true, FullAccess: true},
	MeetingOnly: {FullAccess: true},
	FullAccess:  {},
}

// IsValidTransition reports whether moving from one level to another is a
// forward move this engine may perform. Downgrades are never valid here.
func IsValidTransition(from, to Level) bool {
	return transitions[from][to]
}
