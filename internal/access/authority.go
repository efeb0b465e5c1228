package access

// StepStage tags an onboarding step as before or after the meeting.
type StepStage string

const (
	PreMeeting  StepStage = "pre-meeting"
	PostMeeting StepStage = "post-meeting"
)

// Authority is the one place UI surfaces and the onboarding engine ask
// whether something is allowed at a level.
type Authority interface {
	CanAccessFeature(level Level, feature string) bool
	IsStepVisible(stage StepStage, level Level) bool
}

// Policy is the table-backed Authority.
type Policy struct{}

func (Policy) CanAccessFeature(level Level, feature string) bool {
	return CanAccessFeature(level, feature)
}

func (Policy) IsStepVisible(stage StepStage, level Level) bool {
	return IsStepVisible(stage, level)
}

// IsStepVisible: pre-meeting steps need any access, post-meeting steps need
// full access. Both checks go through the feature table.
func IsStepVisible(stage StepStage, level Level) bool {
	switch stage {
	case PreMeeting:
		return CanAccessFeature(level, FeaturePreMeetingOnboarding)
	case PostMeeting:
		return CanAccessFeature(level, FeaturePostMeetingOnboarding)
	}
	return false
}
