package access

import "sort"

// Feature names checked by UI surfaces and the onboarding gate.
const (
	FeatureProfile               = "profile"
	FeatureInvitationStatus      = "invitation_status"
	FeatureBookMeeting           = "book_meeting"
	FeatureMeetingDetails        = "meeting_details"
	FeaturePreMeetingOnboarding  = "pre_meeting_onboarding"
	FeaturePostMeetingOnboarding = "post_meeting_onboarding"
	FeatureDashboard             = "dashboard"
	FeatureContracts             = "contracts"
	FeatureContentUpload         = "content_upload"
	FeatureTeamChat              = "team_chat"
)

var (
	noAccessFeatures = []string{
		FeatureProfile,
		FeatureInvitationStatus,
		FeatureBookMeeting,
	}
	meetingOnlyFeatures = append(append([]string{}, noAccessFeatures...),
		FeatureMeetingDetails,
		FeaturePreMeetingOnboarding,
	)
	fullAccessFeatures = append(append([]string{}, meetingOnlyFeatures...),
		FeaturePostMeetingOnboarding,
		FeatureDashboard,
		FeatureContracts,
		FeatureContentUpload,
		FeatureTeamChat,
	)
)

var featureTable = map[Level]map[string]struct{}{
	NoAccess:    toSet(noAccessFeatures),
	MeetingOnly: toSet(meetingOnlyFeatures),
	FullAccess:  toSet(fullAccessFeatures),
}

func toSet(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

// Features returns the sorted feature names available at a level.
// Unknown levels get nothing.
func Features(level Level) []string {
	set := featureTable[level]
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func CanAccessFeature(level Level, feature string) bool {
	_, ok := featureTable[level][feature]
	return ok
}
