package workshop

import (
	"context"
	"fmt"
	"time"

	"github.com/dnacommunity/backend/internal/model"
	"github.com/dnacommunity/backend/internal/util"
)

type MeetingInfo struct {
	Link string
	ID   string
	Type model.MeetingType
}

// MeetingService allocates the online room a workshop takes place in.
type MeetingService interface {
	Generate(ctx context.Context, meetingType model.MeetingType, title string, scheduled time.Time, duration int) (MeetingInfo, error)
}

// PlaceholderMeetings hands out well-formed links without calling any provider.
type PlaceholderMeetings struct {
	now func() time.Time
}

func NewPlaceholderMeetings() *PlaceholderMeetings {
	return &PlaceholderMeetings{now: time.Now}
}

func (p *PlaceholderMeetings) Generate(_ context.Context, meetingType model.MeetingType, _ string, _ time.Time, _ int) (MeetingInfo, error) {
	suffix, err := util.RandomBase36(9)
	if err != nil {
		return MeetingInfo{}, fmt.Errorf("failed to generate meeting id: %w", err)
	}
	ms := p.now().UnixMilli()

	switch meetingType {
	case model.MeetingTypeTeams:
		id := fmt.Sprintf("teams-%d-%s", ms, suffix)
		return MeetingInfo{Link: "https://teams.microsoft.com/l/meetup-join/" + id, ID: id, Type: model.MeetingTypeTeams}, nil
	default:
		id := fmt.Sprintf("meet-%d-%s", ms, suffix)
		return MeetingInfo{Link: "https://meet.google.com/" + id, ID: id, Type: model.MeetingTypeGoogleMeet}, nil
	}
}

// fallbackMeeting is used when the meeting service fails, so a workshop is
// never left without a link.
func fallbackMeeting(meetingType model.MeetingType, now time.Time) MeetingInfo {
	id := fmt.Sprintf("fallback-%d", now.UnixMilli())
	if meetingType == model.MeetingTypeTeams {
		return MeetingInfo{Link: "https://teams.microsoft.com/l/meetup-join/" + id, ID: id, Type: meetingType}
	}
	return MeetingInfo{Link: "https://meet.google.com/" + id, ID: id, Type: model.MeetingTypeGoogleMeet}
}
