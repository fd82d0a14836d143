package domain

type MeetingID string

func (id MeetingID) String() string { return string(id) }

func NewMeetingID(raw string) (MeetingID, error) {
	if err := ValidateID("meeting", raw); err != nil {
		return "", err
	}
	return MeetingID(raw), nil
}

// RoomInfo is a read-only view of a live room.
type RoomInfo struct {
	MeetingID    MeetingID `json:"meetingId"`
	HostID       UserID    `json:"hostId"`
	Participants int       `json:"participants"`
}
