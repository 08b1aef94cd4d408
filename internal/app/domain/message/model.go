package message

import "time"

// Kind classifies an inbox message.
type Kind string

const (
	KindNotification Kind = "notification"
	KindReminder     Kind = "reminder"
	KindAlert        Kind = "alert"
	KindAnnouncement Kind = "announcement"
)

// Message is an in-app copy of a notification delivered to a member. Email
// delivery may be disabled per member; the inbox record is always written.
type Message struct {
	ID        string
	MemberID  string
	Kind      Kind
	Subject   string
	Body      string
	Read      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
