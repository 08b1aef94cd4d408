package reservation

import "time"

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusActive    Status = "active"
	StatusFulfilled Status = "fulfilled"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Reservation holds a member's claim on a copy that is currently out. At most
// one active reservation may exist per (book, member) pair.
type Reservation struct {
	ID         string
	BookID     string
	MemberID   string
	ReservedAt time.Time
	ExpiresAt  time.Time
	Status     Status
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ExpiresWithin reports whether an active reservation lapses within d of now.
func (r Reservation) ExpiresWithin(now time.Time, d time.Duration) bool {
	if r.Status != StatusActive {
		return false
	}
	return r.ExpiresAt.After(now) && r.ExpiresAt.Before(now.Add(d))
}
