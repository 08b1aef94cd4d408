// Package request models the approval workflow that sits in front of
// circulation: members ask to borrow or return, librarians decide.
package request

import "time"

// Status is the review state of a request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusCancelled Status = "cancelled"
)

// BorrowRequest is a member's ask to take out a copy.
type BorrowRequest struct {
	ID           string
	BookID       string
	MemberID     string
	DurationDays int
	Status       Status
	Notes        string
	AdminNotes   string
	ProcessedBy  string
	ProcessedAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ReturnRequest is a member's ask to hand a copy back.
type ReturnRequest struct {
	ID          string
	LoanID      string
	MemberID    string
	Status      Status
	Notes       string
	AdminNotes  string
	ProcessedBy string
	ProcessedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
