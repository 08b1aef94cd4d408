package loan

import "time"

// Status is the lifecycle state of a loan.
type Status string

const (
	StatusBorrowed Status = "borrowed"
	StatusReturned Status = "returned"
	StatusOverdue  Status = "overdue"
	StatusLost     Status = "lost"
)

// Loan records a copy checked out to a member.
type Loan struct {
	ID         string
	BookID     string
	MemberID   string
	BorrowedAt time.Time
	DueDate    time.Time
	ReturnedAt time.Time
	Status     Status
	FineAmount float64
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Outstanding reports whether the copy is still out.
func (l Loan) Outstanding() bool {
	return l.Status == StatusBorrowed || l.Status == StatusOverdue
}

// IsOverdue reports whether the loan is past due at the given instant.
func (l Loan) IsOverdue(now time.Time) bool {
	return l.Outstanding() && now.After(l.DueDate)
}

// DaysOverdue returns the number of whole days past the due date, zero when
// the loan is not overdue.
func (l Loan) DaysOverdue(now time.Time) int {
	if !l.IsOverdue(now) {
		return 0
	}
	return int(now.Sub(l.DueDate).Hours() / 24)
}
