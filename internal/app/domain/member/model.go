package member

import "time"

// Role controls what a member may do through the API.
type Role string

const (
	RoleMember    Role = "member"
	RoleLibrarian Role = "librarian"
	RoleAdmin     Role = "admin"
)

// Kind classifies the membership for reporting purposes.
type Kind string

const (
	KindStudent  Kind = "student"
	KindFaculty  Kind = "faculty"
	KindStaff    Kind = "staff"
	KindExternal Kind = "external"
)

// Status is the lifecycle state of a membership.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusExpired   Status = "expired"
	StatusPending   Status = "pending"
)

// Defaults applied when a member record does not specify them.
const (
	DefaultMaxBooks = 5
	FineThreshold   = 50.0
)

// Member is a registered library user. PasswordHash is a bcrypt hash and is
// never serialised in API responses.
type Member struct {
	ID                 string
	Username           string
	Email              string
	PasswordHash       string `json:"-"`
	FullName           string
	Role               Role
	Kind               Kind
	Status             Status
	Phone              string
	Department         string
	MaxBooks           int
	CurrentBooks       int
	TotalFines         float64
	EmailNotifications bool
	MembershipExpiry   time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CanBorrow reports whether the member is currently allowed to take out
// another book: the membership must be active, below its copy limit, and
// below the unpaid fine threshold.
func (m Member) CanBorrow() bool {
	return m.Status == StatusActive &&
		m.CurrentBooks < m.EffectiveMaxBooks() &&
		m.TotalFines < FineThreshold
}

// EffectiveMaxBooks returns the configured copy limit, falling back to the
// library default when unset.
func (m Member) EffectiveMaxBooks() int {
	if m.MaxBooks > 0 {
		return m.MaxBooks
	}
	return DefaultMaxBooks
}

// IsStaff reports whether the member may perform librarian operations.
func (m Member) IsStaff() bool {
	return m.Role == RoleLibrarian || m.Role == RoleAdmin
}
