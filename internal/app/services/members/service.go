// Package members manages membership records, credentials and fines.
package members

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nta-library/library-service/internal/app/domain/member"
	"github.com/nta-library/library-service/internal/app/storage"
	"github.com/nta-library/library-service/pkg/logger"
)

// ErrInvalidCredentials is returned when a username/password pair does not
// match a stored member.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Notifier receives membership events. Delivery failures are logged, never
// surfaced to the caller.
type Notifier interface {
	Welcome(ctx context.Context, m member.Member) error
}

// Service manages membership records.
type Service struct {
	store    storage.MemberStore
	log      *logger.Logger
	notifier Notifier
}

// New constructs a members service.
func New(store storage.MemberStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("members")
	}
	return &Service{store: store, log: log}
}

// AttachNotifier wires the notification sink. Call before serving requests.
func (s *Service) AttachNotifier(n Notifier) {
	s.notifier = n
}

// RegisterInput carries the fields accepted at sign-up.
type RegisterInput struct {
	Username   string
	Email      string
	Password   string
	FullName   string
	Kind       string
	Phone      string
	Department string
}

// Register validates input, hashes the password and creates an active member.
func (s *Service) Register(ctx context.Context, in RegisterInput) (member.Member, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if in.Username == "" {
		return member.Member{}, fmt.Errorf("username is required")
	}
	if in.Email == "" {
		return member.Member{}, fmt.Errorf("email is required")
	}
	if len(in.Password) < 8 {
		return member.Member{}, fmt.Errorf("password must be at least 8 characters")
	}

	kind := member.Kind(strings.ToLower(strings.TrimSpace(in.Kind)))
	if kind == "" {
		kind = member.KindStudent
	}
	switch kind {
	case member.KindStudent, member.KindFaculty, member.KindStaff, member.KindExternal:
	default:
		return member.Member{}, fmt.Errorf("unsupported member kind %q", kind)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return member.Member{}, fmt.Errorf("hash password: %w", err)
	}

	m := member.Member{
		Username:           in.Username,
		Email:              in.Email,
		PasswordHash:       string(hash),
		FullName:           in.FullName,
		Role:               member.RoleMember,
		Kind:               kind,
		Status:             member.StatusActive,
		Phone:              strings.TrimSpace(in.Phone),
		Department:         strings.TrimSpace(in.Department),
		MaxBooks:           member.DefaultMaxBooks,
		EmailNotifications: true,
		MembershipExpiry:   time.Now().UTC().AddDate(1, 0, 0),
	}

	created, err := s.store.CreateMember(ctx, m)
	if err != nil {
		return member.Member{}, err
	}
	s.log.WithField("member_id", created.ID).
		WithField("username", created.Username).
		Info("member registered")

	if s.notifier != nil {
		if err := s.notifier.Welcome(ctx, created); err != nil {
			s.log.WithError(err).Warn("welcome notification failed")
		}
	}
	return created, nil
}

// Authenticate checks a username/password pair and returns the member.
func (s *Service) Authenticate(ctx context.Context, username, password string) (member.Member, error) {
	m, err := s.store.GetMemberByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return member.Member{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)) != nil {
		return member.Member{}, ErrInvalidCredentials
	}
	return m, nil
}

// Update carries optional profile changes. Nil fields are left untouched.
type Update struct {
	Email              *string
	FullName           *string
	Phone              *string
	Department         *string
	MaxBooks           *int
	EmailNotifications *bool
}

// UpdateProfile applies the provided field changes.
func (s *Service) UpdateProfile(ctx context.Context, id string, upd Update) (member.Member, error) {
	m, err := s.store.GetMember(ctx, id)
	if err != nil {
		return member.Member{}, err
	}

	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if email == "" {
			return member.Member{}, fmt.Errorf("email cannot be empty")
		}
		m.Email = email
	}
	if upd.FullName != nil {
		m.FullName = strings.TrimSpace(*upd.FullName)
	}
	if upd.Phone != nil {
		m.Phone = strings.TrimSpace(*upd.Phone)
	}
	if upd.Department != nil {
		m.Department = strings.TrimSpace(*upd.Department)
	}
	if upd.MaxBooks != nil {
		if *upd.MaxBooks <= 0 {
			return member.Member{}, fmt.Errorf("max_books must be positive")
		}
		m.MaxBooks = *upd.MaxBooks
	}
	if upd.EmailNotifications != nil {
		m.EmailNotifications = *upd.EmailNotifications
	}

	updated, err := s.store.UpdateMember(ctx, m)
	if err != nil {
		return member.Member{}, err
	}
	s.log.WithField("member_id", id).Info("member profile updated")
	return updated, nil
}

// SetStatus moves a membership to a new lifecycle state.
func (s *Service) SetStatus(ctx context.Context, id string, status member.Status) (member.Member, error) {
	switch status {
	case member.StatusActive, member.StatusSuspended, member.StatusExpired, member.StatusPending:
	default:
		return member.Member{}, fmt.Errorf("unsupported member status %q", status)
	}

	m, err := s.store.GetMember(ctx, id)
	if err != nil {
		return member.Member{}, err
	}
	m.Status = status
	updated, err := s.store.UpdateMember(ctx, m)
	if err != nil {
		return member.Member{}, err
	}
	s.log.WithField("member_id", id).
		WithField("status", status).
		Info("member status changed")
	return updated, nil
}

// SetRole promotes or demotes a member.
func (s *Service) SetRole(ctx context.Context, id string, role member.Role) (member.Member, error) {
	switch role {
	case member.RoleMember, member.RoleLibrarian, member.RoleAdmin:
	default:
		return member.Member{}, fmt.Errorf("unsupported member role %q", role)
	}

	m, err := s.store.GetMember(ctx, id)
	if err != nil {
		return member.Member{}, err
	}
	m.Role = role
	updated, err := s.store.UpdateMember(ctx, m)
	if err != nil {
		return member.Member{}, err
	}
	s.log.WithField("member_id", id).
		WithField("role", role).
		Info("member role changed")
	return updated, nil
}

// PayFine reduces the member's outstanding fine balance.
func (s *Service) PayFine(ctx context.Context, id string, amount float64) (member.Member, error) {
	if amount <= 0 {
		return member.Member{}, fmt.Errorf("amount must be positive")
	}

	m, err := s.store.GetMember(ctx, id)
	if err != nil {
		return member.Member{}, err
	}
	if amount > m.TotalFines {
		return member.Member{}, fmt.Errorf("payment %.2f exceeds outstanding fines %.2f", amount, m.TotalFines)
	}
	m.TotalFines -= amount
	updated, err := s.store.UpdateMember(ctx, m)
	if err != nil {
		return member.Member{}, err
	}
	s.log.WithField("member_id", id).
		WithField("amount", amount).
		Info("fine payment recorded")
	return updated, nil
}

// Get returns a single member.
func (s *Service) Get(ctx context.Context, id string) (member.Member, error) {
	return s.store.GetMember(ctx, id)
}

// GetByUsername returns a single member by login name.
func (s *Service) GetByUsername(ctx context.Context, username string) (member.Member, error) {
	return s.store.GetMemberByUsername(ctx, username)
}

// List returns all members.
func (s *Service) List(ctx context.Context) ([]member.Member, error) {
	return s.store.ListMembers(ctx)
}

// EnsureAdmin creates the bootstrap administrator if the username is free.
// An existing member with the same username is left untouched.
func (s *Service) EnsureAdmin(ctx context.Context, username, email, password string) (member.Member, bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return member.Member{}, false, fmt.Errorf("admin username is required")
	}

	if existing, err := s.store.GetMemberByUsername(ctx, username); err == nil {
		return existing, false, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return member.Member{}, false, fmt.Errorf("hash password: %w", err)
	}

	m := member.Member{
		Username:           username,
		Email:              strings.TrimSpace(email),
		PasswordHash:       string(hash),
		FullName:           "Administrator",
		Role:               member.RoleAdmin,
		Kind:               member.KindStaff,
		Status:             member.StatusActive,
		MaxBooks:           member.DefaultMaxBooks,
		EmailNotifications: true,
	}
	created, err := s.store.CreateMember(ctx, m)
	if err != nil {
		return member.Member{}, false, err
	}
	s.log.WithField("username", username).Info("bootstrap administrator created")
	return created, true, nil
}
