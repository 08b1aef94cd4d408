package members

import (
	"context"
	"errors"
	"testing"

	"github.com/nta-library/library-service/internal/app/domain/member"
	"github.com/nta-library/library-service/internal/app/storage/memory"
)

type recordingNotifier struct {
	welcomed []string
}

func (n *recordingNotifier) Welcome(_ context.Context, m member.Member) error {
	n.welcomed = append(n.welcomed, m.Username)
	return nil
}

func register(t *testing.T, svc *Service, username string) member.Member {
	t.Helper()
	m, err := svc.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "correct horse battery",
		FullName: "Test Member",
	})
	if err != nil {
		t.Fatalf("Register %s: %v", username, err)
	}
	return m
}

func TestRegisterDefaults(t *testing.T) {
	svc := New(memory.New(), nil)
	notifier := &recordingNotifier{}
	svc.AttachNotifier(notifier)

	m := register(t, svc, "alice")
	if m.Role != member.RoleMember || m.Status != member.StatusActive {
		t.Fatalf("unexpected role/status: %s/%s", m.Role, m.Status)
	}
	if m.Kind != member.KindStudent {
		t.Fatalf("expected default kind student, got %q", m.Kind)
	}
	if m.MaxBooks != member.DefaultMaxBooks {
		t.Fatalf("expected default borrow limit, got %d", m.MaxBooks)
	}
	if !m.EmailNotifications {
		t.Fatal("expected email notifications on by default")
	}
	if m.PasswordHash == "" || m.PasswordHash == "correct horse battery" {
		t.Fatal("expected password to be hashed")
	}
	if len(notifier.welcomed) != 1 || notifier.welcomed[0] != "alice" {
		t.Fatalf("expected welcome notification, got %v", notifier.welcomed)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	cases := []struct {
		name string
		in   RegisterInput
	}{
		{"missing username", RegisterInput{Email: "a@b.c", Password: "long enough pw"}},
		{"missing email", RegisterInput{Username: "a", Password: "long enough pw"}},
		{"short password", RegisterInput{Username: "a", Email: "a@b.c", Password: "short"}},
		{"bad kind", RegisterInput{Username: "a", Email: "a@b.c", Password: "long enough pw", Kind: "robot"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tc.in); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	register(t, svc, "taken")
	if _, err := svc.Register(ctx, RegisterInput{
		Username: "taken",
		Email:    "other@example.com",
		Password: "long enough pw",
	}); err == nil {
		t.Fatal("expected error for duplicate username")
	}
}

func TestAuthenticate(t *testing.T) {
	svc := New(memory.New(), nil)
	register(t, svc, "alice")
	ctx := context.Background()

	if _, err := svc.Authenticate(ctx, "alice", "correct horse battery"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody", "correct horse battery"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc := New(memory.New(), nil)
	m := register(t, svc, "alice")
	ctx := context.Background()

	phone := "555-0100"
	off := false
	updated, err := svc.UpdateProfile(ctx, m.ID, Update{Phone: &phone, EmailNotifications: &off})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.Phone != phone || updated.EmailNotifications {
		t.Fatalf("update not applied: %+v", updated)
	}

	zero := 0
	if _, err := svc.UpdateProfile(ctx, m.ID, Update{MaxBooks: &zero}); err == nil {
		t.Fatal("expected error for non-positive max_books")
	}
	empty := ""
	if _, err := svc.UpdateProfile(ctx, m.ID, Update{Email: &empty}); err == nil {
		t.Fatal("expected error when clearing email")
	}
}

func TestSetStatusAndRole(t *testing.T) {
	svc := New(memory.New(), nil)
	m := register(t, svc, "alice")
	ctx := context.Background()

	suspended, err := svc.SetStatus(ctx, m.ID, member.StatusSuspended)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if suspended.Status != member.StatusSuspended {
		t.Fatalf("expected suspended, got %s", suspended.Status)
	}
	if _, err := svc.SetStatus(ctx, m.ID, member.Status("frozen")); err == nil {
		t.Fatal("expected error for unknown status")
	}

	promoted, err := svc.SetRole(ctx, m.ID, member.RoleLibrarian)
	if err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	if promoted.Role != member.RoleLibrarian {
		t.Fatalf("expected librarian, got %s", promoted.Role)
	}
	if _, err := svc.SetRole(ctx, m.ID, member.Role("overlord")); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestPayFine(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	m := register(t, svc, "alice")
	ctx := context.Background()

	m.TotalFines = 10
	if _, err := store.UpdateMember(ctx, m); err != nil {
		t.Fatalf("seed fines: %v", err)
	}

	after, err := svc.PayFine(ctx, m.ID, 4)
	if err != nil {
		t.Fatalf("PayFine: %v", err)
	}
	if after.TotalFines != 6 {
		t.Fatalf("expected 6.00 outstanding, got %.2f", after.TotalFines)
	}

	if _, err := svc.PayFine(ctx, m.ID, 100); err == nil {
		t.Fatal("expected error for overpayment")
	}
	if _, err := svc.PayFine(ctx, m.ID, 0); err == nil {
		t.Fatal("expected error for non-positive amount")
	}
}

func TestEnsureAdmin(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	admin, created, err := svc.EnsureAdmin(ctx, "admin", "admin@library.com", "admin123")
	if err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	if !created {
		t.Fatal("expected first call to create the administrator")
	}
	if admin.Role != member.RoleAdmin {
		t.Fatalf("expected admin role, got %s", admin.Role)
	}

	again, created, err := svc.EnsureAdmin(ctx, "admin", "admin@library.com", "admin123")
	if err != nil {
		t.Fatalf("EnsureAdmin second call: %v", err)
	}
	if created || again.ID != admin.ID {
		t.Fatal("expected second call to return the existing administrator")
	}
}
