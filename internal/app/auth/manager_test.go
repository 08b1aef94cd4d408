package auth

import (
	"testing"
	"time"

	"github.com/nta-library/library-service/internal/app/domain/member"
)

func TestIssueAndVerify(t *testing.T) {
	mgr := NewManager("test-secret", time.Hour)
	token, err := mgr.IssueToken(member.Member{
		ID:       "42",
		Username: "alice",
		Role:     member.RoleLibrarian,
	})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	claims, err := mgr.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.MemberID != "42" || claims.Username != "alice" || claims.Role != "librarian" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewManager("secret-a", time.Hour).IssueToken(member.Member{ID: "1"})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := NewManager("secret-b", time.Hour).Verify(token); err == nil {
		t.Fatal("expected verification to fail under a different secret")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	mgr := NewManager("test-secret", time.Nanosecond)
	token, err := mgr.IssueToken(member.Member{ID: "1"})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := mgr.Verify(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	mgr := NewManager("test-secret", 0)
	if _, err := mgr.Verify("not-a-token"); err == nil {
		t.Fatal("expected parse failure")
	}
}
