package reports

import (
	"context"
	"testing"
	"time"

	"github.com/nta-library/library-service/internal/app/domain/book"
	"github.com/nta-library/library-service/internal/app/domain/loan"
	"github.com/nta-library/library-service/internal/app/domain/member"
	"github.com/nta-library/library-service/internal/app/domain/reservation"
	"github.com/nta-library/library-service/internal/app/storage/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := New(store, store, store, store, nil, nil)
	return svc, store
}

func TestInvalidateCacheWithoutCache(t *testing.T) {
	svc, _ := newTestService(t)
	// Cacheless deployments must tolerate invalidation calls.
	svc.InvalidateCache(context.Background())
}

func TestDashboardCounts(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	b1, err := store.CreateBook(ctx, book.Book{Title: "A", Author: "X", Available: false})
	if err != nil {
		t.Fatalf("seed book: %v", err)
	}
	b2, err := store.CreateBook(ctx, book.Book{Title: "B", Author: "Y", Available: true})
	if err != nil {
		t.Fatalf("seed book: %v", err)
	}

	m1, err := store.CreateMember(ctx, member.Member{
		Username: "active", Email: "active@example.com",
		Status: member.StatusActive, TotalFines: 3.5,
	})
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}
	if _, err := store.CreateMember(ctx, member.Member{
		Username: "suspended", Email: "suspended@example.com",
		Status: member.StatusSuspended,
	}); err != nil {
		t.Fatalf("seed member: %v", err)
	}

	now := time.Now().UTC()
	// Outstanding and overdue.
	if _, err := store.CreateLoan(ctx, loan.Loan{
		BookID: b1.ID, MemberID: m1.ID,
		BorrowedAt: now.AddDate(0, 0, -20),
		DueDate:    now.AddDate(0, 0, -2),
		Status:     loan.StatusOverdue,
	}); err != nil {
		t.Fatalf("seed loan: %v", err)
	}
	// Returned this month.
	if _, err := store.CreateLoan(ctx, loan.Loan{
		BookID: b1.ID, MemberID: m1.ID,
		BorrowedAt: now.AddDate(0, 0, -7),
		DueDate:    now.AddDate(0, 0, 7),
		ReturnedAt: now,
		Status:     loan.StatusReturned,
	}); err != nil {
		t.Fatalf("seed loan: %v", err)
	}

	if _, err := store.CreateReservation(ctx, reservation.Reservation{
		BookID: b1.ID, MemberID: m1.ID,
		ReservedAt: now,
		ExpiresAt:  now.AddDate(0, 0, 7),
		Status:     reservation.StatusActive,
	}); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	dash, err := svc.DashboardSnapshot(ctx)
	if err != nil {
		t.Fatalf("DashboardSnapshot: %v", err)
	}

	if dash.TotalBooks != 2 || dash.AvailableBooks != 1 {
		t.Fatalf("book counts wrong: total=%d available=%d", dash.TotalBooks, dash.AvailableBooks)
	}
	if dash.TotalMembers != 2 || dash.ActiveMembers != 1 {
		t.Fatalf("member counts wrong: total=%d active=%d", dash.TotalMembers, dash.ActiveMembers)
	}
	if dash.TotalLoans != 2 || dash.ActiveLoans != 1 || dash.OverdueLoans != 1 {
		t.Fatalf("loan counts wrong: total=%d active=%d overdue=%d",
			dash.TotalLoans, dash.ActiveLoans, dash.OverdueLoans)
	}
	if dash.ReturnsThisMonth != 1 {
		t.Fatalf("expected 1 return this month, got %d", dash.ReturnsThisMonth)
	}
	if dash.ActiveReservations != 1 {
		t.Fatalf("expected 1 active reservation, got %d", dash.ActiveReservations)
	}
	if dash.OutstandingFines != 3.5 {
		t.Fatalf("expected outstanding fines 3.5, got %.2f", dash.OutstandingFines)
	}

	if len(dash.PopularBooks) == 0 || dash.PopularBooks[0].BookID != b1.ID {
		t.Fatalf("expected %s as most popular, got %v", b1.ID, dash.PopularBooks)
	}
	for _, pb := range dash.PopularBooks {
		if pb.BookID == b2.ID {
			t.Fatalf("book with no loans must not appear in popular list")
		}
	}
}

func TestPopularBooksRankingAndLimit(t *testing.T) {
	counts := map[string]int{}
	titles := map[string][2]string{}
	for i := 0; i < PopularBookLimit+5; i++ {
		id := string(rune('a' + i))
		counts[id] = i + 1
		titles[id] = [2]string{"T" + id, "A" + id}
	}

	ranked := popularBooks(counts, titles)
	if len(ranked) != PopularBookLimit {
		t.Fatalf("expected %d entries, got %d", PopularBookLimit, len(ranked))
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].LoanCount > ranked[i-1].LoanCount {
			t.Fatalf("ranking not descending at %d", i)
		}
	}
}
