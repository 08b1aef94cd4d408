package circulation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nta-library/library-service/internal/app/domain/book"
	"github.com/nta-library/library-service/internal/app/domain/loan"
	"github.com/nta-library/library-service/internal/app/domain/member"
	"github.com/nta-library/library-service/internal/app/domain/request"
	"github.com/nta-library/library-service/internal/app/domain/reservation"
	"github.com/nta-library/library-service/internal/app/storage"
	"github.com/nta-library/library-service/internal/app/storage/memory"
)

type recordingNotifier struct {
	available []string
	returned  []string
}

func (n *recordingNotifier) ReservationAvailable(_ context.Context, res reservation.Reservation, _ book.Book) error {
	n.available = append(n.available, res.ID)
	return nil
}

func (n *recordingNotifier) ReturnConfirmation(_ context.Context, _ member.Member, _ book.Book, l loan.Loan) error {
	n.returned = append(n.returned, l.ID)
	return nil
}

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := New(store, store, store, store, store, Config{}, nil)
	return svc, store
}

func seedBook(t *testing.T, store *memory.Store) book.Book {
	t.Helper()
	b, err := store.CreateBook(context.Background(), book.Book{
		Title:     "The Go Programming Language",
		Author:    "Donovan & Kernighan",
		Available: true,
	})
	if err != nil {
		t.Fatalf("seed book: %v", err)
	}
	return b
}

func seedMember(t *testing.T, store *memory.Store, mutate func(*member.Member)) member.Member {
	t.Helper()
	m := member.Member{
		Username: "reader",
		Email:    "reader@example.com",
		Role:     member.RoleMember,
		Kind:     member.KindStudent,
		Status:   member.StatusActive,
		MaxBooks: member.DefaultMaxBooks,
	}
	if mutate != nil {
		mutate(&m)
	}
	created, err := store.CreateMember(context.Background(), m)
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return created
}

func TestBorrowHappyPath(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	b := seedBook(t, store)
	m := seedMember(t, store, nil)

	l, err := svc.Borrow(ctx, b.ID, m.ID, 0)
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	if l.Status != loan.StatusBorrowed {
		t.Fatalf("expected borrowed status, got %s", l.Status)
	}
	wantDue := l.BorrowedAt.AddDate(0, 0, DefaultLoanPeriodDays)
	if !l.DueDate.Equal(wantDue) {
		t.Fatalf("expected due %s, got %s", wantDue, l.DueDate)
	}

	updatedBook, _ := store.GetBook(ctx, b.ID)
	if updatedBook.Available {
		t.Fatal("expected book to be unavailable after borrow")
	}
	updatedMember, _ := store.GetMember(ctx, m.ID)
	if updatedMember.CurrentBooks != 1 {
		t.Fatalf("expected current books 1, got %d", updatedMember.CurrentBooks)
	}
}

func TestBorrowUnavailableBook(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	b := seedBook(t, store)
	b.Available = false
	if _, err := store.UpdateBook(ctx, b); err != nil {
		t.Fatalf("update book: %v", err)
	}
	m := seedMember(t, store, nil)

	if _, err := svc.Borrow(ctx, b.ID, m.ID, 7); !errors.Is(err, ErrBookUnavailable) {
		t.Fatalf("expected ErrBookUnavailable, got %v", err)
	}
}

func TestBorrowPolicyChecks(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*member.Member)
		want   error
	}{
		{"suspended member", func(m *member.Member) { m.Status = member.StatusSuspended }, ErrMemberInactive},
		{"at borrow limit", func(m *member.Member) { m.CurrentBooks = member.DefaultMaxBooks }, ErrBorrowLimitReached},
		{"fines over threshold", func(m *member.Member) { m.TotalFines = member.FineThreshold }, ErrOutstandingFines},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store := newTestService(t)
			b := seedBook(t, store)
			m := seedMember(t, store, tc.mutate)
			if _, err := svc.Borrow(context.Background(), b.ID, m.ID, 7); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestReturnOnTimeNoFine(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	b := seedBook(t, store)
	m := seedMember(t, store, nil)

	l, err := svc.Borrow(ctx, b.ID, m.ID, 14)
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}

	returned, err := svc.Return(ctx, l.ID)
	if err != nil {
		t.Fatalf("Return: %v", err)
	}
	if returned.Status != loan.StatusReturned {
		t.Fatalf("expected returned status, got %s", returned.Status)
	}
	if returned.FineAmount != 0 {
		t.Fatalf("expected no fine, got %.2f", returned.FineAmount)
	}

	updatedBook, _ := store.GetBook(ctx, b.ID)
	if !updatedBook.Available {
		t.Fatal("expected book to be available after return")
	}
	updatedMember, _ := store.GetMember(ctx, m.ID)
	if updatedMember.CurrentBooks != 0 {
		t.Fatalf("expected current books 0, got %d", updatedMember.CurrentBooks)
	}
}

func TestReturnOverdueAssessesFine(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	b := seedBook(t, store)
	m := seedMember(t, store, nil)

	l, err := svc.Borrow(ctx, b.ID, m.ID, 14)
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	// Push the due date three days into the past.
	l.DueDate = time.Now().UTC().AddDate(0, 0, -3)
	if _, err := store.UpdateLoan(ctx, l); err != nil {
		t.Fatalf("update loan: %v", err)
	}

	returned, err := svc.Return(ctx, l.ID)
	if err != nil {
		t.Fatalf("Return: %v", err)
	}
	if returned.FineAmount != 3*DefaultDailyFineRate {
		t.Fatalf("expected fine %.2f, got %.2f", 3*DefaultDailyFineRate, returned.FineAmount)
	}
	updatedMember, _ := store.GetMember(ctx, m.ID)
	if updatedMember.TotalFines != 3*DefaultDailyFineRate {
		t.Fatalf("expected member fines %.2f, got %.2f", 3*DefaultDailyFineRate, updatedMember.TotalFines)
	}
}

func TestReturnClosedLoanRejected(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	b := seedBook(t, store)
	m := seedMember(t, store, nil)

	l, err := svc.Borrow(ctx, b.ID, m.ID, 7)
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	if _, err := svc.Return(ctx, l.ID); err != nil {
		t.Fatalf("Return: %v", err)
	}
	if _, err := svc.Return(ctx, l.ID); !errors.Is(err, ErrLoanClosed) {
		t.Fatalf("expected ErrLoanClosed, got %v", err)
	}
}

func TestReturnNotifiesNextReservation(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	b := seedBook(t, store)
	borrower := seedMember(t, store, nil)
	waiter := seedMember(t, store, func(m *member.Member) {
		m.Username = "waiter"
		m.Email = "waiter@example.com"
	})

	l, err := svc.Borrow(ctx, b.ID, borrower.ID, 7)
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}

	res, err := store.CreateReservation(ctx, reservation.Reservation{
		BookID:     b.ID,
		MemberID:   waiter.ID,
		ReservedAt: time.Now().UTC(),
		ExpiresAt:  time.Now().UTC().AddDate(0, 0, 7),
		Status:     reservation.StatusActive,
	})
	if err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	notifier := &recordingNotifier{}
	svc.AttachNotifier(notifier)

	if _, err := svc.Return(ctx, l.ID); err != nil {
		t.Fatalf("Return: %v", err)
	}
	if len(notifier.available) != 1 || notifier.available[0] != res.ID {
		t.Fatalf("expected reservation %s notified, got %v", res.ID, notifier.available)
	}
	if len(notifier.returned) != 1 {
		t.Fatalf("expected one return confirmation, got %d", len(notifier.returned))
	}
}

func TestBorrowFulfilsOwnReservation(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	b := seedBook(t, store)
	m := seedMember(t, store, nil)

	res, err := store.CreateReservation(ctx, reservation.Reservation{
		BookID:     b.ID,
		MemberID:   m.ID,
		ReservedAt: time.Now().UTC(),
		ExpiresAt:  time.Now().UTC().AddDate(0, 0, 7),
		Status:     reservation.StatusActive,
	})
	if err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	if _, err := svc.Borrow(ctx, b.ID, m.ID, 7); err != nil {
		t.Fatalf("Borrow: %v", err)
	}

	updated, _ := store.GetReservation(ctx, res.ID)
	if updated.Status != reservation.StatusFulfilled {
		t.Fatalf("expected fulfilled reservation, got %s", updated.Status)
	}
}

func TestMarkLost(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	b := seedBook(t, store)
	m := seedMember(t, store, nil)

	l, err := svc.Borrow(ctx, b.ID, m.ID, 7)
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}

	lost, err := svc.MarkLost(ctx, l.ID, "reported missing by member")
	if err != nil {
		t.Fatalf("MarkLost: %v", err)
	}
	if lost.Status != loan.StatusLost {
		t.Fatalf("expected lost status, got %s", lost.Status)
	}

	updatedBook, _ := store.GetBook(ctx, b.ID)
	if updatedBook.Available {
		t.Fatal("lost copy must stay unavailable")
	}
}

func TestSweepOverdue(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	b := seedBook(t, store)
	m := seedMember(t, store, nil)

	l, err := svc.Borrow(ctx, b.ID, m.ID, 7)
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	l.DueDate = time.Now().UTC().AddDate(0, 0, -1)
	if _, err := store.UpdateLoan(ctx, l); err != nil {
		t.Fatalf("update loan: %v", err)
	}

	changed, err := svc.SweepOverdue(ctx)
	if err != nil {
		t.Fatalf("SweepOverdue: %v", err)
	}
	if changed != 1 {
		t.Fatalf("expected 1 loan swept, got %d", changed)
	}

	updated, _ := store.GetLoan(ctx, l.ID)
	if updated.Status != loan.StatusOverdue {
		t.Fatalf("expected overdue status, got %s", updated.Status)
	}

	// A second sweep finds nothing to do.
	changed, err = svc.SweepOverdue(ctx)
	if err != nil {
		t.Fatalf("SweepOverdue: %v", err)
	}
	if changed != 0 {
		t.Fatalf("expected 0 loans swept, got %d", changed)
	}
}

func TestBorrowRequestWorkflow(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	b := seedBook(t, store)
	m := seedMember(t, store, nil)
	reviewer := seedMember(t, store, func(mem *member.Member) {
		mem.Username = "librarian"
		mem.Email = "librarian@example.com"
		mem.Role = member.RoleLibrarian
	})

	req, err := svc.RequestBorrow(ctx, b.ID, m.ID, 10, "needed for coursework")
	if err != nil {
		t.Fatalf("RequestBorrow: %v", err)
	}
	if req.Status != request.StatusPending {
		t.Fatalf("expected pending request, got %s", req.Status)
	}

	// Duplicate pending requests for the same copy are rejected.
	if _, err := svc.RequestBorrow(ctx, b.ID, m.ID, 10, ""); err == nil {
		t.Fatal("expected duplicate pending request to be rejected")
	}

	approved, l, err := svc.ApproveBorrowRequest(ctx, req.ID, reviewer.ID, "ok")
	if err != nil {
		t.Fatalf("ApproveBorrowRequest: %v", err)
	}
	if approved.Status != request.StatusApproved {
		t.Fatalf("expected approved request, got %s", approved.Status)
	}
	if approved.ProcessedBy != reviewer.ID {
		t.Fatalf("expected reviewer %s, got %s", reviewer.ID, approved.ProcessedBy)
	}
	if l.Status != loan.StatusBorrowed {
		t.Fatalf("expected borrowed loan, got %s", l.Status)
	}

	// Already processed requests cannot be decided again.
	if _, _, err := svc.ApproveBorrowRequest(ctx, req.ID, reviewer.ID, ""); err == nil {
		t.Fatal("expected second approval to fail")
	}
}

func TestDenyBorrowRequest(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	b := seedBook(t, store)
	m := seedMember(t, store, nil)

	req, err := svc.RequestBorrow(ctx, b.ID, m.ID, 0, "")
	if err != nil {
		t.Fatalf("RequestBorrow: %v", err)
	}

	denied, err := svc.DenyBorrowRequest(ctx, req.ID, "admin-1", "copy reserved for course")
	if err != nil {
		t.Fatalf("DenyBorrowRequest: %v", err)
	}
	if denied.Status != request.StatusDenied {
		t.Fatalf("expected denied request, got %s", denied.Status)
	}

	// The copy was never checked out.
	updatedBook, _ := store.GetBook(ctx, b.ID)
	if !updatedBook.Available {
		t.Fatal("expected book to stay available after denial")
	}
}

func TestCancelBorrowRequestOwnership(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	b := seedBook(t, store)
	m := seedMember(t, store, nil)
	other := seedMember(t, store, func(mem *member.Member) {
		mem.Username = "other"
		mem.Email = "other@example.com"
	})

	req, err := svc.RequestBorrow(ctx, b.ID, m.ID, 0, "")
	if err != nil {
		t.Fatalf("RequestBorrow: %v", err)
	}

	if _, err := svc.CancelBorrowRequest(ctx, req.ID, other.ID); err == nil {
		t.Fatal("expected cancel by non-owner to fail")
	}
	cancelled, err := svc.CancelBorrowRequest(ctx, req.ID, m.ID)
	if err != nil {
		t.Fatalf("CancelBorrowRequest: %v", err)
	}
	if cancelled.Status != request.StatusCancelled {
		t.Fatalf("expected cancelled request, got %s", cancelled.Status)
	}
}

func TestReturnRequestWorkflow(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	b := seedBook(t, store)
	m := seedMember(t, store, nil)

	l, err := svc.Borrow(ctx, b.ID, m.ID, 7)
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}

	// Only the borrowing member may request a return.
	if _, err := svc.RequestReturn(ctx, l.ID, "someone-else", ""); err == nil {
		t.Fatal("expected return request by non-owner to fail")
	}

	req, err := svc.RequestReturn(ctx, l.ID, m.ID, "done reading")
	if err != nil {
		t.Fatalf("RequestReturn: %v", err)
	}

	approved, returned, err := svc.ApproveReturnRequest(ctx, req.ID, "admin-1", "")
	if err != nil {
		t.Fatalf("ApproveReturnRequest: %v", err)
	}
	if approved.Status != request.StatusApproved {
		t.Fatalf("expected approved request, got %s", approved.Status)
	}
	if returned.Status != loan.StatusReturned {
		t.Fatalf("expected returned loan, got %s", returned.Status)
	}
}

func TestOverdueListing(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	b := seedBook(t, store)
	m := seedMember(t, store, nil)

	l, err := svc.Borrow(ctx, b.ID, m.ID, 7)
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	l.DueDate = time.Now().UTC().AddDate(0, 0, -2)
	if _, err := store.UpdateLoan(ctx, l); err != nil {
		t.Fatalf("update loan: %v", err)
	}

	overdue, err := svc.Overdue(ctx)
	if err != nil {
		t.Fatalf("Overdue: %v", err)
	}
	if len(overdue) != 1 || overdue[0].ID != l.ID {
		t.Fatalf("expected loan %s overdue, got %v", l.ID, overdue)
	}
}

func TestListLoansFilter(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	b := seedBook(t, store)
	m := seedMember(t, store, nil)

	if _, err := svc.Borrow(ctx, b.ID, m.ID, 7); err != nil {
		t.Fatalf("Borrow: %v", err)
	}

	loans, err := svc.ListLoans(ctx, storage.LoanFilter{MemberID: m.ID, Status: loan.StatusBorrowed})
	if err != nil {
		t.Fatalf("ListLoans: %v", err)
	}
	if len(loans) != 1 {
		t.Fatalf("expected 1 loan, got %d", len(loans))
	}
}
