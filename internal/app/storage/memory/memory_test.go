package memory

import (
	"context"
	"testing"
	"time"

	"github.com/nta-library/library-service/internal/app/domain/book"
	"github.com/nta-library/library-service/internal/app/domain/loan"
	"github.com/nta-library/library-service/internal/app/domain/member"
	"github.com/nta-library/library-service/internal/app/domain/message"
	"github.com/nta-library/library-service/internal/app/domain/request"
	"github.com/nta-library/library-service/internal/app/domain/reservation"
	"github.com/nta-library/library-service/internal/app/storage"
)

func TestBookCRUD(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateBook(ctx, book.Book{Title: "Dune", Author: "Frank Herbert", Available: true})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("expected assigned id and timestamps: %+v", created)
	}

	created.Title = "Dune Messiah"
	updated, err := store.UpdateBook(ctx, created)
	if err != nil {
		t.Fatalf("UpdateBook: %v", err)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatal("expected CreatedAt to be preserved on update")
	}

	got, err := store.GetBook(ctx, created.ID)
	if err != nil || got.Title != "Dune Messiah" {
		t.Fatalf("GetBook: %v %+v", err, got)
	}

	if err := store.DeleteBook(ctx, created.ID); err != nil {
		t.Fatalf("DeleteBook: %v", err)
	}
	if _, err := store.GetBook(ctx, created.ID); err == nil {
		t.Fatal("expected deleted book to be gone")
	}
	if err := store.DeleteBook(ctx, created.ID); err == nil {
		t.Fatal("expected error deleting a missing book")
	}
}

func TestListBooksFilter(t *testing.T) {
	store := New()
	ctx := context.Background()

	cat, err := store.CreateCategory(ctx, book.Category{Name: "Science", Slug: "science"})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if _, err := store.CreateBook(ctx, book.Book{Title: "Cosmos", Author: "Carl Sagan", CategoryID: cat.ID, Available: true}); err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	if _, err := store.CreateBook(ctx, book.Book{Title: "Dune", Author: "Frank Herbert", Keywords: "sandworms"}); err != nil {
		t.Fatalf("CreateBook: %v", err)
	}

	avail := true
	byAvail, _ := store.ListBooks(ctx, storage.BookFilter{Available: &avail})
	if len(byAvail) != 1 || byAvail[0].Title != "Cosmos" {
		t.Fatalf("unexpected availability filter result: %+v", byAvail)
	}

	byQuery, _ := store.ListBooks(ctx, storage.BookFilter{Query: "sandworms"})
	if len(byQuery) != 1 || byQuery[0].Title != "Dune" {
		t.Fatalf("unexpected keyword result: %+v", byQuery)
	}

	byCategory, _ := store.ListBooks(ctx, storage.BookFilter{CategoryID: cat.ID})
	if len(byCategory) != 1 || byCategory[0].Title != "Cosmos" {
		t.Fatalf("unexpected category result: %+v", byCategory)
	}
}

func TestMemberUniqueness(t *testing.T) {
	store := New()
	ctx := context.Background()

	first, err := store.CreateMember(ctx, member.Member{Username: "Alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("CreateMember: %v", err)
	}

	if _, err := store.CreateMember(ctx, member.Member{Username: "alice", Email: "other@example.com"}); err == nil {
		t.Fatal("expected case-insensitive username conflict")
	}
	if _, err := store.CreateMember(ctx, member.Member{Username: "bob", Email: "ALICE@example.com"}); err == nil {
		t.Fatal("expected case-insensitive email conflict")
	}
	if _, err := store.CreateMember(ctx, member.Member{Email: "x@example.com"}); err == nil {
		t.Fatal("expected error for missing username")
	}

	bob, err := store.CreateMember(ctx, member.Member{Username: "bob", Email: "bob@example.com"})
	if err != nil {
		t.Fatalf("CreateMember bob: %v", err)
	}
	bob.Email = "alice@example.com"
	if _, err := store.UpdateMember(ctx, bob); err == nil {
		t.Fatal("expected update to reject a taken email")
	}

	// Renaming frees the old username for reuse.
	first.Username = "renamed"
	if _, err := store.UpdateMember(ctx, first); err != nil {
		t.Fatalf("UpdateMember rename: %v", err)
	}
	if _, err := store.GetMemberByUsername(ctx, "alice"); err == nil {
		t.Fatal("expected old username lookup to fail after rename")
	}
	if _, err := store.GetMemberByUsername(ctx, "renamed"); err != nil {
		t.Fatalf("expected new username lookup to work: %v", err)
	}
}

func TestLoanFiltersAndOutstanding(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now().UTC()

	open, err := store.CreateLoan(ctx, loan.Loan{
		BookID: "b1", MemberID: "m1",
		BorrowedAt: now.Add(-48 * time.Hour),
		DueDate:    now.Add(-24 * time.Hour),
		Status:     loan.StatusOverdue,
	})
	if err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}
	if _, err := store.CreateLoan(ctx, loan.Loan{
		BookID: "b2", MemberID: "m1",
		BorrowedAt: now.Add(-24 * time.Hour),
		DueDate:    now.Add(24 * time.Hour),
		ReturnedAt: now,
		Status:     loan.StatusReturned,
	}); err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}

	byStatus, _ := store.ListLoans(ctx, storage.LoanFilter{Status: loan.StatusOverdue})
	if len(byStatus) != 1 || byStatus[0].ID != open.ID {
		t.Fatalf("unexpected status filter result: %+v", byStatus)
	}
	byMember, _ := store.ListLoans(ctx, storage.LoanFilter{MemberID: "m1"})
	if len(byMember) != 2 {
		t.Fatalf("expected 2 loans for m1, got %d", len(byMember))
	}

	outstanding, _ := store.ListOutstandingLoans(ctx)
	if len(outstanding) != 1 || outstanding[0].ID != open.ID {
		t.Fatalf("unexpected outstanding loans: %+v", outstanding)
	}
}

func TestReservationListing(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now().UTC()

	active, err := store.CreateReservation(ctx, reservation.Reservation{
		BookID: "b1", MemberID: "m1",
		ReservedAt: now, ExpiresAt: now.Add(72 * time.Hour),
		Status: reservation.StatusActive,
	})
	if err != nil {
		t.Fatalf("CreateReservation: %v", err)
	}
	if _, err := store.CreateReservation(ctx, reservation.Reservation{
		BookID: "b2", MemberID: "m2",
		ReservedAt: now, ExpiresAt: now,
		Status: reservation.StatusExpired,
	}); err != nil {
		t.Fatalf("CreateReservation: %v", err)
	}

	actives, _ := store.ListActiveReservations(ctx)
	if len(actives) != 1 || actives[0].ID != active.ID {
		t.Fatalf("unexpected active reservations: %+v", actives)
	}

	byBook, _ := store.ListReservations(ctx, storage.ReservationFilter{BookID: "b1"})
	if len(byBook) != 1 {
		t.Fatalf("expected 1 reservation for b1, got %d", len(byBook))
	}
}

func TestRequestListing(t *testing.T) {
	store := New()
	ctx := context.Background()

	pending, err := store.CreateBorrowRequest(ctx, request.BorrowRequest{
		BookID: "b1", MemberID: "m1", Status: request.StatusPending,
	})
	if err != nil {
		t.Fatalf("CreateBorrowRequest: %v", err)
	}
	if _, err := store.CreateBorrowRequest(ctx, request.BorrowRequest{
		BookID: "b2", MemberID: "m2", Status: request.StatusApproved,
	}); err != nil {
		t.Fatalf("CreateBorrowRequest: %v", err)
	}

	byStatus, _ := store.ListBorrowRequests(ctx, "", request.StatusPending)
	if len(byStatus) != 1 || byStatus[0].ID != pending.ID {
		t.Fatalf("unexpected pending requests: %+v", byStatus)
	}
	byMember, _ := store.ListBorrowRequests(ctx, "m2", "")
	if len(byMember) != 1 {
		t.Fatalf("expected 1 request for m2, got %d", len(byMember))
	}

	ret, err := store.CreateReturnRequest(ctx, request.ReturnRequest{
		LoanID: "l1", MemberID: "m1", Status: request.StatusPending,
	})
	if err != nil {
		t.Fatalf("CreateReturnRequest: %v", err)
	}
	rets, _ := store.ListReturnRequests(ctx, "m1", request.StatusPending)
	if len(rets) != 1 || rets[0].ID != ret.ID {
		t.Fatalf("unexpected return requests: %+v", rets)
	}
}

func TestMessageListing(t *testing.T) {
	store := New()
	ctx := context.Background()

	msg, err := store.CreateMessage(ctx, message.Message{
		MemberID: "m1", Subject: "Welcome", Body: "hello",
	})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if _, err := store.CreateMessage(ctx, message.Message{MemberID: "m2", Subject: "Other"}); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	inbox, _ := store.ListMessages(ctx, "m1")
	if len(inbox) != 1 || inbox[0].ID != msg.ID {
		t.Fatalf("unexpected inbox: %+v", inbox)
	}

	msg.Read = true
	if _, err := store.UpdateMessage(ctx, msg); err != nil {
		t.Fatalf("UpdateMessage: %v", err)
	}
	got, err := store.GetMessage(ctx, msg.ID)
	if err != nil || !got.Read {
		t.Fatalf("expected message marked read: %v %+v", err, got)
	}
}
