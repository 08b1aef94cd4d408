package storage

import (
	"context"

	"github.com/nta-library/library-service/internal/app/domain/book"
	"github.com/nta-library/library-service/internal/app/domain/loan"
	"github.com/nta-library/library-service/internal/app/domain/member"
	"github.com/nta-library/library-service/internal/app/domain/message"
	"github.com/nta-library/library-service/internal/app/domain/request"
	"github.com/nta-library/library-service/internal/app/domain/reservation"
)

// BookFilter narrows catalogue listings. Query matches title, author, ISBN
// and keywords case-insensitively.
type BookFilter struct {
	Query      string
	CategoryID string
	Available  *bool
}

// LoanFilter narrows loan listings. Zero values match everything.
type LoanFilter struct {
	MemberID string
	BookID   string
	Status   loan.Status
}

// ReservationFilter narrows reservation listings. Zero values match everything.
type ReservationFilter struct {
	MemberID string
	BookID   string
	Status   reservation.Status
}

// BookStore persists catalogue entries and categories.
type BookStore interface {
	CreateBook(ctx context.Context, b book.Book) (book.Book, error)
	UpdateBook(ctx context.Context, b book.Book) (book.Book, error)
	GetBook(ctx context.Context, id string) (book.Book, error)
	ListBooks(ctx context.Context, filter BookFilter) ([]book.Book, error)
	DeleteBook(ctx context.Context, id string) error

	CreateCategory(ctx context.Context, cat book.Category) (book.Category, error)
	GetCategory(ctx context.Context, id string) (book.Category, error)
	ListCategories(ctx context.Context) ([]book.Category, error)
}

// MemberStore persists membership records.
type MemberStore interface {
	CreateMember(ctx context.Context, m member.Member) (member.Member, error)
	UpdateMember(ctx context.Context, m member.Member) (member.Member, error)
	GetMember(ctx context.Context, id string) (member.Member, error)
	GetMemberByUsername(ctx context.Context, username string) (member.Member, error)
	ListMembers(ctx context.Context) ([]member.Member, error)
}

// LoanStore persists loan records.
type LoanStore interface {
	CreateLoan(ctx context.Context, l loan.Loan) (loan.Loan, error)
	UpdateLoan(ctx context.Context, l loan.Loan) (loan.Loan, error)
	GetLoan(ctx context.Context, id string) (loan.Loan, error)
	ListLoans(ctx context.Context, filter LoanFilter) ([]loan.Loan, error)
	ListOutstandingLoans(ctx context.Context) ([]loan.Loan, error)
}

// ReservationStore persists reservation records.
type ReservationStore interface {
	CreateReservation(ctx context.Context, res reservation.Reservation) (reservation.Reservation, error)
	UpdateReservation(ctx context.Context, res reservation.Reservation) (reservation.Reservation, error)
	GetReservation(ctx context.Context, id string) (reservation.Reservation, error)
	ListReservations(ctx context.Context, filter ReservationFilter) ([]reservation.Reservation, error)
	ListActiveReservations(ctx context.Context) ([]reservation.Reservation, error)
}

// RequestStore persists borrow and return requests.
type RequestStore interface {
	CreateBorrowRequest(ctx context.Context, req request.BorrowRequest) (request.BorrowRequest, error)
	UpdateBorrowRequest(ctx context.Context, req request.BorrowRequest) (request.BorrowRequest, error)
	GetBorrowRequest(ctx context.Context, id string) (request.BorrowRequest, error)
	ListBorrowRequests(ctx context.Context, memberID string, status request.Status) ([]request.BorrowRequest, error)

	CreateReturnRequest(ctx context.Context, req request.ReturnRequest) (request.ReturnRequest, error)
	UpdateReturnRequest(ctx context.Context, req request.ReturnRequest) (request.ReturnRequest, error)
	GetReturnRequest(ctx context.Context, id string) (request.ReturnRequest, error)
	ListReturnRequests(ctx context.Context, memberID string, status request.Status) ([]request.ReturnRequest, error)
}

// MessageStore persists inbox messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg message.Message) (message.Message, error)
	UpdateMessage(ctx context.Context, msg message.Message) (message.Message, error)
	GetMessage(ctx context.Context, id string) (message.Message, error)
	ListMessages(ctx context.Context, memberID string) ([]message.Message, error)
}
