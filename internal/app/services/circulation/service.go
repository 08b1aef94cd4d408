// Package circulation handles borrowing, returns, fines and the request
// approval workflow in front of them.
package circulation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nta-library/library-service/internal/app/domain/book"
	"github.com/nta-library/library-service/internal/app/domain/loan"
	"github.com/nta-library/library-service/internal/app/domain/member"
	"github.com/nta-library/library-service/internal/app/domain/request"
	"github.com/nta-library/library-service/internal/app/domain/reservation"
	"github.com/nta-library/library-service/internal/app/metrics"
	"github.com/nta-library/library-service/internal/app/storage"
	"github.com/nta-library/library-service/pkg/logger"
)

var (
	// ErrBookUnavailable is returned when the requested copy is already out.
	ErrBookUnavailable = errors.New("book is not available")
	// ErrMemberInactive is returned when the membership is not active.
	ErrMemberInactive = errors.New("membership is not active")
	// ErrBorrowLimitReached is returned when the member holds their maximum
	// number of copies.
	ErrBorrowLimitReached = errors.New("borrow limit reached")
	// ErrOutstandingFines is returned when unpaid fines block borrowing.
	ErrOutstandingFines = errors.New("outstanding fines exceed the allowed threshold")
	// ErrLoanClosed is returned when acting on a loan that is no longer out.
	ErrLoanClosed = errors.New("loan is already closed")
)

// Defaults applied when Config leaves fields zero.
const (
	DefaultLoanPeriodDays = 14
	DefaultDailyFineRate  = 1.0
)

// Config tunes circulation policy.
type Config struct {
	LoanPeriodDays int
	DailyFineRate  float64
}

func (c Config) withDefaults() Config {
	if c.LoanPeriodDays <= 0 {
		c.LoanPeriodDays = DefaultLoanPeriodDays
	}
	if c.DailyFineRate <= 0 {
		c.DailyFineRate = DefaultDailyFineRate
	}
	return c
}

// Notifier receives circulation events. Delivery failures are logged, never
// surfaced to the caller.
type Notifier interface {
	ReservationAvailable(ctx context.Context, res reservation.Reservation, b book.Book) error
	ReturnConfirmation(ctx context.Context, m member.Member, b book.Book, l loan.Loan) error
}

// Service manages loans and borrow/return requests.
type Service struct {
	books        storage.BookStore
	members      storage.MemberStore
	loans        storage.LoanStore
	reservations storage.ReservationStore
	requests     storage.RequestStore
	cfg          Config
	log          *logger.Logger
	notifier     Notifier
}

// New constructs a circulation service.
func New(books storage.BookStore, members storage.MemberStore, loans storage.LoanStore,
	reservations storage.ReservationStore, requests storage.RequestStore, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("circulation")
	}
	return &Service{
		books:        books,
		members:      members,
		loans:        loans,
		reservations: reservations,
		requests:     requests,
		cfg:          cfg.withDefaults(),
		log:          log,
	}
}

// AttachNotifier wires the notification sink. Call before serving requests.
func (s *Service) AttachNotifier(n Notifier) {
	s.notifier = n
}

// DailyFineRate exposes the configured fine rate for reporting and notices.
func (s *Service) DailyFineRate() float64 {
	return s.cfg.DailyFineRate
}

// Borrow checks policy and checks a copy out to a member. A zero durationDays
// uses the configured loan period.
func (s *Service) Borrow(ctx context.Context, bookID, memberID string, durationDays int) (loan.Loan, error) {
	b, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return loan.Loan{}, fmt.Errorf("book validation failed: %w", err)
	}
	if !b.Available {
		return loan.Loan{}, ErrBookUnavailable
	}

	m, err := s.members.GetMember(ctx, memberID)
	if err != nil {
		return loan.Loan{}, fmt.Errorf("member validation failed: %w", err)
	}
	if err := s.checkEligibility(m); err != nil {
		return loan.Loan{}, err
	}

	if durationDays <= 0 {
		durationDays = s.cfg.LoanPeriodDays
	}

	now := time.Now().UTC()
	created, err := s.loans.CreateLoan(ctx, loan.Loan{
		BookID:     b.ID,
		MemberID:   m.ID,
		BorrowedAt: now,
		DueDate:    now.AddDate(0, 0, durationDays),
		Status:     loan.StatusBorrowed,
	})
	if err != nil {
		return loan.Loan{}, err
	}

	b.Available = false
	if _, err := s.books.UpdateBook(ctx, b); err != nil {
		return loan.Loan{}, fmt.Errorf("mark book unavailable: %w", err)
	}
	m.CurrentBooks++
	if _, err := s.members.UpdateMember(ctx, m); err != nil {
		return loan.Loan{}, fmt.Errorf("update member count: %w", err)
	}

	s.fulfillOwnReservation(ctx, b.ID, m.ID)

	metrics.RecordLoanEvent("borrowed")
	s.log.WithField("loan_id", created.ID).
		WithField("book_id", b.ID).
		WithField("member_id", m.ID).
		WithField("due_date", created.DueDate.Format("2006-01-02")).
		Info("book borrowed")
	return created, nil
}

func (s *Service) checkEligibility(m member.Member) error {
	if m.Status != member.StatusActive {
		return ErrMemberInactive
	}
	if m.CurrentBooks >= m.EffectiveMaxBooks() {
		return ErrBorrowLimitReached
	}
	if m.TotalFines >= member.FineThreshold {
		return ErrOutstandingFines
	}
	return nil
}

// fulfillOwnReservation closes the member's active reservation on the copy
// they just borrowed, if one exists.
func (s *Service) fulfillOwnReservation(ctx context.Context, bookID, memberID string) {
	held, err := s.reservations.ListReservations(ctx, storage.ReservationFilter{
		BookID:   bookID,
		MemberID: memberID,
		Status:   reservation.StatusActive,
	})
	if err != nil {
		s.log.WithError(err).Warn("reservation lookup failed")
		return
	}
	for _, res := range held {
		res.Status = reservation.StatusFulfilled
		if _, err := s.reservations.UpdateReservation(ctx, res); err != nil {
			s.log.WithError(err).Warnf("fulfil reservation %s failed", res.ID)
		}
	}
}

// Return closes a loan, assesses any overdue fine, frees the copy and tells
// the next reservation holder.
func (s *Service) Return(ctx context.Context, loanID string) (loan.Loan, error) {
	l, err := s.loans.GetLoan(ctx, loanID)
	if err != nil {
		return loan.Loan{}, err
	}
	if !l.Outstanding() {
		return loan.Loan{}, ErrLoanClosed
	}

	now := time.Now().UTC()
	fine := float64(l.DaysOverdue(now)) * s.cfg.DailyFineRate

	l.Status = loan.StatusReturned
	l.ReturnedAt = now
	l.FineAmount += fine
	updated, err := s.loans.UpdateLoan(ctx, l)
	if err != nil {
		return loan.Loan{}, err
	}

	m, err := s.members.GetMember(ctx, l.MemberID)
	if err != nil {
		return loan.Loan{}, fmt.Errorf("member lookup failed: %w", err)
	}
	if m.CurrentBooks > 0 {
		m.CurrentBooks--
	}
	m.TotalFines += fine
	if _, err := s.members.UpdateMember(ctx, m); err != nil {
		return loan.Loan{}, fmt.Errorf("update member: %w", err)
	}

	b, err := s.books.GetBook(ctx, l.BookID)
	if err != nil {
		return loan.Loan{}, fmt.Errorf("book lookup failed: %w", err)
	}
	b.Available = true
	if _, err := s.books.UpdateBook(ctx, b); err != nil {
		return loan.Loan{}, fmt.Errorf("mark book available: %w", err)
	}

	metrics.RecordLoanEvent("returned")
	if fine > 0 {
		metrics.RecordFine(fine)
	}
	s.log.WithField("loan_id", l.ID).
		WithField("book_id", b.ID).
		WithField("member_id", m.ID).
		WithField("fine", fine).
		Info("book returned")

	if s.notifier != nil {
		if err := s.notifier.ReturnConfirmation(ctx, m, b, updated); err != nil {
			s.log.WithError(err).Warn("return confirmation failed")
		}
	}
	s.notifyNextReservation(ctx, b)

	return updated, nil
}

// notifyNextReservation tells the oldest active reservation holder that the
// copy is back on the shelf.
func (s *Service) notifyNextReservation(ctx context.Context, b book.Book) {
	if s.notifier == nil {
		return
	}
	active, err := s.reservations.ListReservations(ctx, storage.ReservationFilter{
		BookID: b.ID,
		Status: reservation.StatusActive,
	})
	if err != nil {
		s.log.WithError(err).Warn("reservation lookup failed")
		return
	}
	if len(active) == 0 {
		return
	}
	if err := s.notifier.ReservationAvailable(ctx, active[0], b); err != nil {
		s.log.WithError(err).Warnf("reservation notice for %s failed", active[0].ID)
	}
}

// MarkLost closes a loan as lost. The copy stays unavailable and the member
// keeps the copy counted against their limit until the loss is settled.
func (s *Service) MarkLost(ctx context.Context, loanID, notes string) (loan.Loan, error) {
	l, err := s.loans.GetLoan(ctx, loanID)
	if err != nil {
		return loan.Loan{}, err
	}
	if !l.Outstanding() {
		return loan.Loan{}, ErrLoanClosed
	}

	l.Status = loan.StatusLost
	if notes = strings.TrimSpace(notes); notes != "" {
		l.Notes = notes
	}
	updated, err := s.loans.UpdateLoan(ctx, l)
	if err != nil {
		return loan.Loan{}, err
	}
	metrics.RecordLoanEvent("lost")
	s.log.WithField("loan_id", l.ID).Warn("book marked lost")
	return updated, nil
}

// ListLoans returns loans matching the filter.
func (s *Service) ListLoans(ctx context.Context, filter storage.LoanFilter) ([]loan.Loan, error) {
	return s.loans.ListLoans(ctx, filter)
}

// GetLoan returns a single loan.
func (s *Service) GetLoan(ctx context.Context, id string) (loan.Loan, error) {
	return s.loans.GetLoan(ctx, id)
}

// Overdue returns outstanding loans past their due date.
func (s *Service) Overdue(ctx context.Context) ([]loan.Loan, error) {
	outstanding, err := s.loans.ListOutstandingLoans(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	result := make([]loan.Loan, 0)
	for _, l := range outstanding {
		if l.IsOverdue(now) {
			result = append(result, l)
		}
	}
	return result, nil
}

// SweepOverdue transitions borrowed loans past their due date to overdue and
// returns the number changed.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	outstanding, err := s.loans.ListOutstandingLoans(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	changed := 0
	for _, l := range outstanding {
		if l.Status != loan.StatusBorrowed || !l.IsOverdue(now) {
			continue
		}
		l.Status = loan.StatusOverdue
		if _, err := s.loans.UpdateLoan(ctx, l); err != nil {
			s.log.WithError(err).Warnf("mark loan %s overdue failed", l.ID)
			continue
		}
		metrics.RecordLoanEvent("overdue")
		changed++
	}
	if changed > 0 {
		s.log.WithField("count", changed).Info("loans marked overdue")
	}
	return changed, nil
}

// --- Borrow/return request workflow -----------------------------------------

// RequestBorrow files a pending borrow request for review.
func (s *Service) RequestBorrow(ctx context.Context, bookID, memberID string, durationDays int, notes string) (request.BorrowRequest, error) {
	if _, err := s.books.GetBook(ctx, bookID); err != nil {
		return request.BorrowRequest{}, fmt.Errorf("book validation failed: %w", err)
	}
	m, err := s.members.GetMember(ctx, memberID)
	if err != nil {
		return request.BorrowRequest{}, fmt.Errorf("member validation failed: %w", err)
	}
	if err := s.checkEligibility(m); err != nil {
		return request.BorrowRequest{}, err
	}

	pending, err := s.requests.ListBorrowRequests(ctx, memberID, request.StatusPending)
	if err != nil {
		return request.BorrowRequest{}, err
	}
	for _, existing := range pending {
		if existing.BookID == bookID {
			return request.BorrowRequest{}, fmt.Errorf("borrow request for book %s already pending", bookID)
		}
	}

	if durationDays <= 0 {
		durationDays = s.cfg.LoanPeriodDays
	}
	created, err := s.requests.CreateBorrowRequest(ctx, request.BorrowRequest{
		BookID:       bookID,
		MemberID:     memberID,
		DurationDays: durationDays,
		Status:       request.StatusPending,
		Notes:        strings.TrimSpace(notes),
	})
	if err != nil {
		return request.BorrowRequest{}, err
	}
	s.log.WithField("request_id", created.ID).
		WithField("book_id", bookID).
		WithField("member_id", memberID).
		Info("borrow request filed")
	return created, nil
}

// ApproveBorrowRequest executes the borrow and records the decision.
func (s *Service) ApproveBorrowRequest(ctx context.Context, id, reviewerID, adminNotes string) (request.BorrowRequest, loan.Loan, error) {
	req, err := s.requests.GetBorrowRequest(ctx, id)
	if err != nil {
		return request.BorrowRequest{}, loan.Loan{}, err
	}
	if req.Status != request.StatusPending {
		return request.BorrowRequest{}, loan.Loan{}, fmt.Errorf("borrow request %s is not pending", id)
	}

	l, err := s.Borrow(ctx, req.BookID, req.MemberID, req.DurationDays)
	if err != nil {
		return request.BorrowRequest{}, loan.Loan{}, err
	}

	req.Status = request.StatusApproved
	req.AdminNotes = strings.TrimSpace(adminNotes)
	req.ProcessedBy = reviewerID
	req.ProcessedAt = time.Now().UTC()
	updated, err := s.requests.UpdateBorrowRequest(ctx, req)
	if err != nil {
		return request.BorrowRequest{}, loan.Loan{}, err
	}
	s.log.WithField("request_id", id).
		WithField("reviewer", reviewerID).
		Info("borrow request approved")
	return updated, l, nil
}

// DenyBorrowRequest records a denial.
func (s *Service) DenyBorrowRequest(ctx context.Context, id, reviewerID, adminNotes string) (request.BorrowRequest, error) {
	req, err := s.requests.GetBorrowRequest(ctx, id)
	if err != nil {
		return request.BorrowRequest{}, err
	}
	if req.Status != request.StatusPending {
		return request.BorrowRequest{}, fmt.Errorf("borrow request %s is not pending", id)
	}

	req.Status = request.StatusDenied
	req.AdminNotes = strings.TrimSpace(adminNotes)
	req.ProcessedBy = reviewerID
	req.ProcessedAt = time.Now().UTC()
	updated, err := s.requests.UpdateBorrowRequest(ctx, req)
	if err != nil {
		return request.BorrowRequest{}, err
	}
	s.log.WithField("request_id", id).
		WithField("reviewer", reviewerID).
		Info("borrow request denied")
	return updated, nil
}

// CancelBorrowRequest lets the requesting member withdraw a pending request.
func (s *Service) CancelBorrowRequest(ctx context.Context, id, memberID string) (request.BorrowRequest, error) {
	req, err := s.requests.GetBorrowRequest(ctx, id)
	if err != nil {
		return request.BorrowRequest{}, err
	}
	if req.MemberID != memberID {
		return request.BorrowRequest{}, fmt.Errorf("borrow request %s not owned by member %s", id, memberID)
	}
	if req.Status != request.StatusPending {
		return request.BorrowRequest{}, fmt.Errorf("borrow request %s is not pending", id)
	}

	req.Status = request.StatusCancelled
	return s.requests.UpdateBorrowRequest(ctx, req)
}

// ListBorrowRequests returns borrow requests, optionally filtered.
func (s *Service) ListBorrowRequests(ctx context.Context, memberID string, status request.Status) ([]request.BorrowRequest, error) {
	return s.requests.ListBorrowRequests(ctx, memberID, status)
}

// RequestReturn files a pending return request for review.
func (s *Service) RequestReturn(ctx context.Context, loanID, memberID, notes string) (request.ReturnRequest, error) {
	l, err := s.loans.GetLoan(ctx, loanID)
	if err != nil {
		return request.ReturnRequest{}, fmt.Errorf("loan validation failed: %w", err)
	}
	if l.MemberID != memberID {
		return request.ReturnRequest{}, fmt.Errorf("loan %s not owned by member %s", loanID, memberID)
	}
	if !l.Outstanding() {
		return request.ReturnRequest{}, ErrLoanClosed
	}

	pending, err := s.requests.ListReturnRequests(ctx, memberID, request.StatusPending)
	if err != nil {
		return request.ReturnRequest{}, err
	}
	for _, existing := range pending {
		if existing.LoanID == loanID {
			return request.ReturnRequest{}, fmt.Errorf("return request for loan %s already pending", loanID)
		}
	}

	created, err := s.requests.CreateReturnRequest(ctx, request.ReturnRequest{
		LoanID:   loanID,
		MemberID: memberID,
		Status:   request.StatusPending,
		Notes:    strings.TrimSpace(notes),
	})
	if err != nil {
		return request.ReturnRequest{}, err
	}
	s.log.WithField("request_id", created.ID).
		WithField("loan_id", loanID).
		Info("return request filed")
	return created, nil
}

// ApproveReturnRequest executes the return and records the decision.
func (s *Service) ApproveReturnRequest(ctx context.Context, id, reviewerID, adminNotes string) (request.ReturnRequest, loan.Loan, error) {
	req, err := s.requests.GetReturnRequest(ctx, id)
	if err != nil {
		return request.ReturnRequest{}, loan.Loan{}, err
	}
	if req.Status != request.StatusPending {
		return request.ReturnRequest{}, loan.Loan{}, fmt.Errorf("return request %s is not pending", id)
	}

	l, err := s.Return(ctx, req.LoanID)
	if err != nil {
		return request.ReturnRequest{}, loan.Loan{}, err
	}

	req.Status = request.StatusApproved
	req.AdminNotes = strings.TrimSpace(adminNotes)
	req.ProcessedBy = reviewerID
	req.ProcessedAt = time.Now().UTC()
	updated, err := s.requests.UpdateReturnRequest(ctx, req)
	if err != nil {
		return request.ReturnRequest{}, loan.Loan{}, err
	}
	s.log.WithField("request_id", id).
		WithField("reviewer", reviewerID).
		Info("return request approved")
	return updated, l, nil
}

// DenyReturnRequest records a denial.
func (s *Service) DenyReturnRequest(ctx context.Context, id, reviewerID, adminNotes string) (request.ReturnRequest, error) {
	req, err := s.requests.GetReturnRequest(ctx, id)
	if err != nil {
		return request.ReturnRequest{}, err
	}
	if req.Status != request.StatusPending {
		return request.ReturnRequest{}, fmt.Errorf("return request %s is not pending", id)
	}

	req.Status = request.StatusDenied
	req.AdminNotes = strings.TrimSpace(adminNotes)
	req.ProcessedBy = reviewerID
	req.ProcessedAt = time.Now().UTC()
	updated, err := s.requests.UpdateReturnRequest(ctx, req)
	if err != nil {
		return request.ReturnRequest{}, err
	}
	s.log.WithField("request_id", id).
		WithField("reviewer", reviewerID).
		Info("return request denied")
	return updated, nil
}

// ListReturnRequests returns return requests, optionally filtered.
func (s *Service) ListReturnRequests(ctx context.Context, memberID string, status request.Status) ([]request.ReturnRequest, error) {
	return s.requests.ListReturnRequests(ctx, memberID, status)
}
