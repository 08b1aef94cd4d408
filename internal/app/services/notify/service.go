// Package notify produces member notifications. Every notification is written
// to the member's in-app inbox; email delivery additionally happens when the
// member has it enabled.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/nta-library/library-service/internal/app/domain/book"
	"github.com/nta-library/library-service/internal/app/domain/loan"
	"github.com/nta-library/library-service/internal/app/domain/member"
	"github.com/nta-library/library-service/internal/app/domain/message"
	"github.com/nta-library/library-service/internal/app/domain/reservation"
	"github.com/nta-library/library-service/internal/app/metrics"
	"github.com/nta-library/library-service/internal/app/storage"
	"github.com/nta-library/library-service/pkg/logger"
)

// Defaults for the reminder windows.
const (
	DefaultDueSoonLeadDays    = 3
	DefaultExpiryWarnLeadDays = 1
)

// EmailSender delivers a single message to one recipient.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Config tunes the reminder windows.
type Config struct {
	DueSoonLeadDays    int
	ExpiryWarnLeadDays int
}

func (c Config) withDefaults() Config {
	if c.DueSoonLeadDays <= 0 {
		c.DueSoonLeadDays = DefaultDueSoonLeadDays
	}
	if c.ExpiryWarnLeadDays <= 0 {
		c.ExpiryWarnLeadDays = DefaultExpiryWarnLeadDays
	}
	return c
}

// Service writes inbox messages and sends email.
type Service struct {
	members      storage.MemberStore
	books        storage.BookStore
	loans        storage.LoanStore
	reservations storage.ReservationStore
	messages     storage.MessageStore
	sender       EmailSender
	cfg          Config
	log          *logger.Logger
}

// New constructs a notify service. A nil sender suppresses email delivery,
// inbox messages are still written.
func New(members storage.MemberStore, books storage.BookStore, loans storage.LoanStore,
	reservations storage.ReservationStore, messages storage.MessageStore,
	sender EmailSender, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("notify")
	}
	return &Service{
		members:      members,
		books:        books,
		loans:        loans,
		reservations: reservations,
		messages:     messages,
		sender:       sender,
		cfg:          cfg.withDefaults(),
		log:          log,
	}
}

// deliver writes the inbox record and, when the member opted in, sends email.
func (s *Service) deliver(ctx context.Context, m member.Member, kind message.Kind, metricKind, subject, body string) error {
	if _, err := s.messages.CreateMessage(ctx, message.Message{
		MemberID: m.ID,
		Kind:     kind,
		Subject:  subject,
		Body:     body,
	}); err != nil {
		metrics.RecordNotification(metricKind, false)
		return fmt.Errorf("write inbox message: %w", err)
	}

	if s.sender != nil && m.EmailNotifications && m.Email != "" {
		if err := s.sender.Send(ctx, m.Email, subject, body); err != nil {
			metrics.RecordNotification(metricKind, false)
			s.log.WithError(err).
				WithField("member_id", m.ID).
				Warnf("email delivery failed for %s", metricKind)
			return nil
		}
	}
	metrics.RecordNotification(metricKind, true)
	return nil
}

// Welcome greets a newly registered member.
func (s *Service) Welcome(ctx context.Context, m member.Member) error {
	name := m.FullName
	if name == "" {
		name = m.Username
	}
	body := fmt.Sprintf("Hello %s,\n\nYour library account is ready. You can borrow up to %d books at a time.\n\nHappy reading!",
		name, m.EffectiveMaxBooks())
	return s.deliver(ctx, m, message.KindNotification, "welcome", "Welcome to the library", body)
}

// ReturnConfirmation acknowledges a completed return, including any fine.
func (s *Service) ReturnConfirmation(ctx context.Context, m member.Member, b book.Book, l loan.Loan) error {
	body := fmt.Sprintf("You returned %q by %s on %s.",
		b.Title, b.Author, l.ReturnedAt.Format("2006-01-02"))
	if l.FineAmount > 0 {
		body += fmt.Sprintf(" An overdue fine of $%.2f was added to your account.", l.FineAmount)
	}
	return s.deliver(ctx, m, message.KindNotification, "return_confirmation", "Return confirmed", body)
}

// ReservationAvailable tells a reservation holder their copy is back.
func (s *Service) ReservationAvailable(ctx context.Context, res reservation.Reservation, b book.Book) error {
	m, err := s.members.GetMember(ctx, res.MemberID)
	if err != nil {
		return fmt.Errorf("member lookup failed: %w", err)
	}
	body := fmt.Sprintf("%q by %s is now available. Your reservation is held until %s.",
		b.Title, b.Author, res.ExpiresAt.Format("2006-01-02"))
	return s.deliver(ctx, m, message.KindAlert, "reservation_available", "Reserved book available", body)
}

// DueSoonReminders notifies members whose loans come due within the lead
// window. Returns the number of reminders produced.
func (s *Service) DueSoonReminders(ctx context.Context) (int, error) {
	outstanding, err := s.loans.ListOutstandingLoans(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, s.cfg.DueSoonLeadDays)
	sent := 0
	for _, l := range outstanding {
		if l.DueDate.Before(now) || l.DueDate.After(cutoff) {
			continue
		}
		m, b, err := s.loanParties(ctx, l)
		if err != nil {
			s.log.WithError(err).Warnf("due-soon lookup for loan %s failed", l.ID)
			continue
		}
		body := fmt.Sprintf("%q by %s is due on %s. Return or renew it to avoid fines.",
			b.Title, b.Author, l.DueDate.Format("2006-01-02"))
		if err := s.deliver(ctx, m, message.KindReminder, "due_soon", "Book due soon", body); err != nil {
			s.log.WithError(err).Warnf("due-soon reminder for loan %s failed", l.ID)
			continue
		}
		sent++
	}
	return sent, nil
}

// OverdueNotices notifies members with loans past their due date, quoting the
// fine accrued so far. Returns the number of notices produced.
func (s *Service) OverdueNotices(ctx context.Context, dailyFineRate float64) (int, error) {
	outstanding, err := s.loans.ListOutstandingLoans(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	sent := 0
	for _, l := range outstanding {
		days := l.DaysOverdue(now)
		if days <= 0 {
			continue
		}
		m, b, err := s.loanParties(ctx, l)
		if err != nil {
			s.log.WithError(err).Warnf("overdue lookup for loan %s failed", l.ID)
			continue
		}
		body := fmt.Sprintf("%q by %s was due on %s and is %d day(s) overdue. The fine so far is $%.2f.",
			b.Title, b.Author, l.DueDate.Format("2006-01-02"), days, float64(days)*dailyFineRate)
		if err := s.deliver(ctx, m, message.KindAlert, "overdue", "Book overdue", body); err != nil {
			s.log.WithError(err).Warnf("overdue notice for loan %s failed", l.ID)
			continue
		}
		sent++
	}
	return sent, nil
}

// ExpiryWarnings notifies reservation holders whose hold lapses within the
// lead window. Returns the number of warnings produced.
func (s *Service) ExpiryWarnings(ctx context.Context) (int, error) {
	active, err := s.reservations.ListActiveReservations(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	window := time.Duration(s.cfg.ExpiryWarnLeadDays) * 24 * time.Hour
	sent := 0
	for _, res := range active {
		if !res.ExpiresWithin(now, window) {
			continue
		}
		m, err := s.members.GetMember(ctx, res.MemberID)
		if err != nil {
			s.log.WithError(err).Warnf("expiry lookup for reservation %s failed", res.ID)
			continue
		}
		b, err := s.books.GetBook(ctx, res.BookID)
		if err != nil {
			s.log.WithError(err).Warnf("expiry lookup for reservation %s failed", res.ID)
			continue
		}
		body := fmt.Sprintf("Your reservation for %q by %s expires on %s. Borrow the book before then to keep your place.",
			b.Title, b.Author, res.ExpiresAt.Format("2006-01-02"))
		if err := s.deliver(ctx, m, message.KindReminder, "reservation_expiry", "Reservation expiring", body); err != nil {
			s.log.WithError(err).Warnf("expiry warning for reservation %s failed", res.ID)
			continue
		}
		sent++
	}
	return sent, nil
}

// RunDaily produces the full daily batch: due-soon reminders, overdue notices
// and reservation expiry warnings.
func (s *Service) RunDaily(ctx context.Context, dailyFineRate float64) error {
	dueSoon, err := s.DueSoonReminders(ctx)
	if err != nil {
		return fmt.Errorf("due-soon reminders: %w", err)
	}
	overdue, err := s.OverdueNotices(ctx, dailyFineRate)
	if err != nil {
		return fmt.Errorf("overdue notices: %w", err)
	}
	expiring, err := s.ExpiryWarnings(ctx)
	if err != nil {
		return fmt.Errorf("expiry warnings: %w", err)
	}
	s.log.WithField("due_soon", dueSoon).
		WithField("overdue", overdue).
		WithField("expiring", expiring).
		Info("daily notification batch complete")
	return nil
}

// WeeklyReport sends staff members a circulation summary: outstanding and
// overdue loan counts plus active reservations.
func (s *Service) WeeklyReport(ctx context.Context) error {
	outstanding, err := s.loans.ListOutstandingLoans(ctx)
	if err != nil {
		return fmt.Errorf("list outstanding loans: %w", err)
	}
	now := time.Now().UTC()
	overdue := 0
	for _, l := range outstanding {
		if l.DaysOverdue(now) > 0 {
			overdue++
		}
	}
	active, err := s.reservations.ListActiveReservations(ctx)
	if err != nil {
		return fmt.Errorf("list active reservations: %w", err)
	}

	all, err := s.members.ListMembers(ctx)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	body := fmt.Sprintf("Weekly circulation summary for %s:\n\n  Books on loan: %d\n  Overdue loans: %d\n  Active reservations: %d",
		now.Format("2006-01-02"), len(outstanding), overdue, len(active))
	sent := 0
	for _, m := range all {
		if !m.IsStaff() {
			continue
		}
		if err := s.deliver(ctx, m, message.KindAnnouncement, "weekly_report", "Weekly circulation report", body); err != nil {
			s.log.WithError(err).Warnf("weekly report for member %s failed", m.ID)
			continue
		}
		sent++
	}
	s.log.WithField("recipients", sent).
		WithField("outstanding", len(outstanding)).
		WithField("overdue", overdue).
		Info("weekly report delivered")
	return nil
}

// Inbox returns the member's messages, newest first.
func (s *Service) Inbox(ctx context.Context, memberID string) ([]message.Message, error) {
	return s.messages.ListMessages(ctx, memberID)
}

// MarkRead flags an inbox message as read. Only the owner may do so.
func (s *Service) MarkRead(ctx context.Context, id, memberID string) (message.Message, error) {
	msg, err := s.messages.GetMessage(ctx, id)
	if err != nil {
		return message.Message{}, err
	}
	if msg.MemberID != memberID {
		return message.Message{}, fmt.Errorf("message %s not owned by member %s", id, memberID)
	}
	msg.Read = true
	return s.messages.UpdateMessage(ctx, msg)
}

func (s *Service) loanParties(ctx context.Context, l loan.Loan) (member.Member, book.Book, error) {
	m, err := s.members.GetMember(ctx, l.MemberID)
	if err != nil {
		return member.Member{}, book.Book{}, err
	}
	b, err := s.books.GetBook(ctx, l.BookID)
	if err != nil {
		return member.Member{}, book.Book{}, err
	}
	return m, b, nil
}
