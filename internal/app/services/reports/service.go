// Package reports aggregates circulation statistics for the staff dashboard.
package reports

import (
	"context"
	"sort"
	"time"

	"github.com/nta-library/library-service/internal/app/domain/loan"
	"github.com/nta-library/library-service/internal/app/domain/member"
	"github.com/nta-library/library-service/internal/app/storage"
	"github.com/nta-library/library-service/pkg/logger"
)

// PopularBookLimit caps the popular-books list on the dashboard.
const PopularBookLimit = 10

// PopularBook pairs a catalogue entry with its all-time loan count.
type PopularBook struct {
	BookID    string `json:"book_id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	LoanCount int    `json:"loan_count"`
}

// Dashboard is the aggregate snapshot served to staff.
type Dashboard struct {
	GeneratedAt time.Time `json:"generated_at"`

	TotalBooks     int `json:"total_books"`
	AvailableBooks int `json:"available_books"`
	TotalMembers   int `json:"total_members"`
	ActiveMembers  int `json:"active_members"`

	TotalLoans       int `json:"total_loans"`
	ActiveLoans      int `json:"active_loans"`
	OverdueLoans     int `json:"overdue_loans"`
	DueSoonLoans     int `json:"due_soon_loans"`
	BorrowsThisMonth int `json:"borrows_this_month"`
	ReturnsThisMonth int `json:"returns_this_month"`

	ActiveReservations int `json:"active_reservations"`

	OutstandingFines float64 `json:"outstanding_fines"`

	PopularBooks []PopularBook `json:"popular_books"`
}

// Service computes dashboard snapshots.
type Service struct {
	books        storage.BookStore
	members      storage.MemberStore
	loans        storage.LoanStore
	reservations storage.ReservationStore
	cache        *Cache
	log          *logger.Logger
}

// New constructs a reports service. A nil cache disables caching.
func New(books storage.BookStore, members storage.MemberStore, loans storage.LoanStore,
	reservations storage.ReservationStore, cache *Cache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("reports")
	}
	return &Service{
		books:        books,
		members:      members,
		loans:        loans,
		reservations: reservations,
		cache:        cache,
		log:          log,
	}
}

// DashboardSnapshot returns the current dashboard, served from cache when a
// fresh entry exists.
func (s *Service) DashboardSnapshot(ctx context.Context) (Dashboard, error) {
	if s.cache != nil {
		if cached, ok := s.cache.GetDashboard(ctx); ok {
			return cached, nil
		}
	}

	dash, err := s.computeDashboard(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	if s.cache != nil {
		s.cache.PutDashboard(ctx, dash)
	}
	return dash, nil
}

// InvalidateCache drops any cached dashboard snapshot so the next request
// recomputes it. A nil cache makes this a no-op.
func (s *Service) InvalidateCache(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

func (s *Service) computeDashboard(ctx context.Context) (Dashboard, error) {
	now := time.Now().UTC()
	dash := Dashboard{GeneratedAt: now}

	books, err := s.books.ListBooks(ctx, storage.BookFilter{})
	if err != nil {
		return Dashboard{}, err
	}
	titles := make(map[string][2]string, len(books))
	for _, b := range books {
		dash.TotalBooks++
		if b.Available {
			dash.AvailableBooks++
		}
		titles[b.ID] = [2]string{b.Title, b.Author}
	}

	members, err := s.members.ListMembers(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	for _, m := range members {
		dash.TotalMembers++
		if m.Status == member.StatusActive {
			dash.ActiveMembers++
		}
		dash.OutstandingFines += m.TotalFines
	}

	loans, err := s.loans.ListLoans(ctx, storage.LoanFilter{})
	if err != nil {
		return Dashboard{}, err
	}
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	dueSoonCutoff := now.AddDate(0, 0, 3)
	loanCounts := make(map[string]int)
	for _, l := range loans {
		dash.TotalLoans++
		loanCounts[l.BookID]++
		if l.Outstanding() {
			dash.ActiveLoans++
			if l.IsOverdue(now) {
				dash.OverdueLoans++
			} else if l.DueDate.Before(dueSoonCutoff) {
				dash.DueSoonLoans++
			}
		}
		if !l.BorrowedAt.Before(monthStart) {
			dash.BorrowsThisMonth++
		}
		if l.Status == loan.StatusReturned && !l.ReturnedAt.Before(monthStart) {
			dash.ReturnsThisMonth++
		}
	}
	dash.PopularBooks = popularBooks(loanCounts, titles)

	active, err := s.reservations.ListActiveReservations(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	dash.ActiveReservations = len(active)

	return dash, nil
}

func popularBooks(loanCounts map[string]int, titles map[string][2]string) []PopularBook {
	ranked := make([]PopularBook, 0, len(loanCounts))
	for bookID, count := range loanCounts {
		entry := PopularBook{BookID: bookID, LoanCount: count}
		if meta, ok := titles[bookID]; ok {
			entry.Title = meta[0]
			entry.Author = meta[1]
		}
		ranked = append(ranked, entry)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].LoanCount != ranked[j].LoanCount {
			return ranked[i].LoanCount > ranked[j].LoanCount
		}
		return ranked[i].BookID < ranked[j].BookID
	})
	if len(ranked) > PopularBookLimit {
		ranked = ranked[:PopularBookLimit]
	}
	return ranked
}
