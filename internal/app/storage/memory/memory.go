package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nta-library/library-service/internal/app/domain/book"
	"github.com/nta-library/library-service/internal/app/domain/loan"
	"github.com/nta-library/library-service/internal/app/domain/member"
	"github.com/nta-library/library-service/internal/app/domain/message"
	"github.com/nta-library/library-service/internal/app/domain/request"
	"github.com/nta-library/library-service/internal/app/domain/reservation"
	"github.com/nta-library/library-service/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu                sync.RWMutex
	nextID            int64
	books             map[string]book.Book
	categories        map[string]book.Category
	members           map[string]member.Member
	membersByUsername map[string]string
	membersByEmail    map[string]string
	loans             map[string]loan.Loan
	reservations      map[string]reservation.Reservation
	borrowRequests    map[string]request.BorrowRequest
	returnRequests    map[string]request.ReturnRequest
	messages          map[string]message.Message
}

var _ storage.BookStore = (*Store)(nil)
var _ storage.MemberStore = (*Store)(nil)
var _ storage.LoanStore = (*Store)(nil)
var _ storage.ReservationStore = (*Store)(nil)
var _ storage.RequestStore = (*Store)(nil)
var _ storage.MessageStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:            1,
		books:             make(map[string]book.Book),
		categories:        make(map[string]book.Category),
		members:           make(map[string]member.Member),
		membersByUsername: make(map[string]string),
		membersByEmail:    make(map[string]string),
		loans:             make(map[string]loan.Loan),
		reservations:      make(map[string]reservation.Reservation),
		borrowRequests:    make(map[string]request.BorrowRequest),
		returnRequests:    make(map[string]request.ReturnRequest),
		messages:          make(map[string]message.Message),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// BookStore implementation ----------------------------------------------------

func (s *Store) CreateBook(_ context.Context, b book.Book) (book.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = s.nextIDLocked()
	} else if _, exists := s.books[b.ID]; exists {
		return book.Book{}, fmt.Errorf("book %s already exists", b.ID)
	}

	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	s.books[b.ID] = b
	return b, nil
}

func (s *Store) UpdateBook(_ context.Context, b book.Book) (book.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.books[b.ID]
	if !ok {
		return book.Book{}, fmt.Errorf("book %s not found", b.ID)
	}

	b.CreatedAt = original.CreatedAt
	b.UpdatedAt = time.Now().UTC()

	s.books[b.ID] = b
	return b, nil
}

func (s *Store) GetBook(_ context.Context, id string) (book.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[id]
	if !ok {
		return book.Book{}, fmt.Errorf("book %s not found", id)
	}
	return b, nil
}

func (s *Store) ListBooks(_ context.Context, filter storage.BookFilter) ([]book.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]book.Book, 0)
	for _, b := range s.books {
		if matchesBook(b, filter) {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Title < result[j].Title })
	return result, nil
}

func (s *Store) DeleteBook(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.books[id]; !ok {
		return fmt.Errorf("book %s not found", id)
	}
	delete(s.books, id)
	return nil
}

func matchesBook(b book.Book, filter storage.BookFilter) bool {
	if filter.CategoryID != "" && b.CategoryID != filter.CategoryID {
		return false
	}
	if filter.Available != nil && b.Available != *filter.Available {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		haystack := strings.ToLower(strings.Join([]string{b.Title, b.Author, b.ISBN, b.Keywords}, " "))
		if !strings.Contains(haystack, q) {
			return false
		}
	}
	return true
}

func (s *Store) CreateCategory(_ context.Context, cat book.Category) (book.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cat.ID == "" {
		cat.ID = s.nextIDLocked()
	} else if _, exists := s.categories[cat.ID]; exists {
		return book.Category{}, fmt.Errorf("category %s already exists", cat.ID)
	}

	for _, existing := range s.categories {
		if existing.Slug == cat.Slug {
			return book.Category{}, fmt.Errorf("category slug %s already exists", cat.Slug)
		}
	}

	now := time.Now().UTC()
	cat.CreatedAt = now
	cat.UpdatedAt = now

	s.categories[cat.ID] = cat
	return cat, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (book.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cat, ok := s.categories[id]
	if !ok {
		return book.Category{}, fmt.Errorf("category %s not found", id)
	}
	return cat, nil
}

func (s *Store) ListCategories(_ context.Context) ([]book.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]book.Category, 0, len(s.categories))
	for _, cat := range s.categories {
		result = append(result, cat)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// MemberStore implementation --------------------------------------------------

func (s *Store) CreateMember(_ context.Context, m member.Member) (member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = s.nextIDLocked()
	} else if _, exists := s.members[m.ID]; exists {
		return member.Member{}, fmt.Errorf("member %s already exists", m.ID)
	}

	usernameKey := strings.ToLower(strings.TrimSpace(m.Username))
	if usernameKey == "" {
		return member.Member{}, fmt.Errorf("username is required")
	}
	if existing, exists := s.membersByUsername[usernameKey]; exists {
		return member.Member{}, fmt.Errorf("username %s already taken by member %s", m.Username, existing)
	}
	emailKey := strings.ToLower(strings.TrimSpace(m.Email))
	if emailKey != "" {
		if existing, exists := s.membersByEmail[emailKey]; exists {
			return member.Member{}, fmt.Errorf("email %s already registered to member %s", m.Email, existing)
		}
	}

	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	s.members[m.ID] = m
	s.membersByUsername[usernameKey] = m.ID
	if emailKey != "" {
		s.membersByEmail[emailKey] = m.ID
	}
	return m, nil
}

func (s *Store) UpdateMember(_ context.Context, m member.Member) (member.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.members[m.ID]
	if !ok {
		return member.Member{}, fmt.Errorf("member %s not found", m.ID)
	}

	oldUsername := strings.ToLower(strings.TrimSpace(original.Username))
	newUsername := strings.ToLower(strings.TrimSpace(m.Username))
	if newUsername != oldUsername {
		if existing, exists := s.membersByUsername[newUsername]; exists && existing != m.ID {
			return member.Member{}, fmt.Errorf("username %s already taken by member %s", m.Username, existing)
		}
	}
	oldEmail := strings.ToLower(strings.TrimSpace(original.Email))
	newEmail := strings.ToLower(strings.TrimSpace(m.Email))
	if newEmail != "" && newEmail != oldEmail {
		if existing, exists := s.membersByEmail[newEmail]; exists && existing != m.ID {
			return member.Member{}, fmt.Errorf("email %s already registered to member %s", m.Email, existing)
		}
	}

	m.CreatedAt = original.CreatedAt
	m.UpdatedAt = time.Now().UTC()

	s.members[m.ID] = m
	if newUsername != oldUsername {
		delete(s.membersByUsername, oldUsername)
		s.membersByUsername[newUsername] = m.ID
	}
	if newEmail != oldEmail {
		if oldEmail != "" {
			delete(s.membersByEmail, oldEmail)
		}
		if newEmail != "" {
			s.membersByEmail[newEmail] = m.ID
		}
	}
	return m, nil
}

func (s *Store) GetMember(_ context.Context, id string) (member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[id]
	if !ok {
		return member.Member{}, fmt.Errorf("member %s not found", id)
	}
	return m, nil
}

func (s *Store) GetMemberByUsername(_ context.Context, username string) (member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.membersByUsername[strings.ToLower(strings.TrimSpace(username))]; ok {
		return s.members[id], nil
	}
	return member.Member{}, fmt.Errorf("member %s not found", username)
}

func (s *Store) ListMembers(_ context.Context) ([]member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]member.Member, 0, len(s.members))
	for _, m := range s.members {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

// LoanStore implementation ----------------------------------------------------

func (s *Store) CreateLoan(_ context.Context, l loan.Loan) (loan.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.ID == "" {
		l.ID = s.nextIDLocked()
	} else if _, exists := s.loans[l.ID]; exists {
		return loan.Loan{}, fmt.Errorf("loan %s already exists", l.ID)
	}

	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now

	s.loans[l.ID] = l
	return l, nil
}

func (s *Store) UpdateLoan(_ context.Context, l loan.Loan) (loan.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.loans[l.ID]
	if !ok {
		return loan.Loan{}, fmt.Errorf("loan %s not found", l.ID)
	}

	l.CreatedAt = original.CreatedAt
	l.UpdatedAt = time.Now().UTC()

	s.loans[l.ID] = l
	return l, nil
}

func (s *Store) GetLoan(_ context.Context, id string) (loan.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.loans[id]
	if !ok {
		return loan.Loan{}, fmt.Errorf("loan %s not found", id)
	}
	return l, nil
}

func (s *Store) ListLoans(_ context.Context, filter storage.LoanFilter) ([]loan.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]loan.Loan, 0)
	for _, l := range s.loans {
		if filter.MemberID != "" && l.MemberID != filter.MemberID {
			continue
		}
		if filter.BookID != "" && l.BookID != filter.BookID {
			continue
		}
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		result = append(result, l)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].BorrowedAt.Before(result[j].BorrowedAt) })
	return result, nil
}

func (s *Store) ListOutstandingLoans(_ context.Context) ([]loan.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]loan.Loan, 0)
	for _, l := range s.loans {
		if l.Outstanding() {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DueDate.Before(result[j].DueDate) })
	return result, nil
}

// ReservationStore implementation ---------------------------------------------

func (s *Store) CreateReservation(_ context.Context, res reservation.Reservation) (reservation.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res.ID == "" {
		res.ID = s.nextIDLocked()
	} else if _, exists := s.reservations[res.ID]; exists {
		return reservation.Reservation{}, fmt.Errorf("reservation %s already exists", res.ID)
	}

	now := time.Now().UTC()
	res.CreatedAt = now
	res.UpdatedAt = now

	s.reservations[res.ID] = res
	return res, nil
}

func (s *Store) UpdateReservation(_ context.Context, res reservation.Reservation) (reservation.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.reservations[res.ID]
	if !ok {
		return reservation.Reservation{}, fmt.Errorf("reservation %s not found", res.ID)
	}

	res.CreatedAt = original.CreatedAt
	res.UpdatedAt = time.Now().UTC()

	s.reservations[res.ID] = res
	return res, nil
}

func (s *Store) GetReservation(_ context.Context, id string) (reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.reservations[id]
	if !ok {
		return reservation.Reservation{}, fmt.Errorf("reservation %s not found", id)
	}
	return res, nil
}

func (s *Store) ListReservations(_ context.Context, filter storage.ReservationFilter) ([]reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]reservation.Reservation, 0)
	for _, res := range s.reservations {
		if filter.MemberID != "" && res.MemberID != filter.MemberID {
			continue
		}
		if filter.BookID != "" && res.BookID != filter.BookID {
			continue
		}
		if filter.Status != "" && res.Status != filter.Status {
			continue
		}
		result = append(result, res)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ReservedAt.Before(result[j].ReservedAt) })
	return result, nil
}

func (s *Store) ListActiveReservations(_ context.Context) ([]reservation.Reservation, error) {
	return s.ListReservations(context.Background(), storage.ReservationFilter{Status: reservation.StatusActive})
}

// RequestStore implementation -------------------------------------------------

func (s *Store) CreateBorrowRequest(_ context.Context, req request.BorrowRequest) (request.BorrowRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		req.ID = s.nextIDLocked()
	} else if _, exists := s.borrowRequests[req.ID]; exists {
		return request.BorrowRequest{}, fmt.Errorf("borrow request %s already exists", req.ID)
	}

	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	s.borrowRequests[req.ID] = req
	return req, nil
}

func (s *Store) UpdateBorrowRequest(_ context.Context, req request.BorrowRequest) (request.BorrowRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.borrowRequests[req.ID]
	if !ok {
		return request.BorrowRequest{}, fmt.Errorf("borrow request %s not found", req.ID)
	}

	req.CreatedAt = original.CreatedAt
	req.UpdatedAt = time.Now().UTC()

	s.borrowRequests[req.ID] = req
	return req, nil
}

func (s *Store) GetBorrowRequest(_ context.Context, id string) (request.BorrowRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.borrowRequests[id]
	if !ok {
		return request.BorrowRequest{}, fmt.Errorf("borrow request %s not found", id)
	}
	return req, nil
}

func (s *Store) ListBorrowRequests(_ context.Context, memberID string, status request.Status) ([]request.BorrowRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]request.BorrowRequest, 0)
	for _, req := range s.borrowRequests {
		if memberID != "" && req.MemberID != memberID {
			continue
		}
		if status != "" && req.Status != status {
			continue
		}
		result = append(result, req)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) CreateReturnRequest(_ context.Context, req request.ReturnRequest) (request.ReturnRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		req.ID = s.nextIDLocked()
	} else if _, exists := s.returnRequests[req.ID]; exists {
		return request.ReturnRequest{}, fmt.Errorf("return request %s already exists", req.ID)
	}

	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	s.returnRequests[req.ID] = req
	return req, nil
}

func (s *Store) UpdateReturnRequest(_ context.Context, req request.ReturnRequest) (request.ReturnRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.returnRequests[req.ID]
	if !ok {
		return request.ReturnRequest{}, fmt.Errorf("return request %s not found", req.ID)
	}

	req.CreatedAt = original.CreatedAt
	req.UpdatedAt = time.Now().UTC()

	s.returnRequests[req.ID] = req
	return req, nil
}

func (s *Store) GetReturnRequest(_ context.Context, id string) (request.ReturnRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.returnRequests[id]
	if !ok {
		return request.ReturnRequest{}, fmt.Errorf("return request %s not found", id)
	}
	return req, nil
}

func (s *Store) ListReturnRequests(_ context.Context, memberID string, status request.Status) ([]request.ReturnRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]request.ReturnRequest, 0)
	for _, req := range s.returnRequests {
		if memberID != "" && req.MemberID != memberID {
			continue
		}
		if status != "" && req.Status != status {
			continue
		}
		result = append(result, req)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// MessageStore implementation -------------------------------------------------

func (s *Store) CreateMessage(_ context.Context, msg message.Message) (message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = s.nextIDLocked()
	} else if _, exists := s.messages[msg.ID]; exists {
		return message.Message{}, fmt.Errorf("message %s already exists", msg.ID)
	}

	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *Store) UpdateMessage(_ context.Context, msg message.Message) (message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.messages[msg.ID]
	if !ok {
		return message.Message{}, fmt.Errorf("message %s not found", msg.ID)
	}

	msg.CreatedAt = original.CreatedAt
	msg.UpdatedAt = time.Now().UTC()

	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *Store) GetMessage(_ context.Context, id string) (message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return message.Message{}, fmt.Errorf("message %s not found", id)
	}
	return msg, nil
}

func (s *Store) ListMessages(_ context.Context, memberID string) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]message.Message, 0)
	for _, msg := range s.messages {
		if memberID == "" || msg.MemberID == memberID {
			result = append(result, msg)
		}
	}
	// Inbox order: newest first.
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}
