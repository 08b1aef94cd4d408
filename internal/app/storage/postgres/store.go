package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nta-library/library-service/internal/app/domain/book"
	"github.com/nta-library/library-service/internal/app/domain/loan"
	"github.com/nta-library/library-service/internal/app/domain/member"
	"github.com/nta-library/library-service/internal/app/domain/message"
	"github.com/nta-library/library-service/internal/app/domain/request"
	"github.com/nta-library/library-service/internal/app/domain/reservation"
	"github.com/nta-library/library-service/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.BookStore = (*Store)(nil)
var _ storage.MemberStore = (*Store)(nil)
var _ storage.LoanStore = (*Store)(nil)
var _ storage.ReservationStore = (*Store)(nil)
var _ storage.RequestStore = (*Store)(nil)
var _ storage.MessageStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}

// --- BookStore --------------------------------------------------------------

func (s *Store) CreateBook(ctx context.Context, b book.Book) (book.Book, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO library_books (
			id, serial, shelf, title, author, isbn, barcode, category_id,
			publisher, pages, language, edition, series, keywords, summary,
			cover, condition, copy_number, available, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`, b.ID, b.Serial, b.Shelf, b.Title, b.Author, b.ISBN, b.Barcode, nullString(b.CategoryID),
		b.Publisher, b.Pages, b.Language, b.Edition, b.Series, b.Keywords, b.Summary,
		b.Cover, b.Condition, b.CopyNumber, b.Available, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return book.Book{}, err
	}
	return b, nil
}

func (s *Store) UpdateBook(ctx context.Context, b book.Book) (book.Book, error) {
	existing, err := s.GetBook(ctx, b.ID)
	if err != nil {
		return book.Book{}, err
	}

	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE library_books
		SET serial = $2, shelf = $3, title = $4, author = $5, isbn = $6, barcode = $7,
			category_id = $8, publisher = $9, pages = $10, language = $11, edition = $12,
			series = $13, keywords = $14, summary = $15, cover = $16, condition = $17,
			copy_number = $18, available = $19, updated_at = $20
		WHERE id = $1
	`, b.ID, b.Serial, b.Shelf, b.Title, b.Author, b.ISBN, b.Barcode,
		nullString(b.CategoryID), b.Publisher, b.Pages, b.Language, b.Edition,
		b.Series, b.Keywords, b.Summary, b.Cover, b.Condition,
		b.CopyNumber, b.Available, b.UpdatedAt)
	if err != nil {
		return book.Book{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return book.Book{}, sql.ErrNoRows
	}
	return b, nil
}

const bookColumns = `id, serial, shelf, title, author, isbn, barcode, category_id,
	publisher, pages, language, edition, series, keywords, summary,
	cover, condition, copy_number, available, created_at, updated_at`

func scanBook(row interface{ Scan(...interface{}) error }) (book.Book, error) {
	var (
		b        book.Book
		category sql.NullString
	)
	err := row.Scan(&b.ID, &b.Serial, &b.Shelf, &b.Title, &b.Author, &b.ISBN, &b.Barcode, &category,
		&b.Publisher, &b.Pages, &b.Language, &b.Edition, &b.Series, &b.Keywords, &b.Summary,
		&b.Cover, &b.Condition, &b.CopyNumber, &b.Available, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return book.Book{}, err
	}
	b.CategoryID = category.String
	return b, nil
}

func (s *Store) GetBook(ctx context.Context, id string) (book.Book, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+bookColumns+`
		FROM library_books
		WHERE id = $1
	`, id)
	return scanBook(row)
}

func (s *Store) ListBooks(ctx context.Context, filter storage.BookFilter) ([]book.Book, error) {
	query := `
		SELECT ` + bookColumns + `
		FROM library_books
		WHERE ($1 = '' OR title ILIKE '%' || $1 || '%' OR author ILIKE '%' || $1 || '%'
			OR isbn ILIKE '%' || $1 || '%' OR keywords ILIKE '%' || $1 || '%')
		AND ($2 = '' OR category_id = $2)
	`
	args := []interface{}{strings.TrimSpace(filter.Query), filter.CategoryID}
	if filter.Available != nil {
		query += ` AND available = $3`
		args = append(args, *filter.Available)
	}
	query += ` ORDER BY title`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []book.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (s *Store) DeleteBook(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM library_books WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) CreateCategory(ctx context.Context, cat book.Category) (book.Category, error) {
	if cat.ID == "" {
		cat.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	cat.CreatedAt = now
	cat.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO library_categories (id, name, slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, cat.ID, cat.Name, cat.Slug, cat.CreatedAt, cat.UpdatedAt)
	if err != nil {
		return book.Category{}, err
	}
	return cat, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (book.Category, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, created_at, updated_at
		FROM library_categories
		WHERE id = $1
	`, id)

	var cat book.Category
	if err := row.Scan(&cat.ID, &cat.Name, &cat.Slug, &cat.CreatedAt, &cat.UpdatedAt); err != nil {
		return book.Category{}, err
	}
	return cat, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]book.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, created_at, updated_at
		FROM library_categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []book.Category
	for rows.Next() {
		var cat book.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Slug, &cat.CreatedAt, &cat.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, cat)
	}
	return result, rows.Err()
}

// --- MemberStore ------------------------------------------------------------

const memberColumns = `id, username, email, password_hash, full_name, role, kind, status,
	phone, department, max_books, current_books, total_fines,
	email_notifications, membership_expiry, created_at, updated_at`

func scanMember(row interface{ Scan(...interface{}) error }) (member.Member, error) {
	var (
		m      member.Member
		expiry sql.NullTime
	)
	err := row.Scan(&m.ID, &m.Username, &m.Email, &m.PasswordHash, &m.FullName, &m.Role, &m.Kind, &m.Status,
		&m.Phone, &m.Department, &m.MaxBooks, &m.CurrentBooks, &m.TotalFines,
		&m.EmailNotifications, &expiry, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return member.Member{}, err
	}
	m.MembershipExpiry = fromNullTime(expiry)
	return m, nil
}

func (s *Store) CreateMember(ctx context.Context, m member.Member) (member.Member, error) {
	if m.Username == "" {
		return member.Member{}, fmt.Errorf("username required")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO library_members (
			id, username, email, password_hash, full_name, role, kind, status,
			phone, department, max_books, current_books, total_fines,
			email_notifications, membership_expiry, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, m.ID, m.Username, m.Email, m.PasswordHash, m.FullName, m.Role, m.Kind, m.Status,
		m.Phone, m.Department, m.MaxBooks, m.CurrentBooks, m.TotalFines,
		m.EmailNotifications, toNullTime(m.MembershipExpiry), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return member.Member{}, err
	}
	return m, nil
}

func (s *Store) UpdateMember(ctx context.Context, m member.Member) (member.Member, error) {
	existing, err := s.GetMember(ctx, m.ID)
	if err != nil {
		return member.Member{}, err
	}

	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE library_members
		SET username = $2, email = $3, password_hash = $4, full_name = $5, role = $6,
			kind = $7, status = $8, phone = $9, department = $10, max_books = $11,
			current_books = $12, total_fines = $13, email_notifications = $14,
			membership_expiry = $15, updated_at = $16
		WHERE id = $1
	`, m.ID, m.Username, m.Email, m.PasswordHash, m.FullName, m.Role,
		m.Kind, m.Status, m.Phone, m.Department, m.MaxBooks,
		m.CurrentBooks, m.TotalFines, m.EmailNotifications,
		toNullTime(m.MembershipExpiry), m.UpdatedAt)
	if err != nil {
		return member.Member{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return member.Member{}, sql.ErrNoRows
	}
	return m, nil
}

func (s *Store) GetMember(ctx context.Context, id string) (member.Member, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+`
		FROM library_members
		WHERE id = $1
	`, id)
	return scanMember(row)
}

func (s *Store) GetMemberByUsername(ctx context.Context, username string) (member.Member, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+`
		FROM library_members
		WHERE lower(username) = lower($1)
	`, username)
	return scanMember(row)
}

func (s *Store) ListMembers(ctx context.Context) ([]member.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM library_members
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []member.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// --- LoanStore --------------------------------------------------------------

const loanColumns = `id, book_id, member_id, borrowed_at, due_date, returned_at,
	status, fine_amount, notes, created_at, updated_at`

func scanLoan(row interface{ Scan(...interface{}) error }) (loan.Loan, error) {
	var (
		l        loan.Loan
		returned sql.NullTime
	)
	err := row.Scan(&l.ID, &l.BookID, &l.MemberID, &l.BorrowedAt, &l.DueDate, &returned,
		&l.Status, &l.FineAmount, &l.Notes, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return loan.Loan{}, err
	}
	l.ReturnedAt = fromNullTime(returned)
	return l, nil
}

func (s *Store) CreateLoan(ctx context.Context, l loan.Loan) (loan.Loan, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO library_loans (
			id, book_id, member_id, borrowed_at, due_date, returned_at,
			status, fine_amount, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, l.ID, l.BookID, l.MemberID, l.BorrowedAt, l.DueDate, toNullTime(l.ReturnedAt),
		l.Status, l.FineAmount, l.Notes, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return loan.Loan{}, err
	}
	return l, nil
}

func (s *Store) UpdateLoan(ctx context.Context, l loan.Loan) (loan.Loan, error) {
	existing, err := s.GetLoan(ctx, l.ID)
	if err != nil {
		return loan.Loan{}, err
	}

	l.BookID = existing.BookID
	l.MemberID = existing.MemberID
	l.CreatedAt = existing.CreatedAt
	l.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE library_loans
		SET borrowed_at = $2, due_date = $3, returned_at = $4, status = $5,
			fine_amount = $6, notes = $7, updated_at = $8
		WHERE id = $1
	`, l.ID, l.BorrowedAt, l.DueDate, toNullTime(l.ReturnedAt), l.Status,
		l.FineAmount, l.Notes, l.UpdatedAt)
	if err != nil {
		return loan.Loan{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return loan.Loan{}, sql.ErrNoRows
	}
	return l, nil
}

func (s *Store) GetLoan(ctx context.Context, id string) (loan.Loan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+loanColumns+`
		FROM library_loans
		WHERE id = $1
	`, id)
	return scanLoan(row)
}

func (s *Store) ListLoans(ctx context.Context, filter storage.LoanFilter) ([]loan.Loan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+loanColumns+`
		FROM library_loans
		WHERE ($1 = '' OR member_id = $1)
		AND ($2 = '' OR book_id = $2)
		AND ($3 = '' OR status = $3)
		ORDER BY borrowed_at
	`, filter.MemberID, filter.BookID, string(filter.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []loan.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (s *Store) ListOutstandingLoans(ctx context.Context) ([]loan.Loan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+loanColumns+`
		FROM library_loans
		WHERE status IN ('borrowed', 'overdue')
		ORDER BY due_date
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []loan.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

// --- ReservationStore -------------------------------------------------------

const reservationColumns = `id, book_id, member_id, reserved_at, expires_at,
	status, notes, created_at, updated_at`

func scanReservation(row interface{ Scan(...interface{}) error }) (reservation.Reservation, error) {
	var res reservation.Reservation
	err := row.Scan(&res.ID, &res.BookID, &res.MemberID, &res.ReservedAt, &res.ExpiresAt,
		&res.Status, &res.Notes, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return reservation.Reservation{}, err
	}
	return res, nil
}

func (s *Store) CreateReservation(ctx context.Context, res reservation.Reservation) (reservation.Reservation, error) {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	res.CreatedAt = now
	res.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO library_reservations (
			id, book_id, member_id, reserved_at, expires_at, status, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, res.ID, res.BookID, res.MemberID, res.ReservedAt, res.ExpiresAt, res.Status, res.Notes, res.CreatedAt, res.UpdatedAt)
	if err != nil {
		return reservation.Reservation{}, err
	}
	return res, nil
}

func (s *Store) UpdateReservation(ctx context.Context, res reservation.Reservation) (reservation.Reservation, error) {
	existing, err := s.GetReservation(ctx, res.ID)
	if err != nil {
		return reservation.Reservation{}, err
	}

	res.BookID = existing.BookID
	res.MemberID = existing.MemberID
	res.CreatedAt = existing.CreatedAt
	res.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE library_reservations
		SET reserved_at = $2, expires_at = $3, status = $4, notes = $5, updated_at = $6
		WHERE id = $1
	`, res.ID, res.ReservedAt, res.ExpiresAt, res.Status, res.Notes, res.UpdatedAt)
	if err != nil {
		return reservation.Reservation{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return reservation.Reservation{}, sql.ErrNoRows
	}
	return res, nil
}

func (s *Store) GetReservation(ctx context.Context, id string) (reservation.Reservation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+reservationColumns+`
		FROM library_reservations
		WHERE id = $1
	`, id)
	return scanReservation(row)
}

func (s *Store) ListReservations(ctx context.Context, filter storage.ReservationFilter) ([]reservation.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM library_reservations
		WHERE ($1 = '' OR member_id = $1)
		AND ($2 = '' OR book_id = $2)
		AND ($3 = '' OR status = $3)
		ORDER BY reserved_at
	`, filter.MemberID, filter.BookID, string(filter.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []reservation.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, res)
	}
	return result, rows.Err()
}

func (s *Store) ListActiveReservations(ctx context.Context) ([]reservation.Reservation, error) {
	return s.ListReservations(ctx, storage.ReservationFilter{Status: reservation.StatusActive})
}

// --- RequestStore -----------------------------------------------------------

func (s *Store) CreateBorrowRequest(ctx context.Context, req request.BorrowRequest) (request.BorrowRequest, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO library_borrow_requests (
			id, book_id, member_id, duration_days, status, notes, admin_notes,
			processed_by, processed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, req.ID, req.BookID, req.MemberID, req.DurationDays, req.Status, req.Notes, req.AdminNotes,
		nullString(req.ProcessedBy), toNullTime(req.ProcessedAt), req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return request.BorrowRequest{}, err
	}
	return req, nil
}

func (s *Store) UpdateBorrowRequest(ctx context.Context, req request.BorrowRequest) (request.BorrowRequest, error) {
	existing, err := s.GetBorrowRequest(ctx, req.ID)
	if err != nil {
		return request.BorrowRequest{}, err
	}

	req.BookID = existing.BookID
	req.MemberID = existing.MemberID
	req.CreatedAt = existing.CreatedAt
	req.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE library_borrow_requests
		SET duration_days = $2, status = $3, notes = $4, admin_notes = $5,
			processed_by = $6, processed_at = $7, updated_at = $8
		WHERE id = $1
	`, req.ID, req.DurationDays, req.Status, req.Notes, req.AdminNotes,
		nullString(req.ProcessedBy), toNullTime(req.ProcessedAt), req.UpdatedAt)
	if err != nil {
		return request.BorrowRequest{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return request.BorrowRequest{}, sql.ErrNoRows
	}
	return req, nil
}

func (s *Store) GetBorrowRequest(ctx context.Context, id string) (request.BorrowRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, book_id, member_id, duration_days, status, notes, admin_notes,
			processed_by, processed_at, created_at, updated_at
		FROM library_borrow_requests
		WHERE id = $1
	`, id)

	var (
		req       request.BorrowRequest
		processor sql.NullString
		processed sql.NullTime
	)
	if err := row.Scan(&req.ID, &req.BookID, &req.MemberID, &req.DurationDays, &req.Status, &req.Notes, &req.AdminNotes,
		&processor, &processed, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return request.BorrowRequest{}, err
	}
	req.ProcessedBy = processor.String
	req.ProcessedAt = fromNullTime(processed)
	return req, nil
}

func (s *Store) ListBorrowRequests(ctx context.Context, memberID string, status request.Status) ([]request.BorrowRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, book_id, member_id, duration_days, status, notes, admin_notes,
			processed_by, processed_at, created_at, updated_at
		FROM library_borrow_requests
		WHERE ($1 = '' OR member_id = $1)
		AND ($2 = '' OR status = $2)
		ORDER BY created_at
	`, memberID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []request.BorrowRequest
	for rows.Next() {
		var (
			req       request.BorrowRequest
			processor sql.NullString
			processed sql.NullTime
		)
		if err := rows.Scan(&req.ID, &req.BookID, &req.MemberID, &req.DurationDays, &req.Status, &req.Notes, &req.AdminNotes,
			&processor, &processed, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, err
		}
		req.ProcessedBy = processor.String
		req.ProcessedAt = fromNullTime(processed)
		result = append(result, req)
	}
	return result, rows.Err()
}

func (s *Store) CreateReturnRequest(ctx context.Context, req request.ReturnRequest) (request.ReturnRequest, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO library_return_requests (
			id, loan_id, member_id, status, notes, admin_notes,
			processed_by, processed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, req.ID, req.LoanID, req.MemberID, req.Status, req.Notes, req.AdminNotes,
		nullString(req.ProcessedBy), toNullTime(req.ProcessedAt), req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return request.ReturnRequest{}, err
	}
	return req, nil
}

func (s *Store) UpdateReturnRequest(ctx context.Context, req request.ReturnRequest) (request.ReturnRequest, error) {
	existing, err := s.GetReturnRequest(ctx, req.ID)
	if err != nil {
		return request.ReturnRequest{}, err
	}

	req.LoanID = existing.LoanID
	req.MemberID = existing.MemberID
	req.CreatedAt = existing.CreatedAt
	req.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE library_return_requests
		SET status = $2, notes = $3, admin_notes = $4, processed_by = $5,
			processed_at = $6, updated_at = $7
		WHERE id = $1
	`, req.ID, req.Status, req.Notes, req.AdminNotes, nullString(req.ProcessedBy),
		toNullTime(req.ProcessedAt), req.UpdatedAt)
	if err != nil {
		return request.ReturnRequest{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return request.ReturnRequest{}, sql.ErrNoRows
	}
	return req, nil
}

func (s *Store) GetReturnRequest(ctx context.Context, id string) (request.ReturnRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, loan_id, member_id, status, notes, admin_notes,
			processed_by, processed_at, created_at, updated_at
		FROM library_return_requests
		WHERE id = $1
	`, id)

	var (
		req       request.ReturnRequest
		processor sql.NullString
		processed sql.NullTime
	)
	if err := row.Scan(&req.ID, &req.LoanID, &req.MemberID, &req.Status, &req.Notes, &req.AdminNotes,
		&processor, &processed, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return request.ReturnRequest{}, err
	}
	req.ProcessedBy = processor.String
	req.ProcessedAt = fromNullTime(processed)
	return req, nil
}

func (s *Store) ListReturnRequests(ctx context.Context, memberID string, status request.Status) ([]request.ReturnRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, loan_id, member_id, status, notes, admin_notes,
			processed_by, processed_at, created_at, updated_at
		FROM library_return_requests
		WHERE ($1 = '' OR member_id = $1)
		AND ($2 = '' OR status = $2)
		ORDER BY created_at
	`, memberID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []request.ReturnRequest
	for rows.Next() {
		var (
			req       request.ReturnRequest
			processor sql.NullString
			processed sql.NullTime
		)
		if err := rows.Scan(&req.ID, &req.LoanID, &req.MemberID, &req.Status, &req.Notes, &req.AdminNotes,
			&processor, &processed, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, err
		}
		req.ProcessedBy = processor.String
		req.ProcessedAt = fromNullTime(processed)
		result = append(result, req)
	}
	return result, rows.Err()
}

// --- MessageStore -----------------------------------------------------------

func (s *Store) CreateMessage(ctx context.Context, msg message.Message) (message.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO library_messages (id, member_id, kind, subject, body, read, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, msg.ID, msg.MemberID, msg.Kind, msg.Subject, msg.Body, msg.Read, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return message.Message{}, err
	}
	return msg, nil
}

func (s *Store) UpdateMessage(ctx context.Context, msg message.Message) (message.Message, error) {
	existing, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		return message.Message{}, err
	}

	msg.MemberID = existing.MemberID
	msg.CreatedAt = existing.CreatedAt
	msg.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE library_messages
		SET kind = $2, subject = $3, body = $4, read = $5, updated_at = $6
		WHERE id = $1
	`, msg.ID, msg.Kind, msg.Subject, msg.Body, msg.Read, msg.UpdatedAt)
	if err != nil {
		return message.Message{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return message.Message{}, sql.ErrNoRows
	}
	return msg, nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (message.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, member_id, kind, subject, body, read, created_at, updated_at
		FROM library_messages
		WHERE id = $1
	`, id)

	var msg message.Message
	if err := row.Scan(&msg.ID, &msg.MemberID, &msg.Kind, &msg.Subject, &msg.Body, &msg.Read, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
		return message.Message{}, err
	}
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, memberID string) ([]message.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, member_id, kind, subject, body, read, created_at, updated_at
		FROM library_messages
		WHERE ($1 = '' OR member_id = $1)
		ORDER BY created_at DESC
	`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []message.Message
	for rows.Next() {
		var msg message.Message
		if err := rows.Scan(&msg.ID, &msg.MemberID, &msg.Kind, &msg.Subject, &msg.Body, &msg.Read, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func nullString(v string) sql.NullString {
	if strings.TrimSpace(v) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
