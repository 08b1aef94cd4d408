// Package catalog manages the book catalogue and its categories.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/nta-library/library-service/internal/app/domain/book"
	"github.com/nta-library/library-service/internal/app/storage"
	"github.com/nta-library/library-service/pkg/logger"
)

// Service manages catalogue records and validation.
type Service struct {
	store storage.BookStore
	log   *logger.Logger
}

// New constructs a catalog service.
func New(store storage.BookStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("catalog")
	}
	return &Service{store: store, log: log}
}

// BookUpdate carries optional field changes for UpdateBook. Nil fields are
// left untouched.
type BookUpdate struct {
	Serial     *string
	Shelf      *string
	Title      *string
	Author     *string
	ISBN       *string
	Barcode    *string
	CategoryID *string
	Publisher  *string
	Pages      *int
	Language   *string
	Edition    *string
	Series     *string
	Keywords   *string
	Summary    *string
	Cover      *string
	Condition  *string
	CopyNumber *int
}

// AddBook validates and creates a catalogue entry. New copies start available.
func (s *Service) AddBook(ctx context.Context, b book.Book) (book.Book, error) {
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	b.ISBN = strings.TrimSpace(b.ISBN)
	if b.Title == "" {
		return book.Book{}, fmt.Errorf("title is required")
	}
	if b.Author == "" {
		return book.Book{}, fmt.Errorf("author is required")
	}

	if b.CategoryID != "" {
		if _, err := s.store.GetCategory(ctx, b.CategoryID); err != nil {
			return book.Book{}, fmt.Errorf("category validation failed: %w", err)
		}
	}

	if b.Language == "" {
		b.Language = book.LanguageEnglish
	}
	if b.Cover == "" {
		b.Cover = book.CoverPaperback
	}
	if b.Condition == "" {
		b.Condition = book.ConditionGood
	}
	if b.CopyNumber <= 0 {
		b.CopyNumber = 1
	}
	b.Available = true

	created, err := s.store.CreateBook(ctx, b)
	if err != nil {
		return book.Book{}, err
	}
	s.log.WithField("book_id", created.ID).
		WithField("title", created.Title).
		Info("book added to catalogue")
	return created, nil
}

// UpdateBook applies the provided field changes.
func (s *Service) UpdateBook(ctx context.Context, id string, upd BookUpdate) (book.Book, error) {
	b, err := s.store.GetBook(ctx, id)
	if err != nil {
		return book.Book{}, err
	}

	if upd.Serial != nil {
		b.Serial = strings.TrimSpace(*upd.Serial)
	}
	if upd.Shelf != nil {
		b.Shelf = strings.TrimSpace(*upd.Shelf)
	}
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return book.Book{}, fmt.Errorf("title cannot be empty")
		}
		b.Title = title
	}
	if upd.Author != nil {
		author := strings.TrimSpace(*upd.Author)
		if author == "" {
			return book.Book{}, fmt.Errorf("author cannot be empty")
		}
		b.Author = author
	}
	if upd.ISBN != nil {
		b.ISBN = strings.TrimSpace(*upd.ISBN)
	}
	if upd.Barcode != nil {
		b.Barcode = strings.TrimSpace(*upd.Barcode)
	}
	if upd.CategoryID != nil {
		categoryID := strings.TrimSpace(*upd.CategoryID)
		if categoryID != "" {
			if _, err := s.store.GetCategory(ctx, categoryID); err != nil {
				return book.Book{}, fmt.Errorf("category validation failed: %w", err)
			}
		}
		b.CategoryID = categoryID
	}
	if upd.Publisher != nil {
		b.Publisher = strings.TrimSpace(*upd.Publisher)
	}
	if upd.Pages != nil {
		b.Pages = *upd.Pages
	}
	if upd.Language != nil {
		b.Language = book.Language(strings.ToLower(strings.TrimSpace(*upd.Language)))
	}
	if upd.Edition != nil {
		b.Edition = strings.TrimSpace(*upd.Edition)
	}
	if upd.Series != nil {
		b.Series = strings.TrimSpace(*upd.Series)
	}
	if upd.Keywords != nil {
		b.Keywords = strings.TrimSpace(*upd.Keywords)
	}
	if upd.Summary != nil {
		b.Summary = *upd.Summary
	}
	if upd.Cover != nil {
		b.Cover = book.CoverType(strings.ToLower(strings.TrimSpace(*upd.Cover)))
	}
	if upd.Condition != nil {
		b.Condition = book.Condition(strings.ToLower(strings.TrimSpace(*upd.Condition)))
	}
	if upd.CopyNumber != nil {
		b.CopyNumber = *upd.CopyNumber
	}

	updated, err := s.store.UpdateBook(ctx, b)
	if err != nil {
		return book.Book{}, err
	}
	s.log.WithField("book_id", id).Info("book updated")
	return updated, nil
}

// RemoveBook deletes a catalogue entry.
func (s *Service) RemoveBook(ctx context.Context, id string) error {
	if err := s.store.DeleteBook(ctx, id); err != nil {
		return err
	}
	s.log.WithField("book_id", id).Info("book removed from catalogue")
	return nil
}

// Get returns a single book.
func (s *Service) Get(ctx context.Context, id string) (book.Book, error) {
	return s.store.GetBook(ctx, id)
}

// List returns books matching the filter.
func (s *Service) List(ctx context.Context, filter storage.BookFilter) ([]book.Book, error) {
	filter.Query = strings.TrimSpace(filter.Query)
	return s.store.ListBooks(ctx, filter)
}

// AddCategory creates a category, deriving the slug from the name.
func (s *Service) AddCategory(ctx context.Context, name string) (book.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return book.Category{}, fmt.Errorf("category name is required")
	}

	cat := book.Category{Name: name, Slug: slugify(name)}
	created, err := s.store.CreateCategory(ctx, cat)
	if err != nil {
		return book.Category{}, err
	}
	s.log.WithField("category_id", created.ID).
		WithField("slug", created.Slug).
		Info("category added")
	return created, nil
}

// ListCategories returns all categories.
func (s *Service) ListCategories(ctx context.Context) ([]book.Category, error) {
	return s.store.ListCategories(ctx)
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
