package catalog

import (
	"context"
	"testing"

	"github.com/nta-library/library-service/internal/app/domain/book"
	"github.com/nta-library/library-service/internal/app/storage"
	"github.com/nta-library/library-service/internal/app/storage/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(memory.New(), nil)
}

func TestAddBookDefaults(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.AddBook(ctx, book.Book{Title: "  Dune ", Author: "Frank Herbert"})
	if err != nil {
		t.Fatalf("AddBook: %v", err)
	}
	if created.Title != "Dune" {
		t.Fatalf("expected trimmed title, got %q", created.Title)
	}
	if !created.Available {
		t.Fatal("expected new copy to start available")
	}
	if created.Language != book.LanguageEnglish {
		t.Fatalf("expected default language, got %q", created.Language)
	}
	if created.Cover != book.CoverPaperback || created.Condition != book.ConditionGood {
		t.Fatalf("expected default cover and condition, got %q/%q", created.Cover, created.Condition)
	}
	if created.CopyNumber != 1 {
		t.Fatalf("expected copy number 1, got %d", created.CopyNumber)
	}
}

func TestAddBookValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddBook(ctx, book.Book{Author: "nobody"}); err == nil {
		t.Fatal("expected error for missing title")
	}
	if _, err := svc.AddBook(ctx, book.Book{Title: "untitled"}); err == nil {
		t.Fatal("expected error for missing author")
	}
	if _, err := svc.AddBook(ctx, book.Book{Title: "x", Author: "y", CategoryID: "ghost"}); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestUpdateBook(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cat, err := svc.AddCategory(ctx, "Science Fiction")
	if err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	created, err := svc.AddBook(ctx, book.Book{Title: "Dune", Author: "Frank Herbert"})
	if err != nil {
		t.Fatalf("AddBook: %v", err)
	}

	title := "Dune Messiah"
	pages := 256
	updated, err := svc.UpdateBook(ctx, created.ID, BookUpdate{
		Title:      &title,
		Pages:      &pages,
		CategoryID: &cat.ID,
	})
	if err != nil {
		t.Fatalf("UpdateBook: %v", err)
	}
	if updated.Title != title || updated.Pages != pages || updated.CategoryID != cat.ID {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.Author != "Frank Herbert" {
		t.Fatalf("untouched field changed: %q", updated.Author)
	}

	empty := ""
	if _, err := svc.UpdateBook(ctx, created.ID, BookUpdate{Title: &empty}); err == nil {
		t.Fatal("expected error when clearing title")
	}
}

func TestRemoveBook(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.AddBook(ctx, book.Book{Title: "Dune", Author: "Frank Herbert"})
	if err != nil {
		t.Fatalf("AddBook: %v", err)
	}
	if err := svc.RemoveBook(ctx, created.ID); err != nil {
		t.Fatalf("RemoveBook: %v", err)
	}
	if _, err := svc.Get(ctx, created.ID); err == nil {
		t.Fatal("expected removed book to be gone")
	}
	if err := svc.RemoveBook(ctx, created.ID); err == nil {
		t.Fatal("expected error removing a missing book")
	}
}

func TestListFilters(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cat, _ := svc.AddCategory(ctx, "Science")
	if _, err := svc.AddBook(ctx, book.Book{Title: "Cosmos", Author: "Carl Sagan", CategoryID: cat.ID, Keywords: "astronomy"}); err != nil {
		t.Fatalf("AddBook: %v", err)
	}
	if _, err := svc.AddBook(ctx, book.Book{Title: "Dune", Author: "Frank Herbert"}); err != nil {
		t.Fatalf("AddBook: %v", err)
	}

	byCategory, err := svc.List(ctx, storage.BookFilter{CategoryID: cat.ID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(byCategory) != 1 || byCategory[0].Title != "Cosmos" {
		t.Fatalf("unexpected category filter result: %+v", byCategory)
	}

	byQuery, err := svc.List(ctx, storage.BookFilter{Query: "astronomy"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(byQuery) != 1 || byQuery[0].Title != "Cosmos" {
		t.Fatalf("unexpected keyword search result: %+v", byQuery)
	}

	all, err := svc.List(ctx, storage.BookFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 books, got %d", len(all))
	}
}

func TestCategorySlugs(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cat, err := svc.AddCategory(ctx, "Graphic Novels & Comics")
	if err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	if cat.Slug != "graphic-novels-comics" {
		t.Fatalf("unexpected slug %q", cat.Slug)
	}

	if _, err := svc.AddCategory(ctx, "  "); err == nil {
		t.Fatal("expected error for blank category name")
	}
	if _, err := svc.AddCategory(ctx, "Graphic Novels & Comics"); err == nil {
		t.Fatal("expected error for duplicate slug")
	}
}
