package fixtures

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nta-library/library-service/internal/app/services/catalog"
	"github.com/nta-library/library-service/internal/app/services/members"
	"github.com/nta-library/library-service/internal/app/storage"
	"github.com/nta-library/library-service/internal/app/storage/memory"
)

const seedYAML = `
categories:
  - name: Fiction
  - name: Science

books:
  - title: Dune
    author: Frank Herbert
    isbn: "978-0441172719"
    category: fiction
    keywords: science fiction, desert
  - title: Cosmos
    author: Carl Sagan
    category: science

members:
  - username: seeded
    email: seeded@example.com
    password: seeded-password
    full_name: Seeded Member
    kind: faculty
`

func TestLoadSeedsEverything(t *testing.T) {
	store := memory.New()
	cat := catalog.New(store, nil)
	mem := members.New(store, nil)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "seed.yaml"), []byte(seedYAML), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	ctx := context.Background()
	if err := Load(ctx, dir, cat, mem, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}

	cats, err := cat.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(cats))
	}

	books, err := cat.List(ctx, storage.BookFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("expected 2 books, got %d", len(books))
	}
	for _, b := range books {
		if b.Title == "Dune" && b.CategoryID == "" {
			t.Fatal("expected Dune to be linked to its category")
		}
	}

	if _, err := mem.GetByUsername(ctx, "seeded"); err != nil {
		t.Fatalf("expected seeded member: %v", err)
	}

	// Loading again skips existing records instead of failing.
	if err := Load(ctx, dir, cat, mem, nil); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	cats, _ = cat.ListCategories(ctx)
	if len(cats) != 2 {
		t.Fatalf("expected categories to stay at 2, got %d", len(cats))
	}
	books, _ = cat.List(ctx, storage.BookFilter{})
	if len(books) != 2 {
		t.Fatalf("expected books to stay at 2, got %d", len(books))
	}
}

func TestLoadMissingPath(t *testing.T) {
	store := memory.New()
	if err := Load(context.Background(), "/does/not/exist",
		catalog.New(store, nil), members.New(store, nil), nil); err == nil {
		t.Fatal("expected error for missing path")
	}
}
