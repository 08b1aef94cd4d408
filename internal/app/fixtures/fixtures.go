// Package fixtures seeds the catalogue and membership from YAML files.
package fixtures

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nta-library/library-service/internal/app/domain/book"
	"github.com/nta-library/library-service/internal/app/services/catalog"
	"github.com/nta-library/library-service/internal/app/services/members"
	"github.com/nta-library/library-service/internal/app/storage"
	"github.com/nta-library/library-service/pkg/logger"
)

// File is the YAML layout of a fixture file.
type File struct {
	Categories []CategoryFixture `yaml:"categories"`
	Books      []BookFixture     `yaml:"books"`
	Members    []MemberFixture   `yaml:"members"`
}

// CategoryFixture seeds one category.
type CategoryFixture struct {
	Name string `yaml:"name"`
}

// BookFixture seeds one catalogue entry. Category refers to a category name
// seeded in the same run.
type BookFixture struct {
	Title     string `yaml:"title"`
	Author    string `yaml:"author"`
	ISBN      string `yaml:"isbn"`
	Serial    string `yaml:"serial"`
	Shelf     string `yaml:"shelf"`
	Category  string `yaml:"category"`
	Publisher string `yaml:"publisher"`
	Pages     int    `yaml:"pages"`
	Language  string `yaml:"language"`
	Keywords  string `yaml:"keywords"`
	Summary   string `yaml:"summary"`
}

// MemberFixture seeds one member account.
type MemberFixture struct {
	Username   string `yaml:"username"`
	Email      string `yaml:"email"`
	Password   string `yaml:"password"`
	FullName   string `yaml:"full_name"`
	Kind       string `yaml:"kind"`
	Department string `yaml:"department"`
}

// Load reads fixture files from path (a YAML file or a directory of them)
// and creates the records. Entries that already exist are skipped.
func Load(ctx context.Context, path string, cat *catalog.Service, mem *members.Service, log *logger.Logger) error {
	if log == nil {
		log = logger.NewDefault("fixtures")
	}

	files, err := collectFiles(path)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		log.WithField("path", path).Warn("no fixture files found")
		return nil
	}

	for _, file := range files {
		if err := loadFile(ctx, file, cat, mem, log); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

func collectFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat fixtures path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func loadFile(ctx context.Context, path string, cat *catalog.Service, mem *members.Service, log *logger.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse fixture: %w", err)
	}

	categoryIDs := make(map[string]string)
	existing, err := cat.ListCategories(ctx)
	if err != nil {
		return err
	}
	for _, c := range existing {
		categoryIDs[strings.ToLower(c.Name)] = c.ID
	}

	for _, cf := range file.Categories {
		key := strings.ToLower(cf.Name)
		if _, ok := categoryIDs[key]; ok {
			continue
		}
		created, err := cat.AddCategory(ctx, cf.Name)
		if err != nil {
			log.WithError(err).Warnf("skip category %q", cf.Name)
			continue
		}
		categoryIDs[key] = created.ID
	}

	shelved, err := cat.List(ctx, storage.BookFilter{})
	if err != nil {
		return err
	}
	index := newBookIndex(shelved)

	seeded := 0
	for _, bf := range file.Books {
		b := book.Book{
			Title:     bf.Title,
			Author:    bf.Author,
			ISBN:      bf.ISBN,
			Serial:    bf.Serial,
			Shelf:     bf.Shelf,
			Publisher: bf.Publisher,
			Pages:     bf.Pages,
			Language:  book.Language(bf.Language),
			Keywords:  bf.Keywords,
			Summary:   bf.Summary,
		}
		if bf.Category != "" {
			b.CategoryID = categoryIDs[strings.ToLower(bf.Category)]
		}
		if index.has(b) {
			continue
		}
		created, err := cat.AddBook(ctx, b)
		if err != nil {
			log.WithError(err).Warnf("skip book %q", bf.Title)
			continue
		}
		index.add(created)
		seeded++
	}

	for _, mf := range file.Members {
		if _, err := mem.GetByUsername(ctx, mf.Username); err == nil {
			continue
		}
		if _, err := mem.Register(ctx, members.RegisterInput{
			Username:   mf.Username,
			Email:      mf.Email,
			Password:   mf.Password,
			FullName:   mf.FullName,
			Kind:       mf.Kind,
			Department: mf.Department,
		}); err != nil {
			log.WithError(err).Warnf("skip member %q", mf.Username)
		}
	}

	log.WithField("file", filepath.Base(path)).
		WithField("books", seeded).
		Info("fixtures loaded")
	return nil
}

// bookIndex tracks identifying keys of catalogued books so repeated loads do
// not duplicate entries.
type bookIndex struct {
	isbn   map[string]bool
	serial map[string]bool
	title  map[string]bool
}

func newBookIndex(books []book.Book) *bookIndex {
	idx := &bookIndex{
		isbn:   make(map[string]bool),
		serial: make(map[string]bool),
		title:  make(map[string]bool),
	}
	for _, b := range books {
		idx.add(b)
	}
	return idx
}

func (idx *bookIndex) add(b book.Book) {
	if b.ISBN != "" {
		idx.isbn[strings.ToLower(b.ISBN)] = true
	}
	if b.Serial != "" {
		idx.serial[strings.ToLower(b.Serial)] = true
	}
	idx.title[titleAuthorKey(b)] = true
}

func (idx *bookIndex) has(b book.Book) bool {
	if b.ISBN != "" && idx.isbn[strings.ToLower(b.ISBN)] {
		return true
	}
	if b.Serial != "" && idx.serial[strings.ToLower(b.Serial)] {
		return true
	}
	return idx.title[titleAuthorKey(b)]
}

func titleAuthorKey(b book.Book) string {
	return strings.ToLower(strings.TrimSpace(b.Title)) + "|" + strings.ToLower(strings.TrimSpace(b.Author))
}
