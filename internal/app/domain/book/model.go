package book

import "time"

// Language is the primary language of a catalogued title.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageArabic  Language = "ar"
	LanguageFrench  Language = "fr"
	LanguageSpanish Language = "es"
	LanguageGerman  Language = "de"
	LanguageOther   Language = "other"
)

// CoverType describes the physical binding of a copy.
type CoverType string

const (
	CoverHardcover CoverType = "hardcover"
	CoverPaperback CoverType = "paperback"
	CoverSpiral    CoverType = "spiral"
	CoverDigital   CoverType = "digital"
)

// Condition tracks the physical state of a copy.
type Condition string

const (
	ConditionExcellent Condition = "excellent"
	ConditionGood      Condition = "good"
	ConditionFair      Condition = "fair"
	ConditionPoor      Condition = "poor"
	ConditionDamaged   Condition = "damaged"
)

// Book is a single physical or digital copy in the catalogue.
type Book struct {
	ID         string
	Serial     string
	Shelf      string
	Title      string
	Author     string
	ISBN       string
	Barcode    string
	CategoryID string
	Publisher  string
	Pages      int
	Language   Language
	Edition    string
	Series     string
	Keywords   string
	Summary    string
	Cover      CoverType
	Condition  Condition
	CopyNumber int
	Available  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Category groups catalogue entries for browsing and reporting.
type Category struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
