// Package models defines data structures for the scraper.
package models

import (
	"fmt"
	"strconv"
	"time"
)

// Product represents one product card extracted from a listing page.
type Product struct {
	Title        string  `csv:"title" json:"title"`
	Description  string  `csv:"description" json:"description"`
	Price        float64 `csv:"price" json:"price"`
	Rating       int     `csv:"rating" json:"rating"`
	NumOfReviews int     `csv:"num_of_reviews" json:"num_of_reviews"`
}

// FieldNames returns the canonical column order used for every output.
func FieldNames() []string {
	return []string{"title", "description", "price", "rating", "num_of_reviews"}
}

// Row projects the product to its textual values in canonical order.
func (p Product) Row() []string {
	return []string{
		p.Title,
		p.Description,
		strconv.FormatFloat(p.Price, 'f', -1, 64),
		strconv.Itoa(p.Rating),
		strconv.Itoa(p.NumOfReviews),
	}
}

// ParseRow is the inverse of Row.
func ParseRow(row []string) (Product, error) {
	if len(row) != len(FieldNames()) {
		return Product{}, fmt.Errorf("row has %d columns, want %d", len(row), len(FieldNames()))
	}
	price, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return Product{}, fmt.Errorf("parse price %q: %w", row[2], err)
	}
	rating, err := strconv.Atoi(row[3])
	if err != nil {
		return Product{}, fmt.Errorf("parse rating %q: %w", row[3], err)
	}
	reviews, err := strconv.Atoi(row[4])
	if err != nil {
		return Product{}, fmt.Errorf("parse num_of_reviews %q: %w", row[4], err)
	}
	return Product{
		Title:        row[0],
		Description:  row[1],
		Price:        price,
		Rating:       rating,
		NumOfReviews: reviews,
	}, nil
}

// SectionResult holds the outcome of scraping a single site section.
type SectionResult struct {
	Name         string
	URL          string
	OutputPath   string
	Written      int
	Skipped      int
	RecordErrors []error
	Err          error
	StartTime    time.Time
	EndTime      time.Time
}

// OK reports whether the section completed without a fatal error.
func (r *SectionResult) OK() bool {
	return r != nil && r.Err == nil
}

// ScraperResult holds the overall result of a scraping run
type ScraperResult struct {
	Sections     []*SectionResult
	StartTime    time.Time
	EndTime      time.Time
	TotalCount   int
	ErrorCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
	RetryCount   int
	RequestCount int
	CacheHits    int
}
