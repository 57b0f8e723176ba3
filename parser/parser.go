// Package parser turns listing-page markup into product records.
package parser

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-products/models"
)

// CardSelector matches one product card on a listing page.
const CardSelector = ".card.thumbnail"

const (
	titleSelector       = "a.title"
	descriptionSelector = "p.description.card-text"
	priceSelector       = "h4.price"
	ratingSelector      = "p[data-rating]"
	reviewsSelector     = "p.review-count.float-end"
)

// ParsePage reads a full HTML document.
func ParsePage(r io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

// ExtractProducts yields one record per product card in document order.
// Cards that fail extraction yield a zero Product and a *RecordError; the
// caller decides whether to keep ranging. The sequence is meant to be ranged
// over once.
func ExtractProducts(doc *goquery.Document) iter.Seq2[models.Product, error] {
	return func(yield func(models.Product, error) bool) {
		if doc == nil {
			return
		}
		cards := doc.Find(CardSelector)
		for i := range cards.Length() {
			product, err := ExtractProduct(cards.Eq(i))
			if err != nil {
				if !yield(models.Product{}, &RecordError{Index: i, Err: err}) {
					return
				}
				continue
			}
			if !yield(product, nil) {
				return
			}
		}
	}
}

// ExtractProduct reads every field of a single card. It returns either a
// complete product or the first field error; never a partial record.
// When a selector matches several elements the first one in document order wins.
func ExtractProduct(card *goquery.Selection) (models.Product, error) {
	title, err := extractTitle(card)
	if err != nil {
		return models.Product{}, err
	}
	description, err := extractDescription(card)
	if err != nil {
		return models.Product{}, err
	}
	price, err := extractPrice(card)
	if err != nil {
		return models.Product{}, err
	}
	rating, err := extractRating(card)
	if err != nil {
		return models.Product{}, err
	}
	reviews, err := extractReviews(card)
	if err != nil {
		return models.Product{}, err
	}

	return models.Product{
		Title:        title,
		Description:  description,
		Price:        price,
		Rating:       rating,
		NumOfReviews: reviews,
	}, nil
}

func extractTitle(card *goquery.Selection) (string, error) {
	value, err := childAttr(card, "title", titleSelector, "title")
	if err != nil {
		return "", err
	}
	title := strings.TrimSpace(value)
	if title == "" {
		return "", ErrMalformedValue{Field: "title", Value: value, Err: errors.New("empty title")}
	}
	return title, nil
}

func extractDescription(card *goquery.Selection) (string, error) {
	return childText(card, "description", descriptionSelector)
}

func extractPrice(card *goquery.Selection) (float64, error) {
	text, err := childText(card, "price", priceSelector)
	if err != nil {
		return 0, err
	}
	return ParsePrice(text)
}

func extractRating(card *goquery.Selection) (int, error) {
	value, err := childAttr(card, "rating", ratingSelector, "data-rating")
	if err != nil {
		return 0, err
	}
	rating, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, ErrMalformedValue{Field: "rating", Value: value, Err: err}
	}
	return rating, nil
}

func extractReviews(card *goquery.Selection) (int, error) {
	text, err := childText(card, "num_of_reviews", reviewsSelector)
	if err != nil {
		return 0, err
	}
	return ParseReviewCount(text)
}

// ParsePrice strips exactly one leading currency symbol and parses the rest,
// so "$1300" becomes 1300. A bare number is accepted as is.
func ParsePrice(text string) (float64, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, ErrMalformedValue{Field: "price", Value: text, Err: errors.New("empty price")}
	}
	amount := trimmed
	if r, size := utf8.DecodeRuneInString(trimmed); !isNumberStart(r) {
		amount = strings.TrimSpace(trimmed[size:])
	}

	price, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0, ErrMalformedValue{Field: "price", Value: text, Err: err}
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, ErrMalformedValue{Field: "price", Value: text, Err: errors.New("not a finite number")}
	}
	if price < 0 {
		return 0, ErrMalformedValue{Field: "price", Value: text, Err: errors.New("negative price")}
	}
	return price, nil
}

func isNumberStart(r rune) bool {
	return unicode.IsDigit(r) || r == '.' || r == '-' || r == '+'
}

// ParseReviewCount reads the leading integer of texts like "9 reviews".
func ParseReviewCount(text string) (int, error) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return 0, ErrMalformedValue{Field: "num_of_reviews", Value: text, Err: errors.New("empty review count")}
	}
	n, err := strconv.Atoi(tokens[0])
	if err != nil {
		return 0, ErrMalformedValue{Field: "num_of_reviews", Value: text, Err: err}
	}
	if n < 0 {
		return 0, ErrMalformedValue{Field: "num_of_reviews", Value: text, Err: errors.New("negative review count")}
	}
	return n, nil
}

// ValidateProduct ensures the extracted record satisfies the data model.
func ValidateProduct(p models.Product) error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("product missing title")
	}
	if p.Price < 0 || math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
		return fmt.Errorf("product %s has invalid price %v", p.Title, p.Price)
	}
	if p.NumOfReviews < 0 {
		return fmt.Errorf("product %s has negative review count %d", p.Title, p.NumOfReviews)
	}
	return nil
}

func childText(card *goquery.Selection, field, selector string) (string, error) {
	node := card.Find(selector).First()
	if node.Length() == 0 {
		return "", ErrMissingField{Field: field, Selector: selector}
	}
	return node.Text(), nil
}

func childAttr(card *goquery.Selection, field, selector, attr string) (string, error) {
	node := card.Find(selector).First()
	if node.Length() == 0 {
		return "", ErrMissingField{Field: field, Selector: selector}
	}
	value, ok := node.Attr(attr)
	if !ok {
		return "", ErrMissingAttribute{Field: field, Selector: selector, Attribute: attr}
	}
	return value, nil
}
