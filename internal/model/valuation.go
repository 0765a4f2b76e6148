package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// PropertySummary is the property portion of a valuation result
type PropertySummary struct {
	Acreage  float64  `json:"acreage"`
	Location string   `json:"location"`
	Features []string `json:"features"`
}

// ValuationFigures holds the per-acre price percentiles and derived totals.
// P10/P50/P90 are the conservative, median and optimistic per-acre estimates.
type ValuationFigures struct {
	P10          float64 `json:"p10"`
	P50          float64 `json:"p50"`
	P90          float64 `json:"p90"`
	TotalValue   float64 `json:"totalValue"`
	PricePerAcre float64 `json:"pricePerAcre"`
	Confidence   float64 `json:"confidence"`
}

// Analysis is the narrative portion of a valuation result
type Analysis struct {
	Narrative  string   `json:"narrative"`
	KeyFactors []string `json:"keyFactors"`
	Confidence float64  `json:"confidence"`
}

// ComparableSale is a previously observed market transaction used as
// evidence for the subject property's value
type ComparableSale struct {
	Description  string   `json:"description"`
	Location     string   `json:"location"`
	Date         string   `json:"date"`
	PricePerAcre float64  `json:"pricePerAcre"`
	TotalPrice   float64  `json:"totalPrice"`
	Acreage      float64  `json:"acreage"`
	Features     []string `json:"features"`
	SourceURL    string   `json:"sourceUrl,omitempty"`
}

// WebSource is a citation backing the valuation analysis
type WebSource struct {
	Title        string `json:"title"`
	Organization string `json:"organization"`
	URL          string `json:"url"`
}

// ValuationResult is the structured valuation returned to the client.
// It is transient: its fields are flattened into a Valuation row for storage.
type ValuationResult struct {
	Property        PropertySummary  `json:"property"`
	Valuation       ValuationFigures `json:"valuation"`
	Analysis        Analysis         `json:"analysis"`
	ComparableSales []ComparableSale `json:"comparableSales"`
	Sources         []WebSource      `json:"sources"`
	Timestamp       string           `json:"timestamp"`
}

// Valuation represents a persisted valuation row. Acreage and confidence are
// stored as decimal text to preserve precision. Rows are created exactly once
// per successful valuation request and never mutated or deleted.
type Valuation struct {
	ID                  int64              `json:"id" db:"id"`
	PropertyDescription string             `json:"propertyDescription" db:"property_description"`
	Location            string             `json:"location" db:"location"`
	Acreage             string             `json:"acreage" db:"acreage"`
	Irrigated           bool               `json:"irrigated" db:"irrigated"`
	Tillable            bool               `json:"tillable" db:"tillable"`
	CropType            *string            `json:"cropType,omitempty" db:"crop_type"`
	P10                 float64            `json:"p10" db:"p10"`
	P50                 float64            `json:"p50" db:"p50"`
	P90                 float64            `json:"p90" db:"p90"`
	TotalValue          float64            `json:"totalValue" db:"total_value"`
	PricePerAcre        float64            `json:"pricePerAcre" db:"price_per_acre"`
	Confidence          string             `json:"confidence" db:"confidence"`
	Narrative           string             `json:"narrative" db:"narrative"`
	KeyFactors          StringList         `json:"keyFactors" db:"key_factors"`
	ComparableSales     ComparableSaleList `json:"comparableSales" db:"comparable_sales"`
	Sources             SourceList         `json:"sources" db:"sources"`
	CreatedAt           time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time          `json:"updatedAt" db:"updated_at"`
}

// StringList represents a JSON array column of strings
type StringList []string

// Value implements driver.Valuer interface
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner interface
func (l *StringList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// ComparableSaleList represents a JSON array column of comparable sales
type ComparableSaleList []ComparableSale

// Value implements driver.Valuer interface
func (l ComparableSaleList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner interface
func (l *ComparableSaleList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// SourceList represents a JSON array column of web sources
type SourceList []WebSource

// Value implements driver.Valuer interface
func (l SourceList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner interface
func (l *SourceList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

func scanJSON(value interface{}, target interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return json.Unmarshal([]byte(value.(string)), target)
	}
	return json.Unmarshal(bytes, target)
}
