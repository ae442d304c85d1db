package search

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/angelmondragon/artisanmarket-backend/internal/catalog"
	"github.com/angelmondragon/artisanmarket-backend/pkg/enums"
)

// canonicalQuery fields are declared in key order so the JSON encoding is stable.
type canonicalQuery struct {
	Filters *catalog.Filters `json:"filters,omitempty"`
	Limit   int              `json:"limit"`
	Mode    enums.SearchMode `json:"mode"`
	Query   string           `json:"query"`
}

// NormalizeText trims, lower-cases and collapses internal whitespace.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Fingerprint returns the sha256 hex digest of the canonical query encoding.
// Callers pass already-normalized text.
func Fingerprint(text string, filters catalog.Filters, mode enums.SearchMode, limit int) (string, error) {
	cq := canonicalQuery{Limit: limit, Mode: mode, Query: text}
	if !filters.IsZero() {
		f := filters
		if f.Category != "" {
			f.Category = strings.TrimSpace(f.Category)
		}
		cq.Filters = &f
	}
	payload, err := json.Marshal(cq)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
