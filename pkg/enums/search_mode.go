package enums

import (
	"fmt"
	"strings"
)

// SearchMode selects which sub-queries feed the fused ranking.
type SearchMode string

const (
	SearchModeCombined SearchMode = "combined"
	SearchModeLexical  SearchMode = "lexical"
	SearchModeSemantic SearchMode = "semantic"
)

var validSearchModes = []SearchMode{
	SearchModeCombined,
	SearchModeLexical,
	SearchModeSemantic,
}

// String implements fmt.Stringer.
func (m SearchMode) String() string {
	return string(m)
}

// IsValid reports whether the value is a known SearchMode.
func (m SearchMode) IsValid() bool {
	for _, candidate := range validSearchModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseSearchMode converts raw input into a SearchMode. Blank input means combined.
func ParseSearchMode(value string) (SearchMode, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return SearchModeCombined, nil
	}
	for _, candidate := range validSearchModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid search mode %q", value)
}
