package redis

import (
	"strconv"
	"strings"
)

const (
	searchPrefix         = "search"
	cartPrefix           = "cart"
	convertingSuffix     = "converting"
	recommendationPrefix = "reco"
	rateLimitPrefix      = "rate"
	productPrefix        = "product"
)

// SearchKey returns the cache key for a search fingerprint.
func SearchKey(fingerprint string) string {
	return buildKey(searchPrefix, fingerprint)
}

// SearchPrefix matches every cached search result.
func SearchPrefix() string {
	return searchPrefix + ":"
}

// CartKey returns the hash key holding a user's cart.
func CartKey(userID string) string {
	return buildKey(cartPrefix, userID)
}

// CartConvertingKey marks a cart that is being turned into an order.
func CartConvertingKey(userID string) string {
	return buildKey(cartPrefix, userID, convertingSuffix)
}

// RecommendationKey returns the cache key for a recommendation set.
func RecommendationKey(kind, seedID string, limit int) string {
	return buildKey(recommendationPrefix, kind, seedID, strconv.Itoa(limit))
}

// RecommendationPrefix matches every cached limit variant of one recommendation seed.
func RecommendationPrefix(kind, seedID string) string {
	return buildKey(recommendationPrefix, kind, seedID) + ":"
}

// RateLimitKey returns the counter key for a user action.
func RateLimitKey(userID, action string) string {
	return buildKey(rateLimitPrefix, userID, action)
}

// ProductKey returns the cache key for a product detail read model.
func ProductKey(productID string) string {
	return buildKey(productPrefix, productID)
}

// Namespace returns the leading segment of key, used as a metrics label.
func Namespace(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

func buildKey(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		clean = append(clean, part)
	}
	return strings.Join(clean, ":")
}
