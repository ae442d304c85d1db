package recommendations

import (
	"time"

	"github.com/angelmondragon/artisanmarket-backend/pkg/enums"
)

const (
	defaultLimit          = 5
	maxLimit              = 50
	maxTrendingDays       = 365
	affinityCategories    = 3
	maxCategoryCandidates = 200
)

// Item is a single recommended product.
type Item struct {
	ProductID string                     `json:"product_id"`
	Score     float64                    `json:"score"`
	Reason    enums.RecommendationReason `json:"reason"`
}

// Set is the cached answer for one kind, seed and limit.
type Set struct {
	Kind        enums.RecommendationKind `json:"kind"`
	SeedID      string                   `json:"seed_id"`
	Items       []Item                   `json:"items"`
	GeneratedAt time.Time                `json:"generated_at"`
}
