package enums

import "fmt"

// RecommendationKind names a recommendation query shape.
type RecommendationKind string

const (
	RecommendationSimilar                  RecommendationKind = "similar"
	RecommendationAlsoBought               RecommendationKind = "alsoBought"
	RecommendationFrequentlyBoughtTogether RecommendationKind = "frequentlyBoughtTogether"
	RecommendationTrending                 RecommendationKind = "trending"
	RecommendationCategory                 RecommendationKind = "category"
	RecommendationCategoryAffinity         RecommendationKind = "categoryAffinity"
)

var validRecommendationKinds = []RecommendationKind{
	RecommendationSimilar,
	RecommendationAlsoBought,
	RecommendationFrequentlyBoughtTogether,
	RecommendationTrending,
	RecommendationCategory,
	RecommendationCategoryAffinity,
}

// String implements fmt.Stringer.
func (k RecommendationKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known RecommendationKind.
func (k RecommendationKind) IsValid() bool {
	for _, candidate := range validRecommendationKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseRecommendationKind converts raw input into a RecommendationKind.
func ParseRecommendationKind(value string) (RecommendationKind, error) {
	for _, candidate := range validRecommendationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid recommendation kind %q", value)
}

// RecommendationReason tags why an item was recommended.
type RecommendationReason string

const (
	ReasonSimilarContent RecommendationReason = "similar_content"
	ReasonSimilarGraph   RecommendationReason = "similar_graph"
	ReasonAlsoBought     RecommendationReason = "also_bought"
	ReasonBoughtTogether RecommendationReason = "bought_together"
	ReasonTrending       RecommendationReason = "trending"
	ReasonCategory       RecommendationReason = "category_popular"
	ReasonCategoryMatch  RecommendationReason = "category_affinity"
)
