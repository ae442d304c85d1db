package documents

import (
	"context"
	"time"
)

// Comment is a reply nested under a review.
type Comment struct {
	UserID    string    `bson:"user_id" json:"user_id"`
	Content   string    `bson:"content" json:"content"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Review is a customer review document.
type Review struct {
	ProductID        string    `bson:"product_id" json:"product_id"`
	UserID           string    `bson:"user_id" json:"user_id"`
	Rating           int       `bson:"rating" json:"rating"`
	Title            string    `bson:"title" json:"title"`
	Content          string    `bson:"content" json:"content"`
	Images           []string  `bson:"images,omitempty" json:"images,omitempty"`
	HelpfulVotes     int       `bson:"helpful_votes" json:"helpful_votes"`
	VerifiedPurchase bool      `bson:"verified_purchase" json:"verified_purchase"`
	CreatedAt        time.Time `bson:"created_at" json:"created_at"`
	Comments         []Comment `bson:"comments,omitempty" json:"comments,omitempty"`
}

// Specs holds the category-dependent specification document for a product.
// The attribute set varies by category so it is kept schemaless.
type Specs struct {
	ProductID string         `bson:"product_id" json:"product_id"`
	Category  string         `bson:"category" json:"category"`
	Specs     map[string]any `bson:"specs" json:"specs"`
}

// Store is the read-only document adapter.
type Store interface {
	GetReviews(ctx context.Context, productID string) ([]Review, error)
	GetSpecs(ctx context.Context, productID string) (*Specs, error)
	Ping(ctx context.Context) error
}

// AverageRating returns the mean rating rounded to two decimals, or 0 for no reviews.
func AverageRating(reviews []Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	total := 0
	for _, r := range reviews {
		total += r.Rating
	}
	avg := float64(total) / float64(len(reviews))
	return float64(int(avg*100+0.5)) / 100
}
