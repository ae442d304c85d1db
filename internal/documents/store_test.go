package documents

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
)

type fakeCollection struct {
	docs      []any
	one       any
	findErr   error
	oneErr    error
	lastQuery any
}

func (f *fakeCollection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	f.lastQuery = filter
	if f.findErr != nil {
		return nil, f.findErr
	}
	return mongo.NewCursorFromDocuments(f.docs, nil, nil)
}

func (f *fakeCollection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult {
	f.lastQuery = filter
	if f.oneErr != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, f.oneErr, nil)
	}
	return mongo.NewSingleResultFromDocument(f.one, nil, nil)
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestGetReviewsDecodesDocuments(t *testing.T) {
	created := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	reviews := &fakeCollection{docs: []any{
		bson.D{
			{Key: "product_id", Value: "P001"},
			{Key: "user_id", Value: "U002"},
			{Key: "rating", Value: 5},
			{Key: "title", Value: "Beautiful craftsmanship"},
			{Key: "helpful_votes", Value: 12},
			{Key: "verified_purchase", Value: true},
			{Key: "created_at", Value: created},
			{Key: "comments", Value: bson.A{
				bson.D{{Key: "user_id", Value: "U003"}, {Key: "content", Value: "I agree!"}},
			}},
		},
		bson.D{
			{Key: "product_id", Value: "P001"},
			{Key: "user_id", Value: "U004"},
			{Key: "rating", Value: 4},
		},
	}}
	s := &store{reviews: reviews, specs: &fakeCollection{}}

	got, err := s.GetReviews(context.Background(), "P001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 reviews got %d", len(got))
	}
	if got[0].Rating != 5 || !got[0].VerifiedPurchase || got[0].HelpfulVotes != 12 {
		t.Fatalf("unexpected first review %+v", got[0])
	}
	if !got[0].CreatedAt.Equal(created) {
		t.Fatalf("expected created_at %s got %s", created, got[0].CreatedAt)
	}
	if len(got[0].Comments) != 1 || got[0].Comments[0].Content != "I agree!" {
		t.Fatalf("expected nested comment, got %+v", got[0].Comments)
	}
	filter, ok := reviews.lastQuery.(bson.M)
	if !ok || filter["product_id"] != "P001" {
		t.Fatalf("unexpected filter %v", reviews.lastQuery)
	}
}

func TestGetReviewsEmpty(t *testing.T) {
	s := &store{reviews: &fakeCollection{}, specs: &fakeCollection{}}
	got, err := s.GetReviews(context.Background(), "P404")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice got %v", got)
	}
}

func TestGetReviewsMapsDriverErrors(t *testing.T) {
	s := &store{reviews: &fakeCollection{findErr: context.DeadlineExceeded}}
	_, err := s.GetReviews(context.Background(), "P001")
	if !pkgerrors.IsCode(err, pkgerrors.CodeTimeout) {
		t.Fatalf("expected timeout got %v", err)
	}

	_, err = s.GetReviews(context.Background(), "  ")
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error got %v", err)
	}
}

func TestGetSpecs(t *testing.T) {
	specs := &fakeCollection{one: bson.D{
		{Key: "product_id", Value: "P001"},
		{Key: "category", Value: "Home & Kitchen"},
		{Key: "specs", Value: bson.D{
			{Key: "material", Value: "Acacia wood"},
			{Key: "capacity", Value: "2 liters"},
		}},
	}}
	s := &store{specs: specs}

	got, err := s.GetSpecs(context.Background(), "P001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Category != "Home & Kitchen" {
		t.Fatalf("unexpected category %q", got.Category)
	}
	if got.Specs["material"] != "Acacia wood" {
		t.Fatalf("unexpected specs %v", got.Specs)
	}
}

func TestGetSpecsNotFound(t *testing.T) {
	s := &store{specs: &fakeCollection{oneErr: mongo.ErrNoDocuments}}
	_, err := s.GetSpecs(context.Background(), "P404")
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found got %v", err)
	}
}

func TestPing(t *testing.T) {
	s := &store{pinger: fakePinger{err: errors.New("boom")}}
	if err := s.Ping(context.Background()); !pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error got %v", err)
	}
	s = &store{pinger: fakePinger{}}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestAverageRating(t *testing.T) {
	if got := AverageRating(nil); got != 0 {
		t.Fatalf("expected 0 got %v", got)
	}
	got := AverageRating([]Review{{Rating: 5}, {Rating: 4}, {Rating: 4}})
	if got != 4.33 {
		t.Fatalf("expected 4.33 got %v", got)
	}
}
