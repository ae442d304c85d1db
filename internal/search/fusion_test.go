package search

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/artisanmarket-backend/internal/catalog"
	"github.com/angelmondragon/artisanmarket-backend/pkg/enums"
)

func TestNormalize(t *testing.T) {
	got := normalize([]float64{2, 4, 6})
	if got[0] != 0 || got[1] != 0.5 || got[2] != 1 {
		t.Fatalf("unexpected normalization %v", got)
	}
	if got := normalize([]float64{0.3}); got[0] != 1 {
		t.Fatalf("single score should normalize to 1, got %v", got)
	}
	if got := normalize([]float64{0.3, 0.3}); got[0] != 1 || got[1] != 1 {
		t.Fatalf("equal scores should normalize to 1, got %v", got)
	}
	if got := normalize(nil); len(got) != 0 {
		t.Fatalf("expected empty output")
	}
}

func TestFuseIsDeterministic(t *testing.T) {
	lexical := []catalog.LexicalHit{{ProductID: "P003", Rank: 0.5}, {ProductID: "P001", Rank: 0.5}}
	semantic := []catalog.VectorHit{{ProductID: "P002", Distance: 0.4}}

	for i := 0; i < 5; i++ {
		got := fuse(lexical, semantic, 0.5, 0.5)
		if got[0].ProductID != "P001" || got[1].ProductID != "P002" || got[2].ProductID != "P003" {
			t.Fatalf("equal scores must tie-break by id, got %v %v %v", got[0].ProductID, got[1].ProductID, got[2].ProductID)
		}
	}
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint(NormalizeText("  Wooden   BOWL "), catalog.Filters{}, enums.SearchModeCombined, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := Fingerprint("wooden bowl", catalog.Filters{}, enums.SearchModeCombined, 10)
	if a != b {
		t.Fatalf("normalized queries should share a fingerprint")
	}
	if len(a) != 64 {
		t.Fatalf("expected sha256 hex, got %q", a)
	}

	max := decimal.RequireFromString("50.00")
	c, _ := Fingerprint("wooden bowl", catalog.Filters{MaxPrice: &max}, enums.SearchModeCombined, 10)
	if c == a {
		t.Fatalf("filters must change the fingerprint")
	}
	max2 := decimal.RequireFromString("50")
	d, _ := Fingerprint("wooden bowl", catalog.Filters{MaxPrice: &max2}, enums.SearchModeCombined, 10)
	if c != d {
		t.Fatalf("equal prices should share a fingerprint")
	}
	e, _ := Fingerprint("wooden bowl", catalog.Filters{}, enums.SearchModeLexical, 10)
	if e == a {
		t.Fatalf("mode must change the fingerprint")
	}
}
