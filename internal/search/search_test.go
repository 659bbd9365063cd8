package search

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	got := Tokenize("  Buy MILK, eggs & bread!! x2 ")
	want := []string{"buy", "milk", "eggs", "bread", "x2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokenize = %v, want %v", got, want)
	}
}

func TestTerms_Dedupes(t *testing.T) {
	got := Terms("milk Milk bread")
	want := []string{"milk", "bread"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Terms = %v, want %v", got, want)
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name  string
		query string
		text  string
		match bool
	}{
		{"exact", "milk", "Buy milk", true},
		{"prefix on last term", "mil", "Buy milk", true},
		{"prefix only applies to last term", "mil walk", "Buy milk", false},
		{"no match", "bread", "Buy milk", false},
		{"substring is not a token match", "ilk", "Buy milk", false},
		{"empty text", "milk", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(Terms(tt.query), tt.text) > 0
			if got != tt.match {
				t.Fatalf("Score(%q, %q) match = %v, want %v", tt.query, tt.text, got, tt.match)
			}
		})
	}
}

func TestRank_OrdersByRelevance(t *testing.T) {
	items := []string{
		"Call the bank",
		"Buy milk",
		"Buy milk and bread at the corner shop",
		"Milkshake recipe",
		"Walk the dog",
	}
	got := Rank("buy milk", items, func(s string) string { return s })
	want := []string{
		"Buy milk",
		"Buy milk and bread at the corner shop",
		"Milkshake recipe",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Rank = %v, want %v", got, want)
	}
}

func TestRank_BlankQuery(t *testing.T) {
	if got := Rank("   ", []string{"a"}, func(s string) string { return s }); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
