package dsl

import (
	"testing"

	"github.com/rushteam/bookrec/core"
)

func TestItemFilter_Match(t *testing.T) {
	item := &core.CatalogItem{
		ID:       7,
		Kind:     core.KindCatalog,
		Genre:    "Fiction",
		Category: "Novel",
		Author:   "A",
		ImageRef: "http://example.com/a.jpg",
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"kind equality", `item.kind == "book"`, true},
		{"genre mismatch", `item.genre == "History"`, false},
		{"combined", `item.genre == "Fiction" && item.has_image`, true},
		{"in list", `item.category in ["Novel", "Poetry"]`, true},
		{"numeric id", `item.id > 5`, true},
		{"visual features", `item.has_visual_features`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile(%q) error = %v", tt.expr, err)
			}
			got, err := f.Match(item)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompile_EmptyAndInvalid(t *testing.T) {
	f, err := Compile("")
	if err != nil || f != nil {
		t.Fatalf("Compile(\"\") = %v, %v; want nil, nil", f, err)
	}
	ok, err := f.Match(&core.CatalogItem{})
	if err != nil || !ok {
		t.Errorf("nil filter Match() = %v, %v; want true, nil", ok, err)
	}

	if _, err := Compile(`item.genre ==`); err == nil {
		t.Errorf("expected compile error")
	}
	if _, err := Compile(`"not a bool"`); err == nil {
		t.Errorf("expected non-bool error")
	}
}
