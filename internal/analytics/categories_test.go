package analytics

import (
	"reflect"
	"testing"
)

func TestSuggestCategories(t *testing.T) {
	spent := []string{"Food", "Travel", "Groceries", "Fun"}
	tests := []struct {
		name   string
		limits []string
		want   map[string]string
	}{
		{"exact names need nothing", []string{"Food", "Travel"}, map[string]string{}},
		{"case differs", []string{"food"}, map[string]string{"food": "Food"}},
		{"typo", []string{"Grocerys", "Travle"}, map[string]string{"Grocerys": "Groceries", "Travle": "Travel"}},
		{"too far", []string{"Rent"}, map[string]string{}},
		{"short names are not guessed", []string{"Fu"}, map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SuggestCategories(tt.limits, spent)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("SuggestCategories(%v) = %v, want %v", tt.limits, got, tt.want)
			}
		})
	}
}
