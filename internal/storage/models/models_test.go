package models

import (
	"reflect"
	"testing"
)

func TestSplitGenres(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "pipes", raw: "Drama|Crime", want: []string{"Drama", "Crime"}},
		{name: "commas with spaces", raw: "Action, Sci-Fi", want: []string{"Action", "Sci-Fi"}},
		{name: "mixed delimiters", raw: "Drama|Crime, Thriller", want: []string{"Drama", "Crime", "Thriller"}},
		{name: "sentinel dropped", raw: "N/A", want: []string{}},
		{name: "duplicates dropped", raw: "Drama|drama|Crime", want: []string{"Drama", "Crime"}},
		{name: "empty", raw: "", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitGenres(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitGenres(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestIsNoData(t *testing.T) {
	for _, s := range []string{"", "  ", "N/A", "n/a"} {
		if !IsNoData(s) {
			t.Errorf("IsNoData(%q) = false, want true", s)
		}
	}
	if IsNoData("Christopher Nolan") {
		t.Error("IsNoData(name) = true, want false")
	}
}
