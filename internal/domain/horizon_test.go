package domain

import (
	"testing"
	"time"
)

func TestParseHorizon(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"90m", 90 * time.Minute},
		{"1h", time.Hour},
		{"24h", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"30D", 30 * 24 * time.Hour},
	}
	for _, c := range cases {
		got, err := ParseHorizon(c.in)
		if err != nil {
			t.Fatalf("ParseHorizon(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseHorizon(%q) = %v, want %v", c.in, got, c.want)
		}
	}

	for _, bad := range []string{"", "h", "0h", "-1h", "5w", "abc"} {
		if _, err := ParseHorizon(bad); err == nil {
			t.Errorf("ParseHorizon(%q) should fail", bad)
		}
	}
}

func TestSortHorizons(t *testing.T) {
	got := SortHorizons([]string{"7d", "1h", "bogus", "30d", "24h"})
	want := []string{"1h", "24h", "7d", "30d"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
