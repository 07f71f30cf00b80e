package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseHorizon converts a checkpoint horizon label to a duration. Accepted
// suffixes: m (minutes), h (hours), d (days). Examples: "90m", "1h", "24h",
// "7d", "30d".
func ParseHorizon(label string) (time.Duration, error) {
	s := strings.TrimSpace(strings.ToLower(label))
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid horizon %q", label)
	}
	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid horizon %q", label)
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid horizon unit in %q", label)
}

// SortHorizons orders horizon labels by duration, dropping invalid ones.
func SortHorizons(labels []string) []string {
	type parsed struct {
		label string
		d     time.Duration
	}
	out := make([]parsed, 0, len(labels))
	for _, l := range labels {
		d, err := ParseHorizon(l)
		if err != nil {
			continue
		}
		out = append(out, parsed{label: l, d: d})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].d < out[j-1].d; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	labelsOut := make([]string, len(out))
	for i, p := range out {
		labelsOut[i] = p.label
	}
	return labelsOut
}
