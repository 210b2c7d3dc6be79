package utils

import "testing"

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		value, pattern string
		want           bool
	}{
		{"read", "read", true},
		{"read", "write", false},
		{"read", "*", true},
		{"", "*", true},
		{"document", "doc*", true},
		{"document", "*ment", true},
		{"document", "d*c*t", true},
		{"document", "doc*x", false},
		{"alpha-beta", "alpha*beta", true},
		{"alphabeta", "alpha*beta", true},
	}
	for _, tc := range cases {
		if got := MatchPattern(tc.value, tc.pattern); got != tc.want {
			t.Fatalf("MatchPattern(%q, %q) = %v, want %v", tc.value, tc.pattern, got, tc.want)
		}
	}
}

func TestMatchTypedPattern(t *testing.T) {
	cases := []struct {
		pattern, resourceType, resourceID string
		want                              bool
	}{
		{"document:doc-1", "document", "doc-1", true},
		{"document:*", "document", "anything", true},
		{"document:doc-*", "document", "doc-42", true},
		{"document:doc-*", "document", "file-1", false},
		{"*:doc-1", "report", "doc-1", true},
		{"report:*", "document", "doc-1", false},
		{"*", "document", "doc-1", true},
	}
	for _, tc := range cases {
		if got := MatchTypedPattern(tc.pattern, tc.resourceType, tc.resourceID); got != tc.want {
			t.Fatalf("MatchTypedPattern(%q, %q, %q) = %v, want %v",
				tc.pattern, tc.resourceType, tc.resourceID, got, tc.want)
		}
	}
}
