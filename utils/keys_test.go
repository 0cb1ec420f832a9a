package utils

import "testing"

func TestBuildKey(t *testing.T) {
	if got := BuildKey("u1", "worker.view", ""); got != "u1:worker.view" {
		t.Fatalf("unexpected key: %s", got)
	}
	if got := BuildKey("u1", "worker.view", "w1"); got != "u1:worker.view:w1" {
		t.Fatalf("unexpected key: %s", got)
	}
}

func TestParseKey(t *testing.T) {
	u, p, e, ok := ParseKey("u1:worker.view:w1")
	if !ok || u != "u1" || p != "worker.view" || e != "w1" {
		t.Fatalf("unexpected parse: %s %s %s %v", u, p, e, ok)
	}
	u, p, e, ok = ParseKey("u1:worker.view")
	if !ok || u != "u1" || p != "worker.view" || e != "" {
		t.Fatalf("unexpected parse: %s %s %s %v", u, p, e, ok)
	}
	if _, _, _, ok := ParseKey("garbage"); ok {
		t.Fatalf("expected parse failure for single segment")
	}
}

func TestMatchKey(t *testing.T) {
	cases := []struct {
		key                        string
		userID, policyID, entityID string
		want                       bool
	}{
		{"u1:p1:e1", "u1", "p1", "e1", true},
		{"u1:p1:e1", "", "", "", true},
		{"u1:p1:e1", "u2", "", "", false},
		{"u1:p1:e1", "", "p2", "", false},
		{"u1:p1:e1", "", "", "e2", false},
		// A key without an entity segment matches entity-scoped patterns.
		{"u1:p1", "u1", "p1", "e1", true},
		{"u1:p1", "", "", "e1", true},
		{"bad", "", "", "", false},
	}
	for _, tc := range cases {
		if got := MatchKey(tc.key, tc.userID, tc.policyID, tc.entityID); got != tc.want {
			t.Fatalf("MatchKey(%q, %q, %q, %q) = %v, want %v", tc.key, tc.userID, tc.policyID, tc.entityID, got, tc.want)
		}
	}
}
