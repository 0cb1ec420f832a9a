// Package utils holds small helpers shared by the engine and its stores.
package utils

import "strings"

// Decision cache keys have the form "user:policy" for policy-only checks
// and "user:policy:entity" for entity-scoped checks.

// BuildKey assembles a decision cache key.
func BuildKey(userID, policyID, entityID string) string {
	if entityID == "" {
		return userID + ":" + policyID
	}
	return userID + ":" + policyID + ":" + entityID
}

// ParseKey splits a decision cache key back into its segments. The entity
// segment is optional; ok is false for keys that are not in either form.
func ParseKey(key string) (userID, policyID, entityID string, ok bool) {
	parts := strings.SplitN(key, ":", 3)
	switch len(parts) {
	case 2:
		return parts[0], parts[1], "", true
	case 3:
		return parts[0], parts[1], parts[2], true
	default:
		return "", "", "", false
	}
}

// MatchKey reports whether a cache key matches the given pattern fields.
// Empty pattern fields are wildcards. A key without an entity segment also
// matches entity-scoped patterns: the absent segment is treated as a
// wildcard rather than a mismatch.
func MatchKey(key, userID, policyID, entityID string) bool {
	ku, kp, ke, ok := ParseKey(key)
	if !ok {
		return false
	}
	if userID != "" && ku != userID {
		return false
	}
	if policyID != "" && kp != policyID {
		return false
	}
	if entityID != "" && ke != "" && ke != entityID {
		return false
	}
	return true
}
