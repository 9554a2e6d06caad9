package workflow

import (
	"sort"
	"strings"
)

// NormalizeRoles trims, drops empties, de-duplicates and sorts role names
func NormalizeRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Intersect returns the roles of allowed that are also held, in allowed's order
func Intersect(allowed, held []string) []string {
	set := make(map[string]struct{}, len(held))
	for _, r := range held {
		set[r] = struct{}{}
	}
	var out []string
	for _, r := range allowed {
		if _, ok := set[r]; ok {
			out = append(out, r)
		}
	}
	return out
}

// ContainsRole reports whether role is a member of roles
func ContainsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
