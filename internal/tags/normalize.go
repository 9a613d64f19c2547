package tags

import "strings"

// Normalize trims names, drops empties and removes case-insensitive duplicates.
// The first occurrence wins and order is kept.
func Normalize(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		key := Key(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}

	return out
}

// Key is the case-insensitive lookup key of a tag name.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
