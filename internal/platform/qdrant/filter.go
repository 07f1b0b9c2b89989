package qdrant

import (
	"fmt"
	"sort"
)

// PayloadFilter narrows a search to points whose payload matches.
// Keys refer to payload fields written by Upsert.
type PayloadFilter struct {
	// Equals requires payload[key] == value for every entry.
	Equals map[string]string
	// AnyOf requires payload[key] to be one of the listed values.
	AnyOf map[string][]string
	// Not excludes points whose payload[key] == value.
	Not map[string]string
}

func (f PayloadFilter) empty() bool {
	return len(f.Equals) == 0 && len(f.AnyOf) == 0 && len(f.Not) == 0
}

// build renders the filter in qdrant's must/must_not clause form. Keys are
// emitted in sorted order so request bodies are stable.
func (f PayloadFilter) build(excludeIDs []string) (map[string]any, error) {
	var must, mustNot []any
	for _, key := range sortedKeys(f.Equals) {
		if key == "" {
			return nil, fmt.Errorf("filter key required")
		}
		must = append(must, matchValue(key, f.Equals[key]))
	}
	for _, key := range sortedKeys(f.AnyOf) {
		if key == "" {
			return nil, fmt.Errorf("filter key required")
		}
		values := dedupeStrings(f.AnyOf[key])
		if len(values) == 0 {
			return nil, fmt.Errorf("filter %q: at least one value required", key)
		}
		must = append(must, map[string]any{"key": key, "match": map[string]any{"any": values}})
	}
	for _, key := range sortedKeys(f.Not) {
		if key == "" {
			return nil, fmt.Errorf("filter key required")
		}
		mustNot = append(mustNot, matchValue(key, f.Not[key]))
	}
	if ids := dedupeStrings(excludeIDs); len(ids) > 0 {
		mustNot = append(mustNot, map[string]any{"has_id": ids})
	}

	out := map[string]any{}
	if len(must) > 0 {
		out["must"] = must
	}
	if len(mustNot) > 0 {
		out["must_not"] = mustNot
	}
	return out, nil
}

func matchValue(key, value string) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"value": value}}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
