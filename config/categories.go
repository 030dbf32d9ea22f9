package config

import (
	"fmt"
	"strconv"
	"strings"
)

type Category struct {
	Name string
	ID   int
}

// ParseCategories parses "book=8322, phone=1789" into an ordered list.
func ParseCategories(raw string) ([]Category, error) {
	var out []Category
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, rawID, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid CATALOG_CATEGORIES entry %q (want name=id)", part)
		}
		id, err := strconv.Atoi(strings.TrimSpace(rawID))
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid category id in CATALOG_CATEGORIES entry %q", part)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate category %q in CATALOG_CATEGORIES", name)
		}
		seen[name] = true
		out = append(out, Category{Name: name, ID: id})
	}
	return out, nil
}
