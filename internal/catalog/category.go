package catalog

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Table maps public category ids to the internal category names they aggregate.
type Table struct {
	groups map[string][]string
}

// DefaultTable returns the built-in category mapping of the storefront.
func DefaultTable() *Table {
	return NewTable(map[string][]string{
		"faith-decor": {
			"Names of God",
			"Faith-Based Art",
			"Identity in Christ",
			"Prophetic Art",
		},
		"scripture-art": {
			"Scripture Art",
			"Bible Verses",
		},
		"kids-collection": {
			"Kids Art",
			"Nursery Art",
		},
		"nature-landscapes": {
			"Nature",
			"Landscapes",
			"Botanical",
		},
		"abstract-modern": {
			"Abstract",
			"Modern Art",
		},
	})
}

// NewTable builds a table from id → names. Ids are lower-cased, names trimmed, blanks dropped.
func NewTable(groups map[string][]string) *Table {
	t := &Table{groups: make(map[string][]string, len(groups))}

	for id, names := range groups {
		key := normalizeID(id)
		if key == "" {
			continue
		}

		for _, name := range names {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}

			t.groups[key] = append(t.groups[key], name)
		}
	}

	return t
}

type tableFile struct {
	Categories map[string][]string `yaml:"categories"`
}

// LoadTable reads a YAML category table:
//
//	categories:
//	  faith-decor: ["Names of God", "Prophetic Art"]
func LoadTable(filename string) (*Table, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read category table: %w", err)
	}

	var f tableFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse category table: %w", err)
	}

	if len(f.Categories) == 0 {
		return nil, fmt.Errorf("category table %s defines no categories", filename)
	}

	return NewTable(f.Categories), nil
}

// Lookup returns the category names of a category id.
func (t *Table) Lookup(id string) ([]string, bool) {
	names, ok := t.groups[normalizeID(id)]
	if !ok {
		return nil, false
	}

	return slices.Clone(names), true
}

// Contains reports whether name is one of the names mapped by id.
func (t *Table) Contains(id, name string) bool {
	names, ok := t.groups[normalizeID(id)]
	if !ok {
		return false
	}

	return containsName(names, name)
}

// Related returns name itself plus every name that shares a category group with it.
func (t *Table) Related(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	related := []string{name}

	for _, id := range t.IDs() {
		names := t.groups[id]
		if !containsName(names, name) {
			continue
		}

		for _, n := range names {
			if !containsName(related, n) {
				related = append(related, n)
			}
		}
	}

	return related
}

// IDs returns the category ids in lexical order.
func (t *Table) IDs() []string {
	ids := make([]string, 0, len(t.groups))
	for id := range t.groups {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// MatchName reports whether name equals one of names, ignoring case and surrounding spaces.
func MatchName(names []string, name string) bool {
	return containsName(names, name)
}

func containsName(names []string, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}

	for _, n := range names {
		if strings.EqualFold(strings.TrimSpace(n), name) {
			return true
		}
	}

	return false
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
