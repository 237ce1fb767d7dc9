// Package category holds the box category table and resolves the category
// label a submitter picks for a complaint.
package category

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// Other is the subcategory that asks for a custom label.
	Other = "Other"

	// CustomKey is the box category whose complaints always take free text.
	CustomKey = "other"

	maxLabelLength = 100
)

var (
	ErrCategoryRequired       = errors.New("complaint category is required")
	ErrCustomCategoryRequired = errors.New("custom category is required when \"Other\" is selected")
	ErrUnknownSubcategory     = errors.New("subcategory is not offered by this box")
	ErrLabelTooLong           = errors.New("category label too long")
	ErrInvalidTable           = errors.New("invalid category table")
)

//go:embed categories.yaml
var defaultTable []byte

// Category is one entry of the table.
type Category struct {
	Key           string   `yaml:"key" json:"key"`
	Label         string   `yaml:"label" json:"label"`
	Subcategories []string `yaml:"subcategories" json:"subcategories"`
}

// Table is an ordered, immutable category table.
type Table struct {
	categories []Category
	index      map[string]int
}

// Default returns the built-in table.
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("embedded category table: %v", err))
	}
	return t
}

// Parse decodes and validates a YAML category table.
func Parse(data []byte) (*Table, error) {
	var cats []Category
	if err := yaml.Unmarshal(data, &cats); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	if len(cats) == 0 {
		return nil, fmt.Errorf("%w: no categories", ErrInvalidTable)
	}

	t := &Table{categories: cats, index: make(map[string]int, len(cats))}
	for i, c := range cats {
		if c.Key == "" {
			return nil, fmt.Errorf("%w: entry %d has no key", ErrInvalidTable, i)
		}
		if _, dup := t.index[c.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate key %q", ErrInvalidTable, c.Key)
		}
		seen := make(map[string]struct{}, len(c.Subcategories))
		for _, s := range c.Subcategories {
			if strings.TrimSpace(s) == "" {
				return nil, fmt.Errorf("%w: %q has a blank subcategory", ErrInvalidTable, c.Key)
			}
			if _, dup := seen[s]; dup {
				return nil, fmt.Errorf("%w: %q lists %q twice", ErrInvalidTable, c.Key, s)
			}
			seen[s] = struct{}{}
		}
		if cats[i].Subcategories == nil {
			cats[i].Subcategories = []string{}
		}
		t.index[c.Key] = i
	}
	return t, nil
}

// Categories returns every category in display order.
func (t *Table) Categories() []Category {
	out := make([]Category, len(t.categories))
	for i, c := range t.categories {
		c.Subcategories = slices.Clone(c.Subcategories)
		out[i] = c
	}
	return out
}

// Has reports whether key is a configured category.
func (t *Table) Has(key string) bool {
	_, ok := t.index[key]
	return ok
}

// Label returns the display label for key, or key itself when unknown.
func (t *Table) Label(key string) string {
	if i, ok := t.index[key]; ok {
		return t.categories[i].Label
	}
	return key
}

// Subcategories returns the ordered subcategory list for key.
// Unknown keys yield an empty list, meaning free-text input is required.
func (t *Table) Subcategories(key string) []string {
	i, ok := t.index[key]
	if !ok {
		return []string{}
	}
	return slices.Clone(t.categories[i].Subcategories)
}

// RequiresCustomInput reports whether complaints to a box with this category
// always take a free-text category.
func (t *Table) RequiresCustomInput(key string) bool {
	return len(t.Subcategories(key)) == 0
}

// Resolve returns the effective category label of a complaint submitted to a
// box of category boxCategory.
//
// When the box offers subcategories, selection must be one of them; picking
// Other makes the trimmed custom text the label. Otherwise the label is free
// text taken from selection, falling back to custom.
func (t *Table) Resolve(boxCategory, selection, custom string) (string, error) {
	selection = strings.TrimSpace(selection)
	custom = strings.TrimSpace(custom)

	subs := t.Subcategories(boxCategory)
	if len(subs) == 0 {
		label := selection
		if label == "" {
			label = custom
		}
		return checkLabel(label, ErrCategoryRequired)
	}

	if selection == "" {
		return "", ErrCategoryRequired
	}
	if selection == Other {
		return checkLabel(custom, ErrCustomCategoryRequired)
	}
	if !slices.Contains(subs, selection) {
		return "", ErrUnknownSubcategory
	}
	return selection, nil
}

func checkLabel(label string, blankErr error) (string, error) {
	if label == "" {
		return "", blankErr
	}
	if len([]rune(label)) > maxLabelLength {
		return "", ErrLabelTooLong
	}
	return label, nil
}
