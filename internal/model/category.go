package model

import (
	"fmt"
	"strings"
)

// Category classifies the origin of a log message. Categories are global:
// every process shares the same set.
type Category int

const (
	CategoryDataMovement Category = iota
	CategoryRendering
	CategoryApplication
	CategoryPipeline
	CategoryPlugins
)

var categoryNames = [...]struct {
	key     string
	display string
}{
	CategoryDataMovement: {"data-movement", "Data Movement"},
	CategoryRendering:    {"rendering", "Rendering"},
	CategoryApplication:  {"application", "Application"},
	CategoryPipeline:     {"pipeline", "Pipeline"},
	CategoryPlugins:      {"plugins", "Plugins"},
}

// Categories returns every category in declaration order.
func Categories() []Category {
	return []Category{
		CategoryDataMovement,
		CategoryRendering,
		CategoryApplication,
		CategoryPipeline,
		CategoryPlugins,
	}
}

func (c Category) Valid() bool {
	return c >= CategoryDataMovement && c <= CategoryPlugins
}

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c].key
}

// DisplayName returns the checkbox label for the category.
func (c Category) DisplayName() string {
	if !c.Valid() {
		return c.String()
	}
	return categoryNames[c].display
}

// ParseCategory accepts the machine or display form, case-insensitively.
func ParseCategory(s string) (Category, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "-", "_", "-").Replace(norm)
	for _, c := range Categories() {
		if norm == categoryNames[c].key {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCategory, int(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
