package llm

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// placeholderPattern matches {{name}} placeholders in a template. Placeholder
// names are word characters, optionally surrounded by whitespace inside the
// braces ({{ name }} and {{name}} are equivalent).
var placeholderPattern = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// PromptTemplate is a prompt with {{placeholder}} slots filled at render time.
// Templates are immutable after creation and safe for concurrent use.
type PromptTemplate struct {
	raw          string
	placeholders []string
}

// NewPromptTemplate parses a template string and records its placeholders.
func NewPromptTemplate(raw string) *PromptTemplate {
	matches := placeholderPattern.FindAllStringSubmatch(raw, -1)

	seen := make(map[string]struct{}, len(matches))
	placeholders := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		placeholders = append(placeholders, name)
	}
	sort.Strings(placeholders)

	return &PromptTemplate{
		raw:          raw,
		placeholders: placeholders,
	}
}

// Placeholders returns the distinct placeholder names in the template, sorted.
func (t *PromptTemplate) Placeholders() []string {
	out := make([]string, len(t.placeholders))
	copy(out, t.placeholders)
	return out
}

// Render substitutes the given values into the template. It returns an error
// if any placeholder in the template has no corresponding value; extra values
// are ignored.
func (t *PromptTemplate) Render(values map[string]string) (string, error) {
	var missing []string
	for _, name := range t.placeholders {
		if _, ok := values[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("prompt template missing values for: %s", strings.Join(missing, ", "))
	}

	rendered := placeholderPattern.ReplaceAllStringFunc(t.raw, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		return values[name]
	})

	return rendered, nil
}

// MustRender is like Render but panics on missing values. Intended for
// templates with values known at compile time.
func (t *PromptTemplate) MustRender(values map[string]string) string {
	rendered, err := t.Render(values)
	if err != nil {
		panic(err)
	}
	return rendered
}
