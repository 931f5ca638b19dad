// Package prompt provides the text utilities prompts are built from and
// responses are parsed with: double-brace placeholder templates and
// XML-style tag extraction.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

// Template is a string template whose placeholders are bare identifiers
// wrapped in double braces, e.g. "Summarize {{document}}".
type Template struct {
	text string
}

// NewTemplate creates a Template from the given text.
func NewTemplate(text string) Template {
	return Template{text: text}
}

// placeholder matches one {{identifier}} token.
var placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render substitutes every placeholder whose identifier is a key in values.
// A nil value substitutes the empty string. Placeholders with no matching
// key are left verbatim. Substitution is a single left-to-right pass over
// the template text: substituted values are never re-scanned, so a value
// containing "{{" is inserted literally.
func (t Template) Render(values map[string]any) string {
	return placeholder.ReplaceAllStringFunc(t.text, func(marker string) string {
		key := marker[2 : len(marker)-2]
		value, ok := values[key]
		if !ok {
			return marker
		}
		return Stringify(value)
	})
}

// String returns the raw template text.
func (t Template) String() string {
	return t.text
}

// Stringify converts a template or evaluation input value to its string
// form. String slices are joined with commas; nil becomes the empty string.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	default:
		return fmt.Sprint(v)
	}
}
