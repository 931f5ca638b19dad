package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTemplateRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		values   map[string]any
		want     string
	}{
		{
			name:     "single placeholder",
			template: "Hello {{name}}",
			values:   map[string]any{"name": "world"},
			want:     "Hello world",
		},
		{
			name:     "repeated placeholder",
			template: "{{x}} and {{x}}",
			values:   map[string]any{"x": "again"},
			want:     "again and again",
		},
		{
			name:     "missing key left verbatim",
			template: "Hello {{name}}, meet {{other}}",
			values:   map[string]any{"name": "world"},
			want:     "Hello world, meet {{other}}",
		},
		{
			name:     "nil value substitutes empty string",
			template: "before {{gap}} after",
			values:   map[string]any{"gap": nil},
			want:     "before  after",
		},
		{
			name:     "value containing braces inserted literally",
			template: "{{a}}",
			values:   map[string]any{"a": "{{b}}"},
			want:     "{{b}}",
		},
		{
			name:     "substituted value is not re-scanned for other keys",
			template: "{{a}}",
			values:   map[string]any{"a": "{{b}}", "b": "X"},
			want:     "{{b}}",
		},
		{
			name:     "later placeholders still substituted after literal insertion",
			template: "{{a}} then {{b}}",
			values:   map[string]any{"a": "{{b}}", "b": "X"},
			want:     "{{b}} then X",
		},
		{
			name:     "string slice joined",
			template: "blocked: {{terms}}",
			values:   map[string]any{"terms": []string{"red", "green"}},
			want:     "blocked: red, green",
		},
		{
			name:     "no placeholders",
			template: "plain text",
			values:   map[string]any{"name": "unused"},
			want:     "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewTemplate(tt.template).Render(tt.values))
		})
	}
}

func TestTemplateRenderDeterministic(t *testing.T) {
	values := map[string]any{"a": "{{b}}", "b": "X"}
	tmpl := NewTemplate("{{a}}")

	for i := 0; i < 200; i++ {
		assert.Equal(t, "{{b}}", tmpl.Render(values))
	}
}

func TestTemplateRenderIdempotent(t *testing.T) {
	values := map[string]any{"name": "world", "greeting": "hello"}
	tmpl := NewTemplate("{{greeting}}, {{name}}!")

	once := tmpl.Render(values)
	twice := NewTemplate(once).Render(values)
	assert.Equal(t, once, twice)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "abc", Stringify("abc"))
	assert.Equal(t, "a, b", Stringify([]string{"a", "b"}))
	assert.Equal(t, "42", Stringify(42))
}
