package eval

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxLength passes iff the field's character count is at most Max.
type MaxLength struct {
	Field string
	Max   int
	Req   string // optional requirement override
}

func (e MaxLength) Target() string      { return e.Field }
func (e MaxLength) Deterministic() bool { return true }

func (e MaxLength) Requirement() string {
	if e.Req != "" {
		return e.Req
	}
	return fmt.Sprintf("Has at most %d characters", e.Max)
}

func (e MaxLength) Evaluate(ctx context.Context, inputs Inputs) (Result, error) {
	n := utf8.RuneCountInString(inputs.Text(e.Field))
	if n <= e.Max {
		return pass(e), nil
	}
	return fail(e, fmt.Sprintf("Should have at most %d chars, but has %d", e.Max, n)), nil
}

var bracketPattern = regexp.MustCompile(`\[.*?\]`)

// NoBracketPlaceholders fails when any [bracketed] span is present.
type NoBracketPlaceholders struct {
	Field string
	Req   string
}

func (e NoBracketPlaceholders) Target() string      { return e.Field }
func (e NoBracketPlaceholders) Deterministic() bool { return true }

func (e NoBracketPlaceholders) Requirement() string {
	if e.Req != "" {
		return e.Req
	}
	return "Does not contain square bracket [placeholders]"
}

func (e NoBracketPlaceholders) Evaluate(ctx context.Context, inputs Inputs) (Result, error) {
	matches := bracketPattern.FindAllString(inputs.Text(e.Field), -1)
	if len(matches) > 0 {
		return fail(e, fmt.Sprintf("Should not contain square brackets: %s", joinTerms(matches))), nil
	}
	return pass(e), nil
}

var slashPattern = regexp.MustCompile(`\b\w+/\w+\b`)

// NoSlashConstructs fails when any word/word token pattern is present.
type NoSlashConstructs struct {
	Field string
	Req   string
}

func (e NoSlashConstructs) Target() string      { return e.Field }
func (e NoSlashConstructs) Deterministic() bool { return true }

func (e NoSlashConstructs) Requirement() string {
	if e.Req != "" {
		return e.Req
	}
	return "Does not contain any slash/constructions"
}

func (e NoSlashConstructs) Evaluate(ctx context.Context, inputs Inputs) (Result, error) {
	matches := slashPattern.FindAllString(inputs.Text(e.Field), -1)
	if len(matches) > 0 {
		return fail(e, fmt.Sprintf("`%s` should not contain slash constructions: %s", e.Field, joinTerms(matches))), nil
	}
	return pass(e), nil
}

// BlockedTerms fails when any blocked term appears in the field: single
// words must match as whole words, multi-word terms as substrings. Matching
// is case-insensitive. Terms come from the static list, from the named
// input field, or from their union.
type BlockedTerms struct {
	Field      string
	Terms      []string
	TermsField string
	Req        string
}

func (e BlockedTerms) Target() string      { return e.Field }
func (e BlockedTerms) Deterministic() bool { return true }

func (e BlockedTerms) Requirement() string {
	if e.Req != "" {
		return e.Req
	}
	sources := append([]string(nil), e.Terms...)
	if e.TermsField != "" {
		sources = append(sources, "{{"+e.TermsField+"}}")
	}
	return fmt.Sprintf("Does not contain any of the following terms: %s", joinTerms(sources))
}

func (e BlockedTerms) Evaluate(ctx context.Context, inputs Inputs) (Result, error) {
	text := strings.ToLower(inputs.Text(e.Field))
	words := make(map[string]bool)
	for _, w := range strings.Fields(text) {
		words[w] = true
	}

	terms := append([]string(nil), e.Terms...)
	if e.TermsField != "" {
		terms = append(terms, inputs.List(e.TermsField)...)
	}

	var matched []string
	for _, term := range terms {
		lower := strings.ToLower(term)
		if len(strings.Fields(lower)) == 1 {
			if words[lower] {
				matched = append(matched, term)
			}
		} else if strings.Contains(text, lower) {
			matched = append(matched, term)
		}
	}
	if len(matched) > 0 {
		return fail(e, fmt.Sprintf("Should not contain the blocked terms: %s", joinTerms(matched))), nil
	}
	return pass(e), nil
}

// NotInBlockedList fails when the trimmed, case-folded field value exactly
// equals any entry of the static list, the named input field, or their
// union.
type NotInBlockedList struct {
	Field     string
	List      []string
	ListField string
	Req       string
}

func (e NotInBlockedList) Target() string      { return e.Field }
func (e NotInBlockedList) Deterministic() bool { return true }

func (e NotInBlockedList) Requirement() string {
	if e.Req != "" {
		return e.Req
	}
	sources := append([]string(nil), e.List...)
	if e.ListField != "" {
		sources = append(sources, "{{"+e.ListField+"}}")
	}
	return fmt.Sprintf("Is not identical to any of the following blocked values: %s", joinTerms(sources))
}

func (e NotInBlockedList) Evaluate(ctx context.Context, inputs Inputs) (Result, error) {
	value := strings.ToLower(strings.TrimSpace(inputs.Text(e.Field)))

	blocked := append([]string(nil), e.List...)
	if e.ListField != "" {
		blocked = append(blocked, inputs.List(e.ListField)...)
	}
	for _, entry := range blocked {
		if value == strings.ToLower(strings.TrimSpace(entry)) {
			return fail(e, fmt.Sprintf("'%s' is one of the blocked values", value)), nil
		}
	}
	return pass(e), nil
}

// NoLongWords fails when any whitespace-delimited token exceeds Max
// characters.
type NoLongWords struct {
	Field string
	Max   int
	Req   string
}

func (e NoLongWords) Target() string      { return e.Field }
func (e NoLongWords) Deterministic() bool { return true }

func (e NoLongWords) Requirement() string {
	if e.Req != "" {
		return e.Req
	}
	return fmt.Sprintf("Contains no words with more than %d characters", e.Max)
}

func (e NoLongWords) Evaluate(ctx context.Context, inputs Inputs) (Result, error) {
	var tooLong []string
	for _, word := range strings.Fields(inputs.Text(e.Field)) {
		if utf8.RuneCountInString(word) > e.Max {
			tooLong = append(tooLong, word)
		}
	}
	if len(tooLong) > 0 {
		return fail(e, fmt.Sprintf("The following words have more than %d characters: %s", e.Max, joinTerms(tooLong))), nil
	}
	return pass(e), nil
}
