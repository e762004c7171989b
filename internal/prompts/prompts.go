// Package prompts provides lightweight brace-placeholder templates and a
// small repository of reusable prompt texts.
package prompts

import (
	"regexp"
	"sort"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// PromptTemplate is a text with {placeholder} slots. Defaults set at
// construction can be overridden per Format call; placeholders with no
// value in either map are left intact.
type PromptTemplate struct {
	text     string
	defaults map[string]string
}

// New returns a template over text. Optional defaults supply placeholder
// values used when Format receives none.
func New(text string, defaults map[string]string) *PromptTemplate {
	copied := make(map[string]string, len(defaults))
	for k, v := range defaults {
		copied[k] = v
	}
	return &PromptTemplate{text: text, defaults: copied}
}

// Format substitutes placeholders with values, falling back to the
// template defaults. Unknown placeholders survive unchanged so partial
// formatting can be chained.
func (t *PromptTemplate) Format(values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(t.text, func(match string) string {
		name := match[1 : len(match)-1]
		if v, ok := values[name]; ok {
			return v
		}
		if v, ok := t.defaults[name]; ok {
			return v
		}
		return match
	})
}

// Placeholders returns the distinct placeholder names in order of first
// appearance.
func (t *PromptTemplate) Placeholders() []string {
	seen := make(map[string]bool)
	var names []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(t.text, -1) {
		if !seen[match[1]] {
			seen[match[1]] = true
			names = append(names, match[1])
		}
	}
	return names
}

// MissingPlaceholders returns, sorted, the placeholders that neither
// values nor the defaults cover.
func (t *PromptTemplate) MissingPlaceholders(values map[string]string) []string {
	var missing []string
	for _, name := range t.Placeholders() {
		if _, ok := values[name]; ok {
			continue
		}
		if _, ok := t.defaults[name]; ok {
			continue
		}
		missing = append(missing, name)
	}
	sort.Strings(missing)
	return missing
}

// Text returns the raw template text.
func (t *PromptTemplate) Text() string { return t.text }

// QuestionCoStar describes the CO-STAR prompt framework; useful as a
// self-contained demo question for chat endpoints.
var QuestionCoStar = strings.TrimSpace(`
The CO-STAR prompt framework is :

**Context (C) :** Providing background information helps the LLM understand the specific scenario.

**Objective (O):** Clearly defining the task directs the LLM's focus.

**Style (S):** Specifying the desired writing style aligns the LLM response.

**Tone (T):** Setting the tone ensures the response resonates with the required sentiment.

**Audience (A):** Identifying the intended audience tailors the LLM's response to be targeted to an audience.

**Response (R):** Providing the response format, like text or json, ensures the LLM outputs, and help build pipelines.

Please explain it with gradually increasing complexity.
`)
