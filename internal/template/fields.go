package template

import "strings"

const (
	// Candidates longer than this are treated as prose, not field names.
	maxFieldLength = 48

	// Field names rarely exceed a few words; longer candidates are prose
	// that happens to sit inside brackets.
	maxFieldWords = 4
)

// markupChars disqualify a candidate: bracket placeholders in stored
// templates sometimes wrap markdown or example output rather than fields.
const markupChars = "<>{}`#\n"

// ExtractFields derives the ordered set of placeholder names from a
// prompt template, for templates that do not store input_fields
// explicitly. Both syntaxes are scanned; duplicates are dropped
// case-insensitively with the first-seen spelling preserved.
func ExtractFields(promptText string) []string {
	var fields []string
	seen := make(map[string]bool)

	add := func(name string) {
		name = strings.TrimSpace(name)
		if !plausibleField(name) {
			return
		}
		key := canonKey(name)
		if seen[key] {
			return
		}
		seen[key] = true
		fields = append(fields, name)
	}

	for _, m := range curlyRe.FindAllStringSubmatch(promptText, -1) {
		add(m[1])
	}
	for _, m := range bracketRe.FindAllStringSubmatch(promptText, -1) {
		add(m[1])
	}

	return fields
}

// plausibleField rejects candidates that look like prose rather than a
// field name: too long, too many words, or containing markup.
func plausibleField(name string) bool {
	if name == "" || len(name) > maxFieldLength {
		return false
	}
	if strings.ContainsAny(name, markupChars) {
		return false
	}
	if len(strings.Fields(name)) > maxFieldWords {
		return false
	}
	return true
}
