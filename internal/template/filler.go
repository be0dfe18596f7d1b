// Package template fills prompt templates and derives their input fields.
//
// Two placeholder syntaxes coexist in stored templates: {{ name }} with an
// optional |filter suffix, and [ name ]. Matching is case-insensitive and
// normalizes whitespace and underscores, so a value keyed "Start Date"
// satisfies start_date, Start_Date, and "start date" alike.
package template

import (
	"regexp"
	"strings"
)

var (
	// {{ name }} or {{ name | filter }} — the filter suffix does not
	// participate in matching.
	curlyRe = regexp.MustCompile(`\{\{\s*([^{}|]+?)\s*(?:\|[^{}]*)?\}\}`)

	// [ name ]
	bracketRe = regexp.MustCompile(`\[\s*([^\[\]]+?)\s*\]`)

	separatorRe = regexp.MustCompile(`[\s_]+`)
)

// canonKey normalizes a placeholder name or value key for matching:
// trimmed, lower-cased, runs of whitespace/underscores collapsed to a
// single space. This covers every spelling variant of the same field.
func canonKey(s string) string {
	return separatorRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// Fill substitutes named placeholders in tmpl with the supplied values.
// Unmatched placeholders are left intact so callers can detect incomplete
// forms by checking for residual placeholder syntax. Pure and idempotent
// given stable inputs.
func Fill(tmpl string, values map[string]string) string {
	if len(values) == 0 {
		return tmpl
	}

	lookup := make(map[string]string, len(values))
	for k, v := range values {
		lookup[canonKey(k)] = v
	}

	sub := func(re *regexp.Regexp, s string) string {
		return re.ReplaceAllStringFunc(s, func(match string) string {
			name := re.FindStringSubmatch(match)[1]
			if v, ok := lookup[canonKey(name)]; ok {
				return v
			}
			return match
		})
	}

	out := sub(curlyRe, tmpl)
	out = sub(bracketRe, out)
	return out
}
