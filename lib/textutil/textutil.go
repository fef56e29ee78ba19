package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)
var spaceRunRegex = regexp.MustCompile(` +`)

// NormalizeName lowercases a name and strips all of its whitespace.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// CollapseSpaces replaces runs of spaces with a single space.
func CollapseSpaces(text string) string {
	return spaceRunRegex.ReplaceAllString(text, " ")
}

// SplitList splits a user supplied list on commas and whitespace, empty entries are dropped.
func SplitList(list string) []string {
	return strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t' || r == '\r'
	})
}

// SplitListBy splits a list on `sep` and trims the entries, empty entries are dropped.
func SplitListBy(list string, sep rune) []string {
	var out []string
	for _, entry := range strings.Split(list, string(sep)) {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

// Field is one "Name: value" line of an item's content.
type Field struct {
	Name  string
	Value string
	// Optional fields are left out when their value is empty.
	Optional bool
}

// FormatFields renders fields as "Name: value" lines.
func FormatFields(fields ...Field) string {
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Optional && f.Value == "" {
			continue
		}
		lines = append(lines, f.Name+": "+f.Value)
	}
	return strings.Join(lines, "\n")
}
