package sqlgen

import (
	"strings"
	"unicode"
)

// splitName splits a table or column name on underscores, hyphens and spaces.
func splitName(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
}

// ToPascalCase transforms a snake_case name into PascalCase.
func ToPascalCase(name string) string {
	var b strings.Builder
	for _, part := range splitName(name) {
		runes := []rune(part)
		b.WriteRune(unicode.ToUpper(runes[0]))
		for _, r := range runes[1:] {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// CommonAcronyms lists abbreviations that are fully uppercased in Go names.
var CommonAcronyms = map[string]string{
	"id":   "ID",
	"url":  "URL",
	"uuid": "UUID",
	"api":  "API",
	"http": "HTTP",
	"json": "JSON",
	"sql":  "SQL",
	"ip":   "IP",
}

// ToPascalCaseAcronyms transforms a name into PascalCase, uppercasing
// the words in CommonAcronyms.
func ToPascalCaseAcronyms(name string) string {
	var b strings.Builder
	for _, part := range splitName(name) {
		lower := strings.ToLower(part)
		if acronym, ok := CommonAcronyms[lower]; ok {
			b.WriteString(acronym)
			continue
		}
		runes := []rune(lower)
		b.WriteRune(unicode.ToUpper(runes[0]))
		b.WriteString(string(runes[1:]))
	}
	return b.String()
}

// goIdent makes name usable as an exported Go identifier.
func goIdent(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" || !unicode.IsLetter([]rune(s)[0]) {
		s = "X" + s
	}
	return s
}
