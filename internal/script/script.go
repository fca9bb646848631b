// Package script holds the pure text handling of a SQL script: statement
// splitting and the prefix checks that decide how a script is dispatched.
package script

import (
	"strings"
)

// Split tokenizes script into trimmed statements. Every rune of delimiter is
// a break character, so ";\n" splits on either a semicolon or a newline.
// Empty tokens are dropped.
func Split(script string, delimiter string) []string {
	statements := make([]string, 0)

	fields := strings.FieldsFunc(script, func(r rune) bool {
		return strings.ContainsRune(delimiter, r)
	})

	for _, field := range fields {
		statement := strings.TrimSpace(field)
		if statement == "" {
			continue
		}
		statements = append(statements, statement)
	}

	return statements
}

// IsSelect reports whether the script is a query that produces a cursor.
func IsSelect(script string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(script)), "SELECT")
}

// IsBatch reports whether script must run as a batch: a delimiter was
// configured and at least one of its characters occurs in the script.
func IsBatch(script string, delimiter string, configured bool) bool {
	if !configured || delimiter == "" {
		return false
	}
	return strings.ContainsAny(script, delimiter)
}
