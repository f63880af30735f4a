// Package strcase converts between the naming conventions used on the
// wire (snake_case or kebab-case member names) and in Go source
// (exported CamelCase struct fields).
package strcase

import (
	"strings"
	"unicode"
)

// ToSnake converts CamelCase to snake_case.
// Handles acronyms properly (HTTPRequest -> http_request).
func ToSnake(s string) string {
	var result strings.Builder
	runes := []rune(s)

	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				// Add underscore before uppercase letter if:
				// 1. Previous char is lowercase
				// 2. Next char is lowercase (for acronyms like HTTPRequest -> http_request)
				if unicode.IsLower(prev) {
					result.WriteRune('_')
				} else if i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
					result.WriteRune('_')
				}
			}
			result.WriteRune(unicode.ToLower(r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// ToExported converts a wire member name to the exported Go field name
// the default accessors look up: "title" -> "Title",
// "created-at" -> "CreatedAt", "author_id" -> "AuthorID".
func ToExported(s string) string {
	var result strings.Builder
	upperNext := true

	for _, r := range s {
		if r == '_' || r == '-' || r == ' ' {
			upperNext = true
			continue
		}
		if upperNext {
			result.WriteRune(unicode.ToUpper(r))
			upperNext = false
		} else {
			result.WriteRune(r)
		}
	}

	out := result.String()

	// Common initialisms keep their conventional Go spelling so that
	// "author_id" finds AuthorID and "uri" finds URI.
	for _, suffix := range []string{"Id", "Uri", "Url", "Uuid"} {
		if strings.HasSuffix(out, suffix) {
			out = out[:len(out)-len(suffix)] + strings.ToUpper(suffix)
		}
	}
	return out
}
