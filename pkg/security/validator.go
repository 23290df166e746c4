package security

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxSearchQueryLength is the maximum search length in runes
	MaxSearchQueryLength = 100
)

var (
	ErrSearchTooLong      = errors.New("search query too long")
	ErrSearchInvalidChars = errors.New("search query contains invalid characters")
	whitespaceRun         = regexp.MustCompile(`\s+`)
	markupPattern         = regexp.MustCompile(`(?i)(<\s*/?\s*script|javascript:|vbscript:|\bon\w+\s*=)`)
	likeEscaper           = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
)

// NormalizeSearchQuery trims a search query, collapses inner whitespace and
// rejects queries that are too long or carry control characters or markup.
// Queries are always bound as parameters, so SQL keywords are legal text.
func NormalizeSearchQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil
	}
	if utf8.RuneCountInString(query) > MaxSearchQueryLength {
		return "", ErrSearchTooLong
	}
	for _, r := range query {
		if r == utf8.RuneError || (unicode.IsControl(r) && !unicode.IsSpace(r)) {
			return "", ErrSearchInvalidChars
		}
	}
	if markupPattern.MatchString(query) {
		return "", ErrSearchInvalidChars
	}
	return whitespaceRun.ReplaceAllString(query, " "), nil
}

// EscapeLike escapes LIKE wildcards so the query matches literally.
// Pair it with ESCAPE '\' in the SQL.
func EscapeLike(query string) string {
	return likeEscaper.Replace(query)
}

// ContainsPattern wraps an escaped query for a substring LIKE match.
func ContainsPattern(query string) string {
	return "%" + EscapeLike(query) + "%"
}
