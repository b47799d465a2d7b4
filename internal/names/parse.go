package names

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	companyPattern   = regexp.MustCompile(`(?i)\b(?:P/L|Pty Ltd|Limited|Corp|Inc)\b`)
	delimiterPattern = regexp.MustCompile(`(?i)\s+and\s+|\s*&\s*|\s*,\s*`)
	honorificPattern = regexp.MustCompile(`(?i)\b(?:Mrs|Miss|Mr|Ms|Dr)\b\.?\s*`)
	referencePattern = regexp.MustCompile(`(?i)\s*\(ref:\d+\)`)
	perPrefixPattern = regexp.MustCompile(`(?i)^Per\s+`)
	initialPattern   = regexp.MustCompile(`^[A-Z]\.?$`)
)

// IsCompany reports whether s names a company rather than people.
func IsCompany(s string) bool {
	return companyPattern.MatchString(norm.NFC.String(s))
}

// Parse converts a raw contact string into attendee names.
//
// A string carrying a company marker is returned whole, minus reference
// annotations and surrounding space; its internal spacing is kept. Anything else is split on "and", "&" and ",", stripped of
// honorifics, reference annotations and a leading "Per ", and filtered of
// empty and single-character tokens. The result never contains duplicates
// and is never nil.
func Parse(raw string) []string {
	raw = norm.NFC.String(raw)
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}

	if companyPattern.MatchString(raw) {
		entity := strings.TrimSpace(referencePattern.ReplaceAllString(raw, ""))
		if entity == "" {
			return []string{}
		}
		return []string{entity}
	}

	seen := make(map[string]struct{})
	names := []string{}
	for _, token := range delimiterPattern.Split(raw, -1) {
		name := cleanToken(token)
		if utf8.RuneCountInString(name) <= 1 {
			continue // Empty, or a bare initial
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

func cleanToken(token string) string {
	token = honorificPattern.ReplaceAllString(token, "")
	token = referencePattern.ReplaceAllString(token, "")
	token = perPrefixPattern.ReplaceAllString(strings.TrimSpace(token), "")
	return collapseSpace(token)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// hasHonorific reports whether s contains a standalone honorific word.
func hasHonorific(s string) bool {
	return honorificPattern.MatchString(s)
}

// startsWithInitial reports whether the first word of s is a bare initial
// such as "J" or "J.".
func startsWithInitial(s string) bool {
	fields := strings.Fields(s)
	return len(fields) > 0 && initialPattern.MatchString(fields[0])
}
