package graph

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	linkedinUsernameRe = regexp.MustCompile(`^[a-z0-9-]+$`)
	whitespaceRe       = regexp.MustCompile(`\s+`)
)

// NormalizeIdentity canonicalizes an identifier value for its namespace so
// equality checks work across formatting variants. It returns an error when
// the value cannot be a valid identifier in that namespace.
func NormalizeIdentity(ns Namespace, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("empty %s value", ns)
	}

	switch ns {
	case NamespaceEmail:
		return strings.ToLower(value), nil
	case NamespacePhone:
		return NormalizePhone(value)
	case NamespaceTelegram:
		return strings.ToLower(strings.TrimPrefix(value, "@")), nil
	case NamespaceLinkedIn:
		return NormalizeLinkedInURL(value)
	case NamespaceFreeformName, NamespaceCalendarName:
		return NormalizeName(value), nil
	case NamespaceEmailHash:
		return strings.ToLower(value), nil
	default:
		return "", fmt.Errorf("unknown namespace: %s", ns)
	}
}

// NormalizePhone keeps a leading + and digits, discarding separators.
func NormalizePhone(value string) (string, error) {
	var b strings.Builder
	for i, r := range value {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" || out == "+" {
		return "", fmt.Errorf("no digits in phone value: %q", value)
	}
	return out, nil
}

// NormalizeLinkedInURL canonicalizes a LinkedIn profile reference to
// "linkedin.com/in/<username>". It accepts full profile URLs in any casing,
// with or without protocol, www prefix, trailing slash, query string or
// fragment, and also accepts a bare username. Search result URLs and
// non-profile paths are rejected so they never become identities.
func NormalizeLinkedInURL(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("empty linkedin value")
	}

	// Search result links carry the query, not a person.
	if strings.Contains(s, "/search/") || strings.Contains(s, "keywords=") {
		return "", fmt.Errorf("linkedin search url is not a profile: %q", raw)
	}

	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")

	var username string
	if idx := strings.Index(s, "linkedin.com"); idx >= 0 {
		path := s[idx+len("linkedin.com"):]
		const profilePrefix = "/in/"
		if !strings.HasPrefix(path, profilePrefix) {
			return "", fmt.Errorf("linkedin url is not a profile path: %q", raw)
		}
		username = path[len(profilePrefix):]
		for _, sep := range []string{"/", "?", "#"} {
			if i := strings.Index(username, sep); i >= 0 {
				username = username[:i]
			}
		}
	} else if !strings.ContainsAny(s, "/?#@ ") {
		// Bare username.
		username = s
	} else {
		return "", fmt.Errorf("unrecognized linkedin value: %q", raw)
	}

	if !linkedinUsernameRe.MatchString(username) {
		return "", fmt.Errorf("invalid linkedin username: %q", raw)
	}
	return "linkedin.com/in/" + username, nil
}

// NormalizeName trims and collapses whitespace without changing case. Name
// identities keep their display casing; comparisons lowercase on their own.
func NormalizeName(name string) string {
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(name), " ")
}

// NameSimilarity returns a 0..1 similarity between two person names. Equal
// normalized names score 1.0. Otherwise the score is a Levenshtein ratio over
// the lowercased names, discounted heavily when the last tokens differ: a
// surname mismatch usually means a different person even when first names
// align.
func NameSimilarity(a, b string) float64 {
	na := strings.ToLower(NormalizeName(a))
	nb := strings.ToLower(NormalizeName(b))
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}

	sim := levenshteinRatio(na, nb)

	ta := strings.Fields(na)
	tb := strings.Fields(nb)
	if len(ta) > 1 && len(tb) > 1 && ta[len(ta)-1] != tb[len(tb)-1] {
		sim *= 0.3
	}
	return sim
}

// levenshteinRatio converts edit distance to a 0..1 similarity.
func levenshteinRatio(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(a, b))/float64(maxLen)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
