package snippet

import (
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const (
	MinSlugLen = 3
	MaxSlugLen = 60

	generatedSlugLen = 8
	slugAlphabet     = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// ErrInvalidSlug is wrapped by every error returned from Validate.
var ErrInvalidSlug = errors.New("invalid slug")

var (
	slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$`)

	reserved = map[string]struct{}{
		"api": {}, "admin": {}, "health": {}, "ws": {}, "new": {}, "static": {},
	}
)

// Sanitize lowercases raw, replaces every rune that is not a letter, digit or
// hyphen with a hyphen, and trims hyphens from both ends.
func Sanitize(raw string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			return r
		}
		return '-'
	}, strings.ToLower(raw))
	return strings.Trim(mapped, "-")
}

// Validate checks that slug is usable as a room address.
func Validate(slug string) error {
	switch {
	case len(slug) < MinSlugLen:
		return fmt.Errorf("%w: must be at least %d characters", ErrInvalidSlug, MinSlugLen)
	case len(slug) > MaxSlugLen:
		return fmt.Errorf("%w: must be at most %d characters", ErrInvalidSlug, MaxSlugLen)
	case !slugPattern.MatchString(slug):
		return fmt.Errorf("%w: only lowercase letters, numbers and hyphens; no leading or trailing hyphen", ErrInvalidSlug)
	}
	if _, ok := reserved[slug]; ok {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidSlug, slug)
	}
	return nil
}

// Generate returns a random slug drawn from [0-9a-z].
func Generate() string {
	buf := make([]byte, generatedSlugLen)
	if _, err := rand.Read(buf); err != nil {
		panic("snippet: crypto/rand failed: " + err.Error())
	}
	for i := range buf {
		buf[i] = slugAlphabet[int(buf[i])%len(slugAlphabet)]
	}
	return string(buf)
}
