package analysis

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalization regexes compiled once at package init.
var (
	reURL        = regexp.MustCompile(`(?i)https?://\S+`)
	reEmail      = regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`)
	reWhitespace = regexp.MustCompile(`\s+`)
	reToken      = regexp.MustCompile(`[\p{L}]+(?:'[\p{L}]+)?|!`)
)

// NormalizeText lowercases review text and masks URLs and email addresses
// so that equivalent reviews compare equal.
func NormalizeText(text string) string {
	text = reURL.ReplaceAllString(text, "url")
	text = reEmail.ReplaceAllString(text, "email")
	text = strings.ToLower(text)
	text = squeezeRepeats(text)
	text = reWhitespace.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	return truncateString(text, 10000)
}

// Fingerprint computes a stable SHA-256 fingerprint of normalized text.
func Fingerprint(text string) string {
	hash := sha256.Sum256([]byte(NormalizeText(text)))
	return fmt.Sprintf("%x", hash)
}

// Tokenize splits normalized text into words and exclamation marks.
func Tokenize(text string) []string {
	return reToken.FindAllString(NormalizeText(text), -1)
}

// squeezeRepeats shortens runs of the same letter to two, so "sooo goooood"
// becomes "soo good".
func squeezeRepeats(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev && unicode.IsLetter(r) {
			run++
		} else {
			prev, run = r, 1
		}
		if run <= 2 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
