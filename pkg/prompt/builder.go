// Package prompt builds the completion requests sent to AI providers.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/reviewreplai/reviewrepl/pkg/models"
)

const (
	DefaultLanguage  = "en"
	DefaultMaxLength = 500
	MaxReplyLength   = 2000
)

// Tone is the voice of a generated reply.
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneFriendly     Tone = "friendly"
	ToneApologetic   Tone = "apologetic"
	ToneEnthusiastic Tone = "enthusiastic"
)

var toneGuidance = map[Tone]string{
	ToneProfessional: "Keep a courteous, professional register.",
	ToneFriendly:     "Sound warm and personable, as a small business owner would.",
	ToneApologetic:   "Acknowledge the problem, apologise sincerely and offer to make it right.",
	ToneEnthusiastic: "Be upbeat and celebrate the customer's experience.",
}

// ParseTone returns the Tone for s and whether it is known.
func ParseTone(s string) (Tone, bool) {
	t := Tone(strings.ToLower(strings.TrimSpace(s)))
	_, ok := toneGuidance[t]
	return t, ok
}

// ToneForRating picks a tone when the caller did not ask for one.
func ToneForRating(rating int) Tone {
	switch {
	case rating > 0 && rating <= 2:
		return ToneApologetic
	case rating >= 4:
		return ToneFriendly
	default:
		return ToneProfessional
	}
}

var rePlaceholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Builder constructs completion requests.
// All methods are pure functions with no side effects.
// Zero value is ready to use.
type Builder struct{}

// ReplyParams defines inputs for a review reply.
type ReplyParams struct {
	ReviewText   string
	Rating       int
	ReviewerName string
	BusinessName string
	Tone         Tone
	Language     string
	MaxLength    int
}

// AnalysisParams defines inputs for a prompt critique.
type AnalysisParams struct {
	Prompt  string
	Context string
}

// BuildReply returns the request that asks the model to answer a review.
// Zero-valued optional fields fall back to defaults.
func (b Builder) BuildReply(p ReplyParams) models.CompletionRequest {
	tone := p.Tone
	if _, ok := toneGuidance[tone]; !ok {
		tone = ToneForRating(p.Rating)
	}
	lang := p.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	maxLen := ClampLength(p.MaxLength)

	var sys strings.Builder
	sys.WriteString("You write public replies to customer reviews on behalf of a business. ")
	sys.WriteString(toneGuidance[tone])
	fmt.Fprintf(&sys, " Reply in language %q. Keep the reply under %d characters.", lang, maxLen)
	sys.WriteString(" Return only the reply text, without quotes or preamble.")

	var user strings.Builder
	if p.BusinessName != "" {
		fmt.Fprintf(&user, "Business: %s\n", b.sanitize(p.BusinessName))
	}
	if p.ReviewerName != "" {
		fmt.Fprintf(&user, "Reviewer: %s\n", b.sanitize(p.ReviewerName))
	}
	if p.Rating > 0 {
		fmt.Fprintf(&user, "Rating: %d/5\n", p.Rating)
	}
	user.WriteString("Review:\n")
	user.WriteString(b.quote(p.ReviewText))

	return models.CompletionRequest{
		System:      sys.String(),
		Prompt:      user.String(),
		MaxTokens:   maxLen/3 + 64,
		Temperature: 0.7,
	}
}

// BuildAnalysis returns the request that asks the model to critique a prompt.
func (b Builder) BuildAnalysis(p AnalysisParams) models.CompletionRequest {
	var user strings.Builder
	user.WriteString("Prompt under review:\n")
	user.WriteString(b.quote(p.Prompt))
	if strings.TrimSpace(p.Context) != "" {
		user.WriteString("\n\nIntended use:\n")
		user.WriteString(b.quote(p.Context))
	}
	if ph := Placeholders(p.Prompt); len(ph) > 0 {
		fmt.Fprintf(&user, "\n\nTemplate variables: %s", strings.Join(ph, ", "))
	}

	return models.CompletionRequest{
		System: "You review prompts written for a customer review reply assistant. " +
			"Assess clarity, ambiguity, missing constraints and tone. " +
			"Answer with a short assessment followed by concrete suggestions.",
		Prompt:      user.String(),
		MaxTokens:   600,
		Temperature: 0.2,
	}
}

// Placeholders returns the distinct {{name}} template variables in s in
// order of first appearance. Returns an empty slice, never nil.
func Placeholders(s string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, m := range rePlaceholder.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// ClampLength applies the default and upper bound to a requested reply length.
func ClampLength(n int) int {
	if n <= 0 {
		return DefaultMaxLength
	}
	if n > MaxReplyLength {
		return MaxReplyLength
	}
	return n
}

// quote fences user-supplied text so it cannot pose as instructions.
func (b Builder) quote(s string) string {
	s = strings.ReplaceAll(s, `"""`, `''`)
	return `"""` + "\n" + strings.TrimSpace(b.stripControl(s)) + "\n" + `"""`
}

func (b Builder) sanitize(s string) string {
	return strings.Join(strings.Fields(b.stripControl(s)), " ")
}

func (b Builder) stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
