// Package content validates the text of a poke before it is stored.
package content

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kasuganosora/nickfinder/config"
	"github.com/microcosm-cc/bluemonday"
)

// Error messages returned by Validate.
const (
	MsgMarkup    = "HTML tags are not allowed"
	MsgURL       = "links are not allowed in a POKE"
	MsgEmail     = "email addresses are not allowed in a POKE"
	MsgProfanity = "message contains inappropriate language"
)

var urlPattern = regexp.MustCompile(`(?i)(https?|www\.|\.com|\.net|\.org|://)`)

// Validator checks poke content against length, markup, link, email and
// profanity rules.
type Validator struct {
	maxLength    int
	filterURLs   bool
	filterEmails bool
	profanity    []string
	policy       *bluemonday.Policy
}

// New builds a Validator from the poke configuration.
func New(cfg config.PokeConfig) *Validator {
	words := make([]string, 0, len(cfg.Profanity))
	for _, w := range cfg.Profanity {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			words = append(words, w)
		}
	}
	return &Validator{
		maxLength:    cfg.MaxLength,
		filterURLs:   cfg.FilterURLs,
		filterEmails: cfg.FilterEmails,
		profanity:    words,
		policy:       bluemonday.StrictPolicy(),
	}
}

// Validate runs every rule and returns all violations together with the
// markup-stripped text. Markup is an error even though a cleaned text is
// returned.
func (v *Validator) Validate(text string) (errs []string, cleaned string) {
	if v.maxLength > 0 && utf8.RuneCountInString(text) > v.maxLength {
		errs = append(errs, fmt.Sprintf("POKE content cannot exceed %d characters", v.maxLength))
	}

	cleaned = html.UnescapeString(v.policy.Sanitize(text))
	if cleaned != html.UnescapeString(text) {
		errs = append(errs, MsgMarkup)
	}

	if v.filterURLs && urlPattern.MatchString(text) {
		errs = append(errs, MsgURL)
	}

	if v.filterEmails && strings.Contains(text, "@") {
		errs = append(errs, MsgEmail)
	}

	lower := strings.ToLower(text)
	for _, w := range v.profanity {
		if strings.Contains(lower, w) {
			errs = append(errs, MsgProfanity)
			break
		}
	}
	return errs, cleaned
}
