// Package moderation implements the contact-leak filter applied to every
// outgoing chat message. Structured leaks (phone numbers, email addresses,
// social handles) are redacted in place; soft contact-sharing phrases are
// detected but left untouched so the call site can flag them for review.
package moderation

import (
	"regexp"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Violation kinds reported by the filter.
const (
	ViolationPhone  = "phone"
	ViolationEmail  = "email"
	ViolationSocial = "social"
	ViolationPhrase = "phrase"
)

// Placeholder tokens substituted for redacted matches.
const (
	PhonePlaceholder  = "[PHONE_BLOCKED]"
	EmailPlaceholder  = "[EMAIL_BLOCKED]"
	SocialPlaceholder = "[SOCIAL_BLOCKED]"
)

// Violation describes a single pattern hit within a message.
type Violation struct {
	Type        string `json:"type"`
	MatchedText string `json:"matchedText"`
	PatternID   string `json:"patternId"`
}

// Result is the outcome of one filter pass over a message.
type Result struct {
	FilteredText      string
	Violations        []Violation
	HasBlockedContent bool
}

type redactionRule struct {
	id          string
	kind        string
	pattern     *regexp.Regexp
	placeholder string
}

// Filter redacts contact details from chat content. It is safe for
// concurrent use; all state is immutable after construction.
type Filter struct {
	rules   []redactionRule
	phrases *goahocorasick.Machine
}

var defaultPhrases = []string{
	"call me",
	"text me",
	"dm me",
	"whatsapp me",
	"message me on",
	"reach me on",
	"contact me outside",
	"my number is",
	"add me on",
}

// NewFilter builds a filter with the platform's default pattern set.
func NewFilter() *Filter {
	f, err := NewFilterWithPhrases(defaultPhrases)
	if err != nil {
		// The default phrase list is static and known-good.
		panic(err)
	}
	return f
}

// NewFilterWithPhrases builds a filter using a custom soft-phrase list.
func NewFilterWithPhrases(phrases []string) (*Filter, error) {
	patterns := make([][]rune, 0, len(phrases))
	for _, phrase := range phrases {
		normalized := normalizeRunes([]rune(phrase))
		if len(normalized) > 0 {
			patterns = append(patterns, normalized)
		}
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}

	return &Filter{
		rules: []redactionRule{
			{
				id:          "phone_local",
				kind:        ViolationPhone,
				pattern:     regexp.MustCompile(`\b0\d{9,10}\b`),
				placeholder: PhonePlaceholder,
			},
			{
				id:          "phone_international",
				kind:        ViolationPhone,
				pattern:     regexp.MustCompile(`\+\d{1,3}[\s-]?\d{2,4}([\s-]?\d{2,4}){1,3}`),
				placeholder: PhonePlaceholder,
			},
			{
				id:          "phone_spaced",
				kind:        ViolationPhone,
				pattern:     regexp.MustCompile(`\b\d{3}[\s.-]\d{3}[\s.-]\d{3,4}\b`),
				placeholder: PhonePlaceholder,
			},
			{
				id:          "email",
				kind:        ViolationEmail,
				pattern:     regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
				placeholder: EmailPlaceholder,
			},
			{
				id:          "social_url",
				kind:        ViolationSocial,
				pattern:     regexp.MustCompile(`(?i)\b(?:https?://)?(?:www\.)?(?:facebook|fb|instagram|t(?:elegram)?|tiktok|twitter|x|wa)\.(?:com|me|org)/\S+`),
				placeholder: SocialPlaceholder,
			},
			{
				id:          "social_handle",
				kind:        ViolationSocial,
				pattern:     regexp.MustCompile(`(?i)(?:^|\s)@[a-z0-9_.]{3,30}\b`),
				placeholder: SocialPlaceholder,
			},
		},
		phrases: machine,
	}, nil
}

// Apply runs every pattern category over text, left to right per category:
// structured matches are replaced with typed placeholders, phrase hits are
// only reported. HasBlockedContent is true iff a non-phrase violation fired.
func (f *Filter) Apply(text string) Result {
	result := Result{FilteredText: text}

	for _, rule := range f.rules {
		matches := rule.pattern.FindAllString(result.FilteredText, -1)
		if len(matches) == 0 {
			continue
		}
		for _, match := range matches {
			result.Violations = append(result.Violations, Violation{
				Type:        rule.kind,
				MatchedText: match,
				PatternID:   rule.id,
			})
		}
		result.FilteredText = rule.pattern.ReplaceAllString(result.FilteredText, rule.placeholder)
		result.HasBlockedContent = true
	}

	result.Violations = append(result.Violations, f.detectPhrases(result.FilteredText)...)

	return result
}

// detectPhrases searches a normalized view of text so spacing, punctuation
// and common leet substitutions cannot hide a phrase.
func (f *Filter) detectPhrases(text string) []Violation {
	mapping := normalize(text)
	if len(mapping.normalized) == 0 {
		return nil
	}

	spans := f.phrases.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return nil
	}

	origRunes := []rune(text)
	violations := make([]Violation, 0, len(spans))
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(mapping.origIdx) {
			continue
		}
		origStart := mapping.origIdx[start]
		origEnd := mapping.origIdx[end-1] + 1
		violations = append(violations, Violation{
			Type:        ViolationPhrase,
			MatchedText: string(origRunes[origStart:origEnd]),
			PatternID:   "phrase:" + string(span.Word),
		})
	}

	return violations
}

type textMapping struct {
	normalized []rune
	origIdx    []int
}

func normalize(input string) textMapping {
	origRunes := []rune(input)
	norm := make([]rune, 0, len(origRunes))
	origIdx := make([]int, 0, len(origRunes))

	for i, r := range origRunes {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		norm = append(norm, unicode.ToLower(clean))
		origIdx = append(origIdx, i)
	}

	return textMapping{normalized: norm, origIdx: origIdx}
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// simplifyRune maps common leet-speak characters back to their alphabet
// counterparts so "c4ll m3" still matches "call me".
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
