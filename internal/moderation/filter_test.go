package moderation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyCleanTextPassesThrough(t *testing.T) {
	f := NewFilter()

	result := f.Apply("hello, is the blue variant still in stock?")

	require.Equal(t, "hello, is the blue variant still in stock?", result.FilteredText)
	require.False(t, result.HasBlockedContent)
	require.Empty(t, result.Violations)
}

func TestApplyRedactsLocalPhoneNumber(t *testing.T) {
	f := NewFilter()

	result := f.Apply("Call me at 0712345678")

	require.True(t, result.HasBlockedContent)
	require.Contains(t, result.FilteredText, PhonePlaceholder)
	require.NotContains(t, result.FilteredText, "0712345678")

	kinds := violationKinds(result)
	require.Contains(t, kinds, ViolationPhone)
	// "call me" is also a soft phrase; it must be reported but not redacted.
	require.Contains(t, kinds, ViolationPhrase)
}

func TestApplyRedactsInternationalPhoneNumber(t *testing.T) {
	f := NewFilter()

	result := f.Apply("my line is +44 20 7946 0958 ok")

	require.True(t, result.HasBlockedContent)
	require.Contains(t, result.FilteredText, PhonePlaceholder)
	require.NotContains(t, result.FilteredText, "7946")
}

func TestApplyRedactsEmailAddress(t *testing.T) {
	f := NewFilter()

	result := f.Apply("reach me at a@b.com")

	require.True(t, result.HasBlockedContent)
	require.Contains(t, result.FilteredText, EmailPlaceholder)
	require.NotContains(t, result.FilteredText, "a@b.com")
	require.Contains(t, violationKinds(result), ViolationEmail)
}

func TestApplyRedactsSocialLinksAndHandles(t *testing.T) {
	f := NewFilter()

	result := f.Apply("find me on instagram.com/some.seller or @some_seller")

	require.True(t, result.HasBlockedContent)
	require.Contains(t, result.FilteredText, SocialPlaceholder)
	require.NotContains(t, result.FilteredText, "some_seller")
}

func TestApplyPhraseOnlyIsDetectedButNotRedacted(t *testing.T) {
	f := NewFilter()

	result := f.Apply("call me sometime")

	require.Equal(t, "call me sometime", result.FilteredText)
	require.False(t, result.HasBlockedContent)
	require.Len(t, result.Violations, 1)
	require.Equal(t, ViolationPhrase, result.Violations[0].Type)
	require.Equal(t, "call me", strings.ToLower(result.Violations[0].MatchedText))
}

func TestApplyPhraseSurvivesLeetAndPunctuation(t *testing.T) {
	f := NewFilter()

	result := f.Apply("c4ll... m3 later")

	require.False(t, result.HasBlockedContent)
	require.Contains(t, violationKinds(result), ViolationPhrase)
}

func TestApplyIsDeterministic(t *testing.T) {
	f := NewFilter()
	input := "email x@y.io, call me at 0712345678, see fb.com/me"

	first := f.Apply(input)
	second := f.Apply(input)

	require.Equal(t, first.FilteredText, second.FilteredText)
	require.Equal(t, first.Violations, second.Violations)
}

func violationKinds(result Result) []string {
	kinds := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		kinds = append(kinds, v.Type)
	}
	return kinds
}
