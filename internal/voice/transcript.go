package voice

import (
	"regexp"
	"strings"
)

// STT engines insert spurious spaces into spoken email addresses ("john 42
// @ gmail . com"). The fixer collapses spaces around the @, spaces between
// letters and the digits preceding the @, and spaces around the dots of the
// domain (spec.md §4.5 step 2).
var (
	preAtGapRe      = regexp.MustCompile(`(\w)\s+@`)
	postAtGapRe     = regexp.MustCompile(`@\s+(\w)`)
	digitGapRe      = regexp.MustCompile(`([A-Za-z])\s+(\d[\w.]*@)`)
	domainDotPreRe  = regexp.MustCompile(`(@[A-Za-z0-9.-]*[A-Za-z0-9])\s+\.`)
	domainDotPostRe = regexp.MustCompile(`(@[A-Za-z0-9.-]*\.)\s+([A-Za-z0-9])`)
)

// FixEmailWhitespace collapses stray whitespace inside …@… patterns in a
// final transcript. Text without an @ is returned unchanged.
func FixEmailWhitespace(s string) string {
	if !strings.Contains(s, "@") {
		return s
	}
	s = preAtGapRe.ReplaceAllString(s, "$1@")
	s = postAtGapRe.ReplaceAllString(s, "@$1")
	s = digitGapRe.ReplaceAllString(s, "$1$2")
	for {
		fixed := domainDotPreRe.ReplaceAllString(s, "$1.")
		fixed = domainDotPostRe.ReplaceAllString(fixed, "$1$2")
		if fixed == s {
			return s
		}
		s = fixed
	}
}

var (
	quitTokens = map[string]bool{"quit": true, "goodbye": true, "exit": true}
	stopTokens = map[string]bool{"stop": true, "cancel": true, "never mind": true, "nevermind": true}
)

// normalizeCommand lowercases text and strips surrounding punctuation so
// "Stop!" and "stop" route the same way.
func normalizeCommand(text string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(text)), ".,!?\"' ")
}

// IsQuitCommand reports whether text is one of the graceful-shutdown tokens
// (spec.md §4.5 step 4).
func IsQuitCommand(text string) bool {
	return quitTokens[normalizeCommand(text)]
}

// IsStopCommand reports whether text is one of the cancel-current-task
// tokens (spec.md §4.5 step 4).
func IsStopCommand(text string) bool {
	return stopTokens[normalizeCommand(text)]
}
