package speculative

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

var splitNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// stopwords is the closed set dropped during normalization (spec.md §4.2).
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "please": true,
	"can": true, "you": true, "could": true, "would": true,
}

// commandVerbs is the closed set of verbs gating short commands.
var commandVerbs = map[string]bool{
	"open": true, "go": true, "click": true, "search": true, "find": true,
	"type": true, "close": true, "switch": true, "tab": true, "run": true,
	"show": true, "hide": true, "scroll": true, "select": true, "copy": true,
	"paste": true, "delete": true, "send": true, "reply": true, "forward": true,
	"navigate": true, "maximize": true, "minimize": true,
}

// complexMarkers are the contextual markers that route a transcript onto the
// complex path, per spec.md §4.5.
var complexMarkers = []string{
	"actually", "instead", "rather", "hmm",
	"remember that", "always use", "i prefer", "i like to",
	"tell me about", "explain what",
}

var complexQuestionRe = regexp.MustCompile(`\b(what|how|why)\s+(did|was|were|are)\b`)

// normalizeTokens lowercases s, splits on non-alphanumerics, and drops
// stopwords.
func normalizeTokens(s string) []string {
	lower := strings.ToLower(s)
	raw := splitNonAlnum.Split(lower, -1)
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if t == "" || stopwords[t] {
			continue
		}
		out = append(out, t)
	}
	return out
}

// IsSimpleCommand reports whether transcript routes as "simple" (fast path)
// rather than "complex" (interpreter path), per spec.md §4.5.
func IsSimpleCommand(transcript string) bool {
	lower := strings.ToLower(transcript)
	for _, marker := range complexMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	if complexQuestionRe.MatchString(lower) {
		return false
	}
	return true
}

// Similar implements the tiered similarity predicate of spec.md §4.2,
// comparing a partial transcript against the eventual final transcript.
func Similar(partial, final string) bool {
	pTokens := normalizeTokens(partial)
	fTokens := normalizeTokens(final)

	if len(pTokens) == 0 || len(fTokens) == 0 {
		return false
	}

	minFinal := len(pTokens) - 1
	if minFinal < 2 {
		minFinal = 2
	}
	if len(fTokens) < minFinal {
		return false
	}

	// Gate 1: both sides must agree on simple/complex routing.
	if IsSimpleCommand(partial) != IsSimpleCommand(final) {
		return false
	}

	// Gate 2: short commands must agree on a leading command verb.
	if len(pTokens) <= 3 || len(fTokens) <= 3 {
		if !commandVerbs[pTokens[0]] || pTokens[0] != fTokens[0] {
			return false
		}
	}

	if tierA(pTokens, fTokens) {
		return true
	}
	if tierB(pTokens, fTokens) {
		return true
	}
	if tierC(pTokens, fTokens) {
		return true
	}
	return tierD(pTokens, fTokens)
}

// tierA: exact token-sequence equality.
func tierA(p, f []string) bool {
	if len(p) != len(f) {
		return false
	}
	for i := range p {
		if p[i] != f[i] {
			return false
		}
	}
	return true
}

// tierB: first N tokens of partial are a prefix of final, N >= 2.
func tierB(p, f []string) bool {
	n := len(p)
	if n < 2 || n > len(f) {
		return false
	}
	for i := 0; i < n; i++ {
		if p[i] != f[i] {
			return false
		}
	}
	return true
}

// tierC: counts equal and in {2,3}, first tokens match, edit-distance <= 1
// on remaining tokens position-wise.
func tierC(p, f []string) bool {
	if len(p) != len(f) || (len(p) != 2 && len(p) != 3) {
		return false
	}
	if p[0] != f[0] {
		return false
	}
	mismatches := 0
	for i := 1; i < len(p); i++ {
		if matchr.Levenshtein(p[i], f[i]) > 1 {
			mismatches++
		}
	}
	return mismatches == 0
}

// tierD: Levenshtein distance on whitespace-joined normalized tokens is
// < 15% of the longer length.
func tierD(p, f []string) bool {
	ps := strings.Join(p, " ")
	fs := strings.Join(f, " ")
	dist := matchr.Levenshtein(ps, fs)
	longer := len(ps)
	if len(fs) > longer {
		longer = len(fs)
	}
	if longer == 0 {
		return true
	}
	return float64(dist) < 0.15*float64(longer)
}
