// Package sanitize normalizes raw generated text into clean spoken
// dialogue. It is the last line of defense before a reply is spoken
// aloud or logged as canon transcript.
package sanitize

import (
	"regexp"
	"strings"
)

// Deflection is returned whenever the cleaned text is too short or
// the model visibly broke character.
const Deflection = "I'm not sure how to answer that right now."

// rolePrefixes are stripped from the start of a response. Longer
// variants come first so they are not partially eaten by a shorter one.
var rolePrefixes = []string{
	"As the patient: ",
	"As Sarah: ",
	"Patient: ", "Patient:",
	"Response: ", "Response:",
	"Sarah: ", "Sarah:",
	"You: ", "You:",
}

var (
	asteriskSpan = regexp.MustCompile(`\*[^*]+\*`)
	bracketSpan  = regexp.MustCompile(`\[[^\]]*\]`)
	actionCues   = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\([^)]*fidget[^)]*\)`),
		regexp.MustCompile(`(?i)\([^)]*pause[^)]*\)`),
		regexp.MustCompile(`(?i)\([^)]*sigh[^)]*\)`),
		regexp.MustCompile(`(?i)\([^)]*look[^)]*\)`),
	}
	whitespace = regexp.MustCompile(`\s+`)

	// Markers that the model leaked meta-commentary or code
	// instead of in-character dialogue.
	leakageMarkers = []string{"python", "```", "roleplay"}
)

var quotePairs = [][2]string{
	{`"`, `"`},
	{`'`, `'`},
	{"“", "”"}, // curly double
	{"‘", "’"}, // curly single
}

// Clean turns a raw model response into spoken dialogue. The transform
// is deterministic and order-sensitive: role prefixes, wrapping quotes,
// stage directions, whitespace, stray punctuation, then a validity guard.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)

	// No early exit: labels can stack ("Patient: Sarah: ..."), and one
	// pass through the whole list strips the stack.
	for _, prefix := range rolePrefixes {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
		}
	}

	s = stripWrappingQuotes(s)

	s = asteriskSpan.ReplaceAllString(s, "")
	s = bracketSpan.ReplaceAllString(s, "")
	for _, cue := range actionCues {
		s = cue.ReplaceAllString(s, "")
	}

	s = whitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, ".,;:")
	s = strings.TrimSpace(s)

	// A stray single asterisk or bracket left over from an unbalanced
	// stage direction never survives.
	s = strings.NewReplacer("*", "", "[", "", "]", "").Replace(s)
	s = strings.TrimSpace(s)

	// Stage-direction removal can leave a quote pair that wrapped the
	// whole line; strip it again so a second Clean is a no-op.
	s = strings.TrimSpace(stripWrappingQuotes(s))

	if len(s) < 10 || brokeCharacter(s) {
		return Deflection
	}
	return s
}

func stripWrappingQuotes(s string) string {
	for _, pair := range quotePairs {
		if len(s) > len(pair[0])+len(pair[1]) && strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) {
			return s[len(pair[0]) : len(s)-len(pair[1])]
		}
	}
	return s
}

func brokeCharacter(s string) bool {
	lower := strings.ToLower(s)
	for _, marker := range leakageMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
