// Package evaluation turns the supervisor model's free-text output into
// a structured evaluation. The parser is a total function: any input,
// including garbage, produces a complete well-formed record.
package evaluation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/curalab/therasim/internal/domain"
)

const (
	defaultScore = 60
	maxItems     = 5
)

// A leading minus sign is captured so a negative number is rejected
// outright instead of its digits being read as a score.
var firstInt = regexp.MustCompile(`-?\d+`)

var defaultStrengths = []string{
	"Completed the therapy session",
	"Engaged with the patient",
	"Maintained professionalism",
}

var defaultImprovements = []string{
	"Practice more active listening",
	"Ask more open-ended questions",
	"Deepen emotional exploration",
}

const defaultFeedback = "Continue developing your therapeutic skills through practice and supervision."

// Parse scans the evaluator output line by line. A SCORE: line yields
// the first embedded integer clamped to [0,100]; STRENGTHS:,
// IMPROVEMENTS: and FEEDBACK: switch the active section; hyphen lines
// feed the active bullet list and plain lines feed the feedback text.
// Missing or empty sections fall back to fixed defaults.
func Parse(raw string) domain.Evaluation {
	score := defaultScore
	var strengths, improvements []string
	var feedback strings.Builder

	section := ""
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "SCORE:"):
			if m := firstInt.FindString(strings.TrimPrefix(line, "SCORE:")); m != "" && !strings.HasPrefix(m, "-") {
				if n, err := strconv.Atoi(m); err == nil {
					score = clamp(n, 0, 100)
				}
			}
		case strings.HasPrefix(line, "STRENGTHS:"):
			section = "strengths"
		case strings.HasPrefix(line, "IMPROVEMENTS:"):
			section = "improvements"
		case strings.HasPrefix(line, "FEEDBACK:"):
			section = "feedback"
		case strings.HasPrefix(line, "-") && (section == "strengths" || section == "improvements"):
			item := strings.TrimSpace(strings.TrimPrefix(line, "-"))
			if item == "" {
				continue
			}
			if section == "strengths" {
				strengths = append(strengths, item)
			} else {
				improvements = append(improvements, item)
			}
		case section == "feedback" && line != "":
			if feedback.Len() > 0 {
				feedback.WriteByte(' ')
			}
			feedback.WriteString(line)
		}
	}

	if len(strengths) == 0 {
		strengths = append([]string(nil), defaultStrengths...)
	}
	if len(improvements) == 0 {
		improvements = append([]string(nil), defaultImprovements...)
	}
	fb := strings.TrimSpace(feedback.String())
	if fb == "" {
		fb = defaultFeedback
	}

	return domain.Evaluation{
		Score:        score,
		Strengths:    head(strengths, maxItems),
		Improvements: head(improvements, maxItems),
		Feedback:     fb,
	}
}

// Default is the wholesale fallback used when generating the evaluation
// itself failed and there is no text to parse.
func Default() domain.Evaluation {
	return domain.Evaluation{
		Score: defaultScore,
		Strengths: []string{
			"Showed basic empathy",
			"Asked some relevant questions",
			"Maintained professional demeanor",
		},
		Improvements: []string{
			"Could ask more open-ended questions",
			"Could validate emotions more explicitly",
			"Could explore patient's feelings more deeply",
		},
		Feedback: "The session showed basic therapeutic skills but there's room for growth in building deeper rapport and using advanced techniques. Continue practicing active listening and validation.",
	}
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func head(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
