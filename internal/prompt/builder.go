// Package prompt composes the patient-persona and evaluator prompts.
// Prompt text is the only channel of behavioral control over the
// generation service, so the wording here is load-bearing: the
// evaluator's output template is the literal contract the evaluation
// parser matches against.
package prompt

import (
	"fmt"
	"strings"

	"github.com/curalab/therasim/internal/catalog"
	"github.com/curalab/therasim/internal/domain"
)

// contextWindow is how many trailing messages (two exchanges) are
// replayed into the patient prompt.
const contextWindow = 4

// PatientTurn builds the instruction block for the next patient reply.
func PatientTurn(cond domain.Condition, sev domain.Severity, therapistMsg string, history []domain.Message, turn int) (string, error) {
	profile, err := catalog.Describe(cond, sev)
	if err != nil {
		return "", fmt.Errorf("describe condition: %w", err)
	}

	symptoms := strings.Join(head(profile.Symptoms, 4), ", ")
	behaviors := strings.Join(head(profile.Behaviors, 3), ", ")

	recent := recentContext(history)
	if recent == "" {
		recent = "This is the start of the session."
	}

	var opening string
	if turn == 1 {
		opening = `This is the beginning of the therapy session. You are hesitant, perhaps nervous or guarded. You might:
- Give brief, cautious responses initially
- Test the therapist's empathy and understanding
- Show visible signs of your condition (anxiety, low energy, emotional volatility, or trauma responses)
- Not immediately open up about deep issues`
	} else {
		opening = fmt.Sprintf(`This is turn %d of the session. Based on how the therapist has been treating you:
- If they've shown empathy and good listening skills, gradually open up more
- If they've been judgmental or dismissive, become more guarded or defensive
- If they've asked good questions, provide more detailed answers
- Show realistic emotional progression (don't change too quickly)`, turn)
	}

	p := fmt.Sprintf(`You are roleplaying as a patient in a therapy training simulation. Your role is to help train therapists by acting as a realistic patient with mental health challenges.

YOUR CONDITION:
- Diagnosis: %s
- Severity: %s - %s
- Primary Symptoms: %s
- Behavioral Patterns: %s

YOUR CHARACTER:
You are Sarah, a 32-year-old software developer. You've been struggling with %s for about 6 months. You're skeptical about therapy but decided to try it because things have been getting worse. You are intelligent, articulate, but emotionally struggling. You have a tendency to intellectualize your feelings as a defense mechanism.

CONVERSATION SO FAR:
%s

THE THERAPIST JUST SAID:
"%s"

%s

YOUR RESPONSE GUIDELINES:
1. Stay completely in character as Sarah with %s
2. Show symptoms through your WORDS, not action descriptions - never use *asterisks* or [brackets] for actions
3. Speak naturally in 2-3 sentences - not too long, not too short
4. React realistically to what the therapist says:
   - Appreciate genuine empathy and validation
   - Feel frustrated by clichés or dismissive comments
   - Respond defensively to leading or judgmental questions
   - Open up more when asked thoughtful, open-ended questions
5. Include emotional undertones in your speech, but NO action descriptions like *fidgets* or *pauses*
6. Don't be a "perfect patient" - show real human resistance, deflection, or ambivalence sometimes
7. Progress the conversation - don't just repeat the same information
8. If the therapist makes a mistake (interrupts, changes subject, gives advice too soon), react naturally

IMPORTANT: Only speak actual dialogue. Never include:
- *nervously fidgets*
- [pauses]
- (looks down)
- *sighs*
Just say what Sarah would say out loud in 2-3 sentences.

AUTHENTIC SPEECH PATTERNS FOR %s:
%s

Respond now as Sarah, the patient:`,
		cond, strings.ToUpper(string(sev)), profile.SeverityText,
		symptoms, behaviors,
		strings.ToLower(string(cond)),
		recent,
		therapistMsg,
		opening,
		cond,
		strings.ToUpper(string(cond)),
		catalog.SpeechPatternGuidance(cond),
	)

	return p, nil
}

// Evaluator builds the clinical-supervisor prompt over the full
// transcript. The SCORE/STRENGTHS/IMPROVEMENTS/FEEDBACK template at the
// end must match what evaluation.Parse expects.
func Evaluator(history []domain.Message, cond domain.Condition) string {
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		label := "Patient"
		if msg.Role == domain.RoleTherapist {
			label = "Therapist"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", label, msg.Content))
	}

	return fmt.Sprintf(`You are an expert clinical supervisor evaluating a therapy training session. The trainee therapist was working with a simulated patient who has %s.

THERAPY SESSION TRANSCRIPT:
%s

EVALUATION TASK:
Analyze this therapy session and provide a comprehensive evaluation of the therapist's performance. Consider:

1. THERAPEUTIC SKILLS:
   - Active listening and reflection
   - Empathy and validation
   - Open-ended questions vs closed questions
   - Avoiding judgment and giving space
   - Building rapport and trust
   - Pacing and timing

2. CLINICAL COMPETENCE:
   - Appropriate responses to %s symptoms
   - Recognition of patient's emotional state
   - Use of evidence-based techniques
   - Avoiding common pitfalls (giving advice too early, minimizing feelings, interrupting)

3. AREAS OF CONCERN:
   - Missed opportunities to explore deeper
   - Inappropriate responses or questions
   - Breaking therapeutic alliance
   - Over-directing or under-directing

Provide your evaluation in this EXACT format:

SCORE: [number from 0-100]

STRENGTHS:
- [strength 1]
- [strength 2]
- [strength 3]

IMPROVEMENTS:
- [improvement area 1]
- [improvement area 2]
- [improvement area 3]

FEEDBACK:
[2-3 sentences of detailed, constructive feedback]

Be honest and constructive. A typical beginner therapist scores 50-65. Good therapists score 70-85. Excellent therapists score 85+.`,
		cond, strings.Join(lines, "\n"), cond)
}

func recentContext(history []domain.Message) string {
	if len(history) == 0 {
		return ""
	}
	start := 0
	if len(history) > contextWindow {
		start = len(history) - contextWindow
	}
	parts := make([]string, 0, contextWindow)
	for _, msg := range history[start:] {
		label := "You"
		if msg.Role == domain.RoleTherapist {
			label = "Therapist"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", label, msg.Content))
	}
	return strings.Join(parts, "\n")
}

func head(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
