// Package catalog is the static knowledge base of simulated patient
// conditions. It is loaded once at process start and shared read-only
// by all sessions.
package catalog

import (
	"fmt"
	"math/rand/v2"

	"github.com/curalab/therasim/internal/domain"
)

// Profile describes how a condition presents at a given severity.
type Profile struct {
	Symptoms     []string
	Behaviors    []string
	Triggers     []string
	SeverityText string
}

type entry struct {
	symptoms  []string
	behaviors []string
	triggers  []string
	severity  map[domain.Severity]string
	speech    string
}

var conditions = map[domain.Condition]entry{
	domain.ConditionAnxiety: {
		symptoms:  []string{"restlessness", "rapid heartbeat", "excessive worry", "difficulty concentrating", "sleep disturbances", "muscle tension"},
		behaviors: []string{"fidgeting", "avoiding eye contact", "speaking quickly", "seeking reassurance", "catastrophizing"},
		triggers:  []string{"uncertainty", "social situations", "perceived judgment", "performance pressure"},
		severity: map[domain.Severity]string{
			domain.SeverityMild:     "experiences occasional worry but can function normally most of the time",
			domain.SeverityModerate: "experiences frequent anxiety that interferes with daily activities",
			domain.SeveritySevere:   "experiences constant, overwhelming anxiety that severely impacts daily functioning",
		},
		speech: `- Speak with some hesitation, maybe trailing off
- Ask for reassurance ("Is that normal?" "Do you think I'm overreacting?")
- Jump between topics when anxious
- Use minimizing language ("It's probably nothing, but...")`,
	},
	domain.ConditionDepression: {
		symptoms:  []string{"persistent sadness", "loss of interest in activities", "fatigue", "changes in appetite", "difficulty sleeping or oversleeping", "feelings of worthlessness"},
		behaviors: []string{"withdrawing from social interactions", "lack of motivation", "speaking slowly or quietly", "expressing hopelessness", "difficulty making decisions"},
		triggers:  []string{"loneliness", "stress", "major life changes", "criticism"},
		severity: map[domain.Severity]string{
			domain.SeverityMild:     "experiences low mood and reduced interest but can still function with effort",
			domain.SeverityModerate: "experiences significant sadness and loss of interest that impacts work and relationships",
			domain.SeveritySevere:   "experiences profound depression with thoughts of self-harm and inability to function",
		},
		speech: `- Speak with low energy, shorter sentences
- Use hopeless language ("What's the point?" "Nothing helps")
- Struggle to articulate positive feelings
- Give flat, monotone responses when energy is very low`,
	},
	domain.ConditionBipolar: {
		symptoms:  []string{"alternating mood swings", "periods of high energy and euphoria", "periods of deep depression", "racing thoughts", "impulsive behavior", "irritability"},
		behaviors: []string{"unpredictable mood changes", "excessive talking during manic phases", "withdrawal during depressive phases", "risky decision-making", "sleep pattern changes"},
		triggers:  []string{"stress", "sleep disruption", "substance use", "seasonal changes"},
		severity: map[domain.Severity]string{
			domain.SeverityMild:     "experiences noticeable mood swings but maintains some stability",
			domain.SeverityModerate: "experiences significant mood episodes that disrupt work and relationships",
			domain.SeveritySevere:   "experiences extreme manic and depressive episodes requiring intervention",
		},
		speech: `- Energy level varies - sometimes rapid speech, sometimes withdrawn
- During high energy: tangential, enthusiastic, oversharing
- During low energy: withdrawn, brief, pessimistic
- May show irritability if feeling misunderstood`,
	},
	domain.ConditionPTSD: {
		symptoms:  []string{"flashbacks", "nightmares", "severe anxiety", "intrusive thoughts", "hypervigilance", "emotional numbness"},
		behaviors: []string{"avoidance of trauma-related triggers", "startling easily", "difficulty trusting others", "emotional outbursts", "detachment from reality"},
		triggers:  []string{"reminders of trauma", "loud noises", "crowded places", "feeling trapped"},
		severity: map[domain.Severity]string{
			domain.SeverityMild:     "experiences occasional intrusive thoughts and mild anxiety about trauma",
			domain.SeverityModerate: "experiences frequent flashbacks and significant avoidance behaviors",
			domain.SeveritySevere:   "experiences constant re-living of trauma with severe functional impairment",
		},
		speech: `- May pause or become distracted when triggered
- Hypervigilant language ("I need to know..." "What if...")
- Avoid certain topics or details
- Occasional dissociation ("I don't know, I just... zoned out")`,
	},
}

// Describe returns the presentation profile for a condition at a severity.
// It fails only on a condition or severity outside the fixed sets, which
// indicates a programming error since selection is internal.
func Describe(cond domain.Condition, sev domain.Severity) (Profile, error) {
	e, ok := conditions[cond]
	if !ok {
		return Profile{}, fmt.Errorf("unknown condition %q", cond)
	}
	text, ok := e.severity[sev]
	if !ok {
		return Profile{}, fmt.Errorf("unknown severity %q", sev)
	}
	return Profile{
		Symptoms:     e.symptoms,
		Behaviors:    e.behaviors,
		Triggers:     e.triggers,
		SeverityText: text,
	}, nil
}

// SpeechPatternGuidance returns condition-specific speech guidance for the
// patient prompt. Unknown conditions yield an empty string.
func SpeechPatternGuidance(cond domain.Condition) string {
	return conditions[cond].speech
}

// SelectRandom picks a condition and severity uniformly at random using
// default process entropy.
func SelectRandom() (domain.Condition, domain.Severity) {
	conds := domain.Conditions()
	sevs := domain.Severities()
	return conds[rand.IntN(len(conds))], sevs[rand.IntN(len(sevs))]
}
