package domain

// Condition is one of the fixed set of simulated patient conditions.
type Condition string

const (
	ConditionAnxiety    Condition = "Anxiety"
	ConditionDepression Condition = "Depression"
	ConditionBipolar    Condition = "Bipolar Disorder"
	ConditionPTSD       Condition = "PTSD"
)

// Conditions lists every supported condition in a stable order.
func Conditions() []Condition {
	return []Condition{ConditionAnxiety, ConditionDepression, ConditionBipolar, ConditionPTSD}
}

// Severity is how strongly the condition presents.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// Severities lists the severity tiers in escalating order.
func Severities() []Severity {
	return []Severity{SeverityMild, SeverityModerate, SeveritySevere}
}
