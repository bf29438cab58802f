// Package analysis turns uploaded footage into a structured child-safety
// risk assessment. It builds the fixed risk-detection instruction, submits
// it together with the video's remote locator to a vision provider, and
// parses the model's textual reply into a [Result].
package analysis

import "strings"

// Severity classifies how urgent a detected risk situation is.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// rank orders severities for the tie-break when the model returns several
// situations. Higher is more urgent; unknown values rank below low.
func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Result is the structured risk assessment extracted from the model reply.
type Result struct {
	// AlarmNeeded reports whether the footage shows a situation requiring a
	// spoken alert.
	AlarmNeeded bool `json:"alarm_needed"`

	// Severity is the model's urgency classification.
	Severity Severity `json:"severity"`

	// Situation describes what the model observed.
	Situation string `json:"situation"`

	// RecommendedAction is the model's suggested response.
	RecommendedAction string `json:"recommended_action"`

	// RecommendedShoutMessage is the exact phrase to speak through the alert
	// voice. Present only in the later reply schema; when empty, the phrase
	// is composed from Situation and RecommendedAction.
	RecommendedShoutMessage string `json:"recommended_shout_message,omitempty"`
}

// ShoutMessage returns the phrase to hand to speech synthesis: the model's
// recommended shout message when present, otherwise a warning composed from
// the situation and recommended action. Returns "" when there is nothing to
// say; callers must not synthesize an empty message.
func (r *Result) ShoutMessage() string {
	if msg := strings.TrimSpace(r.RecommendedShoutMessage); msg != "" {
		return msg
	}

	situation := strings.TrimSpace(r.Situation)
	action := strings.TrimSpace(r.RecommendedAction)
	if situation == "" && action == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString("경고!")
	if situation != "" {
		b.WriteString(" ")
		b.WriteString(situation)
	}
	if action != "" {
		b.WriteString(" 권장 조치: ")
		b.WriteString(action)
	}
	return b.String()
}
