package team

import "encoding/json"

// Feedback grades.
const (
	GradePass = "pass"
	GradeFail = "fail"
)

// Feedback is the critic's structured evaluation of a gameplay plan.
type Feedback struct {
	Grade     string   `json:"grade"`
	Comment   string   `json:"comment"`
	FollowUps []string `json:"follow_ups,omitempty"`
}

// FeedbackSchema is the response schema the critic's model must follow.
func FeedbackSchema() map[string]any {
	return map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"grade": map[string]any{
				"type":        "STRING",
				"enum":        []string{GradePass, GradeFail},
				"description": "Evaluation result. 'pass' if the gameplay design is sufficient, 'fail' if it needs revision.",
			},
			"comment": map[string]any{
				"type":        "STRING",
				"description": "Detailed explanation of the evaluation, highlighting strengths and weaknesses of the gameplay.",
			},
			"follow_ups": map[string]any{
				"type":        "ARRAY",
				"items":       map[string]any{"type": "STRING"},
				"nullable":    true,
				"description": "Specific, targeted changes needed to fix gameplay issues. Empty if the grade is 'pass'.",
			},
		},
		"required": []string{"grade", "comment"},
	}
}

// ParseFeedback reads a Feedback from a state value. It accepts the decoded
// JSON object stored by the critic or a raw JSON string.
func ParseFeedback(v any) (Feedback, bool) {
	var raw []byte
	switch t := v.(type) {
	case nil:
		return Feedback{}, false
	case string:
		raw = []byte(t)
	case []byte:
		raw = t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return Feedback{}, false
		}
		raw = b
	}
	var fb Feedback
	if err := json.Unmarshal(raw, &fb); err != nil || fb.Grade == "" {
		return Feedback{}, false
	}
	return fb, true
}
