package domain

import "strings"

type ActionInput struct {
	DocumentID string
	Action     string
	ActorID    string
	Comment    string
}

type ValidationResult struct {
	FailedRules []string `json:"failed_rules"`
}

func ValidateActionInput(in ActionInput, rejectAction string) ValidationResult {
	failed := make([]string, 0)

	if strings.TrimSpace(in.Action) == "" {
		failed = append(failed, "action.name_required")
	}
	if strings.TrimSpace(in.ActorID) == "" {
		failed = append(failed, "action.actor_required")
	}
	if in.Action == rejectAction && strings.TrimSpace(in.Comment) == "" {
		failed = append(failed, "reject.comment_required")
	}

	return ValidationResult{FailedRules: failed}
}

func ValidationPassed(r ValidationResult) bool {
	return len(r.FailedRules) == 0
}
