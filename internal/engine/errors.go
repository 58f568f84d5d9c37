package engine

import "fmt"

// Rule error codes. Resolution failures during sync are reported as data
// rows, not errors; these codes cover everything else the rules can refuse.
const (
	CodeValidation           = "validation"
	CodeNotFound             = "not_found"
	CodeNotAuthorized        = "not_authorized"
	CodeAlreadyProcessed     = "already_processed"
	CodePreviousLevelPending = "previous_level_pending"
	CodeBonusNotEntered      = "bonus_not_entered"
)

// RuleError is a business-rule refusal. Level is set when the refusal is
// about a specific approval level.
type RuleError struct {
	Code    string
	Message string
	Level   int
}

func (e *RuleError) Error() string {
	if e.Level > 0 {
		return fmt.Sprintf("%s: %s (level %d)", e.Code, e.Message, e.Level)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func ruleErr(code, format string, args ...any) *RuleError {
	return &RuleError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func levelErr(code string, level int, format string, args ...any) *RuleError {
	return &RuleError{Code: code, Message: fmt.Sprintf(format, args...), Level: level}
}
