package policy

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("authentication credentials were not provided")
	ErrForbidden       = errors.New("permission denied")
)

type Rule string

const (
	WrongTeam         Rule = "wrong_team"
	NotOwner          Rule = "not_owner"
	NotSupportContact Rule = "not_support_contact"
	ManagementOnly    Rule = "management_only"
)

// ForbiddenError is a denial for an authenticated actor. It matches ErrForbidden
// under errors.Is regardless of the rule.
type ForbiddenError struct {
	Rule    Rule
	Message string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("permission denied (%v): %v", e.Rule, e.Message)
}

func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}

func forbidden(rule Rule, msg string) error {
	return &ForbiddenError{Rule: rule, Message: msg}
}

// RuleOf returns the rule that caused err, or "" if err is not a policy denial.
func RuleOf(err error) Rule {
	var ferr *ForbiddenError
	if errors.As(err, &ferr) {
		return ferr.Rule
	}
	return ""
}
