package security

import (
	"fmt"
	"strings"
)

const (
	defaultMinPasswordLength = 8
	defaultMinZxcvbnScore    = 2
)

// PasswordPolicy enforces the account password rules: a minimum length and a zxcvbn
// strength score computed with the account email as a penalised user input.
type PasswordPolicy struct {
	minLength int
	minScore  int
}

// NewPasswordPolicy builds a policy from configured thresholds. Non-positive values fall back to defaults.
func NewPasswordPolicy(minLength, minScore int) *PasswordPolicy {
	if minLength <= 0 {
		minLength = defaultMinPasswordLength
	}
	if minScore <= 0 {
		minScore = defaultMinZxcvbnScore
	}
	return &PasswordPolicy{minLength: minLength, minScore: minScore}
}

// DefaultPasswordPolicy returns the built-in policy.
func DefaultPasswordPolicy() *PasswordPolicy {
	return NewPasswordPolicy(defaultMinPasswordLength, defaultMinZxcvbnScore)
}

// Validate applies the policy. userInputs (typically the email and its local part) lower the
// strength score of passwords derived from them.
func (p *PasswordPolicy) Validate(password string, userInputs ...string) error {
	if p == nil {
		return fmt.Errorf("password policy not configured")
	}

	inputs := make([]string, 0, len(userInputs)*2)
	for _, input := range userInputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		inputs = append(inputs, input)
		if local, _, ok := strings.Cut(input, "@"); ok && local != "" {
			inputs = append(inputs, local)
		}
	}

	validator := NewPasswordValidator(
		MinLengthRule(p.minLength),
		RequirePasswordStrengthRule(p.minScore, inputs...),
	)
	return validator.Validate(password)
}
