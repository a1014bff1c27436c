package api

import (
	"regexp"
	"unicode/utf8"

	"github.com/dialplane/dialplane/internal/dialer"
)

// maxNameLen is the maximum length for name fields (agent names, number labels, etc.).
const maxNameLen = 200

// maxEmailLen is the maximum length for email addresses (RFC 5321).
const maxEmailLen = 254

// maxPasswordLen is the maximum length for passwords.
const maxPasswordLen = 256

// minPasswordLen is the minimum length for agent passwords.
const minPasswordLen = 8

// emailRe is a basic email format regex. Not exhaustive; validates structure only.
var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// sipUsernameRe validates SIP usernames: alphanumerics, dots, dashes and
// underscores, 1-64 chars.
var sipUsernameRe = regexp.MustCompile(`^[a-zA-Z0-9._\-]{1,64}$`)

// validateStringLen checks that a string does not exceed maxLen characters.
// Returns an error message if invalid, empty string if OK.
func validateStringLen(field, value string, maxLen int) string {
	if utf8.RuneCountInString(value) > maxLen {
		return field + " exceeds maximum length"
	}
	return ""
}

// validateRequiredStringLen checks that a non-empty string does not exceed maxLen characters.
func validateRequiredStringLen(field, value string, maxLen int) string {
	if value == "" {
		return field + " is required"
	}
	return validateStringLen(field, value, maxLen)
}

// validateEmail checks that a string is a valid-looking email address.
func validateEmail(field, value string) string {
	if value == "" {
		return ""
	}
	if len(value) > maxEmailLen {
		return field + " exceeds maximum length"
	}
	if !emailRe.MatchString(value) {
		return field + " is not a valid email address"
	}
	return ""
}

// validateSIPUsername checks a SIP username. Empty values are allowed
// (an agent without a SIP endpoint is never routed to).
func validateSIPUsername(field, value string) string {
	if value == "" {
		return ""
	}
	if !sipUsernameRe.MatchString(value) {
		return field + " must be 1-64 characters of letters, digits, dot, dash or underscore"
	}
	return ""
}

// validateE164 checks that a value normalizes to an E.164 phone number.
func validateE164(field, value string) string {
	if value == "" {
		return field + " is required"
	}
	if _, ok := dialer.NormalizeE164(value); !ok {
		return field + " is not a valid E.164 phone number"
	}
	return ""
}

// containsControlChars checks whether a string has control characters
// (except common whitespace like \n, \r, \t).
func containsControlChars(s string) bool {
	for _, r := range s {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			return true
		}
	}
	return false
}

// validateNoControlChars rejects strings with control characters.
func validateNoControlChars(field, value string) string {
	if containsControlChars(value) {
		return field + " contains invalid characters"
	}
	return ""
}
