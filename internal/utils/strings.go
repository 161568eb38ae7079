package utils

import (
	"net/mail"
	"strings"
	"unicode"
)

// NormalizeString trims whitespace
func NormalizeString(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps a leading + and digits only
func NormalizePhone(phone string) string {
	cleaned := strings.TrimSpace(phone)
	if cleaned == "" {
		return ""
	}

	var result strings.Builder
	for i, r := range cleaned {
		if i == 0 && r == '+' {
			result.WriteRune(r)
		} else if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeMSISDN converts Kenyan mobile numbers (07.., 01.., +2547.., 2547..)
// into the 2547XXXXXXXX / 2541XXXXXXXX form the STK push API expects.
// Returns "" when the number cannot be a Safaricom MSISDN.
func NormalizeMSISDN(phone string) string {
	digits := strings.TrimPrefix(NormalizePhone(phone), "+")
	switch {
	case len(digits) == 10 && (strings.HasPrefix(digits, "07") || strings.HasPrefix(digits, "01")):
		digits = "254" + digits[1:]
	case len(digits) == 9 && (digits[0] == '7' || digits[0] == '1'):
		digits = "254" + digits
	}
	if len(digits) != 12 || !strings.HasPrefix(digits, "254") {
		return ""
	}
	if digits[3] != '7' && digits[3] != '1' {
		return ""
	}
	return digits
}

// IsValidEmail checks for a single well-formed address with a dotted domain
func IsValidEmail(email string) bool {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return false
	}

	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return false
	}

	parts := strings.Split(normalized, "@")
	if len(parts) != 2 {
		return false
	}
	local, domain := parts[0], parts[1]
	return len(local) > 0 && len(domain) > 2 && strings.Contains(domain, ".")
}

// IsValidPhone performs basic phone validation
func IsValidPhone(phone string) bool {
	normalized := NormalizePhone(phone)
	if len(normalized) < 7 {
		return false
	}
	first := rune(normalized[0])
	return first == '+' || unicode.IsDigit(first)
}
