package masking

import "strings"

const maskToken = "****"

// MaskReference redacts an external payment reference, keeping the last four
// characters so staff can still match it against a bank statement.
func MaskReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}
