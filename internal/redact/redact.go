// Package redact removes credentials from strings before they are logged or
// returned in errors. Object locators often carry signed query parameters,
// and storage DSNs carry passwords; neither should reach the logs.
package redact

import (
	"net/url"
	"regexp"
	"strings"
)

// Constants for redaction placeholders
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
)

// sensitiveParams are query parameters whose values are replaced by URL.
// Keys are lower case.
var sensitiveParams = map[string]bool{
	"key":                  true,
	"api_key":              true,
	"apikey":               true,
	"token":                true,
	"access_token":         true,
	"sig":                  true,
	"signature":            true,
	"x-goog-signature":     true,
	"x-goog-credential":    true,
	"x-amz-signature":      true,
	"x-amz-credential":     true,
	"x-amz-security-token": true,
}

// Precompiled regex patterns
var (
	// Connection strings with user info
	dsnRegex = regexp.MustCompile(`(?i)\b(postgres(?:ql)?|https?|file)://[^/@\s]+@`)

	// Credentials and tokens
	passwordRegex = regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]?['"]?)[^'"&\s]{3,}`)
	apiKeyRegex   = regexp.MustCompile(
		`(?i)(api[_-]?key|token|secret|signature)(['"\s:=]+)[A-Za-z0-9_\-.~+/%]{8,}`,
	)
	// Google API keys (Gemini) have a fixed prefix and length.
	googleKeyRegex = regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`)
	bearerRegex    = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.~+/=]{8,}`)

	patterns = []struct {
		re          *regexp.Regexp
		placeholder string
	}{
		{dsnRegex, "${1}://" + RedactedCredentialPlaceholder + "@"},
		{passwordRegex, RedactedCredentialPlaceholder},
		{googleKeyRegex, RedactedKeyPlaceholder},
		{bearerRegex, "Bearer " + RedactedKeyPlaceholder},
		{apiKeyRegex, RedactedKeyPlaceholder},
	}
)

// String redacts sensitive information from the input string
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, p := range patterns {
		result = p.re.ReplaceAllString(result, p.placeholder)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output
func Error(err error) string {
	if err == nil {
		return ""
	}

	return String(err.Error())
}

// URL returns raw with user info and sensitive query values removed. Input
// that does not parse as a URL falls back to String.
func URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme == "" && u.RawQuery == "") {
		return String(raw)
	}

	if u.User != nil {
		u.User = url.User(RedactionPlaceholder)
	}
	if u.RawQuery != "" {
		q := u.Query()
		for name := range q {
			if sensitiveParams[strings.ToLower(name)] {
				q.Set(name, RedactionPlaceholder)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}
