package logging

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxFieldLength is the longest free-text value written to a log field.
	MaxFieldLength = 100
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Bearer tokens (three base64 segments separated by dots)
	jwtPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)

	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key|token)=[A-Za-z0-9-_.]{8,}`)

	// user:pass@host
	userinfoPattern = regexp.MustCompile(`://[^:/\s]+:[^@/\s]+@`)
)

// sensitiveParams are query parameters whose values never reach the logs.
var sensitiveParams = []string{"password", "pass", "pwd", "token", "key", "api_key", "apikey", "secret"}

// SanitizeURL strips userinfo and sensitive query values from rawURL.
// Unparseable input is returned with credential patterns redacted.
func SanitizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return redactPatterns(rawURL)
	}
	if u.User != nil {
		u.User = url.User(RedactedText)
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			for _, p := range sensitiveParams {
				if strings.EqualFold(k, p) {
					q.Set(k, RedactedText)
				}
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// SanitizeUsername keeps enough of a username to correlate log lines
// (first rune plus length) without writing the full account name.
func SanitizeUsername(username string) string {
	username = strings.TrimSpace(username)
	if username == "" {
		return ""
	}
	first, _ := utf8.DecodeRuneInString(username)
	n := utf8.RuneCountInString(username)
	if n == 1 {
		return "*"
	}
	return string(first) + strings.Repeat("*", min(n-1, 8))
}

// SanitizeError sanitizes error messages that might contain sensitive data.
// Use this before logging errors from the scraper or the summarizer client.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return redactPatterns(err.Error())
}

func redactPatterns(s string) string {
	s = passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = jwtPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = apiKeyPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = userinfoPattern.ReplaceAllString(s, "://"+RedactedText+"@")
	return s
}

// TruncateString truncates s to maxLen runes and adds an ellipsis if needed.
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
