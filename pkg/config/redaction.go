package config

import "regexp"

// RedactionRule masks one kind of secret in free text.
type RedactionRule struct {
	Pattern *regexp.Regexp
	Replace string
}

// ConnectionRedactions mask passwords in ADO-style key/value connection
// strings and in URL user info.
var ConnectionRedactions = []RedactionRule{
	{Pattern: regexp.MustCompile(`(?i)\b(password|pwd)\s*=\s*[^;]*`), Replace: "${1}=***"},
	{Pattern: regexp.MustCompile(`(://[^:/@\s]+:)[^@\s]+@`), Replace: "${1}***@"},
}

// Redact applies every rule to s.
func Redact(s string, rules []RedactionRule) string {
	for _, r := range rules {
		s = r.Pattern.ReplaceAllString(s, r.Replace)
	}
	return s
}

// Redacted returns the connection string with its password masked.
func (c *Config) Redacted() string {
	return Redact(c.ConnectionString, ConnectionRedactions)
}
