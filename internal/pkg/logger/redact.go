package logger

import (
	"regexp"
	"strings"
)

// Bot API URLs embed the token in the path: /bot<token>/sendMessage.
var botTokenRegex = regexp.MustCompile(`/bot\d+:[A-Za-z0-9_-]+/`)

var secretKeys = []string{"token", "api_key", "apikey", "secret", "authorization", "password"}

func redactValue(key, val string) string {
	k := strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(k, s) {
			return RedactSecret(val)
		}
	}
	return botTokenRegex.ReplaceAllString(val, "/bot***/")
}

// RedactSecret masks a credential for safe logging, keeping the last four
// characters. "123456:AAHdq..." → "***...q4x7". Short values are fully masked.
func RedactSecret(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return "***" + s[len(s)-4:]
}
