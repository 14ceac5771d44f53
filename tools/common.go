package tools

import (
	"os"
	"strings"
)

func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func GetEnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes"
}

// CommandPayload returns the text after the command word, trimmed.
// "/ban 42 now" -> "42 now", "/ban" -> "".
func CommandPayload(text string) string {
	_, rest, ok := strings.Cut(text, " ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(rest)
}

// SplitPipe splits a command payload on '|' and trims every part.
// Empty parts are kept so positional arguments stay positional.
func SplitPipe(s string) []string {
	parts := strings.Split(s, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// ParseBoolFlag accepts 0/1, true/false and yes/no.
func ParseBoolFlag(s string) (val, ok bool) {
	switch strings.ToLower(s) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	}
	return false, false
}
