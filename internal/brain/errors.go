package brain

import "strings"

var terminalPatterns = []string{
	"401", "403",
	"unauthorized", "forbidden",
	"invalid api key", "credential",
	"invalid argument", "invalid_request",
}

var rateLimitPatterns = []string{
	"429", "rate limit", "too many requests", "quota",
}

// IsTerminal reports whether an LLM error is an authentication or argument
// class failure that retrying cannot fix.
func IsTerminal(err error) bool {
	return matchesAny(err, terminalPatterns)
}

// IsRateLimited reports whether an LLM error is a rate-limit class failure.
func IsRateLimited(err error) bool {
	return matchesAny(err, rateLimitPatterns)
}

func matchesAny(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range patterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
