package apiwatch

import (
	"net/url"
	"strings"
)

// matchURL checks whether a request URL matches a resource's glob-style
// pattern. Matching is performed against host + path of the URL. A scheme
// on the pattern is ignored so "https://api.stripe.com/*" works as well.
//
// Supported patterns:
//   - "api.stripe.com/*" matches any path on that host
//   - "api.openai.com/v1/chat/*" matches only chat endpoints
//   - "*.googleapis.com/*" matches any subdomain
//   - "api.example.com/v1/specific" exact match
func matchURL(rawURL string, pattern string) bool {
	if pattern == "" {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	hostPath := strings.ToLower(parsed.Host) + parsed.Path
	hostPath = strings.TrimRight(hostPath, "/")

	if i := strings.Index(pattern, "://"); i >= 0 {
		pattern = pattern[i+3:]
	}
	pattern = strings.TrimRight(pattern, "/")
	if host, path, ok := strings.Cut(pattern, "/"); ok {
		pattern = strings.ToLower(host) + "/" + path
	} else {
		pattern = strings.ToLower(pattern)
	}

	return globMatch(pattern, hostPath)
}

// globMatch treats a trailing "/*" as "this prefix and everything below it"
// and otherwise falls back to wildcardMatch.
func globMatch(pattern, value string) bool {
	if pattern == value {
		return true
	}

	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if value == prefix || strings.HasPrefix(value, prefix+"/") {
			return true
		}
		if strings.Contains(prefix, "*") {
			host, _, _ := strings.Cut(value, "/")
			if wildcardMatch(prefix, host) {
				return true
			}
		}
	}

	return wildcardMatch(pattern, value)
}

// wildcardMatch handles * as matching any sequence of characters.
func wildcardMatch(pattern, str string) bool {
	for len(pattern) > 0 {
		if pattern[0] == '*' {
			pattern = pattern[1:]
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(str); i++ {
				if wildcardMatch(pattern, str[i:]) {
					return true
				}
			}
			return false
		}

		if len(str) == 0 || pattern[0] != str[0] {
			return false
		}
		pattern = pattern[1:]
		str = str[1:]
	}

	return len(str) == 0
}
