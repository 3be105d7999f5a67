package credential

import (
	"regexp"
	"sort"
	"strings"
)

// Pattern-based redactions applied after known-secret substitution.
// Each output either matches no pattern or is rewritten to itself when
// matched again, so that Mask is idempotent (spec §8, S6).
var (
	bearerPattern   = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-_.=]+`)
	apiKeyPattern   = regexp.MustCompile(`(?i)(api[_-]?key)\s*=\s*\S+`)
	tokenPattern    = regexp.MustCompile(`(?i)\btoken\s*=\s*\S+`)
	passwordPattern = regexp.MustCompile(`(?i)password\s*=\s*\S+`)
	vcsTokenPattern = regexp.MustCompile(`\b(?:ghp|gho|ghs|ghr)_[A-Za-z0-9]{30,}\b`)
	cloudKeyPattern = regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)
	base64Pattern   = regexp.MustCompile(`"[A-Za-z0-9+/]{40,}={0,2}"`)
)

// maskKnownSecretPrefixedKeys is the set of map-key substrings whose
// presence (case-insensitive) forces MaskStructured to redact a value
// regardless of its content.
var maskKnownSecretPrefixedKeys = []string{"token", "password", "secret", "key", "credential"}

// Mask replaces every value the Store has recorded with a
// first4***last4 form (or *** if the value is 12 characters or
// shorter), then applies pattern-based redaction for bearer tokens,
// api_key/token/password assignments, well-known VCS-host token
// prefixes, cloud access-key formats, and bare base64-like runs
// quoted in text.
func (s *Store) Mask(text string) string {
	if text == "" {
		return text
	}

	secrets := s.secretsSnapshot()
	// Longest-first so a secret that is a substring of another is not
	// partially masked by the shorter one first.
	sort.Slice(secrets, func(i, j int) bool { return len(secrets[i]) > len(secrets[j]) })

	masked := text
	for _, secret := range secrets {
		if secret == "" || !strings.Contains(masked, secret) {
			continue
		}
		masked = strings.ReplaceAll(masked, secret, maskValue(secret))
	}

	masked = bearerPattern.ReplaceAllString(masked, "Bearer ***")
	masked = apiKeyPattern.ReplaceAllString(masked, "$1=***")
	masked = tokenPattern.ReplaceAllString(masked, "token=***")
	masked = passwordPattern.ReplaceAllString(masked, "password=***")
	masked = vcsTokenPattern.ReplaceAllString(masked, "gh*_***")
	masked = cloudKeyPattern.ReplaceAllString(masked, "AKIA***")
	masked = base64Pattern.ReplaceAllString(masked, `"***"`)

	return masked
}

// maskValue implements the first4***last4/*** formula from spec §4.1.
func maskValue(secret string) string {
	if len(secret) > 12 {
		return secret[:4] + "***" + secret[len(secret)-4:]
	}
	return "***"
}

// MaskStructured recursively masks map values: any key whose
// lowercased form contains one of token/password/secret/key/credential
// has its string value replaced by "***" unconditionally; nested maps
// recurse; other keys' string values pass through Mask for known-secret
// and pattern redaction; non-string scalars are copied unchanged.
func (s *Store) MaskStructured(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		switch value := v.(type) {
		case map[string]any:
			out[k] = s.MaskStructured(value)
		case string:
			if isSensitiveKey(k) {
				out[k] = "***"
			} else {
				out[k] = s.Mask(value)
			}
		default:
			out[k] = v
		}
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range maskKnownSecretPrefixedKeys {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
