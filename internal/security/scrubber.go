package security

import (
	"regexp"
	"strings"

	"github.com/Shivay00001/aria-runtime/pkg/models"
)

const redacted = "[REDACTED]"

// secretKeySubstrings flags mapping keys whose lowercased name suggests the
// value is a credential.
var secretKeySubstrings = []string{
	"api_key", "apikey", "secret", "password", "token", "authorization",
	"auth", "credential", "private_key", "access_key",
}

// secretValueRe matches provider-key shapes independent of the key name:
// Anthropic/OpenAI style keys, bearer tokens, and long base64 runs.
var secretValueRe = regexp.MustCompile(
	`(sk-ant-[a-zA-Z0-9\-_]{20,}|sk-[a-zA-Z0-9\-_]{20,}|Bearer [a-zA-Z0-9\-_.]{20,}|[A-Za-z0-9+/]{40,}={0,2})`,
)

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range secretKeySubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// ScrubValue redacts a single value: known loaded secrets are substring-
// replaced, then pattern matches are replaced. Maps and slices recurse.
func ScrubValue(value any, known []string) any {
	switch v := value.(type) {
	case string:
		for _, s := range known {
			if s != "" && strings.Contains(v, s) {
				v = strings.ReplaceAll(v, s, redacted)
			}
		}
		return secretValueRe.ReplaceAllString(v, redacted)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, sub := range v {
			if isSecretKey(k) {
				out[k] = redacted
			} else {
				out[k] = ScrubValue(sub, known)
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, sub := range v {
			out[i] = ScrubValue(sub, known)
		}
		return out
	default:
		return value
	}
}

// ScrubRecord redacts a structured log record before emission: keys with
// secret-like names are replaced wholesale, everything else recurses through
// ScrubValue.
func ScrubRecord(record map[string]any, known []string) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		if isSecretKey(k) {
			out[k] = redacted
		} else {
			out[k] = ScrubValue(v, known)
		}
	}
	return out
}

// injectionPatterns is the fixed scan list. Case-insensitive except the
// standalone DAN marker, which is meaningful only in uppercase.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bignore\s+(previous|above|all|prior)\s+(instructions?|prompts?|rules?)\b`),
	regexp.MustCompile(`(?i)\byou\s+are\s+now\b`),
	regexp.MustCompile(`(?i)\bsystem\s*:\s*`),
	regexp.MustCompile(`(?i)\bdisregard\s+(your|all|the)\b`),
	regexp.MustCompile(`(?i)\bforget\s+(your|all|previous)\b`),
	regexp.MustCompile(`(?i)\bnew\s+instructions?\b`),
	regexp.MustCompile(`(?i)\bjailbreak\b`),
	regexp.MustCompile(`\bDAN\b`),
	regexp.MustCompile(`\[INST\]|\[/INST\]`),
}

// ScanResult is the outcome of an injection scan.
type ScanResult struct {
	Clean           bool
	MatchedPatterns []string
}

// ScanForInjection applies the fixed pattern list to text. A hit is advisory;
// callers warn and continue.
func ScanForInjection(text string) ScanResult {
	var matched []string
	for _, p := range injectionPatterns {
		if p.MatchString(text) {
			matched = append(matched, p.String())
		}
	}
	return ScanResult{Clean: len(matched) == 0, MatchedPatterns: matched}
}

// AssertCleanInput returns PromptInjectionWarning when the scan matches.
func AssertCleanInput(text, fieldName string) error {
	r := ScanForInjection(text)
	if !r.Clean {
		return &models.PromptInjectionWarning{Field: fieldName, Patterns: r.MatchedPatterns}
	}
	return nil
}
