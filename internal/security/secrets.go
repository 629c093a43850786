// Package security provides the secrets loader, the log scrubber, and the
// prompt-injection scanner. The loader and the scrubber's known-secret set
// are initialized once at startup and referenced read-only afterward.
package security

import (
	"os"
	"strings"
	"sync"

	"github.com/Shivay00001/aria-runtime/pkg/models"
)

// minKnownSecretLength is the shortest loaded value the scrubber will
// substring-replace. Anything shorter produces too many false positives.
const minKnownSecretLength = 4

// SecretsLoader reads secrets from the environment, caching values so the
// scrubber can redact them wherever they appear in log output.
type SecretsLoader struct {
	mu     sync.Mutex
	loaded map[string]string
}

// NewSecretsLoader creates an empty loader.
func NewSecretsLoader() *SecretsLoader {
	return &SecretsLoader{loaded: map[string]string{}}
}

// Require returns the named env var, trimmed. Missing values yield
// SecretNotFoundError; values shorter than minLength yield SecretInvalidError.
func (l *SecretsLoader) Require(envKey string, minLength int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.loaded[envKey]; ok {
		return v, nil
	}
	value, ok := os.LookupEnv(envKey)
	if !ok {
		return "", &models.SecretNotFoundError{Key: envKey}
	}
	value = strings.TrimSpace(value)
	if len(value) < minLength {
		return "", &models.SecretInvalidError{Key: envKey, Length: len(value)}
	}
	l.loaded[envKey] = value
	return value, nil
}

// Optional returns the named env var or the default when unset or blank.
// Non-blank values are remembered for scrubbing.
func (l *SecretsLoader) Optional(envKey, def string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.loaded[envKey]; ok {
		return v
	}
	value := strings.TrimSpace(os.Getenv(envKey))
	if value == "" {
		return def
	}
	l.loaded[envKey] = value
	return value
}

// KnownValues returns every loaded secret long enough to scrub.
func (l *SecretsLoader) KnownValues() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.loaded))
	for _, v := range l.loaded {
		if len(v) >= minKnownSecretLength {
			out = append(out, v)
		}
	}
	return out
}

var (
	loaderOnce sync.Once
	loader     *SecretsLoader
)

// Secrets returns the process-wide loader.
func Secrets() *SecretsLoader {
	loaderOnce.Do(func() { loader = NewSecretsLoader() })
	return loader
}
