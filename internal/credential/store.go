// Package credential resolves secret values from the environment or
// mounted files and scrubs them from every string a Runner emits. It
// is pure in-memory string processing, consistent with the teacher's
// convention of reading configuration from the environment with a
// documented fallback, never a network call.
package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ErrCredentialMissing is returned by Validate for each name in the
// required set that has no resolved value.
var ErrCredentialMissing = errors.New("credential missing")

// Store resolves named credentials and accumulates a mask set: the
// growing collection of secret values that Mask and MaskStructured
// must scrub from any text passed through them.
type Store struct {
	mu sync.RWMutex

	values     map[string]string
	fileMounts map[string]string
	maskSet    map[string]struct{}
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		values:     make(map[string]string),
		fileMounts: make(map[string]string),
		maskSet:    make(map[string]struct{}),
	}
}

// ConfigureFileMount registers path as the file-mount location to
// consult for name when GetCredential finds no matching environment
// variable.
func (s *Store) ConfigureFileMount(name, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileMounts[name] = path
}

// GetCredential resolves name: first via envVar (if non-empty) or a
// same-named environment variable, falling back to a configured
// file mount. File contents are read once, trimmed of trailing
// whitespace, and rejected if empty. The resolved value (if any) is
// added to the mask set. ok is false if nothing resolves; this is not
// an error on its own — Validate raises for required-but-missing names.
func (s *Store) GetCredential(name, envVar string) (value string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, exists := s.values[name]; exists {
		return cached, true
	}

	key := envVar
	if key == "" {
		key = name
	}

	if v := os.Getenv(key); v != "" {
		s.values[name] = v
		s.maskSet[v] = struct{}{}
		return v, true
	}

	if path, exists := s.fileMounts[name]; exists {
		raw, err := os.ReadFile(path)
		if err == nil {
			v := strings.TrimRight(string(raw), "\r\n\t ")
			if v != "" {
				s.values[name] = v
				s.maskSet[v] = struct{}{}
				return v, true
			}
		}
	}

	return "", false
}

// Add records value under name directly, without touching the
// environment or filesystem, and adds it to the mask set. Useful for
// credentials handed in by the dispatcher rather than resolved locally.
func (s *Store) Add(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		return
	}
	s.values[name] = value
	s.maskSet[value] = struct{}{}
}

// Validate raises ErrCredentialMissing, wrapped per-name, for every
// name in required that GetCredential has not already resolved.
func (s *Store) Validate(required []string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var missing []string
	for _, name := range required {
		if _, ok := s.values[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrCredentialMissing, strings.Join(missing, ", "))
}

// Clear resets both the resolved-value map and the mask set. Called on
// Orchestrator exit so credentials do not outlive the task that needed
// them.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
	s.fileMounts = make(map[string]string)
	s.maskSet = make(map[string]struct{})
}

// secretsSnapshot returns a defensive copy of the current mask set's
// keys, for use outside the lock.
func (s *Store) secretsSnapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.maskSet))
	for v := range s.maskSet {
		out = append(out, v)
	}
	return out
}
