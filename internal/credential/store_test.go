package credential

import (
	"strings"
	"testing"
)

func TestStore_GetCredential_FromEnv(t *testing.T) {
	t.Setenv("RUNNER_TEST_TOKEN", "sekrit-value-123456")

	s := NewStore()
	v, ok := s.GetCredential("github_token", "RUNNER_TEST_TOKEN")
	if !ok {
		t.Fatal("expected credential to resolve from environment")
	}
	if v != "sekrit-value-123456" {
		t.Errorf("value = %q, want %q", v, "sekrit-value-123456")
	}
}

func TestStore_GetCredential_Missing(t *testing.T) {
	s := NewStore()
	_, ok := s.GetCredential("nonexistent", "RUNNER_DOES_NOT_EXIST")
	if ok {
		t.Error("expected missing credential to resolve as not ok")
	}
}

func TestStore_Validate(t *testing.T) {
	s := NewStore()
	s.Add("llm_api_key", "abc123")

	if err := s.Validate([]string{"llm_api_key"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := s.Validate([]string{"llm_api_key", "artifact_store_api_key"})
	if err == nil {
		t.Fatal("expected error for missing required credential")
	}
	if !strings.Contains(err.Error(), "artifact_store_api_key") {
		t.Errorf("error %q should name the missing credential", err.Error())
	}
}

func TestStore_Mask_KnownSecret(t *testing.T) {
	s := NewStore()
	s.Add("token", "abcdefghijklmnopqrstuvwxyz")

	masked := s.Mask("using token abcdefghijklmnopqrstuvwxyz in request")
	if strings.Contains(masked, "abcdefghijklmnopqrstuvwxyz") {
		t.Errorf("masked text still contains secret: %q", masked)
	}
	if !strings.Contains(masked, "abcd***wxyz") {
		t.Errorf("masked text should use first4***last4 form, got %q", masked)
	}
}

func TestStore_Mask_ShortSecret(t *testing.T) {
	s := NewStore()
	s.Add("pin", "123456789")

	masked := s.Mask("pin is 123456789")
	if !strings.Contains(masked, "***") || strings.Contains(masked, "123456789") {
		t.Errorf("short secret should be fully masked, got %q", masked)
	}
}

func TestStore_Mask_Idempotent(t *testing.T) {
	s := NewStore()
	s.Add("token", "abcdefghijklmnopqrstuvwxyz")

	text := `password=hunter2 token=abcdefghijklmnopqrstuvwxyz Bearer zzz.yyy.xxx`
	once := s.Mask(text)
	twice := s.Mask(once)
	if once != twice {
		t.Errorf("Mask is not idempotent:\n  once=%q\n  twice=%q", once, twice)
	}
}

func TestStore_Mask_VCSTokenPrefix(t *testing.T) {
	s := NewStore()
	token := "ghp_" + strings.Repeat("a", 36)

	masked := s.Mask("auth: " + token)
	if strings.Contains(masked, token) {
		t.Errorf("masked text still contains the raw VCS token: %q", masked)
	}
	if !strings.Contains(masked, "gh*_***") {
		t.Errorf("expected gh*_*** replacement, got %q", masked)
	}
}

func TestStore_MaskStructured_SensitiveKeys(t *testing.T) {
	s := NewStore()
	m := map[string]any{
		"api_key":  "super-secret-value",
		"username": "alice",
		"nested": map[string]any{
			"password": "hunter2",
			"note":     "fine",
		},
	}

	masked := s.MaskStructured(m)
	if masked["api_key"] != "***" {
		t.Errorf("api_key should be fully redacted, got %v", masked["api_key"])
	}
	if masked["username"] != "alice" {
		t.Errorf("username should pass through, got %v", masked["username"])
	}
	nested, ok := masked["nested"].(map[string]any)
	if !ok {
		t.Fatal("nested map should remain a map")
	}
	if nested["password"] != "***" {
		t.Errorf("nested password should be redacted, got %v", nested["password"])
	}
	if nested["note"] != "fine" {
		t.Errorf("nested note should pass through, got %v", nested["note"])
	}
}

func TestStore_Clear(t *testing.T) {
	s := NewStore()
	s.Add("token", "abcdefghijklmnopqrstuvwxyz")
	s.Clear()

	masked := s.Mask("token abcdefghijklmnopqrstuvwxyz")
	if !strings.Contains(masked, "abcdefghijklmnopqrstuvwxyz") {
		t.Error("after Clear, previously known secret should no longer be masked")
	}
}
