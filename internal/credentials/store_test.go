// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package credentials

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetGetDelete(t *testing.T) {
	s := newTestStore(t)

	if _, ok := s.Get("openai"); ok {
		t.Error("expected no secret before Set")
	}

	if err := s.Set("openai", "sk-test-123"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	secret, ok := s.Get("openai")
	if !ok || secret != "sk-test-123" {
		t.Errorf("Get = %q, %v; want sk-test-123, true", secret, ok)
	}

	if err := s.Delete("openai"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := s.Get("openai"); ok {
		t.Error("expected no secret after Delete")
	}
}

func TestEmptySecretNotReported(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("gemini", ""); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok := s.Get("gemini"); ok {
		t.Error("empty secret should not satisfy Get")
	}
	if len(s.Providers()) != 0 {
		t.Errorf("Providers = %v, want empty", s.Providers())
	}
}

func TestPersistAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Set("anthropic", "key-abc"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	secret, ok := reopened.Get("anthropic")
	if !ok || secret != "key-abc" {
		t.Errorf("Get after reopen = %q, %v; want key-abc, true", secret, ok)
	}
}

func TestFingerprintHidesSecret(t *testing.T) {
	s := newTestStore(t)

	if got := s.Fingerprint("grok"); got != "none" {
		t.Errorf("Fingerprint without secret = %q, want none", got)
	}

	if err := s.Set("grok", "xai-secret-value"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	fp := s.Fingerprint("grok")
	if fp == "none" || fp == "" {
		t.Fatal("expected a fingerprint for stored secret")
	}
	if len(fp) != 8 {
		t.Errorf("fingerprint length = %d, want 8 hex chars", len(fp))
	}
	if fp == "xai-secr" {
		t.Error("fingerprint must not expose secret bytes")
	}
}

func TestExternalEditReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	data, err := json.Marshal(map[string]string{"deepseek": "ds-external"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if secret, ok := s.Get("deepseek"); ok && secret == "ds-external" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("external edit was not picked up by the watcher")
}
