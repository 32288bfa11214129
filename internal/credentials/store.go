// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package credentials holds one API secret per provider name.
package credentials

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"polychat/internal/util"
)

// Store is a file-backed provider -> secret map. Writes go through an
// atomic replace of the whole file; a watcher reloads after external edits
// so reads always observe the latest completed write.
//
// Secrets are opaque to the store. They are never logged; display uses
// Fingerprint.
type Store struct {
	mu      sync.RWMutex
	path    string
	secrets map[string]string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Open loads (or initializes) the credential file at path and starts
// watching it for external modification.
func Open(path string) (*Store, error) {
	s := &Store{
		path:    path,
		secrets: make(map[string]string),
		done:    make(chan struct{}),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	// Watch the parent directory: atomic writes replace the file by
	// rename, which drops a watch placed on the file itself.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch credential directory: %w", err)
	}
	s.watcher = watcher
	go s.watch()

	return s, nil
}

// Close stops the watcher.
func (s *Store) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Get returns the secret for a provider, if one is stored.
func (s *Store) Get(providerName string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, ok := s.secrets[providerName]
	return secret, ok && secret != ""
}

// Set stores a secret for a provider and persists immediately.
func (s *Store) Set(providerName, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[providerName] = secret
	return s.persistLocked()
}

// Delete removes a provider's secret and persists immediately.
func (s *Store) Delete(providerName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, providerName)
	return s.persistLocked()
}

// Providers returns the provider names that currently have a secret.
func (s *Store) Providers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.secrets))
	for name, secret := range s.secrets {
		if secret != "" {
			names = append(names, name)
		}
	}
	return names
}

// Fingerprint returns a short SHA-256 digest of a stored secret for
// display. Never exposes any part of the secret itself.
func (s *Store) Fingerprint(providerName string) string {
	secret, ok := s.Get(providerName)
	if !ok {
		return "none"
	}
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:4])
}

// load reads the credential file into memory. A missing file is an empty
// store, not an error.
func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read credential file: %w", err)
	}

	secrets := make(map[string]string)
	if err := json.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("failed to parse credential file: %w", err)
	}

	s.mu.Lock()
	s.secrets = secrets
	s.mu.Unlock()
	return nil
}

// persistLocked writes the map to disk. Caller holds s.mu.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.secrets, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	// 0600: secrets are readable by the owning user only.
	return util.AtomicWriteFile(s.path, data, 0600)
}

// watch reloads the store when the file changes on disk.
func (s *Store) watch() {
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.load(); err != nil {
				log.Printf("credential reload failed: %v", err)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("credential watcher error: %v", err)
		}
	}
}
