// polychat - a multi-provider LLM chat client for the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"

	"polychat/internal/cli"
	"polychat/internal/config"
	"polychat/internal/credentials"
	"polychat/internal/gateway"
	"polychat/internal/provider"
	"polychat/internal/reconciler"
	"polychat/internal/store"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "version") {
		fmt.Printf("polychat %s (%s, %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open conversation store: %w", err)
	}
	defer st.Close()

	credPath, err := cfg.CredentialsPath()
	if err != nil {
		return err
	}
	creds, err := credentials.Open(credPath)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	defer creds.Close()

	registry := provider.DefaultRegistry()
	if cfg.Local.OllamaURL != "" {
		registry.Register(provider.NewOllamaAdapter(cfg.Local.OllamaURL))
	}

	gw := gateway.New(registry, creds, cfg.RequestTimeout())

	rec := reconciler.New(st, cfg.Profile, cfg.AutosaveInterval())
	rec.Start()
	defer rec.Stop(context.Background())

	// Terminating signals are handled inside the session so the liner can
	// restore the terminal before the flush.
	session, err := cli.NewSession(cfg, gw, rec, creds)
	if err != nil {
		return err
	}
	return session.Run()
}
