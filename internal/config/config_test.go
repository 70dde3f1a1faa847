/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

package config

import "testing"

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig() failed validation: %v", err)
	}
	if cfg.Address == "" {
		t.Error("Address should be populated with a random id")
	}
	if cfg.SyncInterval <= 0 {
		t.Error("SyncInterval should be positive")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*ReplicaConfig)
	}{
		{"empty address", func(c *ReplicaConfig) { c.Address = "" }},
		{"empty listen addr", func(c *ReplicaConfig) { c.ListenAddr = "" }},
		{"zero sync interval", func(c *ReplicaConfig) { c.SyncInterval = 0 }},
		{"negative clock skew", func(c *ReplicaConfig) { c.MaxClockSkew = -1 }},
		{"zero max inbound conns", func(c *ReplicaConfig) { c.MaxInboundConns = 0 }},
		{"unknown log level", func(c *ReplicaConfig) { c.LogLevel = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mut(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() = nil, want error for %s", tt.name)
			}
		})
	}
}
