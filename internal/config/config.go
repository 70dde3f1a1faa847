/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

/*
Package config holds the replica configuration consumed by
cmd/laterbase-server. Core packages (eventlog, replica, protocol,
storage) never import this package — they take already-validated values
through constructors, keeping the replication core independent of how a
deployment happens to be configured.
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"laterbase/internal/compression"
)

// ReplicaConfig configures one running replica process.
type ReplicaConfig struct {
	// Address identifies this replica to its peers. If empty,
	// DefaultConfig fills in a random one.
	Address string `json:"address"`

	// ListenAddr is the TCP address the replica accepts inbound
	// protocol connections on.
	ListenAddr string `json:"listen_addr"`

	// Peers lists addresses to periodically Sync with (§4.6's
	// deployment pattern), each either a bare hex address (left
	// unroutable until discovery or an operator supplies a dial target)
	// or "hexaddr@host:port" to pin one explicitly.
	Peers []string `json:"peers"`

	// SyncInterval is the period between self-sync rounds.
	SyncInterval time.Duration `json:"sync_interval"`

	// MaxClockSkew bounds how far in the future a locally-minted or
	// peer-supplied EID's timestamp may sit relative to wall-clock now before it is
	// rejected (§3's open question).
	MaxClockSkew time.Duration `json:"max_clock_skew"`

	// MaxInboundConns bounds concurrent inbound TCP connections
	// (internal/transport, via golang.org/x/net/netutil).
	MaxInboundConns int `json:"max_inbound_conns"`

	// StorageDSN selects the persistent backend's data source. Empty
	// means the in-memory backend.
	StorageDSN string `json:"storage_dsn"`

	// Compression configures replication payload compression
	// (internal/compression).
	Compression compression.Config `json:"compression"`

	// LogLevel is one of DEBUG, INFO, WARN, ERROR (case-insensitive).
	LogLevel string `json:"log_level"`

	// LogJSON selects structured JSON log output over the default text
	// format.
	LogJSON bool `json:"log_json"`

	// DiscoveryEnabled turns on LAN peer discovery via mDNS
	// (internal/discovery).
	DiscoveryEnabled bool `json:"discovery_enabled"`
}

// DefaultConfig returns a runnable configuration: a random address, no
// peers, mDNS discovery on, a 5s self-sync interval, and the default
// compression and clock-skew settings.
func DefaultConfig() *ReplicaConfig {
	return &ReplicaConfig{
		Address:          strings.ReplaceAll(uuid.NewString(), "-", ""),
		ListenAddr:       ":7420",
		Peers:            nil,
		SyncInterval:     5 * time.Second,
		MaxClockSkew:     60 * time.Second,
		MaxInboundConns:  256,
		StorageDSN:       "",
		Compression:      compression.DefaultConfig(),
		LogLevel:         "info",
		LogJSON:          false,
		DiscoveryEnabled: true,
	}
}

// Validate checks cfg for internal consistency, returning the first
// problem found.
func (c *ReplicaConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("config: address must not be empty")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen_addr must not be empty")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("config: sync_interval must be positive, got %s", c.SyncInterval)
	}
	if c.MaxClockSkew < 0 {
		return fmt.Errorf("config: max_clock_skew must not be negative, got %s", c.MaxClockSkew)
	}
	if c.MaxInboundConns <= 0 {
		return fmt.Errorf("config: max_inbound_conns must be positive, got %d", c.MaxInboundConns)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}
