/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

/*
Package server implements the HTTP/CLI surface §1 and §6 name as an
external collaborator of the replication core: a Host multiplexes any
number of named replicas inside one process, each with its own address,
event log and storage backend, routed `POST /db/:name`, `GET
/db/:name`, `PUT /db/:name/e`, `GET /db/:name/e?keys=…` (§6).

A Host's one configured replica (Config.Address) is the only one
bridged to the network transport; additional names created at runtime
share the process's in-memory Switchboard and are reachable from each
other and from the primary, but not from other processes — multi-host
deployments run one primary replica per process, exactly as other
processes run their own.
*/
package server

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"laterbase/internal/address"
	"laterbase/internal/config"
	"laterbase/internal/eid"
	"laterbase/internal/eventlog"
	"laterbase/internal/logging"
	"laterbase/internal/protocol"
	"laterbase/internal/replica"
	"laterbase/internal/storage"
	"laterbase/internal/transport"
)

var log = logging.NewLogger("server")

// Info reports one named replica's status for GET /db/:name (§6).
type Info struct {
	Name        string
	Address     string
	Backend     storage.Stats
	HighWater   uint64
	PeerCount   int
	Compression string
}

type dbEntry struct {
	name     string
	addr     address.Address
	backend  storage.Backend
	log      *eventlog.Log
	replica  *replica.Replica
	endpoint *transport.Endpoint
	cancel   context.CancelFunc
}

// Host owns the process's shared transport fabric and every named
// replica created on it.
type Host struct {
	cfg   config.ReplicaConfig
	board *transport.Switchboard
	tcp   *transport.TCPTransport // nil if cfg.ListenAddr is unset

	mu  sync.RWMutex
	dbs map[string]*dbEntry
}

// NewHost builds a Host from cfg. If cfg.ListenAddr is non-empty, the
// primary replica (named after cfg.Address) is bridged to the network
// over TCP; peers are dialed using the "hexaddr@host:port" pairs in
// cfg.Peers (a bare hexaddr is accepted too, left unroutable until
// internal/discovery or AddPeerRoute supplies a dial target).
func NewHost(cfg config.ReplicaConfig) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("server: invalid config: %w", err)
	}

	h := &Host{
		cfg:   cfg,
		board: transport.NewSwitchboard(256),
		dbs:   make(map[string]*dbEntry),
	}

	if cfg.ListenAddr != "" {
		tcp, err := transport.NewTCPTransport(transport.TCPConfig{
			ListenAddr:  cfg.ListenAddr,
			MaxConns:    cfg.MaxInboundConns,
			Compression: cfg.Compression,
		})
		if err != nil {
			return nil, err
		}
		h.tcp = tcp
	}

	primaryAddr, err := address.Parse(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("server: parse address %q: %w", cfg.Address, err)
	}

	peers, routes, err := parsePeers(cfg.Peers)
	if err != nil {
		return nil, err
	}
	if h.tcp != nil {
		for addr, target := range routes {
			h.tcp.AddRoute(addr, target)
		}
		go h.bridgeInbound(primaryAddr)
	}

	if err := h.create(cfg.Address, primaryAddr, peers); err != nil {
		return nil, err
	}
	return h, nil
}

// bridgeInbound forwards every message the TCP transport accepts into
// the primary replica's switchboard mailbox; the primary is the only
// name a remote process can address, so no further demultiplexing is
// needed.
func (h *Host) bridgeInbound(primary address.Address) {
	for d := range h.tcp.Inbox() {
		if err := h.board.Deliver(context.Background(), primary, d.Msg); err != nil {
			log.Warn("bridge: deliver failed", "error", err.Error())
		}
	}
}

func parsePeers(raw []string) ([]address.Address, map[address.Address]string, error) {
	peers := make([]address.Address, 0, len(raw))
	routes := make(map[address.Address]string, len(raw))
	for _, p := range raw {
		hexAddr, target, _ := strings.Cut(p, "@")
		addr, err := address.Parse(hexAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("server: parse peer %q: %w", p, err)
		}
		peers = append(peers, addr)
		if target != "" {
			routes[addr] = target
		}
	}
	return peers, routes, nil
}

// Create registers a new named replica. name also becomes its address
// unless it parses as a hex address already (letting operators pin an
// explicit identity).
func (h *Host) Create(name string) error {
	addr, err := address.Parse(name)
	if err != nil {
		addr = address.FromBytes([]byte(name))
	}
	return h.create(name, addr, nil)
}

func (h *Host) create(name string, addr address.Address, peers []address.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.dbs[name]; exists {
		return fmt.Errorf("server: database %q already exists", name)
	}

	backend, err := h.openBackend(name)
	if err != nil {
		return err
	}
	evlog := eventlog.New(backend)
	endpoint := h.board.Register(addr)

	var sender replica.Sender = endpoint
	if h.tcp != nil {
		sender = &compositeSender{local: endpoint, tcp: h.tcp, self: addr}
	}

	r := replica.New(replica.Config{
		Self:         addr,
		Peers:        peers,
		SyncInterval: h.cfg.SyncInterval,
		MaxClockSkew: h.cfg.MaxClockSkew,
	}, evlog, sender, endpoint.Inbox())

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	h.dbs[name] = &dbEntry{name: name, addr: addr, backend: backend, log: evlog, replica: r, endpoint: endpoint, cancel: cancel}
	return nil
}

func (h *Host) openBackend(name string) (storage.Backend, error) {
	if h.cfg.StorageDSN == "" {
		return storage.NewMemoryBackend(name), nil
	}
	dsn := h.cfg.StorageDSN
	if dsn != ":memory:" {
		dsn = dsn + "-" + name
	}
	return storage.OpenSQLiteBackend(name, storage.SQLiteConfig{DSN: dsn})
}

// compositeSender prefers the network transport when dest has a
// registered dial route, falling back to the in-process switchboard for
// sibling databases hosted in this same process.
type compositeSender struct {
	local *transport.Endpoint
	tcp   *transport.TCPTransport
	self  address.Address
}

func (c *compositeSender) Send(ctx context.Context, dest address.Address, msg protocol.Message) error {
	if dest != c.self && c.tcp.HasRoute(dest) {
		return c.tcp.Send(ctx, dest, msg)
	}
	return c.local.Send(ctx, dest, msg)
}

// AddPeerRoute wires a dial target for addr on the host's network
// transport and adds addr to the primary replica's peer list, for discovery (§4.6) to
// call as it learns about replicas on the LAN. A no-op if the host has
// no network transport.
func (h *Host) AddPeerRoute(addr address.Address, dialTarget string) {
	if h.tcp == nil {
		return
	}
	h.tcp.AddRoute(addr, dialTarget)
	if primary, err := h.get(h.cfg.Address); err == nil {
		primary.replica.AddPeer(addr)
	}
}

func (h *Host) get(name string) (*dbEntry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.dbs[name]
	if !ok {
		return nil, fmt.Errorf("server: no database named %q", name)
	}
	return e, nil
}

// Info reports name's status for GET /db/:name.
func (h *Host) Info(name string) (Info, error) {
	e, err := h.get(name)
	if err != nil {
		return Info{}, err
	}
	stats, err := e.log.Stats()
	if err != nil {
		return Info{}, err
	}
	hw, err := e.log.HighWater()
	if err != nil {
		return Info{}, err
	}
	return Info{
		Name:        name,
		Address:     e.addr.String(),
		Backend:     stats,
		HighWater:   hw,
		PeerCount:   stats.PeerCount,
		Compression: h.cfg.Compression.Algorithm.String(),
	}, nil
}

// Submit asks name's replica to mint value as a new local event,
// PUT /db/:name/e.
func (h *Host) Submit(ctx context.Context, name string, value []byte) (eid.ID, error) {
	e, err := h.get(name)
	if err != nil {
		return eid.Zero, err
	}
	return e.replica.Submit(ctx, value)
}

// Fetch reads each key's value from name's event log,
// GET /db/:name/e?keys=…. Missing keys are simply absent from the
// result, not an error.
func (h *Host) Fetch(name string, keys []eid.ID) ([]protocol.Event, error) {
	e, err := h.get(name)
	if err != nil {
		return nil, err
	}
	out := make([]protocol.Event, 0, len(keys))
	for _, k := range keys {
		val, ok, err := e.log.GetEvent(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, protocol.Event{ID: k, Value: val})
		}
	}
	return out, nil
}

// Names lists every currently-hosted database name.
func (h *Host) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.dbs))
	for n := range h.dbs {
		names = append(names, n)
	}
	return names
}

// Close stops every hosted replica and releases its backend and
// transport resources.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var firstErr error
	for _, e := range h.dbs {
		e.cancel()
		e.endpoint.Close()
		if err := e.backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if h.tcp != nil {
		if err := h.tcp.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
