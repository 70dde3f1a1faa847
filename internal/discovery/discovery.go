/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

/*
Package discovery provides LAN peer discovery for Laterbase replicas via
mDNS (Bonjour/Avahi), an operational convenience layered on top of the
core: it only ever populates the Peers a replica's periodic self-sync
loop (§4.6) dials, it never participates in the replication protocol
itself.
*/
package discovery

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"

	"laterbase/internal/logging"
)

var log = logging.NewLogger("discovery")

const serviceName = "_laterbase._tcp"

// Node describes one replica discovered on the LAN.
type Node struct {
	ReplicaAddr string // Laterbase replica address, hex-encoded
	DialAddr    string // host:port to reach its transport
}

// Config configures advertising and discovery.
type Config struct {
	// ReplicaAddr is this replica's address (hex), advertised in the
	// mDNS TXT record so peers can map a discovered host:port back to
	// a Laterbase address.
	ReplicaAddr string
	// ListenPort is the TCP port the transport listens on, advertised
	// for peers to dial.
	ListenPort int
	// Enabled turns on advertising; discovery (the client side) always
	// works regardless of this flag.
	Enabled bool
}

// Advertiser broadcasts this replica's presence over mDNS.
type Advertiser struct {
	server *mdns.Server
}

// Advertise starts broadcasting cfg over mDNS. Call Close to stop.
func Advertise(cfg Config) (*Advertiser, error) {
	if !cfg.Enabled {
		return &Advertiser{}, nil
	}

	info := []string{"addr=" + cfg.ReplicaAddr}
	service, err := mdns.NewMDNSService(
		cfg.ReplicaAddr, serviceName, "", "", cfg.ListenPort, nil, info)
	if err != nil {
		return nil, fmt.Errorf("discovery: build service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("discovery: start server: %w", err)
	}

	log.Info("advertising on LAN", "addr", cfg.ReplicaAddr, "port", cfg.ListenPort)
	return &Advertiser{server: server}, nil
}

// Close stops advertising.
func (a *Advertiser) Close() error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown()
}

// Discover scans the LAN for Laterbase replicas for the given timeout.
func Discover(timeout time.Duration) ([]Node, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	var nodes []Node
	done := make(chan struct{})

	go func() {
		defer close(done)
		for e := range entries {
			nodes = append(nodes, entryToNode(e))
		}
	}()

	params := mdns.DefaultParams(serviceName)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	if err := mdns.Query(params); err != nil {
		close(entries)
		<-done
		return nil, fmt.Errorf("discovery: query: %w", err)
	}
	close(entries)
	<-done

	return nodes, nil
}

func entryToNode(e *mdns.ServiceEntry) Node {
	addr := ""
	for _, field := range e.InfoFields {
		if rest, ok := strings.CutPrefix(field, "addr="); ok {
			addr = rest
		}
	}
	host := e.AddrV4.String()
	if host == "" || host == "<nil>" {
		host = e.Host
	}
	return Node{
		ReplicaAddr: addr,
		DialAddr:    host + ":" + strconv.Itoa(e.Port),
	}
}
