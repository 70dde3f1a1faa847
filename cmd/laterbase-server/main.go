/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

/*
laterbase-server hosts one or more named Laterbase replicas behind the
HTTP surface §6 describes, optionally advertising and discovering peers
over mDNS (internal/discovery) and gossiping with them over TCP
(internal/transport).
*/
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"laterbase/internal/address"
	"laterbase/internal/config"
	"laterbase/internal/discovery"
	"laterbase/internal/logging"
	"laterbase/internal/server"
)

func main() {
	cfgPath := flag.String("config", "", "Path to a JSON config file (optional; flags override its values)")
	addr := flag.String("address", "", "This replica's address (hex); random if unset")
	listenAddr := flag.String("listen", ":7420", "TCP address for replication traffic")
	httpAddr := flag.String("http", ":7421", "HTTP address for the db surface")
	peers := flag.String("peers", "", "Comma-separated hexaddr[@host:port] peer list")
	storageDSN := flag.String("storage", "", "Storage DSN (empty selects the in-memory backend)")
	logLevel := flag.String("log-level", "info", "DEBUG, INFO, WARN or ERROR")
	logJSON := flag.Bool("log-json", false, "Emit logs as newline-delimited JSON")
	discoveryEnabled := flag.Bool("discovery", true, "Advertise and discover peers via mDNS")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *cfgPath != "" {
		if err := loadConfigFile(*cfgPath, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "laterbase-server: %v\n", err)
			os.Exit(1)
		}
	}
	if *addr != "" {
		cfg.Address = *addr
	}
	cfg.ListenAddr = *listenAddr
	if *peers != "" {
		cfg.Peers = strings.Split(*peers, ",")
	}
	cfg.StorageDSN = *storageDSN
	cfg.LogLevel = *logLevel
	cfg.LogJSON = *logJSON
	cfg.DiscoveryEnabled = *discoveryEnabled

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "laterbase-server: invalid config: %v\n", err)
		os.Exit(1)
	}

	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetJSONMode(cfg.LogJSON)
	log := logging.NewLogger("laterbase-server")

	host, err := server.NewHost(*cfg)
	if err != nil {
		log.Error("failed to start host", "error", err.Error())
		os.Exit(1)
	}
	defer host.Close()

	log.Info("replica started", "address", cfg.Address, "listen", cfg.ListenAddr, "http", *httpAddr)

	var advertiser *discovery.Advertiser
	if cfg.DiscoveryEnabled {
		port, perr := listenPort(cfg.ListenAddr)
		if perr != nil {
			log.Warn("discovery: could not parse listen port, advertising disabled", "error", perr.Error())
		} else {
			advertiser, err = discovery.Advertise(discovery.Config{
				ReplicaAddr: cfg.Address,
				ListenPort:  port,
				Enabled:     true,
			})
			if err != nil {
				log.Warn("discovery: advertise failed", "error", err.Error())
			} else {
				defer advertiser.Close()
				go runDiscoveryLoop(host, cfg.Address, log)
			}
		}
	}

	httpServer := &http.Server{Addr: *httpAddr, Handler: server.NewMux(host)}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err.Error())
		}
	}()

	info, err := host.Info(cfg.Address)
	if err == nil {
		log.Info("primary replica ready", "events", humanize.Comma(int64(info.Backend.EventCount)),
			"peers", info.PeerCount, "compression", info.Compression)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
}

// runDiscoveryLoop refreshes peer routes from mDNS every 30s so newly
// joined replicas become reachable without a restart.
func runDiscoveryLoop(host *server.Host, self string, log *logging.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		nodes, err := discovery.Discover(3 * time.Second)
		if err != nil {
			log.Debug("discovery: scan failed", "error", err.Error())
			continue
		}
		for _, n := range nodes {
			if n.ReplicaAddr == self {
				continue
			}
			addr, err := address.Parse(n.ReplicaAddr)
			if err != nil {
				continue
			}
			host.AddPeerRoute(addr, n.DialAddr)
		}
	}
}

func listenPort(listenAddr string) (int, error) {
	_, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}

func loadConfigFile(path string, cfg *config.ReplicaConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}
