/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

/*
laterbase-discover scans the local network for Laterbase replicas
advertising themselves over mDNS, for operators bootstrapping a peer
list without hardcoding addresses.

Usage:

	laterbase-discover                 # discover replicas (5s timeout)
	laterbase-discover --timeout 10    # custom timeout in seconds
	laterbase-discover --json          # machine-readable output
	laterbase-discover --quiet         # only print dial addresses
*/
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"laterbase/internal/discovery"
	"laterbase/pkg/cli"
)

const version = "0.1.0"

func main() {
	timeout := flag.Int("timeout", 5, "Discovery timeout in seconds")
	jsonOutput := flag.Bool("json", false, "Output as JSON")
	quiet := flag.Bool("quiet", false, "Only output dial addresses (for scripting)")
	help := flag.Bool("help", false, "Show help")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(quiet, "q", false, "Only output dial addresses (for scripting)")
	flag.BoolVar(help, "h", false, "Show help")
	flag.BoolVar(showVersion, "v", false, "Show version information")
	flag.Parse()

	if *help {
		printUsage()
		os.Exit(0)
	}
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// hashicorp/mdns logs IPv6 lookup failures through the stdlib
	// logger even on a successful scan; keep stdout clean of them.
	log.SetOutput(io.Discard)

	if !*quiet && !*jsonOutput {
		printBanner()
		cli.PrintInfo("Scanning for Laterbase replicas (timeout: %ds)...", *timeout)
		fmt.Println()
	}

	nodes, err := discovery.Discover(time.Duration(*timeout) * time.Second)
	if err != nil {
		if !*quiet {
			cli.PrintError("discovery failed: %v", err)
		}
		os.Exit(1)
	}

	if len(nodes) == 0 {
		if !*quiet && !*jsonOutput {
			cli.PrintWarning("No Laterbase replicas found on the network.")
			fmt.Println()
			fmt.Printf("%s\n", cli.Highlight("TROUBLESHOOTING"))
			fmt.Println("  Common issues:")
			fmt.Println("    • Replicas are not running with discovery enabled")
			fmt.Println("    • mDNS/Bonjour is blocked by firewall (UDP port 5353)")
			fmt.Println("    • Replicas are on a different network segment")
			fmt.Println()
			fmt.Println("  Try: laterbase-discover --timeout 10")
			fmt.Println()
		}
		os.Exit(0)
	}

	switch {
	case *jsonOutput:
		outputJSON(nodes)
	case *quiet:
		outputQuiet(nodes)
	default:
		outputHuman(nodes)
	}
}

func printBanner() {
	fmt.Println()
	fmt.Printf("  %s %s\n", cli.Highlight("Laterbase Discover"), cli.Dimmed("v"+version))
	fmt.Printf("  %s\n\n", cli.Dimmed("LAN replica discovery"))
}

func printVersion() {
	fmt.Printf("laterbase-discover version %s\n", version)
}

func printUsage() {
	printBanner()
	fmt.Println("Scans the local network for Laterbase replicas advertising over mDNS.")
	fmt.Println()
	fmt.Println("Usage: laterbase-discover [options]")
	fmt.Println()
	fmt.Printf("%s\n", cli.Highlight("OPTIONS"))
	fmt.Println("    --timeout <seconds>   Discovery timeout (default: 5)")
	fmt.Println("    --json                Output results as JSON")
	fmt.Println("    --quiet, -q           Only output dial addresses (for scripting)")
	fmt.Println("    --version, -v         Show version information")
	fmt.Println("    --help, -h            Show this help message")
	fmt.Println()
}

func outputJSON(nodes []discovery.Node) {
	data, _ := json.MarshalIndent(nodes, "", "  ")
	fmt.Println(string(data))
}

func outputQuiet(nodes []discovery.Node) {
	addrs := make([]string, len(nodes))
	for i, n := range nodes {
		addrs[i] = n.DialAddr
	}
	fmt.Println(strings.Join(addrs, ","))
}

func outputHuman(nodes []discovery.Node) {
	cli.PrintSuccess("Found %d replica(s)", len(nodes))
	fmt.Println()
	for i, n := range nodes {
		fmt.Printf("  [%d] %s\n", i+1, cli.Highlight(n.ReplicaAddr))
		fmt.Printf("      Dial address: %s\n", n.DialAddr)
		fmt.Println()
	}
	fmt.Println(cli.Dimmed("  Tip: use --json for machine-readable output"))
}
