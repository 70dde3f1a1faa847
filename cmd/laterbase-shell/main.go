/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

/*
laterbase-shell is an interactive client for the HTTP surface §6
describes: create named replicas, submit and fetch events, and inspect
replica status against a running laterbase-server.
*/
package main

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"laterbase/pkg/cli"
)

const version = "0.1.0"

func main() {
	baseURL := flag.String("server", "http://localhost:7421", "Base URL of the laterbase-server HTTP surface")
	flag.Parse()

	sh := &shell{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(*baseURL, "/"),
		names:   make(map[string]bool),
	}

	cli.PrintInfo("Laterbase shell %s, connected to %s", version, sh.baseURL)
	cli.PrintInfo("Type 'help' for a list of commands, 'quit' to exit.")

	if err := sh.run(); err != nil && err != io.EOF {
		fmt.Fprintf(os.Stderr, "laterbase-shell: %v\n", err)
		os.Exit(1)
	}
}

// shell holds the REPL's client-side state: the target server and the
// set of database names this session has created or learned about
// (the HTTP surface has no "list names" route, so the shell tracks its
// own working set rather than querying one that doesn't exist).
type shell struct {
	client  *http.Client
	baseURL string
	names   map[string]bool
}

func (s *shell) run() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return s.runPlain()
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "laterbase> ",
		HistoryFile:     historyFilePath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return s.runPlain()
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if s.dispatch(strings.TrimSpace(line)) {
			return nil
		}
	}
}

// runPlain is the fallback loop for non-interactive stdin (a pipe or a
// redirected file), where readline's terminal handling doesn't apply.
func (s *shell) runPlain() error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if s.dispatch(strings.TrimSpace(scanner.Text())) {
			return nil
		}
	}
	return scanner.Err()
}

// dispatch runs one command line and reports whether the shell should
// exit.
func (s *shell) dispatch(line string) bool {
	if line == "" {
		return false
	}
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		s.printHelp()
	case "create":
		s.cmdCreate(args)
	case "info":
		s.cmdInfo(args)
	case "put":
		s.cmdPut(args)
	case "get":
		s.cmdGet(args)
	case "names":
		s.cmdNames()
	default:
		cli.PrintWarning("unknown command %q; type 'help' for a list", cmd)
	}
	return false
}

func (s *shell) printHelp() {
	fmt.Println("Commands:")
	cli.KeyValue("create <name>", "create a new replica", 24)
	cli.KeyValue("info <name>", "show replica status", 24)
	cli.KeyValue("put <name> <value>", "submit an event, prints its EID", 24)
	cli.KeyValue("get <name> <hexid,...>", "fetch events by EID", 24)
	cli.KeyValue("names", "list known replica names", 24)
	cli.KeyValue("quit", "exit the shell", 24)
}

func (s *shell) cmdCreate(args []string) {
	if len(args) != 1 {
		cli.PrintWarning("usage: create <name>")
		return
	}
	name := args[0]
	resp, err := s.client.Post(s.url("/db/"+name), "application/json", nil)
	if err != nil {
		cli.PrintError("create failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		cli.PrintError("create failed: %s", readErrorBody(resp))
		return
	}
	s.names[name] = true
	cli.PrintSuccess("created %q", name)
}

func (s *shell) cmdInfo(args []string) {
	if len(args) != 1 {
		cli.PrintWarning("usage: info <name>")
		return
	}
	name := args[0]
	resp, err := s.client.Get(s.url("/db/" + name))
	if err != nil {
		cli.PrintError("info failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		cli.PrintError("info failed: %s", readErrorBody(resp))
		return
	}

	var info struct {
		Name      string
		Address   string
		HighWater uint64
		PeerCount int
		Backend   struct {
			EventCount uint64
			ChangeLen  uint64
		}
		Compression string
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		cli.PrintError("info: decode response: %v", err)
		return
	}
	s.names[name] = true

	cli.KeyValue("name", info.Name, 12)
	cli.KeyValue("address", info.Address, 12)
	cli.KeyValue("events", humanize.Comma(int64(info.Backend.EventCount)), 12)
	cli.KeyValue("high water", humanize.Comma(int64(info.HighWater)), 12)
	cli.KeyValue("peers", fmt.Sprintf("%d", info.PeerCount), 12)
	cli.KeyValue("compression", info.Compression, 12)
}

func (s *shell) cmdPut(args []string) {
	if len(args) < 2 {
		cli.PrintWarning("usage: put <name> <value>")
		return
	}
	name := args[0]
	value := strings.Join(args[1:], " ")

	body, err := json.Marshal(struct {
		Value string `json:"value"`
	}{Value: base64.StdEncoding.EncodeToString([]byte(value))})
	if err != nil {
		cli.PrintError("put: encode request: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPut, s.url("/db/"+name+"/e"), bytes.NewReader(body))
	if err != nil {
		cli.PrintError("put: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		cli.PrintError("put failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		cli.PrintError("put failed: %s", readErrorBody(resp))
		return
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		cli.PrintError("put: decode response: %v", err)
		return
	}
	s.names[name] = true
	cli.PrintSuccess("submitted, id=%s", out.ID)
}

func (s *shell) cmdGet(args []string) {
	if len(args) != 2 {
		cli.PrintWarning("usage: get <name> <hexid,hexid,...>")
		return
	}
	name, keys := args[0], args[1]

	resp, err := s.client.Get(s.url("/db/" + name + "/e?keys=" + keys))
	if err != nil {
		cli.PrintError("get failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		cli.PrintError("get failed: %s", readErrorBody(resp))
		return
	}

	var events []struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		cli.PrintError("get: decode response: %v", err)
		return
	}

	table := cli.NewTable("ID", "VALUE")
	for _, e := range events {
		raw, err := base64.StdEncoding.DecodeString(e.Value)
		if err != nil {
			table.AddRow(e.ID, "(undecodable)")
			continue
		}
		table.AddRow(e.ID, string(raw))
	}
	table.Print()
}

// cmdNames prints this session's working set of known replica names,
// collated per the user's locale rather than raw byte order (the
// server itself exposes no ordering guarantee over names).
func (s *shell) cmdNames() {
	names := make([]string, 0, len(s.names))
	for n := range s.names {
		names = append(names, n)
	}
	collate.New(language.Und).SortStrings(names)
	for _, n := range names {
		fmt.Println(n)
	}
}

func (s *shell) url(path string) string {
	return s.baseURL + path
}

func readErrorBody(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return resp.Status
	}
	return body.Error
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.laterbase_history"
}
