/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"laterbase/internal/address"
	"laterbase/internal/compression"
	"laterbase/internal/logging"
	"laterbase/internal/protocol"
)

var log = logging.NewLogger("transport")

// frame layout on the wire: length (u32 BE, covers everything after
// itself) | algo (1 byte) | compressed protocol message.
const lengthPrefixSize = 4

// TCPConfig configures a TCPTransport.
type TCPConfig struct {
	// ListenAddr is the local address to accept connections on, e.g.
	// ":7420".
	ListenAddr string
	// MaxConns bounds concurrent inbound connections via
	// golang.org/x/net/netutil.LimitListener.
	MaxConns int
	// DialTimeout bounds outbound connection attempts.
	DialTimeout time.Duration
	// Compression configures payload compression for outbound sends.
	Compression compression.Config
}

// TCPTransport is a Transport over plain TCP, grounded on the dial/
// accept/length-prefixed-frame pattern used for gossip elsewhere in
// this codebase, generalised to carry protocol.Message frames instead
// of JSON.
type TCPTransport struct {
	cfg        TCPConfig
	listener   net.Listener
	compressor *compression.Compressor
	algo       compression.Algorithm

	mu      sync.RWMutex
	routes  map[address.Address]string // peer address -> dial target "host:port"
	inbox   chan Delivery
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewTCPTransport starts listening on cfg.ListenAddr and returns a
// TCPTransport ready to accept and send.
func NewTCPTransport(cfg TCPConfig) (*TCPTransport, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 256
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", cfg.ListenAddr, err)
	}
	bounded := netutil.LimitListener(ln, cfg.MaxConns)

	t := &TCPTransport{
		cfg:        cfg,
		listener:   bounded,
		compressor: compression.NewCompressor(cfg.Compression),
		algo:       cfg.Compression.Algorithm,
		routes:     make(map[address.Address]string),
		inbox:      make(chan Delivery, 256),
		stopCh:     make(chan struct{}),
	}

	t.wg.Add(1)
	go t.acceptLoop()

	log.Info("tcp transport listening", "addr", cfg.ListenAddr, "max_conns", cfg.MaxConns)
	return t, nil
}

// AddRoute records the dial target for a peer address. Sends to an
// address with no route are silently dropped, matching the switchboard
// transport and §4.6's best-effort semantics.
func (t *TCPTransport) AddRoute(addr address.Address, dialTarget string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[addr] = dialTarget
}

func (t *TCPTransport) routeFor(addr address.Address) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	target, ok := t.routes[addr]
	return target, ok
}

// HasRoute reports whether addr has a registered dial target, letting
// callers that hold several transports decide which one to send through.
func (t *TCPTransport) HasRoute(addr address.Address) bool {
	_, ok := t.routeFor(addr)
	return ok
}

func (t *TCPTransport) Send(ctx context.Context, dest address.Address, msg protocol.Message) error {
	target, ok := t.routeFor(dest)
	if !ok {
		log.Debug("no route, dropping", "dest", dest.String())
		return nil
	}

	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, t.cfg.DialTimeout)
	defer cancel()
	conn, err := d.DialContext(dialCtx, "tcp", target)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", target, err)
	}
	defer conn.Close()

	return t.writeFrame(conn, msg)
}

func (t *TCPTransport) writeFrame(w io.Writer, msg protocol.Message) error {
	var raw bytes.Buffer
	if err := protocol.Encode(&raw, msg); err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}

	compressed, err := t.compressor.Compress(raw.Bytes())
	if err != nil {
		return fmt.Errorf("transport: compress: %w", err)
	}

	header := make([]byte, lengthPrefixSize+1)
	binary.BigEndian.PutUint32(header[:lengthPrefixSize], uint32(len(compressed)+1))
	header[lengthPrefixSize] = byte(t.algo)
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err = w.Write(compressed)
	return err
}

func (t *TCPTransport) readFrame(r io.Reader) (protocol.Message, error) {
	var header [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n == 0 {
		return nil, fmt.Errorf("transport: empty frame")
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	algo := compression.Algorithm(body[0])
	raw, err := t.compressor.Decompress(body[1:], algo)
	if err != nil {
		return nil, fmt.Errorf("transport: decompress: %w", err)
	}
	return protocol.Decode(bytes.NewReader(raw))
}

func (t *TCPTransport) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.stopCh:
				return
			default:
				log.Warn("accept failed", "error", err.Error())
				continue
			}
		}
		t.wg.Add(1)
		go t.handleConn(conn)
	}
}

func (t *TCPTransport) handleConn(conn net.Conn) {
	defer t.wg.Done()
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	msg, err := t.readFrame(conn)
	if err != nil {
		log.Warn("read frame failed", "remote", conn.RemoteAddr().String(), "error", err.Error())
		return
	}

	select {
	case t.inbox <- Delivery{Msg: msg}:
	case <-t.stopCh:
	}
}

func (t *TCPTransport) Inbox() <-chan Delivery {
	return t.inbox
}

func (t *TCPTransport) Close() error {
	close(t.stopCh)
	err := t.listener.Close()
	t.wg.Wait()
	return err
}
