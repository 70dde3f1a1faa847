/*
 * Copyright (c) 2026 The Laterbase Authors.
 * Licensed under the Apache License, Version 2.0
 */

/*
Package replica implements C4, the replica actor: a single-threaded
cooperative loop that owns one event log, this replica's own address,
and a send capability over the transport (§4.4, §5).

Run processes exactly one inbound message to completion before starting
the next — there is no internal lock, because §5 assigns the log
exclusively to the actor that owns it. Local submissions (minting new
events) and the periodic self-sync tick arrive on their own channels but
are received by the same select loop as inbound network messages, so
they are serialised with everything else rather than racing the message
loop.
*/
package replica

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"laterbase/internal/address"
	"laterbase/internal/eid"
	laterrors "laterbase/internal/errors"
	"laterbase/internal/eventlog"
	"laterbase/internal/logging"
	"laterbase/internal/protocol"
	"laterbase/internal/transport"
)

var log = logging.NewLogger("replica")

// Sender is the outbound half of a Transport, the only transport
// capability the actor needs (§9: identity and delivery are decoupled).
type Sender interface {
	Send(ctx context.Context, dest address.Address, msg protocol.Message) error
}

// Submission is a local write request: mint an EID for value and absorb
// it as if it were our own event.
type Submission struct {
	Value   []byte
	Ts      int64 // valid-time milliseconds; 0 selects time.Now()
	ReplyTo chan<- SubmitResult
}

// SubmitResult reports the outcome of a Submission.
type SubmitResult struct {
	ID  eid.ID
	Err error
}

// Config configures a Replica actor.
type Config struct {
	Self         address.Address
	Peers        []address.Address
	SyncInterval time.Duration
	MaxClockSkew time.Duration
}

// Replica is the C4 actor. Construct with New, then run its message
// loop with Run in its own goroutine.
type Replica struct {
	cfg    Config
	log    *eventlog.Log
	sender Sender
	inbox  <-chan transport.Delivery
	submit chan Submission
	now    func() time.Time

	peersMu sync.Mutex
	peers   []address.Address
}

// New builds a Replica. inbox is the transport's delivery channel for
// this replica's address; sender is used to reply and to fan out
// periodic Sync messages.
func New(cfg Config, evlog *eventlog.Log, sender Sender, inbox <-chan transport.Delivery) *Replica {
	if cfg.MaxClockSkew <= 0 {
		cfg.MaxClockSkew = 60 * time.Second
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 5 * time.Second
	}
	return &Replica{
		cfg:    cfg,
		log:    evlog,
		sender: sender,
		inbox:  inbox,
		submit: make(chan Submission, 64),
		now:    time.Now,
		peers:  append([]address.Address(nil), cfg.Peers...),
	}
}

// AddPeer adds addr to the set of peers this replica's self-sync ticks
// fan out to. Safe to call from any goroutine (e.g. as
// internal/discovery learns about new replicas on the LAN); a peer
// already present is not duplicated.
func (r *Replica) AddPeer(addr address.Address) {
	r.peersMu.Lock()
	defer r.peersMu.Unlock()
	for _, p := range r.peers {
		if p == addr {
			return
		}
	}
	r.peers = append(r.peers, addr)
}

// Submit requests that value be minted as a new local event and
// returns its assigned EID once the actor has processed the request.
// Safe to call from any goroutine.
func (r *Replica) Submit(ctx context.Context, value []byte) (eid.ID, error) {
	reply := make(chan SubmitResult, 1)
	select {
	case r.submit <- Submission{Value: value, ReplyTo: reply}:
	case <-ctx.Done():
		return eid.Zero, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.ID, res.Err
	case <-ctx.Done():
		return eid.Zero, ctx.Err()
	}
}

// Run drives the actor's message loop until ctx is cancelled. It
// processes, in no particular priority order between sources, inbound
// transport deliveries, local Submissions, and self-sync ticks — but
// always one at a time (§5).
func (r *Replica) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.SyncInterval)
	defer ticker.Stop()

	log.Info("replica started", "self", r.cfg.Self.String(), "peers", len(r.cfg.Peers))

	for {
		select {
		case <-ctx.Done():
			log.Info("replica stopping", "self", r.cfg.Self.String())
			return ctx.Err()

		case d, ok := <-r.inbox:
			if !ok {
				r.inbox = nil
				continue
			}
			r.handle(ctx, d.Msg)

		case sub := <-r.submit:
			r.handleSubmit(sub)

		case <-ticker.C:
			r.selfSyncRound(ctx)
		}
	}
}

// handle dispatches one inbound message per §4.4. Errors are logged
// and do not stop the actor (§7: UnknownMessage/Malformed/SelfLoop are
// all drop-and-continue).
func (r *Replica) handle(ctx context.Context, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Sync:
		r.handleSync(ctx, m)
	case protocol.SendEvents:
		r.handleSendEvents(ctx, m)
	case protocol.StoreEvents:
		r.handleStoreEvents(m)
	default:
		log.Warn("unknown message type", "type", fmt.Sprintf("%T", msg))
	}
}

// handleSync replies with SendEvents{since: local_clock(peer), dest:
// self} directed at the peer (§4.4).
func (r *Replica) handleSync(ctx context.Context, m protocol.Sync) {
	since, err := r.log.LocalClock(m.Peer)
	if err != nil {
		log.Warn("handleSync: LocalClock failed", "peer", m.Peer.String(), "error", err.Error())
		return
	}
	reply := protocol.SendEvents{Since: since, Dest: r.cfg.Self}
	if err := r.sender.Send(ctx, m.Peer, reply); err != nil {
		log.Warn("handleSync: send failed", "peer", m.Peer.String(), "error", err.Error())
	}
}

// handleSendEvents computes read_since(since) and replies to dest with
// a StoreEvents batch carrying our own high-water mark (§4.4). A since
// beyond our high-water mark is treated as 0 — the peer has reset and
// needs a full resend (§4.4, §8's scenario S6).
func (r *Replica) handleSendEvents(ctx context.Context, m protocol.SendEvents) {
	since := m.Since
	entries, hw, err := r.log.ReadSince(since)
	if laterrors.Is(err, laterrors.CodeBadOffset) {
		entries, hw, err = r.log.ReadSince(0)
	}
	if err != nil {
		log.Warn("handleSendEvents: ReadSince failed", "dest", m.Dest.String(), "error", err.Error())
		return
	}

	events := make([]protocol.Event, len(entries))
	for i, e := range entries {
		events[i] = protocol.Event{ID: e.ID, Value: e.Value}
	}

	reply := protocol.StoreEvents{
		From:   &protocol.Origin{Addr: r.cfg.Self, Clock: hw},
		Events: events,
	}
	if err := r.sender.Send(ctx, m.Dest, reply); err != nil {
		log.Warn("handleSendEvents: send failed", "dest", m.Dest.String(), "error", err.Error())
	}
}

// handleStoreEvents absorbs an inbound batch (§4.4). A batch claiming
// to originate from this replica's own address is a SelfLoop and is
// dropped (§4.5's tie-break policy).
func (r *Replica) handleStoreEvents(m protocol.StoreEvents) {
	var origin *eventlog.Origin
	if m.From != nil {
		if m.From.Addr == r.cfg.Self {
			log.Warn("dropping StoreEvents claiming self as origin", "self", r.cfg.Self.String())
			return
		}
		origin = &eventlog.Origin{Addr: m.From.Addr, Clock: m.From.Clock}
	}

	entries := make([]eventlog.Entry, 0, len(m.Events))
	now := r.now()
	for _, e := range m.Events {
		if err := r.checkSkew(e.ID, now); err != nil {
			log.Warn("dropping event exceeding clock skew", "id", e.ID.String(), "error", err.Error())
			continue
		}
		entries = append(entries, eventlog.Entry{ID: e.ID, Value: e.Value})
	}

	if err := r.log.WriteEvents(origin, entries); err != nil {
		log.Warn("handleStoreEvents: WriteEvents failed", "error", err.Error())
	}
}

// handleSubmit mints an EID for a locally-submitted value and absorbs
// it exactly as a single-element StoreEvents with no origin.
func (r *Replica) handleSubmit(sub Submission) {
	id, err := eid.Generate()
	if err != nil {
		sub.reply(eid.Zero, laterrors.Backend("mint eid", err))
		return
	}
	if sub.Ts != 0 {
		var rnd [10]byte
		copy(rnd[:], id[6:])
		id = eid.New(sub.Ts, rnd)
	}

	if err := r.checkSkew(id, r.now()); err != nil {
		sub.reply(eid.Zero, err)
		return
	}

	if err := r.log.WriteEvents(nil, []eventlog.Entry{{ID: id, Value: sub.Value}}); err != nil {
		sub.reply(eid.Zero, err)
		return
	}
	sub.reply(id, nil)
}

func (sub Submission) reply(id eid.ID, err error) {
	if sub.ReplyTo == nil {
		return
	}
	sub.ReplyTo <- SubmitResult{ID: id, Err: err}
}

// checkSkew rejects EIDs whose embedded timestamp sits too far in the
// future relative to now (§3's open question; the default 60s
// tolerance lives in Config.MaxClockSkew).
func (r *Replica) checkSkew(id eid.ID, now time.Time) error {
	eventTime := id.Time()
	if eventTime.Sub(now) > r.cfg.MaxClockSkew {
		return laterrors.SkewRejected(fmt.Sprintf("event time %s exceeds skew tolerance %s from now %s",
			eventTime, r.cfg.MaxClockSkew, now))
	}
	return nil
}

// selfSyncRound emits Sync(self) to every known peer concurrently
// (§4.6's recommended deployment pattern), bounding total wait with
// errgroup so one unreachable peer cannot stall the tick indefinitely.
func (r *Replica) selfSyncRound(parent context.Context) {
	r.peersMu.Lock()
	peers := append([]address.Address(nil), r.peers...)
	r.peersMu.Unlock()
	if len(peers) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(parent, r.cfg.SyncInterval)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, peer := range peers {
		peer := peer
		g.Go(func() error {
			if err := r.sender.Send(gctx, peer, protocol.Sync{Peer: r.cfg.Self}); err != nil {
				log.Debug("self-sync send failed", "peer", peer.String(), "error", err.Error())
			}
			return nil
		})
	}
	_ = g.Wait()
}
