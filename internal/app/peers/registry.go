// Package peers owns the per-peer connection entries and drives the
// offer/answer/ICE exchange for the mesh.
package peers

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/lectern/meshcall/internal/core"
	"github.com/lectern/meshcall/internal/domain"
)

// ConnFactory builds the underlying media connection for a peer.
type ConnFactory func(peer domain.PeerID) (core.MediaConnection, error)

// Hooks are the registry's outbound callbacks. Every invocation is guarded by
// the entry generation check, so a continuation completing after its entry
// was torn down never reaches shared state.
type Hooks struct {
	OnLocalCandidate   func(peer domain.PeerID, cand webrtc.ICECandidateInit)
	OnRemoteTrack      func(ctx context.Context, peer domain.PeerID, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	OnConnectionFailed func(peer domain.PeerID)
}

// State is the negotiation state of one peer connection.
type State int

const (
	StateNew State = iota
	StateHaveLocalOffer
	StateHaveRemoteOffer
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Entry is the registry's record for one remote peer. At most one live entry
// exists per peer id at any time.
type Entry struct {
	Peer      domain.PeerID
	Conn      core.MediaConnection
	Initiator bool
	gen       uint64

	mu            sync.Mutex
	state         State
	remoteDescSet bool
	pending       []webrtc.ICECandidateInit
}

func (e *Entry) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Entry) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// transition moves to next only when the current state equals want.
func (e *Entry) transition(want, next State) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != want {
		return false
	}
	e.state = next
	return true
}

// AddCandidate applies the candidate immediately when the remote description
// is set, otherwise appends it to the pending buffer in arrival order.
func (e *Entry) AddCandidate(cand webrtc.ICECandidateInit) error {
	e.mu.Lock()
	if !e.remoteDescSet {
		e.pending = append(e.pending, cand)
		n := len(e.pending)
		e.mu.Unlock()
		log.Debug().Str("module", "peers").Str("peer", string(e.Peer)).Int("pending", n).Msg("buffered candidate")
		return nil
	}
	e.mu.Unlock()
	return e.Conn.AddICECandidate(cand)
}

// markRemoteDescSet records that the remote description landed and flushes
// the pending buffer exactly once, in arrival order.
func (e *Entry) markRemoteDescSet() error {
	e.mu.Lock()
	if e.remoteDescSet {
		e.mu.Unlock()
		return nil
	}
	e.remoteDescSet = true
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, cand := range pending {
		if err := e.Conn.AddICECandidate(cand); err != nil {
			return fmt.Errorf("flush candidate: %w", err)
		}
	}
	if len(pending) > 0 {
		log.Debug().Str("module", "peers").Str("peer", string(e.Peer)).Int("flushed", len(pending)).Msg("flushed pending candidates")
	}
	return nil
}

func (e *Entry) RemoteDescSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remoteDescSet
}

// Registry maps peer ids to their single live connection entry. All entry
// creation and teardown goes through it; nothing else closes connections.
type Registry struct {
	mu      sync.RWMutex
	entries map[domain.PeerID]*Entry
	gen     uint64

	newConn ConnFactory
	local   core.LocalSource
	hooks   Hooks
}

func NewRegistry(factory ConnFactory, local core.LocalSource, hooks Hooks) *Registry {
	return &Registry{
		entries: make(map[domain.PeerID]*Entry),
		newConn: factory,
		local:   local,
		hooks:   hooks,
	}
}

// Ensure returns a fresh entry for peer. An existing entry is torn down
// first, so duplicate negotiation attempts for the same peer never race:
// there is never more than one live connection per peer id.
func (r *Registry) Ensure(ctx context.Context, peer domain.PeerID, asInitiator bool) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.entries[peer]; ok {
		log.Info().Str("module", "peers").Str("peer", string(peer)).Msg("replacing existing entry")
		delete(r.entries, peer)
		old.Conn.Close()
	}

	conn, err := r.newConn(peer)
	if err != nil {
		return nil, fmt.Errorf("new connection for %s: %w", peer, err)
	}

	r.gen++
	entry := &Entry{Peer: peer, Conn: conn, Initiator: asInitiator, gen: r.gen, state: StateNew}

	// Local tracks attach before any negotiation begins, then the current
	// toggle state: a peer connected while muted must not receive audio.
	for _, t := range r.local.Tracks() {
		if err := conn.AddLocalTrack(t); err != nil {
			conn.Close()
			return nil, fmt.Errorf("add local track: %w", err)
		}
	}
	if r.local.Muted() {
		if err := conn.SetSendEnabled(webrtc.RTPCodecTypeAudio, false); err != nil {
			conn.Close()
			return nil, fmt.Errorf("pause audio: %w", err)
		}
	}
	if r.local.VideoOff() {
		if err := conn.SetSendEnabled(webrtc.RTPCodecTypeVideo, false); err != nil {
			conn.Close()
			return nil, fmt.Errorf("pause video: %w", err)
		}
	}

	conn.OnICECandidate(func(cand webrtc.ICECandidateInit) {
		if !r.IsCurrent(entry) {
			return
		}
		if r.hooks.OnLocalCandidate != nil {
			r.hooks.OnLocalCandidate(peer, cand)
		}
	})
	conn.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if !r.IsCurrent(entry) {
			return
		}
		if r.hooks.OnRemoteTrack != nil {
			r.hooks.OnRemoteTrack(trackCtx, peer, track, receiver)
		}
	})
	conn.OnFailed(func() {
		if !r.IsCurrent(entry) {
			return
		}
		entry.setState(StateFailed)
		if r.hooks.OnConnectionFailed != nil {
			r.hooks.OnConnectionFailed(peer)
		}
	})

	if err := conn.Start(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("start connection: %w", err)
	}

	r.entries[peer] = entry
	log.Info().Str("module", "peers").Str("peer", string(peer)).Bool("initiator", asInitiator).Msg("entry created")
	return entry, nil
}

func (r *Registry) Get(peer domain.PeerID) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[peer]
	return e, ok
}

// IsCurrent reports whether e is still the live entry for its peer. Stale
// continuations use it to no-op after teardown.
func (r *Registry) IsCurrent(e *Entry) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cur, ok := r.entries[e.Peer]
	return ok && cur.gen == e.gen
}

// SetSendEnabled applies the toggle to every live connection. Per-entry
// errors are logged; a failing peer never blocks the toggle for the rest.
func (r *Registry) SetSendEnabled(kind webrtc.RTPCodecType, enabled bool) {
	r.mu.RLock()
	entries := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()
	for _, e := range entries {
		if err := e.Conn.SetSendEnabled(kind, enabled); err != nil {
			log.Error().Err(err).Str("module", "peers").Str("peer", string(e.Peer)).Str("kind", kind.String()).Msg("toggle send failed")
		}
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Teardown closes and removes the entry for peer, if any.
func (r *Registry) Teardown(peer domain.PeerID) {
	r.mu.Lock()
	e, ok := r.entries[peer]
	if ok {
		delete(r.entries, peer)
	}
	r.mu.Unlock()
	if ok {
		e.Conn.Close()
		log.Info().Str("module", "peers").Str("peer", string(peer)).Msg("entry torn down")
	}
}

// TeardownAll closes every entry and clears the mapping. Invoked on exit.
func (r *Registry) TeardownAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[domain.PeerID]*Entry)
	r.mu.Unlock()
	for _, e := range entries {
		e.Conn.Close()
	}
	if len(entries) > 0 {
		log.Info().Str("module", "peers").Int("count", len(entries)).Msg("all entries torn down")
	}
}
