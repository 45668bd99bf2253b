// Package roster maintains the authoritative participant list and its
// transient presence state.
package roster

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/lectern/meshcall/internal/domain"
)

// Tracker is a threadsafe in-memory participant mapping. The roster snapshot
// replaces the set wholesale; join and leave events are deltas merged on top.
type Tracker struct {
	mu     sync.RWMutex
	selfID domain.UserID
	byPeer map[domain.PeerID]*domain.Participant
}

func NewTracker(selfID domain.UserID) *Tracker {
	return &Tracker{
		selfID: selfID,
		byPeer: make(map[domain.PeerID]*domain.Participant),
	}
}

// Replace installs the roster snapshot wholesale, excluding self. It returns
// the peer ids to initiate connections to, in snapshot order, plus the
// self-assigned peer id when the snapshot contains it.
func (t *Tracker) Replace(snapshot []domain.Participant) (peers []domain.PeerID, selfPeer domain.PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byPeer = make(map[domain.PeerID]*domain.Participant, len(snapshot))
	for _, p := range snapshot {
		if p.UserID == t.selfID {
			selfPeer = p.ID
			continue
		}
		cp := p
		t.byPeer[p.ID] = &cp
		peers = append(peers, p.ID)
	}
	log.Info().Str("module", "roster").Int("count", len(peers)).Msg("roster replaced")
	return peers, selfPeer
}

// Join merges a single join event. It reports whether the participant was
// added; a duplicate join racing the roster is a no-op.
func (t *Tracker) Join(p domain.Participant) bool {
	if p.UserID == t.selfID {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byPeer[p.ID]; ok {
		return false
	}
	cp := p
	t.byPeer[p.ID] = &cp
	log.Info().Str("module", "roster").Str("peer", string(p.ID)).Str("name", p.Name).Msg("participant joined")
	return true
}

// Leave removes the participant. All transient presence state goes with the
// map entry, so nothing of the peer survives the removal.
func (t *Tracker) Leave(peer domain.PeerID) (domain.Participant, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byPeer[peer]
	if !ok {
		return domain.Participant{}, false
	}
	delete(t.byPeer, peer)
	log.Info().Str("module", "roster").Str("peer", string(peer)).Msg("participant left")
	return *p, true
}

// SetName mutates the display name in place. Unknown peer is a no-op: the
// message arrived late or out of order.
func (t *Tracker) SetName(peer domain.PeerID, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.byPeer[peer]; ok {
		p.Name = name
	}
}

func (t *Tracker) SetHandRaised(peer domain.PeerID, raised bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.byPeer[peer]; ok {
		p.HandRaised = raised
	}
}

func (t *Tracker) SetVoiceActive(peer domain.PeerID, active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.byPeer[peer]; ok {
		p.VoiceActive = active
	}
}

// SetMediaFlags records the capability flags derived from the received
// stream's tracks.
func (t *Tracker) SetMediaFlags(peer domain.PeerID, hasAudio, hasVideo bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.byPeer[peer]; ok {
		p.HasAudio = hasAudio
		p.HasVideo = hasVideo
	}
}

func (t *Tracker) Get(peer domain.PeerID) (domain.Participant, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.byPeer[peer]
	if !ok {
		return domain.Participant{}, false
	}
	return *p, true
}

func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byPeer)
}

func (t *Tracker) Snapshot() []domain.Participant {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Participant, 0, len(t.byPeer))
	for _, p := range t.byPeer {
		out = append(out, *p)
	}
	return out
}

// HandsRaised lists peers whose hand is currently up.
func (t *Tracker) HandsRaised() []domain.PeerID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []domain.PeerID
	for id, p := range t.byPeer {
		if p.HandRaised {
			out = append(out, id)
		}
	}
	return out
}

// VoiceActive lists peers currently speaking.
func (t *Tracker) VoiceActive() []domain.PeerID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []domain.PeerID
	for id, p := range t.byPeer {
		if p.VoiceActive {
			out = append(out, id)
		}
	}
	return out
}
