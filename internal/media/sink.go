package media

import (
	"context"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lectern/meshcall/internal/domain"
)

// RemoteTrack is the subset of *webrtc.TrackRemote a sink consumes.
type RemoteTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Recording accumulates drained audio payload stats when recording is on.
type Recording struct {
	mu      sync.Mutex
	Packets int
	Bytes   int
}

func (r *Recording) add(n int) {
	r.mu.Lock()
	r.Packets++
	r.Bytes += n
	r.mu.Unlock()
}

func (r *Recording) Stats() (packets, bytes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Packets, r.Bytes
}

// Sink is the per-peer rendering endpoint for remote media. It exists as soon
// as the first remote track arrives so audio keeps playing even when video is
// absent or fails.
type Sink struct {
	Peer domain.PeerID

	mu       sync.Mutex
	hasAudio bool
	hasVideo bool
	closed   bool
	cancels  []context.CancelFunc

	recording *Recording
}

func (s *Sink) Flags() (hasAudio, hasVideo bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasAudio, s.hasVideo
}

func (s *Sink) Recording() *Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Close stops every drain loop for this peer. Idempotent.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (s *Sink) attach(ctx context.Context, track RemoteTrack, record bool) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	switch track.Kind() {
	case webrtc.RTPCodecTypeAudio:
		s.hasAudio = true
		if record && s.recording == nil {
			s.recording = &Recording{}
		}
	case webrtc.RTPCodecTypeVideo:
		s.hasVideo = true
	}
	rec := s.recording
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		rec = nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()

	logger := log.With().
		Str("module", "media.sink").
		Str("peer", string(s.Peer)).
		Str("kind", track.Kind().String()).
		Logger()
	go drain(ctx, track, rec, &logger)
	return true
}

// drain reads RTP packets off the remote track until the track ends or the
// sink is closed. Draining keeps the receiver alive and feeds the optional
// recording buffer.
func drain(ctx context.Context, track RemoteTrack, rec *Recording, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("sink ctx done")
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("sink read RTP ended")
			return
		}
		if rec != nil {
			rec.add(len(pkt.Payload))
		}
	}
}

// SinkSet owns every remote sink, keyed by peer. All mutation goes through
// its methods; nothing else holds sink references.
type SinkSet struct {
	mu     sync.RWMutex
	sinks  map[domain.PeerID]*Sink
	record bool
}

func NewSinkSet(record bool) *SinkSet {
	return &SinkSet{sinks: make(map[domain.PeerID]*Sink), record: record}
}

// Ensure returns the sink for peer, creating it if absent.
func (ss *SinkSet) Ensure(peer domain.PeerID) *Sink {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if s, ok := ss.sinks[peer]; ok {
		return s
	}
	s := &Sink{Peer: peer}
	ss.sinks[peer] = s
	log.Info().Str("module", "media.sink").Str("peer", string(peer)).Msg("sink created")
	return s
}

// Attach binds a remote track to the peer's sink (creating the sink first)
// and starts its drain loop. Returns the sink and its updated flags.
func (ss *SinkSet) Attach(ctx context.Context, peer domain.PeerID, track RemoteTrack) *Sink {
	s := ss.Ensure(peer)
	s.attach(ctx, track, ss.record)
	return s
}

func (ss *SinkSet) Get(peer domain.PeerID) (*Sink, bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	s, ok := ss.sinks[peer]
	return s, ok
}

// Close releases the sink bound to peer, if any.
func (ss *SinkSet) Close(peer domain.PeerID) {
	ss.mu.Lock()
	s, ok := ss.sinks[peer]
	if ok {
		delete(ss.sinks, peer)
	}
	ss.mu.Unlock()
	if ok {
		s.Close()
	}
}

// CloseAll releases every sink. Invoked on session exit.
func (ss *SinkSet) CloseAll() {
	ss.mu.Lock()
	sinks := ss.sinks
	ss.sinks = make(map[domain.PeerID]*Sink)
	ss.mu.Unlock()
	for _, s := range sinks {
		s.Close()
	}
}
