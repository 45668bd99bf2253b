package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/lectern/meshcall/internal/core"
	"github.com/lectern/meshcall/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

const writeDeadline = 5 * time.Second

// Client maintains the persistent signaling connection for one session.
// Inbound frames are parsed into core.Event values and delivered, in arrival
// order, on the Events channel.
type Client struct {
	conn   *websocket.Conn
	send   chan core.Frame
	events chan core.Event
	cancel context.CancelFunc

	room domain.RoomCode
	self domain.Identity

	mu       sync.RWMutex
	selfPeer domain.PeerID
	closed   bool
}

// Dial connects to the signaling server and announces membership with a
// join-room message before any other frame is sent.
func Dial(ctx context.Context, url string, room domain.RoomCode, self domain.Identity) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("signal dial: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		conn:   ws,
		send:   make(chan core.Frame, 32),
		events: make(chan core.Event, 32),
		cancel: cancel,
		room:   room,
		self:   self,
	}

	if err := c.sendJSON(joinRoomMsg{
		Type:   "join-room",
		UserID: self.UserID,
		RoomID: room,
		Name:   self.Name,
		Role:   self.Role,
	}); err != nil {
		cancel()
		_ = ws.Close()
		return nil, err
	}

	go c.writePump(ctx)
	go c.readPump(ctx)

	log.Info().Str("module", "signal").Str("room", string(room)).Str("name", self.Name).Msg("joined room")
	return c, nil
}

func (c *Client) Events() <-chan core.Event { return c.events }

// SetSelfPeer records the socket-scoped id the server assigned to us, learned
// from the roster. Used as the "from" field on addressed frames.
func (c *Client) SetSelfPeer(id domain.PeerID) {
	c.mu.Lock()
	c.selfPeer = id
	c.mu.Unlock()
}

func (c *Client) SelfPeer() domain.PeerID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selfPeer
}

func (c *Client) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close terminates the channel. Safe to call multiple times.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
	c.cancel()
}

func (c *Client) SendOffer(to domain.PeerID, sdp webrtc.SessionDescription) error {
	return c.sendJSON(sdpMsg{Type: "offer", Offer: &sdp, To: to, From: c.SelfPeer()})
}

func (c *Client) SendAnswer(to domain.PeerID, sdp webrtc.SessionDescription) error {
	return c.sendJSON(sdpMsg{Type: "answer", Answer: &sdp, To: to, From: c.SelfPeer()})
}

func (c *Client) SendCandidate(to domain.PeerID, cand webrtc.ICECandidateInit) error {
	return c.sendJSON(candidateMsg{Type: "ice-candidate", Candidate: cand, To: to, From: c.SelfPeer()})
}

func (c *Client) SendNameChange(name string) error {
	return c.sendJSON(nameChangedMsg{Type: "name-changed", RoomID: c.room, NewName: name})
}

func (c *Client) SendHandRaised(raised bool) error {
	return c.sendJSON(handRaisedMsg{Type: "hand-raised", RoomID: c.room, IsRaised: raised, UserName: c.self.Name})
}

func (c *Client) SendVoiceActivity(active bool) error {
	return c.sendJSON(voiceActivityMsg{Type: "voice-activity", RoomID: c.room, IsActive: active})
}

func (c *Client) sendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("signal marshal: %w", err)
	}
	return c.TrySend(b)
}

func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		log.Info().Str("module", "signal").Msg("readPump closing")
		c.Close()
		close(c.events)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("module", "signal").Msg("readPump read error")
			}
			return
		}
		ev, ok := c.parse(data)
		if !ok {
			continue
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// parse decodes one inbound frame into the tagged Event union. Unknown kinds
// are logged and dropped.
func (c *Client) parse(data []byte) (core.Event, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return core.Event{}, false
	}

	switch env.Type {
	case "user-list":
		var m userListMsg
		if err := json.Unmarshal(data, &m); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad user-list payload")
			return core.Event{}, false
		}
		roster := make([]domain.Participant, 0, len(m.Users))
		for _, u := range m.Users {
			roster = append(roster, u.participant())
		}
		return core.Event{Kind: core.EventRoster, Roster: roster}, true

	case "user-joined":
		var u userEntry
		if err := json.Unmarshal(data, &u); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad user-joined payload")
			return core.Event{}, false
		}
		return core.Event{Kind: core.EventPeerJoined, Peer: u.participant(), From: u.SocketID}, true

	case "user-disconnected":
		var m userDisconnectedMsg
		if err := json.Unmarshal(data, &m); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad user-disconnected payload")
			return core.Event{}, false
		}
		return core.Event{Kind: core.EventPeerDisconnected, From: m.SocketID}, true

	case "user-name-changed":
		var m userNameChangedMsg
		if err := json.Unmarshal(data, &m); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad user-name-changed payload")
			return core.Event{}, false
		}
		return core.Event{Kind: core.EventNameChanged, From: m.SocketID, Name: m.NewName}, true

	case "user-hand-raised":
		var m userHandRaisedMsg
		if err := json.Unmarshal(data, &m); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad user-hand-raised payload")
			return core.Event{}, false
		}
		return core.Event{Kind: core.EventHandRaised, From: m.SocketID, Raised: m.IsRaised, Name: m.UserName}, true

	case "user-voice-activity":
		var m userVoiceActivityMsg
		if err := json.Unmarshal(data, &m); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad user-voice-activity payload")
			return core.Event{}, false
		}
		return core.Event{Kind: core.EventVoiceActivity, From: m.SocketID, Active: m.IsActive}, true

	case "offer", "answer":
		var m sdpMsg
		if err := json.Unmarshal(data, &m); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad sdp payload")
			return core.Event{}, false
		}
		if env.Type == "offer" {
			if m.Offer == nil {
				log.Warn().Str("module", "signal").Msg("offer frame without offer body")
				return core.Event{}, false
			}
			return core.Event{Kind: core.EventOffer, From: m.From, SDP: *m.Offer}, true
		}
		if m.Answer == nil {
			log.Warn().Str("module", "signal").Msg("answer frame without answer body")
			return core.Event{}, false
		}
		return core.Event{Kind: core.EventAnswer, From: m.From, SDP: *m.Answer}, true

	case "ice-candidate":
		var m candidateMsg
		if err := json.Unmarshal(data, &m); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
			return core.Event{}, false
		}
		return core.Event{Kind: core.EventCandidate, From: m.From, Candidate: m.Candidate}, true

	case "moderator-left":
		var m moderatorLeftMsg
		if err := json.Unmarshal(data, &m); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad moderator-left payload")
			return core.Event{}, false
		}
		return core.Event{Kind: core.EventModeratorLeft, Message: m.Message, Countdown: m.Countdown}, true

	case "moderator-returned":
		var m moderatorReturnedMsg
		if err := json.Unmarshal(data, &m); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad moderator-returned payload")
			return core.Event{}, false
		}
		return core.Event{Kind: core.EventModeratorReturned, Message: m.Message}, true

	case "room-closed", "class-ended":
		var m roomLifecycleMsg
		if err := json.Unmarshal(data, &m); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad lifecycle payload")
			return core.Event{}, false
		}
		kind := core.EventRoomClosed
		if env.Type == "class-ended" {
			kind = core.EventClassEnded
		}
		return core.Event{Kind: kind, Reason: m.Reason}, true

	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		return core.Event{}, false
	}
}
