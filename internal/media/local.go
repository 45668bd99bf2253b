// Package media owns the local capture stream and the per-peer remote sinks.
package media

import (
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"     // register camera driver
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // register microphone driver
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/rs/zerolog/log"

	"github.com/lectern/meshcall/internal/core"
	"github.com/lectern/meshcall/internal/domain"
)

// LocalMedia is the singleton local stream of a session. Tracks are shared by
// reference with every peer connection and never stopped by a toggle; the
// connection registry pauses the outbound senders to match the flags here, so
// re-enabling needs no renegotiation.
type LocalMedia struct {
	mu        sync.Mutex
	tracks    []core.LocalTrack
	released  bool
	muted     bool
	videoOff  bool
	audioOnly bool
}

// Acquire grabs camera+microphone, falling back to audio-only if video
// capture fails. If both attempts fail the session cannot proceed and
// domain.ErrNoDeviceAccess is returned before any signaling connect.
func Acquire(audioOnly bool) (*LocalMedia, error) {
	if !audioOnly {
		stream, err := getUserMedia(true)
		if err == nil {
			return fromStream(stream, false), nil
		}
		log.Warn().Err(err).Str("module", "media").Msg("audio+video acquire failed, retrying audio-only")
	}

	stream, err := getUserMedia(false)
	if err != nil {
		log.Error().Err(err).Str("module", "media").Msg("audio-only acquire failed")
		return nil, domain.ErrNoDeviceAccess
	}
	return fromStream(stream, true), nil
}

func getUserMedia(video bool) (mediadevices.MediaStream, error) {
	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 500_000

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithAudioEncoders(&opusParams),
		mediadevices.WithVideoEncoders(&vpxParams),
	)

	constraints := mediadevices.MediaStreamConstraints{
		Audio: func(c *mediadevices.MediaTrackConstraints) {
			c.SampleRate = prop.Int(48000)
			c.ChannelCount = prop.Int(1)
		},
		Codec: selector,
	}
	if video {
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			c.Width = prop.Int(640)
			c.Height = prop.Int(480)
			c.FrameRate = prop.Float(30)
		}
	}
	return mediadevices.GetUserMedia(constraints)
}

func fromStream(stream mediadevices.MediaStream, audioOnly bool) *LocalMedia {
	tracks := make([]core.LocalTrack, 0, 2)
	for _, t := range stream.GetTracks() {
		tracks = append(tracks, t)
	}
	return NewFromTracks(tracks, audioOnly)
}

// NewFromTracks builds a LocalMedia around already-captured tracks. Used by
// callers that bring their own source instead of going through Acquire.
func NewFromTracks(tracks []core.LocalTrack, audioOnly bool) *LocalMedia {
	m := &LocalMedia{tracks: tracks, audioOnly: audioOnly}
	if audioOnly {
		// Remote capability negotiation and the UI must see video as off.
		m.videoOff = true
	}
	return m
}

// Tracks returns references to the shared local tracks, never copies.
func (m *LocalMedia) Tracks() []core.LocalTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.LocalTrack, len(m.tracks))
	copy(out, m.tracks)
	return out
}

// ToggleMute flips the muted flag and reports the new state.
func (m *LocalMedia) ToggleMute() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = !m.muted
	log.Info().Str("module", "media").Bool("muted", m.muted).Msg("toggle mute")
	return m.muted
}

// ToggleVideo flips the video-off flag and reports the new state. The track
// keeps capturing so re-enabling needs no renegotiation.
func (m *LocalMedia) ToggleVideo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.audioOnly {
		return true
	}
	m.videoOff = !m.videoOff
	log.Info().Str("module", "media").Bool("video_off", m.videoOff).Msg("toggle video")
	return m.videoOff
}

func (m *LocalMedia) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

func (m *LocalMedia) VideoOff() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.videoOff
}

func (m *LocalMedia) AudioOnly() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audioOnly
}

func (m *LocalMedia) Released() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// Release stops every track. It runs on explicit leave and again on abrupt
// shutdown, so calling it twice must be safe.
func (m *LocalMedia) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return
	}
	m.released = true
	for _, t := range m.tracks {
		if err := t.Close(); err != nil {
			log.Error().Err(err).Str("module", "media").Str("track", t.ID()).Msg("track close")
		}
	}
	m.tracks = nil
	log.Info().Str("module", "media").Msg("local media released")
}
