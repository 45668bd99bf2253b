package media

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedTrack struct {
	id      string
	kind    webrtc.RTPCodecType
	packets chan *rtp.Packet
}

func newScriptedTrack(id string, kind webrtc.RTPCodecType) *scriptedTrack {
	return &scriptedTrack{id: id, kind: kind, packets: make(chan *rtp.Packet, 16)}
}

func (t *scriptedTrack) ID() string                { return t.id }
func (t *scriptedTrack) Kind() webrtc.RTPCodecType { return t.kind }
func (t *scriptedTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	pkt, ok := <-t.packets
	if !ok {
		return nil, nil, io.EOF
	}
	return pkt, nil, nil
}

func TestAudioFirstResilience(t *testing.T) {
	ss := NewSinkSet(false)
	track := newScriptedTrack("a0", webrtc.RTPCodecTypeAudio)
	close(track.packets)

	sink := ss.Attach(context.Background(), "peer-a", track)
	require.NotNil(t, sink)

	hasAudio, hasVideo := sink.Flags()
	assert.True(t, hasAudio)
	assert.False(t, hasVideo, "video absence must not block audio delivery")

	got, ok := ss.Get("peer-a")
	assert.True(t, ok)
	assert.Same(t, sink, got)
}

func TestVideoTrackSetsFlag(t *testing.T) {
	ss := NewSinkSet(false)
	audio := newScriptedTrack("a0", webrtc.RTPCodecTypeAudio)
	video := newScriptedTrack("v0", webrtc.RTPCodecTypeVideo)
	close(audio.packets)
	close(video.packets)

	ss.Attach(context.Background(), "peer-a", audio)
	sink := ss.Attach(context.Background(), "peer-a", video)

	hasAudio, hasVideo := sink.Flags()
	assert.True(t, hasAudio)
	assert.True(t, hasVideo)
	assert.Equal(t, 1, len(ss.sinks), "both tracks share one sink per peer")
}

func TestRecordingDrain(t *testing.T) {
	ss := NewSinkSet(true)
	track := newScriptedTrack("a0", webrtc.RTPCodecTypeAudio)
	track.packets <- &rtp.Packet{Payload: []byte{1, 2, 3}}
	track.packets <- &rtp.Packet{Payload: []byte{4, 5}}
	close(track.packets)

	sink := ss.Attach(context.Background(), "peer-a", track)
	rec := sink.Recording()
	require.NotNil(t, rec)

	require.Eventually(t, func() bool {
		packets, bytes := rec.Stats()
		return packets == 2 && bytes == 5
	}, time.Second, 5*time.Millisecond)
}

func TestSinkCloseIdempotentAndStopsAttach(t *testing.T) {
	ss := NewSinkSet(false)
	sink := ss.Ensure("peer-a")
	sink.Close()
	sink.Close()

	track := newScriptedTrack("a0", webrtc.RTPCodecTypeAudio)
	assert.False(t, sink.attach(context.Background(), track, false), "closed sink must refuse tracks")
}

func TestCloseRemovesAndCloseAllClears(t *testing.T) {
	ss := NewSinkSet(false)
	ss.Ensure("a")
	ss.Ensure("b")

	ss.Close("a")
	_, ok := ss.Get("a")
	assert.False(t, ok)
	_, ok = ss.Get("b")
	assert.True(t, ok)

	ss.CloseAll()
	_, ok = ss.Get("b")
	assert.False(t, ok)

	// Close of an unknown peer is a no-op.
	ss.Close("ghost")
}
