package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Ring/internal/domain"
)

// MediaSource acquires local capture for one call attempt. A video call
// yields both an audio and a video track, an audio call only the former.
type MediaSource interface {
	Acquire(ctx context.Context, kind domain.MediaKind) (*LocalMedia, error)
}

// LocalMedia owns the local tracks for a single call. Close stops the
// feeds and is idempotent.
type LocalMedia struct {
	audio *feed
	video *feed

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func (m *LocalMedia) Tracks() []*webrtc.TrackLocalStaticRTP {
	tracks := []*webrtc.TrackLocalStaticRTP{m.audio.track}
	if m.video != nil {
		tracks = append(tracks, m.video.track)
	}
	return tracks
}

// SetEnabled mutes or unmutes one feed. A disabled feed keeps its track and
// timestamp clock running, it just stops writing packets.
func (m *LocalMedia) SetEnabled(kind domain.MediaKind, enabled bool) {
	switch kind {
	case domain.MediaAudio:
		m.audio.enabled.Store(enabled)
	case domain.MediaVideo:
		if m.video != nil {
			m.video.enabled.Store(enabled)
		}
	}
}

func (m *LocalMedia) Close() {
	m.once.Do(func() {
		m.cancel()
		m.wg.Wait()
	})
}

// feed pushes RTP packets onto one local track at the codec's pacing.
type feed struct {
	track   *webrtc.TrackLocalStaticRTP
	enabled atomic.Bool

	payloadType uint8
	ssrc        uint32
	interval    time.Duration
	tsStep      uint32
	payloadLen  int
}

func (f *feed) run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	var seq uint16
	var ts uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		seq++
		ts += f.tsStep
		if !f.enabled.Load() {
			continue
		}
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    f.payloadType,
				SequenceNumber: seq,
				Timestamp:      ts,
				SSRC:           f.ssrc,
			},
			Payload: make([]byte, f.payloadLen),
		}
		if err := f.track.WriteRTP(pkt); err != nil {
			log.Debug().Err(err).Str("module", "client.media").Msg("track write")
			return
		}
	}
}

// SyntheticSource stands in for device capture, which stays outside this
// module: it emits silent opus frames and empty VP8 frames at the codecs'
// native pacing so the RTP pipeline is exercised end to end.
type SyntheticSource struct{}

func (SyntheticSource) Acquire(ctx context.Context, kind domain.MediaKind) (*LocalMedia, error) {
	audioTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "ring-local",
	)
	if err != nil {
		return nil, err
	}

	m := &LocalMedia{
		audio: &feed{
			track:       audioTrack,
			payloadType: 111,
			ssrc:        0x52494e41, // "RINA"
			interval:    20 * time.Millisecond,
			tsStep:      960, // 20ms at 48kHz
			payloadLen:  3,   // minimal opus silence frame
		},
	}
	m.audio.enabled.Store(true)

	if kind == domain.MediaVideo {
		videoTrack, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", "ring-local",
		)
		if err != nil {
			return nil, err
		}
		m.video = &feed{
			track:       videoTrack,
			payloadType: 96,
			ssrc:        0x52494e56, // "RINV"
			interval:    33 * time.Millisecond,
			tsStep:      2970, // ~30fps at 90kHz
			payloadLen:  16,
		}
		m.video.enabled.Store(true)
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.audio.run(ctx)
	}()
	if m.video != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.video.run(ctx)
		}()
	}
	return m, nil
}
