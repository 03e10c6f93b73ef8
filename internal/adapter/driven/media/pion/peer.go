package pion

import (
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// NewAPI builds a pion API with the default codecs and interceptors
// (NACK, RTCP reports, TWCC).
func NewAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, err
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
	), nil
}

// NewPeerConnection opens a peer connection with audio and video
// transceivers added up front, so the first offer already carries both media
// sections. They are receive-only: this process has no capture device, so
// two headless peers negotiate inactive media and talk over the data
// channel. A peer with real tracks attaches them with AddTrack, which turns
// its side sendrecv and triggers renegotiation.
func NewPeerConnection(api *webrtc.API, cfg webrtc.Configuration) (*webrtc.PeerConnection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}
	return pc, nil
}
