// Package rtc streams the thermal and camera video to operator
// stations over WebRTC and carries the control protocol on a data
// channel.
package rtc

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"

	"github.com/citydrone/ground-station/internal/logger"
	"github.com/citydrone/ground-station/pkg/types"
)

const (
	h264ClockRate = 90000
	videoFPS      = 30
)

// MessageHandler receives one control line from any operator station.
type MessageHandler func(msg string)

// Client is one connected operator station. Each client carries two
// outbound video tracks and one inbound data channel.
type Client struct {
	id          string
	peerConn    *webrtc.PeerConnection
	videoTrack  *webrtc.TrackLocalStaticSample
	cameraTrack *webrtc.TrackLocalStaticSample
	frameChan   chan *types.VideoFrame
	cameraChan  chan *types.VideoFrame
	closeChan   chan struct{}

	dcMu sync.Mutex
	dc   *webrtc.DataChannel

	framesSent    atomic.Uint64
	framesDropped atomic.Uint64
}

// Server manages WebRTC peer connections.
type Server struct {
	clients    map[string]*Client
	clientsMu  sync.RWMutex
	config     webrtc.Configuration
	maxClients int
	api        *webrtc.API
	onMessage  MessageHandler
}

// NewServer creates a WebRTC server. onMessage is invoked for every
// data channel message from any client.
func NewServer(stunServers []string, maxClients int, onMessage MessageHandler) *Server {
	iceServers := make([]webrtc.ICEServer, 0, len(stunServers))
	for _, url := range stunServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{url}})
	}
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}

	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetDTLSRetransmissionInterval(2 * time.Second)
	settingEngine.SetNetworkTypes([]webrtc.NetworkType{
		webrtc.NetworkTypeUDP4,
		webrtc.NetworkTypeUDP6,
	})

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		logger.Error("RTC", "register codecs: %v", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithSettingEngine(settingEngine),
		webrtc.WithMediaEngine(mediaEngine),
	)

	if onMessage == nil {
		onMessage = func(string) {}
	}
	return &Server{
		clients:    make(map[string]*Client),
		config:     webrtc.Configuration{ICEServers: iceServers},
		maxClients: maxClients,
		api:        api,
		onMessage:  onMessage,
	}
}

// HandleOffer answers a remote SDP offer and registers the new client.
func (s *Server) HandleOffer(offerJSON []byte) ([]byte, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(offerJSON, &offer); err != nil {
		return nil, fmt.Errorf("parse offer: %w", err)
	}

	s.clientsMu.RLock()
	numClients := len(s.clients)
	s.clientsMu.RUnlock()
	if numClients >= s.maxClients {
		return nil, fmt.Errorf("maximum clients reached (%d)", s.maxClients)
	}

	peerConn, err := s.api.NewPeerConnection(s.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	newTrack := func(id string) (*webrtc.TrackLocalStaticSample, error) {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{
				MimeType:  webrtc.MimeTypeH264,
				ClockRate: h264ClockRate,
			},
			id, "groundstation",
		)
		if err != nil {
			return nil, fmt.Errorf("create %s track: %w", id, err)
		}
		rtpSender, err := peerConn.AddTrack(track)
		if err != nil {
			return nil, fmt.Errorf("add %s track: %w", id, err)
		}
		// Drain RTCP so congestion feedback keeps flowing.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := rtpSender.Read(buf); err != nil {
					return
				}
			}
		}()
		return track, nil
	}

	videoTrack, err := newTrack("thermal")
	if err != nil {
		peerConn.Close()
		return nil, err
	}
	cameraTrack, err := newTrack("camera")
	if err != nil {
		peerConn.Close()
		return nil, err
	}

	client := &Client{
		id:          uuid.NewString()[:8],
		peerConn:    peerConn,
		videoTrack:  videoTrack,
		cameraTrack: cameraTrack,
		frameChan:   make(chan *types.VideoFrame, videoFPS),
		cameraChan:  make(chan *types.VideoFrame, videoFPS),
		closeChan:   make(chan struct{}),
	}

	// The operator station opens the control channel from its side.
	peerConn.OnDataChannel(func(dc *webrtc.DataChannel) {
		logger.Info("RTC", "client %s opened data channel %q", client.id, dc.Label())
		client.dcMu.Lock()
		client.dc = dc
		client.dcMu.Unlock()
		dc.OnMessage(func(m webrtc.DataChannelMessage) {
			s.onMessage(string(m.Data))
		})
	})

	peerConn.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		logger.Debug("RTC", "client %s ICE state: %s", client.id, state)
		if state == webrtc.ICEConnectionStateDisconnected ||
			state == webrtc.ICEConnectionStateFailed ||
			state == webrtc.ICEConnectionStateClosed {
			s.RemoveClient(client.id)
		}
	})
	peerConn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("RTC", "client %s connection state: %s", client.id, state)
		if state == webrtc.PeerConnectionStateDisconnected ||
			state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateClosed {
			s.RemoveClient(client.id)
		}
	})

	if err := peerConn.SetRemoteDescription(offer); err != nil {
		peerConn.Close()
		return nil, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := peerConn.CreateAnswer(nil)
	if err != nil {
		peerConn.Close()
		return nil, fmt.Errorf("create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(peerConn)
	if err := peerConn.SetLocalDescription(answer); err != nil {
		peerConn.Close()
		return nil, fmt.Errorf("set local description: %w", err)
	}
	<-gatherComplete

	s.clientsMu.Lock()
	s.clients[client.id] = client
	s.clientsMu.Unlock()
	go s.sendFrames(client, client.videoTrack, client.frameChan)
	go s.sendFrames(client, client.cameraTrack, client.cameraChan)

	logger.Info("RTC", "client %s connected", client.id)

	localDesc := peerConn.LocalDescription()
	if localDesc == nil {
		return nil, fmt.Errorf("no local description available")
	}
	return json.Marshal(localDesc)
}

// SendFrame fans one encoded thermal frame out to every client. Slow
// clients drop frames instead of backing up the encoder.
func (s *Server) SendFrame(frame *types.VideoFrame) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, client := range s.clients {
		select {
		case client.frameChan <- frame:
			client.framesSent.Add(1)
		default:
			client.framesDropped.Add(1)
		}
	}
}

// SendCameraFrame fans one encoded camera frame out to every client.
func (s *Server) SendCameraFrame(frame *types.VideoFrame) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, client := range s.clients {
		select {
		case client.cameraChan <- frame:
			client.framesSent.Add(1)
		default:
			client.framesDropped.Add(1)
		}
	}
}

// SendText pushes a protocol line to every open data channel.
func (s *Server) SendText(msg string) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, client := range s.clients {
		client.dcMu.Lock()
		dc := client.dc
		client.dcMu.Unlock()
		if dc != nil && dc.ReadyState() == webrtc.DataChannelStateOpen {
			if err := dc.SendText(msg); err != nil {
				logger.Debug("RTC", "send to %s: %v", client.id, err)
			}
		}
	}
}

func (s *Server) sendFrames(client *Client, track *webrtc.TrackLocalStaticSample, frames <-chan *types.VideoFrame) {
	for {
		select {
		case <-client.closeChan:
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			err := track.WriteSample(media.Sample{
				Data:     frame.Data,
				Duration: time.Second / videoFPS,
			})
			if err != nil {
				if err != io.ErrClosedPipe {
					logger.Warn("RTC", "write sample for %s: %v", client.id, err)
				}
				return
			}
		}
	}
}

// RemoveClient drops a client and its peer connection.
func (s *Server) RemoveClient(clientID string) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	client, ok := s.clients[clientID]
	if !ok {
		return
	}
	close(client.closeChan)
	client.peerConn.Close()
	delete(s.clients, clientID)

	logger.Info("RTC", "client %s disconnected (sent: %d, dropped: %d)",
		clientID, client.framesSent.Load(), client.framesDropped.Load())
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Close drops every client.
func (s *Server) Close() error {
	s.clientsMu.RLock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	s.clientsMu.RUnlock()

	for _, id := range ids {
		s.RemoveClient(id)
	}
	return nil
}

// OfferHandler serves the POST /offer signaling endpoint.
func (s *Server) OfferHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "read offer", http.StatusBadRequest)
			return
		}
		answer, err := s.HandleOffer(body)
		if err != nil {
			logger.Warn("RTC", "offer rejected: %v", err)
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(answer)
	}
}
