package sipgoua

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pion/rtp"
	"github.com/zaf/g711"
)

const (
	rtpVersion  = 2
	ulawSamples = 160 // 20ms @ 8kHz, one byte per sample for G.711
)

// RTPSession owns one UDP socket carrying RTP audio for a single call leg.
// It decodes inbound packets into linear PCM16 for the Recorder sink and
// encodes outbound linear PCM16 from the Player source, pacing packets at
// one per ptime interval per RFC 3550.
type RTPSession struct {
	conn       *net.UDPConn
	remoteAddr *net.UDPAddr
	codec      Codec
	ssrc       uint32
	seq        uint16
	timestamp  uint32
	ptime      time.Duration
}

// NewRTPSession binds a UDP socket on localPort for codec.
func NewRTPSession(localPort int, codec Codec, ssrc uint32) (*RTPSession, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: localPort})
	if err != nil {
		return nil, fmt.Errorf("sipgoua: listen rtp udp: %w", err)
	}
	return &RTPSession{conn: conn, codec: codec, ssrc: ssrc, ptime: 20 * time.Millisecond}, nil
}

// SetRemote fixes the peer this session sends to, learned from the
// negotiated SDP.
func (s *RTPSession) SetRemote(ip string, port int) error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", ip, port))
	if err != nil {
		return fmt.Errorf("sipgoua: resolve remote rtp addr: %w", err)
	}
	s.remoteAddr = addr
	return nil
}

// LocalPort returns the bound UDP port.
func (s *RTPSession) LocalPort() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

// Close releases the UDP socket.
func (s *RTPSession) Close() error {
	return s.conn.Close()
}

// ReadLoop decodes inbound RTP packets into linear PCM16 and writes them to
// sink (the call's Recorder) until ctx is cancelled or the socket closes.
func (s *RTPSession) ReadLoop(ctx context.Context, sink io.Writer) error {
	buf := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return fmt.Errorf("sipgoua: read rtp: %w", err)
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}

		pcm, err := decodePayload(s.codec, pkt.Payload)
		if err != nil {
			continue
		}
		if _, err := sink.Write(pcm); err != nil {
			return fmt.Errorf("sipgoua: write decoded pcm to sink: %w", err)
		}
	}
}

// WriteFrom reads linear PCM16 from src in ptime-sized frames, encodes each
// with the session's codec, and sends it as RTP, paced by a ticker so the
// remote jitter buffer sees one packet every ptime regardless of how fast
// src can produce bytes.
func (s *RTPSession) WriteFrom(ctx context.Context, src io.Reader) error {
	frameBytes := ulawSamples * 2 // linear PCM16, 2 bytes/sample
	frame := make([]byte, frameBytes)

	ticker := time.NewTicker(s.ptime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		n, err := io.ReadFull(src, frame)
		if err == io.EOF {
			return nil
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return fmt.Errorf("sipgoua: read pcm frame: %w", err)
		}
		if n == 0 {
			continue
		}

		payload, err := encodePayload(s.codec, frame[:n])
		if err != nil {
			continue
		}

		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        rtpVersion,
				PayloadType:    s.codec.PayloadType,
				SequenceNumber: s.seq,
				Timestamp:      s.timestamp,
				SSRC:           s.ssrc,
			},
			Payload: payload,
		}
		s.seq++
		s.timestamp += uint32(ulawSamples)

		raw, err := pkt.Marshal()
		if err != nil {
			continue
		}
		if s.remoteAddr == nil {
			continue
		}
		if _, err := s.conn.WriteToUDP(raw, s.remoteAddr); err != nil {
			return fmt.Errorf("sipgoua: write rtp: %w", err)
		}
	}
}

func decodePayload(codec Codec, payload []byte) ([]byte, error) {
	switch codec.PayloadType {
	case CodecPCMU.PayloadType:
		return g711.DecodeUlaw(payload), nil
	case CodecPCMA.PayloadType:
		return g711.DecodeAlaw(payload), nil
	default:
		return nil, fmt.Errorf("sipgoua: unsupported payload type %d", codec.PayloadType)
	}
}

func encodePayload(codec Codec, pcm []byte) ([]byte, error) {
	switch codec.PayloadType {
	case CodecPCMU.PayloadType:
		return g711.EncodeUlaw(pcm), nil
	case CodecPCMA.PayloadType:
		return g711.EncodeAlaw(pcm), nil
	default:
		return nil, fmt.Errorf("sipgoua: unsupported payload type %d", codec.PayloadType)
	}
}
