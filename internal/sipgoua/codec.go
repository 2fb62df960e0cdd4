// Package sipgoua binds internal/sipiface.Library to a real SIP/RTP stack:
// emiago/sipgo for signaling, pion/rtp for packetization, zaf/g711 for
// PCMU/PCMA transcoding. It is the only package in this module that
// imports any of those three.
package sipgoua

import (
	"fmt"
	"strconv"
	"strings"
)

// Codec describes one negotiable RTP audio codec.
type Codec struct {
	Name        string
	PayloadType uint8
	ClockRate   uint32
	Channels    int
}

var (
	CodecPCMU = Codec{Name: "PCMU", PayloadType: 0, ClockRate: 8000, Channels: 1}
	CodecPCMA = Codec{Name: "PCMA", PayloadType: 8, ClockRate: 8000, Channels: 1}

	// CodecTelephoneEvent is RFC 4733 DTMF telephone-event. Most SIP
	// endpoints expect it in the offer/answer even when DTMF is never
	// sent, or they refuse to bridge media.
	CodecTelephoneEvent = Codec{Name: "telephone-event", PayloadType: 101, ClockRate: 8000, Channels: 1}
)

// SupportedCodecs lists audio codecs in order of preference, excluding
// telephone-event.
var SupportedCodecs = []Codec{CodecPCMU, CodecPCMA}

// Direction is the SDP media direction attribute.
type Direction string

const (
	DirectionSendRecv Direction = "sendrecv"
	DirectionSendOnly Direction = "sendonly"
	DirectionRecvOnly Direction = "recvonly"
	DirectionInactive Direction = "inactive"
)

// MediaInfo is what ParseSDP extracts from a remote offer/answer.
type MediaInfo struct {
	ConnectionIP   string
	AudioPort      int
	PayloadTypes   []uint8
	PreferredCodec *Codec
	Direction      Direction
}

// IsHold reports whether the remote SDP signals a hold condition: a
// send-only/inactive direction, or a null connection address (RFC 3264).
func (m *MediaInfo) IsHold() bool {
	if m.Direction == DirectionSendOnly || m.Direction == DirectionInactive {
		return true
	}
	return m.ConnectionIP == "0.0.0.0"
}

// SDPConfig configures an offer or answer this binding generates.
type SDPConfig struct {
	SessionID   string
	SessionName string
	LocalIP     string
	RTPPort     int
	Codecs      []Codec
	PTimeMs     int
}

// DefaultSDPConfig advertises every supported codec.
func DefaultSDPConfig(localIP string, rtpPort int) *SDPConfig {
	return &SDPConfig{
		SessionID:   "0",
		SessionName: "echomatrix",
		LocalIP:     localIP,
		RTPPort:     rtpPort,
		Codecs:      SupportedCodecs,
		PTimeMs:     20,
	}
}

// NegotiatedSDPConfig advertises only the single codec already agreed on.
// Binding.Answer uses it for the SDP of its answer to an INVITE.
func NegotiatedSDPConfig(localIP string, rtpPort int, codec *Codec) *SDPConfig {
	if codec == nil {
		codec = &CodecPCMU
	}
	return &SDPConfig{
		SessionID:   "0",
		SessionName: "echomatrix",
		LocalIP:     localIP,
		RTPPort:     rtpPort,
		Codecs:      []Codec{*codec},
		PTimeMs:     20,
	}
}

// GenerateSDP renders cfg as an SDP body, always advertising
// telephone-event per RFC 4733.
func GenerateSDP(cfg *SDPConfig) string {
	var sb strings.Builder

	sb.WriteString("v=0\r\n")
	sb.WriteString(fmt.Sprintf("o=echomatrix %s 0 IN IP4 %s\r\n", cfg.SessionID, cfg.LocalIP))
	sb.WriteString(fmt.Sprintf("s=%s\r\n", cfg.SessionName))
	sb.WriteString(fmt.Sprintf("c=IN IP4 %s\r\n", cfg.LocalIP))
	sb.WriteString("t=0 0\r\n")

	payloadTypes := make([]string, 0, len(cfg.Codecs)+1)
	hasTelEvent := false
	for _, codec := range cfg.Codecs {
		payloadTypes = append(payloadTypes, strconv.Itoa(int(codec.PayloadType)))
		if codec.PayloadType == CodecTelephoneEvent.PayloadType {
			hasTelEvent = true
		}
	}
	if !hasTelEvent {
		payloadTypes = append(payloadTypes, strconv.Itoa(int(CodecTelephoneEvent.PayloadType)))
	}
	sb.WriteString(fmt.Sprintf("m=audio %d RTP/AVP %s\r\n", cfg.RTPPort, strings.Join(payloadTypes, " ")))

	for _, codec := range cfg.Codecs {
		sb.WriteString(fmt.Sprintf("a=rtpmap:%d %s/%d\r\n", codec.PayloadType, codec.Name, codec.ClockRate))
	}
	if !hasTelEvent {
		sb.WriteString(fmt.Sprintf("a=rtpmap:%d %s/%d\r\n",
			CodecTelephoneEvent.PayloadType, CodecTelephoneEvent.Name, CodecTelephoneEvent.ClockRate))
		sb.WriteString(fmt.Sprintf("a=fmtp:%d 0-16\r\n", CodecTelephoneEvent.PayloadType))
	}

	sb.WriteString(fmt.Sprintf("a=ptime:%d\r\n", cfg.PTimeMs))
	sb.WriteString("a=sendrecv\r\n")

	return sb.String()
}

// ParseSDP extracts media information from a remote SDP body.
func ParseSDP(sdpBody []byte) (*MediaInfo, error) {
	if len(sdpBody) == 0 {
		return nil, fmt.Errorf("sipgoua: empty SDP body")
	}

	info := &MediaInfo{
		PayloadTypes: make([]uint8, 0),
		Direction:    DirectionSendRecv,
	}

	for _, line := range strings.Split(string(sdpBody), "\n") {
		line = strings.TrimSuffix(strings.TrimSpace(line), "\r")

		switch {
		case strings.HasPrefix(line, "c=IN IP4 "):
			info.ConnectionIP = strings.TrimSpace(strings.TrimPrefix(line, "c=IN IP4 "))

		case strings.HasPrefix(line, "m=audio "):
			parts := strings.Fields(line)
			if len(parts) >= 4 {
				if port, err := strconv.Atoi(parts[1]); err == nil {
					info.AudioPort = port
				}
				for i := 3; i < len(parts); i++ {
					if pt, err := strconv.Atoi(parts[i]); err == nil && pt >= 0 && pt <= 127 {
						info.PayloadTypes = append(info.PayloadTypes, uint8(pt))
					}
				}
			}

		case line == "a=sendrecv":
			info.Direction = DirectionSendRecv
		case line == "a=sendonly":
			info.Direction = DirectionSendOnly
		case line == "a=recvonly":
			info.Direction = DirectionRecvOnly
		case line == "a=inactive":
			info.Direction = DirectionInactive
		}
	}

	for _, pt := range info.PayloadTypes {
		if pt == CodecTelephoneEvent.PayloadType {
			continue
		}
		for _, codec := range SupportedCodecs {
			if codec.PayloadType == pt {
				c := codec
				info.PreferredCodec = &c
				break
			}
		}
		if info.PreferredCodec != nil {
			break
		}
	}
	if info.PreferredCodec == nil && len(info.PayloadTypes) > 0 {
		info.PreferredCodec = &CodecPCMU
	}

	return info, nil
}

// NegotiateCodec picks the first of ours (in ours' priority order) also
// offered by the remote side, defaulting to PCMU.
func NegotiateCodec(ours []Codec, remotePayloadTypes []uint8) *Codec {
	for _, supported := range ours {
		for _, remotePT := range remotePayloadTypes {
			if remotePT == CodecTelephoneEvent.PayloadType {
				continue
			}
			if supported.PayloadType == remotePT {
				c := supported
				return &c
			}
		}
	}
	return &CodecPCMU
}

// CodecByPayloadType returns a supported codec by RTP payload type.
func CodecByPayloadType(pt uint8) *Codec {
	for _, codec := range SupportedCodecs {
		if codec.PayloadType == pt {
			c := codec
			return &c
		}
	}
	return nil
}
