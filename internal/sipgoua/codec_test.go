package sipgoua

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSDPIncludesTelephoneEvent(t *testing.T) {
	sdp := GenerateSDP(DefaultSDPConfig("10.0.0.5", 20000))
	assert.Contains(t, sdp, "m=audio 20000 RTP/AVP 0 8 101")
	assert.Contains(t, sdp, "a=rtpmap:101 telephone-event/8000")
	assert.Contains(t, sdp, "a=fmtp:101 0-16")
}

func TestNegotiatedSDPConfigAdvertisesSingleCodec(t *testing.T) {
	sdp := GenerateSDP(NegotiatedSDPConfig("10.0.0.5", 20000, &CodecPCMA))
	assert.Contains(t, sdp, "RTP/AVP 8 101")
	assert.NotContains(t, sdp, "PCMU")
}

func TestParseSDPExtractsMediaInfo(t *testing.T) {
	body := "v=0\r\no=- 1 1 IN IP4 192.168.1.10\r\ns=-\r\nc=IN IP4 192.168.1.10\r\nt=0 0\r\n" +
		"m=audio 10000 RTP/AVP 0 8 101\r\na=rtpmap:0 PCMU/8000\r\na=sendrecv\r\n"

	info, err := ParseSDP([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.10", info.ConnectionIP)
	assert.Equal(t, 10000, info.AudioPort)
	assert.Equal(t, DirectionSendRecv, info.Direction)
	require.NotNil(t, info.PreferredCodec)
	assert.Equal(t, "PCMU", info.PreferredCodec.Name)
}

func TestParseSDPDetectsHold(t *testing.T) {
	body := "v=0\r\nc=IN IP4 0.0.0.0\r\nm=audio 10000 RTP/AVP 0\r\na=sendonly\r\n"
	info, err := ParseSDP([]byte(body))
	require.NoError(t, err)
	assert.True(t, info.IsHold())
}

func TestParseSDPRejectsEmptyBody(t *testing.T) {
	_, err := ParseSDP(nil)
	assert.Error(t, err)
}

func TestNegotiateCodecPrefersOurOrderSkippingTelephoneEvent(t *testing.T) {
	codec := NegotiateCodec(SupportedCodecs, []uint8{101, 8, 0})
	assert.Equal(t, CodecPCMU.PayloadType, codec.PayloadType)
}

func TestNegotiateCodecDefaultsToPCMUWhenNoMatch(t *testing.T) {
	codec := NegotiateCodec(SupportedCodecs, []uint8{9})
	assert.Equal(t, CodecPCMU.PayloadType, codec.PayloadType)
}

func TestNegotiateCodecHonorsCallerPriorityOrder(t *testing.T) {
	reordered := []Codec{CodecPCMA, CodecPCMU}
	codec := NegotiateCodec(reordered, []uint8{CodecPCMU.PayloadType, CodecPCMA.PayloadType})
	assert.Equal(t, CodecPCMA.PayloadType, codec.PayloadType)
}

func TestLocalPortAllocatorRoundTrips(t *testing.T) {
	a := NewLocalPortAllocator(20000, 20010)
	require.NoError(t, a.Init(nil))

	port, err := a.Allocate()
	require.NoError(t, err)
	assert.True(t, port >= 20000 && port < 20010)
	assert.Equal(t, 0, port%2)

	inUse, err := a.InUse()
	require.NoError(t, err)
	assert.Equal(t, 1, inUse)

	a.Release(port)
	inUse, err = a.InUse()
	require.NoError(t, err)
	assert.Equal(t, 0, inUse)
}

func TestLocalPortAllocatorExhaustion(t *testing.T) {
	a := NewLocalPortAllocator(20000, 20004)
	require.NoError(t, a.Init(nil))

	_, err := a.Allocate()
	require.NoError(t, err)
	_, err = a.Allocate()
	require.NoError(t, err)

	_, err = a.Allocate()
	assert.Error(t, err)
}
