package rtc

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSDP = "v=0\r\no=- 4215775240449105457 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

func TestParseJanusOffer(t *testing.T) {
	msg := map[string]any{
		"janus": "event",
		"jsep":  map[string]any{"type": "offer", "sdp": testSDP},
	}
	sig, err := ParseJanus(msg)
	require.NoError(t, err)
	assert.Equal(t, "event", sig.Janus)
	require.NotNil(t, sig.JSEP)
	assert.Equal(t, webrtc.SDPTypeOffer, sig.JSEP.Type)
	assert.Nil(t, sig.Candidate)
}

func TestParseJanusFromText(t *testing.T) {
	sig, err := ParseJanus(`{"janus":"webrtcup","session_id":1}`)
	require.NoError(t, err)
	assert.Equal(t, "webrtcup", sig.Janus)
	assert.Nil(t, sig.JSEP)
}

func TestParseJanusTrickle(t *testing.T) {
	sig, err := ParseJanus(`{"janus":"trickle","candidate":{"candidate":"candidate:1 1 udp 2130706431 192.0.2.10 50000 typ host","sdpMid":"0","sdpMLineIndex":0}}`)
	require.NoError(t, err)
	require.NotNil(t, sig.Candidate)
	require.NotNil(t, sig.Candidate.SDPMid)
	assert.Equal(t, "0", *sig.Candidate.SDPMid)

	sig, err = ParseJanus(`{"janus":"trickle","candidate":{"completed":true}}`)
	require.NoError(t, err)
	assert.True(t, sig.Completed)
	assert.Nil(t, sig.Candidate)
}

func TestParseJanusRejectsMalformed(t *testing.T) {
	cases := map[string]any{
		"nil":          nil,
		"not json":     "{{",
		"no verb":      `{"jsep":{"type":"offer","sdp":""}}`,
		"bad jsep":     `{"janus":"event","jsep":{"type":"bogus","sdp":""}}`,
		"bad sdp":      `{"janus":"event","jsep":{"type":"answer","sdp":"hello"}}`,
		"bad cand":     `{"janus":"trickle","candidate":{"candidate":"candidate:garbage"}}`,
		"wrong shape":  `{"janus":"trickle","candidate":"x"}`,
		"not a object": `[1,2]`,
	}
	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateJanus(msg), ErrInvalidSignal)
		})
	}
}
