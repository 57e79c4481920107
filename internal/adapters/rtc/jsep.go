// Package rtc checks WebRTC signaling that passes through the presence layer
// on its way from a printer's Janus gateway to the browser. Nothing here
// terminates media; payloads are only parsed and validated.
package rtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
)

var ErrInvalidSignal = errors.New("invalid signaling message")

const candidatePrefix = "candidate:"

// Signal is a Janus gateway message with its WebRTC parts decoded.
type Signal struct {
	Janus     string
	JSEP      *webrtc.SessionDescription
	Candidate *webrtc.ICECandidateInit
	// Completed marks the end-of-candidates trickle.
	Completed bool
}

type janusEnvelope struct {
	Janus     string          `json:"janus"`
	JSEP      json.RawMessage `json:"jsep,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type trickleCandidate struct {
	webrtc.ICECandidateInit
	Completed bool `json:"completed,omitempty"`
}

// ParseJanus decodes msg, which is either the raw JSON text the agent
// forwards or an already decoded object.
func ParseJanus(msg any) (Signal, error) {
	var raw []byte
	switch m := msg.(type) {
	case string:
		raw = []byte(m)
	case []byte:
		raw = m
	case nil:
		return Signal{}, fmt.Errorf("%w: empty message", ErrInvalidSignal)
	default:
		b, err := json.Marshal(m)
		if err != nil {
			return Signal{}, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
		}
		raw = b
	}

	var env janusEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	if env.Janus == "" {
		return Signal{}, fmt.Errorf("%w: missing janus verb", ErrInvalidSignal)
	}
	sig := Signal{Janus: env.Janus}

	if len(env.JSEP) > 0 {
		sd, err := parseJSEP(env.JSEP)
		if err != nil {
			return Signal{}, err
		}
		sig.JSEP = sd
	}
	if len(env.Candidate) > 0 {
		var tc trickleCandidate
		if err := json.Unmarshal(env.Candidate, &tc); err != nil {
			return Signal{}, fmt.Errorf("%w: candidate: %v", ErrInvalidSignal, err)
		}
		if tc.Completed {
			sig.Completed = true
			return sig, nil
		}
		if err := validateCandidate(tc.Candidate); err != nil {
			return Signal{}, err
		}
		ci := tc.ICECandidateInit
		sig.Candidate = &ci
	}
	return sig, nil
}

// ValidateJanus reports whether msg is safe to relay to viewers.
func ValidateJanus(msg any) error {
	_, err := ParseJanus(msg)
	return err
}

func parseJSEP(raw json.RawMessage) (*webrtc.SessionDescription, error) {
	var body struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: jsep: %v", ErrInvalidSignal, err)
	}
	typ := webrtc.NewSDPType(body.Type)
	if typ == webrtc.SDPTypeUnknown {
		return nil, fmt.Errorf("%w: jsep type %q", ErrInvalidSignal, body.Type)
	}
	sd := &webrtc.SessionDescription{Type: typ, SDP: body.SDP}
	if typ == webrtc.SDPTypeRollback {
		return sd, nil
	}
	if _, err := sd.Unmarshal(); err != nil {
		return nil, fmt.Errorf("%w: sdp: %v", ErrInvalidSignal, err)
	}
	return sd, nil
}

// validateCandidate accepts an empty string, which some gateways send as
// end-of-candidates.
func validateCandidate(c string) error {
	if c == "" {
		return nil
	}
	if _, err := ice.UnmarshalCandidate(strings.TrimPrefix(c, candidatePrefix)); err != nil {
		return fmt.Errorf("%w: candidate %q: %v", ErrInvalidSignal, c, err)
	}
	return nil
}
