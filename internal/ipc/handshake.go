package ipc

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rbright/voicerpc/internal/fsm"
)

const (
	nonceSize = 20
	// handshakeMessageLimit matches the peer's cap on authentication messages.
	handshakeMessageLimit = 256
)

var (
	challengeTag   = []byte("#CHALLENGE#")
	welcomeMessage = []byte("#WELCOME#")
	failureMessage = []byte("#FAILURE#")
)

// Handshake runs the client side of the mutual challenge-response exchange
// on one channel. The zero state is fsm.StateStart; a Handshake is single use.
type Handshake struct {
	Conn *MessageConn
	Key  []byte
	// Rand supplies our challenge nonce; nil means crypto/rand.
	Rand io.Reader
	// StepTimeout bounds each inbound-message wait; zero waits forever.
	StepTimeout time.Duration
	Logger      *slog.Logger

	state fsm.State
	nonce []byte
}

// State reports the current handshake state.
func (h *Handshake) State() fsm.State {
	if h.state == "" {
		return fsm.StateStart
	}
	return h.state
}

// Run drives the handshake until it is authenticated or fails.
// The channel is left open either way; the caller owns closing it.
func (h *Handshake) Run(ctx context.Context) error {
	for {
		state := h.State()
		switch state {
		case fsm.StateAuthenticated:
			return nil
		case fsm.StateFailed:
			return fmt.Errorf("%w: handshake already failed", ErrAuthenticationRejected)
		}

		msg, err := h.Conn.ReceiveContext(ctx, handshakeMessageLimit, h.StepTimeout)
		if err != nil {
			return h.fail(fmt.Errorf("handshake %s: %w", state, err))
		}
		if err := h.handle(ctx, state, msg); err != nil {
			return h.fail(fmt.Errorf("handshake %s: %w", state, err))
		}
	}
}

func (h *Handshake) handle(ctx context.Context, state fsm.State, msg []byte) error {
	switch state {
	case fsm.StateStart:
		nonce, err := parseChallenge(msg)
		if err != nil {
			return err
		}
		if err := h.Conn.SendContext(ctx, sign(h.Key, nonce), h.StepTimeout); err != nil {
			return err
		}
		return h.advance(fsm.EventChallengeAnswered)

	case fsm.StateAwaitingWelcome:
		if err := expectWelcome(msg); err != nil {
			return err
		}
		h.nonce = make([]byte, nonceSize)
		if _, err := io.ReadFull(h.random(), h.nonce); err != nil {
			return fmt.Errorf("generate challenge: %w", err)
		}
		if err := h.Conn.SendContext(ctx, challengeMessage(h.nonce), h.StepTimeout); err != nil {
			return err
		}
		return h.advance(fsm.EventWelcomed)

	case fsm.StateAwaitingPeerDigest:
		ok := verify(h.Key, h.nonce, msg)
		clear(h.nonce)
		h.nonce = nil
		if !ok {
			_ = h.Conn.SendContext(ctx, failureMessage, h.StepTimeout)
			return fmt.Errorf("%w: peer digest mismatch", ErrAuthenticationRejected)
		}
		if err := h.Conn.SendContext(ctx, welcomeMessage, h.StepTimeout); err != nil {
			return err
		}
		return h.advance(fsm.EventPeerVerified)

	default:
		return fmt.Errorf("unexpected handshake state %q", state)
	}
}

func (h *Handshake) advance(event fsm.Event) error {
	next, err := fsm.Transition(h.State(), event)
	if err != nil {
		return err
	}
	if h.Logger != nil {
		h.Logger.Debug("handshake step", "from", h.State(), "event", event, "to", next)
	}
	h.state = next
	return nil
}

func (h *Handshake) fail(err error) error {
	if next, transitionErr := fsm.Transition(h.State(), fsm.EventFail); transitionErr == nil {
		h.state = next
	}
	clear(h.nonce)
	h.nonce = nil
	return err
}

func (h *Handshake) random() io.Reader {
	if h.Rand != nil {
		return h.Rand
	}
	return rand.Reader
}

// AcceptHandshake runs the peer side: challenge the client first, then answer its challenge.
func AcceptHandshake(ctx context.Context, conn *MessageConn, key []byte, random io.Reader, stepTimeout time.Duration) error {
	if random == nil {
		random = rand.Reader
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(random, nonce); err != nil {
		return fmt.Errorf("generate challenge: %w", err)
	}
	if err := conn.SendContext(ctx, challengeMessage(nonce), stepTimeout); err != nil {
		return err
	}
	digest, err := conn.ReceiveContext(ctx, handshakeMessageLimit, stepTimeout)
	if err != nil {
		return err
	}
	if !verify(key, nonce, digest) {
		_ = conn.SendContext(ctx, failureMessage, stepTimeout)
		return fmt.Errorf("%w: client digest mismatch", ErrAuthenticationRejected)
	}
	if err := conn.SendContext(ctx, welcomeMessage, stepTimeout); err != nil {
		return err
	}

	challenge, err := conn.ReceiveContext(ctx, handshakeMessageLimit, stepTimeout)
	if err != nil {
		return err
	}
	clientNonce, err := parseChallenge(challenge)
	if err != nil {
		return err
	}
	if err := conn.SendContext(ctx, sign(key, clientNonce), stepTimeout); err != nil {
		return err
	}
	reply, err := conn.ReceiveContext(ctx, handshakeMessageLimit, stepTimeout)
	if err != nil {
		return err
	}
	return expectWelcome(reply)
}

// parseChallenge returns the trailing nonce of a "#CHALLENGE#" message.
func parseChallenge(msg []byte) ([]byte, error) {
	if !bytes.HasPrefix(msg, challengeTag) {
		return nil, fmt.Errorf("%w: expected challenge, got %d bytes without %q tag", ErrProtocolViolation, len(msg), challengeTag)
	}
	if len(msg)-len(challengeTag) < nonceSize {
		return nil, fmt.Errorf("%w: challenge carries %d nonce bytes, want at least %d", ErrProtocolViolation, len(msg)-len(challengeTag), nonceSize)
	}
	return msg[len(msg)-nonceSize:], nil
}

func expectWelcome(msg []byte) error {
	if bytes.Equal(msg, welcomeMessage) {
		return nil
	}
	if bytes.Equal(msg, failureMessage) {
		return fmt.Errorf("%w: peer reported digest failure", ErrAuthenticationRejected)
	}
	return fmt.Errorf("%w: digest sent was rejected", ErrAuthenticationRejected)
}

func challengeMessage(nonce []byte) []byte {
	msg := make([]byte, 0, len(challengeTag)+len(nonce))
	msg = append(msg, challengeTag...)
	return append(msg, nonce...)
}

// sign computes the HMAC-MD5 digest the peer protocol mandates.
func sign(key, nonce []byte) []byte {
	mac := hmac.New(md5.New, key)
	mac.Write(nonce)
	return mac.Sum(nil)
}

func verify(key, nonce, digest []byte) bool {
	return hmac.Equal(sign(key, nonce), digest)
}
