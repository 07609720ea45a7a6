// Package fsm models the client-side authentication handshake as explicit state transitions.
package fsm

import "fmt"

type State string

type Event string

const (
	StateStart              State = "start"
	StateAwaitingWelcome    State = "awaiting_welcome"
	StateAwaitingPeerDigest State = "awaiting_peer_digest"
	StateAuthenticated      State = "authenticated"
	StateFailed             State = "failed"
)

const (
	// EventChallengeAnswered fires after the peer challenge digest was sent.
	EventChallengeAnswered Event = "challenge_answered"
	// EventWelcomed fires after the peer accepted our digest and our own challenge was sent.
	EventWelcomed Event = "welcomed"
	// EventPeerVerified fires after the peer digest matched and our welcome was sent.
	EventPeerVerified Event = "peer_verified"
	EventFail         Event = "fail"
)

func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		if current == StateAuthenticated {
			return current, invalidTransition(current, event)
		}
		return StateFailed, nil
	}

	switch current {
	case StateStart:
		switch event {
		case EventChallengeAnswered:
			return StateAwaitingWelcome, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAwaitingWelcome:
		switch event {
		case EventWelcomed:
			return StateAwaitingPeerDigest, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAwaitingPeerDigest:
		switch event {
		case EventPeerVerified:
			return StateAuthenticated, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAuthenticated, StateFailed:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// Terminal reports whether no further events are accepted from state.
func Terminal(state State) bool {
	return state == StateAuthenticated || state == StateFailed
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
