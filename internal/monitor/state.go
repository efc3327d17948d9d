package monitor

import "time"

// Kind labels one monitor regime.
type Kind int

const (
	Connecting Kind = iota
	ResolvingReadiness
	BackoffWait
	SteadyMonitoring
)

func (k Kind) String() string {
	switch k {
	case Connecting:
		return "connecting"
	case ResolvingReadiness:
		return "resolving_readiness"
	case BackoffWait:
		return "backoff_wait"
	case SteadyMonitoring:
		return "steady_monitoring"
	default:
		return "unknown"
	}
}

// State is the monitor's current regime. Attempt counts consecutive
// not-ready conditions and resets to zero on reaching steady
// monitoring.
type State struct {
	Kind      Kind
	Attempt   int
	Remaining time.Duration
}

// ObservationKind labels one poll result driving a transition.
type ObservationKind int

const (
	// ObsPlaced: the identity query succeeded, the bot is on the server.
	ObsPlaced ObservationKind = iota
	// ObsNotPlaced: the identity query returned "not connected".
	ObsNotPlaced
	// ObsReady: readiness resolution joined the destination channel.
	ObsReady
	// ObsTargetDetected: a watched identity is already on the server.
	ObsTargetDetected
	// ObsDuplicateClient: a second session under the own identity exists.
	ObsDuplicateClient
	// ObsOnlineElsewhere: the web roster shows the watched name active.
	ObsOnlineElsewhere
	// ObsBackoffElapsed: the backoff wait completed uncancelled.
	ObsBackoffElapsed
)

// Observation is one poll result. RosterWait carries the roster poll
// interval for ObsOnlineElsewhere, where the wait is configuration
// rather than a backoff tier.
type Observation struct {
	Kind       ObservationKind
	RosterWait time.Duration
}

// Next is the pure transition function of the monitor state machine.
// Observations that make no sense in the current state leave it
// unchanged.
func Next(s State, obs Observation) State {
	switch s.Kind {
	case Connecting:
		switch obs.Kind {
		case ObsPlaced:
			return State{Kind: SteadyMonitoring}
		case ObsNotPlaced:
			return State{Kind: ResolvingReadiness, Attempt: s.Attempt}
		}
	case ResolvingReadiness:
		switch obs.Kind {
		case ObsReady:
			return State{Kind: SteadyMonitoring}
		case ObsTargetDetected, ObsDuplicateClient:
			attempt := s.Attempt + 1
			return State{Kind: BackoffWait, Attempt: attempt, Remaining: Delay(attempt)}
		case ObsOnlineElsewhere:
			attempt := s.Attempt + 1
			return State{Kind: BackoffWait, Attempt: attempt, Remaining: obs.RosterWait}
		}
	case BackoffWait:
		if obs.Kind == ObsBackoffElapsed {
			return State{Kind: Connecting, Attempt: s.Attempt}
		}
	}
	return s
}
