// Package monitor runs the bot's two regimes: an entry/backoff regime
// that resolves whether the bot may sit on the server, and a
// steady-state regime that polls presence and drives the companion
// player.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/tswatch/internal/config"
	"github.com/danmuck/tswatch/internal/observability"
	"github.com/danmuck/tswatch/internal/query"
)

// AdminSession is the console surface the monitor needs.
type AdminSession interface {
	WhoAmI(ctx context.Context) (query.WhoAmI, error)
	ListClients(ctx context.Context) ([]query.Client, error)
	ConnectServer(ctx context.Context, address, nickname string) error
	WaitUntilConnected(ctx context.Context, timeout time.Duration) error
	QueryOwnDatabaseID(ctx context.Context) (int64, error)
	CheckSelfDuplicate(ctx context.Context) (bool, error)
	SwitchChannelByName(ctx context.Context, name string) error
	SetCurrentChannelPassword(ctx context.Context, password string) error
	Disconnect(ctx context.Context) error
}

// Playback is the companion player surface the monitor needs.
type Playback interface {
	Status(ctx context.Context) (bool, error)
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
}

// Readiness is the closed outcome set of one readiness resolution.
type Readiness int

const (
	// ReadinessOnline: the web roster shows the watched name active.
	ReadinessOnline Readiness = iota
	// ReadinessTargetDetected: a watched identity is on the server.
	ReadinessTargetDetected
	// ReadinessDuplicateClient: a second session under the own identity.
	ReadinessDuplicateClient
	// ReadinessNotOnline: joined the destination channel, ready to watch.
	ReadinessNotOnline
)

func (r Readiness) String() string {
	switch r {
	case ReadinessOnline:
		return "online"
	case ReadinessTargetDetected:
		return "target_detected"
	case ReadinessDuplicateClient:
		return "duplicate_client"
	case ReadinessNotOnline:
		return "not_online"
	default:
		return "unknown"
	}
}

// Monitor owns one Session and, in steady state, one companion handle.
// The session and player are only ever touched from Run's goroutine;
// the mutex guards the state snapshot alone.
type Monitor struct {
	cfg     config.Config
	session AdminSession
	player  Playback
	probe   *RosterProbe

	mu    sync.Mutex
	state State
}

func New(cfg config.Config, session AdminSession, player Playback) *Monitor {
	m := &Monitor{
		cfg:     cfg,
		session: session,
		player:  player,
		state:   State{Kind: Connecting},
	}
	if cfg.Monitor.WebEnabled {
		m.probe = NewRosterProbe(cfg.Monitor.Backend, cfg.Monitor.Username, cfg.Monitor.Interval())
	}
	return m
}

func (m *Monitor) advance(obs Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := Next(m.state, obs)
	if next != m.state {
		log.Debug().
			Stringer("from", m.state.Kind).
			Stringer("to", next.Kind).
			Int("attempt", next.Attempt).
			Msg("monitor state transition")
	}
	m.state = next
}

// Run executes the entry regime and, once ready, the steady-state loop.
// It returns nil on cancellation and on a requested disconnect-and-stop.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		_, err := m.session.WhoAmI(ctx)
		if err == nil {
			m.advance(Observation{Kind: ObsPlaced})
			break
		}
		if query.Code(err) != query.StatusNotConnected {
			return fmt.Errorf("identity check failed: %w", err)
		}
		m.advance(Observation{Kind: ObsNotPlaced})

		outcome, err := m.resolveReadiness(ctx)
		if err != nil {
			return err
		}
		if outcome == ReadinessNotOnline {
			m.advance(Observation{Kind: ObsReady})
			break
		}

		m.advance(m.observationFor(outcome))
		observability.RecordBackoff(outcome.String())
		snap := m.StateSnapshot()
		log.Info().
			Stringer("outcome", outcome).
			Int("attempt", snap.Attempt).
			Dur("wait", snap.Remaining).
			Msg("not ready, backing off")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(snap.Remaining):
		}
		m.advance(Observation{Kind: ObsBackoffElapsed})
	}
	return m.steady(ctx)
}

func (m *Monitor) observationFor(outcome Readiness) Observation {
	switch outcome {
	case ReadinessOnline:
		return Observation{Kind: ObsOnlineElsewhere, RosterWait: m.cfg.Monitor.Interval()}
	case ReadinessDuplicateClient:
		return Observation{Kind: ObsDuplicateClient}
	default:
		return Observation{Kind: ObsTargetDetected}
	}
}

// resolveReadiness decides whether the bot may join the server while the
// console reports it as not placed anywhere.
func (m *Monitor) resolveReadiness(ctx context.Context) (Readiness, error) {
	if m.probe != nil {
		online, err := m.probe.Online(ctx)
		if err != nil {
			return 0, fmt.Errorf("roster probe failed: %w", err)
		}
		if online {
			return ReadinessOnline, nil
		}
		if err := m.joinServer(ctx); err != nil {
			return 0, err
		}
	} else {
		if err := m.joinServer(ctx); err != nil {
			return 0, err
		}
		if _, err := m.session.QueryOwnDatabaseID(ctx); err != nil {
			return 0, fmt.Errorf("resolve own database id: %w", err)
		}
		duplicate, err := m.session.CheckSelfDuplicate(ctx)
		if err != nil {
			return 0, fmt.Errorf("check self duplicate: %w", err)
		}
		if duplicate {
			observability.RecordDisconnect("duplicate_client")
			if err := m.session.Disconnect(ctx); err != nil {
				return 0, fmt.Errorf("disconnect after duplicate: %w", err)
			}
			return ReadinessDuplicateClient, nil
		}
	}

	clients, err := m.session.ListClients(ctx)
	if err != nil {
		return 0, fmt.Errorf("list clients: %w", err)
	}
	for _, client := range clients {
		if m.cfg.WatchedIDs.Contains(client.DatabaseID) {
			observability.RecordDisconnect("target_detected")
			if err := m.session.Disconnect(ctx); err != nil {
				return 0, fmt.Errorf("disconnect after target detection: %w", err)
			}
			return ReadinessTargetDetected, nil
		}
	}

	if err := m.session.SwitchChannelByName(ctx, m.cfg.Server.Channel); err != nil {
		return 0, fmt.Errorf("switch channel: %w", err)
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(m.cfg.Server.SwitchSettle()):
	}
	if m.cfg.Server.Password != "" {
		if err := m.session.SetCurrentChannelPassword(ctx, m.cfg.Server.Password); err != nil {
			log.Warn().Err(err).Msg("set channel password failed, ignored")
		}
	}
	return ReadinessNotOnline, nil
}

func (m *Monitor) joinServer(ctx context.Context) error {
	if err := m.session.ConnectServer(ctx, m.cfg.Server.Address, m.cfg.Monitor.Username); err != nil {
		return fmt.Errorf("connect to server: %w", err)
	}
	if err := m.session.WaitUntilConnected(ctx, m.cfg.Server.Timeout()); err != nil {
		return fmt.Errorf("wait for server connection: %w", err)
	}
	return nil
}

// steady is the presence poll loop: fetch clients, honor the forced-exit
// and duplicate-session guards, then keep playback opposite to presence.
func (m *Monitor) steady(ctx context.Context) error {
	databaseID, err := m.session.QueryOwnDatabaseID(ctx)
	if err != nil {
		return fmt.Errorf("resolve own database id: %w", err)
	}
	log.Info().Int64("database_id", databaseID).Msg("steady monitoring started")

	for {
		if ctx.Err() != nil {
			return nil
		}
		observability.RecordTick()

		clients, err := m.session.ListClients(ctx)
		if err != nil {
			return fmt.Errorf("query clients: %w", err)
		}
		present := false
		ownSessions := 0
		for _, client := range clients {
			if m.cfg.WatchedIDs.Contains(client.DatabaseID) {
				present = true
			}
			if client.DatabaseID == databaseID {
				ownSessions++
			}
		}

		if present && m.cfg.NeedDisconnect {
			log.Info().Msg("watched identity present, disconnecting as configured")
			observability.RecordDisconnect("target_detected")
			if err := m.session.Disconnect(ctx); err != nil {
				return err
			}
			return nil
		}
		if ownSessions > 1 {
			log.Info().Int("sessions", ownSessions).Msg("duplicate own session, disconnecting")
			observability.RecordDisconnect("duplicate_client")
			if err := m.session.Disconnect(ctx); err != nil {
				return fmt.Errorf("disconnect duplicate session: %w", err)
			}
		}

		playing, err := m.player.Status(ctx)
		if err != nil {
			return fmt.Errorf("companion status: %w", err)
		}
		if playing == present {
			if present {
				if err := m.player.Pause(ctx); err != nil {
					return fmt.Errorf("pause playback: %w", err)
				}
				observability.RecordToggle("pause")
			} else {
				if err := m.player.Play(ctx); err != nil {
					return fmt.Errorf("resume playback: %w", err)
				}
				observability.RecordToggle("play")
			}
			log.Info().Bool("present", present).Bool("was_playing", playing).Msg("playback toggled")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.cfg.Monitor.Tick()):
		}
	}
}

// StateSnapshot exposes the current regime for logging and tests.
func (m *Monitor) StateSnapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
