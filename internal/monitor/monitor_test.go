package monitor

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/tswatch/internal/config"
	"github.com/danmuck/tswatch/internal/query"
	"github.com/danmuck/tswatch/internal/testutil/testlog"
)

type fakeSession struct {
	whoAmI          func(ctx context.Context) (query.WhoAmI, error)
	listClients     func(ctx context.Context) ([]query.Client, error)
	connectCalls    atomic.Int32
	switchedChannel atomic.Value
	passwordSet     atomic.Value
	disconnects     atomic.Int32
	duplicate       bool
}

func (f *fakeSession) WhoAmI(ctx context.Context) (query.WhoAmI, error) {
	if f.whoAmI != nil {
		return f.whoAmI(ctx)
	}
	return query.WhoAmI{ClientID: 7, ChannelID: 42}, nil
}

func (f *fakeSession) ListClients(ctx context.Context) ([]query.Client, error) {
	if f.listClients != nil {
		return f.listClients(ctx)
	}
	return []query.Client{{ClientID: 7, DatabaseID: 99}}, nil
}

func (f *fakeSession) ConnectServer(ctx context.Context, address, nickname string) error {
	f.connectCalls.Add(1)
	return nil
}

func (f *fakeSession) WaitUntilConnected(ctx context.Context, timeout time.Duration) error {
	return nil
}

func (f *fakeSession) QueryOwnDatabaseID(ctx context.Context) (int64, error) {
	return 99, nil
}

func (f *fakeSession) CheckSelfDuplicate(ctx context.Context) (bool, error) {
	return f.duplicate, nil
}

func (f *fakeSession) SwitchChannelByName(ctx context.Context, name string) error {
	f.switchedChannel.Store(name)
	return nil
}

func (f *fakeSession) SetCurrentChannelPassword(ctx context.Context, password string) error {
	f.passwordSet.Store(password)
	return nil
}

func (f *fakeSession) Disconnect(ctx context.Context) error {
	f.disconnects.Add(1)
	return nil
}

type fakePlayer struct {
	playing atomic.Bool
	plays   atomic.Int32
	pauses  atomic.Int32
}

func (f *fakePlayer) Status(ctx context.Context) (bool, error) {
	return f.playing.Load(), nil
}

func (f *fakePlayer) Play(ctx context.Context) error {
	f.plays.Add(1)
	f.playing.Store(true)
	return nil
}

func (f *fakePlayer) Pause(ctx context.Context) error {
	f.pauses.Add(1)
	f.playing.Store(false)
	return nil
}

func watchConfig() config.Config {
	return config.Config{
		APIKey:     "k",
		WatchedIDs: config.IDList{42},
		Server: config.Server{
			Address: "voice.example.com",
			Channel: "AFK",
		},
	}
}

func notConnectedErr() error {
	return &query.Error{Code: query.StatusNotConnected, Message: "not connected"}
}

func TestSteadyPlaybackFollowsPresence(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := &fakeSession{}
	var ticks atomic.Int32
	session.listClients = func(context.Context) ([]query.Client, error) {
		switch ticks.Add(1) {
		case 1:
			// Watched identity present alongside the bot.
			return []query.Client{
				{ClientID: 7, DatabaseID: 99},
				{ClientID: 8, DatabaseID: 42},
			}, nil
		case 2:
			return []query.Client{{ClientID: 7, DatabaseID: 99}}, nil
		default:
			cancel()
			return []query.Client{{ClientID: 7, DatabaseID: 99}}, nil
		}
	}
	player := &fakePlayer{}
	// Companion already paused while the watched user is present: the
	// first tick is in the correct sync state and must not act.

	m := New(watchConfig(), session, player)
	if err := m.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := player.plays.Load(); got != 1 {
		t.Fatalf("expected exactly one play, got %d", got)
	}
	if got := player.pauses.Load(); got != 0 {
		t.Fatalf("expected no pauses, got %d", got)
	}
	if got := m.StateSnapshot().Kind; got != SteadyMonitoring {
		t.Fatalf("expected steady state, got %v", got)
	}
}

func TestSteadyPausesWhenWatchedArrives(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := &fakeSession{}
	var ticks atomic.Int32
	session.listClients = func(context.Context) ([]query.Client, error) {
		if ticks.Add(1) >= 2 {
			cancel()
		}
		return []query.Client{
			{ClientID: 7, DatabaseID: 99},
			{ClientID: 8, DatabaseID: 42},
		}, nil
	}
	player := &fakePlayer{}
	player.playing.Store(true)

	m := New(watchConfig(), session, player)
	if err := m.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := player.pauses.Load(); got != 1 {
		t.Fatalf("expected exactly one pause, got %d", got)
	}
}

func TestSteadyForcedExitOnDetection(t *testing.T) {
	testlog.Start(t)
	session := &fakeSession{}
	session.listClients = func(context.Context) ([]query.Client, error) {
		return []query.Client{
			{ClientID: 7, DatabaseID: 99},
			{ClientID: 8, DatabaseID: 42},
		}, nil
	}
	player := &fakePlayer{}

	cfg := watchConfig()
	cfg.NeedDisconnect = true
	m := New(cfg, session, player)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := session.disconnects.Load(); got != 1 {
		t.Fatalf("expected one disconnect, got %d", got)
	}
	// The run stops before touching the companion.
	if player.plays.Load() != 0 || player.pauses.Load() != 0 {
		t.Fatalf("companion must not be driven after forced exit")
	}
}

func TestSteadyDuplicateSessionGuard(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := &fakeSession{}
	var ticks atomic.Int32
	session.listClients = func(context.Context) ([]query.Client, error) {
		if ticks.Add(1) >= 2 {
			cancel()
		}
		// Own identity appears twice; no watched identity present.
		return []query.Client{
			{ClientID: 7, DatabaseID: 99},
			{ClientID: 13, DatabaseID: 99},
		}, nil
	}
	player := &fakePlayer{}
	player.playing.Store(true)

	m := New(watchConfig(), session, player)
	if err := m.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if session.disconnects.Load() == 0 {
		t.Fatalf("expected duplicate-session disconnect")
	}
}

func TestEntryResolvesReadinessAndJoins(t *testing.T) {
	testlog.Start(t)
	session := &fakeSession{}
	var identityCalls atomic.Int32
	session.whoAmI = func(context.Context) (query.WhoAmI, error) {
		if identityCalls.Add(1) == 1 {
			return query.WhoAmI{}, notConnectedErr()
		}
		return query.WhoAmI{ClientID: 7, ChannelID: 42}, nil
	}
	var listCalls atomic.Int32
	session.listClients = func(context.Context) ([]query.Client, error) {
		// The early check during readiness resolution sees a clean
		// server; the watched identity arrives once steady.
		if listCalls.Add(1) == 1 {
			return []query.Client{{ClientID: 7, DatabaseID: 99}}, nil
		}
		return []query.Client{
			{ClientID: 7, DatabaseID: 99},
			{ClientID: 8, DatabaseID: 42},
		}, nil
	}
	player := &fakePlayer{}

	cfg := watchConfig()
	cfg.NeedDisconnect = true
	cfg.Server.Password = "hunter2"
	m := New(cfg, session, player)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if session.connectCalls.Load() != 1 {
		t.Fatalf("expected one server join, got %d", session.connectCalls.Load())
	}
	if got, _ := session.switchedChannel.Load().(string); got != "AFK" {
		t.Fatalf("expected AFK join, got %q", got)
	}
	if got, _ := session.passwordSet.Load().(string); got != "hunter2" {
		t.Fatalf("expected channel password to be applied, got %q", got)
	}
}

func TestEntryTargetDetectedBacksOff(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := &fakeSession{}
	session.whoAmI = func(context.Context) (query.WhoAmI, error) {
		return query.WhoAmI{}, notConnectedErr()
	}
	// Resolving readiness finds the watched identity already online.
	baseList := func(context.Context) ([]query.Client, error) {
		return []query.Client{{ClientID: 8, DatabaseID: 42}}, nil
	}
	session.listClients = baseList

	done := make(chan error, 1)
	m := New(watchConfig(), session, &fakePlayer{})
	go func() { done <- m.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for m.StateSnapshot().Kind != BackoffWait {
		select {
		case <-deadline:
			t.Fatalf("monitor never entered backoff, state=%+v", m.StateSnapshot())
		case <-time.After(5 * time.Millisecond):
		}
	}
	snap := m.StateSnapshot()
	if snap.Attempt != 1 || snap.Remaining != 5*time.Minute {
		t.Fatalf("unexpected backoff state %+v", snap)
	}
	if session.disconnects.Load() != 1 {
		t.Fatalf("expected disconnect before backoff")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestEntryFatalStatusAborts(t *testing.T) {
	testlog.Start(t)
	session := &fakeSession{}
	session.whoAmI = func(context.Context) (query.WhoAmI, error) {
		return query.WhoAmI{}, &query.Error{Code: 2568, Message: "insufficient permissions"}
	}
	m := New(watchConfig(), session, &fakePlayer{})
	err := m.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "identity check failed") {
		t.Fatalf("expected fatal identity error, got %v", err)
	}
	if query.Code(err) != 2568 {
		t.Fatalf("expected peer code to propagate, got %v", err)
	}
}

func TestReadinessOutcomeStrings(t *testing.T) {
	testlog.Start(t)
	cases := map[Readiness]string{
		ReadinessOnline:          "online",
		ReadinessTargetDetected:  "target_detected",
		ReadinessDuplicateClient: "duplicate_client",
		ReadinessNotOnline:       "not_online",
	}
	for outcome, want := range cases {
		if got := outcome.String(); got != want {
			t.Fatalf("outcome %d: got %q want %q", outcome, got, want)
		}
	}
}
