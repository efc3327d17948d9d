package query

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const connectPollInterval = 500 * time.Millisecond

// Session is the admin console protocol client. It exclusively owns its
// connection and keeps at most one request in flight: every operation is
// exactly one write answered by one terminal status line.
type Session struct {
	conn *Conn
}

// Connect dials the console and wraps the connection in a Session.
func Connect(ctx context.Context, addr string, timeout time.Duration) (*Session, error) {
	conn, err := Dial(ctx, addr, timeout)
	if err != nil {
		return nil, err
	}
	return &Session{conn: conn}, nil
}

func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) basicOperation(ctx context.Context, payload string) error {
	data, err := s.conn.writeAndRead(ctx, payload)
	if err != nil {
		return err
	}
	_, err = decodeStatus(data)
	return err
}

func queryRows[T any](ctx context.Context, s *Session, payload string, parse func(Record) (T, error)) ([]T, bool, error) {
	data, err := s.conn.writeAndRead(ctx, payload)
	if err != nil {
		return nil, false, err
	}
	rows, found, err := decodeRecords(data)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		v, err := parse(row)
		if err != nil {
			return nil, true, err
		}
		out = append(out, v)
	}
	return out, true, nil
}

// mustQueryRows is the "must succeed" query variant: the data line is
// required, and a record parse failure retries the whole write+read
// cycle exactly once. The retry absorbs the narrow race where an
// unrelated push line interleaves with the expected reply.
func mustQueryRows[T any](ctx context.Context, s *Session, payload string, parse func(Record) (T, error)) ([]T, error) {
	out, found, err := queryRows(ctx, s, payload, parse)
	if err != nil {
		if Code(err) != CodeParse {
			return nil, err
		}
		log.Debug().Str("payload", payload).Err(err).Msg("record parse failed, retrying once")
		out, found, err = queryRows(ctx, s, payload, parse)
		if err != nil {
			return nil, err
		}
	}
	if !found {
		return nil, resultNotFoundError(payload)
	}
	return out, nil
}

// Login authenticates against the console.
func (s *Session) Login(ctx context.Context, apiKey string) error {
	if err := s.basicOperation(ctx, fmt.Sprintf("auth apikey=%s%s", apiKey, Terminator)); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	return nil
}

// WhoAmI returns the bot's own identity and placement. Status code 1794
// means "not currently placed anywhere" and is routed by callers as a
// control signal rather than a failure.
func (s *Session) WhoAmI(ctx context.Context) (WhoAmI, error) {
	rows, err := mustQueryRows(ctx, s, "whoami"+Terminator, whoAmIFromRecord)
	if err != nil {
		return WhoAmI{}, err
	}
	return rows[0], nil
}

// ListClients returns every connected client. The data line is always
// expected; its absence escalates as a result-not-found error.
func (s *Session) ListClients(ctx context.Context) ([]Client, error) {
	return mustQueryRows(ctx, s, "clientlist"+Terminator, clientFromRecord)
}

// ListChannels returns every channel on the server.
func (s *Session) ListChannels(ctx context.Context) ([]Channel, error) {
	return mustQueryRows(ctx, s, "channellist"+Terminator, channelFromRecord)
}

// ConnectServer asks the console to connect its client to a server.
func (s *Session) ConnectServer(ctx context.Context, address, nickname string) error {
	return s.basicOperation(ctx, fmt.Sprintf("connect address=%s nickname=%s%s",
		Escape(address), Escape(nickname), Terminator))
}

// WaitUntilConnected polls the console until the client is placed on the
// server, the wait times out, or a non-placement error occurs.
func (s *Session) WaitUntilConnected(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		_, err := s.WhoAmI(ctx)
		if err == nil {
			return nil
		}
		if Code(err) != StatusNotConnected {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("wait for server connection timed out after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectPollInterval):
		}
	}
}

// SwitchChannel moves the bot into the channel with the given id.
func (s *Session) SwitchChannel(ctx context.Context, channelID int64) error {
	me, err := s.WhoAmI(ctx)
	if err != nil {
		return err
	}
	return s.basicOperation(ctx, fmt.Sprintf("clientmove cid=%d clid=%d%s",
		channelID, me.ClientID, Terminator))
}

// SwitchChannelByName resolves a channel by exact name match, first
// match wins, and moves the bot into it.
func (s *Session) SwitchChannelByName(ctx context.Context, name string) error {
	channels, err := s.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("resolve channel %q: %w", name, err)
	}
	for _, channel := range channels {
		if channel.Name == name {
			return s.SwitchChannel(ctx, channel.ID)
		}
	}
	return channelNotFoundError(name)
}

// SetChannelPassword edits the password of one channel.
func (s *Session) SetChannelPassword(ctx context.Context, channelID int64, password string) error {
	return s.basicOperation(ctx, fmt.Sprintf("channeledit cid=%d channel_password=%s%s",
		channelID, Escape(password), Terminator))
}

// SetCurrentChannelPassword resolves the bot's own channel and edits its
// password.
func (s *Session) SetCurrentChannelPassword(ctx context.Context, password string) error {
	me, err := s.WhoAmI(ctx)
	if err != nil {
		return err
	}
	return s.SetChannelPassword(ctx, me.ChannelID, password)
}

// UpdateDescription edits the stored description of a database identity.
func (s *Session) UpdateDescription(ctx context.Context, databaseID int64, description string) error {
	return s.basicOperation(ctx, fmt.Sprintf("clientdbedit cldbid=%d client_description=%s%s",
		databaseID, Escape(description), Terminator))
}

// QueryDescription fetches the description of one connected client.
func (s *Session) QueryDescription(ctx context.Context, clientID int64) (ClientVariable, error) {
	payload := fmt.Sprintf("clientvariable clid=%d client_description%s", clientID, Terminator)
	rows, found, err := queryRows(ctx, s, payload, clientVariableFromRecord)
	if err != nil {
		return ClientVariable{}, err
	}
	if !found || len(rows) == 0 {
		return ClientVariable{}, resultNotFoundError(payload)
	}
	return rows[0], nil
}

// ServerConnectInfo reports which server the console client is attached
// to.
func (s *Session) ServerConnectInfo(ctx context.Context) (ConnectInfo, error) {
	rows, err := mustQueryRows(ctx, s, "serverconnectinfo"+Terminator, connectInfoFromRecord)
	if err != nil {
		return ConnectInfo{}, err
	}
	return rows[0], nil
}

// QueryOwnDatabaseID cross-references the bot's client id against the
// client list to find its persistent database identity.
func (s *Session) QueryOwnDatabaseID(ctx context.Context) (int64, error) {
	me, err := s.WhoAmI(ctx)
	if err != nil {
		return 0, err
	}
	clients, err := s.ListClients(ctx)
	if err != nil {
		return 0, fmt.Errorf("query clients for database id: %w", err)
	}
	for _, client := range clients {
		if client.ClientID == me.ClientID {
			return client.DatabaseID, nil
		}
	}
	return 0, databaseIDError()
}

// CheckSelfDuplicate reports whether a second live session exists under
// the bot's own database identity.
func (s *Session) CheckSelfDuplicate(ctx context.Context) (bool, error) {
	databaseID, err := s.QueryOwnDatabaseID(ctx)
	if err != nil {
		return false, err
	}
	clients, err := s.ListClients(ctx)
	if err != nil {
		return false, err
	}
	count := 0
	for _, client := range clients {
		if client.DatabaseID == databaseID {
			count++
		}
	}
	return count > 1, nil
}

// Disconnect leaves the server. Failures are logged, not retried; from
// the caller's view the operation is idempotent.
func (s *Session) Disconnect(ctx context.Context) error {
	if err := s.basicOperation(ctx, "disconnect"+Terminator); err != nil {
		log.Warn().Err(err).Msg("disconnect failed")
		return err
	}
	return nil
}

// Logout terminates the console session itself.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.basicOperation(ctx, "quit"+Terminator); err != nil {
		log.Warn().Err(err).Msg("logout failed")
		return err
	}
	return nil
}
