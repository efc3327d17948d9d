// Package companion drives a media player's plain-text remote-control
// console: query playback state, play, pause.
package companion

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const readTimeout = 2 * time.Second

// ErrNoState reports a status reply without a parseable state token.
var ErrNoState = errors.New("companion: no state token in status reply")

// Client is a line-protocol client for the player's control console.
type Client struct {
	conn net.Conn
}

// Dial connects to the control console, drains the banner, and answers
// the password prompt when a password is configured.
func Dial(ctx context.Context, addr, password string, timeout time.Duration) (*Client, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("companion: dial %s: %w", addr, err)
	}
	c := &Client{conn: conn}

	banner, err := c.readWindow()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if password != "" {
		if err := c.writeLine(password); err != nil {
			conn.Close()
			return nil, err
		}
		if _, err := c.readWindow(); err != nil {
			conn.Close()
			return nil, err
		}
	}
	log.Debug().Str("addr", addr).Int("banner_bytes", len(banner)).Msg("companion connected")
	return c, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Status reports whether the player is actively playing. The console
// answers with a parenthesized state token, e.g. "( state playing )".
func (c *Client) Status(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := c.writeLine("status"); err != nil {
		return false, err
	}
	reply, err := c.readWindow()
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, "state") {
			continue
		}
		open := strings.IndexByte(line, '(')
		end := strings.IndexByte(line, ')')
		if open < 0 || end < open {
			continue
		}
		return strings.Contains(line[open:end], "playing"), nil
	}
	return false, fmt.Errorf("%w: %q", ErrNoState, reply)
}

// Play resumes playback.
func (c *Client) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.writeLine("play")
}

// Pause halts playback.
func (c *Client) Pause(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.writeLine("pause")
}

func (c *Client) writeLine(line string) error {
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("companion: write: %w", err)
	}
	return nil
}

// readWindow collects whatever arrives within one read deadline. The
// console has no reply terminator, so one bounded window is the best
// available framing.
func (c *Client) readWindow() (string, error) {
	var sb strings.Builder
	buf := make([]byte, 512)
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return "", fmt.Errorf("companion: set read deadline: %w", err)
		}
		n, err := c.conn.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return sb.String(), nil
			}
			return "", fmt.Errorf("companion: read: %w", err)
		}
		if n < len(buf) {
			return sb.String(), nil
		}
	}
}
