package query

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

const (
	// Terminator ends every outbound command line.
	Terminator = "\n\r"

	bufferSize  = 512
	readTimeout = 2 * time.Second
	bannerWait  = 10 * time.Millisecond
)

var ErrMissingTerminator = errors.New("query: payload missing line terminator")

// Conn owns one TCP connection to the admin console for its whole
// lifetime. All reads are deadline-bounded so a silent peer can never
// block a caller indefinitely.
type Conn struct {
	conn net.Conn
}

// Dial connects to the admin console and drains the greeting banner.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("query: dial %s: %w", addr, err)
	}
	c := &Conn{conn: conn}

	time.Sleep(bannerWait)
	banner, ok, err := c.readData()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("query: read greeting: %w", err)
	}
	if !ok {
		log.Warn().Str("addr", addr).Msg("no greeting banner received")
	} else {
		log.Debug().Str("addr", addr).Int("bytes", len(banner)).Msg("greeting drained")
	}
	return c, nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

// writeData sends one already-terminated command line. A short write is
// logged as an anomaly and not retried.
func (c *Conn) writeData(payload string) error {
	if !strings.HasSuffix(payload, Terminator) {
		return ErrMissingTerminator
	}
	n, err := c.conn.Write([]byte(payload))
	if err != nil {
		return fmt.Errorf("query: write: %w", err)
	}
	if n != len(payload) {
		log.Error().
			Int("expect", len(payload)).
			Int("wrote", n).
			Str("payload", payload).
			Msg("short write on admin connection")
	}
	return nil
}

// readData accumulates deadline-bounded reads until a chunk comes in
// shorter than the buffer or a status line appears. A timeout with
// nothing accumulated yields ok=false, meaning "no data yet"; a timeout
// after partial data returns what arrived so far and lets the caller
// keep collecting.
func (c *Conn) readData() (string, bool, error) {
	buf := make([]byte, bufferSize)
	var sb strings.Builder
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return "", false, fmt.Errorf("query: set read deadline: %w", err)
		}
		n, err := c.conn.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				if sb.Len() == 0 {
					return "", false, nil
				}
				return sb.String(), true, nil
			}
			return "", false, fmt.Errorf("query: read: %w", err)
		}
		if n < bufferSize || hasStatusLine(sb.String()) {
			return sb.String(), true, nil
		}
	}
}

// delayRead keeps reading, discarding empty timeout windows, until a
// status line is observed. Used right after a write so a stray timeout
// cannot lose part of the reply.
func (c *Conn) delayRead(ctx context.Context) (string, error) {
	var sb strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("query: wait reply: %w", err)
		}
		chunk, ok, err := c.readData()
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		sb.WriteString(chunk)
		if hasStatusLine(sb.String()) {
			return sb.String(), nil
		}
	}
}

func (c *Conn) writeAndRead(ctx context.Context, payload string) (string, error) {
	if err := c.writeData(payload); err != nil {
		return "", err
	}
	return c.delayRead(ctx)
}

func hasStatusLine(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "error id=") {
			return true
		}
	}
	return false
}
