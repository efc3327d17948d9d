package companion

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/tswatch/internal/testutil/testlog"
)

// startPlayer wires a Client to a scripted control console. respond is
// called per received command line and returns the raw reply, or "" for
// commands that answer nothing.
func startPlayer(t *testing.T, respond func(cmd string) string) (*Client, func(n int) []string) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	t.Cleanup(func() {
		clientSide.Close()
		serverSide.Close()
	})
	received := make(chan string, 16)
	go func() {
		r := bufio.NewReader(serverSide)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.TrimSpace(line)
			received <- cmd
			if reply := respond(cmd); reply != "" {
				if _, err := serverSide.Write([]byte(reply)); err != nil {
					return
				}
			}
		}
	}()
	drain := func(n int) []string {
		out := make([]string, 0, n)
		for len(out) < n {
			select {
			case cmd := <-received:
				out = append(out, cmd)
			case <-time.After(2 * time.Second):
				t.Fatalf("timed out waiting for commands, got %v", out)
			}
		}
		return out
	}
	return &Client{conn: clientSide}, drain
}

func TestStatusPlaying(t *testing.T) {
	testlog.Start(t)
	c, _ := startPlayer(t, func(cmd string) string {
		if cmd != "status" {
			t.Errorf("unexpected command %q", cmd)
		}
		return "( new input: file:///music/track.flac )\n( audio volume: 230 )\n( state playing )\n"
	})
	playing, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !playing {
		t.Fatalf("expected playing")
	}
}

func TestStatusPaused(t *testing.T) {
	testlog.Start(t)
	c, _ := startPlayer(t, func(string) string {
		return "( state paused )\n"
	})
	playing, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if playing {
		t.Fatalf("expected paused")
	}
}

func TestStatusNoStateToken(t *testing.T) {
	testlog.Start(t)
	c, _ := startPlayer(t, func(string) string {
		return "garbled reply\n"
	})
	_, err := c.Status(context.Background())
	if !errors.Is(err, ErrNoState) {
		t.Fatalf("expected ErrNoState, got %v", err)
	}
}

func TestPlayPauseCommands(t *testing.T) {
	testlog.Start(t)
	c, drain := startPlayer(t, func(string) string { return "" })
	ctx := context.Background()
	if err := c.Play(ctx); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := c.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	got := drain(2)
	if len(got) != 2 || got[0] != "play" || got[1] != "pause" {
		t.Fatalf("unexpected commands %v", got)
	}
}
