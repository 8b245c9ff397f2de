package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	pkglog "github.com/weiawesome/wes-io-live/ticket-scanner/pkg/log"
)

// Cue plays the confirmation sound.
type Cue interface {
	// Play starts the cue and returns without waiting for it to finish.
	Play(ctx context.Context) error
	Close() error
}

// CommandCue plays a sound file through an external player. At most one
// playback runs at a time: a new Play stops the previous one and starts
// the clip over.
type CommandCue struct {
	player string
	args   []string
	path   string

	mu      sync.Mutex
	current *exec.Cmd
	plays   int64
}

// NewCommandCue creates a cue that runs `player args... path`.
func NewCommandCue(player string, args []string, path string) *CommandCue {
	return &CommandCue{
		player: player,
		args:   append([]string(nil), args...),
		path:   path,
	}
}

func (c *CommandCue) Play(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()

	args := append(append([]string(nil), c.args...), c.path)
	cmd := exec.Command(c.player, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start audio player: %w", err)
	}
	c.current = cmd
	c.plays++

	go c.reap(ctx, cmd)
	return nil
}

func (c *CommandCue) reap(ctx context.Context, cmd *exec.Cmd) {
	err := cmd.Wait()

	c.mu.Lock()
	if c.current == cmd {
		c.current = nil
	}
	c.mu.Unlock()

	if err != nil {
		l := pkglog.Ctx(ctx)
		l.Trace().Err(err).Msg("audio cue ended")
	}
}

// Plays reports how many cues were started.
func (c *CommandCue) Plays() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.plays
}

// Close stops any playing cue.
func (c *CommandCue) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	return nil
}

func (c *CommandCue) stopLocked() {
	if c.current == nil || c.current.Process == nil {
		return
	}
	if err := c.current.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		l := pkglog.L()
		l.Debug().Err(err).Msg("failed to stop previous audio cue")
	}
	c.current = nil
}

// Nop is a Cue that plays nothing, used when audio is disabled.
type Nop struct{}

func (Nop) Play(context.Context) error { return nil }
func (Nop) Close() error               { return nil }

var (
	_ Cue = (*CommandCue)(nil)
	_ Cue = Nop{}
)
