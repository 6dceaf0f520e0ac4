// Package control lets an operator pause, resume and stop a running batch
// from the terminal.
package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"
)

type Control struct {
	paused int32
	cancel context.CancelFunc
	poll   time.Duration
}

// New returns a Control whose Stop calls cancel.
func New(cancel context.CancelFunc) *Control {
	return &Control{cancel: cancel, poll: 200 * time.Millisecond}
}

func (c *Control) Pause() bool  { return atomic.CompareAndSwapInt32(&c.paused, 0, 1) }
func (c *Control) Resume() bool { return atomic.CompareAndSwapInt32(&c.paused, 1, 0) }
func (c *Control) Paused() bool { return atomic.LoadInt32(&c.paused) == 1 }

func (c *Control) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// WaitIfPaused blocks while paused. It returns ctx.Err() if ctx ends first.
func (c *Control) WaitIfPaused(ctx context.Context) error {
	for c.Paused() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.poll):
		}
	}
	return ctx.Err()
}

// Sleep waits out a pause and then d.
func (c *Control) Sleep(ctx context.Context, d time.Duration) error {
	if err := c.WaitIfPaused(ctx); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return c.WaitIfPaused(ctx)
	}
}

// Loop reads one command per line from in until in is exhausted, ctx ends
// or a stop command arrives.
func (c *Control) Loop(ctx context.Context, in io.Reader, out io.Writer) {
	fmt.Fprintln(out, "Controls: [p]ause, [r]esume, [s]top")

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "p":
				if c.Pause() {
					fmt.Fprintln(out, "PAUSED")
				}
			case "r":
				if c.Resume() {
					fmt.Fprintln(out, "RESUMED")
				}
			case "s", "q":
				fmt.Fprintln(out, "STOPPING")
				c.Stop()
				return
			}
		}
	}
}
