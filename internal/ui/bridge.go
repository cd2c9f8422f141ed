package ui

import (
	"bytes"
	"context"
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/bldr/internal/builder"
)

// Sender delivers messages to a running program. *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge connects a builder running on another goroutine to the dashboard.
type Bridge struct {
	send Sender

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewBridge creates a bridge to s.
func NewBridge(s Sender) *Bridge {
	return &Bridge{send: s}
}

// Handler returns a builder event handler that forwards every event.
func (b *Bridge) Handler() builder.EventHandler {
	return func(e builder.Event) error {
		if e.Type == builder.EventPostTask || e.Type == builder.EventPostCall {
			b.flush()
		}
		b.send.Send(EventMsg(e))
		return nil
	}
}

// Write implements io.Writer. Complete lines are sent as OutputMsg.
func (b *Bridge) Write(p []byte) (int, error) {
	b.mu.Lock()
	b.buf.Write(p)
	var lines []string
	for {
		i := bytes.IndexByte(b.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(b.buf.Next(i+1), "\r\n"))
		lines = append(lines, line)
	}
	b.mu.Unlock()

	for _, line := range lines {
		b.send.Send(OutputMsg(line))
	}
	return len(p), nil
}

// Done flushes pending output and reports the build outcome.
func (b *Bridge) Done(res *builder.Result, err error) {
	b.flush()
	b.send.Send(DoneMsg{Result: res, Err: err})
}

// flush sends a trailing partial line.
func (b *Bridge) flush() {
	b.mu.Lock()
	rest := b.buf.String()
	b.buf.Reset()
	b.mu.Unlock()

	if rest != "" {
		b.send.Send(OutputMsg(rest))
	}
}

// Run shows the dashboard while build runs on its own goroutine, and
// returns the build outcome once the user quits. Quitting early cancels
// the build context and waits for the build to stop.
func Run(ctx context.Context, m *Model, build func(ctx context.Context, b *Bridge) (*builder.Result, error), opts ...tea.ProgramOption) (*builder.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.SetCancel(cancel)

	p := tea.NewProgram(m, append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)...)
	bridge := NewBridge(p)

	type outcome struct {
		res *builder.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := build(ctx, bridge)
		bridge.Done(res, err)
		done <- outcome{res, err}
	}()

	_, uiErr := p.Run()
	cancel()
	out := <-done
	if out.err == nil && uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return out.res, uiErr
	}
	return out.res, out.err
}
