// Package lifecycle releases process resources exactly once at shutdown.
//
// Components register release funcs on a Group handed to them by the host.
// The host calls Shutdown from its own shutdown path; there are no
// package-level signal handlers.
package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// ReleaseFunc releases one resource.
type ReleaseFunc func(ctx context.Context) error

type entry struct {
	name string
	fn   ReleaseFunc
}

// Group is an ordered set of release funcs. Safe for concurrent use.
type Group struct {
	mu      sync.Mutex
	entries []entry
	once    sync.Once
	done    bool
}

// NewGroup creates an empty Group.
func NewGroup() *Group {
	return &Group{}
}

// Register adds fn under name. Funcs registered after Shutdown started are
// run immediately so nothing leaks.
func (g *Group) Register(name string, fn ReleaseFunc) {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		slog.Warn("Resource registered after shutdown, releasing now", "resource", name)
		release(context.Background(), entry{name: name, fn: fn})
		return
	}
	g.entries = append(g.entries, entry{name: name, fn: fn})
	g.mu.Unlock()
}

// RegisterCloser adds a func() error, such as a database client's Close.
func (g *Group) RegisterCloser(name string, closeFn func() error) {
	g.Register(name, func(context.Context) error { return closeFn() })
}

// Shutdown runs every registered func in reverse registration order.
// Only the first call does any work. Failures are logged and skipped.
func (g *Group) Shutdown(ctx context.Context) {
	g.once.Do(func() {
		g.mu.Lock()
		g.done = true
		entries := g.entries
		g.entries = nil
		g.mu.Unlock()

		for i := len(entries) - 1; i >= 0; i-- {
			release(ctx, entries[i])
		}
	})
}

func release(ctx context.Context, e entry) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Resource release panicked", "resource", e.name, "panic", r)
		}
	}()
	if err := e.fn(ctx); err != nil {
		slog.Error("Failed to release resource", "resource", e.name, "error", err)
		return
	}
	slog.Info("Released resource", "resource", e.name)
}

// Redeliver restores the default disposition for sig and sends it to the
// current process, so the exit status reflects the original signal.
func Redeliver(sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return nil
	}
	signal.Reset(s)
	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		return err
	}
	return p.Signal(s)
}
