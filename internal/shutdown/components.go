package shutdown

import (
	"context"
	"io"
	"net/http"
)

// HTTPServerComponent stops accepting connections and drains in-flight
// requests.
type HTTPServerComponent struct {
	name   string
	server *http.Server
}

// NewHTTPServerComponent creates a new HTTP server shutdown component.
func NewHTTPServerComponent(name string, server *http.Server) *HTTPServerComponent {
	return &HTTPServerComponent{name: name, server: server}
}

func (c *HTTPServerComponent) Name() string { return c.name }

func (c *HTTPServerComponent) Shutdown(ctx context.Context) error {
	return c.server.Shutdown(ctx)
}

// CloserComponent wraps an io.Closer such as the store or a redis client.
type CloserComponent struct {
	name   string
	closer io.Closer
}

// NewCloserComponent creates a new closer shutdown component.
func NewCloserComponent(name string, closer io.Closer) *CloserComponent {
	return &CloserComponent{name: name, closer: closer}
}

func (c *CloserComponent) Name() string { return c.name }

func (c *CloserComponent) Shutdown(ctx context.Context) error {
	return c.closer.Close()
}

// FuncComponent wraps a shutdown function as a component.
type FuncComponent struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFuncComponent creates a new function-based shutdown component.
func NewFuncComponent(name string, fn func(ctx context.Context) error) *FuncComponent {
	return &FuncComponent{name: name, fn: fn}
}

func (c *FuncComponent) Name() string { return c.name }

func (c *FuncComponent) Shutdown(ctx context.Context) error {
	return c.fn(ctx)
}

// RunnerComponent stops a background runner started with a cancellable
// context: Shutdown cancels the context and waits for the runner to report
// that it has returned.
type RunnerComponent struct {
	name   string
	cancel context.CancelFunc
	done   <-chan struct{}
}

// NewRunnerComponent creates a runner component. done must be closed when
// the runner has exited.
func NewRunnerComponent(name string, cancel context.CancelFunc, done <-chan struct{}) *RunnerComponent {
	return &RunnerComponent{name: name, cancel: cancel, done: done}
}

func (c *RunnerComponent) Name() string { return c.name }

func (c *RunnerComponent) Shutdown(ctx context.Context) error {
	c.cancel()
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
