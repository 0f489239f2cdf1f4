package handler

import (
	"github.com/conductorsdk/worker-go/internal/config"
	"github.com/conductorsdk/worker-go/pkg/events"
)

// Option configures the task handler.
type Option func(*handlerOptions)

type handlerOptions struct {
	runtime   *config.Runtime
	resolver  *config.Resolver
	listeners []events.Listener
}

func defaultHandlerOptions() *handlerOptions {
	return &handlerOptions{}
}

// WithListeners registers extra event listeners alongside the built-in
// metrics collector.
func WithListeners(listeners ...events.Listener) Option {
	return func(o *handlerOptions) {
		o.listeners = append(o.listeners, listeners...)
	}
}

// WithRuntime injects process settings instead of reading them from the
// environment. Intended for embedding and tests.
func WithRuntime(cfg *config.Runtime) Option {
	return func(o *handlerOptions) {
		o.runtime = cfg
	}
}

// WithResolver injects a property resolver. Intended for tests.
func WithResolver(r *config.Resolver) Option {
	return func(o *handlerOptions) {
		o.resolver = r
	}
}
