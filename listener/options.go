// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package listener

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// DefaultBacklog is the default listen backlog.
const DefaultBacklog = 128

// listenerOptions holds configuration options for Listen.
type listenerOptions struct {
	logger      *logiface.Logger[logiface.Event]
	sockets     Sockets
	handler     AcceptHandler
	peerLimit   *catrate.Limiter
	backlog     int
	connTimeout time.Duration
	reusePort   bool
}

// Option configures a Listener.
type Option interface {
	applyListener(*listenerOptions) error
}

type optionImpl struct {
	applyListenerFunc func(*listenerOptions) error
}

func (o *optionImpl) applyListener(opts *listenerOptions) error {
	return o.applyListenerFunc(opts)
}

// WithBacklog sets the listen backlog, [DefaultBacklog] by default.
func WithBacklog(n int) Option {
	return &optionImpl{func(opts *listenerOptions) error {
		if n <= 0 {
			return fmt.Errorf("listener: invalid backlog: %d", n)
		}
		opts.backlog = n
		return nil
	}}
}

// WithAcceptHandler sets the handler for accepted connections,
// [DefaultAcceptHandler] by default.
func WithAcceptHandler(handler AcceptHandler) Option {
	return &optionImpl{func(opts *listenerOptions) error {
		if handler == nil {
			return errors.New("listener: nil accept handler")
		}
		opts.handler = handler
		return nil
	}}
}

// WithConnTimeout sets the timeout passed to [eventloop.Loop.Register] for
// connections accepted by the handler. Zero (the default) means none.
func WithConnTimeout(d time.Duration) Option {
	return &optionImpl{func(opts *listenerOptions) error {
		if d < 0 {
			return fmt.Errorf("listener: invalid conn timeout: %s", d)
		}
		opts.connTimeout = d
		return nil
	}}
}

// WithPeerRateLimit limits the connections admitted per peer IP, over one or
// more sliding windows, e.g. {time.Second: 5, time.Minute: 60}. The rates
// must satisfy [catrate.NewLimiter].
func WithPeerRateLimit(rates map[time.Duration]int) Option {
	return &optionImpl{func(opts *listenerOptions) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("listener: invalid peer rate limit: %v", r)
			}
		}()
		opts.peerLimit = catrate.NewLimiter(rates)
		return nil
	}}
}

// WithLogger sets the structured logger. A nil logger (the default) disables
// logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *listenerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithSockets replaces the socket implementation, e.g. with a fake.
func WithSockets(sockets Sockets) Option {
	return &optionImpl{func(opts *listenerOptions) error {
		if sockets == nil {
			return errors.New("listener: nil sockets")
		}
		opts.sockets = sockets
		return nil
	}}
}

// WithReusePort controls whether SO_REUSEPORT is set, true by default.
func WithReusePort(enabled bool) Option {
	return &optionImpl{func(opts *listenerOptions) error {
		opts.reusePort = enabled
		return nil
	}}
}

func resolveOptions(opts []Option) (*listenerOptions, error) {
	cfg := &listenerOptions{
		sockets:   defaultSockets(),
		handler:   DefaultAcceptHandler,
		backlog:   DefaultBacklog,
		reusePort: true,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyListener(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
