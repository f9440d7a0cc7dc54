// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package listener

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-reactor/eventloop"
	"github.com/joeycumines/logiface"
)

// Listener is a TCP listening socket, registered with an [eventloop.Loop].
type Listener struct {
	loop        *eventloop.Loop
	sockets     Sockets
	logger      *logiface.Logger[logiface.Event]
	handler     AcceptHandler
	peerLimit   *catrate.Limiter
	errLimit    *catrate.Limiter // throttles accept error logs, per errno
	stats       listenerStats
	addr        netip.AddrPort
	connTimeout time.Duration
	id          eventloop.EventID
}

// Stats is a snapshot of listener counters, see [Listener.Stats].
type Stats struct {
	// Accepted is the number of connections accepted from the kernel.
	Accepted uint64
	// Rejected is the number of connections closed by the peer rate limit.
	Rejected uint64
	// Handled is the number of connections registered with the loop.
	Handled uint64
	// Drains is the number of times the accept queue was drained.
	Drains uint64
}

type listenerStats struct {
	accepted atomic.Uint64
	rejected atomic.Uint64
	handled  atomic.Uint64
	drains   atomic.Uint64
}

// Listen creates a non-blocking TCP socket bound to addr, and registers it
// with loop. A port of 0 binds an ephemeral port, see [Listener.Addr].
//
// Socket setup failures are returned as a [*ResourceError]. Registration
// failures are returned as reported by [eventloop.Loop.Register].
func Listen(loop *eventloop.Loop, addr netip.AddrPort, opts ...Option) (*Listener, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	fd, err := cfg.sockets.Socket(addr)
	if err != nil {
		return nil, &ResourceError{Op: `socket`, Addr: addr, Err: err}
	}

	bound, err := setup(cfg, fd, addr)
	if err != nil {
		_ = cfg.sockets.Close(fd)
		return nil, err
	}

	x := &Listener{
		loop:        loop,
		sockets:     cfg.sockets,
		logger:      cfg.logger,
		handler:     cfg.handler,
		peerLimit:   cfg.peerLimit,
		errLimit:    catrate.NewLimiter(map[time.Duration]int{time.Second: 1, time.Minute: 10}),
		addr:        bound,
		connTimeout: cfg.connTimeout,
	}

	x.id, err = loop.Register(eventloop.Spec{
		FD:       fd,
		OnReady:  x.onReady,
		OnClose:  x.onClose,
		Interest: eventloop.Readable,
	}, 0)
	if err != nil {
		if !ownedByLoop(err) {
			_ = cfg.sockets.Close(fd)
		}
		return nil, err
	}

	x.logger.Info().
		Str(`addr`, bound.String()).
		Int(`backlog`, cfg.backlog).
		Log(`listener: listening`)

	return x, nil
}

func setup(cfg *listenerOptions, fd int, addr netip.AddrPort) (netip.AddrPort, error) {
	fail := func(op string, err error) (netip.AddrPort, error) {
		return netip.AddrPort{}, &ResourceError{Op: op, Addr: addr, Err: err}
	}
	if err := cfg.sockets.SetOption(fd, ReuseAddr); err != nil {
		return fail(`setsockopt `+ReuseAddr.String(), err)
	}
	if cfg.reusePort {
		if err := cfg.sockets.SetOption(fd, ReusePort); err != nil {
			return fail(`setsockopt `+ReusePort.String(), err)
		}
	}
	if err := cfg.sockets.Bind(fd, addr); err != nil {
		return fail(`bind`, err)
	}
	if err := cfg.sockets.Listen(fd, cfg.backlog); err != nil {
		return fail(`listen`, err)
	}
	bound, err := cfg.sockets.Getsockname(fd)
	if err != nil {
		return fail(`getsockname`, err)
	}
	return bound, nil
}

// Addr returns the bound address.
func (x *Listener) Addr() netip.AddrPort { return x.addr }

// ID returns the id of the listening event.
func (x *Listener) ID() eventloop.EventID { return x.id }

// Stats returns a snapshot of the listener counters.
func (x *Listener) Stats() Stats {
	return Stats{
		Accepted: x.stats.accepted.Load(),
		Rejected: x.stats.rejected.Load(),
		Handled:  x.stats.handled.Load(),
		Drains:   x.stats.drains.Load(),
	}
}

// Close unregisters the listener, closing the listening socket. Connections
// already registered are unaffected.
// Close must be called from the loop goroutine, or before the loop runs.
func (x *Listener) Close() {
	x.loop.Unregister(x.id)
}

func (x *Listener) onReady(ev *eventloop.Event) bool {
	x.stats.drains.Add(1)
	for !ev.Closing() && ev.FD() >= 0 {
		fd, peer, err := x.sockets.Accept(ev.FD())
		if err != nil {
			switch {
			case errors.Is(err, syscall.EAGAIN):
				ev.ClearReadable()
			case errors.Is(err, syscall.EINTR), errors.Is(err, syscall.ECONNABORTED):
				continue
			case errors.Is(err, syscall.EMFILE), errors.Is(err, syscall.ENFILE):
				x.logAcceptError(err, `listener: descriptor limit reached`)
			default:
				x.logAcceptError(err, `listener: accept failed`)
			}
			return true
		}
		x.stats.accepted.Add(1)
		x.handle(Conn{FD: fd, Peer: peer})
	}
	return true
}

func (x *Listener) handle(conn Conn) {
	if x.peerLimit != nil {
		if _, ok := x.peerLimit.Allow(conn.Peer.Addr()); !ok {
			x.stats.rejected.Add(1)
			x.logger.Debug().
				Str(`peer`, conn.Peer.String()).
				Log(`listener: peer rate limited`)
			x.closeConn(conn)
			return
		}
	}

	spec, ok := x.handler(conn)
	if !ok {
		x.closeConn(conn)
		return
	}

	spec.FD = conn.FD
	if _, err := x.loop.Register(spec, x.connTimeout); err != nil {
		if !ownedByLoop(err) {
			x.closeConn(conn)
		}
		x.logger.Warning().
			Str(`peer`, conn.Peer.String()).
			Err(err).
			Log(`listener: connection registration failed`)
		return
	}
	x.stats.handled.Add(1)
}

// ownedByLoop reports whether a failed [eventloop.Loop.Register] took
// ownership of (and so closed) the descriptor.
func ownedByLoop(err error) bool {
	var regErr *eventloop.RegistrationError
	return errors.As(err, &regErr) && !errors.Is(err, eventloop.ErrFDAlreadyRegistered)
}

func (x *Listener) closeConn(conn Conn) {
	if err := x.sockets.Close(conn.FD); err != nil {
		x.logger.Err().
			Int(`fd`, conn.FD).
			Err(err).
			Log(`listener: close failed`)
	}
}

func (x *Listener) logAcceptError(err error, msg string) {
	if b := x.logger.Err(); b.Enabled() {
		var category any = err
		var errno syscall.Errno
		if errors.As(err, &errno) {
			category = errno
		}
		if _, ok := x.errLimit.Allow(category); ok {
			b.Str(`addr`, x.addr.String()).
				Err(err).
				Log(msg)
			return
		}
		b.Release()
	}
}

func (x *Listener) onClose(ev *eventloop.Event) {
	if err := ev.CloseFD(); err != nil {
		x.logger.Err().
			Str(`addr`, x.addr.String()).
			Err(err).
			Log(`listener: close failed`)
	}
	x.logger.Info().
		Str(`addr`, x.addr.String()).
		Stringer(`reason`, ev.Reason()).
		Uint64(`accepted`, x.stats.accepted.Load()).
		Log(`listener: closed`)
}

// ResolveTCP resolves host to a single address, preferring IPv4, for use
// with [Listen].
func ResolveTCP(ctx context.Context, host string, port uint16) (netip.AddrPort, error) {
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, `ip`, host)
	if err == nil && len(addrs) == 0 {
		err = &net.DNSError{Err: `no such host`, Name: host, IsNotFound: true}
	}
	if err != nil {
		return netip.AddrPort{}, &ResourceError{Op: `resolve ` + host, Err: err}
	}
	addr := addrs[0]
	for _, a := range addrs {
		if a.Unmap().Is4() {
			addr = a
			break
		}
	}
	return netip.AddrPortFrom(addr.Unmap(), port), nil
}
