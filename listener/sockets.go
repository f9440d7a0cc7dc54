// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package listener

import (
	"net/netip"

	"github.com/joeycumines/go-reactor/eventloop"
)

// SocketOption is a boolean socket option, see [Sockets.SetOption].
type SocketOption uint8

const (
	// ReuseAddr is SO_REUSEADDR.
	ReuseAddr SocketOption = iota + 1
	// ReusePort is SO_REUSEPORT.
	ReusePort
)

// String returns the option name.
func (o SocketOption) String() string {
	switch o {
	case ReuseAddr:
		return "SO_REUSEADDR"
	case ReusePort:
		return "SO_REUSEPORT"
	default:
		return "unknown"
	}
}

// Sockets models the socket calls used by a [Listener]. Every descriptor it
// returns must be non-blocking and close-on-exec. Errors should be (or wrap)
// a [syscall.Errno], which the accept drain classifies.
type Sockets interface {
	// Socket creates a TCP socket of the family of addr.
	Socket(addr netip.AddrPort) (int, error)
	// SetOption enables opt.
	SetOption(fd int, opt SocketOption) error
	Bind(fd int, addr netip.AddrPort) error
	Listen(fd int, backlog int) error
	// Accept accepts one pending connection, returning its peer address.
	Accept(fd int) (int, netip.AddrPort, error)
	Getsockname(fd int) (netip.AddrPort, error)
	Close(fd int) error
}

// Conn is an accepted connection, not yet owned by the loop.
type Conn struct {
	Peer netip.AddrPort
	FD   int
}

// AcceptHandler decides what becomes of an accepted connection. Returning
// true registers the connection with the loop, using the returned Spec, its
// FD set to conn.FD. Returning false closes the connection.
type AcceptHandler func(conn Conn) (eventloop.Spec, bool)

// DefaultAcceptHandler closes every connection.
func DefaultAcceptHandler(Conn) (eventloop.Spec, bool) {
	return eventloop.Spec{}, false
}
