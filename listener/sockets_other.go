// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build !linux

package listener

import (
	"errors"
	"net/netip"
)

type unsupportedSockets struct{}

func defaultSockets() Sockets { return unsupportedSockets{} }

func (unsupportedSockets) Socket(netip.AddrPort) (int, error) {
	return -1, errors.ErrUnsupported
}

func (unsupportedSockets) SetOption(int, SocketOption) error { return errors.ErrUnsupported }

func (unsupportedSockets) Bind(int, netip.AddrPort) error { return errors.ErrUnsupported }

func (unsupportedSockets) Listen(int, int) error { return errors.ErrUnsupported }

func (unsupportedSockets) Accept(int) (int, netip.AddrPort, error) {
	return -1, netip.AddrPort{}, errors.ErrUnsupported
}

func (unsupportedSockets) Getsockname(int) (netip.AddrPort, error) {
	return netip.AddrPort{}, errors.ErrUnsupported
}

func (unsupportedSockets) Close(int) error { return errors.ErrUnsupported }
