// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build !linux

package eventloop

import (
	"errors"
)

// NewEpoll is the default [MultiplexerFactory]. Outside Linux, it always
// fails, and a [Multiplexer] must be supplied via [WithMultiplexer].
func NewEpoll(maxEvents int) (Multiplexer, error) {
	return nil, errors.ErrUnsupported
}
