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

type eventfdWaker struct{}

func newWakeSource() (*eventfdWaker, error) { return nil, errors.ErrUnsupported }

func (*eventfdWaker) FD() int { return -1 }

func (*eventfdWaker) Wake() error { return errors.ErrUnsupported }

func (*eventfdWaker) drain() {}

func (*eventfdWaker) Close() error { return nil }
