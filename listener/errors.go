// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package listener

import (
	"fmt"
	"net/netip"
)

// ResourceError indicates a failure to create, configure or resolve the
// listening socket. Any descriptor acquired has been closed.
type ResourceError struct {
	Err  error
	Op   string
	Addr netip.AddrPort
}

// Error implements the error interface.
func (e *ResourceError) Error() string {
	if !e.Addr.IsValid() {
		return fmt.Sprintf("listener: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("listener: %s %s: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ResourceError) Unwrap() error {
	return e.Err
}
