// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build unix

package eventloop

import (
	"testing"

	"golang.org/x/sys/unix"
)

// testPipe returns a non-blocking pipe. The read end is intended to be
// handed to a loop, which will close it; the write end is closed on cleanup.
func testPipe(t *testing.T) (r, w int) {
	t.Helper()
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		t.Fatal("pipe failed:", err)
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			t.Fatal("set nonblock failed:", err)
		}
	}
	t.Cleanup(func() { _ = unix.Close(p[1]) })
	return p[0], p[1]
}

// requireClosedReadEnd asserts the loop closed the read end of a testPipe,
// via the EPIPE reported to the writer.
func requireClosedReadEnd(t *testing.T, w int) {
	t.Helper()
	_, err := unix.Write(w, []byte{1})
	if err != unix.EPIPE {
		t.Fatalf("expected EPIPE writing to pipe, got %v", err)
	}
}

func requireOpenReadEnd(t *testing.T, w int) {
	t.Helper()
	if _, err := unix.Write(w, []byte{1}); err != nil {
		t.Fatalf("expected write to succeed, got %v", err)
	}
}
