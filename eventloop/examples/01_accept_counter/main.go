// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Example: Accept Counter
//
// This example demonstrates:
// - Running a loop until SIGINT or SIGTERM
// - Accepting TCP connections with the listener package
// - Per-connection idle timeouts, via RearmOnReady
// - Per-peer admission limits
// - Structured JSON logging to stderr
//
// Run with: go run ./examples/01_accept_counter/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeycumines/go-reactor/eventloop"
	"github.com/joeycumines/go-reactor/listener"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"golang.org/x/sys/unix"
)

func main() {
	var (
		host    = flag.String("host", "127.0.0.1", "host to listen on")
		port    = flag.Uint("port", 7000, "port to listen on")
		idle    = flag.Duration("idle", 10*time.Second, "close connections idle for this long")
		perPeer = flag.Int("per-peer", 20, "connections admitted per peer, per minute")
		debug   = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	if err := run(*host, uint16(*port), *idle, *perPeer, *debug); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(host string, port uint16, idle time.Duration, perPeer int, debug bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := logiface.LevelInformational
	if debug {
		level = logiface.LevelDebug
	}
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
		stumpy.L.WithLevel(level),
	).Logger()

	addr, err := listener.ResolveTCP(ctx, host, port)
	if err != nil {
		return err
	}

	loop, err := eventloop.New(eventloop.WithLogger(logger))
	if err != nil {
		return err
	}

	var total uint64
	ln, err := listener.Listen(loop, addr,
		listener.WithLogger(logger),
		listener.WithConnTimeout(idle),
		listener.WithPeerRateLimit(map[time.Duration]int{time.Minute: perPeer}),
		listener.WithAcceptHandler(func(conn listener.Conn) (eventloop.Spec, bool) {
			return countBytes(logger, conn.Peer, &total), true
		}),
	)
	if err != nil {
		_ = loop.Close()
		return err
	}

	logger.Notice().
		Str("addr", ln.Addr().String()).
		Log("accepting connections")

	err = loop.Run(ctx)

	stats := ln.Stats()
	logger.Notice().
		Uint64("accepted", stats.Accepted).
		Uint64("rejected", stats.Rejected).
		Uint64("bytes", total).
		Log("stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// countBytes reads until the socket would block or reaches EOF, adding to
// total, and logs the count on close. A peer shutdown is terminal, so bytes
// still unread when it arrives in the same readiness report are not counted.
func countBytes(logger *logiface.Logger[logiface.Event], peer netip.AddrPort, total *uint64) eventloop.Spec {
	var count uint64
	buf := make([]byte, 4096)
	return eventloop.Spec{
		Interest:     eventloop.Readable,
		RearmOnReady: true,
		OnReady: func(ev *eventloop.Event) bool {
			for {
				n, err := unix.Read(ev.FD(), buf)
				if n > 0 {
					count += uint64(n)
					*total += uint64(n)
					continue
				}
				switch err {
				case nil:
					return false // EOF
				case unix.EINTR:
					continue
				case unix.EAGAIN:
					ev.ClearReadable()
					return true
				default:
					logger.Warning().
						Str("peer", peer.String()).
						Err(err).
						Log("read failed")
					return false
				}
			}
		},
		OnClose: func(ev *eventloop.Event) {
			logger.Info().
				Str("peer", peer.String()).
				Uint64("bytes", count).
				Stringer("reason", ev.Reason()).
				Log("connection closed")
		},
	}
}
