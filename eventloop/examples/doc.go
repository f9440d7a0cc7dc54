// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package examples contains runnable example programs demonstrating
// the eventloop package functionality.
//
// # Examples
//
// The examples directory contains the following subdirectories:
//
//   - 01_accept_counter: A TCP listener counting the bytes sent by each
//     connection, with idle timeouts and JSON logging
//
// # Running Examples
//
// Each example can be run from the examples directory:
//
//	cd eventloop/examples
//	go run ./01_accept_counter/ -port 7000
//
// Then, from another terminal:
//
//	echo hello | nc 127.0.0.1 7000
//
// # Prerequisites
//
// Examples require Linux, for epoll.
package examples
