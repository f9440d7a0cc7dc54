// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package listener provides a non-blocking TCP listening socket, driven by an
// [eventloop.Loop].
//
// # Accepting
//
// The listening descriptor is registered edge-triggered, for readability.
// Each readiness notification drains the accept queue until EAGAIN, so no
// connection is stranded between edges. EINTR and ECONNABORTED are retried
// within the drain. EMFILE and ENFILE end the drain, and are logged, at most
// once per second per error, the listener remaining registered.
//
// Every accepted connection is passed to the [AcceptHandler], which decides
// whether to register it with the loop, as an [eventloop.Spec], or close it.
// The default handler closes every connection.
//
// # Admission
//
// [WithPeerRateLimit] applies sliding window limits per peer IP, using
// [catrate.Limiter]. Connections over the limit are closed before reaching
// the handler.
//
// # Thread Safety
//
// [Listen] and [Listener.Close] register and unregister with the loop, and
// so must be called before [eventloop.Loop.Run], or from a loop callback.
// [Listener.Stats] and [Listener.Addr] are safe from any goroutine.
package listener
