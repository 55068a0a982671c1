// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend manages the persistent connections from the striped
// client to its chunk servers.
//
// A Conn is one stream-oriented connection to one chunk server. The
// wire protocol carries no request identifier, so a connection can
// serve only one in-flight request at a time: callers must hold the
// connection's lock for the full duration of a request/response
// exchange. This is a protocol constraint, not an optimization.
//
// A Set is the ordered collection of all N connections for one mount.
// The position of a connection in the set is its stripe role. Liveness
// is tracked per connection; a connection that fails is Dead for the
// rest of the process, there is no automatic reconnect.
package backend
