// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import "errors"

// ErrUnrecoverable reports that more backends are unavailable than the
// single-parity stripe can absorb: two or more dead connections, or
// any dead connection when there is only one backend. The session is
// aborted; the filesystem bridge surfaces this as EIO.
var ErrUnrecoverable = errors.New("unrecoverable data loss")

// ErrPathNotFound reports that the file does not exist: either the
// metadata mirror has no record for the path, or a backend that should
// hold a slice of it answered that it has no such file. The filesystem
// bridge surfaces this as ENOENT.
var ErrPathNotFound = errors.New("path not found")
