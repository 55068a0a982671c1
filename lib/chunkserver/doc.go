// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunkserver implements the backend: a stateless responder
// that stores each client-assigned slice as a plain file under a root
// directory and streams it back on request.
//
// The server knows nothing about striping. It receives WRITE_PATH and
// WRITE messages and appends bytes; it receives READ and streams the
// stored file back, reporting the length it will send in the response
// header. Which slice of which logical file it holds is entirely the
// client's business.
package chunkserver
