// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package mount

import (
	"context"
	"sync"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/stripefs/stripefs/lib/meta"
)

// writeHandle buffers data for an in-progress write and finalizes it
// on Flush. Returned by Create and by Open-for-write on existing
// files.
//
// The buffer grows to hold all written data in memory. On Flush, the
// complete content goes to the backends as one striped write, then the
// metadata record is updated with the new size and content hash.
type writeHandle struct {
	mu      sync.Mutex
	buffer  []byte
	options *Options
	path    string

	// flushedSize is set once Flush has run, so Getattr keeps
	// reporting the final size after the buffer is released.
	flushedSize int64

	// flushed prevents double-finalization when Flush is called
	// multiple times (e.g., dup'd file descriptors).
	flushed bool
}

var _ gofuse.FileWriter = (*writeHandle)(nil)
var _ gofuse.FileFlusher = (*writeHandle)(nil)
var _ gofuse.FileReleaser = (*writeHandle)(nil)

// Write appends data at the given offset, growing the buffer as
// needed. Supports both sequential writes (the common case for cp,
// shell redirection, curl) and random-offset writes.
func (h *writeHandle) Write(_ context.Context, data []byte, offset int64) (uint32, syscall.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.flushed {
		return 0, syscall.EBADF
	}
	endOffset := offset + int64(len(data))
	if endOffset > int64(len(h.buffer)) {
		grown := make([]byte, endOffset)
		copy(grown, h.buffer)
		h.buffer = grown
	}
	copy(h.buffer[offset:], data)
	return uint32(len(data)), 0
}

// Flush finalizes the write: stripes the content across the backends
// and records the new size and hash. Called when the file descriptor
// is closed. Idempotent; subsequent calls are no-ops.
func (h *writeHandle) Flush(_ context.Context) syscall.Errno {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.flushed {
		return 0
	}
	h.flushed = true

	if err := h.options.Engine.Write(h.path, h.buffer); err != nil {
		h.options.Logger.Error("striped write failed", "path", h.path, "error", err)
		return errno(err)
	}
	hash := meta.ContentHash(h.buffer)
	if err := h.options.Meta.Put(h.path, int64(len(h.buffer)), hash); err != nil {
		h.options.Logger.Error("metadata update failed", "path", h.path, "error", err)
		return syscall.EIO
	}

	h.options.Logger.Info("file written", "path", h.path, "bytes", len(h.buffer))
	h.flushedSize = int64(len(h.buffer))
	h.buffer = nil
	return 0
}

// Release is called when the last reference to the file handle is
// dropped. Cleanup is already handled in Flush.
func (h *writeHandle) Release(_ context.Context) syscall.Errno {
	return 0
}

// writeInProgressNode is a minimal inode for files being created. It
// reports the current buffered size via Getattr and delegates all I/O
// to the writeHandle.
type writeInProgressNode struct {
	gofuse.Inode
	handle *writeHandle
}

var _ gofuse.InodeEmbedder = (*writeInProgressNode)(nil)
var _ gofuse.NodeGetattrer = (*writeInProgressNode)(nil)
var _ gofuse.NodeOpener = (*writeInProgressNode)(nil)
var _ gofuse.NodeReader = (*writeInProgressNode)(nil)

// Open after the creating descriptor has closed behaves like opening
// the settled file: the kernel can hold this inode past the flush, so
// it must serve later opens too.
func (w *writeInProgressNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	file := &fileNode{options: w.handle.options, path: w.handle.path}
	return file.Open(ctx, flags)
}

func (w *writeInProgressNode) Read(ctx context.Context, handle gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	reader, ok := handle.(*readHandle)
	if !ok {
		return nil, syscall.EBADF
	}
	return reader.readAt(dest, off)
}

func (w *writeInProgressNode) Getattr(_ context.Context, _ gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFREG | 0o644
	w.handle.mu.Lock()
	if w.handle.flushed {
		out.Size = uint64(w.handle.flushedSize)
	} else {
		out.Size = uint64(len(w.handle.buffer))
	}
	w.handle.mu.Unlock()
	return 0
}
