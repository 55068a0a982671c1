// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package mount

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/stripefs/stripefs/lib/engine"
	"github.com/stripefs/stripefs/lib/meta"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	Mountpoint string

	// Engine moves file content to and from the backends.
	Engine *engine.Engine

	// Meta is the local metadata mirror that backs the directory
	// tree and file attributes.
	Meta *meta.Store

	// AllowOther permits other users (including root) to access the
	// mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, errors go to
	// stderr.
	Logger *slog.Logger
}

// Mount mounts the filesystem at the configured mountpoint. The caller
// must call Unmount on the returned Server when done. The mountpoint
// directory is created if it does not exist.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if options.Meta == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &dirNode{options: &options}

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "stripefs",
			Name:       "stripefs",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("filesystem mounted", "mountpoint", options.Mountpoint)
	return server, nil
}

// errno maps engine and metadata errors onto FUSE error codes.
func errno(err error) syscall.Errno {
	switch {
	case errors.Is(err, engine.ErrPathNotFound), errors.Is(err, fs.ErrNotExist):
		return syscall.ENOENT
	default:
		return syscall.EIO
	}
}

// dirNode is a directory backed by the metadata mirror. prefix is the
// mirror path of this directory, empty for the root.
type dirNode struct {
	gofuse.Inode
	options *Options
	prefix  string
}

var _ gofuse.InodeEmbedder = (*dirNode)(nil)
var _ gofuse.NodeLookuper = (*dirNode)(nil)
var _ gofuse.NodeReaddirer = (*dirNode)(nil)
var _ gofuse.NodeCreater = (*dirNode)(nil)
var _ gofuse.NodeMkdirer = (*dirNode)(nil)
var _ gofuse.NodeUnlinker = (*dirNode)(nil)
var _ gofuse.NodeRmdirer = (*dirNode)(nil)

// child maps a name in this directory to its mirror path.
func (d *dirNode) child(name string) string {
	if d.prefix == "" {
		return name
	}
	return d.prefix + "/" + name
}

func (d *dirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	path := d.child(name)

	record, err := d.options.Meta.Get(path)
	if err == nil {
		node := &fileNode{options: d.options, path: path}
		child := d.NewPersistentInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFREG})
		out.Mode = syscall.S_IFREG | 0o644
		out.Size = uint64(record.Size)
		out.Mtime = uint64(record.Mtime)
		return child, 0
	}
	if !errors.Is(err, fs.ErrNotExist) {
		// A record that exists but cannot be decoded could be a
		// directory in the mirror; fall through to the listing.
		if _, listErr := d.options.Meta.List(path); listErr != nil {
			d.options.Logger.Error("lookup failed", "path", path, "error", err)
			return nil, syscall.EIO
		}
	}

	if _, err := d.options.Meta.List(path); err == nil {
		node := &dirNode{options: d.options, prefix: path}
		child := d.NewPersistentInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFDIR})
		out.Mode = syscall.S_IFDIR | 0o755
		return child, 0
	}

	return nil, syscall.ENOENT
}

func (d *dirNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	listing, err := d.options.Meta.List(d.prefix)
	if err != nil {
		return nil, errno(err)
	}

	entries := make([]fuse.DirEntry, 0, len(listing))
	for _, entry := range listing {
		mode := uint32(syscall.S_IFREG)
		if entry.Dir {
			mode = syscall.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{Name: entry.Name, Mode: mode})
	}
	return &sliceDirStream{entries: entries}, 0
}

func (d *dirNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	path := d.child(name)
	handle := &writeHandle{options: d.options, path: path}
	node := &writeInProgressNode{handle: handle}
	child := d.NewPersistentInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFREG})
	out.Mode = syscall.S_IFREG | 0o644
	return child, handle, 0, 0
}

func (d *dirNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	path := d.child(name)
	if err := d.options.Meta.Mkdir(path); err != nil {
		d.options.Logger.Warn("mkdir failed", "path", path, "error", err)
		return nil, syscall.EIO
	}
	node := &dirNode{options: d.options, prefix: path}
	child := d.NewPersistentInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFDIR})
	out.Mode = syscall.S_IFDIR | 0o755
	return child, 0
}

// Unlink removes the metadata record. Backend slices are left behind;
// without a record they are unreachable and a later write to the same
// path truncates them.
func (d *dirNode) Unlink(ctx context.Context, name string) syscall.Errno {
	path := d.child(name)
	if err := d.options.Meta.Remove(path); err != nil {
		return errno(err)
	}
	return 0
}

func (d *dirNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	path := d.child(name)
	if err := d.options.Meta.Rmdir(path); err != nil {
		return errno(err)
	}
	return 0
}

// fileNode represents one stored file. Attributes come from the
// metadata mirror; content moves through the engine on open handles.
type fileNode struct {
	gofuse.Inode
	options *Options
	path    string
}

var _ gofuse.InodeEmbedder = (*fileNode)(nil)
var _ gofuse.NodeGetattrer = (*fileNode)(nil)
var _ gofuse.NodeOpener = (*fileNode)(nil)
var _ gofuse.NodeReader = (*fileNode)(nil)

func (f *fileNode) Getattr(ctx context.Context, handle gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	record, err := f.options.Meta.Get(f.path)
	if err != nil {
		return errno(err)
	}
	out.Mode = syscall.S_IFREG | 0o644
	out.Size = uint64(record.Size)
	out.Mtime = uint64(record.Mtime)
	out.Blocks = (out.Size + 511) / 512
	out.Blksize = uint32(f.options.Engine.Layout().ChunkSize)
	return 0
}

func (f *fileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		if flags&syscall.O_APPEND != 0 {
			return nil, 0, syscall.ENOTSUP
		}
		// Whole-file replacement: the handle starts empty regardless
		// of O_TRUNC.
		return &writeHandle{options: f.options, path: f.path}, 0, 0
	}

	content, err := f.fetch()
	if err != nil {
		f.options.Logger.Error("read failed", "path", f.path, "error", err)
		return nil, 0, errno(err)
	}
	return &readHandle{content: content}, fuse.FOPEN_KEEP_CACHE, 0
}

// fetch pulls the complete file from the backends and verifies it
// against the recorded content hash.
func (f *fileNode) fetch() ([]byte, error) {
	record, err := f.options.Meta.Get(f.path)
	if err != nil {
		return nil, err
	}
	content, err := f.options.Engine.ReadAll(f.path)
	if err != nil {
		return nil, err
	}
	if !record.Verify(content) {
		return nil, fmt.Errorf("content hash mismatch for %s", f.path)
	}
	return content, nil
}

func (f *fileNode) Read(ctx context.Context, handle gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	reader, ok := handle.(*readHandle)
	if !ok {
		return nil, syscall.EBADF
	}
	return reader.readAt(dest, off)
}

// readHandle serves reads from content fetched at open time.
type readHandle struct {
	content []byte
}

func (h *readHandle) readAt(dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if off >= int64(len(h.content)) {
		return fuse.ReadResultData(nil), 0
	}
	n := copy(dest, h.content[off:])
	return fuse.ReadResultData(dest[:n]), 0
}

// sliceDirStream implements fs.DirStream from a slice of entries.
type sliceDirStream struct {
	entries []fuse.DirEntry
	index   int
}

func (s *sliceDirStream) HasNext() bool {
	return s.index < len(s.entries)
}

func (s *sliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry := s.entries[s.index]
	s.index++
	return entry, 0
}

func (s *sliceDirStream) Close() {}
