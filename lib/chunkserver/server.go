// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package chunkserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/stripefs/stripefs/lib/netutil"
	"github.com/stripefs/stripefs/lib/wire"
)

// Server serves stored slices from a root directory over TCP.
type Server struct {
	root     string
	listener net.Listener
	logger   *slog.Logger
}

// New opens a listener on address (use ":0" for a random port) and
// prepares the root directory.
func New(address, root string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root %s: %w", root, err)
	}
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	return &Server{root: root, listener: listener, logger: logger}, nil
}

// Address returns the bound address in "host:port" form.
func (s *Server) Address() string {
	return s.listener.Addr().String()
}

// Serve accepts connections and handles each in its own goroutine.
// Blocks until ctx is cancelled or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.logger.Info("client connected", "remote", conn.RemoteAddr())
		go s.handle(conn)
	}
}

// Close shuts down the listener. In-flight connections finish on
// their own.
func (s *Server) Close() error {
	return s.listener.Close()
}

// handle runs the message loop for one client connection until the
// client disconnects or breaks the protocol.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	// The file currently open for writing on this connection,
	// established by WRITE_PATH and appended to by WRITE.
	var writeFile *os.File
	defer func() {
		if writeFile != nil {
			writeFile.Close()
		}
	}()

	for {
		header, err := wire.ReadHeader(conn)
		if err != nil {
			if netutil.IsDisconnect(err) {
				s.logger.Info("client disconnected", "remote", conn.RemoteAddr())
			} else {
				s.logger.Warn("dropping client", "remote", conn.RemoteAddr(), "error", err)
			}
			return
		}

		switch header.Kind {
		case wire.KindRead:
			if err := s.handleRead(conn, header.Length); err != nil {
				s.logger.Warn("read failed", "remote", conn.RemoteAddr(), "error", err)
				return
			}

		case wire.KindWritePath:
			file, err := s.openForWrite(conn, header.Length)
			if err != nil {
				s.logger.Warn("write path failed", "remote", conn.RemoteAddr(), "error", err)
				return
			}
			if writeFile != nil {
				writeFile.Close()
			}
			writeFile = file

		case wire.KindWrite:
			if writeFile == nil {
				s.logger.Warn("WRITE before WRITE_PATH, dropping client", "remote", conn.RemoteAddr())
				return
			}
			if _, err := io.CopyN(writeFile, conn, int64(header.Length)); err != nil {
				s.logger.Warn("write failed", "remote", conn.RemoteAddr(), "error", err)
				return
			}

		case wire.KindHeartbeat:
			if err := wire.WriteHeader(conn, header); err != nil {
				s.logger.Warn("heartbeat echo failed", "remote", conn.RemoteAddr(), "error", err)
				return
			}
		}
	}
}

// resolve maps a client path into the storage root, rejecting
// anything that would escape it.
func (s *Server) resolve(path string) (string, error) {
	cleaned := filepath.Clean(path)
	if cleaned == "." || cleaned == "" || filepath.IsAbs(cleaned) ||
		cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("path %q escapes the storage root", path)
	}
	return filepath.Join(s.root, cleaned), nil
}

// handleRead streams the named file back: a READ header carrying the
// file size, then the raw bytes. A file that cannot be opened answers
// with a zero-length header.
func (s *Server) handleRead(conn net.Conn, pathLength uint64) error {
	path, err := wire.ReadPath(conn, pathLength)
	if err != nil {
		return err
	}
	target, err := s.resolve(path)
	if err != nil {
		return wire.WriteHeader(conn, wire.Header{Kind: wire.KindRead, Length: 0})
	}

	file, err := os.Open(target)
	if err != nil {
		s.logger.Info("no such slice", "path", path)
		return wire.WriteHeader(conn, wire.Header{Kind: wire.KindRead, Length: 0})
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := wire.WriteHeader(conn, wire.Header{Kind: wire.KindRead, Length: uint64(info.Size())}); err != nil {
		return err
	}
	if _, err := io.Copy(conn, file); err != nil {
		return fmt.Errorf("streaming %s: %w", path, err)
	}
	s.logger.Info("served slice", "path", path, "bytes", info.Size())
	return nil
}

// openForWrite reads the destination path and creates (or truncates)
// the slice file for the WRITE messages that follow.
func (s *Server) openForWrite(conn net.Conn, pathLength uint64) (*os.File, error) {
	path, err := wire.ReadPath(conn, pathLength)
	if err != nil {
		return nil, err
	}
	target, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("creating slice directory for %s: %w", path, err)
	}
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating slice %s: %w", path, err)
	}
	s.logger.Info("opened slice for writing", "path", path)
	return file, nil
}
