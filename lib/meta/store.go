// Copyright 2026 The StripeFS Authors
// SPDX-License-Identifier: Apache-2.0

package meta

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/stripefs/stripefs/lib/clock"
	"github.com/stripefs/stripefs/lib/codec"
)

// Record is the on-disk metadata for one stored file.
type Record struct {
	// Size is the logical file size in bytes. This, not any backend
	// slice length, is what stat reports.
	Size int64 `cbor:"size"`

	// Hash is the 32-byte BLAKE3 hash of the full file content.
	Hash []byte `cbor:"hash"`

	// Mtime is the record's last-write time, unix seconds.
	Mtime int64 `cbor:"mtime"`
}

// Entry is one name in a directory listing.
type Entry struct {
	Name string
	Dir  bool
}

// Store is the metadata mirror rooted at a local directory. Records
// live at the same relative path as the files they describe.
type Store struct {
	root  string
	clock clock.Clock
}

// NewStore opens (creating if needed) a mirror rooted at root. clk may
// be nil, in which case the real clock is used.
func NewStore(root string, clk clock.Clock) (*Store, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating metadata root %s: %w", root, err)
	}
	return &Store{root: root, clock: clk}, nil
}

// resolve validates path and maps it into the mirror tree. Absolute
// paths and paths escaping the root are rejected.
func (s *Store) resolve(path string) (string, error) {
	cleaned := filepath.Clean(path)
	if cleaned == "." || cleaned == "" {
		return s.root, nil
	}
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("path %q escapes the metadata root", path)
	}
	return filepath.Join(s.root, cleaned), nil
}

// ContentHash returns the BLAKE3 hash of data.
func ContentHash(data []byte) []byte {
	sum := blake3.Sum256(data)
	return sum[:]
}

// Put writes the record for path, creating parent directories as
// needed. The write is atomic: a temp file in the same directory is
// renamed into place.
func (s *Store) Put(path string, size int64, hash []byte) error {
	target, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating metadata directory for %s: %w", path, err)
	}

	record := Record{Size: size, Hash: hash, Mtime: s.clock.Now().Unix()}
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding metadata record for %s: %w", path, err)
	}

	temp, err := os.CreateTemp(filepath.Dir(target), ".meta-*")
	if err != nil {
		return fmt.Errorf("creating temp record for %s: %w", path, err)
	}
	tempName := temp.Name()
	if _, err := temp.Write(data); err != nil {
		temp.Close()
		os.Remove(tempName)
		return fmt.Errorf("writing metadata record for %s: %w", path, err)
	}
	if err := temp.Close(); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("closing metadata record for %s: %w", path, err)
	}
	if err := os.Rename(tempName, target); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("installing metadata record for %s: %w", path, err)
	}
	return nil
}

// Get reads the record for path. A missing record satisfies
// errors.Is(err, fs.ErrNotExist).
func (s *Store) Get(path string) (*Record, error) {
	target, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("reading metadata record for %s: %w", path, err)
	}
	var record Record
	if err := codec.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decoding metadata record for %s: %w", path, err)
	}
	return &record, nil
}

// Size returns the logical size recorded for path. Implements the
// engine's size lookup.
func (s *Store) Size(path string) (int64, error) {
	record, err := s.Get(path)
	if err != nil {
		return 0, err
	}
	return record.Size, nil
}

// Verify reports whether data matches the record's content hash.
// Records written before hashing was in place (empty hash) verify
// trivially.
func (r *Record) Verify(data []byte) bool {
	if len(r.Hash) == 0 {
		return true
	}
	return bytes.Equal(r.Hash, ContentHash(data))
}

// Mkdir creates a directory in the mirror. Parents must exist, and
// creating an existing directory fails, matching mkdir semantics.
func (s *Store) Mkdir(dir string) error {
	target, err := s.resolve(dir)
	if err != nil {
		return err
	}
	if err := os.Mkdir(target, 0o755); err != nil {
		return fmt.Errorf("creating metadata directory %s: %w", dir, err)
	}
	return nil
}

// Rmdir removes an empty directory from the mirror.
func (s *Store) Rmdir(dir string) error {
	target, err := s.resolve(dir)
	if err != nil {
		return err
	}
	if target == s.root {
		return fmt.Errorf("refusing to remove the metadata root")
	}
	if err := os.Remove(target); err != nil {
		return fmt.Errorf("removing metadata directory %s: %w", dir, err)
	}
	return nil
}

// Remove deletes the record for path. Removing a missing record is an
// error, matching the filesystem's unlink semantics.
func (s *Store) Remove(path string) error {
	target, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil {
		return fmt.Errorf("removing metadata record for %s: %w", path, err)
	}
	return nil
}

// List returns the entries directly under the given directory path
// (empty or "." for the root), sorted by name. Temp files from
// in-flight Puts are skipped.
func (s *Store) List(dir string) ([]Entry, error) {
	target, err := s.resolve(dir)
	if err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(target)
	if err != nil {
		return nil, fmt.Errorf("listing metadata directory %s: %w", dir, err)
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, dirEntry := range dirEntries {
		if strings.HasPrefix(dirEntry.Name(), ".meta-") {
			continue
		}
		entries = append(entries, Entry{Name: dirEntry.Name(), Dir: dirEntry.IsDir()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
